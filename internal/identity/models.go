// Package identity generates synthetic identities and keeps the ones a user
// chose to save.
package identity

import (
	"fmt"
	"strings"
	"time"

	"idforge/pkg/domain"
	"idforge/pkg/platform/sentinel"
)

// BirthdayLayout is the wire and storage format of Identity.Birthday.
const BirthdayLayout = "2006-01-02"

// Identity is one generated persona. Nothing in it belongs to a real person.
type Identity struct {
	ID        domain.IdentityID  `json:"id"`
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	Birthday  string             `json:"birthday"`
	Phone     string             `json:"phone"`
	Password  string             `json:"password"`
	Email     string             `json:"email"`
	Country   domain.CountryCode `json:"country"`
	Favorite  bool               `json:"favorite"`
	CreatedAt time.Time          `json:"created_at"`
}

// Validate checks the fields a client may send back when saving.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.FirstName) == "" || strings.TrimSpace(i.LastName) == "" {
		return fmt.Errorf("first_name and last_name are required: %w", sentinel.ErrInvalidInput)
	}
	if _, err := domain.ParseCountryCode(i.Country.String()); err != nil {
		return err
	}
	if i.Birthday != "" {
		if _, err := time.Parse(BirthdayLayout, i.Birthday); err != nil {
			return fmt.Errorf("birthday must be YYYY-MM-DD: %w", sentinel.ErrInvalidInput)
		}
	}
	return nil
}
