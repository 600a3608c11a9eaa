package domain

import (
	"fmt"

	"github.com/google/uuid"

	"idforge/pkg/platform/sentinel"
)

// IdentityID identifies a saved synthetic identity.
type IdentityID uuid.UUID

func NewIdentityID() IdentityID {
	return IdentityID(uuid.New())
}

func (id IdentityID) String() string {
	return uuid.UUID(id).String()
}

func (id IdentityID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

// MarshalText encodes the nil id as an empty string.
func (id IdentityID) MarshalText() ([]byte, error) {
	if id.IsNil() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

// UnmarshalText accepts an empty string as the nil id, so clients may omit it.
func (id *IdentityID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = IdentityID{}
		return nil
	}
	parsed, err := ParseIdentityID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseIdentityID parses a non-nil UUID. Any failure wraps
// sentinel.ErrInvalidInput.
func ParseIdentityID(s string) (IdentityID, error) {
	if s == "" {
		return IdentityID{}, fmt.Errorf("identity id is required: %w", sentinel.ErrInvalidInput)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return IdentityID{}, fmt.Errorf("invalid identity id: %w", sentinel.ErrInvalidInput)
	}
	if parsed == uuid.Nil {
		return IdentityID{}, fmt.Errorf("identity id cannot be nil: %w", sentinel.ErrInvalidInput)
	}
	return IdentityID(parsed), nil
}
