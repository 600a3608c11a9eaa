package identity

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jonboulle/clockwork"

	"idforge/pkg/domain"
)

const (
	minAge         = 18
	maxAge         = 80
	passwordLength = 16
)

// Generator builds identities from gofakeit data. It is safe for concurrent
// use.
type Generator struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
	clock clockwork.Clock
}

// NewGenerator seeds the faker; a zero seed draws one from crypto/rand.
func NewGenerator(seed int64, clock clockwork.Clock) *Generator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Generator{faker: gofakeit.New(seed), clock: clock}
}

// Generate returns an unsaved identity for country.
func (g *Generator) Generate(country domain.CountryCode) Identity {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now().UTC()
	first := g.faker.FirstName()
	last := g.faker.LastName()
	birthday := g.faker.DateRange(now.AddDate(-maxAge, 0, 0), now.AddDate(-minAge, 0, 0))

	return Identity{
		ID:        domain.NewIdentityID(),
		FirstName: first,
		LastName:  last,
		Birthday:  birthday.Format(BirthdayLayout),
		Phone:     g.faker.Phone(),
		Password:  g.faker.Password(true, true, true, true, false, passwordLength),
		Email:     localPart(first, last) + g.faker.DigitN(2) + "@" + g.faker.DomainName(),
		Country:   country,
		CreatedAt: now.Truncate(time.Millisecond),
	}
}

func localPart(first, last string) string {
	keep := func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToLower(r)
		}
		return -1
	}
	return strings.Map(keep, first) + "." + strings.Map(keep, last)
}
