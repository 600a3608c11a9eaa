package identity

import (
	"context"
	"fmt"
	"log/slog"

	"idforge/internal/geo"
	"idforge/pkg/domain"
	"idforge/pkg/platform/sentinel"
)

// Detector resolves an IP to location info.
type Detector interface {
	Detect(ctx context.Context, ip string) geo.Info
}

// Generated is an identity fresh from the generator. Geo is set when the
// country came from IP detection.
type Generated struct {
	Identity
	Geo *geo.Info `json:"geo,omitempty"`
}

type Service struct {
	generator *Generator
	store     Store
	detector  Detector
	logger    *slog.Logger
}

// NewService wires the generator and store. detector may be nil, in which case
// an omitted country falls back to geo.DefaultCountry.
func NewService(generator *Generator, store Store, detector Detector, logger *slog.Logger) (*Service, error) {
	if generator == nil || store == nil {
		return nil, fmt.Errorf("identity service requires generator and store: %w", sentinel.ErrMisconfigured)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{generator: generator, store: store, detector: detector, logger: logger}, nil
}

// Generate builds an identity for country. An empty country is detected from
// ip.
func (s *Service) Generate(ctx context.Context, country, ip string) (Generated, error) {
	var detected *geo.Info
	if country == "" {
		info := s.detect(ctx, ip)
		detected = &info
		country = info.Country
	}
	code, err := domain.ParseCountryCode(country)
	if err != nil {
		return Generated{}, err
	}
	return Generated{Identity: s.generator.Generate(code), Geo: detected}, nil
}

func (s *Service) detect(ctx context.Context, ip string) geo.Info {
	if s.detector == nil {
		return geo.Info{IP: geo.Unreachable, Country: geo.DefaultCountry, Fallback: true}
	}
	return s.detector.Detect(ctx, ip)
}

// Save validates and stores identity. A missing id or creation time is
// filled in.
func (s *Service) Save(ctx context.Context, ident Identity) (Identity, error) {
	code, err := domain.ParseCountryCode(ident.Country.String())
	if err == nil {
		ident.Country = code
		err = ident.Validate()
	}
	if err != nil {
		return Identity{}, err
	}
	if ident.ID.IsNil() {
		ident.ID = domain.NewIdentityID()
	}
	if ident.CreatedAt.IsZero() {
		ident.CreatedAt = s.generator.clock.Now().UTC()
	}
	if err := s.store.Save(ctx, ident); err != nil {
		return Identity{}, fmt.Errorf("save identity: %w", err)
	}
	s.logger.InfoContext(ctx, "identity saved", "identity_id", ident.ID.String(), "country", ident.Country.String())
	return ident, nil
}

func (s *Service) List(ctx context.Context) ([]Identity, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	if items == nil {
		items = []Identity{}
	}
	return items, nil
}

func (s *Service) Delete(ctx context.Context, rawID string) error {
	id, err := domain.ParseIdentityID(rawID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete identity %s: %w", id, err)
	}
	return nil
}

func (s *Service) SetFavorite(ctx context.Context, rawID string, favorite bool) error {
	id, err := domain.ParseIdentityID(rawID)
	if err != nil {
		return err
	}
	if err := s.store.SetFavorite(ctx, id, favorite); err != nil {
		return fmt.Errorf("set favorite on %s: %w", id, err)
	}
	return nil
}
