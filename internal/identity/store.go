package identity

import (
	"context"
	"fmt"

	"idforge/pkg/domain"
	"idforge/pkg/platform/sentinel"
)

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

// Store persists saved identities. List returns newest first. Delete and
// SetFavorite return ErrNotFound for unknown ids.
type Store interface {
	List(ctx context.Context) ([]Identity, error)
	Save(ctx context.Context, identity Identity) error
	Delete(ctx context.Context, id domain.IdentityID) error
	SetFavorite(ctx context.Context, id domain.IdentityID, favorite bool) error
}

var ErrNotFound = fmt.Errorf("saved identity: %w", sentinel.ErrNotFound)
