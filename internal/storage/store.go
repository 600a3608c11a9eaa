package storage

import "context"

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

// Store is the key/value persistence boundary for small serialized records
// (the background cache record, the saved identity snapshot). Implementations
// return ErrNotFound (wrapping sentinel.ErrNotFound) for absent keys and wrap
// transport failures with sentinel.ErrUnavailable.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
