package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"idforge/internal/debounce"
	"idforge/internal/identity"
	"idforge/internal/storage"
	"idforge/pkg/domain"
	"idforge/pkg/platform/sentinel"
)

// SnapshotKey is where the saved list lives in the key/value store.
const SnapshotKey = "saved_identities"

const persistTimeout = 5 * time.Second

// SnapshotStore keeps saved identities in memory and writes the whole list
// to a key/value store once mutations have settled for the debounce delay.
type SnapshotStore struct {
	mu    sync.RWMutex
	items []identity.Identity

	kv      storage.Store
	key     string
	logger  *slog.Logger
	persist *debounce.Debouncer[[]identity.Identity]

	errMu   sync.Mutex
	lastErr error
}

type SnapshotOption func(*snapshotSettings)

type snapshotSettings struct {
	key    string
	clock  clockwork.Clock
	logger *slog.Logger
}

func WithSnapshotKey(key string) SnapshotOption {
	return func(s *snapshotSettings) {
		if key != "" {
			s.key = key
		}
	}
}

func WithSnapshotClock(clock clockwork.Clock) SnapshotOption {
	return func(s *snapshotSettings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithSnapshotLogger(logger *slog.Logger) SnapshotOption {
	return func(s *snapshotSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSnapshotStore loads the saved list from kv. A missing or unreadable
// snapshot starts empty; an unreachable store is an error.
func NewSnapshotStore(ctx context.Context, kv storage.Store, delay time.Duration, opts ...SnapshotOption) (*SnapshotStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("snapshot store requires a key/value store: %w", sentinel.ErrMisconfigured)
	}
	cfg := snapshotSettings{
		key:    SnapshotKey,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	s := &SnapshotStore{kv: kv, key: cfg.key, logger: cfg.logger}
	persist, err := debounce.New(delay, s.write, debounce.WithClock(cfg.clock))
	if err != nil {
		return nil, fmt.Errorf("snapshot persistence: %w", err)
	}
	s.persist = persist

	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.items = items
	return s, nil
}

func (s *SnapshotStore) load(ctx context.Context) ([]identity.Identity, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load saved identities: %w", err)
	}
	var items []identity.Identity
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.WarnContext(ctx, "discarding unreadable saved identities", "key", s.key, "error", err)
		return nil, nil
	}
	sortNewestFirst(items)
	return items, nil
}

// write is the debounced commit. It runs on a timer goroutine or from Close.
func (s *SnapshotStore) write(items []identity.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if items == nil {
		items = []identity.Identity{}
	}
	b, err := json.Marshal(items)
	if err == nil {
		err = s.kv.Set(ctx, s.key, string(b))
	}
	if err != nil {
		s.logger.WarnContext(ctx, "persist saved identities failed", "key", s.key, "count", len(items), "error", err)
	}
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

func (s *SnapshotStore) List(_ context.Context) ([]identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items), nil
}

// Save inserts identity, or replaces the saved one with the same id.
func (s *SnapshotStore) Save(_ context.Context, ident identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(ident.ID); i >= 0 {
		s.items[i] = ident
	} else {
		s.items = append(s.items, ident)
	}
	sortNewestFirst(s.items)
	s.changed()
	return nil
}

func (s *SnapshotStore) Delete(_ context.Context, id domain.IdentityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return identity.ErrNotFound
	}
	s.items = slices.Delete(s.items, i, i+1)
	s.changed()
	return nil
}

func (s *SnapshotStore) SetFavorite(_ context.Context, id domain.IdentityID, favorite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return identity.ErrNotFound
	}
	if s.items[i].Favorite == favorite {
		return nil
	}
	s.items[i].Favorite = favorite
	s.changed()
	return nil
}

// Close writes any pending change and stops persistence. It returns the error
// of the final write, if one happened and failed.
func (s *SnapshotStore) Close() error {
	flushed := s.persist.Flush()
	s.persist.Stop()
	if !flushed {
		return nil
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// Pending reports whether a change is waiting to be written.
func (s *SnapshotStore) Pending() bool {
	return s.persist.Pending()
}

// changed schedules a write. Caller holds s.mu.
func (s *SnapshotStore) changed() {
	s.persist.Set(slices.Clone(s.items))
}

func (s *SnapshotStore) indexOf(id domain.IdentityID) int {
	return slices.IndexFunc(s.items, func(i identity.Identity) bool { return i.ID == id })
}

func sortNewestFirst(items []identity.Identity) {
	slices.SortStableFunc(items, func(a, b identity.Identity) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
