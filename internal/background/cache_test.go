package background

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idforge/internal/platform/logger"
	"idforge/internal/storage"
	"idforge/internal/storage/mocks"
	"idforge/pkg/platform/sentinel"
)

const testURL = "https://images.example.com/forest.jpg"

type CacheSuite struct {
	suite.Suite
	ctx     context.Context
	clock   *clockwork.FakeClock
	store   *storage.MemoryStore
	metrics *Metrics
	cache   *Cache
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	s.store = storage.NewMemoryStore()
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.cache = s.newCache(s.store)
}

func (s *CacheSuite) newCache(store storage.Store, opts ...CacheOption) *Cache {
	opts = append([]CacheOption{WithClock(s.clock), WithLogger(logger.Discard()), WithMetrics(s.metrics)}, opts...)
	c, err := NewCache(store, opts...)
	s.Require().NoError(err)
	return c
}

func (s *CacheSuite) stored() (string, bool) {
	raw, err := s.store.Get(s.ctx, StorageKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", false
	}
	s.Require().NoError(err)
	return raw, true
}

func (s *CacheSuite) TestNewCache_RequiresStore() {
	_, err := NewCache(nil)
	s.True(errors.Is(err, sentinel.ErrMisconfigured))
}

func (s *CacheSuite) TestRead_EmptyStore() {
	res := s.cache.Read(s.ctx)
	s.Equal(StatusMissEmpty, res.Status)
	s.False(res.Hit())
	s.Empty(res.URL)
}

func (s *CacheSuite) TestWriteThenRead_TTLScenario() {
	s.Require().True(s.cache.Write(s.ctx, testURL))

	s.clock.Advance(23 * time.Hour)
	res := s.cache.Read(s.ctx)
	s.Equal(StatusHit, res.Status)
	s.Equal(testURL, res.URL)

	s.clock.Advance(2 * time.Hour)
	res = s.cache.Read(s.ctx)
	s.Equal(StatusMissExpired, res.Status)
	s.Empty(res.URL)
	_, ok := s.stored()
	s.False(ok, "expired record is removed on read")

	s.Equal(1.0, promtest.ToFloat64(s.metrics.Reads.WithLabelValues(string(StatusHit))))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Reads.WithLabelValues(string(StatusMissExpired))))
}

func (s *CacheSuite) TestRead_ExactlyTTLIsExpired() {
	s.Require().True(s.cache.Write(s.ctx, testURL))
	s.clock.Advance(DefaultTTL)

	s.Equal(StatusMissExpired, s.cache.Read(s.ctx).Status)
}

func (s *CacheSuite) TestRead_VersionMismatch() {
	old := fmt.Sprintf(`{"url":%q,"timestamp":%d,"version":"v0"}`, testURL, s.clock.Now().UnixMilli())
	s.Require().NoError(s.store.Set(s.ctx, StorageKey, old))

	res := s.cache.Read(s.ctx)
	s.Equal(StatusMissVersion, res.Status)
	s.Empty(res.URL)
	_, ok := s.stored()
	s.False(ok)
}

func (s *CacheSuite) TestRead_VersionBumpInvalidatesOldRecords() {
	s.Require().True(s.cache.Write(s.ctx, testURL))

	bumped := s.newCache(s.store, WithVersion("v2"))
	s.Equal(StatusMissVersion, bumped.Read(s.ctx).Status)
}

func (s *CacheSuite) TestRead_CorruptRecord() {
	for name, raw := range map[string]string{
		"not json":          "{url:",
		"missing url":       `{"timestamp":1,"version":"v1"}`,
		"timestamp as text": `{"url":"u","timestamp":"yesterday","version":"v1"}`,
	} {
		s.Run(name, func() {
			s.Require().NoError(s.store.Set(s.ctx, StorageKey, raw))

			res := s.cache.Read(s.ctx)
			s.Equal(StatusMissCorrupt, res.Status)
			_, ok := s.stored()
			s.False(ok, "corrupt record is purged")
		})
	}
}

func (s *CacheSuite) TestRead_AncientTimestampIsExpired() {
	raw := `{"url":"u","timestamp":-9223372036854775808,"version":"v1"}`
	s.Require().NoError(s.store.Set(s.ctx, StorageKey, raw))

	res := s.cache.Read(s.ctx)
	s.Equal(StatusMissExpired, res.Status)
	s.Empty(res.URL)
	_, ok := s.stored()
	s.False(ok, "stale record is purged")
}

func (s *CacheSuite) TestRead_FutureTimestampIsAccepted() {
	future := fmt.Sprintf(`{"url":%q,"timestamp":%d,"version":"v1"}`, testURL, s.clock.Now().Add(72*time.Hour).UnixMilli())
	s.Require().NoError(s.store.Set(s.ctx, StorageKey, future))

	res := s.cache.Read(s.ctx)
	s.Equal(StatusHit, res.Status)
	s.Equal(testURL, res.URL)
}

func (s *CacheSuite) TestClear() {
	s.Require().True(s.cache.Write(s.ctx, testURL))
	s.cache.Clear(s.ctx)
	s.Equal(StatusMissEmpty, s.cache.Read(s.ctx).Status)
}

func (s *CacheSuite) TestStoreFailuresAreSwallowed() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockStore(ctrl)
	c := s.newCache(store)

	s.Run("write failure reports false", func() {
		store.EXPECT().Set(gomock.Any(), StorageKey, gomock.Any()).Return(errors.New("quota exceeded"))
		s.False(c.Write(s.ctx, testURL))
	})

	s.Run("read failure leaves record in place", func() {
		store.EXPECT().Get(gomock.Any(), StorageKey).Return("", fmt.Errorf("redis: %w", sentinel.ErrUnavailable))
		// no Delete expected
		res := c.Read(s.ctx)
		s.Equal(StatusMissUnavailable, res.Status)
	})

	s.Run("delete failure during purge is swallowed", func() {
		store.EXPECT().Get(gomock.Any(), StorageKey).Return("garbage", nil)
		store.EXPECT().Delete(gomock.Any(), StorageKey).Return(errors.New("read-only"))
		s.Equal(StatusMissCorrupt, c.Read(s.ctx).Status)
	})
}
