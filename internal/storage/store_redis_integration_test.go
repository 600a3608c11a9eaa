//go:build integration

package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"idforge/pkg/platform/sentinel"
	"idforge/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.store = NewRedisStore(s.redis.Client.Client)
}

func (s *RedisStoreSuite) TestRoundTrip() {
	s.Require().NoError(s.store.Set(s.ctx, "background_cache", `{"url":"u"}`))

	v, err := s.store.Get(s.ctx, "background_cache")
	s.Require().NoError(err)
	s.Equal(`{"url":"u"}`, v)

	raw, err := s.redis.Client.Get(s.ctx, DefaultKeyPrefix+"background_cache").Result()
	s.Require().NoError(err)
	s.Equal(v, raw, "keys are namespaced with the default prefix")
}

func (s *RedisStoreSuite) TestMissingAndDelete() {
	_, err := s.store.Get(s.ctx, "absent")
	s.True(errors.Is(err, sentinel.ErrNotFound))

	s.Require().NoError(s.store.Set(s.ctx, "k", "v"))
	s.Require().NoError(s.store.Delete(s.ctx, "k"))
	_, err = s.store.Get(s.ctx, "k")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *RedisStoreSuite) TestCustomPrefix() {
	store := NewRedisStore(s.redis.Client.Client, WithKeyPrefix("test:"))
	s.Require().NoError(store.Set(s.ctx, "k", "v"))

	n, err := s.redis.Client.Exists(s.ctx, "test:k").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}
