package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"idforge/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) TestGet() {
	s.Run("missing key returns not found", func() {
		_, err := s.store.Get(s.ctx, "missing")
		s.Require().Error(err)
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})

	s.Run("stored value is returned", func() {
		s.Require().NoError(s.store.Set(s.ctx, "k", "v1"))
		v, err := s.store.Get(s.ctx, "k")
		s.Require().NoError(err)
		s.Equal("v1", v)
	})

	s.Run("set overwrites", func() {
		s.Require().NoError(s.store.Set(s.ctx, "k", "v2"))
		v, err := s.store.Get(s.ctx, "k")
		s.Require().NoError(err)
		s.Equal("v2", v)
	})
}

func (s *MemoryStoreSuite) TestDelete() {
	s.Require().NoError(s.store.Set(s.ctx, "k", "v"))
	s.Require().NoError(s.store.Delete(s.ctx, "k"))

	_, err := s.store.Get(s.ctx, "k")
	s.True(errors.Is(err, ErrNotFound))

	s.NoError(s.store.Delete(s.ctx, "never-set"), "deleting an absent key is not an error")
}
