package sstoretest

import (
	"testing"

	"github.com/gordian-engine/swift/shash"
	"github.com/gordian-engine/swift/sstore"
	"github.com/stretchr/testify/require"
)

// StoreFactory opens the store at a fixed location for the calling test.
// Calling it again after Close must reopen the same backing file.
type StoreFactory func() sstore.Store

// TestStoreCompliance runs the shared behavioral tests
// that every [sstore.Store] implementation must pass.
// The factory is called once per subtest, with a fresh t,
// so each subtest gets its own backing file.
func TestStoreCompliance(t *testing.T, newFactory func(t *testing.T) StoreFactory) {
	t.Run("new store is empty", func(t *testing.T) {
		open := newFactory(t)
		s := open()
		defer s.Close()

		require.Zero(t, s.Len())
		_, err := s.Get(0)
		require.ErrorIs(t, err, sstore.ErrOutOfRange)
		require.ErrorIs(t, s.Put(0, shash.Sum([]byte("x"))), sstore.ErrOutOfRange)
	})

	t.Run("resize grows with zero slots", func(t *testing.T) {
		open := newFactory(t)
		s := open()
		defer s.Close()

		require.NoError(t, s.Resize(6))
		require.Equal(t, uint64(6), s.Len())
		for i := range uint64(6) {
			h, err := s.Get(i)
			require.NoError(t, err)
			require.True(t, h.IsZero())
		}

		_, err := s.Get(6)
		require.ErrorIs(t, err, sstore.ErrOutOfRange)
	})

	t.Run("put and get", func(t *testing.T) {
		open := newFactory(t)
		s := open()
		defer s.Close()

		require.NoError(t, s.Resize(4))
		h := shash.Sum([]byte("slot two"))
		require.NoError(t, s.Put(2, h))

		got, err := s.Get(2)
		require.NoError(t, err)
		require.Equal(t, h, got)

		got, err = s.Get(1)
		require.NoError(t, err)
		require.True(t, got.IsZero())
	})

	t.Run("resize preserves prefix", func(t *testing.T) {
		open := newFactory(t)
		s := open()
		defer s.Close()

		require.NoError(t, s.Resize(4))
		h0 := shash.Sum([]byte("zero"))
		h3 := shash.Sum([]byte("three"))
		require.NoError(t, s.Put(0, h0))
		require.NoError(t, s.Put(3, h3))

		require.NoError(t, s.Resize(10))
		got, err := s.Get(0)
		require.NoError(t, err)
		require.Equal(t, h0, got)
		got, err = s.Get(3)
		require.NoError(t, err)
		require.Equal(t, h3, got)

		require.NoError(t, s.Resize(2))
		require.Equal(t, uint64(2), s.Len())
		got, err = s.Get(0)
		require.NoError(t, err)
		require.Equal(t, h0, got)

		// Growing again after a shrink must not resurrect old values.
		require.NoError(t, s.Resize(4))
		got, err = s.Get(3)
		require.NoError(t, err)
		require.True(t, got.IsZero())
	})

	t.Run("persists across reopen", func(t *testing.T) {
		open := newFactory(t)
		s := open()

		require.NoError(t, s.Resize(8))
		h := shash.Sum([]byte("persist"))
		require.NoError(t, s.Put(5, h))
		require.NoError(t, s.Close())

		s = open()
		defer s.Close()
		require.Equal(t, uint64(8), s.Len())
		got, err := s.Get(5)
		require.NoError(t, err)
		require.Equal(t, h, got)
	})

	t.Run("closed store rejects use", func(t *testing.T) {
		open := newFactory(t)
		s := open()
		require.NoError(t, s.Close())

		_, err := s.Get(0)
		require.ErrorIs(t, err, sstore.ErrClosed)
		require.ErrorIs(t, s.Resize(1), sstore.ErrClosed)
		require.ErrorIs(t, s.Close(), sstore.ErrClosed)
	})
}
