package sstore_test

import (
	"testing"

	"github.com/gordian-engine/swift/shash"
	"github.com/gordian-engine/swift/sstore"
	"github.com/gordian-engine/swift/sstore/sstoretest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestFileStore_compliance(t *testing.T) {
	t.Parallel()

	sstoretest.TestStoreCompliance(t, func(t *testing.T) sstoretest.StoreFactory {
		fs := afero.NewMemMapFs()
		return func() sstore.Store {
			s, err := sstore.OpenFile(fs, "/data/file.mhash")
			require.NoError(t, err)
			return s
		}
	})
}

func TestFileStore_ignoresPartialRecord(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	h := shash.Sum([]byte("whole"))
	in := append(h[:], 1, 2, 3)
	require.NoError(t, afero.WriteFile(fs, "/x.mhash", in, 0o644))

	s, err := sstore.OpenFile(fs, "/x.mhash")
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, uint64(1), s.Len())
	got, err := s.Get(0)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestFileStore_syncWritesFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	s, err := sstore.OpenFile(fs, "/y.mhash")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Resize(2))
	h := shash.Sum([]byte("synced"))
	require.NoError(t, s.Put(1, h))
	require.NoError(t, s.Sync())

	raw, err := afero.ReadFile(fs, "/y.mhash")
	require.NoError(t, err)
	require.Len(t, raw, 2*shash.Size)
	require.Equal(t, h[:], raw[shash.Size:])
}
