package swift_test

import (
	"testing"

	"github.com/gordian-engine/swift"
	"github.com/gordian-engine/swift/internal/stest"
	"github.com/gordian-engine/swift/sbin"
	"github.com/gordian-engine/swift/shash"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// newSeeder writes content to path on fs and opens a tree over it,
// which hashes the content and derives the root.
func newSeeder(t *testing.T, fs afero.Fs, path string, content []byte, chunkSize uint32) *swift.Tree {
	t.Helper()

	require.NoError(t, afero.WriteFile(fs, path, content, 0o644))
	tr, err := swift.New(stest.NewLogger(t), swift.Config{
		Fs:          fs,
		ContentPath: path,
		ChunkSize:   chunkSize,
	})
	require.NoError(t, err)
	return tr
}

// newLeecher opens an empty tree on a fresh filesystem,
// expecting content with the given root.
func newLeecher(t *testing.T, root shash.Hash, chunkSize uint32) (*swift.Tree, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	tr, err := swift.New(stest.NewLogger(t), swift.Config{
		Fs:          fs,
		ContentPath: "/dl/content",
		RootHash:    root,
		ChunkSize:   chunkSize,
	})
	require.NoError(t, err)
	require.Zero(t, tr.Size())
	return tr, fs
}

// bootstrap offers every peak of src to dst,
// asserting that only the final one establishes the shape.
func bootstrap(t *testing.T, src, dst *swift.Tree) {
	t.Helper()

	peaks := src.PeakHashes()
	require.NotEmpty(t, peaks)
	for i, p := range peaks {
		err := dst.OfferPeakHash(p.Bin, p.Hash)
		if i == len(peaks)-1 {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, swift.ErrPeaksIncomplete)
		}
	}

	require.Equal(t, src.ChunkCount(), dst.ChunkCount())
	require.Equal(t, src.PeakCount(), dst.PeakCount())
}

// transfer sends the uncle hashes and data for leaf from src to dst,
// the way a peer would, and returns the result of offering the data.
// Rejections of the individual uncle hashes are expected and ignored.
func transfer(t *testing.T, src, dst *swift.Tree, leaf sbin.Bin) error {
	t.Helper()

	uncles, err := src.UncleHashes(leaf)
	require.NoError(t, err)
	for _, u := range uncles {
		_ = dst.OfferHash(u.Bin, u.Hash)
	}

	data, err := src.ReadChunk(leaf)
	require.NoError(t, err)
	return dst.OfferData(leaf, data)
}
