package swift_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/gordian-engine/swift"
	"github.com/gordian-engine/swift/internal/stest"
	"github.com/gordian-engine/swift/sbin"
	"github.com/gordian-engine/swift/shash"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestTree_SaveCheckpoint_format(t *testing.T) {
	t.Parallel()

	tr := newSeeder(t, afero.NewMemMapFs(), "/c", []byte("ABCDE"), 2)
	defer tr.Close()

	var buf bytes.Buffer
	require.NoError(t, tr.SaveCheckpoint(&buf))

	want := fmt.Sprintf(
		"version 1\nroot hash %s\nchunk size 2\ncomplete 5\ncompletec 3\n",
		tr.RootHash().Hex(),
	)
	require.True(t, strings.HasPrefix(buf.String(), want), "got %q", buf.String())

	// The acknowledgment set follows the text lines directly.
	require.Greater(t, buf.Len(), len(want))
}

// partialDownload returns a leecher's filesystem after it has received
// the listed chunks of content from a seeder, and the seeder's root.
func partialDownload(t *testing.T, content []byte, chunkSize uint32, leaves []uint64, checkpoint bool) (afero.Fs, shash.Hash) {
	t.Helper()

	src := newSeeder(t, afero.NewMemMapFs(), "/src", content, chunkSize)
	defer src.Close()

	dst, fs := newLeecher(t, src.RootHash(), chunkSize)
	bootstrap(t, src, dst)
	for _, i := range leaves {
		require.NoError(t, transfer(t, src, dst, sbin.Leaf(i)))
	}

	if checkpoint {
		require.NoError(t, dst.WriteCheckpointFile())
	}
	require.NoError(t, dst.Close())

	return fs, src.RootHash()
}

func reopen(t *testing.T, fs afero.Fs, root shash.Hash, chunkSize uint32) *swift.Tree {
	t.Helper()

	tr, err := swift.New(stest.NewLogger(t), swift.Config{
		Fs:          fs,
		ContentPath: "/dl/content",
		RootHash:    root,
		ChunkSize:   chunkSize,
	})
	require.NoError(t, err)
	return tr
}

func TestNew_restoresCheckpoint(t *testing.T) {
	t.Parallel()

	const chunkSize = 8
	content := stest.RandomDataForTest(t, 75)
	have := []uint64{0, 3, 4, 9}

	fs, root := partialDownload(t, content, chunkSize, have, true)

	tr := reopen(t, fs, root, chunkSize)
	defer tr.Close()

	require.Equal(t, root, tr.RootHash())
	require.Equal(t, uint64(10), tr.ChunkCount())
	require.Equal(t, uint64(4), tr.CompleteChunks())

	// The last chunk arrived, so the size is exact.
	require.Equal(t, uint64(75), tr.Size())
	require.Equal(t, uint64(3*8+3), tr.Complete())
	require.Equal(t, uint64(8), tr.SeqComplete())

	for i := range uint64(10) {
		require.Equal(t, i == 0 || i == 3 || i == 4 || i == 9, tr.HasChunk(sbin.Leaf(i)), "chunk %d", i)
	}

	// A restored chunk's hash cannot be replaced.
	require.ErrorIs(t, tr.OfferHash(sbin.Leaf(3), shash.Sum([]byte("forged"))), swift.ErrHashMismatch)

	// Finish the download from a fresh seeder.
	src := newSeeder(t, afero.NewMemMapFs(), "/src", content, chunkSize)
	defer src.Close()
	for i := range uint64(10) {
		require.NoError(t, transfer(t, src, tr, sbin.Leaf(i)))
	}
	require.True(t, tr.IsComplete())

	got, err := afero.ReadFile(fs, "/dl/content")
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestNew_recoversWithoutCheckpoint(t *testing.T) {
	t.Parallel()

	const chunkSize = 8
	content := stest.RandomDataForTest(t, 80)
	have := []uint64{1, 2, 6}

	fs, root := partialDownload(t, content, chunkSize, have, false)

	tr := reopen(t, fs, root, chunkSize)
	defer tr.Close()

	require.Equal(t, uint64(10), tr.ChunkCount())
	require.Equal(t, uint64(3), tr.CompleteChunks())
	require.Equal(t, uint64(24), tr.Complete())
	require.Zero(t, tr.SeqComplete())

	for _, i := range have {
		require.True(t, tr.HasChunk(sbin.Leaf(i)), "chunk %d", i)
	}

	// Chunks whose hashes arrived only as uncles are still zeros on disk.
	require.False(t, tr.HasChunk(sbin.Leaf(0)))
	require.False(t, tr.HasChunk(sbin.Leaf(3)))
	require.False(t, tr.HasChunk(sbin.Leaf(7)))
}

func TestNew_recoversZeroChunk(t *testing.T) {
	t.Parallel()

	// A chunk that really is all zeros is recognized by its hash.
	const chunkSize = 8
	content := stest.ZeroChunkWith(t, 32, chunkSize, 1)

	fs, root := partialDownload(t, content, chunkSize, []uint64{0, 1}, false)

	tr := reopen(t, fs, root, chunkSize)
	defer tr.Close()

	require.True(t, tr.HasChunk(sbin.Leaf(0)))
	require.True(t, tr.HasChunk(sbin.Leaf(1)))
	require.Equal(t, uint64(16), tr.SeqComplete())
}

func TestNew_waitsForPeers(t *testing.T) {
	t.Parallel()

	// With a root and nothing on disk,
	// the tree stays shapeless until a peer sends peaks.
	fs := afero.NewMemMapFs()
	tr, err := swift.New(stest.NewLogger(t), swift.Config{
		Fs:          fs,
		ContentPath: "/dl/content",
		RootHash:    shash.Sum([]byte("some root")),
	})
	require.NoError(t, err)
	defer tr.Close()

	require.Zero(t, tr.Size())
	require.Zero(t, tr.PeakCount())

	_, err = tr.UncleHashes(sbin.Leaf(0))
	require.ErrorIs(t, err, swift.ErrShapeUnknown)
}

func TestNew_corruptCheckpointRehashes(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	content := stest.RandomDataForTest(t, 100)

	tr := newSeeder(t, fs, "/c", content, 16)
	root := tr.RootHash()
	require.NoError(t, tr.WriteCheckpointFile())
	require.NoError(t, tr.Close())

	require.NoError(t, afero.WriteFile(fs, "/c.mbinmap", []byte("version 1\nroot hash nope\n"), 0o644))

	tr, err := swift.New(stest.NewLogger(t), swift.Config{
		Fs:          fs,
		ContentPath: "/c",
		RootHash:    root,
		ChunkSize:   16,
	})
	require.NoError(t, err)
	defer tr.Close()

	require.Equal(t, root, tr.RootHash())
	require.True(t, tr.IsComplete())
	require.Equal(t, uint64(100), tr.Complete())
}

func TestNew_checkHashesIgnoresCheckpoint(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	content := stest.RandomDataForTest(t, 40)

	tr := newSeeder(t, fs, "/c", content, 8)
	root := tr.RootHash()
	require.NoError(t, tr.WriteCheckpointFile())
	require.NoError(t, tr.Close())

	// Change the content behind the checkpoint's back.
	content[0] ^= 0xff
	require.NoError(t, afero.WriteFile(fs, "/c", content, 0o644))

	tr, err := swift.New(stest.NewLogger(t), swift.Config{
		Fs:          fs,
		ContentPath: "/c",
		ChunkSize:   8,
		CheckHashes: true,
	})
	require.NoError(t, err)
	defer tr.Close()

	require.NotEqual(t, root, tr.RootHash())
	require.True(t, tr.IsComplete())
}

func TestTree_LoadCheckpoint_errors(t *testing.T) {
	t.Parallel()

	tr := newSeeder(t, afero.NewMemMapFs(), "/c", []byte("ABCDEFGH"), 2)
	defer tr.Close()
	root := tr.RootHash()

	for _, tc := range []struct {
		name  string
		in    string
		field string
	}{
		{name: "empty", in: "", field: "version"},
		{name: "version", in: "version 2\n", field: "version"},
		{name: "no version prefix", in: "versio 1\n", field: "version"},
		{name: "bad root", in: "version 1\nroot hash xyz\n", field: "root hash"},
		{
			name:  "zero chunk size",
			in:    "version 1\nroot hash " + root.Hex() + "\nchunk size 0\n",
			field: "chunk size",
		},
		{
			name:  "bad complete",
			in:    "version 1\nroot hash " + root.Hex() + "\nchunk size 2\ncomplete -1\n",
			field: "complete",
		},
		{
			name:  "missing acks",
			in:    "version 1\nroot hash " + root.Hex() + "\nchunk size 2\ncomplete 8\ncompletec 4\n",
			field: "",
		},
	} {
		err := tr.LoadCheckpoint(strings.NewReader(tc.in))
		var cerr *swift.CheckpointError
		require.ErrorAs(t, err, &cerr, tc.name)
		require.Equal(t, tc.field, cerr.Field, tc.name)
	}

	// Malformed checkpoints are rejected before any state changes.
	require.True(t, tr.IsComplete())
	require.Equal(t, root, tr.RootHash())
}

func TestTree_LoadCheckpoint_otherRoot(t *testing.T) {
	t.Parallel()

	src := newSeeder(t, afero.NewMemMapFs(), "/c", []byte("ABCDEFGH"), 2)
	defer src.Close()

	var buf bytes.Buffer
	require.NoError(t, src.SaveCheckpoint(&buf))

	// A tree expecting a different root refuses the checkpoint.
	dst, _ := newLeecher(t, shash.Sum([]byte("other")), 2)
	defer dst.Close()

	err := dst.LoadCheckpoint(&buf)
	var cerr *swift.CheckpointError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "root hash", cerr.Field)
	require.Equal(t, shash.Sum([]byte("other")), dst.RootHash())
}

func TestTree_LoadCheckpoint_hashFileMismatch(t *testing.T) {
	t.Parallel()

	src := newSeeder(t, afero.NewMemMapFs(), "/c", []byte("ABCDEFGH"), 2)
	defer src.Close()

	var buf bytes.Buffer
	require.NoError(t, src.SaveCheckpoint(&buf))

	// The checkpoint is well formed, but this tree's hash file is empty.
	dst, _ := newLeecher(t, src.RootHash(), 2)
	defer dst.Close()

	require.Error(t, dst.LoadCheckpoint(&buf))
	require.Zero(t, dst.Size())
	require.False(t, dst.HasChunk(sbin.Leaf(0)))
	require.Equal(t, src.RootHash(), dst.RootHash())

	// Still usable: a peer can bootstrap it.
	bootstrap(t, src, dst)
	require.NoError(t, transfer(t, src, dst, sbin.Leaf(0)))
}

func TestTree_LoadCheckpoint_roundTrip(t *testing.T) {
	t.Parallel()

	tr := newSeeder(t, afero.NewMemMapFs(), "/c", stest.RandomDataForTest(t, 99), 10)
	defer tr.Close()

	var buf bytes.Buffer
	require.NoError(t, tr.SaveCheckpoint(&buf))
	require.NoError(t, tr.LoadCheckpoint(&buf))

	require.True(t, tr.IsComplete())
	require.Equal(t, uint64(99), tr.Size())
	require.Equal(t, uint64(99), tr.Complete())
	require.Equal(t, uint64(10), tr.CompleteChunks())
	require.Equal(t, uint64(99), tr.SeqComplete())
}

func TestNew_restoredChunksKeepProof(t *testing.T) {
	t.Parallel()

	// Four chunks under a single peak; only the first is downloaded.
	const chunkSize = 8
	content := stest.RandomDataForTest(t, 32)
	forged := shash.Sum([]byte("forged"))

	for _, checkpoint := range []bool{true, false} {
		t.Run(fmt.Sprintf("checkpoint=%t", checkpoint), func(t *testing.T) {
			t.Parallel()

			fs, root := partialDownload(t, content, chunkSize, []uint64{0}, checkpoint)

			tr := reopen(t, fs, root, chunkSize)
			defer tr.Close()
			require.True(t, tr.HasChunk(sbin.Leaf(0)))

			want, err := tr.UncleHashes(sbin.Leaf(0))
			require.NoError(t, err)

			// Both uncles of leaf 0 were proven when it arrived.
			require.ErrorIs(t, tr.OfferHash(sbin.Leaf(1), forged), swift.ErrHashMismatch)
			require.ErrorIs(t, tr.OfferHash(sbin.New(1, 1), forged), swift.ErrHashMismatch)

			// Climbing from a missing chunk stops at the proven uncle
			// without overwriting it.
			require.ErrorIs(t, tr.OfferHash(sbin.Leaf(3), forged), swift.ErrHashMismatch)
			require.ErrorIs(t, tr.OfferData(sbin.Leaf(2), []byte("forged!!")), swift.ErrHashMismatch)

			got, err := tr.UncleHashes(sbin.Leaf(0))
			require.NoError(t, err)
			require.Equal(t, want, got)

			// A new peer can still fetch leaf 0 from the restored tree.
			dst, _ := newLeecher(t, root, chunkSize)
			defer dst.Close()
			bootstrap(t, tr, dst)
			require.NoError(t, transfer(t, tr, dst, sbin.Leaf(0)))
		})
	}
}

// splitCheckpoint returns the five text lines of a saved checkpoint
// and the serialized acknowledgment set after them.
func splitCheckpoint(t *testing.T, b []byte) (string, []byte) {
	t.Helper()

	n := 0
	for i, c := range b {
		if c != '\n' {
			continue
		}
		n++
		if n == 5 {
			return string(b[:i+1]), b[i+1:]
		}
	}
	t.Fatalf("checkpoint has fewer than five lines: %q", b)
	return "", nil
}

func TestTree_LoadCheckpoint_inconsistent(t *testing.T) {
	t.Parallel()

	content := []byte("ABCDEFGHI")

	var buf bytes.Buffer
	src := newSeeder(t, afero.NewMemMapFs(), "/c", content, 2)
	require.NoError(t, src.SaveCheckpoint(&buf))
	header, acks := splitCheckpoint(t, buf.Bytes())
	require.NoError(t, src.Close())

	// Twice as many acknowledged chunks as the content holds.
	buf.Reset()
	big := newSeeder(t, afero.NewMemMapFs(), "/c", bytes.Repeat(content, 2), 2)
	require.NoError(t, big.SaveCheckpoint(&buf))
	_, bigAcks := splitCheckpoint(t, buf.Bytes())
	require.NoError(t, big.Close())

	for _, tc := range []struct {
		name   string
		header string
		acks   []byte
		field  string
	}{
		{
			name:   "completec",
			header: strings.Replace(header, "completec 5", "completec 4", 1),
			acks:   acks,
			field:  "completec",
		},
		{
			name:   "complete",
			header: strings.Replace(header, "complete 9\n", "complete 10\n", 1),
			acks:   acks,
			field:  "complete",
		},
		{
			name:   "acks past end",
			header: strings.Replace(header, "completec 5", "completec 9", 1),
			acks:   bigAcks,
			field:  "",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tr := newSeeder(t, afero.NewMemMapFs(), "/c", content, 2)
			defer tr.Close()

			in := append([]byte(tc.header), tc.acks...)
			err := tr.LoadCheckpoint(bytes.NewReader(in))
			var cerr *swift.CheckpointError
			require.ErrorAs(t, err, &cerr)
			require.Equal(t, tc.field, cerr.Field)

			require.Zero(t, tr.Size())
			require.False(t, tr.HasChunk(sbin.Leaf(0)))
		})
	}
}

func TestNew_inconsistentCheckpointRehashes(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	content := stest.RandomDataForTest(t, 40)

	tr := newSeeder(t, fs, "/c", content, 8)
	root := tr.RootHash()
	require.NoError(t, tr.WriteCheckpointFile())
	require.NoError(t, tr.Close())

	b, err := afero.ReadFile(fs, "/c.mbinmap")
	require.NoError(t, err)
	header, acks := splitCheckpoint(t, b)
	header = strings.Replace(header, "complete 40\n", "complete 32\n", 1)
	require.NoError(t, afero.WriteFile(fs, "/c.mbinmap", append([]byte(header), acks...), 0o644))

	tr, err = swift.New(stest.NewLogger(t), swift.Config{
		Fs:          fs,
		ContentPath: "/c",
		RootHash:    root,
		ChunkSize:   8,
	})
	require.NoError(t, err)
	defer tr.Close()

	require.True(t, tr.IsComplete())
	require.Equal(t, uint64(40), tr.Complete())
}
