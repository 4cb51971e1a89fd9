package swift

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/swift/sbin"
	"github.com/gordian-engine/swift/sbinmap"
	"github.com/gordian-engine/swift/shash"
	"github.com/gordian-engine/swift/sstore"
	"github.com/spf13/afero"
)

// Tree is the hash tree for a single file.
//
// Create one with [New].
// Until the tree's shape is known, [*Tree.Size] reports zero
// and only peak hashes are accepted.
type Tree struct {
	log     *slog.Logger
	metrics *Metrics

	fs             afero.Fs
	content        afero.File
	checkpointPath string

	hashes sstore.Store

	// The configured root, restored if a checkpoint load fails.
	configuredRoot shash.Hash

	rootHash  shash.Hash
	chunkSize uint64

	// Byte size and chunk count; both zero until the shape is known.
	size  uint64
	sizec uint64

	complete  uint64
	completec uint64

	// While the shape is unknown, these hold the candidate peaks
	// received so far.
	// Afterwards they are the exact peaks for sizec.
	peaks      []sbin.Bin
	peakHashes []shash.Hash

	// Leaves whose data is present and verified.
	ackOut sbinmap.Set

	// Bins, indexed by bin value, whose stored hashes are proven against the root.
	// A proven hash is only ever compared, never overwritten.
	// Not persisted; after a restart the acknowledgment set
	// protects the hashes of present chunks and their siblings.
	verified *bitset.BitSet
}

// New opens the content, hash, and checkpoint files described by cfg
// and brings the tree to the most complete state recoverable from them:
//
//   - If there is content and either cfg.CheckHashes is set,
//     the hash file is missing,
//     or the root is unknown with no checkpoint,
//     the whole content is hashed and the root is derived from it.
//   - Otherwise, if the hash file and a checkpoint both exist,
//     state is restored from the checkpoint;
//     if that fails, the content is hashed as above.
//   - Otherwise, progress is recovered from the hash file
//     by rehashing each chunk whose hash is known.
//     If the hash file does not hold valid peaks for the content size,
//     the tree stays shapeless, waiting for peak hashes from a peer.
//
// New returns an error only if a backing file cannot be opened, read, or resized.
func New(log *slog.Logger, cfg Config) (*Tree, error) {
	cfg.validate()
	cfg = cfg.withDefaults()

	hashExists, err := afero.Exists(cfg.Fs, cfg.HashPath)
	if err != nil {
		return nil, fmt.Errorf("failed to check for hash file: %w", err)
	}
	checkpointExists, err := afero.Exists(cfg.Fs, cfg.CheckpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to check for checkpoint file: %w", err)
	}

	content, err := cfg.Fs.OpenFile(cfg.ContentPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open content file: %w", err)
	}

	var hashes sstore.Store
	if cfg.MmapHashes {
		hashes, err = sstore.OpenMmap(cfg.HashPath)
	} else {
		hashes, err = sstore.OpenFile(cfg.Fs, cfg.HashPath)
	}
	if err != nil {
		_ = content.Close()
		return nil, err
	}

	t := &Tree{
		log:     log,
		metrics: cfg.Metrics,

		fs:             cfg.Fs,
		content:        content,
		checkpointPath: cfg.CheckpointPath,

		hashes: hashes,

		configuredRoot: cfg.RootHash,
		rootHash:       cfg.RootHash,
		chunkSize:      uint64(cfg.ChunkSize),

		ackOut:   cfg.AckSet,
		verified: bitset.New(0),
	}

	contentSize, err := t.contentSize()
	if err != nil {
		_ = t.Close()
		return nil, err
	}

	// Hashing was requested, or a missing hash file forces it.
	checkHashes := cfg.CheckHashes || !hashExists

	log.Info(
		"Opening hash tree",
		"content", cfg.ContentPath,
		"check_hashes_requested", cfg.CheckHashes,
		"check_hashes", checkHashes,
		"checkpoint_exists", checkpointExists,
	)

	switch {
	case contentSize > 0 && (checkHashes || (t.rootHash.IsZero() && !checkpointExists)):
		err = t.submit()

	case hashExists && checkpointExists && hashes.Len() > 0:
		if lerr := t.loadCheckpointFile(); lerr != nil {
			log.Warn(
				"Failed to restore from checkpoint; rehashing content",
				"err", lerr,
			)
			t.resetShape()
			err = t.submit()
		}

	default:
		err = t.recoverProgress()
	}

	if err != nil {
		t.degrade()
		_ = t.Close()
		return nil, err
	}

	t.metrics.setComplete(t.complete)
	return t, nil
}

// Close syncs the hash file and closes the backing files.
// The Tree must not be used after Close.
func (t *Tree) Close() error {
	return errors.Join(t.hashes.Close(), t.content.Close())
}

// Size returns the content size in bytes, or zero if the shape is unknown.
// Until the last chunk is received, the size is rounded up to a whole chunk.
func (t *Tree) Size() uint64 { return t.size }

// ChunkCount returns the number of chunks, or zero if the shape is unknown.
func (t *Tree) ChunkCount() uint64 { return t.sizec }

func (t *Tree) ChunkSize() uint64 { return t.chunkSize }

func (t *Tree) RootHash() shash.Hash { return t.rootHash }

// Complete returns the number of verified bytes held.
func (t *Tree) Complete() uint64 { return t.complete }

// CompleteChunks returns the number of verified chunks held.
func (t *Tree) CompleteChunks() uint64 { return t.completec }

// SeqComplete returns the length in bytes of the longest verified prefix of the content.
func (t *Tree) SeqComplete() uint64 {
	seqc := t.ackOut.FindEmpty().BaseOffset()
	if seqc >= t.sizec {
		return t.size
	}
	return seqc * t.chunkSize
}

// IsComplete reports whether every chunk is verified and present.
func (t *Tree) IsComplete() bool {
	if t.size == 0 || len(t.peaks) == 0 {
		return false
	}
	for _, p := range t.peaks {
		if !t.ackOut.IsFilled(p) {
			return false
		}
	}
	return true
}

// HasChunk reports whether the chunk at leaf is verified and present.
func (t *Tree) HasChunk(leaf sbin.Bin) bool {
	return t.ackOut.IsFilled(leaf)
}

// PeakCount returns the number of peaks.
// Before the shape is known, this counts the candidate peaks received so far.
func (t *Tree) PeakCount() int { return len(t.peaks) }

// Peak returns the i'th peak bin,
// or [sbin.None] if i is out of range.
func (t *Tree) Peak(i int) sbin.Bin {
	if i < 0 || i >= len(t.peaks) {
		return sbin.None
	}
	return t.peaks[i]
}

func (t *Tree) contentSize() (uint64, error) {
	st, err := t.content.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat content file: %w", err)
	}
	return uint64(st.Size()), nil
}

// hash returns the stored hash at b,
// or the zero hash if b is outside the hash store.
func (t *Tree) hash(b sbin.Bin) shash.Hash {
	h, err := t.hashes.Get(uint64(b))
	if err != nil {
		return shash.Zero
	}
	return h
}

func (t *Tree) putHash(b sbin.Bin, h shash.Hash) error {
	if err := t.hashes.Put(uint64(b), h); err != nil {
		return fmt.Errorf("failed to store hash for bin %s: %w", b, err)
	}
	return nil
}

func (t *Tree) isVerified(b sbin.Bin) bool {
	return t.verified.Test(uint(b))
}

// resetShape returns the tree to the shapeless state,
// discarding candidate peaks and verification caches.
func (t *Tree) resetShape() {
	t.size, t.sizec = 0, 0
	t.complete, t.completec = 0, 0
	t.peaks = t.peaks[:0]
	t.peakHashes = t.peakHashes[:0]
	t.ackOut.Clear()
	t.verified.ClearAll()
}

// degrade forces the shape back to unknown after a resource failure.
func (t *Tree) degrade() {
	t.size, t.sizec = 0, 0
	t.complete, t.completec = 0, 0
}
