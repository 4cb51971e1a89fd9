package swift

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gordian-engine/swift/sbin"
	"github.com/gordian-engine/swift/shash"
)

// submit hashes the entire local content,
// fills in every node of the hash tree,
// and derives the root hash from the result.
//
// Local content is trusted, so every chunk is acknowledged immediately.
func (t *Tree) submit() error {
	size, err := t.contentSize()
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}

	sizec := (size + t.chunkSize - 1) / t.chunkSize

	t.log.Info(
		"Hashing full content",
		"size", size,
		"chunks", sizec,
		"chunk_size", t.chunkSize,
	)

	// Start from an all-zero hash array,
	// so no stale hash from an earlier shape survives.
	if err := t.hashes.Resize(0); err != nil {
		return fmt.Errorf("failed to clear hash file: %w", err)
	}
	if err := t.hashes.Resize(2 * sizec); err != nil {
		return fmt.Errorf("failed to size hash file: %w", err)
	}

	t.ackOut.Clear()
	t.verified.ClearAll()
	t.complete, t.completec = 0, 0

	buf := make([]byte, t.chunkSize)
	for i := range sizec {
		n, err := t.content.ReadAt(buf, int64(i*t.chunkSize))
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read chunk %d: %w", i, err)
		}
		if uint64(n) < t.chunkSize && i != sizec-1 {
			return fmt.Errorf(
				"short read of %d bytes for chunk %d of %d; content changed while hashing",
				n, i, sizec,
			)
		}

		pos := sbin.Leaf(i)
		if err := t.putHash(pos, shash.Sum(buf[:n])); err != nil {
			return err
		}
		t.ackOut.Set(pos)

		// Each right child completes its parent,
		// so climb as long as we keep finishing right children.
		for pos.IsRight() {
			pos = pos.Parent()
			h := shash.Combine(t.hash(pos.Left()), t.hash(pos.Right()))
			if err := t.putHash(pos, h); err != nil {
				return err
			}
		}

		t.complete += uint64(n)
		t.completec++
	}

	t.size = size
	t.sizec = sizec
	t.peaks = sbin.Peaks(sizec)
	t.peakHashes = t.peakHashes[:0]
	for _, p := range t.peaks {
		t.peakHashes = append(t.peakHashes, t.hash(p))
	}

	root := deriveRoot(t.peaks, t.peakHashes)
	if !t.rootHash.IsZero() && root != t.rootHash {
		t.log.Warn(
			"Local content does not match configured root hash; using content root",
			"configured", t.rootHash,
			"computed", root,
		)
	}
	t.rootHash = root

	return nil
}

// recoverProgress rebuilds the acknowledgment set
// from an existing hash file and whatever content is already on disk,
// without any network activity.
//
// It first recovers the peak hashes against the known root.
// Then it rehashes each chunk whose hash is known
// and offers that hash for verification.
// All-zero chunks whose stored hash is not the hash of zeros
// are assumed to be not yet downloaded.
func (t *Tree) recoverProgress() error {
	ok, err := t.recoverPeakHashes()
	if err != nil {
		return err
	}
	if !ok {
		t.log.Info("No valid peak hashes on disk; waiting for peers")
		return nil
	}

	t.log.Info(
		"Recovering progress from hash file",
		"chunks", t.sizec,
		"chunk_size", t.chunkSize,
	)

	zeroChunk := make([]byte, t.chunkSize)
	zeroHash := shash.Sum(zeroChunk)

	buf := make([]byte, t.chunkSize)
	for i := range t.sizec {
		pos := sbin.Leaf(i)
		if t.hash(pos).IsZero() {
			continue
		}

		n, err := t.content.ReadAt(buf, int64(i*t.chunkSize))
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read chunk %d: %w", i, err)
		}
		last := i == t.sizec-1
		if uint64(n) != t.chunkSize && !last {
			break
		}
		if n == 0 {
			continue
		}
		chunk := buf[:n]

		if uint64(n) == t.chunkSize && bytes.Equal(chunk, zeroChunk) && t.hash(pos) != zeroHash {
			continue
		}

		if err := t.OfferHash(pos, shash.Sum(chunk)); err != nil {
			continue
		}

		t.ackOut.Set(pos)
		t.completec++
		t.complete += uint64(n)
		if last && uint64(n) != t.chunkSize {
			t.size = (t.sizec-1)*t.chunkSize + uint64(n)
		}
	}

	t.log.Info(
		"Recovered progress",
		"complete", t.complete,
		"complete_chunks", t.completec,
	)
	return nil
}
