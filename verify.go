package swift

import (
	"fmt"

	"github.com/gordian-engine/swift/sbin"
	"github.com/gordian-engine/swift/shash"
)

// OfferHash offers the hash of bin b, as received from a peer.
//
// Before the shape is known, this is the same as [*Tree.OfferPeakHash].
//
// Afterwards, a hash for a peak, or for any bin already proven,
// is accepted only if it equals the stored hash.
// Any other non-leaf hash is stored for later use
// and [ErrHashUnproven] is returned:
// a lone internal hash cannot be checked until a leaf beneath it arrives.
// A leaf hash is checked by combining it with stored sibling hashes
// up to the nearest proven ancestor.
// The result must equal that ancestor's hash, or [ErrHashMismatch] is returned.
//
// A nil return means the hash is proven against the root.
func (t *Tree) OfferHash(b sbin.Bin, h shash.Hash) error {
	if t.size == 0 {
		return t.OfferPeakHash(b, h)
	}

	peak := sbin.PeakFor(b, t.peaks)
	if peak.IsNone() {
		t.metrics.observeHash(resultRejected)
		return ErrOutOfRange
	}

	if t.isProven(b, peak) {
		// Already proven; just compare.
		if h != t.hash(b) {
			t.metrics.observeHash(resultRejected)
			return ErrHashMismatch
		}
		t.metrics.observeHash(resultAccepted)
		return nil
	}

	if err := t.putHash(b, h); err != nil {
		return err
	}
	if !b.IsLeaf() {
		t.metrics.observeHash(resultUnproven)
		return ErrHashUnproven
	}

	ok, err := t.climb(b, peak, h)
	if err != nil {
		return err
	}
	if !ok {
		t.log.Debug("Leaf hash failed verification", "bin", b)
		t.metrics.observeHash(resultRejected)
		return ErrHashMismatch
	}

	t.markVerified(b, peak)
	t.metrics.observeHash(resultAccepted)
	return nil
}

// climb recomputes ancestors of leaf from the stored hashes
// until it reaches an ancestor that is already proven,
// and reports whether the recomputed hash matches it.
func (t *Tree) climb(leaf, peak sbin.Bin, h shash.Hash) (bool, error) {
	p := leaf
	up := h

	// Bounded by the peak's layer.
	for !t.isProven(p, peak) {
		if err := t.putHash(p, up); err != nil {
			return false, err
		}
		p = p.Parent()

		l, r := t.hash(p.Left()), t.hash(p.Right())

		// A zero child means that hash was never supplied.
		// Inside a peak every subtree is full, so no real hash is zero,
		// and p's own stored hash is unproven here:
		// comparing against it would accept whatever a peer planted there.
		if l.IsZero() || r.IsZero() {
			return false, nil
		}
		up = shash.Combine(l, r)
	}

	// p is now the peak or an already proven ancestor.
	return up == t.hash(p), nil
}

// isProven reports whether the stored hash at b, beneath peak,
// is already proven against the root.
// Every hash on the path of a present chunk, and every sibling of that path,
// was used to prove the chunk; those are exactly the bins whose parent
// covers a present chunk.
// The verified cache adds hashes proven without data.
func (t *Tree) isProven(b, peak sbin.Bin) bool {
	if b == peak || t.ackOut.IsFilled(b) || t.isVerified(b) {
		return true
	}
	return !t.ackOut.IsEmpty(b.Parent())
}

// markVerified records that every hash used to prove leaf is now proven:
// the leaf's ancestors up to the peak, and the sibling of each.
func (t *Tree) markVerified(leaf, peak sbin.Bin) {
	for p := leaf; p != peak; p = p.Parent() {
		t.verified.Set(uint(p))
		t.verified.Set(uint(p.Sibling()))
	}
	t.verified.Set(uint(peak))
}

// OfferData offers the content of the chunk at leaf b.
//
// The chunk must be exactly the chunk size,
// except for the final chunk, which may be shorter.
// The data's hash is verified as with [*Tree.OfferHash];
// on success the data is written to the content file
// and the completion counters advance.
// Data for a chunk that is already present is accepted without rewriting.
//
// On any error the chunk is not acknowledged and the counters are unchanged.
// A failure after verification may leave the chunk's bytes in the content file;
// they are ignored until the chunk is acknowledged.
func (t *Tree) OfferData(b sbin.Bin, data []byte) error {
	if t.size == 0 {
		t.metrics.observeData(resultRejected)
		return ErrShapeUnknown
	}
	if !b.IsLeaf() {
		t.metrics.observeData(resultRejected)
		return ErrNotLeaf
	}

	last := sbin.Leaf(t.sizec - 1)
	n := uint64(len(data))
	if n == 0 || n > t.chunkSize || (n < t.chunkSize && b != last) {
		t.metrics.observeData(resultRejected)
		return fmt.Errorf("%w: %d bytes for chunk %d", ErrBadChunkLength, n, b.BaseOffset())
	}

	if t.ackOut.IsFilled(b) {
		// Duplicate delivery.
		t.metrics.observeData(resultAccepted)
		return nil
	}

	if sbin.PeakFor(b, t.peaks).IsNone() {
		t.metrics.observeData(resultRejected)
		return ErrOutOfRange
	}

	if err := t.OfferHash(b, shash.Sum(data)); err != nil {
		t.log.Debug("Rejecting chunk that failed verification", "bin", b, "err", err)
		t.metrics.observeData(resultRejected)
		return err
	}

	if _, err := t.content.WriteAt(data, int64(b.BaseOffset()*t.chunkSize)); err != nil {
		t.log.Error("Failed to write chunk", "bin", b, "err", err)
		return fmt.Errorf("failed to write chunk %d: %w", b.BaseOffset(), err)
	}

	if b == last {
		size := (t.sizec-1)*t.chunkSize + n
		cur, err := t.contentSize()
		if err != nil {
			return err
		}
		if cur != size {
			if err := t.content.Truncate(int64(size)); err != nil {
				t.log.Error("Failed to trim content file to exact size", "err", err)
				return fmt.Errorf("failed to resize content file: %w", err)
			}
		}
		t.size = size
	}

	t.ackOut.Set(b)
	t.complete += n
	t.completec++

	t.metrics.observeData(resultAccepted)
	t.metrics.setComplete(t.complete)
	return nil
}
