package swift

import (
	"errors"
	"fmt"
	"math"

	"github.com/gordian-engine/swift/sbin"
	"github.com/gordian-engine/swift/shash"
)

// BinHash is a hash and the bin it belongs to.
type BinHash struct {
	Bin  sbin.Bin
	Hash shash.Hash
}

// OfferPeakHash offers one peak of the tree while the shape is unknown.
//
// Peaks must arrive in order: each one must start where the previous one ended,
// at a strictly lower layer.
// A peak that breaks that order discards the peaks received before it,
// so a peer may restart delivery from the first peak at any time.
//
// When the peaks received so far reduce to the root hash,
// the shape becomes known:
// the chunk count is the total width of the peaks,
// the content file is resized if it cannot hold that many chunks,
// and the hash file is sized to hold the full tree.
// OfferPeakHash then returns nil.
//
// If the peaks do not yet match the root, [ErrPeaksIncomplete] is returned,
// and the peak is retained for the next call.
// Peaks that match the root but describe more content than a file can hold
// are discarded with [ErrOutOfRange].
// A non-nil error wrapping neither sentinel indicates a resource failure;
// the tree stays shapeless in that case.
func (t *Tree) OfferPeakHash(b sbin.Bin, h shash.Hash) error {
	if t.size != 0 {
		return ErrShapeKnown
	}
	if b.IsNone() {
		return ErrOutOfRange
	}

	if n := len(t.peaks); n > 0 {
		last := t.peaks[n-1]
		if b.Layer() >= last.Layer() || b.BaseOffset() != last.BaseEnd() {
			t.log.Debug(
				"Peak out of order; restarting peak accumulation",
				"peak", b,
				"discarded", n,
			)
			t.peaks = t.peaks[:0]
			t.peakHashes = t.peakHashes[:0]
		}
	}
	t.peaks = append(t.peaks, b)
	t.peakHashes = append(t.peakHashes, h)

	root := deriveRoot(t.peaks, t.peakHashes)
	if root.IsZero() || root != t.rootHash {
		t.metrics.observeHash(resultUnproven)
		return ErrPeaksIncomplete
	}

	var sizec uint64
	for _, p := range t.peaks {
		sizec += p.BaseLength()
	}
	if !fitsFiles(sizec, t.chunkSize) {
		t.log.Debug("Rejecting peaks too large to store", "chunks", sizec)
		t.peaks = t.peaks[:0]
		t.peakHashes = t.peakHashes[:0]
		t.metrics.observeHash(resultRejected)
		return fmt.Errorf("%w: %d chunks of %d bytes", ErrOutOfRange, sizec, t.chunkSize)
	}
	size := sizec * t.chunkSize

	cur, err := t.contentSize()
	if err != nil {
		return err
	}
	if cur <= (sizec-1)*t.chunkSize || cur > size {
		t.log.Info("Resizing content file", "from", cur, "to", size)
		if err := t.content.Truncate(int64(size)); err != nil {
			t.log.Error("Failed to resize content file", "err", err)
			return fmt.Errorf("failed to resize content file: %w", err)
		}
	}

	if want := 2 * sizec; t.hashes.Len() != want {
		if err := t.hashes.Resize(want); err != nil {
			t.log.Error("Failed to resize hash file", "err", err)
			return fmt.Errorf("failed to resize hash file: %w", err)
		}
	}

	for i, p := range t.peaks {
		if err := t.putHash(p, t.peakHashes[i]); err != nil {
			return err
		}
		t.verified.Set(uint(p))
	}

	// Only commit the shape once every fallible step has succeeded.
	t.sizec = sizec
	t.size = size
	t.complete, t.completec = 0, 0
	t.metrics.observeHash(resultAccepted)

	t.log.Info(
		"Established tree shape from peak hashes",
		"peaks", len(t.peaks),
		"chunks", sizec,
		"size", size,
	)
	return nil
}

// PeakHashes returns the peaks and their hashes,
// in the order a peer should send them.
// It returns nil if the shape is unknown.
func (t *Tree) PeakHashes() []BinHash {
	if t.size == 0 {
		return nil
	}
	out := make([]BinHash, len(t.peaks))
	for i, p := range t.peaks {
		out[i] = BinHash{Bin: p, Hash: t.peakHashes[i]}
	}
	return out
}

// recoverPeakHashes reads the peak hashes implied by the current content size
// from the hash file, and offers them as if they came from a peer.
// It reports whether they established the shape.
func (t *Tree) recoverPeakHashes() (bool, error) {
	size, err := t.contentSize()
	if err != nil {
		return false, err
	}
	sizec := (size + t.chunkSize - 1) / t.chunkSize

	t.peaks = t.peaks[:0]
	t.peakHashes = t.peakHashes[:0]

	for _, p := range sbin.Peaks(sizec) {
		h, err := t.hashes.Get(uint64(p))
		if err != nil {
			// Hash file too short for this content.
			return false, nil
		}
		if err := t.OfferPeakHash(p, h); err != nil {
			if t.size == 0 && !errors.Is(err, ErrPeaksIncomplete) {
				return false, err
			}
		}
	}

	return t.size != 0, nil
}

// fitsFiles reports whether sizec chunks of chunkSize bytes,
// and the 2*sizec hash slots describing them,
// both fit in a file offset.
func fitsFiles(sizec, chunkSize uint64) bool {
	if sizec == 0 || sizec > math.MaxInt64/chunkSize {
		return false
	}
	return sizec <= math.MaxInt64/(2*shash.Size)
}

// maxLayer is the highest layer a derived root may reach.
// Peer-supplied peaks can claim any bin,
// so the climb is capped before bin arithmetic would overflow.
const maxLayer = 62

// deriveRoot reduces a list of peaks to the root hash they imply.
//
// Working from the last peak toward the first:
// a left child is paired with a zero hash for its missing right sibling;
// a right child must be paired with the previous peak as its left sibling.
// Any other arrangement is not a valid set of peaks,
// and deriveRoot returns the zero hash.
func deriveRoot(peaks []sbin.Bin, hashes []shash.Hash) shash.Hash {
	if len(peaks) == 0 {
		return shash.Zero
	}

	c := len(peaks) - 1
	p := peaks[c]
	h := hashes[c]
	c--

	// This loop is bounded by the tree height:
	// every iteration moves p up one layer.
	for c >= 0 {
		if p.Layer() >= maxLayer {
			return shash.Zero
		}
		if p.IsLeft() {
			p = p.Parent()
			h = shash.Combine(h, shash.Zero)
			continue
		}

		if peaks[c] != p.Sibling() {
			return shash.Zero
		}
		h = shash.Combine(hashes[c], h)
		p = p.Parent()
		c--
	}
	return h
}
