package swift

import (
	"errors"
	"fmt"
	"io"

	"github.com/gordian-engine/swift/sbin"
)

// UncleHashes returns the hashes a receiver needs, beyond the peaks,
// to verify the chunk at leaf:
// the sibling of the leaf and of each of its ancestors below the peak.
// They are ordered from the top of the tree down,
// which is the order a peer should send them in.
//
// The returned hashes are whatever the tree holds;
// callers should only serve them for chunks they have ([*Tree.HasChunk]).
func (t *Tree) UncleHashes(leaf sbin.Bin) ([]BinHash, error) {
	if t.size == 0 {
		return nil, ErrShapeUnknown
	}
	if !leaf.IsLeaf() {
		return nil, ErrNotLeaf
	}
	peak := sbin.PeakFor(leaf, t.peaks)
	if peak.IsNone() {
		return nil, ErrOutOfRange
	}

	out := make([]BinHash, 0, peak.Layer())
	for p := leaf; p != peak; p = p.Parent() {
		s := p.Sibling()
		out = append(out, BinHash{Bin: s, Hash: t.hash(s)})
	}

	// Collected bottom-up; deliver top-down.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ReadChunk returns the content of the verified chunk at leaf.
// It returns [ErrNotPresent] if that chunk has not been verified.
func (t *Tree) ReadChunk(leaf sbin.Bin) ([]byte, error) {
	if t.size == 0 {
		return nil, ErrShapeUnknown
	}
	if !leaf.IsLeaf() {
		return nil, ErrNotLeaf
	}
	i := leaf.BaseOffset()
	if i >= t.sizec {
		return nil, ErrOutOfRange
	}
	if !t.ackOut.IsFilled(leaf) {
		return nil, ErrNotPresent
	}

	off := i * t.chunkSize
	n := min(t.chunkSize, t.size-off)
	buf := make([]byte, n)
	if _, err := t.content.ReadAt(buf, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read chunk %d: %w", i, err)
	}
	return buf, nil
}
