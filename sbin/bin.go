// Package sbin implements the bin numbering scheme
// for nodes of the implicit binary tree over file chunks.
//
// A bin is a (layer, offset) pair packed into a single integer.
// Layer 0 is a single chunk.
// A bin at layer L covers 2^L consecutive chunks,
// starting at chunk offset*2^L.
//
// The packing is offset*2^(L+1) + 2^L - 1,
// so the layer is the number of trailing one bits,
// leaf i is 2*i,
// and a parent is always numerically between its two children:
//
//	      3
//	  1       5
//	0   2   4   6
package sbin

import (
	"fmt"
	"math/bits"
)

// Bin identifies a node in the chunk tree.
type Bin uint64

// None is the bin value meaning "no bin".
// It is returned by lookups that fail, such as [PeakFor].
const None Bin = ^Bin(0)

// New returns the bin at the given layer and layer offset.
func New(layer uint8, offset uint64) Bin {
	if layer >= 63 {
		panic(fmt.Errorf("BUG: layer %d out of range", layer))
	}
	return Bin(offset<<(layer+1) | (uint64(1)<<layer - 1))
}

// Leaf returns the layer-0 bin for chunk i.
func Leaf(i uint64) Bin {
	return Bin(i << 1)
}

func (b Bin) IsNone() bool {
	return b == None
}

// Layer returns the height of b; leaves are at layer 0.
func (b Bin) Layer() uint8 {
	return uint8(bits.TrailingZeros64(^uint64(b)))
}

// LayerOffset returns the index of b among the bins of its own layer.
func (b Bin) LayerOffset() uint64 {
	return uint64(b) >> (b.Layer() + 1)
}

// IsLeaf reports whether b is at layer 0.
func (b Bin) IsLeaf() bool {
	return b&1 == 0
}

// BaseOffset returns the index of the first chunk covered by b.
func (b Bin) BaseOffset() uint64 {
	return uint64(b&(b+1)) >> 1
}

// BaseLength returns the number of chunks covered by b.
func (b Bin) BaseLength() uint64 {
	return uint64(1) << b.Layer()
}

// BaseEnd returns one past the last chunk covered by b.
func (b Bin) BaseEnd() uint64 {
	return b.BaseOffset() + b.BaseLength()
}

// Parent returns the bin one layer up that covers b.
func (b Bin) Parent() Bin {
	l := b.Layer()
	return (b | Bin(1)<<l) &^ (Bin(1) << (l + 1))
}

// Sibling returns the other child of b's parent.
func (b Bin) Sibling() Bin {
	return b ^ Bin(1)<<(b.Layer()+1)
}

// IsLeft reports whether b is the left child of its parent.
func (b Bin) IsLeft() bool {
	return b&(Bin(1)<<(b.Layer()+1)) == 0
}

// IsRight reports whether b is the right child of its parent.
func (b Bin) IsRight() bool {
	return !b.IsLeft()
}

// Left returns the left child of b.
// Calling Left on a leaf panics.
func (b Bin) Left() Bin {
	l := b.Layer()
	if l == 0 {
		panic(fmt.Errorf("BUG: Left called on leaf bin %d", b))
	}
	return b - Bin(1)<<(l-1)
}

// Right returns the right child of b.
// Calling Right on a leaf panics.
func (b Bin) Right() Bin {
	l := b.Layer()
	if l == 0 {
		panic(fmt.Errorf("BUG: Right called on leaf bin %d", b))
	}
	return b + Bin(1)<<(l-1)
}

// Contains reports whether every chunk covered by other
// is also covered by b.
// A bin contains itself.
func (b Bin) Contains(other Bin) bool {
	if b.IsNone() || other.IsNone() {
		return false
	}
	return b.BaseOffset() <= other.BaseOffset() && other.BaseEnd() <= b.BaseEnd()
}

func (b Bin) String() string {
	if b.IsNone() {
		return "(none)"
	}
	return fmt.Sprintf("(%d,%d)", b.Layer(), b.LayerOffset())
}
