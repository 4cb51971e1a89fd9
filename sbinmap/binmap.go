// Package sbinmap contains the acknowledgment set:
// a record of which leaf chunks are present,
// queried in terms of bins.
//
// The [Set] interface is the contract the hash tree depends on.
// [Binmap] is the bitset-backed implementation.
package sbinmap

import (
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/swift/sbin"
)

// Set is a set of acknowledged leaves, addressed by bin.
type Set interface {
	// Set marks every leaf under b.
	Set(b sbin.Bin)

	// IsFilled reports whether every leaf under b is marked.
	IsFilled(b sbin.Bin) bool

	// IsEmpty reports whether no leaf under b is marked.
	IsEmpty(b sbin.Bin) bool

	// FindEmpty returns the largest unmarked bin
	// starting at the lowest unmarked leaf.
	// The returned bin's base offset is the length
	// of the longest fully marked prefix.
	FindEmpty() sbin.Bin

	// Clear unmarks everything.
	Clear()

	// Serialization for checkpoints.
	io.WriterTo
	io.ReaderFrom
}

// Binmap is a [Set] backed by a bitset with one bit per leaf.
// The zero value is not usable; call [New].
type Binmap struct {
	bs *bitset.BitSet
}

var _ Set = (*Binmap)(nil)

// New returns an empty Binmap.
func New() *Binmap {
	return &Binmap{bs: bitset.New(0)}
}

func (m *Binmap) Set(b sbin.Bin) {
	if b.IsNone() {
		return
	}
	start := b.BaseOffset()
	end := b.BaseEnd()
	if start+1 == end {
		m.bs.Set(uint(start))
		return
	}

	// FlipRange would toggle bits that were already set,
	// so only flip the runs of clear bits inside the range.
	for i, ok := m.bs.NextClear(uint(start)); ok && uint64(i) < end; i, ok = m.bs.NextClear(i) {
		runEnd := uint(end)
		if j, ok := m.bs.NextSet(i); ok && j < runEnd {
			runEnd = j
		}
		m.bs.FlipRange(i, runEnd)
	}

	// NextClear only reports bits inside the current length,
	// so anything past the old length still needs to be set.
	if l := uint64(m.bs.Len()); l < end {
		m.bs.FlipRange(uint(max(l, start)), uint(end))
	}
}

func (m *Binmap) IsFilled(b sbin.Bin) bool {
	if b.IsNone() {
		return false
	}
	end := b.BaseEnd()
	if end > uint64(m.bs.Len()) {
		return false
	}
	return uint64(m.bs.OnesBetween(uint(b.BaseOffset()), uint(end))) == b.BaseLength()
}

func (m *Binmap) IsEmpty(b sbin.Bin) bool {
	if b.IsNone() {
		return true
	}
	start := b.BaseOffset()
	end := min(b.BaseEnd(), uint64(m.bs.Len()))
	if start >= end {
		return true
	}
	return m.bs.OnesBetween(uint(start), uint(end)) == 0
}

func (m *Binmap) FindEmpty() sbin.Bin {
	first, ok := m.bs.NextClear(0)
	if !ok {
		// Everything within the current length is set.
		return sbin.Leaf(uint64(m.bs.Len()))
	}

	// Grow the bin while it stays aligned and entirely unset.
	// Bins are bounded by the current length,
	// because the universe past it is unknown.
	b := sbin.Leaf(uint64(first))
	for b.Layer() < 62 {
		if !b.IsLeft() {
			break
		}
		p := b.Parent()
		if p.BaseEnd() > uint64(m.bs.Len()) || !m.IsEmpty(p) {
			break
		}
		b = p
	}
	return b
}

func (m *Binmap) Clear() {
	m.bs = bitset.New(0)
}

// Count returns the number of marked leaves.
func (m *Binmap) Count() uint64 {
	return uint64(m.bs.Count())
}

// CountBelow returns the number of marked leaves before leaf offset n.
func (m *Binmap) CountBelow(n uint64) uint64 {
	n = min(n, uint64(m.bs.Len()))
	if n == 0 {
		return 0
	}
	return uint64(m.bs.OnesBetween(0, uint(n)))
}

// Equal reports whether m and other mark exactly the same leaves.
func (m *Binmap) Equal(other *Binmap) bool {
	if m.bs.Count() != other.bs.Count() {
		return false
	}
	for i, ok := m.bs.NextSet(0); ok; i, ok = m.bs.NextSet(i + 1) {
		if !other.bs.Test(i) {
			return false
		}
	}
	return true
}

func (m *Binmap) String() string {
	return m.bs.String()
}
