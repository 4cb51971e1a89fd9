// Package sstore contains backing stores for the hash tree's digest array.
//
// A [Store] is a flat array of [shash.Hash] slots indexed by bin value.
// Slots that have never been written hold [shash.Zero].
// All indexed access is bounds checked;
// reads and writes past [Store.Len] fail with [ErrOutOfRange]
// instead of touching memory outside the array.
package sstore

import (
	"errors"
	"fmt"

	"github.com/gordian-engine/swift/shash"
)

// Store is a resizable array of hashes.
//
// Implementations are not safe for concurrent use.
type Store interface {
	// Len returns the number of slots.
	Len() uint64

	// Get returns the hash in slot i.
	Get(i uint64) (shash.Hash, error)

	// Put overwrites slot i.
	Put(i uint64, h shash.Hash) error

	// Resize changes the number of slots.
	// Existing slots below the new length keep their values;
	// new slots are zero.
	Resize(slots uint64) error

	// Sync flushes any buffered writes to the backing file.
	Sync() error

	// Close syncs and releases the backing file.
	// The Store must not be used after Close.
	Close() error
}

// ErrOutOfRange is returned for an index at or past [Store.Len].
var ErrOutOfRange = errors.New("hash slot out of range")

// ErrClosed is returned from any operation on a closed Store.
var ErrClosed = errors.New("hash store closed")

func outOfRange(i, n uint64) error {
	return fmt.Errorf("%w: slot %d, length %d", ErrOutOfRange, i, n)
}

func slotsForSize(size int64) uint64 {
	if size <= 0 {
		return 0
	}
	return uint64(size) / shash.Size
}
