package sstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/gordian-engine/swift/shash"
)

// MmapStore is a [Store] backed by a memory-mapped file on the OS filesystem.
// Resizing unmaps, truncates, and remaps the file.
type MmapStore struct {
	f *os.File
	m mmap.MMap

	closed bool
}

var _ Store = (*MmapStore)(nil)

// OpenMmap opens or creates the hash file at path and maps it.
func OpenMmap(path string) (*MmapStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open hash file %q: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat hash file %q: %w", path, err)
	}

	s := &MmapStore{f: f}
	if err := s.mapSlots(slotsForSize(st.Size())); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// mapSlots maps the first n slots of the file.
// The file must already be at least that large.
func (s *MmapStore) mapSlots(n uint64) error {
	if n == 0 {
		// Zero-length mappings are not allowed.
		s.m = nil
		return nil
	}
	m, err := mmap.MapRegion(s.f, int(n*shash.Size), mmap.RDWR, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to map %d hash slots: %w", n, err)
	}
	s.m = m
	return nil
}

func (s *MmapStore) Len() uint64 {
	return uint64(len(s.m)) / shash.Size
}

func (s *MmapStore) Get(i uint64) (shash.Hash, error) {
	if s.closed {
		return shash.Zero, ErrClosed
	}
	if n := s.Len(); i >= n {
		return shash.Zero, outOfRange(i, n)
	}
	h, _ := shash.FromBytes(s.m[i*shash.Size : (i+1)*shash.Size])
	return h, nil
}

func (s *MmapStore) Put(i uint64, h shash.Hash) error {
	if s.closed {
		return ErrClosed
	}
	if n := s.Len(); i >= n {
		return outOfRange(i, n)
	}
	copy(s.m[i*shash.Size:], h[:])
	return nil
}

func (s *MmapStore) Resize(slots uint64) error {
	if s.closed {
		return ErrClosed
	}

	if s.m != nil {
		if err := s.m.Unmap(); err != nil {
			return fmt.Errorf("failed to unmap hash file before resize: %w", err)
		}
		s.m = nil
	}

	if err := s.f.Truncate(int64(slots * shash.Size)); err != nil {
		return fmt.Errorf("failed to resize hash file to %d slots: %w", slots, err)
	}

	return s.mapSlots(slots)
}

func (s *MmapStore) Sync() error {
	if s.closed {
		return ErrClosed
	}
	if s.m == nil {
		return nil
	}
	if err := s.m.Flush(); err != nil {
		return fmt.Errorf("failed to flush hash mapping: %w", err)
	}
	return nil
}

func (s *MmapStore) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	var err error
	if s.m != nil {
		err = s.m.Unmap()
		s.m = nil
	}
	return errors.Join(err, s.f.Close())
}
