package sstore

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gordian-engine/swift/shash"
	"github.com/spf13/afero"
)

// FileStore is a [Store] held in an owned memory buffer
// and persisted to a file on an [afero.Fs].
//
// Writes go to the buffer and reach the file on [*FileStore.Sync],
// [*FileStore.Resize], or [*FileStore.Close].
type FileStore struct {
	f   afero.File
	buf []byte

	dirty  bool
	closed bool
}

var _ Store = (*FileStore)(nil)

// OpenFile opens or creates the hash file at path on fs
// and reads its existing contents into memory.
// A trailing partial record is ignored.
func OpenFile(fs afero.Fs, path string) (*FileStore, error) {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open hash file %q: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat hash file %q: %w", path, err)
	}

	buf := make([]byte, slotsForSize(st.Size())*shash.Size)
	if len(buf) > 0 {
		if _, err := f.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
			_ = f.Close()
			return nil, fmt.Errorf("failed to read hash file %q: %w", path, err)
		}
	}

	return &FileStore{f: f, buf: buf}, nil
}

func (s *FileStore) Len() uint64 {
	return uint64(len(s.buf)) / shash.Size
}

func (s *FileStore) Get(i uint64) (shash.Hash, error) {
	if s.closed {
		return shash.Zero, ErrClosed
	}
	if n := s.Len(); i >= n {
		return shash.Zero, outOfRange(i, n)
	}
	h, _ := shash.FromBytes(s.buf[i*shash.Size : (i+1)*shash.Size])
	return h, nil
}

func (s *FileStore) Put(i uint64, h shash.Hash) error {
	if s.closed {
		return ErrClosed
	}
	if n := s.Len(); i >= n {
		return outOfRange(i, n)
	}
	copy(s.buf[i*shash.Size:], h[:])
	s.dirty = true
	return nil
}

func (s *FileStore) Resize(slots uint64) error {
	if s.closed {
		return ErrClosed
	}

	sz := slots * shash.Size
	if err := s.f.Truncate(int64(sz)); err != nil {
		return fmt.Errorf("failed to resize hash file to %d slots: %w", slots, err)
	}

	if uint64(cap(s.buf)) >= sz {
		old := len(s.buf)
		s.buf = s.buf[:sz]
		if int(sz) > old {
			clear(s.buf[old:])
		}
	} else {
		nb := make([]byte, sz)
		copy(nb, s.buf)
		s.buf = nb
	}

	// The truncate zeroed or dropped the tail on disk,
	// but any unsynced writes below the new length still need flushing.
	return s.Sync()
}

func (s *FileStore) Sync() error {
	if s.closed {
		return ErrClosed
	}
	if !s.dirty {
		return nil
	}
	if len(s.buf) > 0 {
		if _, err := s.f.WriteAt(s.buf, 0); err != nil {
			return fmt.Errorf("failed to write hash file: %w", err)
		}
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync hash file: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *FileStore) Close() error {
	if s.closed {
		return ErrClosed
	}
	err := s.Sync()
	s.closed = true
	s.buf = nil
	return errors.Join(err, s.f.Close())
}
