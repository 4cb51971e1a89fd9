package swire

import (
	"fmt"
	"io"

	"github.com/gordian-engine/swift"
	"github.com/gordian-engine/swift/sbin"
)

// Source is the seeding side of a tree.
// [*swift.Tree] satisfies Source.
type Source interface {
	PeakHashes() []swift.BinHash
	UncleHashes(leaf sbin.Bin) ([]swift.BinHash, error)
	ReadChunk(leaf sbin.Bin) ([]byte, error)
}

// WritePeaks writes a hash message for every peak of src, in order.
// A receiver that knows only the root learns the tree shape from these.
func WritePeaks(w io.Writer, src Source) error {
	peaks := src.PeakHashes()
	if len(peaks) == 0 {
		return swift.ErrShapeUnknown
	}
	var buf []byte
	for _, p := range peaks {
		buf = HashMessage{Bin: p.Bin, Hash: p.Hash}.AppendTo(buf)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write peak hashes: %w", err)
	}
	return nil
}

// WriteChunk writes the uncle hashes for leaf, top down,
// followed by the chunk data.
func WriteChunk(w io.Writer, src Source, leaf sbin.Bin) error {
	uncles, err := src.UncleHashes(leaf)
	if err != nil {
		return fmt.Errorf("failed to get uncle hashes for %s: %w", leaf, err)
	}
	data, err := src.ReadChunk(leaf)
	if err != nil {
		return fmt.Errorf("failed to read chunk %s: %w", leaf, err)
	}

	var buf []byte
	for _, u := range uncles {
		buf = HashMessage{Bin: u.Bin, Hash: u.Hash}.AppendTo(buf)
	}
	buf = DataMessage{Bin: leaf, Data: data}.AppendTo(buf)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write chunk %s: %w", leaf, err)
	}
	return nil
}
