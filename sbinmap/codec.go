package sbinmap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/golang/snappy"
)

const (
	rawEncoding    byte = 0
	snappyEncoding byte = 1
)

// maxBits bounds the declared length of a serialized binmap,
// so that a corrupt header cannot trigger a huge allocation.
// 2^40 leaves is far beyond any realistic file at any chunk size.
const maxBits = 1 << 40

// ErrCorrupt is wrapped by errors from [*Binmap.ReadFrom]
// when the stream is readable but its contents are invalid.
var ErrCorrupt = errors.New("corrupt binmap encoding")

// WriteTo writes m to w.
//
// The encoding is a one-byte header selecting raw or snappy,
// then the bit length as a big-endian uint64,
// then the bitset's words:
// either raw little-endian uint64s,
// or a big-endian uint32 length followed by the snappy-compressed words,
// whichever is smaller.
func (m *Binmap) WriteTo(w io.Writer) (int64, error) {
	words := m.bs.Words()
	nBits := m.bs.Len()

	// Only serialize the words that hold bits inside the length.
	nWords := (nBits + 63) / 64
	words = words[:nWords]

	wordBuf := make([]byte, 8*len(words))
	for i, word := range words {
		// We use big endian in most encodings for human readability,
		// but the words are little endian to match the machine order
		// on anything we are likely to run on.
		binary.LittleEndian.PutUint64(wordBuf[i*8:], word)
	}

	encBuf := snappy.Encode(nil, wordBuf)

	var hdr [9]byte
	binary.BigEndian.PutUint64(hdr[1:], uint64(nBits))

	var n int64
	if len(wordBuf) <= len(encBuf)+4 {
		hdr[0] = rawEncoding
		c, err := w.Write(hdr[:])
		n += int64(c)
		if err != nil {
			return n, fmt.Errorf("failed to write raw binmap header: %w", err)
		}
		c, err = w.Write(wordBuf)
		n += int64(c)
		if err != nil {
			return n, fmt.Errorf("failed to write raw binmap: %w", err)
		}
		return n, nil
	}

	hdr[0] = snappyEncoding
	c, err := w.Write(hdr[:])
	n += int64(c)
	if err != nil {
		return n, fmt.Errorf("failed to write snappy binmap header: %w", err)
	}

	var szBuf [4]byte
	binary.BigEndian.PutUint32(szBuf[:], uint32(len(encBuf)))
	c, err = w.Write(szBuf[:])
	n += int64(c)
	if err != nil {
		return n, fmt.Errorf("failed to write snappy binmap length: %w", err)
	}

	c, err = w.Write(encBuf)
	n += int64(c)
	if err != nil {
		return n, fmt.Errorf("failed to write snappy binmap: %w", err)
	}
	return n, nil
}

// ReadFrom replaces the contents of m with a binmap read from r,
// in the format written by [*Binmap.WriteTo].
// On error, m is left unchanged.
func (m *Binmap) ReadFrom(r io.Reader) (int64, error) {
	var n int64

	var hdr [9]byte
	c, err := io.ReadFull(r, hdr[:])
	n += int64(c)
	if err != nil {
		return n, fmt.Errorf("failed to read binmap header: %w", err)
	}

	nBits := binary.BigEndian.Uint64(hdr[1:])
	if nBits > maxBits {
		return n, fmt.Errorf("%w: declared length %d too large", ErrCorrupt, nBits)
	}
	nBytes := 8 * int((nBits+63)/64)

	var wordBuf []byte
	switch hdr[0] {
	case rawEncoding:
		wordBuf = make([]byte, nBytes)
		c, err := io.ReadFull(r, wordBuf)
		n += int64(c)
		if err != nil {
			return n, fmt.Errorf("failed to read raw binmap: %w", err)
		}

	case snappyEncoding:
		var szBuf [4]byte
		c, err := io.ReadFull(r, szBuf[:])
		n += int64(c)
		if err != nil {
			return n, fmt.Errorf("failed to read snappy binmap length: %w", err)
		}
		encSz := binary.BigEndian.Uint32(szBuf[:])
		if int(encSz) > snappy.MaxEncodedLen(nBytes) {
			return n, fmt.Errorf(
				"%w: snappy length %d exceeds bound for %d bytes", ErrCorrupt, encSz, nBytes,
			)
		}

		encBuf := make([]byte, encSz)
		c, err = io.ReadFull(r, encBuf)
		n += int64(c)
		if err != nil {
			return n, fmt.Errorf("failed to read snappy binmap: %w", err)
		}

		decSz, err := snappy.DecodedLen(encBuf)
		if err != nil {
			return n, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if decSz != nBytes {
			return n, fmt.Errorf(
				"%w: decoded size of %d bytes but expected %d", ErrCorrupt, decSz, nBytes,
			)
		}
		wordBuf, err = snappy.Decode(nil, encBuf)
		if err != nil {
			return n, fmt.Errorf("%w: failed to decode snappy binmap: %w", ErrCorrupt, err)
		}

	default:
		return n, fmt.Errorf("%w: unknown header byte 0x%x", ErrCorrupt, hdr[0])
	}

	words := make([]uint64, nBytes/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(wordBuf[i*8:])
	}
	m.bs = bitset.FromWithLength(uint(nBits), words)
	return n, nil
}
