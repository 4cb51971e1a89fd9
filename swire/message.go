// Package swire frames the hash and chunk messages peers exchange,
// and feeds decoded messages into a hash tree.
//
// Congestion control, datagram handling, and peer selection
// are left to the transport; swire only covers the
// (bin, hash) and (bin, data) tuples that the transport hands to the tree.
//
// Every message starts with a one-byte type and a big-endian uint64 bin.
// A hash message follows with the 20-byte digest.
// A data message follows with a big-endian uint32 length and the chunk bytes.
package swire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gordian-engine/swift/sbin"
	"github.com/gordian-engine/swift/shash"
)

// Message type bytes.
const (
	TypeData byte = 0x01
	TypeHash byte = 0x04
)

// ErrUnknownType is wrapped by [ReadMessage] for an unrecognized type byte.
var ErrUnknownType = errors.New("unknown message type")

// ErrDataTooLarge is wrapped by [ReadMessage]
// when a data message declares more bytes than the caller allows.
var ErrDataTooLarge = errors.New("data message too large")

// Message is either a [HashMessage] or a [DataMessage].
type Message interface {
	// AppendTo appends the encoded message to dst.
	AppendTo(dst []byte) []byte

	isMessage()
}

// HashMessage carries the hash of a single bin.
type HashMessage struct {
	Bin  sbin.Bin
	Hash shash.Hash
}

func (HashMessage) isMessage() {}

func (m HashMessage) AppendTo(dst []byte) []byte {
	dst = append(dst, TypeHash)
	dst = binary.BigEndian.AppendUint64(dst, uint64(m.Bin))
	return append(dst, m.Hash[:]...)
}

// DataMessage carries the content of a single chunk.
type DataMessage struct {
	Bin  sbin.Bin
	Data []byte
}

func (DataMessage) isMessage() {}

func (m DataMessage) AppendTo(dst []byte) []byte {
	dst = append(dst, TypeData)
	dst = binary.BigEndian.AppendUint64(dst, uint64(m.Bin))
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(m.Data)))
	return append(dst, m.Data...)
}

// WriteMessage encodes m to w in a single write.
func WriteMessage(w io.Writer, m Message) error {
	if _, err := w.Write(m.AppendTo(nil)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// ReadMessage decodes one message from r.
// Data messages longer than maxData bytes are rejected
// before their payload is read.
//
// ReadMessage returns [io.EOF] only when r is exhausted
// exactly at a message boundary.
func ReadMessage(r io.Reader, maxData uint32) (Message, error) {
	var hdr [9]byte
	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		// Plain EOF here is a clean end of stream.
		return nil, err
	}
	if _, err := io.ReadFull(r, hdr[1:]); err != nil {
		return nil, fmt.Errorf("failed to read message bin: %w", noEOF(err))
	}
	b := sbin.Bin(binary.BigEndian.Uint64(hdr[1:]))

	switch hdr[0] {
	case TypeHash:
		var m HashMessage
		m.Bin = b
		if _, err := io.ReadFull(r, m.Hash[:]); err != nil {
			return nil, fmt.Errorf("failed to read hash: %w", noEOF(err))
		}
		return m, nil

	case TypeData:
		var szBuf [4]byte
		if _, err := io.ReadFull(r, szBuf[:]); err != nil {
			return nil, fmt.Errorf("failed to read data length: %w", noEOF(err))
		}
		sz := binary.BigEndian.Uint32(szBuf[:])
		if sz > maxData {
			return nil, fmt.Errorf("%w: %d bytes exceeds limit %d", ErrDataTooLarge, sz, maxData)
		}
		m := DataMessage{Bin: b, Data: make([]byte, sz)}
		if _, err := io.ReadFull(r, m.Data); err != nil {
			return nil, fmt.Errorf("failed to read data: %w", noEOF(err))
		}
		return m, nil

	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnknownType, hdr[0])
	}
}

// noEOF converts EOF in the middle of a message to ErrUnexpectedEOF.
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
