package swire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gordian-engine/swift"
	"github.com/gordian-engine/swift/sbin"
	"github.com/gordian-engine/swift/shash"
)

// Sink receives decoded messages.
// Both [*swift.Tree] and [*swift.Synchronized] satisfy Sink.
type Sink interface {
	OfferHash(b sbin.Bin, h shash.Hash) error
	OfferData(b sbin.Bin, data []byte) error
}

// Dispatch delivers m to the matching Sink method.
func Dispatch(m Message, s Sink) error {
	switch m := m.(type) {
	case HashMessage:
		return s.OfferHash(m.Bin, m.Hash)
	case DataMessage:
		return s.OfferData(m.Bin, m.Data)
	default:
		panic(fmt.Errorf("BUG: unhandled message type %T", m))
	}
}

// ReceiveStats summarizes a call to [Receive].
type ReceiveStats struct {
	Hashes, Chunks        int
	RejectedChunks        int
	UnprovenOrStaleHashes int
}

// Receive reads messages from r and dispatches them to s
// until r is exhausted or ctx is canceled.
//
// A rejected hash is routine:
// sibling hashes are stored before they can be proven,
// and peaks arrive before they add up to the root.
// A rejected chunk is logged and counted, and the stream continues.
// Receive returns an error only if the stream itself is malformed,
// or s reports a failure other than a verification result.
func Receive(
	ctx context.Context,
	log *slog.Logger,
	r io.Reader,
	maxData uint32,
	s Sink,
) (ReceiveStats, error) {
	var st ReceiveStats
	for {
		if err := context.Cause(ctx); err != nil {
			return st, err
		}

		m, err := ReadMessage(r, maxData)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return st, nil
			}
			return st, err
		}

		err = Dispatch(m, s)
		switch m.(type) {
		case HashMessage:
			st.Hashes++
			if err != nil {
				if !isVerificationResult(err) {
					return st, err
				}
				st.UnprovenOrStaleHashes++
			}
		case DataMessage:
			st.Chunks++
			if err != nil {
				if !isVerificationResult(err) {
					return st, err
				}
				st.RejectedChunks++
				log.Info("Rejected chunk from peer", "err", err)
			}
		}
	}
}

// isVerificationResult reports whether err is one of the tree's
// ordinary rejections, as opposed to a resource failure.
func isVerificationResult(err error) bool {
	for _, target := range []error{
		swift.ErrShapeUnknown,
		swift.ErrShapeKnown,
		swift.ErrOutOfRange,
		swift.ErrHashMismatch,
		swift.ErrHashUnproven,
		swift.ErrPeaksIncomplete,
		swift.ErrNotLeaf,
		swift.ErrBadChunkLength,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
