package swift

import (
	"errors"
	"fmt"
)

// ErrShapeUnknown is returned when an operation needs the file's shape
// (its chunk count and size), but the shape has not been established yet.
var ErrShapeUnknown = errors.New("tree shape not yet known")

// ErrShapeKnown is returned from [*Tree.OfferPeakHash]
// after the shape has already been established.
var ErrShapeKnown = errors.New("tree shape already known")

// ErrOutOfRange is returned when a bin is not covered by any peak.
var ErrOutOfRange = errors.New("bin outside the tree")

// ErrHashMismatch is returned when an offered hash or chunk
// does not verify against the root hash.
var ErrHashMismatch = errors.New("hash does not verify against root")

// ErrHashUnproven is returned from [*Tree.OfferHash]
// for a non-leaf hash that has been recorded
// but cannot be proven until a leaf beneath it is verified.
var ErrHashUnproven = errors.New("hash recorded but not yet provable")

// ErrPeaksIncomplete is returned from [*Tree.OfferPeakHash]
// when the peaks received so far do not yet reduce to the root hash.
var ErrPeaksIncomplete = errors.New("peak hashes do not yet match root")

// ErrNotLeaf is returned from [*Tree.OfferData] for a non-leaf bin.
var ErrNotLeaf = errors.New("data offered for non-leaf bin")

// ErrBadChunkLength is returned from [*Tree.OfferData]
// when the data length is not the chunk size,
// or is short for any chunk but the last.
var ErrBadChunkLength = errors.New("bad chunk length")

// ErrNotPresent is returned when reading a chunk that has not been verified.
var ErrNotPresent = errors.New("chunk not present")

// CheckpointError describes a malformed or inconsistent checkpoint.
type CheckpointError struct {
	// Which text field was being read, e.g. "root hash".
	// Empty if the failure was in the trailing acknowledgment set.
	Field string

	Err error
}

func (e *CheckpointError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("bad checkpoint: %v", e.Err)
	}
	return fmt.Sprintf("bad checkpoint field %q: %v", e.Field, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}
