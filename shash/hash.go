// Package shash contains the content digest used throughout the hash tree.
//
// A [Hash] is a fixed-size SHA-1 digest.
// The all-zero value, [Zero], is reserved to mean "unknown";
// the hash store holds zero bytes for every slot that has not been filled.
package shash

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size is the size in bytes of a [Hash].
const Size = sha1.Size

// Hash is a SHA-1 digest.
// It is a value type; copies are independent.
type Hash [Size]byte

// Zero is the sentinel hash meaning "not yet known".
var Zero Hash

// ErrBadHex is wrapped by errors returned from [ParseHex].
var ErrBadHex = errors.New("malformed hex digest")

// Sum returns the digest of b.
func Sum(b []byte) Hash {
	return Hash(sha1.Sum(b))
}

// Combine returns the digest of the concatenation of left and right,
// which is how every internal node of the tree is derived from its children.
func Combine(left, right Hash) Hash {
	var buf [2 * Size]byte
	copy(buf[:Size], left[:])
	copy(buf[Size:], right[:])
	return Hash(sha1.Sum(buf[:]))
}

// IsZero reports whether h is the [Zero] sentinel.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Hex returns the lowercase, 40-character hex encoding of h.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

// ParseHex decodes a 40-character hex string.
// Unlike [FromHex], a malformed input is reported as an error,
// so that a parse failure is never confused with an unset slot.
func ParseHex(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*Size {
		return Zero, fmt.Errorf(
			"%w: expected %d characters, got %d", ErrBadHex, 2*Size, len(s),
		)
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return Zero, fmt.Errorf("%w: %w", ErrBadHex, err)
	}
	return h, nil
}

// FromHex is like [ParseHex] but returns [Zero] on malformed input.
func FromHex(s string) Hash {
	h, err := ParseHex(s)
	if err != nil {
		return Zero
	}
	return h
}

// FromBytes copies exactly [Size] bytes from b into a Hash.
// It reports false if b has the wrong length.
func FromBytes(b []byte) (Hash, bool) {
	var h Hash
	if len(b) != Size {
		return Zero, false
	}
	copy(h[:], b)
	return h, true
}
