package shash_test

import (
	"crypto/sha1"
	"strings"
	"testing"

	"github.com/gordian-engine/swift/shash"
	"github.com/stretchr/testify/require"
)

func TestSum_matchesSHA1(t *testing.T) {
	t.Parallel()

	want := sha1.Sum([]byte("AB"))
	require.Equal(t, shash.Hash(want), shash.Sum([]byte("AB")))
}

func TestCombine(t *testing.T) {
	t.Parallel()

	l := shash.Sum([]byte("AB"))
	r := shash.Sum([]byte("CD"))

	want := sha1.Sum(append(l[:], r[:]...))
	require.Equal(t, shash.Hash(want), shash.Combine(l, r))

	// Order matters.
	require.NotEqual(t, shash.Combine(l, r), shash.Combine(r, l))

	// Two zero children never produce the zero sentinel.
	require.False(t, shash.Combine(shash.Zero, shash.Zero).IsZero())
}

func TestHex_roundTrip(t *testing.T) {
	t.Parallel()

	h := shash.Sum([]byte("hello"))
	s := h.Hex()
	require.Len(t, s, 40)
	require.Equal(t, s, strings.ToLower(s))

	got, err := shash.ParseHex(s)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.Equal(t, h, shash.FromHex(s))
}

func TestParseHex_malformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"abc",
		strings.Repeat("z", 40),
		strings.Repeat("a", 41),
	} {
		_, err := shash.ParseHex(in)
		require.ErrorIs(t, err, shash.ErrBadHex)

		// The sentinel-returning variant collapses failure into Zero.
		require.True(t, shash.FromHex(in).IsZero())
	}
}

func TestFromBytes(t *testing.T) {
	t.Parallel()

	h := shash.Sum([]byte("x"))
	got, ok := shash.FromBytes(h[:])
	require.True(t, ok)
	require.Equal(t, h, got)

	_, ok = shash.FromBytes(h[:5])
	require.False(t, ok)
}
