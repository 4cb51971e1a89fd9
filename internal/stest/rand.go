package stest

import (
	"crypto/sha256"
	"math/rand/v2"
	"testing"
)

// RandomDataForTest returns sz pseudorandom bytes
// seeded from the test name, so a failing case reproduces.
func RandomDataForTest(t testing.TB, sz int) []byte {
	seed := sha256.Sum256([]byte(t.Name()))
	chacha := rand.NewChaCha8(seed)

	out := make([]byte, sz)
	if _, err := chacha.Read(out); err != nil {
		panic(err)
	}
	return out
}

// ZeroChunkWith returns sz bytes of content where every chunk
// of chunkSize bytes listed in zero is all zeros
// and the rest is pseudorandom.
func ZeroChunkWith(t testing.TB, sz, chunkSize int, zero ...int) []byte {
	out := RandomDataForTest(t, sz)
	for _, c := range zero {
		start := c * chunkSize
		end := min(start+chunkSize, sz)
		clear(out[start:end])
	}
	return out
}
