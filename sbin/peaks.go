package sbin

import "math/bits"

// Peaks returns the minimal set of maximal bins
// that exactly tile chunks [0, chunkCount),
// ordered from the first chunk to the last.
// The layers of the returned bins are strictly decreasing.
//
// Peaks returns nil when chunkCount is zero.
func Peaks(chunkCount uint64) []Bin {
	if chunkCount == 0 {
		return nil
	}

	out := make([]Bin, 0, bits.OnesCount64(chunkCount))
	var offset uint64
	for l := bits.Len64(chunkCount) - 1; l >= 0; l-- {
		w := uint64(1) << l
		if chunkCount&w == 0 {
			continue
		}
		out = append(out, New(uint8(l), offset>>l))
		offset += w
	}
	return out
}

// PeakFor returns the first peak that contains b,
// or [None] if b is outside every peak.
func PeakFor(b Bin, peaks []Bin) Bin {
	for _, p := range peaks {
		if p.Contains(b) {
			return p
		}
	}
	return None
}
