package audio

import (
	"encoding/binary"
	"math"
)

// DecodePCM converts 16-bit little-endian PCM bytes into normalized float32
// samples in [-1, 1].
func DecodePCM(data []byte) []float32 {
	return decodePCM(data)
}

func decodePCM(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / math.MaxInt16
	}
	return samples
}
