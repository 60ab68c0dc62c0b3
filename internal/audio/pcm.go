package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// BytesPerSample is the width of a PCM16 sample.
const BytesPerSample = 2

// BytesToInt16 decodes little-endian PCM16 into samples. A trailing odd
// byte is ignored.
func BytesToInt16(p []byte) []int16 {
	out := make([]int16, len(p)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p[i*2:]))
	}
	return out
}

// Int16ToBytes encodes samples as little-endian PCM16.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// RMS returns the root-mean-square level of a PCM16 block, normalised to 0..1.
func RMS(p []byte) float64 {
	n := len(p) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(p[i*2:]))) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Duration returns how long len(p) bytes of mono PCM16 last at rate.
func Duration(p []byte, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	samples := len(p) / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

// BytesFor returns the number of mono PCM16 bytes covering d at rate.
func BytesFor(d time.Duration, rate int) int {
	samples := int(d * time.Duration(rate) / time.Second)
	return samples * BytesPerSample
}
