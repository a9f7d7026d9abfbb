package protocol

import (
	"encoding/binary"
	"math"
)

// SampleRate is the rate the server expects audio packets at.
const SampleRate = 16000

// EncodeFloat32 packs samples as little-endian float32, the payload of an
// audio packet. No envelope is added.
func EncodeFloat32(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// DecodeFloat32 is the inverse of EncodeFloat32. Trailing partial samples
// are ignored.
func DecodeFloat32(data []byte) []float32 {
	n := len(data) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}

// Int16ToFloat32 normalizes signed 16-bit PCM to [-1.0, 1.0).
func Int16ToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}
