package audio

import "github.com/chaz8081/gostt-live/internal/protocol"

// DefaultChunkFrames is the number of 16 kHz frames per audio packet.
const DefaultChunkFrames = 4096

// Mixdown averages interleaved channels into mono.
func Mixdown(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples between rates by linear interpolation.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(toRate) / int64(fromRate))
	out := make([]float32, n)
	ratio := float64(fromRate) / float64(toRate)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}

// intsToFloat32 normalizes integer PCM of the given bit depth.
func intsToFloat32(data []int, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << uint(bitDepth-1))
	if bitDepth == 8 {
		// 8-bit WAV is unsigned
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v-128) / 128
		}
		return out
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / scale
	}
	return out
}

// chunker turns arbitrary capture buffers into fixed-size mono chunks at
// the server rate. Resampling is per buffer, which is adequate for speech.
type chunker struct {
	rate     int
	channels int
	size     int
	pending  []float32
}

func newChunker(rate, channels, size int) *chunker {
	return &chunker{rate: rate, channels: channels, size: size}
}

func (c *chunker) push(samples []float32, fn func([]float32) error) error {
	mono := Resample(Mixdown(samples, c.channels), c.rate, protocol.SampleRate)
	c.pending = append(c.pending, mono...)
	for len(c.pending) >= c.size {
		chunk := make([]float32, c.size)
		copy(chunk, c.pending[:c.size])
		c.pending = c.pending[c.size:]
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}
