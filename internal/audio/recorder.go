// Package audio provides the sources that feed a transcription session
// (microphone and file) and the WAV writer used to keep a recording.
package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// Recorder captures audio from the default microphone and hands it out in
// fixed-size chunks while capture is running.
type Recorder struct {
	ctx         *malgo.AllocatedContext
	device      *malgo.Device
	sampleRate  uint32
	channels    uint32
	chunkFrames int

	mu        sync.Mutex
	frames    chan []float32
	recording bool
	dropped   int
}

// NewRecorder creates a new audio recorder. Call Close() when done.
func NewRecorder(sampleRate, channels uint32, chunkFrames int) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	if chunkFrames <= 0 {
		chunkFrames = DefaultChunkFrames
	}

	r := &Recorder{
		ctx:         ctx,
		sampleRate:  sampleRate,
		channels:    channels,
		chunkFrames: chunkFrames,
	}

	return r, nil
}

// Start begins capturing audio from the default microphone.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return fmt.Errorf("already recording")
	}
	r.frames = make(chan []float32, 256)
	r.dropped = 0
	r.recording = true
	r.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = r.channels
	deviceCfg.SampleRate = r.sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: r.onData,
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return fmt.Errorf("initializing capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return fmt.Errorf("starting capture device: %w", err)
	}

	r.mu.Lock()
	r.device = device
	r.mu.Unlock()

	return nil
}

// Stop ends the audio capture. Frames already captured stay readable.
// The device is torn down outside the lock since the capture callback
// takes the same lock.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	device := r.device
	r.device = nil
	r.recording = false
	dropped := r.dropped
	r.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	if dropped > 0 {
		slog.Warn("[audio] capture buffer overflowed", "dropped_callbacks", dropped)
	}
}

// IsRecording returns whether the recorder is currently capturing audio.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Stream captures until ctx is cancelled, calling fn with mono 16 kHz
// chunks. An error from fn stops the capture and is returned.
func (r *Recorder) Stream(ctx context.Context, fn func(chunk []float32) error) error {
	if err := r.Start(); err != nil {
		return err
	}
	defer r.Stop()

	r.mu.Lock()
	frames := r.frames
	r.mu.Unlock()

	c := newChunker(int(r.sampleRate), int(r.channels), r.chunkFrames)
	for {
		select {
		case <-ctx.Done():
			return nil
		case samples := <-frames:
			if err := c.push(samples, fn); err != nil {
				return err
			}
		}
	}
}

// Close releases all audio resources.
func (r *Recorder) Close() error {
	r.mu.Lock()
	device := r.device
	r.device = nil
	r.recording = false
	r.mu.Unlock()

	if device != nil {
		device.Uninit()
	}

	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		r.ctx.Free()
		r.ctx = nil
	}

	return nil
}

// onData is the malgo callback invoked when audio data is available.
// pSample contains the captured audio frames as raw bytes (float32 format).
// The callback runs on the audio thread and must not block, so a full
// buffer drops the frames.
func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	sampleCount := frameCount * r.channels
	samples := bytesToFloat32(pSample, sampleCount)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	select {
	case r.frames <- samples:
	default:
		r.dropped++
	}
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
