package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVWriter stores float32 samples as 16-bit mono PCM.
type WAVWriter struct {
	mu         sync.Mutex
	file       *os.File
	enc        *wav.Encoder
	sampleRate int
	frames     int
}

// CreateWAV creates (or truncates) a WAV file at path.
func CreateWAV(path string, sampleRate int) (*WAVWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("audio: creating output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("audio: creating %s: %w", path, err)
	}
	return &WAVWriter{
		file:       f,
		enc:        wav.NewEncoder(f, sampleRate, 16, 1, 1),
		sampleRate: sampleRate,
	}, nil
}

// Write appends samples, clamping to [-1, 1].
func (w *WAVWriter) Write(samples []float32) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return fmt.Errorf("audio: write to closed WAV file")
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write WAV: %w", err)
	}
	w.frames += len(samples)
	return nil
}

// Frames returns the number of samples written so far.
func (w *WAVWriter) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close finalizes the header and closes the file.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return nil
	}
	encErr := w.enc.Close()
	w.enc = nil
	fileErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("audio: finalize WAV: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("audio: close WAV: %w", fileErr)
	}
	return nil
}
