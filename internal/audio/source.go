package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"

	"github.com/chaz8081/gostt-live/internal/protocol"
)

// ErrFileNotFound is returned when the requested audio file does not exist.
var ErrFileNotFound = errors.New("audio: file not found")

// Source yields mono 16 kHz float32 chunks. Stream returns when the source
// is exhausted, ctx is cancelled, or fn returns an error.
type Source interface {
	Stream(ctx context.Context, fn func(chunk []float32) error) error
}

// Finite is implemented by sources that end on their own, after which the
// server is told no more audio follows.
type Finite interface {
	Finite() bool
}

// FileSource reads an audio file. WAV files are decoded directly; any
// other format is converted by ffmpeg.
type FileSource struct {
	path        string
	chunkFrames int

	// Realtime paces chunks at playback speed.
	Realtime bool
	// FFmpeg is the converter binary for non-WAV input.
	FFmpeg string
}

// NewFileSource checks that path exists and returns a source for it.
func NewFileSource(path string, chunkFrames int) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("audio: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("audio: %s is a directory", path)
	}
	if chunkFrames <= 0 {
		chunkFrames = DefaultChunkFrames
	}
	return &FileSource{
		path:        path,
		chunkFrames: chunkFrames,
		Realtime:    true,
		FFmpeg:      "ffmpeg",
	}, nil
}

// Path returns the file being read.
func (f *FileSource) Path() string { return f.path }

// Finite implements Finite.
func (f *FileSource) Finite() bool { return true }

// Stream implements Source.
func (f *FileSource) Stream(ctx context.Context, fn func(chunk []float32) error) error {
	samples, err := f.Load(ctx)
	if err != nil {
		return err
	}

	var tick <-chan time.Time
	if f.Realtime {
		period := time.Duration(f.chunkFrames) * time.Second / protocol.SampleRate
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for start := 0; start < len(samples); start += f.chunkFrames {
		if tick != nil && start > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		end := min(start+f.chunkFrames, len(samples))
		if err := fn(samples[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Load decodes the whole file to mono 16 kHz samples.
func (f *FileSource) Load(ctx context.Context) ([]float32, error) {
	if strings.EqualFold(filepath.Ext(f.path), ".wav") {
		samples, err := decodeWAV(f.path)
		if err == nil {
			return samples, nil
		}
		// Compressed or unusual WAV variants go through ffmpeg.
		if _, lookErr := exec.LookPath(f.FFmpeg); lookErr != nil {
			return nil, err
		}
	}
	return f.decodeFFmpeg(ctx)
}

func decodeWAV(path string) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("audio: %s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode WAV: %w", err)
	}

	samples := intsToFloat32(buf.Data, int(dec.BitDepth))
	samples = Mixdown(samples, int(dec.NumChans))
	return Resample(samples, int(dec.SampleRate), protocol.SampleRate), nil
}

// decodeFFmpeg converts any input ffmpeg understands to s16le mono 16 kHz.
func (f *FileSource) decodeFFmpeg(ctx context.Context) ([]float32, error) {
	if _, err := exec.LookPath(f.FFmpeg); err != nil {
		return nil, fmt.Errorf("audio: %s is required to read %s: %w", f.FFmpeg, filepath.Ext(f.path), err)
	}

	cmd := exec.CommandContext(ctx, f.FFmpeg, //nolint:gosec // path is the operator's own input file
		"-nostdin", "-threads", "0",
		"-i", f.path,
		"-f", "s16le", "-ac", "1", "-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(protocol.SampleRate),
		"-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("audio: ffmpeg: %w: %s", err, strings.TrimSpace(lastLine(stderr.String())))
	}

	pcm := make([]int16, len(out)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(out[i*2:]))
	}
	return protocol.Int16ToFloat32(pcm), nil
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
