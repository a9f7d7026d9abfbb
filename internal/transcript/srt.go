package transcript

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/chaz8081/gostt-live/internal/protocol"
)

// WriteSRT renders segments as numbered SRT cues. Segments with blank text
// are skipped and do not consume a cue number.
func WriteSRT(w io.Writer, segments []protocol.Segment) error {
	bw := bufio.NewWriter(w)
	n := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		n++
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n", n, formatTimestamp(float64(seg.Start)), formatTimestamp(float64(seg.End)), text)
	}
	return bw.Flush()
}

// WriteSRTFile writes the full transcript to path, replacing any existing
// file atomically.
func (t *Transcript) WriteSRTFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("transcript: creating output dir: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("transcript: creating %s: %w", tmpPath, err)
	}
	if err := WriteSRT(f, t.All()); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("transcript: writing srt: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("transcript: closing srt: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("transcript: moving srt: %w", err)
	}
	return nil
}

// formatTimestamp renders seconds as HH:MM:SS,mmm.
func formatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
