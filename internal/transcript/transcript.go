// Package transcript collects server segments into a final transcript and
// renders it as SRT subtitles.
package transcript

import (
	"errors"
	"sync"

	"github.com/chaz8081/gostt-live/internal/protocol"
)

// Sink receives every segment sequence the server sends, duplicates included.
type Sink interface {
	Segments(segments []protocol.Segment) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(segments []protocol.Segment) error

// Segments calls f.
func (f SinkFunc) Segments(segments []protocol.Segment) error { return f(segments) }

type multi []Sink

// Multi fans a sequence out to every sink. A failing sink does not stop the
// others; errors are joined.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Segments(segments []protocol.Segment) error {
	var errs []error
	for _, s := range m {
		if err := s.Segments(segments); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CompletedFunc is called once for every segment that becomes final.
type CompletedFunc func(seg protocol.Segment)

// Transcript accumulates final segments. Each server update repeats recent
// segments, so a segment is kept only if it starts at or after the end of
// the last kept one. The trailing segment of an update is final only when
// the server marks it completed; earlier ones are final regardless.
type Transcript struct {
	mu        sync.Mutex
	completed []protocol.Segment
	pending   *protocol.Segment
	listeners []CompletedFunc
}

// New creates an empty transcript. listeners are invoked outside the lock.
func New(listeners ...CompletedFunc) *Transcript {
	return &Transcript{listeners: listeners}
}

// Segments implements Sink.
func (t *Transcript) Segments(segments []protocol.Segment) error {
	var added []protocol.Segment

	t.mu.Lock()
	var lastText string
	for i, seg := range segments {
		if i > 0 && seg.Text == lastText {
			continue
		}
		lastText = seg.Text

		last := i == len(segments)-1
		if last && !seg.Completed {
			s := seg
			t.pending = &s
			continue
		}
		if n := len(t.completed); n == 0 || seg.Start >= t.completed[n-1].End {
			t.completed = append(t.completed, seg)
			added = append(added, seg)
		}
		if last {
			t.pending = nil
		}
	}
	t.mu.Unlock()

	for _, seg := range added {
		for _, fn := range t.listeners {
			fn(seg)
		}
	}
	return nil
}

// Completed returns a copy of the final segments.
func (t *Transcript) Completed() []protocol.Segment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.Segment, len(t.completed))
	copy(out, t.completed)
	return out
}

// All returns the final segments followed by the in-progress one, if any.
// This is what gets written to the subtitle file on exit.
func (t *Transcript) All() []protocol.Segment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.Segment, 0, len(t.completed)+1)
	out = append(out, t.completed...)
	if t.pending != nil {
		out = append(out, *t.pending)
	}
	return out
}
