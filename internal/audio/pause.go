package audio

import (
	"context"
	"sync/atomic"
)

// Pausable drops chunks from the wrapped source while paused. Capture keeps
// running so resuming is instant.
type Pausable struct {
	src      Source
	paused   atomic.Bool
	onChange func(paused bool)
}

// NewPausable wraps src. onChange, if set, is called after every toggle.
func NewPausable(src Source, onChange func(paused bool)) *Pausable {
	return &Pausable{src: src, onChange: onChange}
}

// Stream implements Source.
func (p *Pausable) Stream(ctx context.Context, fn func(chunk []float32) error) error {
	return p.src.Stream(ctx, func(chunk []float32) error {
		if p.paused.Load() {
			return nil
		}
		return fn(chunk)
	})
}

// Finite reports whether the wrapped source is finite.
func (p *Pausable) Finite() bool {
	f, ok := p.src.(Finite)
	return ok && f.Finite()
}

// Toggle flips the paused state and returns the new value.
func (p *Pausable) Toggle() bool {
	for {
		cur := p.paused.Load()
		if p.paused.CompareAndSwap(cur, !cur) {
			if p.onChange != nil {
				p.onChange(!cur)
			}
			return !cur
		}
	}
}

// Paused reports whether chunks are currently dropped.
func (p *Pausable) Paused() bool { return p.paused.Load() }

// SetPaused sets the paused state. onChange only runs when it changes.
func (p *Pausable) SetPaused(paused bool) {
	if p.paused.Swap(paused) != paused && p.onChange != nil {
		p.onChange(paused)
	}
}
