// Package hotkey provides a global hotkey that pauses and resumes audio
// streaming using gohook. It supports "hold" mode (stream only while the
// keys are held) and "toggle" mode (each press flips streaming on or off).
package hotkey

import (
	"context"
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType indicates whether streaming should resume or pause.
type EventType int

const (
	// EventStart signals that audio should flow to the server.
	EventStart EventType = iota
	// EventStop signals that audio should be held back.
	EventStop
)

func (t EventType) String() string {
	if t == EventStart {
		return "start"
	}
	return "stop"
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Pauser is what a hotkey controls.
type Pauser interface {
	SetPaused(paused bool)
}

// Listener manages a global hotkey and emits start/stop events.
type Listener struct {
	keys []string
	mode string // "hold" or "toggle"
	ch   chan Event
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	active bool
}

// NewListener creates a Listener for the given key combo and mode.
// keys should be lowercase key names (e.g., ["ctrl", "shift", "l"]).
func NewListener(keys []string, mode string) *Listener {
	return &Listener{
		keys:   keys,
		mode:   mode,
		ch:     make(chan Event, 16),
		done:   make(chan struct{}),
		active: mode == "toggle",
	}
}

// InitiallyPaused reports whether streaming should start paused. In hold
// mode nothing is sent until the keys go down; in toggle mode streaming
// starts live and the first press pauses it.
func (l *Listener) InitiallyPaused() bool {
	return l.mode == "hold"
}

// Events returns the channel that receives hotkey events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.keyDown() })
	if l.mode == "hold" {
		hook.Register(hook.KeyUp, l.keys, func(hook.Event) { l.keyUp() })
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// keyDown handles a press of the full combo.
func (l *Listener) keyDown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.mode != "toggle":
		if l.active {
			return // key repeat
		}
		l.active = true
		l.emit(EventStart)
	case l.active:
		l.active = false
		l.emit(EventStop)
	default:
		l.active = true
		l.emit(EventStart)
	}
}

// keyUp handles a release in hold mode.
func (l *Listener) keyUp() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return
	}
	l.active = false
	l.emit(EventStop)
}

func (l *Listener) emit(t EventType) {
	select {
	case l.ch <- Event{Type: t}:
	default: // don't block the hook thread
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}

// Drive applies events to p until events is closed or ctx is done.
func Drive(ctx context.Context, events <-chan Event, p Pauser) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.SetPaused(ev.Type == EventStop)
		}
	}
}
