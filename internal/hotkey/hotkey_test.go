package hotkey

import (
	"context"
	"sync"
	"testing"
	"time"
)

func drain(l *Listener) []EventType {
	var out []EventType
	for {
		select {
		case ev := <-l.ch:
			out = append(out, ev.Type)
		default:
			return out
		}
	}
}

func equal(a, b []EventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHoldMode(t *testing.T) {
	l := NewListener([]string{"ctrl", "l"}, "hold")
	if !l.InitiallyPaused() {
		t.Error("hold mode should start paused")
	}

	l.keyDown()
	l.keyDown() // auto-repeat
	l.keyUp()
	l.keyUp()

	want := []EventType{EventStart, EventStop}
	if got := drain(l); !equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestToggleMode(t *testing.T) {
	l := NewListener([]string{"ctrl", "l"}, "toggle")
	if l.InitiallyPaused() {
		t.Error("toggle mode should start live")
	}

	l.keyDown()
	l.keyUp() // ignored in toggle mode
	l.keyDown()
	l.keyDown()

	want := []EventType{EventStop, EventStart, EventStop}
	if got := drain(l); !equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestEmitDoesNotBlock(t *testing.T) {
	l := NewListener(nil, "toggle")
	for i := 0; i < 100; i++ {
		l.keyDown()
	}
	if n := len(drain(l)); n != cap(l.ch) {
		t.Errorf("buffered events = %d, want %d", n, cap(l.ch))
	}
}

func TestStopIsIdempotent(t *testing.T) {
	l := NewListener(nil, "hold")
	l.Stop()
	l.Stop()
	select {
	case <-l.done:
	default:
		t.Error("done should be closed")
	}
}

type recordingPauser struct {
	mu    sync.Mutex
	calls []bool
}

func (r *recordingPauser) SetPaused(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, paused)
}

func TestDrive(t *testing.T) {
	events := make(chan Event, 3)
	events <- Event{Type: EventStart}
	events <- Event{Type: EventStop}
	events <- Event{Type: EventStart}
	close(events)

	p := &recordingPauser{}
	Drive(context.Background(), events, p)

	want := []bool{false, true, false}
	if len(p.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", p.calls, want)
	}
	for i := range want {
		if p.calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, p.calls[i], want[i])
		}
	}
}

func TestDriveStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Drive(ctx, make(chan Event), &recordingPauser{})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Drive did not return after cancel")
	}
}

func TestEventTypeString(t *testing.T) {
	if EventStart.String() != "start" || EventStop.String() != "stop" {
		t.Errorf("got %q / %q", EventStart, EventStop)
	}
}
