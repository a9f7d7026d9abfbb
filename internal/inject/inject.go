// Package inject types finished transcript text into the active application
// using robotgo for keystroke simulation or clipboard paste.
package inject

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/go-vgo/robotgo"

	"github.com/chaz8081/gostt-live/internal/protocol"
	"github.com/chaz8081/gostt-live/internal/transcript"
)

// TextInjector delivers text to the user's focused application.
type TextInjector interface {
	Inject(text string) error
}

// Injector handles typing or pasting text into the active application.
type Injector struct {
	method string // "type" or "paste"
}

var _ TextInjector = (*Injector)(nil)

// NewInjector creates an Injector with the given method.
// method must be "type" (keystroke simulation) or "paste" (clipboard).
func NewInjector(method string) *Injector {
	return &Injector{method: method}
}

// Inject sends text to the active application using the configured method.
func (inj *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}

	switch inj.method {
	case "paste":
		return inj.paste(text)
	default: // "type"
		robotgo.Type(text)
		return nil
	}
}

// paste copies text to the clipboard and pastes it. Faster for long text
// but briefly replaces the clipboard.
func (inj *Injector) paste(text string) error {
	prev, _ := robotgo.ReadAll()

	if err := robotgo.WriteAll(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}

	mod := "ctrl"
	if runtime.GOOS == "darwin" {
		mod = "cmd"
	}
	if err := robotgo.KeyTap("v", mod); err != nil {
		return fmt.Errorf("inject: key tap %s+v: %w", mod, err)
	}

	// Restore previous clipboard (best effort)
	_ = robotgo.WriteAll(prev)
	return nil
}

// OnCompleted returns a transcript listener that injects each final
// segment. Segments after the first are prefixed with a space so
// consecutive phrases don't run together.
func OnCompleted(inj TextInjector, logger *slog.Logger) transcript.CompletedFunc {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		mu      sync.Mutex
		started bool
	)
	return func(seg protocol.Segment) {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if started {
			text = " " + text
		}
		if err := inj.Inject(text); err != nil {
			logger.Error("[inject] text injection failed", "error", err)
			return
		}
		started = true
		logger.Debug("[inject] text injected", "chars", len(text))
	}
}
