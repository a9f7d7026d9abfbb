package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
)

// MonitorResult is how a connection watch ended.
type MonitorResult int

const (
	MonitorConnected MonitorResult = iota
	MonitorWarned
	MonitorTimedOut
	MonitorCancelled
)

func (r MonitorResult) String() string {
	switch r {
	case MonitorConnected:
		return "connected"
	case MonitorWarned:
		return "warned"
	case MonitorTimedOut:
		return "timed_out"
	case MonitorCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Monitor watches for the handshake to complete and warns the operator once
// if it takes too long. It only reads the connected flag.
type Monitor struct {
	Interval  time.Duration // poll period, default 1s
	WarnAfter time.Duration // default 10s
	Timeout   time.Duration // default 30s
	Addr      string        // server URL shown in the warning
	Clock     clock.Clock
	Warn      func(addr string) // default prints to Console
	Console   io.Writer
}

// NewMonitor returns a monitor with the default timings.
func NewMonitor(addr string) *Monitor {
	return &Monitor{
		Interval:  time.Second,
		WarnAfter: 10 * time.Second,
		Timeout:   30 * time.Second,
		Addr:      addr,
	}
}

// Start begins polling connected in the background and returns at once.
// The ticker is created before Start returns, so a mock clock advanced
// afterwards is always observed. The channel yields exactly one result.
func (m *Monitor) Start(ctx context.Context, connected func() bool) <-chan MonitorResult {
	clk := m.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := m.Interval
	if interval <= 0 {
		interval = time.Second
	}
	warnAfter := m.WarnAfter
	if warnAfter <= 0 {
		warnAfter = 10 * time.Second
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	warn := m.Warn
	if warn == nil {
		console := m.Console
		if console == nil {
			console = os.Stdout
		}
		warn = func(addr string) {
			fmt.Fprintln(console, "\n[WARNING]: Still waiting for server connection... Is the server running?")
			fmt.Fprintf(console, "[INFO]: Make sure the server is running on %s\n", addr)
		}
	}

	start := clk.Now()
	ticker := clk.Ticker(interval)
	done := make(chan MonitorResult, 1)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				done <- MonitorCancelled
				return
			case <-ticker.C:
			}

			if connected() {
				done <- MonitorConnected
				return
			}
			elapsed := clk.Since(start)
			if elapsed > warnAfter {
				warn(m.Addr)
				done <- MonitorWarned
				return
			}
			if elapsed >= timeout {
				done <- MonitorTimedOut
				return
			}
		}
	}()

	return done
}
