package session

import (
	"bytes"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/chaz8081/gostt-live/internal/protocol"
	"github.com/chaz8081/gostt-live/internal/transport"
)

type frame struct {
	mt   int
	data []byte
	err  error
}

// mockConn records writes and replays queued inbound frames.
type mockConn struct {
	mu       sync.Mutex
	text     [][]byte
	binary   [][]byte
	writeErr error

	inbound   chan frame
	closed    chan struct{}
	closeOnce sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{
		inbound: make(chan frame, 64),
		closed:  make(chan struct{}),
	}
}

func (c *mockConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.text = append(c.text, append([]byte(nil), data...))
	return nil
}

func (c *mockConn) WriteBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.binary = append(c.binary, append([]byte(nil), data...))
	return nil
}

func (c *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.inbound:
		return f.mt, f.data, f.err
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *mockConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *mockConn) push(body string) {
	c.inbound <- frame{mt: transport.TextMessage, data: []byte(body)}
}

func (c *mockConn) setWriteErr(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *mockConn) textFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.text...)
}

func (c *mockConn) binaryFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.binary...)
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) lines() int {
	return strings.Count(b.String(), "\n")
}

// testHarness bundles a session with captured output.
type testHarness struct {
	s        *Session
	conn     *mockConn
	logs     *syncBuffer
	console  *syncBuffer
	displays []string
	sunk     [][]protocol.Segment
}

func newHarness(opts Options) *testHarness {
	h := &testHarness{
		conn:    newMockConn(),
		logs:    &syncBuffer{},
		console: &syncBuffer{},
	}
	if opts.UID == "" {
		opts.UID = "abc"
	}
	if opts.Model == "" {
		opts.Model = "turbo"
	}
	opts.Logger = slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts.Console = h.console
	opts.Display = func(text string) { h.displays = append(h.displays, text) }
	opts.Sink = sinkFunc(func(segs []protocol.Segment) error {
		h.sunk = append(h.sunk, segs)
		return nil
	})
	h.s = New(opts)
	return h
}

type sinkFunc func([]protocol.Segment) error

func (f sinkFunc) Segments(segs []protocol.Segment) error { return f(segs) }
