// Package session implements the client side of one transcription-server
// session: the configuration handshake, dispatch of server messages, state
// tracking, and outbound audio packets.
//
// Transport events reach the session through the Handler interface. Run
// drives a Conn and feeds its events to the handler from a single goroutine,
// so inbound messages are processed strictly in delivery order.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/chaz8081/gostt-live/internal/metrics"
	"github.com/chaz8081/gostt-live/internal/protocol"
	"github.com/chaz8081/gostt-live/internal/transcript"
	"github.com/chaz8081/gostt-live/internal/transport"
)

var (
	// ErrSessionFailed is returned by sends after a transport error.
	ErrSessionFailed = errors.New("session: transport failed")
	// ErrClosed is returned by sends after the session closed.
	ErrClosed = errors.New("session: closed")
	// ErrNotOpen is returned by sends before the transport opened.
	ErrNotOpen = errors.New("session: transport not open")
)

const (
	packetLogEvery    = 100
	packetLogInterval = 10 * time.Second
)

// State is the session lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateHandshakeSent
	StateReady
	StateRecording
	StateIdle
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshakeSent:
		return "handshake_sent"
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Conn is the duplex transport a session owns. *transport.Conn satisfies it.
type Conn interface {
	WriteText(data []byte) error
	WriteBinary(data []byte) error
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

// Handler receives transport events.
type Handler interface {
	OnOpen(conn Conn) error
	OnMessage(data []byte)
	OnClose(code int, text string)
	OnError(err error)
}

// Options configures a Session. Zero values get defaults in New.
type Options struct {
	UID               string // generated when empty
	Language          string // "" or "auto" to let the server detect
	Task              protocol.Task
	Model             string
	UseVAD            bool
	MaxClients        int
	MaxConnectionTime int // seconds
	Debug             bool

	Clock   clock.Clock
	Logger  *slog.Logger
	Console io.Writer // operator-facing lines; default stdout
	Status  StatusPolicy
	Sink    transcript.Sink
	Display func(text string)
	Metrics *metrics.Metrics

	// Idle reports whether audio is being held back. It is consulted when
	// the server becomes ready, so a pause requested while connecting
	// starts the session Idle instead of Recording.
	Idle func() bool
}

// Session is one client session with a transcription server.
type Session struct {
	uid       string
	handshake protocol.Handshake
	debug     bool

	clock   clock.Clock
	logger  *slog.Logger
	console io.Writer
	status  StatusPolicy
	sink    transcript.Sink
	display func(string)
	metrics *metrics.Metrics
	idle    func() bool

	state       atomic.Int32
	connected   atomic.Bool
	recording   atomic.Bool
	waiting     atomic.Bool
	serverError atomic.Bool
	failed      atomic.Bool
	closing     atomic.Bool
	packets     atomic.Int64

	mu            sync.Mutex
	conn          Conn
	handshakeSent bool
	backend       string
	language      string
	languageProb  float64
	lastResponse  time.Time
	lastText      string
	errMessage    string

	consoleMu     sync.Mutex
	sendMu        sync.Mutex
	lastPacketLog time.Time
}

var _ Handler = (*Session)(nil)

// New creates a session in the Connecting state.
func New(opts Options) *Session {
	if opts.UID == "" {
		opts.UID = uuid.NewString()
	}
	if opts.Task == "" {
		opts.Task = protocol.TaskTranscribe
	}
	if opts.Model == "" {
		opts.Model = "small"
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = 4
	}
	if opts.MaxConnectionTime <= 0 {
		opts.MaxConnectionTime = 600
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.Status == nil {
		opts.Status = DefaultStatusPolicy{}
	}

	var lang *string
	if l := strings.TrimSpace(opts.Language); l != "" && l != "auto" {
		lang = &l
	}

	s := &Session{
		uid: opts.UID,
		handshake: protocol.Handshake{
			UID:               opts.UID,
			Language:          lang,
			Task:              opts.Task,
			Model:             opts.Model,
			UseVAD:            opts.UseVAD,
			MaxClients:        opts.MaxClients,
			MaxConnectionTime: opts.MaxConnectionTime,
		},
		debug:   opts.Debug,
		clock:   opts.Clock,
		logger:  opts.Logger.With("uid", opts.UID),
		console: opts.Console,
		status:  opts.Status,
		sink:    opts.Sink,
		display: opts.Display,
		metrics: opts.Metrics,
		idle:    opts.Idle,
	}
	if lang != nil {
		s.language = *lang
	}
	if s.display == nil {
		s.display = func(text string) { s.Printf("\n[TRANSCRIPTION]: %s", text) }
	}
	s.lastPacketLog = s.clock.Now()
	return s
}

// Run opens the session on conn and processes inbound frames until the
// transport closes or ctx is cancelled. A close initiated by either side is
// not an error.
func (s *Session) Run(ctx context.Context, conn Conn) error {
	if err := s.OnOpen(conn); err != nil {
		s.OnError(err)
		_ = conn.Close()
		s.OnClose(0, err.Error())
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		s.closing.Store(true)
		_ = conn.Close()
	})
	defer stop()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			code, text, isClose := transport.CloseDetails(err)
			orderly := isClose || s.closing.Load() || transport.IsNormalClose(err)
			if !orderly {
				s.OnError(err)
			}
			s.OnClose(code, text)
			if orderly {
				return nil
			}
			return fmt.Errorf("session: read: %w", err)
		}
		if mt != transport.TextMessage {
			if s.debug {
				s.logger.Debug("[session] received", "message", protocol.Summarize(data))
			}
			continue
		}
		s.OnMessage(data)
	}
}

// Close shuts the transport down from the client side.
func (s *Session) Close() error {
	s.closing.Store(true)
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.setState(StateClosed)
		return nil
	}
	return conn.Close()
}

// OnOpen sends the handshake. Only the first call has any effect.
func (s *Session) OnOpen(conn Conn) error {
	s.mu.Lock()
	if s.handshakeSent {
		s.mu.Unlock()
		return nil
	}
	s.handshakeSent = true
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("[session] websocket connection opened")
	s.Printf("[INFO]: WebSocket connection opened")

	data, err := s.handshake.Marshal()
	if err != nil {
		return err
	}
	if s.debug {
		s.logger.Debug("[session] sending initial config", "config", string(data))
	}
	if err := conn.WriteText(data); err != nil {
		return fmt.Errorf("session: send handshake: %w", err)
	}
	s.transition(StateConnecting, StateHandshakeSent)
	return nil
}

// OnMessage dispatches one inbound text frame. Malformed frames and frames
// for another uid are logged and leave the session untouched.
func (s *Session) OnMessage(data []byte) {
	if s.debug {
		s.logger.Debug("[session] received", "message", protocol.Summarize(data))
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		s.metrics.MessageReceived("malformed")
		s.logger.Error("[session] error processing message", "error", err)
		return
	}

	kind := protocol.Classify(msg, s.uid)
	s.metrics.MessageReceived(kind.String())

	switch kind {
	case protocol.KindInvalidUID:
		s.logger.Error("[session] invalid client uid", "got", msg.UID)
		s.Printf("[ERROR]: invalid client uid")
	case protocol.KindStatus:
		s.status.HandleStatus(s, msg)
	case protocol.KindDisconnect:
		s.Printf("[INFO]: Server disconnected due to overtime.")
		s.recording.Store(false)
		s.setState(StateClosed)
	case protocol.KindServerReady:
		s.handleReady(msg)
	case protocol.KindLanguage:
		s.mu.Lock()
		s.language = msg.Language
		s.languageProb = msg.LanguageProb
		s.mu.Unlock()
		s.Printf("[INFO]: Server detected language %s with probability %v", msg.Language, msg.LanguageProb)
	case protocol.KindSegments:
		s.handleSegments(msg.Segments)
	default:
		s.logger.Debug("[session] ignoring unrecognized message")
	}
}

func (s *Session) handleReady(msg *protocol.Message) {
	s.mu.Lock()
	s.backend = msg.Backend
	s.mu.Unlock()

	if !s.connected.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	s.lastResponse = s.clock.Now()
	s.mu.Unlock()
	s.transition(StateHandshakeSent, StateReady)
	s.transition(StateConnecting, StateReady)
	s.SetRecording(s.idle == nil || !s.idle())
	s.metrics.SetConnected(true)

	s.logger.Info("[session] server ready", "backend", msg.Backend)
	s.Printf("[SUCCESS]: Connected to server! Running with backend %s", msg.Backend)
}

func (s *Session) handleSegments(segments []protocol.Segment) {
	if n := len(segments); n > 0 {
		text := segments[n-1].Text
		s.mu.Lock()
		changed := text != "" && text != s.lastText
		if changed {
			s.lastText = text
			s.lastResponse = s.clock.Now()
		}
		s.mu.Unlock()

		if changed {
			s.metrics.DisplayEvent()
			s.display(text)
		}
	}

	if s.sink != nil {
		if err := s.sink.Segments(segments); err != nil {
			s.logger.Error("[session] segment sink failed", "error", err)
		}
	}
}

// OnClose marks the session closed.
func (s *Session) OnClose(code int, text string) {
	s.logger.Info("[session] websocket connection closed", "code", code, "reason", text)
	s.Printf("[INFO]: WebSocket connection closed: %d: %s", code, text)
	s.recording.Store(false)
	s.waiting.Store(false)
	s.setState(StateClosed)
	s.metrics.SetConnected(false)
}

// OnError records a transport error. Later sends fail fast.
func (s *Session) OnError(err error) {
	s.logger.Error("[session] websocket error", "error", err)
	s.Printf("[ERROR] WebSocket Error: %v", err)
	s.mu.Lock()
	s.errMessage = err.Error()
	s.mu.Unlock()
	s.failed.Store(true)
	s.serverError.Store(true)
}

// SendPacket sends one binary audio packet. Failures are logged and
// returned; the caller decides whether to keep streaming.
func (s *Session) SendPacket(data []byte) error {
	conn, err := s.sendable()
	if err != nil {
		return err
	}

	n := s.packets.Add(1)
	if s.debug {
		now := s.clock.Now()
		s.sendMu.Lock()
		if n%packetLogEvery == 0 || now.Sub(s.lastPacketLog) > packetLogInterval {
			s.logger.Debug("[session] sent audio packet", "packet", n, "bytes", len(data))
			s.lastPacketLog = now
		}
		s.sendMu.Unlock()
	}

	if err := conn.WriteBinary(data); err != nil {
		s.metrics.SendFailed()
		s.logger.Error("[session] error sending packet", "error", err)
		s.Printf("[ERROR]: Failed to send audio packet: %v", err)
		return fmt.Errorf("session: send packet: %w", err)
	}
	s.metrics.PacketSent(len(data))
	return nil
}

// SendEndOfAudio tells the server no more audio follows.
func (s *Session) SendEndOfAudio() error {
	conn, err := s.sendable()
	if err != nil {
		return err
	}
	if err := conn.WriteBinary([]byte(protocol.EndOfAudio)); err != nil {
		return fmt.Errorf("session: send end of audio: %w", err)
	}
	return nil
}

func (s *Session) sendable() (Conn, error) {
	if s.failed.Load() {
		return nil, ErrSessionFailed
	}
	if s.State() == StateClosed {
		return nil, ErrClosed
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, ErrNotOpen
	}
	return conn, nil
}

// SetRecording switches between Recording and Idle. It reports whether the
// session was in a state that allows the switch.
func (s *Session) SetRecording(on bool) bool {
	from, to := StateRecording, StateIdle
	if on {
		from, to = StateIdle, StateRecording
	}
	cur := s.State()
	if cur == to {
		return true
	}
	if cur != from && cur != StateReady {
		return false
	}
	if !s.state.CompareAndSwap(int32(cur), int32(to)) {
		return false
	}
	s.recording.Store(on)
	return true
}

// SetWaiting records that the server queued this client.
func (s *Session) SetWaiting(waiting bool) { s.waiting.Store(waiting) }

// Fail records a terminal server-side failure and stops recording.
func (s *Session) Fail(message string) {
	s.mu.Lock()
	s.errMessage = message
	s.mu.Unlock()
	s.serverError.Store(true)
	s.recording.Store(false)
}

// Printf writes one operator-facing line to the console.
func (s *Session) Printf(format string, args ...any) {
	s.consoleMu.Lock()
	defer s.consoleMu.Unlock()
	fmt.Fprintf(s.console, format+"\n", args...)
}

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// transition moves from one state to another only if the session is still
// in the expected state.
func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// setState moves to any state unless the session is already closed.
func (s *Session) setState(to State) {
	for {
		cur := s.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if s.state.CompareAndSwap(cur, int32(to)) {
			return
		}
	}
}

func (s *Session) UID() string        { return s.uid }
func (s *Session) State() State       { return State(s.state.Load()) }
func (s *Session) Connected() bool    { return s.connected.Load() }
func (s *Session) Recording() bool    { return s.recording.Load() }
func (s *Session) Waiting() bool      { return s.waiting.Load() }
func (s *Session) ServerError() bool  { return s.serverError.Load() }
func (s *Session) PacketCount() int64 { return s.packets.Load() }

// Done reports whether the session can no longer transcribe.
func (s *Session) Done() bool {
	return s.State() == StateClosed || s.serverError.Load()
}

// Handshake returns the configuration sent on open.
func (s *Session) Handshake() protocol.Handshake { return s.handshake }

func (s *Session) Backend() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// Language returns the requested or server-detected language and the
// detection probability (zero when not detected).
func (s *Session) Language() (string, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language, s.languageProb
}

// LastResponse is when the server last said something new.
func (s *Session) LastResponse() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponse
}

func (s *Session) LastText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastText
}

// ErrorMessage returns the last transport or server error text.
func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMessage
}

// StatusPolicy decides what a "status" message does to the session.
type StatusPolicy interface {
	HandleStatus(s *Session, msg *protocol.Message)
}

// StatusPolicyFunc adapts a function to StatusPolicy.
type StatusPolicyFunc func(s *Session, msg *protocol.Message)

// HandleStatus calls f.
func (f StatusPolicyFunc) HandleStatus(s *Session, msg *protocol.Message) { f(s, msg) }

// DefaultStatusPolicy handles the statuses a WhisperLive server sends.
type DefaultStatusPolicy struct{}

// HandleStatus implements StatusPolicy.
func (DefaultStatusPolicy) HandleStatus(s *Session, msg *protocol.Message) {
	switch msg.Status {
	case protocol.StatusWait:
		s.SetWaiting(true)
		minutes, _ := msg.WaitMinutes()
		s.Printf("[INFO]: Server is full. Estimated wait time %d minutes.", int(math.Round(minutes)))
	case protocol.StatusError:
		s.Printf("[ERROR]: Message from Server: %s", msg.Text())
		s.Fail(msg.Text())
	case protocol.StatusWarning:
		s.Printf("[WARNING]: Message from Server: %s", msg.Text())
	default:
		s.Logger().Warn("[session] unknown status", "status", msg.Status, "message", msg.Text())
	}
}
