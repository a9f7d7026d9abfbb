// Package client drives one transcription run: it connects to the server,
// streams an audio source through a session and writes the results on exit.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/chaz8081/gostt-live/internal/audio"
	"github.com/chaz8081/gostt-live/internal/protocol"
	"github.com/chaz8081/gostt-live/internal/session"
	"github.com/chaz8081/gostt-live/internal/transcript"
	"github.com/chaz8081/gostt-live/internal/transport"
)

var (
	// ErrServerFull is returned when the server queued the client instead
	// of accepting it.
	ErrServerFull = errors.New("client: server is full")

	// ErrClosedBeforeReady is returned when the connection ends before the
	// server reported it was ready.
	ErrClosedBeforeReady = errors.New("client: connection closed before server was ready")
)

const (
	defaultSilence      = 15 * time.Second
	defaultPollInterval = 100 * time.Millisecond
)

// Options configures a Client.
type Options struct {
	Host      string
	Port      int
	Secure    bool
	Transport transport.Options

	// Session is passed to session.New. Sink, Clock, Logger and Console
	// are filled in from the fields below when unset.
	Session session.Options

	SRTPath string // subtitle file written on exit; empty disables
	WAVPath string // copy of the streamed audio; empty disables

	// DisconnectAfterSilence is how long to wait for further responses
	// after the end of a finite source.
	DisconnectAfterSilence time.Duration
	PollInterval           time.Duration

	// Sinks receive every segment update next to the transcript.
	Sinks []transcript.Sink
	// OnCompleted is called once per final segment.
	OnCompleted []transcript.CompletedFunc

	Clock   clock.Clock
	Logger  *slog.Logger
	Console io.Writer
}

// Client owns a session and its transcript.
type Client struct {
	opts       Options
	url        string
	clock      clock.Clock
	logger     *slog.Logger
	transcript *transcript.Transcript
	session    *session.Session
}

// New builds a client. The session exists from the start so callers can
// toggle recording before Run is called.
func New(opts Options) *Client {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.DisconnectAfterSilence <= 0 {
		opts.DisconnectAfterSilence = defaultSilence
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Transport == (transport.Options{}) {
		opts.Transport = transport.DefaultOptions()
	}

	tr := transcript.New(opts.OnCompleted...)
	sinks := append([]transcript.Sink{tr}, opts.Sinks...)

	so := opts.Session
	if so.Sink == nil {
		so.Sink = transcript.Multi(sinks...)
	}
	if so.Clock == nil {
		so.Clock = opts.Clock
	}
	if so.Logger == nil {
		so.Logger = opts.Logger
	}
	if so.Console == nil {
		so.Console = opts.Console
	}

	return &Client{
		opts:       opts,
		url:        transport.URL(opts.Host, opts.Port, opts.Secure),
		clock:      opts.Clock,
		logger:     opts.Logger,
		transcript: tr,
		session:    session.New(so),
	}
}

// Session returns the client's session.
func (c *Client) Session() *session.Session { return c.session }

// Transcript returns the accumulated transcript.
func (c *Client) Transcript() *transcript.Transcript { return c.transcript }

// URL returns the server address the client connects to.
func (c *Client) URL() string { return c.url }

// Run connects, streams src until it ends, the session finishes or ctx is
// cancelled, then writes the outputs. Cancellation is a normal stop.
func (c *Client) Run(ctx context.Context, src audio.Source) error {
	c.logger.Info("[client] connecting", "url", c.url)
	conn, err := transport.Dial(ctx, c.url, c.opts.Transport)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("client: connect to %s: %w", c.url, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessDone := make(chan struct{})
	var runErr error
	go func() {
		defer close(sessDone)
		runErr = c.session.Run(runCtx, conn)
	}()

	mon := session.NewMonitor(c.url)
	mon.Clock = c.clock
	mon.Console = c.opts.Console
	monResult := mon.Start(runCtx, c.session.Connected)
	go func() {
		c.logger.Debug("[monitor] finished", "result", (<-monResult).String())
	}()

	var wav *audio.WAVWriter
	err = c.waitReady(runCtx, sessDone)
	if err == nil && runCtx.Err() == nil {
		if c.opts.WAVPath != "" {
			wav, err = audio.CreateWAV(c.opts.WAVPath, protocol.SampleRate)
		}
		if err == nil {
			err = c.stream(runCtx, src, sessDone, wav)
		}
	}

	if cerr := c.session.Close(); cerr != nil {
		c.logger.Debug("[client] close", "error", cerr)
	}
	<-sessDone
	cancel()

	werr := c.writeOutputs(wav)
	if ctx.Err() != nil {
		return werr
	}
	if err == nil {
		err = runErr
	}
	return errors.Join(err, werr)
}

// waitReady blocks until the server accepted the session. It returns nil
// when ctx is cancelled first.
func (c *Client) waitReady(ctx context.Context, sessDone <-chan struct{}) error {
	ticker := c.clock.Ticker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		switch {
		case c.session.Connected():
			return nil
		case c.session.Waiting():
			return ErrServerFull
		case c.session.ServerError():
			return c.sessionError()
		case c.session.Done():
			if c.session.Connected() {
				return nil // ready and already disconnected
			}
			return ErrClosedBeforeReady
		}

		select {
		case <-ctx.Done():
			return nil
		case <-sessDone:
			if c.session.ServerError() {
				return c.sessionError()
			}
			if c.session.Waiting() {
				return ErrServerFull
			}
			return ErrClosedBeforeReady
		case <-ticker.C:
		}
	}
}

func (c *Client) sessionError() error {
	if msg := c.session.ErrorMessage(); msg != "" {
		return fmt.Errorf("%w: %s", session.ErrSessionFailed, msg)
	}
	return session.ErrSessionFailed
}

var errStop = errors.New("client: stop streaming")

// stream sends src as float32 packets. A finite source is followed by the
// end-of-audio marker and a wait for the server to go quiet.
func (c *Client) stream(ctx context.Context, src audio.Source, sessDone <-chan struct{}, wav *audio.WAVWriter) error {
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	go func() {
		ticker := c.clock.Ticker(c.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sessDone:
				stopStream()
				return
			case <-streamCtx.Done():
				return
			case <-ticker.C:
				if c.session.Done() {
					stopStream()
					return
				}
			}
		}
	}()

	c.session.Printf("[INFO]: Streaming audio...")
	err := src.Stream(streamCtx, func(chunk []float32) error {
		if c.session.Done() {
			return errStop
		}
		if wav != nil {
			if werr := wav.Write(chunk); werr != nil {
				c.logger.Error("[client] recording write failed", "error", werr)
			}
		}
		if serr := c.session.SendPacket(protocol.EncodeFloat32(chunk)); serr != nil {
			if errors.Is(serr, session.ErrSessionFailed) || errors.Is(serr, session.ErrClosed) {
				return errStop
			}
		}
		return nil
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("client: stream audio: %w", err)
	}

	if fin, ok := src.(audio.Finite); !ok || !fin.Finite() || ctx.Err() != nil || c.session.Done() {
		return nil
	}

	if err := c.session.SendEndOfAudio(); err != nil {
		c.logger.Warn("[client] end of audio not sent", "error", err)
		return nil
	}
	c.logger.Debug("[client] end of audio sent, waiting for final results")
	c.waitSilence(ctx, sessDone)
	return nil
}

// waitSilence returns once no response has arrived for the configured
// silence period, the session ends or ctx is cancelled.
func (c *Client) waitSilence(ctx context.Context, sessDone <-chan struct{}) {
	ticker := c.clock.Ticker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		if c.session.Done() || c.clock.Since(c.session.LastResponse()) > c.opts.DisconnectAfterSilence {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-sessDone:
			return
		case <-ticker.C:
		}
	}
}

func (c *Client) writeOutputs(wav *audio.WAVWriter) error {
	var errs []error
	if wav != nil {
		if err := wav.Close(); err != nil {
			errs = append(errs, err)
		} else {
			c.session.Printf("[INFO]: Recording saved to %s", c.opts.WAVPath)
		}
	}
	if c.opts.SRTPath != "" {
		if err := c.transcript.WriteSRTFile(c.opts.SRTPath); err != nil {
			errs = append(errs, err)
		} else {
			c.session.Printf("[INFO]: Transcript written to %s", c.opts.SRTPath)
		}
	}
	return errors.Join(errs...)
}
