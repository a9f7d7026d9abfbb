// Package metrics exposes session counters to Prometheus. A nil *Metrics is
// a valid no-op so callers never need to check whether metrics are enabled.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gostt_live"

// Metrics holds the collectors for one client process.
type Metrics struct {
	registry *prometheus.Registry

	packetsSent   prometheus.Counter
	bytesSent     prometheus.Counter
	sendErrors    prometheus.Counter
	messages      *prometheus.CounterVec // by kind
	displayEvents prometheus.Counter
	connected     prometheus.Gauge
}

// New creates collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		packetsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_packets_sent_total",
			Help:      "Audio packets sent to the transcription server.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Audio payload bytes sent to the transcription server.",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_send_errors_total",
			Help:      "Audio packets that failed to send.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_messages_total",
			Help:      "Server messages received, by classification.",
		}, []string{"kind"}),
		displayEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_display_events_total",
			Help:      "New transcription lines shown to the operator.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 once the server has accepted the handshake.",
		}),
	}
	reg.MustRegister(m.packetsSent, m.bytesSent, m.sendErrors, m.messages, m.displayEvents, m.connected)
	return m
}

// PacketSent records one audio packet of n bytes.
func (m *Metrics) PacketSent(n int) {
	if m == nil {
		return
	}
	m.packetsSent.Inc()
	m.bytesSent.Add(float64(n))
}

// SendFailed records a failed audio packet.
func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

// MessageReceived records an inbound message of the given kind.
func (m *Metrics) MessageReceived(kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind).Inc()
}

// DisplayEvent records a new transcription line.
func (m *Metrics) DisplayEvent() {
	if m == nil {
		return
	}
	m.displayEvents.Inc()
}

// SetConnected sets the connected gauge.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("[metrics] serving", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serve %s: %w", addr, err)
	}
	return nil
}
