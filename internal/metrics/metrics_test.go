package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.PacketSent(10)
	m.SendFailed()
	m.MessageReceived("segments")
	m.DisplayEvent()
	m.SetConnected(true)
}

func TestCounters(t *testing.T) {
	m := New()
	m.PacketSent(100)
	m.PacketSent(50)
	m.MessageReceived("segments")
	m.MessageReceived("segments")
	m.MessageReceived("status")
	m.DisplayEvent()
	m.SetConnected(true)

	if got := testutil.ToFloat64(m.packetsSent); got != 2 {
		t.Errorf("packetsSent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bytesSent); got != 150 {
		t.Errorf("bytesSent = %v, want 150", got)
	}
	if got := testutil.ToFloat64(m.messages.WithLabelValues("segments")); got != 2 {
		t.Errorf("messages{segments} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.connected); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}

	m.SetConnected(false)
	if got := testutil.ToFloat64(m.connected); got != 0 {
		t.Errorf("connected = %v, want 0", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.DisplayEvent()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "gostt_live_transcription_display_events_total 1") {
		t.Errorf("metrics output missing display counter:\n%s", body)
	}
}
