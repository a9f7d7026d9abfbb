package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newEchoServer echoes every frame back with its original type.
func newEchoServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestURL(t *testing.T) {
	tests := []struct {
		host   string
		port   int
		secure bool
		want   string
	}{
		{"localhost", 9091, false, "ws://localhost:9091"},
		{"example.com", 443, true, "wss://example.com:443"},
		{"::1", 9090, false, "ws://[::1]:9090"},
	}
	for _, tt := range tests {
		if got := URL(tt.host, tt.port, tt.secure); got != tt.want {
			t.Errorf("URL(%q, %d, %v) = %q, want %q", tt.host, tt.port, tt.secure, got, tt.want)
		}
	}
}

func TestDialAndEcho(t *testing.T) {
	url := newEchoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, url, Options{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteText([]byte(`{"uid":"abc"}`)); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if mt != TextMessage || string(data) != `{"uid":"abc"}` {
		t.Errorf("ReadMessage() = %d %q", mt, data)
	}

	if err := conn.WriteBinary([]byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteBinary() error = %v", err)
	}
	mt, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if mt != BinaryMessage || len(data) != 3 {
		t.Errorf("ReadMessage() = %d % x", mt, data)
	}
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1", Options{HandshakeTimeout: time.Second})
	if err == nil {
		t.Fatal("Dial() to closed port should fail")
	}
}

func TestCloseIdempotentAndWriteAfterClose(t *testing.T) {
	url := newEchoServer(t)

	conn, err := Dial(context.Background(), url, Options{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := conn.WriteBinary([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteBinary() after Close error = %v, want ErrClosed", err)
	}
}

func TestCloseDetails(t *testing.T) {
	code, text, ok := CloseDetails(&websocket.CloseError{Code: 1000, Text: "bye"})
	if !ok || code != 1000 || text != "bye" {
		t.Errorf("CloseDetails() = %d %q %v", code, text, ok)
	}
	if _, _, ok := CloseDetails(errors.New("boom")); ok {
		t.Error("CloseDetails() should not match a plain error")
	}
	if !IsNormalClose(&websocket.CloseError{Code: websocket.CloseNormalClosure}) {
		t.Error("IsNormalClose() should accept normal closure")
	}
}
