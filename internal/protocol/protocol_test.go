package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestHandshakeMarshal(t *testing.T) {
	h := Handshake{
		UID:               "abc",
		Task:              TaskTranscribe,
		Model:             "turbo",
		UseVAD:            true,
		MaxClients:        4,
		MaxConnectionTime: 600,
	}
	data, err := h.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"uid":"abc","language":null,"task":"transcribe","model":"turbo","use_vad":true,"max_clients":4,"max_connection_time":600}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestHandshakeMarshalWithLanguage(t *testing.T) {
	lang := "fr"
	h := Handshake{UID: "abc", Language: &lang, Task: TaskTranslate, Model: "small"}
	data, err := h.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["language"] != "fr" {
		t.Errorf("language = %v, want fr", got["language"])
	}
	if got["task"] != "translate" {
		t.Errorf("task = %v, want translate", got["task"])
	}
}

func TestDecodeServerReady(t *testing.T) {
	msg, err := Decode([]byte(`{"uid":"abc","message":"SERVER_READY","backend":"faster_whisper"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if msg.UID != "abc" || msg.Tag != ServerReady || msg.Backend != "faster_whisper" {
		t.Errorf("Decode() = %+v", msg)
	}
}

func TestDecodeSegmentTimes(t *testing.T) {
	msg, err := Decode([]byte(`{"uid":"abc","segments":[
		{"start":"0.000","end":"1.200","text":"hello","completed":true},
		{"start":1.2,"end":2,"text":"world"}]}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(msg.Segments) != 2 {
		t.Fatalf("len(Segments) = %d, want 2", len(msg.Segments))
	}
	if msg.Segments[0].End != 1.2 || !msg.Segments[0].Completed {
		t.Errorf("Segments[0] = %+v", msg.Segments[0])
	}
	if msg.Segments[1].Start != 1.2 || msg.Segments[1].End != 2 || msg.Segments[1].Completed {
		t.Errorf("Segments[1] = %+v", msg.Segments[1])
	}
}

func TestDecodeMalformed(t *testing.T) {
	inputs := []string{
		`not json`,
		`[1,2,3]`,
		`null`,
		`{"uid":"abc","segments":"nope"}`,
	}
	for _, in := range inputs {
		_, err := Decode([]byte(in))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q) error = %v, want ErrMalformed", in, err)
		}
	}
}

func TestWaitMinutes(t *testing.T) {
	msg, err := Decode([]byte(`{"uid":"abc","status":"WAIT","message":3.4}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got, ok := msg.WaitMinutes()
	if !ok || got != 3.4 {
		t.Errorf("WaitMinutes() = %v, %v, want 3.4, true", got, ok)
	}
	if msg.Text() != "3.4" {
		t.Errorf("Text() = %q, want 3.4", msg.Text())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Kind
	}{
		{"uid mismatch", `{"uid":"xyz","message":"SERVER_READY","backend":"b"}`, KindInvalidUID},
		{"missing uid", `{"segments":[]}`, KindInvalidUID},
		{"non-string uid", `{"uid":7,"status":"WAIT"}`, KindInvalidUID},
		{"status", `{"uid":"abc","status":"ERROR","message":"boom"}`, KindStatus},
		{"status beats segments", `{"uid":"abc","status":"WARNING","segments":[]}`, KindStatus},
		{"disconnect", `{"uid":"abc","message":"DISCONNECT"}`, KindDisconnect},
		{"ready", `{"uid":"abc","message":"SERVER_READY","backend":"tensorrt"}`, KindServerReady},
		{"language", `{"uid":"abc","language":"en","language_prob":0.98}`, KindLanguage},
		{"language beats segments", `{"uid":"abc","language":"en","segments":[]}`, KindLanguage},
		{"segments", `{"uid":"abc","segments":[{"start":0,"end":1,"text":"hi"}]}`, KindSegments},
		{"unknown", `{"uid":"abc","foo":1}`, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.body))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got := Classify(msg, "abc"); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSummarizeCollapsesSegments(t *testing.T) {
	got := Summarize([]byte(`{"uid":"abc","segments":[{"text":"a"},{"text":"b"}]}`))
	if !strings.Contains(got, "[2 segments]") {
		t.Errorf("Summarize() = %q, want segment count", got)
	}
	if strings.Contains(got, `"text"`) {
		t.Errorf("Summarize() should not include segment bodies: %q", got)
	}
}

func TestSummarizeNonJSON(t *testing.T) {
	got := Summarize([]byte{0x01, 0x02, 0x03})
	if got != "binary data, length: 3" {
		t.Errorf("Summarize() = %q", got)
	}
}

func TestKindString(t *testing.T) {
	if KindSegments.String() != "segments" {
		t.Errorf("KindSegments.String() = %q", KindSegments.String())
	}
	if Kind(42).String() != "kind(42)" {
		t.Errorf("Kind(42).String() = %q", Kind(42).String())
	}
}
