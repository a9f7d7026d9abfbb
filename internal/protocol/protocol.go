// Package protocol implements the JSON control messages and binary audio
// framing spoken by a WhisperLive transcription server.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Server message tags carried in the "message" field.
const (
	ServerReady = "SERVER_READY"
	Disconnect  = "DISCONNECT"
)

// EndOfAudio is sent as a binary frame once a finite source is exhausted.
const EndOfAudio = "END_OF_AUDIO"

// Status values carried in the "status" field.
const (
	StatusWait    = "WAIT"
	StatusError   = "ERROR"
	StatusWarning = "WARNING"
)

// Task selects what the server does with the audio.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// ErrMalformed is returned when an inbound message is not a JSON object.
var ErrMalformed = errors.New("protocol: malformed message")

// Handshake is the configuration object sent once when the transport opens.
// A nil Language asks the server to auto-detect.
type Handshake struct {
	UID               string  `json:"uid"`
	Language          *string `json:"language"`
	Task              Task    `json:"task"`
	Model             string  `json:"model"`
	UseVAD            bool    `json:"use_vad"`
	MaxClients        int     `json:"max_clients"`
	MaxConnectionTime int     `json:"max_connection_time"`
}

// Marshal encodes the handshake as a JSON text frame payload.
func (h Handshake) Marshal() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal handshake: %w", err)
	}
	return data, nil
}

// Seconds is a segment timestamp. The server formats these as strings
// ("1.200"), older builds as numbers; both decode.
type Seconds float64

// UnmarshalJSON accepts a JSON number or a numeric string.
func (s *Seconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		if str == "" {
			*s = 0
			return nil
		}
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("protocol: segment time %q: %w", str, err)
		}
		*s = Seconds(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*s = Seconds(f)
	return nil
}

// Segment is one timestamped span of transcribed text.
type Segment struct {
	Start     Seconds `json:"start"`
	End       Seconds `json:"end"`
	Text      string  `json:"text"`
	Completed bool    `json:"completed,omitempty"`
}

// Message is a decoded inbound server object. Key presence is tracked
// separately from values since classification is by presence.
type Message struct {
	UID          string
	HasUID       bool
	Status       string
	HasStatus    bool
	Tag          string // "message" field when it is a string
	Backend      string
	Language     string
	LanguageProb float64
	HasLanguage  bool
	Segments     []Segment
	HasSegments  bool

	// Raw "message" value; numeric for WAIT statuses.
	RawMessage json.RawMessage
}

// Decode parses an inbound text frame.
func Decode(data []byte) (*Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: null body", ErrMalformed)
	}

	msg := &Message{}
	if raw, ok := fields["uid"]; ok {
		msg.HasUID = true
		_ = json.Unmarshal(raw, &msg.UID) // non-string uid never matches
	}
	if raw, ok := fields["status"]; ok {
		msg.HasStatus = true
		_ = json.Unmarshal(raw, &msg.Status)
	}
	if raw, ok := fields["message"]; ok {
		msg.RawMessage = raw
		_ = json.Unmarshal(raw, &msg.Tag)
	}
	if raw, ok := fields["backend"]; ok {
		_ = json.Unmarshal(raw, &msg.Backend)
	}
	if raw, ok := fields["language"]; ok {
		msg.HasLanguage = true
		_ = json.Unmarshal(raw, &msg.Language)
	}
	if raw, ok := fields["language_prob"]; ok {
		_ = json.Unmarshal(raw, &msg.LanguageProb)
	}
	if raw, ok := fields["segments"]; ok {
		msg.HasSegments = true
		if err := json.Unmarshal(raw, &msg.Segments); err != nil {
			return nil, fmt.Errorf("%w: segments: %v", ErrMalformed, err)
		}
	}
	return msg, nil
}

// WaitMinutes returns the estimated wait carried by a WAIT status.
func (m *Message) WaitMinutes() (float64, bool) {
	var f float64
	if err := json.Unmarshal(m.RawMessage, &f); err != nil {
		return 0, false
	}
	return f, true
}

// Text returns the "message" field rendered as text, whatever its JSON type.
func (m *Message) Text() string {
	if m.Tag != "" {
		return m.Tag
	}
	return string(bytes.Trim(m.RawMessage, `"`))
}

// Kind is the classification of an inbound message.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidUID
	KindStatus
	KindDisconnect
	KindServerReady
	KindLanguage
	KindSegments
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindInvalidUID:  "invalid_uid",
	KindStatus:      "status",
	KindDisconnect:  "disconnect",
	KindServerReady: "server_ready",
	KindLanguage:    "language",
	KindSegments:    "segments",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Classify applies the dispatch priority: uid, status, DISCONNECT,
// SERVER_READY, language, segments. First match wins.
func Classify(msg *Message, uid string) Kind {
	switch {
	case !msg.HasUID || msg.UID != uid:
		return KindInvalidUID
	case msg.HasStatus:
		return KindStatus
	case msg.Tag == Disconnect:
		return KindDisconnect
	case msg.Tag == ServerReady:
		return KindServerReady
	case msg.HasLanguage:
		return KindLanguage
	case msg.HasSegments:
		return KindSegments
	default:
		return KindUnknown
	}
}

// Summarize renders an inbound frame for debug logging. Segment arrays are
// collapsed to a count since they grow with the session.
func Summarize(data []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return fmt.Sprintf("binary data, length: %d", len(data))
	}
	if segs, ok := fields["segments"].([]any); ok {
		fields["segments"] = fmt.Sprintf("[%d segments]", len(segs))
	}
	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Sprintf("unrenderable message, length: %d", len(data))
	}
	return string(out)
}
