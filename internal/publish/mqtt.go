// Package publish forwards finished transcript segments to an MQTT broker.
package publish

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chaz8081/gostt-live/internal/protocol"
	"github.com/chaz8081/gostt-live/internal/transcript"
)

// DefaultTopic is used when Options.Topic is empty.
const DefaultTopic = "gostt-live/transcript"

const publishTimeout = 5 * time.Second

// Options configures the MQTT connection.
type Options struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string
	Username string
	Password string
	QoS      byte
	Retain   bool
	Logger   *slog.Logger
}

// Payload is the JSON body of one published segment.
type Payload struct {
	UID   string  `json:"uid"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// NewPayload builds the message for seg.
func NewPayload(uid string, seg protocol.Segment) Payload {
	return Payload{
		UID:   uid,
		Start: float64(seg.Start),
		End:   float64(seg.End),
		Text:  strings.TrimSpace(seg.Text),
	}
}

// publisher is the part of mqtt.Client the Publisher uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher sends completed segments to a topic.
type Publisher struct {
	client publisher
	conn   mqtt.Client
	topic  string
	qos    byte
	retain bool
	logger *slog.Logger
}

func clientID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "gostt-live_" + hex.EncodeToString(b)
}

// Connect dials the broker and returns a Publisher.
func Connect(opts Options) (*Publisher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(clientID())
	if opts.Username != "" {
		co.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetKeepAlive(60 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetConnectTimeout(10 * time.Second)
	co.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("[mqtt] connected to broker", "broker", opts.Broker)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("[mqtt] connection lost", "error", err)
	})

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("publish: connect to %s: %w", opts.Broker, token.Error())
	}

	p := newPublisher(client, opts, logger)
	p.conn = client
	return p, nil
}

func newPublisher(client publisher, opts Options, logger *slog.Logger) *Publisher {
	topic := opts.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		client: client,
		topic:  topic,
		qos:    opts.QoS,
		retain: opts.Retain,
		logger: logger,
	}
}

// Publish sends one segment and waits for the broker to accept it.
func (p *Publisher) Publish(uid string, seg protocol.Segment) error {
	payload := NewPayload(uid, seg)
	if payload.Text == "" {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("publish: marshal segment: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, p.retain, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish: %s: timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %s: %w", p.topic, err)
	}
	return nil
}

// OnCompleted returns a transcript listener publishing each final segment
// under uid. Failures are logged.
func (p *Publisher) OnCompleted(uid string) transcript.CompletedFunc {
	return func(seg protocol.Segment) {
		if err := p.Publish(uid, seg); err != nil {
			p.logger.Error("[mqtt] publish failed", "error", err)
		}
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.conn != nil && p.conn.IsConnected() {
		p.conn.Disconnect(250)
		p.logger.Info("[mqtt] disconnected from broker")
	}
}
