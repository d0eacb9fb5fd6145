package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
)

const (
	DefaultTopic     = "rf-sentinel"
	DefaultQueueSize = 256

	publishTimeout = 5 * time.Second
	quiesce        = 250 // ms
)

// Config holds the MQTT broker settings
type Config struct {
	Broker   string
	Topic    string // Topic prefix
	ClientID string
	Username string
	Password string
	QoS      byte
	Retain   bool
}

func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("publish.Config: broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("publish.Config: QoS must be 0, 1 or 2: %d given", c.QoS)
	}
	return nil
}

// DetectionPayload is published for every reported detection
type DetectionPayload struct {
	SessionID string `json:"sessionID,omitempty"`
	detect.Event
}

// CapturePayload is published when a capture session ends
type CapturePayload struct {
	SessionID string `json:"sessionID,omitempty"`
	capture.Session
	Complete bool   `json:"complete"`
	Error    string `json:"error,omitempty"`
}

type message struct {
	topic   string
	payload any
}

// WithLogger sets the logger for the publisher
func WithLogger(logger *slog.Logger) func(*Publisher) {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithSessionID tags every payload with the run id
func WithSessionID(id string) func(*Publisher) {
	return func(p *Publisher) {
		p.sessionID = id
	}
}

// WithQueueSize sets how many messages may wait for the broker
func WithQueueSize(size int) func(*Publisher) {
	return func(p *Publisher) {
		p.queueSize = size
	}
}

// Publisher publishes detections and captures to an MQTT broker. Messages are
// queued and sent from a background goroutine so the acquisition loop never
// waits on the network; when the queue is full messages are dropped.
type Publisher struct {
	client    mqtt.Client
	config    Config
	sessionID string

	queueSize int
	queue     chan message
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	logger *slog.Logger
}

// New connects to the broker and starts the publishing goroutine
func New(config Config, options ...func(*Publisher)) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientID := config.ClientID
	if clientID == "" {
		clientID = "rf-sentinel_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}

	p := newPublisher(nil, config, options...)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(clientID)

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		p.logger.Info("connected to broker", slog.String("broker", config.Broker))
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		p.logger.Warn(fmt.Sprintf("connection lost: %s", err.Error()))
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		p.logger.Info("attempting to reconnect")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		p.logger.Warn("broker not reachable yet, retrying in background", slog.String("broker", config.Broker))
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", err)
	}

	p.client = client
	p.start()

	return p, nil
}

func newPublisher(client mqtt.Client, config Config, options ...func(*Publisher)) *Publisher {
	if config.Topic == "" {
		config.Topic = DefaultTopic
	}

	p := Publisher{
		client:    client,
		config:    config,
		queueSize: DefaultQueueSize,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&p)
	}

	p.queue = make(chan message, max(p.queueSize, 1))
	return &p
}

func (p *Publisher) start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		for m := range p.queue {
			if err := p.send(m); err != nil {
				p.logger.Error(err.Error(), slog.String("topic", m.topic))
			}
		}
	}()
}

func (p *Publisher) send(m message) error {
	data, err := json.Marshal(m.payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	token := p.client.Publish(m.topic, p.config.QoS, p.config.Retain, data)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publishing: timed out")
	}
	if err = token.Error(); err != nil {
		return fmt.Errorf("publishing: %w", err)
	}
	return nil
}

func (p *Publisher) enqueue(topic string, payload any) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	select {
	case p.queue <- message{topic: topic, payload: payload}:
	default:
		p.logger.Warn("publish queue full, message dropped", slog.String("topic", topic))
	}
}

// Topic returns the full topic of a message kind
func (p *Publisher) Topic(kind string) string {
	return p.config.Topic + "/" + kind
}

// PublishDetection queues a detection event
func (p *Publisher) PublishDetection(ev detect.Event) {
	p.enqueue(p.Topic("detections"), DetectionPayload{SessionID: p.sessionID, Event: ev})
}

// PublishCapture queues a finished capture session
func (p *Publisher) PublishCapture(s *capture.Session, captureErr error) {
	payload := CapturePayload{SessionID: p.sessionID, Session: *s, Complete: captureErr == nil && s.Complete()}
	if captureErr != nil {
		payload.Error = captureErr.Error()
	}
	p.enqueue(p.Topic("captures"), payload)
}

// Close flushes the queue, waiting at most until ctx is done, and
// disconnects from the broker.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("flushing publish queue: %w", ctx.Err())
	}

	p.client.Disconnect(quiesce)
	return err
}
