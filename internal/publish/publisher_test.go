package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} { ch := make(chan struct{}); close(ch); return ch }
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

// fakeClient records publications; the embedded interface panics on
// anything else.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	messages     []published
	err          error
	disconnected bool
	block        chan struct{}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	if c.block != nil {
		<-c.block
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, published{topic: topic, qos: qos, retain: retained, payload: payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnected = true
}

func TestPublishDetectionAndCapture(t *testing.T) {
	client := &fakeClient{}
	p := newPublisher(client, Config{Broker: "tcp://localhost:1883", QoS: 1}, WithSessionID("run-1"))
	p.start()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.PublishDetection(detect.Event{Frequency: 2410e6, Timestamp: at, Power: 0.5, Strength: detect.Strong})
	p.PublishCapture(&capture.Session{Path: "a.cfile", Frequency: 2410e6, Target: 10, Written: 4}, context.Canceled)

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if len(client.messages) != 2 || !client.disconnected {
		t.Fatalf("got %d messages, disconnected = %v", len(client.messages), client.disconnected)
	}

	m := client.messages[0]
	if m.topic != "rf-sentinel/detections" || m.qos != 1 || m.retain {
		t.Errorf("detection published as %s qos %d retain %v", m.topic, m.qos, m.retain)
	}

	var detection map[string]any
	if err := json.Unmarshal(m.payload, &detection); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if detection["sessionID"] != "run-1" || detection["strength"] != "strong" || detection["frequency"] != 2410e6 {
		t.Errorf("detection payload = %s", m.payload)
	}

	var c CapturePayload
	if err := json.Unmarshal(client.messages[1].payload, &c); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if client.messages[1].topic != "rf-sentinel/captures" || c.Complete || c.Error != "context canceled" || c.Written != 4 {
		t.Errorf("capture payload = %s", client.messages[1].payload)
	}
}

func TestPublishQueueFull(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	p := newPublisher(client, Config{Broker: "tcp://localhost:1883", Topic: "lab"}, WithQueueSize(1))

	// Nothing drains the queue until start
	for i := 0; i < 3; i++ {
		p.PublishDetection(detect.Event{Frequency: float64(i)})
	}
	close(client.block)
	p.start()

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(client.messages) != 1 || client.messages[0].topic != "lab/detections" {
		t.Errorf("messages = %+v, want one on lab/detections", client.messages)
	}

	// Publishing after close is a no-op
	p.PublishDetection(detect.Event{})
	if err := p.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestPublishErrorIsLogged(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	p := newPublisher(client, Config{Broker: "tcp://localhost:1883"})
	p.start()

	p.PublishDetection(detect.Event{})
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(client.messages) != 1 {
		t.Errorf("got %d publish attempts, want 1", len(client.messages))
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid", config: Config{Broker: "tcp://broker:1883", QoS: 2}},
		{name: "no broker", config: Config{}, wantErr: true},
		{name: "bad qos", config: Config{Broker: "tcp://broker:1883", QoS: 3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
