package server

import (
	"sync"
	"time"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
)

// Status is the live state of a monitor run
type Status struct {
	SessionID  string        `json:"sessionID,omitempty"`
	Device     string        `json:"device"`
	Started    time.Time     `json:"started"`
	Uptime     string        `json:"uptime"`
	Frequency  float64       `json:"frequency"` // Currently tuned, Hz
	Cycles     float64       `json:"cycles"`    // Completed sweep cycles
	Detections int64         `json:"detections"`
	Captures   int64         `json:"captures"`
	Capturing  bool          `json:"capturing"`
	LastEvent  *detect.Event `json:"lastEvent,omitempty"`
	LastError  string        `json:"lastError,omitempty"`
}

// Tracker accumulates Status from the monitor's hooks. It is safe for
// concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	status Status
	now    func() time.Time
}

func NewTracker(sessionID, device string, started time.Time) *Tracker {
	return &Tracker{
		status: Status{SessionID: sessionID, Device: device, Started: started},
		now:    time.Now,
	}
}

func (t *Tracker) Tune(frequency float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Frequency = frequency
}

func (t *Tracker) Visit(cycles float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Cycles = cycles
}

func (t *Tracker) Detection(ev detect.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Detections++
	t.status.LastEvent = &ev
}

func (t *Tracker) CaptureStarted(float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Capturing = true
}

func (t *Tracker) CaptureFinished(_ *capture.Session, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Capturing = false
	t.status.Captures++
	if err != nil {
		t.status.LastError = err.Error()
	}
}

// Status returns a copy of the current status
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.status
	if s.LastEvent != nil {
		ev := *s.LastEvent
		s.LastEvent = &ev
	}
	s.Uptime = t.now().Sub(s.Started).Truncate(time.Second).String()
	return s
}
