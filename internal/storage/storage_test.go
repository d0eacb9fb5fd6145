package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
)

func event(freq float64, at time.Time, strength detect.Strength) detect.Event {
	return detect.Event{
		Frequency:         freq,
		Timestamp:         at,
		Power:             0.5,
		PowerDBFS:         -3.0103,
		EstimatedPowerDBm: -23.0103,
		Strength:          strength,
	}
}

func testStore(t *testing.T, path string) {
	ctx := context.Background()

	s := New(path)
	defer func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	id, err := s.CreateSession(ctx, "HackRF", "0000000000000000", map[string]any{"threshold": 0.01})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if sess.DeviceType != "HackRF" || sess.Config == nil || *sess.Config != `{"threshold":0.01}` {
		t.Errorf("Session() = %+v", sess)
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, freq := range []float64{433e6, 868e6, 2410e6, 433e6} {
		strength := detect.Weak
		if i%2 == 1 {
			strength = detect.Strong
		}
		if _, err = s.StoreDetection(ctx, id, event(freq, base.Add(time.Duration(i)*3*time.Second), strength)); err != nil {
			t.Fatalf("StoreDetection() error = %v", err)
		}
	}

	all, err := s.Detections(ctx, id)
	if err != nil {
		t.Fatalf("Detections() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("got %d detections, want 4", len(all))
	}
	if all[1].Strength != detect.Strong || all[1].Frequency != 868e6 || !all[1].Timestamp.Equal(base.Add(3*time.Second)) {
		t.Errorf("detection 1 = %+v", all[1])
	}

	ranged, err := s.Detections(ctx, id, WithFrequencyRange(400e6, 500e6))
	if err != nil {
		t.Fatalf("Detections() error = %v", err)
	}
	if len(ranged) != 2 {
		t.Errorf("got %d detections in 400-500 MHz, want 2", len(ranged))
	}

	limited, err := s.Detections(ctx, id, WithTimeRange(base.Add(time.Second), base.Add(time.Minute)), WithLimit(2))
	if err != nil {
		t.Fatalf("Detections() error = %v", err)
	}
	if len(limited) != 2 || limited[0].Frequency != 868e6 {
		t.Errorf("Detections(time range, limit 2) = %+v", limited)
	}

	session := &capture.Session{
		Path:       "/tmp/20240501_120003_868.000MHz.cfile",
		Frequency:  868e6,
		SampleRate: 2e6,
		Started:    base.Add(3 * time.Second),
		Finished:   base.Add(6 * time.Second),
		Target:     6e6,
		Written:    1e6,
	}
	if _, err = s.StoreCapture(ctx, id, session, context.Canceled); err != nil {
		t.Fatalf("StoreCapture() error = %v", err)
	}

	captures, err := s.Captures(ctx, id)
	if err != nil {
		t.Fatalf("Captures() error = %v", err)
	}
	if len(captures) != 1 {
		t.Fatalf("got %d captures, want 1", len(captures))
	}
	c := captures[0]
	if c.Written != 1e6 || c.Error == nil || *c.Error != context.Canceled.Error() || !c.Started.Equal(session.Started) {
		t.Errorf("capture = %+v", c)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != id {
		t.Errorf("Sessions() = %+v", sessions)
	}
}

func TestStoreMemory(t *testing.T) {
	testStore(t, "")
}

func TestStoreFile(t *testing.T) {
	testStore(t, filepath.Join(t.TempDir(), "journal.db"))
}

func TestSessionNotFound(t *testing.T) {
	s := New(MemoryDatabase)
	defer s.Close()

	if _, err := s.Session(context.Background(), "missing"); err == nil {
		t.Fatal("Session() expected error")
	}
}

func TestConfigData(t *testing.T) {
	tests := []struct {
		name   string
		config any
		want   string
		valid  bool
	}{
		{name: "nil", config: nil},
		{name: "string", config: "a: 1", want: "a: 1", valid: true},
		{name: "bytes", config: []byte("b"), want: "b", valid: true},
		{name: "struct", config: struct{ Gain int }{Gain: 30}, want: `{"Gain":30}`, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toConfigData(tt.config)
			if err != nil {
				t.Fatalf("toConfigData() error = %v", err)
			}
			if got.Valid != tt.valid || got.String != tt.want {
				t.Errorf("toConfigData() = %+v, want %q (%v)", got, tt.want, tt.valid)
			}
		})
	}

	if _, err := toConfigData(make(chan int)); err == nil {
		t.Error("toConfigData(chan) expected error")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "journal.db"))
	if _, err := s.CreateSession(context.Background(), "RTL-SDR", "0", nil); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := errors.Join(s.Close(), s.Close()); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
