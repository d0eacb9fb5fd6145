package monitor

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
	"github.com/roman-kulish/rf-sentinel/internal/sdr/driver"
	"github.com/roman-kulish/rf-sentinel/internal/spectrum"
	"github.com/roman-kulish/rf-sentinel/internal/sweep"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// fakeSource delivers constant samples, advancing the clock by the sample
// time of every read.
type fakeSource struct {
	clock      *fakeClock
	sampleRate float64
	value      complex64

	tuned   []float64
	tuneErr error
	reads   int
	eofAt   int
}

func (s *fakeSource) Configure(sampleRate, gain float64) error {
	s.sampleRate = sampleRate
	return nil
}

func (s *fakeSource) Tune(ctx context.Context, frequency float64) error {
	if s.tuneErr != nil {
		return &driver.HardwareError{Op: "tune", Frequency: frequency, Err: s.tuneErr}
	}
	s.tuned = append(s.tuned, frequency)
	return nil
}

func (s *fakeSource) Read(buf []complex64) (int, error) {
	s.reads++
	if s.eofAt > 0 && s.reads >= s.eofAt {
		return 0, io.EOF
	}

	for i := range buf {
		buf[i] = s.value
	}
	s.clock.now = s.clock.now.Add(time.Duration(float64(len(buf)) * float64(time.Second) / s.sampleRate))
	return len(buf), nil
}

func (s *fakeSource) Close() error { return nil }

var frequencies = []float64{433e6, 868e6, 915e6, 2410e6}

func TestMonitorSweepAndCapture(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	src := &fakeSource{clock: clock, value: 1.5}
	if err := src.Configure(1000, 0); err != nil {
		t.Fatal(err)
	}

	budget := sweep.NewBudget(len(frequencies), capture.DefaultRepeatWait)
	scheduler, err := sweep.NewScheduler(frequencies, time.Second, sweep.WithBudget(budget), sweep.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	var captured []int64
	controller, err := capture.NewController(capture.Config{
		Enabled:         true,
		OutputDirectory: t.TempDir(),
		Duration:        500 * time.Millisecond,
		SampleRate:      1000,
		BlockSize:       100,
	}, src, budget,
		capture.WithClock(clock.Now),
		capture.WithCompletionHandler(func(s *capture.Session, err error) {
			if err != nil || !s.Complete() {
				t.Errorf("capture %s ended with %v", s, err)
			}
			captured = append(captured, budget.Visits())
		}),
	)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	var events int
	engine, err := detect.New(detect.Config{
		Threshold:     detect.DefaultThreshold,
		HighThreshold: detect.DefaultHighThreshold,
		FullScaleDBm:  detect.DefaultFullScaleDBm,
		BlockSize:     100,
	}, detect.WithClock(clock.Now), detect.WithTrigger(controller), detect.WithEventHandler(func(detect.Event) { events++ }))
	if err != nil {
		t.Fatalf("detect.New() error = %v", err)
	}

	estimator, err := spectrum.NewEstimator(50, spectrum.Hann)
	if err != nil {
		t.Fatalf("NewEstimator() error = %v", err)
	}
	waterfall := spectrum.NewWaterfall(10, 50, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	visits := 0
	m := New(src, scheduler, engine,
		WithWaterfall(estimator, waterfall, 1000),
		WithVisitHandler(func(float64) {
			if visits++; visits == 4*len(frequencies) {
				cancel()
			}
		}),
	)

	if err = m.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []int64{0, 5, 10, 15}
	if len(captured) != len(want) {
		t.Fatalf("captures at visits %v, want %v", captured, want)
	}
	for i := range want {
		if captured[i] != want[i] {
			t.Errorf("capture %d at visit %d, want %d", i, captured[i], want[i])
		}
	}

	if len(src.tuned) != 16 {
		t.Fatalf("tuned %d times, want 16", len(src.tuned))
	}
	for i, f := range src.tuned {
		if f != frequencies[i%len(frequencies)] {
			t.Errorf("visit %d tuned to %v, want %v", i, f, frequencies[i%len(frequencies)])
		}
	}

	// 12 visits of 10 blocks and 4 visits that spent half the dwell capturing,
	// every block holds two FFT windows
	if got := waterfall.Pushed(); got != 280 {
		t.Errorf("waterfall rows = %d, want 280", got)
	}
	if frame := waterfall.Frame(); frame.CenterFrequency != 2410e6 || frame.SampleRate != 1000 {
		t.Errorf("frame tuning = %v, %v", frame.CenterFrequency, frame.SampleRate)
	}
	if events != 140 {
		t.Errorf("events = %d, want 140", events)
	}
}

func TestMonitorSourceExhausted(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	src := &fakeSource{clock: clock, sampleRate: 1000, eofAt: 25}

	scheduler, err := sweep.NewScheduler(frequencies, time.Second, sweep.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	engine, err := detect.New(detect.Config{Threshold: 1, HighThreshold: 2, BlockSize: 100}, detect.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("detect.New() error = %v", err)
	}

	var visited []float64
	m := New(src, scheduler, engine, WithVisitHandler(func(f float64) { visited = append(visited, f) }))

	if err = m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(visited) != 2 {
		t.Errorf("completed %d visits, want 2", len(visited))
	}
}

func TestMonitorTuneFailure(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	src := &fakeSource{clock: clock, sampleRate: 1000, tuneErr: errors.New("PLL not locked")}

	scheduler, err := sweep.NewScheduler(frequencies, time.Second, sweep.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	engine, err := detect.New(detect.Config{Threshold: 1, HighThreshold: 2, BlockSize: 100})
	if err != nil {
		t.Fatalf("detect.New() error = %v", err)
	}

	err = New(src, scheduler, engine).Run(context.Background())

	var hwErr *driver.HardwareError
	if !errors.As(err, &hwErr) || hwErr.Frequency != 433e6 {
		t.Fatalf("Run() error = %v, want HardwareError at 433 MHz", err)
	}
	if src.reads != 0 {
		t.Errorf("reads = %d after a failed tune, want 0", src.reads)
	}
}
