package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/rf-sentinel/internal/detect"
	"github.com/roman-kulish/rf-sentinel/internal/sdr"
	"github.com/roman-kulish/rf-sentinel/internal/spectrum"
	"github.com/roman-kulish/rf-sentinel/internal/sweep"
)

// Dweller consumes the source at one frequency until a deadline
type Dweller interface {
	Dwell(ctx context.Context, src detect.Reader, frequency float64, deadline time.Time) error
}

// WithLogger sets the logger for the monitor
func WithLogger(logger *slog.Logger) func(*Monitor) {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithWaterfall feeds every full FFT window read during a dwell through e
// into w. sampleRate labels the waterfall frames.
func WithWaterfall(e *spectrum.Estimator, w *spectrum.Waterfall, sampleRate float64) func(*Monitor) {
	return func(m *Monitor) {
		m.estimator = e
		m.waterfall = w
		m.sampleRate = sampleRate
	}
}

// WithTuneHandler registers a function called after every successful retune
func WithTuneHandler(fn func(frequency float64)) func(*Monitor) {
	return func(m *Monitor) {
		m.onTune = append(m.onTune, fn)
	}
}

// WithVisitHandler registers a function called after every completed visit
func WithVisitHandler(fn func(frequency float64)) func(*Monitor) {
	return func(m *Monitor) {
		m.onVisit = append(m.onVisit, fn)
	}
}

// Monitor runs the acquisition loop: the scheduler picks and tunes a
// frequency, the dweller scores blocks until the dwell deadline, then the
// sweep moves on. Everything runs on the caller's goroutine.
type Monitor struct {
	source    sdr.Source
	scheduler *sweep.Scheduler
	dweller   Dweller

	estimator  *spectrum.Estimator
	waterfall  *spectrum.Waterfall
	sampleRate float64
	row        spectrum.Row

	onTune  []func(float64)
	onVisit []func(float64)

	logger *slog.Logger
}

// New creates a Monitor over a configured source
func New(source sdr.Source, scheduler *sweep.Scheduler, dweller Dweller, options ...func(*Monitor)) *Monitor {
	m := Monitor{
		source:    source,
		scheduler: scheduler,
		dweller:   dweller,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&m)
	}

	if m.estimator != nil {
		m.row = make(spectrum.Row, m.estimator.Size())
	}

	return &m
}

// Run sweeps until the context is cancelled, the source is exhausted or a
// hardware error occurs. Cancellation and the end of a recorded source are a
// clean stop and return nil.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitoring",
		slog.Int("frequencies", len(m.scheduler.Frequencies())),
		slog.String("dwell", m.scheduler.Dwell().String()))

	err := m.scheduler.Run(ctx, tunerFunc(m.tune), m.visit)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		m.logger.Info("monitoring stopped")
		return nil
	case errors.Is(err, io.EOF):
		m.logger.Info("source exhausted")
		return nil
	default:
		return err
	}
}

func (m *Monitor) tune(ctx context.Context, frequency float64) error {
	if err := m.source.Tune(ctx, frequency); err != nil {
		return err
	}

	if m.waterfall != nil {
		m.waterfall.SetTuning(frequency, m.sampleRate)
	}

	for _, fn := range m.onTune {
		fn(frequency)
	}
	return nil
}

func (m *Monitor) visit(ctx context.Context, frequency float64, deadline time.Time) error {
	var src detect.Reader = m.source
	if m.estimator != nil {
		src = readerFunc(m.read)
	}

	if err := m.dweller.Dwell(ctx, src, frequency, deadline); err != nil {
		return err
	}

	for _, fn := range m.onVisit {
		fn(frequency)
	}
	return nil
}

// read passes blocks through to the dweller, feeding the waterfall on the way
func (m *Monitor) read(buf []complex64) (int, error) {
	n, err := m.source.Read(buf)
	if n > 0 {
		m.feed(buf[:n])
	}
	return n, err
}

// feed pushes a row for every full FFT window of block. A trailing partial
// window is dropped.
func (m *Monitor) feed(block []complex64) {
	size := m.estimator.Size()
	for len(block) >= size {
		m.push(block[:size])
		block = block[size:]
	}
}

func (m *Monitor) push(window []complex64) {
	if err := m.estimator.EstimateInto(m.row, window); err != nil {
		m.logger.Warn(fmt.Sprintf("spectrum estimate: %s", err.Error()))
		return
	}
	if err := m.waterfall.Push(m.row); err != nil {
		m.logger.Warn(fmt.Sprintf("waterfall: %s", err.Error()))
	}
}

type tunerFunc func(ctx context.Context, frequency float64) error

func (f tunerFunc) Tune(ctx context.Context, frequency float64) error {
	return f(ctx, frequency)
}

type readerFunc func(buf []complex64) (int, error)

func (f readerFunc) Read(buf []complex64) (int, error) {
	return f(buf)
}
