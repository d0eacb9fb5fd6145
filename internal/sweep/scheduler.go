package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	DefaultDwell = 500 * time.Millisecond

	// retuneTimeout bounds the retune after an interrupted dwell, the run
	// context is already cancelled by then
	retuneTimeout = 5 * time.Second
)

var (
	// ErrNoFrequencies is returned when a scheduler is created without targets
	ErrNoFrequencies = errors.New("sweep: no frequencies to scan")
)

// Tuner retunes the receive path
type Tuner interface {
	Tune(ctx context.Context, frequency float64) error
}

// VisitFunc consumes the source at frequency until deadline. It returns an
// error when the visit was cut short.
type VisitFunc func(ctx context.Context, frequency float64, deadline time.Time) error

// WithLogger sets the logger for the scheduler
func WithLogger(logger *slog.Logger) func(*Scheduler) {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithBudget sets the budget advanced after every completed visit
func WithBudget(b *Budget) func(*Scheduler) {
	return func(s *Scheduler) {
		s.budget = b
	}
}

// WithClock replaces the wall clock, used by tests
func WithClock(now func() time.Time) func(*Scheduler) {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler visits an ordered list of frequencies round-robin, dwelling a
// fixed time on each.
type Scheduler struct {
	frequencies []float64
	dwell       time.Duration
	index       int

	budget *Budget
	now    func() time.Time
	logger *slog.Logger
}

// NewScheduler creates a scheduler over frequencies; duplicates are allowed
func NewScheduler(frequencies []float64, dwell time.Duration, options ...func(*Scheduler)) (*Scheduler, error) {
	if len(frequencies) == 0 {
		return nil, ErrNoFrequencies
	}
	if dwell <= 0 {
		return nil, fmt.Errorf("sweep: dwell time must be positive: %s given", dwell)
	}

	s := Scheduler{
		frequencies: append([]float64(nil), frequencies...),
		dwell:       dwell,
		now:         time.Now,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

// Frequencies returns the frequencies in visiting order
func (s *Scheduler) Frequencies() []float64 {
	return append([]float64(nil), s.frequencies...)
}

// Dwell returns the dwell time per frequency
func (s *Scheduler) Dwell() time.Duration {
	return s.dwell
}

// Current returns the frequency the next visit goes to
func (s *Scheduler) Current() float64 {
	return s.frequencies[s.index]
}

// Next returns the current frequency and moves on, wrapping around
func (s *Scheduler) Next() float64 {
	f := s.frequencies[s.index]
	s.index = (s.index + 1) % len(s.frequencies)
	return f
}

// DwellDeadline returns the end of a dwell that starts at start
func (s *Scheduler) DwellDeadline(start time.Time) time.Time {
	return start.Add(s.dwell)
}

// Run sweeps until the context is cancelled or a visit fails. Every visit is
// preceded by a retune. A failed Tune aborts the sweep without retrying. A
// visit that returns an error does not advance the sweep, so a later Run
// retunes and resumes at the same frequency. A visit cut short by
// cancellation retunes the source to that frequency before Run returns.
func (s *Scheduler) Run(ctx context.Context, tuner Tuner, visit VisitFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		freq := s.Current()
		if err := tuner.Tune(ctx, freq); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("tuning to %.3f MHz: %w", freq/1e6, err)
		}

		s.logger.Debug("scanning", slog.String("frequency", fmt.Sprintf("%.3f MHz", freq/1e6)))

		if err := visit(ctx, freq, s.DwellDeadline(s.now())); err != nil {
			if ctx.Err() != nil {
				return errors.Join(err, s.retune(ctx, tuner, freq))
			}
			return err
		}

		s.Next()
		if s.budget != nil {
			s.budget.Advance()
		}
	}
}

// retune restores the tuning of an interrupted dwell
func (s *Scheduler) retune(ctx context.Context, tuner Tuner, freq float64) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), retuneTimeout)
	defer cancel()

	if err := tuner.Tune(ctx, freq); err != nil {
		return fmt.Errorf("retuning to %.3f MHz: %w", freq/1e6, err)
	}
	return nil
}
