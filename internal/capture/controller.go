package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/rf-sentinel/internal/iq"
	"github.com/roman-kulish/rf-sentinel/internal/sweep"
)

const (
	DefaultDuration   = 3 * time.Second
	DefaultRepeatWait = 5
	DefaultBlockSize  = 4096 * 10
)

// Reader delivers sample blocks; a zero count is a transient underrun
type Reader interface {
	Read(buf []complex64) (int, error)
}

// Config holds the capture settings
type Config struct {
	Enabled         bool
	OutputDirectory string
	Duration        time.Duration // Length of a recording
	SampleRate      float64       // Rate the source delivers samples at
	BlockSize       int           // Samples per read
}

func (c *Config) Validate() error {
	if c.OutputDirectory == "" {
		return errors.New("capture.Config: output directory is required")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("capture.Config: duration must be positive: %s given", c.Duration)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("capture.Config: sample rate must be positive: %0.0f given", c.SampleRate)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("capture.Config: block size must be positive: %d given", c.BlockSize)
	}
	return nil
}

// Target returns the number of samples in one recording
func (c *Config) Target() int64 {
	return int64(c.Duration.Seconds() * c.SampleRate)
}

// WithLogger sets the logger for the controller
func WithLogger(logger *slog.Logger) func(*Controller) {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock replaces the wall clock, used by tests
func WithClock(now func() time.Time) func(*Controller) {
	return func(c *Controller) {
		c.now = now
	}
}

// WithCompletionHandler registers a function called after every session
// ends, with the error that ended it early if any.
func WithCompletionHandler(fn func(s *Session, err error)) func(*Controller) {
	return func(c *Controller) {
		c.onComplete = append(c.onComplete, fn)
	}
}

// WithStartHandler registers a function called when a session takes the
// receiver, before the first sample is read.
func WithStartHandler(fn func(frequency float64)) func(*Controller) {
	return func(c *Controller) {
		c.onStart = append(c.onStart, fn)
	}
}

// Controller records raw samples to disk on qualifying triggers. Recording
// is synchronous: the caller's acquisition loop is suspended until the
// session ends.
type Controller struct {
	config Config
	source Reader
	budget *sweep.Budget

	inProgress atomic.Bool
	buf        []complex64

	onStart    []func(float64)
	onComplete []func(*Session, error)

	now    func() time.Time
	logger *slog.Logger
}

// NewController creates a Controller reading from source. The budget spaces
// captures out across sweep cycles and may be nil for manual recordings.
func NewController(config Config, source Reader, budget *sweep.Budget, options ...func(*Controller)) (*Controller, error) {
	if config.BlockSize == 0 {
		config.BlockSize = DefaultBlockSize
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := Controller{
		config: config,
		source: source,
		budget: budget,
		buf:    make([]complex64, config.BlockSize),
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&c)
	}

	return &c, nil
}

// InProgress reports whether a capture currently holds the receiver
func (c *Controller) InProgress() bool {
	return c.inProgress.Load()
}

// TryTrigger starts a capture at frequency when captures are enabled, none is
// in progress and the sweep budget allows one. It returns whether a recording
// ran. File system failures are logged and end the session only; hardware
// errors and cancellation are returned.
func (c *Controller) TryTrigger(ctx context.Context, frequency float64) (bool, error) {
	if !c.config.Enabled || c.inProgress.Load() {
		return false, nil
	}
	if c.budget != nil && !c.budget.Claim() {
		c.logger.Debug("capture skipped, waiting for sweep budget",
			slog.String("frequency", fmt.Sprintf("%.3f MHz", frequency/1e6)))
		return false, nil
	}

	_, err := c.Record(ctx, frequency)

	var fsErr *FileSystemError
	if errors.As(err, &fsErr) {
		c.logger.Error(fmt.Sprintf("capture abandoned: %s", err.Error()))
		return false, nil
	}

	return true, err
}

// Record unconditionally records at frequency for the configured duration.
// The session is returned even when it ends early; Written then holds the
// number of whole samples on disk. A file that cannot be created still
// completes the session, with nothing written.
func (c *Controller) Record(ctx context.Context, frequency float64) (*Session, error) {
	if !c.inProgress.CompareAndSwap(false, true) {
		return nil, ErrCaptureInProgress
	}
	defer c.inProgress.Store(false)

	s := &Session{
		Frequency:  frequency,
		SampleRate: c.config.SampleRate,
		Started:    c.now(),
		Target:     c.config.Target(),
	}

	f, err := createFile(c.config.OutputDirectory, s.Started, frequency)
	if err != nil {
		var fsErr *FileSystemError
		if errors.As(err, &fsErr) {
			s.Path = fsErr.Path
		}
		s.Finished = c.now()
		c.complete(s, err)
		return s, err
	}
	s.Path = f.Name()

	c.logger.Info("saving to file",
		slog.String("path", s.Path),
		slog.String("frequency", fmt.Sprintf("%.3f MHz", frequency/1e6)),
		slog.Int64("samples", s.Target))

	for _, fn := range c.onStart {
		fn(frequency)
	}

	w := iq.NewWriter(f)
	err = c.stream(ctx, s, w)
	s.Written = w.Written()

	// A short write may have left part of a sample behind
	if tErr := f.Truncate(s.Bytes()); tErr != nil && err == nil {
		err = NewFileSystemError("truncate", s.Path, tErr)
	}
	if cErr := f.Close(); cErr != nil && err == nil {
		err = NewFileSystemError("close", s.Path, cErr)
	}

	s.Finished = c.now()

	if err != nil {
		c.logger.Warn(fmt.Sprintf("capture ended early: %s", err.Error()), slog.String("session", s.String()))
	} else {
		c.logger.Info("file dump complete, resuming scan", slog.String("session", s.String()))
	}

	c.complete(s, err)

	return s, err
}

func (c *Controller) complete(s *Session, err error) {
	for _, fn := range c.onComplete {
		fn(s, err)
	}
}

// stream copies samples from the source to w until the target is reached.
// Cancellation is checked after every block, so whatever was read before it
// is on disk.
func (c *Controller) stream(ctx context.Context, s *Session, w *iq.Writer) error {
	for w.Written() < s.Target {
		if err := ctx.Err(); err != nil {
			return err
		}

		want := min(int64(len(c.buf)), s.Target-w.Written())
		n, err := c.source.Read(c.buf[:want])

		if n > 0 {
			if _, wErr := w.Write(c.buf[:n]); wErr != nil {
				return NewFileSystemError("write", s.Path, wErr)
			}
		}

		if err != nil {
			return fmt.Errorf("capture at %.3f MHz: %w", s.Frequency/1e6, err)
		}
	}

	return nil
}
