package detect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/roman-kulish/rf-sentinel/internal/spectrum"
)

const (
	DefaultThreshold     = 1e-2
	DefaultHighThreshold = 0.1
	DefaultCooldown      = 2 * time.Second
	DefaultBlockSize     = 4096 * 10

	// DefaultFullScaleDBm is the assumed input level at digital full scale of
	// a HackRF. It is a rough figure, not a calibration.
	DefaultFullScaleDBm = -20
)

// Config holds the detection thresholds
type Config struct {
	Threshold     float64       // Linear power a block must exceed to be reported
	HighThreshold float64       // Linear power above which a detection is strong
	Cooldown      time.Duration // Minimum time between two reported detections
	FullScaleDBm  float64       // Offset from dBFS to the dBm estimate
	BlockSize     int           // Samples per read
}

func (c *Config) Validate() error {
	if c.Threshold < 0 {
		return fmt.Errorf("detect.Config: threshold must not be negative: %g given", c.Threshold)
	}
	if c.HighThreshold < c.Threshold {
		return fmt.Errorf("detect.Config: high threshold %g is below threshold %g", c.HighThreshold, c.Threshold)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("detect.Config: cooldown must not be negative: %s given", c.Cooldown)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("detect.Config: block size must be positive: %d given", c.BlockSize)
	}
	return nil
}

// Reader delivers sample blocks; a zero count is a transient underrun
type Reader interface {
	Read(buf []complex64) (int, error)
}

// Trigger is asked to start a capture on every strong detection
type Trigger interface {
	TryTrigger(ctx context.Context, frequency float64) (bool, error)
}

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) func(*Engine) {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTrigger sets the capture trigger for strong detections
func WithTrigger(t Trigger) func(*Engine) {
	return func(e *Engine) {
		e.trigger = t
	}
}

// WithClock replaces the wall clock, used by tests
func WithClock(now func() time.Time) func(*Engine) {
	return func(e *Engine) {
		e.now = now
	}
}

// WithEventHandler registers a function called with every reported event
func WithEventHandler(fn func(Event)) func(*Engine) {
	return func(e *Engine) {
		e.onEvent = append(e.onEvent, fn)
	}
}

// WithBlockHandler registers a function called with every non-empty block
// read during a dwell, before it is scored. The block is only valid for the
// duration of the call.
func WithBlockHandler(fn func(frequency float64, block []complex64)) func(*Engine) {
	return func(e *Engine) {
		e.onBlock = append(e.onBlock, fn)
	}
}

// WithUnderrunHandler registers a function called on every empty read
func WithUnderrunHandler(fn func(frequency float64)) func(*Engine) {
	return func(e *Engine) {
		e.onUnderrun = append(e.onUnderrun, fn)
	}
}

// Engine scores sample blocks and reports detections. A detection is reported
// when the block power is strictly above the threshold and the cooldown since
// the previous reported detection has strictly elapsed. Rejected blocks never
// touch the cooldown.
type Engine struct {
	config Config

	lastDetection time.Time // zero until the first reported detection
	buf           []complex64

	trigger    Trigger
	onEvent    []func(Event)
	onBlock    []func(float64, []complex64)
	onUnderrun []func(float64)

	now    func() time.Time
	logger *slog.Logger
}

// New creates an Engine. The cooldown starts out elapsed.
func New(config Config, options ...func(*Engine)) (*Engine, error) {
	if config.BlockSize == 0 {
		config.BlockSize = DefaultBlockSize
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := Engine{
		config: config,
		buf:    make([]complex64, config.BlockSize),
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&e)
	}

	return &e, nil
}

// LastDetection returns the time of the last reported detection, zero if none
func (e *Engine) LastDetection() time.Time {
	return e.lastDetection
}

// Evaluate scores one block read at frequency. It returns the reported event,
// or nil when the block is below threshold or inside the cooldown. A strong
// detection is passed to the trigger, whose error is returned with the event.
func (e *Engine) Evaluate(ctx context.Context, frequency float64, block []complex64) (*Event, error) {
	power := spectrum.Power(block)
	if !(power > e.config.Threshold) {
		return nil, nil
	}

	now := e.now()
	if !e.lastDetection.IsZero() && !(now.Sub(e.lastDetection) > e.config.Cooldown) {
		return nil, nil
	}

	strength := Weak
	if power > e.config.HighThreshold {
		strength = Strong
	}

	dbfs := 10 * math.Log10(power)
	ev := Event{
		Frequency:         frequency,
		Timestamp:         now,
		Power:             power,
		PowerDBFS:         dbfs,
		EstimatedPowerDBm: dbfs + e.config.FullScaleDBm,
		Strength:          strength,
	}

	e.lastDetection = now

	e.logger.Info(fmt.Sprintf("%s signal detected", strength),
		slog.String("frequency", fmt.Sprintf("%.3f MHz", frequency/1e6)),
		slog.String("power", fmt.Sprintf("%.6f", power)),
		slog.String("estimatedPower", fmt.Sprintf("%.2f dBm", ev.EstimatedPowerDBm)),
	)

	for _, fn := range e.onEvent {
		fn(ev)
	}

	if strength == Strong && e.trigger != nil {
		if _, err := e.trigger.TryTrigger(ctx, frequency); err != nil {
			return &ev, err
		}
	}

	return &ev, nil
}

// Dwell reads and scores blocks at frequency until deadline. Cancellation is
// checked after every block. Empty reads are retried. A read error ends the
// dwell and is returned as is.
func (e *Engine) Dwell(ctx context.Context, src Reader, frequency float64, deadline time.Time) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.now().Before(deadline) {
			return nil
		}

		n, err := src.Read(e.buf)
		if n > 0 {
			block := e.buf[:n]

			for _, fn := range e.onBlock {
				fn(frequency, block)
			}

			if _, tErr := e.Evaluate(ctx, frequency, block); tErr != nil {
				return tErr
			}
		}

		if err != nil {
			return err
		}

		if n == 0 {
			for _, fn := range e.onUnderrun {
				fn(frequency)
			}
		}
	}
}
