package sdr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/roman-kulish/rf-sentinel/internal/sdr/driver"
)

const (
	// DefaultSettle is how much sample time is discarded after a retune while
	// the tuner PLL locks.
	DefaultSettle = 50 * time.Millisecond
)

var (
	// ErrNotConfigured is returned when the device is tuned before Configure
	ErrNotConfigured = errors.New("device is not configured")

	// ErrNotTuned is returned when the device is read before Tune
	ErrNotTuned = errors.New("device is not tuned")

	// ErrStreamClosed is returned when the receive process stops delivering data
	ErrStreamClosed = errors.New("stream closed")
)

// Handler interface defines the methods required for driving a radio through
// its receive tool
type Handler interface {
	// Validate checks that the device accepts the sample rate and gain.
	Validate(sampleRate, gain float64) error
	// Cmd builds the receive command streaming raw IQ to stdout.
	Cmd(ctx context.Context, t Tuning) (*exec.Cmd, error)
	// SampleSize is the number of bytes of one complex sample in the stream.
	SampleSize() int
	// Decode converts len(dst) samples from raw into dst.
	Decode(dst []complex64, raw []byte)
	// Device returns the device type.
	Device() string
}

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger.With(
			slog.String("device", d.handler.Device()),
			slog.String("deviceID", d.deviceID),
		)
	}
}

// WithSettle sets the sample time discarded after each retune
func WithSettle(settle time.Duration) func(d *Device) {
	return func(d *Device) {
		d.settle = settle
	}
}

// Device is a Source backed by the receive tool of a radio. Every retune
// restarts the tool with the new tuning.
type Device struct {
	deviceID string
	handler  Handler

	tuning     Tuning
	configured bool

	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	wg     sync.WaitGroup

	raw     []byte
	carry   []byte // bytes of a partially received sample
	readErr error

	settle time.Duration
	logger *slog.Logger
}

// NewDevice creates a new Device instance with a discard logger
func NewDevice(deviceID string, h Handler, options ...func(d *Device)) *Device {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	d := Device{
		deviceID: deviceID,
		handler:  h,
		logger:   logger,
		settle:   DefaultSettle,
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// DeviceID returns the human-readable identifier of the device
func (d *Device) DeviceID() string {
	return d.deviceID
}

// Device returns the device type
func (d *Device) Device() string {
	return d.handler.Device()
}

// Configure validates and stores the sample rate and gain. They take effect on
// the next Tune.
func (d *Device) Configure(sampleRate, gain float64) error {
	if err := d.handler.Validate(sampleRate, gain); err != nil {
		return err
	}

	d.tuning.SampleRate = sampleRate
	d.tuning.Gain = gain
	d.configured = true

	return nil
}

// Tune restarts the receive tool on the frequency and discards the settle
// period from the new stream.
func (d *Device) Tune(ctx context.Context, frequency float64) error {
	if !d.configured {
		return driver.NewHardwareError("tune", frequency, ErrNotConfigured)
	}

	if err := d.stop(); err != nil {
		d.logger.Warn(fmt.Sprintf("stopping stream: %s", err.Error()))
	}

	tuning := d.tuning
	tuning.Frequency = frequency

	// The stream outlives this call, cancellation of ctx is handled by the
	// caller closing the device.
	cmdCtx, cancel := context.WithCancel(context.Background())

	cmd, err := d.handler.Cmd(cmdCtx, tuning)
	if err != nil {
		cancel()
		return driver.NewHardwareError("tune", frequency, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return driver.NewHardwareError("tune", frequency, fmt.Errorf("error creating stdout pipe: %w", err))
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return driver.NewHardwareError("tune", frequency, fmt.Errorf("error creating stderr pipe: %w", err))
	}

	if err = cmd.Start(); err != nil {
		cancel()
		return driver.NewHardwareError("tune", frequency, fmt.Errorf("error starting command: %w", err))
	}

	d.cmd = cmd
	d.cancel = cancel
	d.stdout = stdout
	d.tuning = tuning
	d.carry = d.carry[:0]
	d.readErr = nil

	d.wg.Add(1)
	go d.handleStderr(stderr)

	d.logger.Debug("tuned", slog.String("cmd", cmd.String()))

	if settleBytes := int64(d.settle.Seconds()*tuning.SampleRate) * int64(d.handler.SampleSize()); settleBytes > 0 {
		if _, err = io.CopyN(io.Discard, stdout, settleBytes); err != nil {
			return driver.NewHardwareError("tune", frequency, fmt.Errorf("%w: settling: %w", ErrStreamClosed, err))
		}
	}

	return ctx.Err()
}

// Read blocks until the receive tool delivers data and decodes up to len(buf)
// samples. Bytes of a sample split across reads are carried over.
func (d *Device) Read(buf []complex64) (int, error) {
	if d.stdout == nil {
		return 0, driver.NewHardwareError("read", d.tuning.Frequency, ErrNotTuned)
	}
	if d.readErr != nil {
		return 0, d.readErr
	}
	if len(buf) == 0 {
		return 0, nil
	}

	size := d.handler.SampleSize()
	need := len(buf) * size
	if cap(d.raw) < need {
		d.raw = make([]byte, need)
	}
	raw := d.raw[:need]

	off := copy(raw, d.carry)
	n, err := d.stdout.Read(raw[off:])

	total := off + n
	count := total / size
	d.carry = append(d.carry[:0], raw[count*size:total]...)
	d.handler.Decode(buf[:count], raw[:count*size])

	if err != nil {
		d.readErr = driver.NewHardwareError("read", d.tuning.Frequency, fmt.Errorf("%w: %w", ErrStreamClosed, err))
		if count == 0 {
			return 0, d.readErr
		}
	}

	return count, nil
}

// Close stops the receive tool. It is safe to call Close multiple times.
func (d *Device) Close() error {
	err := d.stop()
	d.stdout = nil
	return err
}

func (d *Device) stop() error {
	if d.cmd == nil {
		return nil
	}

	d.cancel()
	err := d.cmd.Wait()
	d.wg.Wait()

	d.cmd = nil
	d.cancel = nil

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return fmt.Errorf("command exited with error: %w", err)
	}
	return nil
}

// handleStderr reads from stderr and logs the tool output.
func (d *Device) handleStderr(stderr io.Reader) {
	defer d.wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		d.logger.Debug(fmt.Sprintf("%s >> %s", d.handler.Device(), line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		d.logger.Warn(fmt.Sprintf("error reading stderr: %s", err.Error()))
	}
}
