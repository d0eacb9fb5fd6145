package hackrf

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/roman-kulish/rf-sentinel/internal/sdr"
	"github.com/roman-kulish/rf-sentinel/internal/sdr/driver"
)

const (
	Runtime = "hackrf_transfer"
	Device  = "HackRF"

	// sampleSize is one signed 8-bit I and one signed 8-bit Q
	sampleSize = 2
)

// handler struct represents a HackRF handler
type handler struct {
	binPath      string
	serialNumber string
	config       *Config
}

// New creates a new HackRF handler
func New(serialNumber string, config *Config) (sdr.Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, driver.NewConfigError(err.Error())
	}

	binPath, err := driver.FindRuntime(Runtime)
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	return newHandler(binPath, serialNumber, config), nil
}

func newHandler(binPath, serialNumber string, config *Config) *handler {
	return &handler{binPath: binPath, serialNumber: serialNumber, config: config}
}

// Validate checks the sample rate and gain against the HackRF limits
func (h *handler) Validate(sampleRate, gain float64) error {
	if sampleRate < MinSampleRate || sampleRate > MaxSampleRate {
		return driver.NewConfigError(fmt.Sprintf("hackrf: sample rate must be between 2 and 20 MSPS: %0.0f given", sampleRate))
	}
	if _, _, err := h.config.Gains(gain); err != nil {
		return driver.NewConfigError(err.Error())
	}
	return nil
}

// Cmd returns an exec.Cmd receiving at the tuning
func (h *handler) Cmd(ctx context.Context, t sdr.Tuning) (*exec.Cmd, error) {
	args, err := h.config.Args(h.serialNumber, t)
	if err != nil {
		return nil, fmt.Errorf("error creating args: %w", err)
	}
	return exec.CommandContext(ctx, h.binPath, args...), nil
}

// SampleSize returns the number of bytes per complex sample
func (h *handler) SampleSize() int {
	return sampleSize
}

// Decode converts interleaved signed 8-bit IQ to complex64 in [-1, 1)
func (h *handler) Decode(dst []complex64, raw []byte) {
	for i := range dst {
		re := float32(int8(raw[2*i])) / 128
		im := float32(int8(raw[2*i+1])) / 128
		dst[i] = complex(re, im)
	}
}

// Device returns the device type
func (h *handler) Device() string {
	return Device
}
