package rtl

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/roman-kulish/rf-sentinel/internal/sdr"
	"github.com/roman-kulish/rf-sentinel/internal/sdr/driver"
)

const (
	Runtime = "rtl_sdr"
	Device  = "RTL-SDR"

	// sampleSize is one unsigned 8-bit I and one unsigned 8-bit Q
	sampleSize = 2
)

// handler represents an RTL-SDR handler
type handler struct {
	binPath string
	config  *Config
}

// New creates a new RTL-SDR handler
func New(config *Config) (sdr.Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, driver.NewConfigError(err.Error())
	}

	binPath, err := driver.FindRuntime(Runtime)
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	return &handler{binPath: binPath, config: config}, nil
}

// Validate checks the sample rate and gain against the tuner limits
func (h *handler) Validate(sampleRate, gain float64) error {
	if err := ValidateSampleRate(sampleRate); err != nil {
		return driver.NewConfigError(err.Error())
	}
	if err := ValidateGain(gain); err != nil {
		return driver.NewConfigError(err.Error())
	}
	return nil
}

// Cmd returns an exec.Cmd receiving at the tuning
func (h *handler) Cmd(ctx context.Context, t sdr.Tuning) (*exec.Cmd, error) {
	args, err := h.config.Args(t)
	if err != nil {
		return nil, fmt.Errorf("error creating args: %w", err)
	}
	return exec.CommandContext(ctx, h.binPath, args...), nil
}

func (h *handler) SampleSize() int {
	return sampleSize
}

// Decode converts interleaved unsigned 8-bit IQ centred on 127.5 to complex64
func (h *handler) Decode(dst []complex64, raw []byte) {
	for i := range dst {
		re := (float32(raw[2*i]) - 127.5) / 127.5
		im := (float32(raw[2*i+1]) - 127.5) / 127.5
		dst[i] = complex(re, im)
	}
}

func (h *handler) Device() string {
	return Device
}
