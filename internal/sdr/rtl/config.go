package rtl

import (
	"fmt"
	"strconv"

	"github.com/roman-kulish/rf-sentinel/internal/sdr"
)

const (
	MinFrequency = 24_000_000
	MaxFrequency = 1_766_000_000
	MaxGain      = 49.6

	// Sample rates outside these two ranges are rejected by the tuner
	minLowSampleRate  = 225_001
	maxLowSampleRate  = 300_000
	minHighSampleRate = 900_001
	maxHighSampleRate = 3_200_000
)

// Usage examples from man page:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_sdr.1.en.html

/*
    rtlConfig := rtl.Config{
        DeviceIndex: 0,
        PPMError:    52,
    }
    args, _ := rtlConfig.Args(sdr.Tuning{Frequency: 433e6, SampleRate: 2e6, Gain: 30})
    // Executes: rtl_sdr -f 433000000 -s 2000000 -d 0 -g 30.0 -p 52 -
*/

// Config is the `rtl_sdr` tool configuration
type Config struct {
	DeviceIndex int `yaml:"deviceIndex" json:"deviceIndex"` // -d device_index (default: 0)
	PPMError    int `yaml:"ppmError" json:"ppmError"`       // -p ppm_error (default: 0)
}

func (c *Config) Validate() error {
	if c.DeviceIndex < 0 {
		return fmt.Errorf("rtl.Config: device index must not be negative: %d given", c.DeviceIndex)
	}
	return nil
}

// ValidateSampleRate checks the rate against the ranges the tuner accepts
func ValidateSampleRate(sampleRate float64) error {
	inLow := sampleRate >= minLowSampleRate && sampleRate <= maxLowSampleRate
	inHigh := sampleRate >= minHighSampleRate && sampleRate <= maxHighSampleRate
	if !inLow && !inHigh {
		return fmt.Errorf("rtl.Config: sample rate must be in 225001-300000 or 900001-3200000: %0.0f given", sampleRate)
	}
	return nil
}

// ValidateGain checks the tuner gain, 0 selects automatic gain
func ValidateGain(gain float64) error {
	if gain < 0 || gain > MaxGain {
		return fmt.Errorf("rtl.Config: gain must be between 0 and %0.1f dB: %0.1f given", MaxGain, gain)
	}
	return nil
}

// Args returns the command line arguments for `rtl_sdr`
// See `man rtl_sdr` for more information:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_sdr.1.en.html
func (c *Config) Args(t sdr.Tuning) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if t.Frequency < MinFrequency || t.Frequency > MaxFrequency {
		return nil, fmt.Errorf("rtl.Config: frequency must be between 24 MHz and 1766 MHz: %0.0f Hz given", t.Frequency)
	}
	if err := ValidateSampleRate(t.SampleRate); err != nil {
		return nil, err
	}
	if err := ValidateGain(t.Gain); err != nil {
		return nil, err
	}

	args := []string{
		"-f", strconv.FormatInt(int64(t.Frequency), 10),
		"-s", strconv.FormatInt(int64(t.SampleRate), 10),
		"-d", strconv.Itoa(c.DeviceIndex), // 0 is the default device index
	}

	if t.Gain > 0 {
		args = append(args, "-g", strconv.FormatFloat(t.Gain, 'f', 1, 64))
	}

	if c.PPMError != 0 {
		args = append(args, "-p", strconv.Itoa(c.PPMError))
	}

	args = append(args, "-") // Always dump to stdout

	return args, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("%s -d %d -p %d", Runtime, c.DeviceIndex, c.PPMError)
}
