package hackrf

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/roman-kulish/rf-sentinel/internal/sdr"
)

const (
	MinFrequency  = 1_000_000
	MaxFrequency  = 6_000_000_000
	MinSampleRate = 2_000_000
	MaxSampleRate = 20_000_000
	MaxLNAGain    = 40
	MaxVGAGain    = 62
	LNAGainStep   = 8
	VGAGainStep   = 2
)

// Usage examples from man page:
// https://manpages.debian.org/bookworm/hackrf/hackrf_transfer.1.en.html

/*
	hackrfConfig := hackrf.Config{
        LNAGain: ptr(16),
        VGAGain: ptr(20),
    }
    args, _ := hackrfConfig.Args("", sdr.Tuning{Frequency: 433e6, SampleRate: 2e6})
    // Executes: hackrf_transfer -r - -f 433000000 -s 2000000 -l 16 -g 20
*/

// Config is a struct for configuring the `hackrf_transfer` tool in receive mode
type Config struct {
	// Optional, when both are nil the overall gain is split between the stages
	LNAGain *int `yaml:"lnaGain" json:"lnaGain"` // -l gain_db LNA (IF) gain, 0-40dB, 8dB steps
	VGAGain *int `yaml:"vgaGain" json:"vgaGain"` // -g gain_db VGA (baseband) gain, 0-62dB, 2dB steps

	EnableAmp    bool `yaml:"enableAmp" json:"enableAmp"`       // -a amp_enable RX RF amplifier 1=Enable, 0=Disable
	AntennaPower bool `yaml:"antennaPower" json:"antennaPower"` // -p antenna_enable Antenna port power, 1=Enable, 0=Disable

	// Always receive to stdout
	// OutputFile string // -r filename
}

func (c *Config) Validate() error {
	// LNA gain validation (0-40dB in 8dB steps)
	if c.LNAGain != nil {
		if *c.LNAGain < 0 || *c.LNAGain > MaxLNAGain {
			return fmt.Errorf("hackrf.Config: LNA gain must be between 0 and 40 dB: %d given", *c.LNAGain)
		}
		if *c.LNAGain%LNAGainStep != 0 {
			return errors.New("hackrf.Config: LNA gain must be a multiple of 8 dB")
		}
	}

	// VGA gain validation (0-62dB in 2dB steps)
	if c.VGAGain != nil {
		if *c.VGAGain < 0 || *c.VGAGain > MaxVGAGain {
			return fmt.Errorf("hackrf.Config: VGA gain must be between 0 and 62 dB: %d given", *c.VGAGain)
		}
		if *c.VGAGain%VGAGainStep != 0 {
			return errors.New("hackrf.Config: VGA gain must be a multiple of 2 dB")
		}
	}

	return nil
}

// Gains returns the LNA and VGA gains for the overall gain. Explicit stage
// gains win; otherwise the LNA takes the largest 8 dB step that fits and the
// VGA the remainder in 2 dB steps.
func (c *Config) Gains(gain float64) (lna, vga int, err error) {
	if gain < 0 || gain > MaxLNAGain+MaxVGAGain {
		return 0, 0, fmt.Errorf("hackrf.Config: gain must be between 0 and %d dB: %0.1f given", MaxLNAGain+MaxVGAGain, gain)
	}

	total := int(math.Floor(gain))
	lna = min(total, MaxLNAGain) / LNAGainStep * LNAGainStep
	vga = min((total-lna)/VGAGainStep*VGAGainStep, MaxVGAGain)

	if c.LNAGain != nil {
		lna = *c.LNAGain
	}
	if c.VGAGain != nil {
		vga = *c.VGAGain
	}

	return lna, vga, nil
}

// Args builds the command line arguments for `hackrf_transfer`
// See `man hackrf_transfer` for more information:
// https://manpages.debian.org/bookworm/hackrf/hackrf_transfer.1.en.html
func (c *Config) Args(serialNumber string, t sdr.Tuning) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if t.Frequency < MinFrequency || t.Frequency > MaxFrequency {
		return nil, fmt.Errorf("hackrf.Config: frequency must be between 1 MHz and 6 GHz: %0.0f Hz given", t.Frequency)
	}
	if t.SampleRate < MinSampleRate || t.SampleRate > MaxSampleRate {
		return nil, fmt.Errorf("hackrf.Config: sample rate must be between 2 and 20 MSPS: %0.0f given", t.SampleRate)
	}

	lna, vga, err := c.Gains(t.Gain)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-r", "-", // Always receive to stdout
		"-f", strconv.FormatInt(int64(t.Frequency), 10),
		"-s", strconv.FormatInt(int64(t.SampleRate), 10),
		"-l", strconv.Itoa(lna),
		"-g", strconv.Itoa(vga),
	}

	if serialNumber != "" {
		args = append(args, "-d", serialNumber)
	}

	if c.EnableAmp {
		args = append(args, "-a", "1")
	}

	if c.AntennaPower {
		args = append(args, "-p", "1")
	}

	return args, nil
}
