package app

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string, e.g. "500ms"
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Frequency is a frequency in Hz, written either as a number or as an SI
// string such as "433.92MHz" or "2.41 GHz".
type Frequency float64

// ParseFrequency parses a plain number of Hz or an SI frequency string
func ParseFrequency(s string) (Frequency, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0, fmt.Errorf("app.Frequency: empty value")
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Frequency(f), nil
	}

	f, unit, err := humanize.ParseSI(s)
	if err != nil {
		return 0, fmt.Errorf("app.Frequency: failed to parse %q: %w", s, err)
	}
	if unit != "" && !strings.EqualFold(unit, "Hz") {
		return 0, fmt.Errorf("app.Frequency: unknown unit %q in %q", unit, s)
	}
	return Frequency(f), nil
}

func (f Frequency) Hz() float64 {
	return float64(f)
}

func (f Frequency) String() string {
	return humanize.SIWithDigits(float64(f), 3, "Hz")
}

func (f *Frequency) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseFrequency(value.Value)
	if err != nil {
		return err
	}

	*f = v
	return nil
}

// Set and Type make Frequency usable as a command line flag
func (f *Frequency) Set(s string) error {
	v, err := ParseFrequency(s)
	if err != nil {
		return err
	}

	*f = v
	return nil
}

func (f *Frequency) Type() string {
	return "frequency"
}
