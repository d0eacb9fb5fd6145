package detect

import (
	"fmt"
	"time"
)

// Strength classifies a detection against the high threshold
type Strength string

const (
	Weak   Strength = "weak"
	Strong Strength = "strong"
)

// Event is a reported detection. Events are values and never change after
// they are created.
type Event struct {
	Frequency float64   `json:"frequency"` // Tuned frequency in Hz
	Timestamp time.Time `json:"timestamp"`
	Power     float64   `json:"power"`     // Mean |s|^2 of the block, linear full scale
	PowerDBFS float64   `json:"powerDBFS"` // Power relative to full scale

	// EstimatedPowerDBm is PowerDBFS shifted by a fixed full-scale offset. The
	// receiver is not calibrated, so this is an estimate and not a measurement.
	EstimatedPowerDBm float64 `json:"estimatedPowerDBm"`

	Strength Strength `json:"strength"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s signal at %.3f MHz, power %.6f (%.2f dBFS, ~%.2f dBm)",
		e.Strength, e.Frequency/1e6, e.Power, e.PowerDBFS, e.EstimatedPowerDBm)
}
