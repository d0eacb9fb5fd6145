package sdr

import "context"

// Source is an exclusively owned receive path of a radio. At most one
// consumer reads from it at any instant.
type Source interface {
	// Configure sets the sample rate in samples per second and the overall
	// receive gain in dB. It fails with *driver.ConfigError when the device
	// rejects the combination.
	Configure(sampleRate, gain float64) error

	// Tune retunes the receive path to the frequency in Hz. It may block
	// while the tuner settles and fails with *driver.HardwareError.
	Tune(ctx context.Context, frequency float64) error

	// Read blocks until samples are available and copies up to len(buf) of
	// them into buf. A zero count without an error is a transient underrun and
	// the caller retries. Unrecoverable failures are *driver.HardwareError.
	Read(buf []complex64) (int, error)

	// Close releases the stream.
	Close() error
}

// Tuning is the receive state a Handler builds its command from.
type Tuning struct {
	Frequency  float64 // Center frequency in Hz
	SampleRate float64 // Samples per second
	Gain       float64 // Overall receive gain in dB
}
