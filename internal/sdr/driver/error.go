package driver

import (
	"fmt"
)

// ConfigError is a custom error type for configuration errors. It is raised
// before any stream is activated and is always fatal.
type ConfigError struct {
	msg string
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{msg}
}

func (e *ConfigError) Error() string {
	return e.msg
}

// HardwareError reports a failed device operation: open, configure, tune or
// stream. The sweep treats it as fatal.
type HardwareError struct {
	Op        string  // Failing operation, e.g. "tune" or "read"
	Frequency float64 // Frequency in Hz the device was tuned to, 0 if unknown
	Err       error
}

func NewHardwareError(op string, frequency float64, err error) *HardwareError {
	return &HardwareError{Op: op, Frequency: frequency, Err: err}
}

func (e *HardwareError) Error() string {
	if e.Frequency > 0 {
		return fmt.Sprintf("hardware: %s at %.3f MHz: %s", e.Op, e.Frequency/1e6, e.Err)
	}
	return fmt.Sprintf("hardware: %s: %s", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}
