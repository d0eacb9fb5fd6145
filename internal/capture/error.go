package capture

import (
	"errors"
	"fmt"
)

// ErrCaptureInProgress is returned when a capture is requested while another
// one holds the receiver
var ErrCaptureInProgress = errors.New("capture in progress")

// FileSystemError reports a failure to create or write a capture file. It
// ends the capture session only; the sweep carries on.
type FileSystemError struct {
	Op   string // Failing operation, e.g. "create" or "write"
	Path string
	Err  error
}

func NewFileSystemError(op, path string, err error) *FileSystemError {
	return &FileSystemError{Op: op, Path: path, Err: err}
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("capture: %s '%s': %s", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}
