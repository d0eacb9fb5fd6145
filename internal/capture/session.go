package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/rf-sentinel/internal/iq"
)

const (
	fileTimeFormat = "20060102_150405"

	// maxNameAttempts bounds the suffixes tried when a file name is taken
	maxNameAttempts = 100
)

// Session is one bounded raw-sample recording
type Session struct {
	Path       string    `json:"path"`
	Frequency  float64   `json:"frequency"`  // Hz
	SampleRate float64   `json:"sampleRate"` // Samples per second
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	Target     int64     `json:"target"`  // Samples to record
	Written    int64     `json:"written"` // Whole samples on disk
}

// Complete reports whether every requested sample was written
func (s *Session) Complete() bool {
	return s.Written >= s.Target
}

// Bytes returns the size of the recording on disk
func (s *Session) Bytes() int64 {
	return s.Written * iq.SampleSize
}

func (s *Session) String() string {
	return fmt.Sprintf("%s: %d/%d samples (%s) at %.3f MHz",
		filepath.Base(s.Path), s.Written, s.Target, humanize.IBytes(uint64(s.Bytes())), s.Frequency/1e6)
}

// FileName returns the capture file name for a trigger at t on frequency
func FileName(t time.Time, frequency float64) string {
	return fmt.Sprintf("%s_%.3fMHz%s", t.Format(fileTimeFormat), frequency/1e6, iq.FileExt)
}

// createFile exclusively creates the capture file in dir. When the name is
// taken, a numeric suffix is appended.
func createFile(dir string, t time.Time, frequency float64) (*os.File, error) {
	name := FileName(t, frequency)
	base := name[:len(name)-len(iq.FileExt)]

	path := filepath.Join(dir, name)
	for i := 1; i <= maxNameAttempts; i++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, NewFileSystemError("create", path, err)
		}

		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, iq.FileExt))
	}

	return nil, NewFileSystemError("create", path, fs.ErrExist)
}

// PrepareDirectory creates the output directory and checks it is writable
func PrepareDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewFileSystemError("create directory", dir, err)
	}

	stat, err := os.Stat(dir)
	if err != nil {
		return NewFileSystemError("stat", dir, err)
	}
	if !stat.IsDir() {
		return NewFileSystemError("stat", dir, errors.New("not a directory"))
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return NewFileSystemError("write", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return nil
}
