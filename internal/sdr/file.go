package sdr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roman-kulish/rf-sentinel/internal/iq"
)

// FileSource replays a raw complex64 recording as if it were a radio. Tuning
// only records the frequency; the recording plays through once and Read then
// returns io.EOF. A trailing partial sample, as left by an interrupted
// recorder, is ignored.
type FileSource struct {
	path   string
	file   *os.File
	reader *iq.Reader
	tuning Tuning
}

// OpenFile opens the recording at path for replay
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}
	return &FileSource{path: path, file: f, reader: iq.NewReader(f)}, nil
}

func (s *FileSource) Configure(sampleRate, gain float64) error {
	s.tuning.SampleRate = sampleRate
	s.tuning.Gain = gain
	return nil
}

func (s *FileSource) Tune(ctx context.Context, frequency float64) error {
	s.tuning.Frequency = frequency
	return ctx.Err()
}

func (s *FileSource) Read(buf []complex64) (int, error) {
	n, err := s.reader.Read(buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

// Tuning returns the last configured tuning
func (s *FileSource) Tuning() Tuning {
	return s.tuning
}

func (s *FileSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
