// Package iq reads and writes raw complex baseband recordings.
//
// A recording is a headerless stream of interleaved little-endian float32
// I/Q pairs, the layout GNU Radio calls a .cfile. It must be read back with
// the same sample type and byte order it was written with.
package iq

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// SampleSize is the number of bytes of one complex64 sample on disk
const SampleSize = 8

// FileExt is the extension of raw complex64 recordings
const FileExt = ".cfile"

// ErrShortWrite is returned when the underlying writer accepts part of a sample
var ErrShortWrite = errors.New("iq: short write")

// Writer encodes complex64 samples to an io.Writer
type Writer struct {
	w       io.Writer
	buf     []byte
	written int64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes samples and returns how many whole samples reached the
// underlying writer. On a partial write the count excludes the sample that was
// cut short.
func (w *Writer) Write(samples []complex64) (int, error) {
	need := len(samples) * SampleSize
	if cap(w.buf) < need {
		w.buf = make([]byte, need)
	}
	buf := w.buf[:need]

	for i, s := range samples {
		off := i * SampleSize
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(real(s)))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(imag(s)))
	}

	n, err := w.w.Write(buf)
	w.written += int64(n / SampleSize)

	if err == nil && n < need {
		err = ErrShortWrite
	}
	return n / SampleSize, err
}

// Written returns the number of whole samples written so far
func (w *Writer) Written() int64 {
	return w.written
}

// Reader decodes complex64 samples from an io.Reader
type Reader struct {
	r   io.Reader
	buf []byte
	err error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read fills buf with up to len(buf) samples. It returns io.EOF once the
// stream is exhausted; trailing bytes that do not form a whole sample are
// reported as io.ErrUnexpectedEOF.
func (r *Reader) Read(buf []complex64) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	need := len(buf) * SampleSize
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	raw := r.buf[:need]

	n, err := io.ReadFull(r.r, raw)
	count := n / SampleSize
	decode(buf[:count], raw)

	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF) && n%SampleSize == 0:
		r.err = io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		r.err = io.ErrUnexpectedEOF
	default:
		r.err = err
	}

	if count == 0 {
		return 0, r.err
	}
	return count, nil
}

func decode(dst []complex64, raw []byte) {
	for i := range dst {
		off := i * SampleSize
		re := math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(raw[off+4:]))
		dst[i] = complex(re, im)
	}
}

// Samples returns the number of whole samples in a recording of size bytes
func Samples(size int64) int64 {
	return size / SampleSize
}
