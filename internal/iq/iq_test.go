package iq

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestWriterLayout(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)

	n, err := w.Write([]complex64{complex(1, -1)})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Write() = %d, want 1", n)
	}

	// float32(1) = 0x3f800000, float32(-1) = 0xbf800000, little-endian
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x80, 0xbf}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("encoded = % x, want % x", out.Bytes(), want)
	}
	if w.Written() != 1 {
		t.Errorf("Written() = %d, want 1", w.Written())
	}
}

func TestReaderRoundTrip(t *testing.T) {
	samples := []complex64{1 + 2i, -0.5 + 0.25i, 0, 3 - 4i, 0.125i}

	var out bytes.Buffer
	if _, err := NewWriter(&out).Write(samples); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	r := NewReader(&out)
	buf := make([]complex64, 2)

	var got []complex64
	for {
		n, err := r.Read(buf)
		got = append(got, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}

	if len(got) != len(samples) {
		t.Fatalf("read %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], samples[i])
		}
	}
}

func TestReaderTrailingBytes(t *testing.T) {
	var out bytes.Buffer
	if _, err := NewWriter(&out).Write([]complex64{1, 2}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out.Write([]byte{0x01, 0x02, 0x03})

	r := NewReader(&out)
	buf := make([]complex64, 4)

	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Read() = %d, want 2", n)
	}

	if _, err = r.Read(buf); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Read() error = %v, want %v", err, io.ErrUnexpectedEOF)
	}
}

type limitedWriter struct {
	limit int
	buf   bytes.Buffer
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if len(p) > w.limit {
		p = p[:w.limit]
	}
	w.limit -= len(p)
	return w.buf.Write(p)
}

func TestWriterShortWrite(t *testing.T) {
	lw := &limitedWriter{limit: SampleSize*2 + 3}
	w := NewWriter(lw)

	n, err := w.Write(make([]complex64, 4))
	if !errors.Is(err, ErrShortWrite) {
		t.Fatalf("Write() error = %v, want %v", err, ErrShortWrite)
	}
	if n != 2 {
		t.Errorf("Write() = %d, want 2", n)
	}
	if w.Written() != 2 {
		t.Errorf("Written() = %d, want 2", w.Written())
	}
}
