package sdr

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/roman-kulish/rf-sentinel/internal/iq"
)

func TestFileSourceTrailingPartialSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.cfile")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = iq.NewWriter(f).Write([]complex64{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if _, err = f.Write([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatal(err)
	}
	if err = f.Close(); err != nil {
		t.Fatal(err)
	}

	src, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer src.Close()

	if err = src.Tune(context.Background(), 433.92e6); err != nil {
		t.Fatalf("Tune() error = %v", err)
	}

	buf := make([]complex64, 8)
	n, err := src.Read(buf)
	if err != nil || n != 3 {
		t.Fatalf("Read() = %d, %v; want 3 samples", n, err)
	}
	if buf[2] != 3 {
		t.Errorf("sample 2 = %v, want 3", buf[2])
	}

	if n, err = src.Read(buf); n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("Read() = %d, %v; want end of recording", n, err)
	}
}
