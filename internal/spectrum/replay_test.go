package spectrum

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/roman-kulish/rf-sentinel/internal/iq"
)

// zeroReader delivers total zero samples in reads of at most limit samples
type zeroReader struct {
	total int
	limit int
}

func (r *zeroReader) Read(buf []complex64) (int, error) {
	if r.total == 0 {
		return 0, io.EOF
	}
	n := min(len(buf), r.total, r.limit)
	clear(buf[:n])
	r.total -= n
	return n, nil
}

func TestReplayRecordingLength(t *testing.T) {
	if testing.Short() {
		t.Skip("replays 20M samples")
	}

	e, err := NewEstimator(1024, Hann)
	if err != nil {
		t.Fatalf("NewEstimator() error = %v", err)
	}

	var calls int
	rows, err := Replay(context.Background(), &zeroReader{total: 20_000_000, limit: 40960}, e, func(Row) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if rows != 19531 || calls != 19531 {
		t.Errorf("Replay() = %d rows, %d calls, want 19531", rows, calls)
	}
}

func TestReplayFile(t *testing.T) {
	const size = 16

	// 5 full chunks and a partial one
	samples := make([]complex64, size*5+7)
	for i := range samples {
		samples[i] = complex(float32(i%3), 0)
	}

	var buf bytes.Buffer
	if _, err := iq.NewWriter(&buf).Write(samples); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "recording"+iq.FileExt)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	e, err := NewEstimator(size, Hann)
	if err != nil {
		t.Fatalf("NewEstimator() error = %v", err)
	}

	w := NewWaterfall(3, size, 0)
	rows, err := Replay(context.Background(), iq.NewReader(f), e, w.Push)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if rows != 5 {
		t.Errorf("Replay() = %d rows, want 5", rows)
	}
	if w.Pushed() != 5 {
		t.Errorf("waterfall received %d rows, want 5", w.Pushed())
	}
}

func TestReplayCancelled(t *testing.T) {
	e, err := NewEstimator(8, Hann)
	if err != nil {
		t.Fatalf("NewEstimator() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	var rows int
	n, err := Replay(ctx, &zeroReader{total: 1 << 20, limit: 8}, e, func(Row) error {
		rows++
		if rows == 3 {
			cancel()
		}
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Replay() error = %v, want %v", err, context.Canceled)
	}
	if n != 3 {
		t.Errorf("Replay() = %d rows, want 3", n)
	}
}
