package spectrum

import (
	"errors"
	"sync"
	"testing"
)

func row(v float64, width int) Row {
	r := make(Row, width)
	for i := range r {
		r[i] = v
	}
	return r
}

func TestWaterfallKeepsLastRows(t *testing.T) {
	const depth, width = 4, 3

	w := NewWaterfall(depth, width, 0)
	for i := 1; i <= 10; i++ {
		if err := w.Push(row(float64(i), width)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	snap := w.Snapshot()
	if len(snap) != depth {
		t.Fatalf("len(snapshot) = %d, want %d", len(snap), depth)
	}
	for i, r := range snap {
		want := float64(7 + i)
		for j, v := range r {
			if v != want {
				t.Errorf("row %d bin %d = %v, want %v", i, j, v, want)
			}
		}
	}
	if w.Pushed() != 10 {
		t.Errorf("Pushed() = %d, want 10", w.Pushed())
	}
}

func TestWaterfallFillBeforeFull(t *testing.T) {
	const depth, width = 5, 2

	w := NewWaterfall(depth, width, -120)
	for i := 1; i <= 2; i++ {
		if err := w.Push(row(float64(i), width)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	snap := w.Snapshot()
	want := []float64{-120, -120, -120, 1, 2}
	for i, r := range snap {
		for _, v := range r {
			if v != want[i] {
				t.Errorf("row %d = %v, want %v", i, v, want[i])
			}
		}
	}
}

func TestWaterfallCopiesRows(t *testing.T) {
	w := NewWaterfall(2, 2, 0)

	in := row(1, 2)
	if err := w.Push(in); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	in[0] = 99

	snap := w.Snapshot()
	if snap[1][0] != 1 {
		t.Errorf("pushed row aliased caller slice: %v", snap[1])
	}

	snap[1][1] = 42
	if again := w.Snapshot(); again[1][1] != 1 {
		t.Errorf("snapshot aliased internal row: %v", again[1])
	}
}

func TestWaterfallRejectsWidth(t *testing.T) {
	w := NewWaterfall(2, 4, 0)

	if err := w.Push(row(1, 3)); !errors.Is(err, ErrBlockSize) {
		t.Errorf("Push() error = %v, want %v", err, ErrBlockSize)
	}
}

func TestWaterfallConcurrentSnapshots(t *testing.T) {
	const width = 64

	w := NewWaterfall(8, width, 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = w.Push(row(float64(i), width))
		}
	}()

	for i := 0; i < 200; i++ {
		for _, r := range w.Snapshot() {
			// A torn row would mix two pushed values
			for _, v := range r {
				if v != r[0] {
					t.Fatalf("torn row: %v", r)
				}
			}
		}
	}

	wg.Wait()
}

func TestWaterfallFrame(t *testing.T) {
	w := NewWaterfall(2, 2, 0)
	w.SetTuning(433e6, 2e6)
	_ = w.Push(row(5, 2))

	f := w.Frame()
	if f.CenterFrequency != 433e6 || f.SampleRate != 2e6 || f.Pushed != 1 {
		t.Errorf("Frame() = %+v", f)
	}
	if len(f.Rows) != 2 || f.Rows[1][0] != 5 {
		t.Errorf("Frame().Rows = %v", f.Rows)
	}
}
