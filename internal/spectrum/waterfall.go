package spectrum

import (
	"fmt"
	"sync"
)

const DefaultWaterfallFrames = 100

// Waterfall is a fixed-depth scrolling history of spectrum rows. Pushing a
// row evicts the oldest one. It is safe for one writer and any number of
// concurrent readers.
type Waterfall struct {
	mu     sync.RWMutex
	rows   []Row
	next   int // Ring index of the slot the next push writes to
	pushed int64
	width  int
	fill   float64

	// Tuning of the most recent row, for labelling
	center     float64
	sampleRate float64
}

// NewWaterfall creates a waterfall of depth rows of width bins, all set to
// fill until written.
func NewWaterfall(depth, width int, fill float64) *Waterfall {
	rows := make([]Row, depth)
	for i := range rows {
		rows[i] = make(Row, width)
		for j := range rows[i] {
			rows[i][j] = fill
		}
	}

	return &Waterfall{rows: rows, width: width, fill: fill}
}

// Push copies row in as the newest row, evicting the oldest
func (w *Waterfall) Push(row Row) error {
	if len(row) != w.width {
		return fmt.Errorf("%w: row of %d bins, want %d", ErrBlockSize, len(row), w.width)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.rows) == 0 {
		return nil
	}

	copy(w.rows[w.next], row)
	w.next = (w.next + 1) % len(w.rows)
	w.pushed++

	return nil
}

// SetTuning records the tuning the following rows are computed at
func (w *Waterfall) SetTuning(center, sampleRate float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.center = center
	w.sampleRate = sampleRate
}

// Snapshot returns a deep copy of all rows, oldest first. Rows not yet
// written hold the fill value.
func (w *Waterfall) Snapshot() []Row {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.snapshot()
}

func (w *Waterfall) snapshot() []Row {
	out := make([]Row, len(w.rows))
	for i := range out {
		src := w.rows[(w.next+i)%len(w.rows)]
		out[i] = make(Row, len(src))
		copy(out[i], src)
	}
	return out
}

// Frame returns a snapshot together with its tuning
func (w *Waterfall) Frame() *Frame {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return &Frame{
		CenterFrequency: w.center,
		SampleRate:      w.sampleRate,
		Pushed:          w.pushed,
		Rows:            w.snapshot(),
	}
}

// Depth returns the number of rows held
func (w *Waterfall) Depth() int {
	return len(w.rows)
}

// Width returns the number of bins per row
func (w *Waterfall) Width() int {
	return w.width
}

// Pushed returns the total number of rows pushed since creation
func (w *Waterfall) Pushed() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.pushed
}

// Frame is a consistent view of the waterfall for display and export
type Frame struct {
	CenterFrequency float64 `json:"centerFrequency"` // Tuned frequency of the newest row in Hz
	SampleRate      float64 `json:"sampleRate"`      // Sample rate in Hz, the span of a row
	Pushed          int64   `json:"pushed"`          // Rows pushed since the waterfall was created
	Rows            []Row   `json:"rows"`            // Power in dB, oldest row first
}
