package render

import "github.com/roman-kulish/rf-sentinel/internal/spectrum"

// PeakHold merges every n consecutive rows into one, keeping the maximum of
// each bin, so that a long recording fits a bounded image height.
type PeakHold struct {
	n     int
	count int
	acc   spectrum.Row
}

// NewPeakHold merges n rows at a time, n < 1 is treated as 1
func NewPeakHold(n int) *PeakHold {
	return &PeakHold{n: max(n, 1)}
}

// RowsPerPixel returns how many rows must be merged so that total rows fit
// into height pixels.
func RowsPerPixel(total, height int) int {
	if height <= 0 || total <= height {
		return 1
	}
	return (total + height - 1) / height
}

// Add folds row into the accumulator and returns the merged row once n rows
// have been seen. The returned row is owned by the caller.
func (p *PeakHold) Add(row spectrum.Row) (spectrum.Row, bool) {
	if p.count == 0 {
		p.acc = append(p.acc[:0], row...)
	} else {
		for i := range min(len(p.acc), len(row)) {
			p.acc[i] = max(p.acc[i], row[i])
		}
	}

	if p.count++; p.count < p.n {
		return nil, false
	}
	return p.flush(), true
}

// Flush returns a partially merged row, if any
func (p *PeakHold) Flush() (spectrum.Row, bool) {
	if p.count == 0 {
		return nil, false
	}
	return p.flush(), true
}

func (p *PeakHold) flush() spectrum.Row {
	p.count = 0
	out := make(spectrum.Row, len(p.acc))
	copy(out, p.acc)
	return out
}
