package spectrum

import (
	"context"
	"errors"
	"io"
)

// SampleReader is anything that delivers complex baseband samples
type SampleReader interface {
	Read(buf []complex64) (int, error)
}

// Replay streams samples from r through the estimator in chunks of the FFT
// size and calls fn with every row. A final partial chunk produces no row.
// It returns the number of rows produced.
func Replay(ctx context.Context, r SampleReader, e *Estimator, fn func(Row) error) (int, error) {
	chunk := make([]complex64, e.Size())
	row := make(Row, e.Size())

	var rows int
	for {
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		n, err := readChunk(r, chunk)
		if n < len(chunk) {
			if err == nil || errors.Is(err, io.EOF) {
				return rows, nil
			}
			return rows, err
		}

		if err = e.EstimateInto(row, chunk); err != nil {
			return rows, err
		}
		if err = fn(row); err != nil {
			return rows, err
		}
		rows++
	}
}

// readChunk fills buf, retrying empty reads, until it is full or r fails
func readChunk(r SampleReader, buf []complex64) (int, error) {
	var filled int
	for filled < len(buf) {
		n, err := r.Read(buf[filled:])
		filled += n
		if err != nil {
			return filled, err
		}
	}
	return filled, nil
}
