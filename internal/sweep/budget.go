package sweep

import (
	"sync"
)

// Budget counts frequency visits across sweep cycles and spaces captures out
// by them. It is shared by the scheduler, which advances it after every
// completed visit, and the capture controller, which consults and marks it.
type Budget struct {
	mu sync.Mutex

	sweepLen   int
	repeatWait int

	visits      int64
	lastCapture int64 // Visit count at the last admitted capture, -1 for none
}

// NewBudget creates a budget for a sweep over sweepLen frequencies that
// admits a capture at most every repeatWait visits.
func NewBudget(sweepLen, repeatWait int) *Budget {
	return &Budget{
		sweepLen:    max(sweepLen, 1),
		repeatWait:  max(repeatWait, 0),
		lastCapture: -1,
	}
}

// Advance records a completed frequency visit
func (b *Budget) Advance() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.visits++
}

// Visits returns the number of completed frequency visits
func (b *Budget) Visits() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.visits
}

// Cycles returns the number of sweep cycles elapsed, fractional
func (b *Budget) Cycles() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return float64(b.visits) / float64(b.sweepLen)
}

// Allowed reports whether enough sweep cycles have elapsed since the last
// admitted capture. The cycles elapsed are compared against
// repeatWait/sweepLen, so the spacing in visits is repeatWait regardless of
// the sweep length. The first capture of a run is always allowed.
func (b *Budget) Allowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.allowed()
}

func (b *Budget) allowed() bool {
	if b.lastCapture < 0 {
		return true
	}

	elapsed := float64(b.visits-b.lastCapture) / float64(b.sweepLen)
	return elapsed >= float64(b.repeatWait)/float64(b.sweepLen)
}

// Claim marks a capture at the current visit if one is allowed, atomically
func (b *Budget) Claim() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.allowed() {
		return false
	}

	b.lastCapture = b.visits
	return true
}
