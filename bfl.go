package iqsmart

import (
	"fmt"
	"sort"
	"sync"
)

// BFLPoint is one field measurement of back-focal-length error: at design
// focus position Step the motor needed Correction extra steps for best
// focus. Thermal drift and mounting tolerance make these per-unit values,
// so they live apart from the factory calibration table.
type BFLPoint struct {
	Step       int
	Correction float64
}

// BFLCurve holds the measured correction points and the smooth correction
// function fitted through them. Safe for concurrent use; every edit refits
// and becomes visible atomically.
//
// The fit follows the measurement count: below two points there is nothing
// to fit and the correction is zero, two or three points fit a line, more
// fit a quadratic. Outside the measured step span the boundary correction
// is held rather than extrapolated.
type BFLCurve struct {
	mu     sync.RWMutex
	points []BFLPoint // sorted by Step, Steps unique
	coef   []float64  // ascending powers; nil while empty
}

// NewBFLCurve returns an empty curve whose correction is identically zero.
func NewBFLCurve() *BFLCurve {
	return &BFLCurve{}
}

// AddPoint records a measurement, replacing any existing point at the same
// step, and refits the correction function.
func (b *BFLCurve) AddPoint(step int, correction float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := sort.Search(len(b.points), func(i int) bool { return b.points[i].Step >= step })
	if i < len(b.points) && b.points[i].Step == step {
		b.points[i].Correction = correction
	} else {
		b.points = append(b.points, BFLPoint{})
		copy(b.points[i+1:], b.points[i:])
		b.points[i] = BFLPoint{Step: step, Correction: correction}
	}
	b.refit()
}

// RemovePointByIndex deletes the i-th point in step order and refits. An
// index outside [0, Len) fails with ErrIndexOutOfRange and leaves the curve
// unchanged.
func (b *BFLCurve) RemovePointByIndex(i int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.points) {
		return fmt.Errorf("%w: point %d of %d", ErrIndexOutOfRange, i, len(b.points))
	}
	b.points = append(b.points[:i], b.points[i+1:]...)
	b.refit()
	return nil
}

// SetPoints replaces every measurement at once, as when restoring a saved
// set. Duplicate steps keep the last value given.
func (b *BFLCurve) SetPoints(points []BFLPoint) {
	sorted := append([]BFLPoint(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Step < sorted[j].Step })
	uniq := sorted[:0]
	for _, p := range sorted {
		if n := len(uniq); n > 0 && uniq[n-1].Step == p.Step {
			uniq[n-1] = p
			continue
		}
		uniq = append(uniq, p)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.points = uniq
	b.refit()
}

// refit rebuilds coef from points. Callers hold the write lock. With the
// steps unique and the degree below the point count the fit cannot fail; if
// it somehow does the previous coefficients stay in effect.
func (b *BFLCurve) refit() {
	n := len(b.points)
	if n < 2 {
		b.coef = nil
		return
	}
	degree := 1
	if n > 3 {
		degree = 2
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range b.points {
		xs[i] = float64(p.Step)
		ys[i] = p.Correction
	}
	if coef, err := polyfit(xs, ys, degree); err == nil {
		b.coef = coef
	}
}

// CorrectionAt evaluates the fitted correction at a focus position, in
// fractional steps. Positions outside the measured span return the boundary
// value. Below two measurements there is no fit and the correction is zero.
func (b *BFLCurve) CorrectionAt(step float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.points)
	if n < 2 {
		return 0
	}
	if lo := float64(b.points[0].Step); step < lo {
		step = lo
	}
	if hi := float64(b.points[n-1].Step); step > hi {
		step = hi
	}
	return polyval(b.coef, step)
}

// Points returns the measurements in step order. The slice is a copy.
func (b *BFLCurve) Points() []BFLPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]BFLPoint(nil), b.points...)
}

// Len returns the number of stored measurements.
func (b *BFLCurve) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.points)
}
