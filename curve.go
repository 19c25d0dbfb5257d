package iqsmart

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

// polyline is a piecewise-linear curve over strictly increasing x knots with
// strictly monotonic y values, so evaluation and inversion land on the same
// segments and round-trip exactly up to float arithmetic.
type polyline struct {
	xs, ys []float64
	pl     interp.PiecewiseLinear
	rising bool // ys increase with xs
}

func newPolyline(xs, ys []float64) (*polyline, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("curve: %d x knots vs %d y values", len(xs), len(ys))
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("curve: need at least 2 points, have %d", len(xs))
	}
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsInf(xs[i], 0) || math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) {
			return nil, fmt.Errorf("curve: non-finite point (%v, %v)", xs[i], ys[i])
		}
	}
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return nil, fmt.Errorf("curve: x knots not strictly increasing at index %d", i)
		}
	}
	rising := ys[len(ys)-1] > ys[0]
	for i := 1; i < len(ys); i++ {
		if rising && ys[i] <= ys[i-1] || !rising && ys[i] >= ys[i-1] {
			return nil, fmt.Errorf("curve: y values not strictly monotonic at index %d", i)
		}
	}
	c := &polyline{xs: xs, ys: ys, rising: rising}
	if err := c.pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("curve: %v", err)
	}
	return c, nil
}

func (c *polyline) xMin() float64 { return c.xs[0] }
func (c *polyline) xMax() float64 { return c.xs[len(c.xs)-1] }

// yMin and yMax are the extreme y values regardless of curve direction.
func (c *polyline) yMin() float64 {
	if c.rising {
		return c.ys[0]
	}
	return c.ys[len(c.ys)-1]
}

func (c *polyline) yMax() float64 {
	if c.rising {
		return c.ys[len(c.ys)-1]
	}
	return c.ys[0]
}

// at evaluates the curve, clamping x into the knot domain. The second result
// reports whether clamping occurred.
func (c *polyline) at(x float64) (float64, bool) {
	if x <= c.xMin() {
		return c.ys[0], x < c.xMin()
	}
	if x >= c.xMax() {
		return c.ys[len(c.ys)-1], x > c.xMax()
	}
	return c.pl.Predict(x), false
}

// solve finds x with at(x) == y, clamping y into the curve's value range.
// The inverse is computed on the exact segment, never by refitting, so
// solve(at(x)) returns x for any in-domain x.
func (c *polyline) solve(y float64) (float64, bool) {
	n := len(c.ys)
	if c.rising {
		if y <= c.ys[0] {
			return c.xs[0], y < c.ys[0]
		}
		if y >= c.ys[n-1] {
			return c.xs[n-1], y > c.ys[n-1]
		}
	} else {
		if y >= c.ys[0] {
			return c.xs[0], y > c.ys[0]
		}
		if y <= c.ys[n-1] {
			return c.xs[n-1], y < c.ys[n-1]
		}
	}
	i := sort.Search(n-1, func(i int) bool {
		if c.rising {
			return c.ys[i+1] >= y
		}
		return c.ys[i+1] <= y
	})
	t := (y - c.ys[i]) / (c.ys[i+1] - c.ys[i])
	return c.xs[i] + t*(c.xs[i+1]-c.xs[i]), false
}

// solveClamped is solve with the clamp reported as an ErrRangeClamped
// advisory instead of a bool.
func (c *polyline) solveClamped(y float64) (float64, error) {
	x, clamped := c.solve(y)
	if clamped {
		return x, fmt.Errorf("%w: %v outside [%v, %v]", ErrRangeClamped, y, c.yMin(), c.yMax())
	}
	return x, nil
}

// polyfit returns least-squares polynomial coefficients in ascending power
// order. A large condition number is tolerated; gonum still produces a usable
// solution in that case.
func polyfit(xs, ys []float64, degree int) ([]float64, error) {
	if len(xs) != len(ys) || len(xs) == 0 {
		return nil, fmt.Errorf("polyfit: %d x values vs %d y values", len(xs), len(ys))
	}
	if degree < 0 {
		return nil, fmt.Errorf("polyfit: negative degree %d", degree)
	}
	if degree >= len(xs) {
		degree = len(xs) - 1
	}
	a := mat.NewDense(len(xs), degree+1, nil)
	for i, x := range xs {
		v := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, v)
			v *= x
		}
	}
	var coef mat.VecDense
	if err := coef.SolveVec(a, mat.NewVecDense(len(ys), ys)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("polyfit: %v", err)
		}
	}
	out := make([]float64, degree+1)
	for i := range out {
		out[i] = coef.AtVec(i)
	}
	return out, nil
}

// polyval evaluates ascending-order coefficients at x by Horner's rule.
func polyval(coef []float64, x float64) float64 {
	v := 0.0
	for i := len(coef) - 1; i >= 0; i-- {
		v = v*x + coef[i]
	}
	return v
}
