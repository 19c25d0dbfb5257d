package iqsmart

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Store owns the active calibration table and serves interpolation
// primitives from it. Tables are swapped whole under a write lock, so
// readers always see one consistent table; a failed Load keeps the previous
// table active.
type Store struct {
	mu  sync.RWMutex
	cal *Calibration
	fl  *polyline // zoom step to focal length across the entries
}

// NewStore returns an empty store. Conversions fail with ErrNoCalibration
// until Load succeeds.
func NewStore() *Store {
	return &Store{}
}

// Load validates cal and makes it the active table. The table is deep-copied
// so later mutation by the caller cannot reach readers.
func (s *Store) Load(cal *Calibration) error {
	if cal == nil {
		return fmt.Errorf("%w: nil table", ErrInvalidCalibrationData)
	}
	if err := cal.Validate(); err != nil {
		return err
	}
	c := cal.clone()
	xs := make([]float64, len(c.Entries))
	ys := make([]float64, len(c.Entries))
	for i, e := range c.Entries {
		xs[i] = float64(e.ZoomStep)
		ys[i] = e.FL
	}
	fl, err := newPolyline(xs, ys)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCalibrationData, err)
	}
	s.mu.Lock()
	s.cal, s.fl = c, fl
	s.mu.Unlock()
	return nil
}

// Loaded reports whether a calibration table is active.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cal != nil
}

// Calibration returns the active table. The result is shared with the store
// and must be treated as read-only.
func (s *Store) Calibration() (*Calibration, error) {
	cal, _, err := s.snapshot()
	return cal, err
}

func (s *Store) snapshot() (*Calibration, *polyline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cal == nil {
		return nil, nil, ErrNoCalibration
	}
	return s.cal, s.fl, nil
}

// SetCOC overrides the circle of confusion used for depth of field, in
// millimeters. The active table is replaced, never edited, so in-flight
// readers keep a consistent view.
func (s *Store) SetCOC(mm float64) error {
	if !positive(mm) {
		return fmt.Errorf("%w: circle of confusion %v mm", ErrInvalidParameter, mm)
	}
	return s.amend(func(c *Calibration) { c.COC = mm })
}

// SetSensorWidth overrides the sensor width used for angle and field of
// view, in millimeters.
func (s *Store) SetSensorWidth(mm float64) error {
	if !positive(mm) {
		return fmt.Errorf("%w: sensor width %v mm", ErrInvalidParameter, mm)
	}
	return s.amend(func(c *Calibration) { c.SensorWidth = mm })
}

// amend swaps in a shallow copy of the active table with fn applied. Entries
// are immutable once loaded, so the copies may share them.
func (s *Store) amend(fn func(*Calibration)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cal == nil {
		return ErrNoCalibration
	}
	c := *s.cal
	fn(&c)
	s.cal = &c
	return nil
}

// ZoomStepToFL interpolates the focal length realized at a zoom position.
// Positions outside the calibrated entries clamp to the nearest entry with
// ErrRangeClamped.
func (s *Store) ZoomStepToFL(step float64) (float64, error) {
	_, fl, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(step) || math.IsInf(step, 0) {
		return 0, fmt.Errorf("%w: zoom step %v", ErrInvalidParameter, step)
	}
	v, clamped := fl.at(step)
	if clamped {
		return v, fmt.Errorf("%w: zoom step %v outside [%v, %v]",
			ErrRangeClamped, step, fl.xMin(), fl.xMax())
	}
	return v, nil
}

// ZoomStepForFL inverts ZoomStepToFL, returning a fractional zoom position.
// Focal lengths outside the calibrated span clamp to the nearest end with
// ErrRangeClamped.
func (s *Store) ZoomStepForFL(focalLength float64) (float64, error) {
	_, fl, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	if !positive(focalLength) {
		return 0, fmt.Errorf("%w: focal length %v mm", ErrInvalidParameter, focalLength)
	}
	x, clamped := fl.solve(focalLength)
	if clamped {
		return x, fmt.Errorf("%w: focal length %v mm outside [%v, %v]",
			ErrRangeClamped, focalLength, fl.yMin(), fl.yMax())
	}
	return x, nil
}

// FocusCurveAt returns the object-distance to focus-step curve at a zoom
// position, blending sample steps between the bracketing entries at the
// shared object-distance knots. Fractional zoom positions are allowed;
// positions outside the entries clamp with ErrRangeClamped.
func (s *Store) FocusCurveAt(zoomStep float64) (*FocusCurve, error) {
	cal, _, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return cal.focusCurveAt(zoomStep)
}

// IrisCurveAt returns the iris-step to numeric-aperture curve at a zoom
// position, blending apertures between the bracketing entries at the shared
// step knots.
func (s *Store) IrisCurveAt(zoomStep float64) (*IrisCurve, error) {
	cal, _, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return cal.irisCurveAt(zoomStep)
}

func (c *Calibration) focusCurveAt(zoomStep float64) (*FocusCurve, error) {
	a, b, t, cerr := c.bracket(zoomStep)
	if fatal(cerr) {
		return nil, cerr
	}
	n := len(a.Focus)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		j := n - 1 - i // farthest object distance first
		xs[i] = invOD(a.Focus[j].OD)
		ys[i] = lerp(a.Focus[j].Step, b.Focus[j].Step, t)
	}
	pc, err := newPolyline(xs, ys)
	if err != nil {
		return nil, fmt.Errorf("%w: focus curve at zoom %v: %v", ErrInvalidCalibrationData, zoomStep, err)
	}
	return &FocusCurve{c: pc}, cerr
}

func (c *Calibration) irisCurveAt(zoomStep float64) (*IrisCurve, error) {
	a, b, t, cerr := c.bracket(zoomStep)
	if fatal(cerr) {
		return nil, cerr
	}
	n := len(a.Iris)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = a.Iris[i].Step
		ys[i] = lerp(a.Iris[i].NA, b.Iris[i].NA, t)
	}
	pc, err := newPolyline(xs, ys)
	if err != nil {
		return nil, fmt.Errorf("%w: iris curve at zoom %v: %v", ErrInvalidCalibrationData, zoomStep, err)
	}
	return &IrisCurve{c: pc}, cerr
}

// bracket locates the entries around zoomStep and the blend factor between
// them. Out-of-span positions clamp to the end entries with ErrRangeClamped.
func (c *Calibration) bracket(zoomStep float64) (a, b *ZoomEntry, t float64, err error) {
	if math.IsNaN(zoomStep) || math.IsInf(zoomStep, 0) {
		return nil, nil, 0, fmt.Errorf("%w: zoom step %v", ErrInvalidParameter, zoomStep)
	}
	n := len(c.Entries)
	lo, hi := float64(c.Entries[0].ZoomStep), float64(c.Entries[n-1].ZoomStep)
	if zoomStep < lo || zoomStep > hi {
		err = fmt.Errorf("%w: zoom step %v outside [%v, %v]", ErrRangeClamped, zoomStep, lo, hi)
		zoomStep = math.Min(math.Max(zoomStep, lo), hi)
	}
	i := sort.Search(n-1, func(i int) bool {
		return float64(c.Entries[i+1].ZoomStep) >= zoomStep
	})
	a, b = &c.Entries[i], &c.Entries[i+1]
	t = (zoomStep - float64(a.ZoomStep)) / float64(b.ZoomStep-a.ZoomStep)
	return a, b, t, err
}

// FocusCurve maps object distance to focus-motor position at one zoom
// position. The interpolation variable is inverse object distance (1000/OD)
// so the infinity-focus point sits at a finite knot and near distances get
// the resolution they need.
type FocusCurve struct {
	c *polyline // x: 1000/OD ascending, y: focus step strictly decreasing
}

// StepAt returns the design focus position for an object distance in meters.
// Distances at or beyond Infinity focus at infinity; distances nearer than
// the calibrated minimum clamp with ErrRangeClamped.
func (fc *FocusCurve) StepAt(od float64) (float64, error) {
	if !positive(od) {
		return 0, fmt.Errorf("%w: object distance %v m", ErrInvalidParameter, od)
	}
	if od > Infinity {
		od = Infinity
	}
	y, clamped := fc.c.at(invOD(od))
	if clamped {
		return y, fmt.Errorf("%w: object distance %v m outside [%v, %v]",
			ErrRangeClamped, od, odFromInv(fc.c.xMax()), odFromInv(fc.c.xMin()))
	}
	return y, nil
}

// ODAt returns the object distance in meters focused at a motor position.
// Positions within the guard bands around the calibrated travel clamp to the
// boundary distance with ErrRangeClamped; positions beyond them fail with
// ErrOutOfCalibratedRange.
func (fc *FocusCurve) ODAt(step float64) (float64, error) {
	if math.IsNaN(step) || math.IsInf(step, 0) {
		return 0, fmt.Errorf("%w: focus step %v", ErrInvalidParameter, step)
	}
	switch {
	case step > fc.c.yMax()+focusOverTravel:
		return 0, fmt.Errorf("%w: focus step %v far past infinity focus at %v",
			ErrOutOfCalibratedRange, step, fc.c.yMax())
	case step < fc.c.yMin()-focusUnderTravel:
		return 0, fmt.Errorf("%w: focus step %v far below near focus at %v",
			ErrOutOfCalibratedRange, step, fc.c.yMin())
	}
	x, clamped := fc.c.solve(step)
	od := odFromInv(x)
	if od > Infinity {
		od = Infinity
	}
	if clamped {
		return od, fmt.Errorf("%w: focus step %v outside [%v, %v]",
			ErrRangeClamped, step, fc.c.yMin(), fc.c.yMax())
	}
	return od, nil
}

// StepSpan returns the calibrated focus travel, near-focus position first.
func (fc *FocusCurve) StepSpan() (min, max float64) {
	return fc.c.yMin(), fc.c.yMax()
}

// ODSpan returns the calibrated object-distance span in meters, nearest
// first.
func (fc *FocusCurve) ODSpan() (min, max float64) {
	return odFromInv(fc.c.xMax()), odFromInv(fc.c.xMin())
}

// IrisCurve maps iris-motor position to numeric aperture at one zoom
// position. Aperture falls as the step count rises.
type IrisCurve struct {
	c *polyline // x: iris step ascending, y: NA strictly decreasing
}

// NAAt returns the numeric aperture at an iris position. Positions outside
// the calibrated travel clamp with ErrRangeClamped.
func (ic *IrisCurve) NAAt(step float64) (float64, error) {
	if math.IsNaN(step) || math.IsInf(step, 0) {
		return 0, fmt.Errorf("%w: iris step %v", ErrInvalidParameter, step)
	}
	y, clamped := ic.c.at(step)
	if clamped {
		return y, fmt.Errorf("%w: iris step %v outside [%v, %v]",
			ErrRangeClamped, step, ic.c.xMin(), ic.c.xMax())
	}
	return y, nil
}

// StepAt returns the iris position realizing a numeric aperture. Apertures
// outside the calibrated span clamp to the nearest travel end with
// ErrRangeClamped.
func (ic *IrisCurve) StepAt(na float64) (float64, error) {
	if !positive(na) || na > 1 {
		return 0, fmt.Errorf("%w: numeric aperture %v", ErrInvalidParameter, na)
	}
	x, clamped := ic.c.solve(na)
	if clamped {
		return x, fmt.Errorf("%w: numeric aperture %v outside [%v, %v]",
			ErrRangeClamped, na, ic.c.yMin(), ic.c.yMax())
	}
	return x, nil
}

// NASpan returns the calibrated aperture span, smallest (most stopped down)
// first.
func (ic *IrisCurve) NASpan() (min, max float64) {
	return ic.c.yMin(), ic.c.yMax()
}

// StepSpan returns the calibrated iris travel.
func (ic *IrisCurve) StepSpan() (min, max float64) {
	return ic.c.xMin(), ic.c.xMax()
}

// invOD maps an object distance in meters to the interpolation variable
// 1000/OD, which is linear in focus-motor terms for a thin lens.
func invOD(od float64) float64 { return 1000 / od }

func odFromInv(x float64) float64 { return 1000 / x }

func lerp(a, b, t float64) float64 { return a + t*(b-a) }
