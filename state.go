package iqsmart

import (
	"fmt"
	"math"
)

// State tracks one lens: the three motor positions and their engineering
// mirrors, kept consistent through every motor move. Mirrors always describe
// the realized motor positions, and because the curves invert exactly,
// repeating an update at the same position never walks them.
//
// State is owned by a single goroutine, normally the one running the motor
// command session. The Store and BFLCurve it reads are themselves safe to
// share.
type State struct {
	conv *Converter
	bfl  *BFLCurve // nil when the lens has no field correction

	zoomStep  int
	focusStep int
	irisStep  int

	fl   float64 // focal length, mm
	od   float64 // object distance, m
	na   float64 // numeric aperture
	fnum float64
}

// NewState derives the engineering mirrors from the given motor positions.
// Positions outside the motor ranges clamp with ErrRangeClamped; the state
// is still usable. bfl may be nil.
func NewState(conv *Converter, bfl *BFLCurve, zoomStep, focusStep, irisStep int) (*State, error) {
	cal, _, err := conv.store.snapshot()
	if err != nil {
		return nil, err
	}
	s := &State{conv: conv, bfl: bfl}
	z, zc := cal.Zoom.Clamp(zoomStep)
	fl, flerr := conv.store.ZoomStepToFL(float64(z))
	if fatal(flerr) {
		return nil, flerr
	}
	f, fc := cal.Focus.Clamp(focusStep)
	od, oerr := conv.FocusStepToOD(s.RemoveBFLCorrection(f), z)
	if fatal(oerr) {
		return nil, oerr
	}
	ir, ic := cal.Iris.Clamp(irisStep)
	na, naerr := conv.IrisStepToNA(ir, z)
	if fatal(naerr) {
		return nil, naerr
	}
	fnum, err := NAToFNum(na)
	if err != nil {
		return nil, err
	}
	s.zoomStep, s.focusStep, s.irisStep = z, f, ir
	s.fl, s.od, s.na, s.fnum = fl, od, na, fnum
	var cerr error
	if zc || fc || ic {
		cerr = fmt.Errorf("%w: initial motor positions limited to their ranges", ErrRangeClamped)
	}
	return s, firstErr(cerr, flerr, oerr, naerr)
}

// ZoomStep returns the current zoom motor position.
func (s *State) ZoomStep() int { return s.zoomStep }

// FocusStep returns the current focus motor position, field correction
// included.
func (s *State) FocusStep() int { return s.focusStep }

// IrisStep returns the current iris motor position.
func (s *State) IrisStep() int { return s.irisStep }

// FL returns the current focal length in millimeters.
func (s *State) FL() float64 { return s.fl }

// OD returns the held object distance in meters.
func (s *State) OD() float64 { return s.od }

// NA returns the held numeric aperture.
func (s *State) NA() float64 { return s.na }

// FNum returns the held F-number.
func (s *State) FNum() float64 { return s.fnum }

// UpdateAfterZoom records a zoom move: the focal length mirror follows the
// new position, the focus and iris motors are re-derived to hold the current
// object distance and aperture as closely as the step grid allows, and every
// mirror is then refreshed from the realized positions. Re-running the same
// move is a no-op because the curves invert exactly. On a fatal error the
// state is left exactly as it was.
func (s *State) UpdateAfterZoom(zoomStep int) error {
	cal, _, err := s.conv.store.snapshot()
	if err != nil {
		return err
	}
	z, zc := cal.Zoom.Clamp(zoomStep)
	fl, flerr := s.conv.store.ZoomStepToFL(float64(z))
	if fatal(flerr) {
		return flerr
	}
	design, derr := odToFocusStep(cal, s.od, float64(z))
	if fatal(derr) {
		return derr
	}
	focus, fc := cal.Focus.Clamp(s.applyBFL(design))
	fcurve, ferr := cal.focusCurveAt(float64(z))
	if fatal(ferr) {
		return ferr
	}
	od, oerr := fcurve.ODAt(float64(s.RemoveBFLCorrection(focus)))
	if fatal(oerr) {
		return oerr
	}
	iris, ierr := naToIrisStep(cal, s.na, float64(z))
	if fatal(ierr) {
		return ierr
	}
	na, naerr := irisNA(cal, float64(iris), float64(z))
	if fatal(naerr) {
		return naerr
	}
	fnum, err := NAToFNum(na)
	if err != nil {
		return err
	}
	s.zoomStep, s.fl = z, fl
	s.focusStep, s.od = focus, od
	s.irisStep, s.na, s.fnum = iris, na, fnum
	var cerr error
	if zc || fc {
		cerr = fmt.Errorf("%w: motor positions limited to their ranges", ErrRangeClamped)
	}
	return firstErr(cerr, flerr, derr, oerr, ierr, naerr)
}

// UpdateAfterFocus records a focus move: the object-distance mirror follows
// the new position with the field correction removed first. Focal length and
// aperture are untouched. On a fatal error the state is left exactly as it
// was.
func (s *State) UpdateAfterFocus(focusStep int) error {
	cal, _, err := s.conv.store.snapshot()
	if err != nil {
		return err
	}
	f, fc := cal.Focus.Clamp(focusStep)
	od, oerr := s.conv.FocusStepToOD(s.RemoveBFLCorrection(f), s.zoomStep)
	if fatal(oerr) {
		return oerr
	}
	s.focusStep, s.od = f, od
	var cerr error
	if fc {
		cerr = fmt.Errorf("%w: focus position limited to [%d, %d]", ErrRangeClamped, cal.Focus.Min, cal.Focus.Max)
	}
	return firstErr(cerr, oerr)
}

// UpdateAfterIris records an iris move: the aperture mirrors follow the new
// position. On a fatal error the state is left exactly as it was.
func (s *State) UpdateAfterIris(irisStep int) error {
	cal, _, err := s.conv.store.snapshot()
	if err != nil {
		return err
	}
	ir, ic := cal.Iris.Clamp(irisStep)
	na, naerr := s.conv.IrisStepToNA(ir, s.zoomStep)
	if fatal(naerr) {
		return naerr
	}
	fnum, err := NAToFNum(na)
	if err != nil {
		return err
	}
	s.irisStep, s.na, s.fnum = ir, na, fnum
	var cerr error
	if ic {
		cerr = fmt.Errorf("%w: iris position limited to [%d, %d]", ErrRangeClamped, cal.Iris.Min, cal.Iris.Max)
	}
	return firstErr(cerr, naerr)
}

// ApplyBFLCorrection converts a design focus position to the mechanically
// corrected motor position for this lens.
func (s *State) ApplyBFLCorrection(designStep int) int {
	return s.applyBFL(designStep)
}

func (s *State) applyBFL(designStep int) int {
	if s.bfl == nil {
		return designStep
	}
	return designStep + int(math.Round(s.bfl.CorrectionAt(float64(designStep))))
}

// RemoveBFLCorrection inverts ApplyBFLCorrection, recovering the design
// position from a corrected motor position. The correction varies slowly
// against the travel, so a short fixed-point iteration with a neighborhood
// check finds the exact inverse.
func (s *State) RemoveBFLCorrection(correctedStep int) int {
	if s.bfl == nil {
		return correctedStep
	}
	raw := correctedStep - int(math.Round(s.bfl.CorrectionAt(float64(correctedStep))))
	for i := 0; i < 4; i++ {
		next := correctedStep - int(math.Round(s.bfl.CorrectionAt(float64(raw))))
		if next == raw {
			break
		}
		raw = next
	}
	for _, d := range []int{0, 1, -1, 2, -2} {
		if s.applyBFL(raw+d) == correctedStep {
			return raw + d
		}
	}
	return raw
}

// AOV returns the angle of view in degrees at the current focal length.
func (s *State) AOV() (float64, error) {
	return s.conv.AOV(s.fl)
}

// FOV returns the field width in meters at the current focal length and
// held object distance.
func (s *State) FOV() (float64, error) {
	return s.conv.FOV(s.fl, s.od)
}

// DOF returns the depth of field around the held object distance at the
// current focal length and iris position.
func (s *State) DOF() (DepthOfField, error) {
	return s.conv.DOF(s.fl, s.irisStep, s.od)
}
