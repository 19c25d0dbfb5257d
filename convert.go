package iqsmart

import (
	"fmt"
	"math"
)

// MotorSteps is a zoom and focus solution for a requested framing. FL is the
// focal length realized at ZoomStep, which can differ from the requested
// geometry when clamping applied.
type MotorSteps struct {
	ZoomStep  int
	FocusStep int
	FL        float64
}

// Converter composes the store's interpolation primitives into the
// engineering-unit conversions integrators call. Every method returns a
// usable value whenever possible: inputs outside the calibrated ranges clamp
// and flag ErrRangeClamped instead of failing.
type Converter struct {
	store *Store
}

// NewConverter returns a converter reading from store.
func NewConverter(store *Store) *Converter {
	return &Converter{store: store}
}

// Store returns the calibration store the converter reads from.
func (c *Converter) Store() *Store {
	return c.store
}

// ZoomStepToFL returns the focal length in millimeters at a zoom position.
func (c *Converter) ZoomStepToFL(zoomStep int) (float64, error) {
	return c.store.ZoomStepToFL(float64(zoomStep))
}

// FLToZoomStep returns the zoom position realizing a focal length in
// millimeters, rounded to whole steps. Focal lengths outside the calibrated
// span clamp to the nearest end with ErrRangeClamped.
func (c *Converter) FLToZoomStep(focalLength float64) (int, error) {
	cal, fl, err := c.store.snapshot()
	if err != nil {
		return 0, err
	}
	return flToZoomStep(cal, fl, focalLength)
}

func flToZoomStep(cal *Calibration, fl *polyline, focalLength float64) (int, error) {
	if !positive(focalLength) {
		return 0, fmt.Errorf("%w: focal length %v mm", ErrInvalidParameter, focalLength)
	}
	x, clamped := fl.solve(focalLength)
	step, snapped := cal.Zoom.Clamp(int(math.Round(x)))
	if clamped || snapped {
		return step, fmt.Errorf("%w: focal length %v mm outside [%v, %v]",
			ErrRangeClamped, focalLength, fl.yMin(), fl.yMax())
	}
	return step, nil
}

// FocusStepToOD returns the object distance in meters focused when the
// focus motor sits at focusStep with the zoom motor at zoomStep. Focus
// positions within the guard bands clamp to the boundary distance; positions
// beyond them fail with ErrOutOfCalibratedRange.
func (c *Converter) FocusStepToOD(focusStep, zoomStep int) (float64, error) {
	cal, _, err := c.store.snapshot()
	if err != nil {
		return 0, err
	}
	fc, cerr := cal.focusCurveAt(float64(zoomStep))
	if fatal(cerr) {
		return 0, cerr
	}
	od, oerr := fc.ODAt(float64(focusStep))
	if fatal(oerr) {
		return 0, oerr
	}
	return od, firstErr(oerr, cerr)
}

// ODToFocusStep returns the focus position for an object distance in meters
// with the zoom motor at zoomStep, rounded to whole steps and limited to the
// focus motor range.
func (c *Converter) ODToFocusStep(od float64, zoomStep int) (int, error) {
	cal, _, err := c.store.snapshot()
	if err != nil {
		return 0, err
	}
	return odToFocusStep(cal, od, float64(zoomStep))
}

func odToFocusStep(cal *Calibration, od, zoomStep float64) (int, error) {
	fc, cerr := cal.focusCurveAt(zoomStep)
	if fatal(cerr) {
		return 0, cerr
	}
	f, serr := fc.StepAt(od)
	if fatal(serr) {
		return 0, serr
	}
	step, snapped := cal.Focus.Clamp(int(math.Round(f)))
	var rerr error
	if snapped {
		rerr = fmt.Errorf("%w: focus step %v limited to motor range [%d, %d]",
			ErrRangeClamped, f, cal.Focus.Min, cal.Focus.Max)
	}
	return step, firstErr(serr, rerr, cerr)
}

// ODFLToFocusStep resolves an object distance in meters and a focal length
// in millimeters to focus and zoom positions in one call, for integrators
// that drive both motors from a framing request.
func (c *Converter) ODFLToFocusStep(od, focalLength float64) (focusStep, zoomStep int, err error) {
	cal, fl, err := c.store.snapshot()
	if err != nil {
		return 0, 0, err
	}
	zoomStep, zerr := flToZoomStep(cal, fl, focalLength)
	if fatal(zerr) {
		return 0, 0, zerr
	}
	focusStep, ferr := odToFocusStep(cal, od, float64(zoomStep))
	if fatal(ferr) {
		return 0, 0, ferr
	}
	return focusStep, zoomStep, firstErr(ferr, zerr)
}

// IrisStepToNA returns the numeric aperture at an iris position with the
// zoom motor at zoomStep. The result is limited to the lens's rated full
// aperture and floored at the resolvable minimum.
func (c *Converter) IrisStepToNA(irisStep, zoomStep int) (float64, error) {
	cal, _, err := c.store.snapshot()
	if err != nil {
		return 0, err
	}
	return irisNA(cal, float64(irisStep), float64(zoomStep))
}

func irisNA(cal *Calibration, irisStep, zoomStep float64) (float64, error) {
	ic, cerr := cal.irisCurveAt(zoomStep)
	if fatal(cerr) {
		return 0, cerr
	}
	na, aerr := ic.NAAt(irisStep)
	if fatal(aerr) {
		return 0, aerr
	}
	var rerr error
	if max := 1 / (2 * cal.FNum); na > max {
		rerr = fmt.Errorf("%w: aperture %v limited by rated F/%v", ErrRangeClamped, na, cal.FNum)
		na = max
	}
	if na < minNumericAperture {
		rerr = fmt.Errorf("%w: aperture %v floored at %v", ErrRangeClamped, na, minNumericAperture)
		na = minNumericAperture
	}
	return na, firstErr(aerr, rerr, cerr)
}

// IrisStepToFNum returns the F-number at an iris position with the zoom
// motor at zoomStep.
func (c *Converter) IrisStepToFNum(irisStep, zoomStep int) (float64, error) {
	na, err := c.IrisStepToNA(irisStep, zoomStep)
	if fatal(err) {
		return 0, err
	}
	fnum, ferr := NAToFNum(na)
	if ferr != nil {
		return 0, ferr
	}
	return fnum, err
}

// NAToIrisStep returns the iris position realizing a numeric aperture with
// the zoom motor at zoomStep, rounded to whole steps and limited to the iris
// motor range.
func (c *Converter) NAToIrisStep(na float64, zoomStep int) (int, error) {
	cal, _, err := c.store.snapshot()
	if err != nil {
		return 0, err
	}
	return naToIrisStep(cal, na, float64(zoomStep))
}

func naToIrisStep(cal *Calibration, na, zoomStep float64) (int, error) {
	ic, cerr := cal.irisCurveAt(zoomStep)
	if fatal(cerr) {
		return 0, cerr
	}
	x, aerr := ic.StepAt(na)
	if fatal(aerr) {
		return 0, aerr
	}
	step, snapped := cal.Iris.Clamp(int(math.Round(x)))
	var rerr error
	if snapped {
		rerr = fmt.Errorf("%w: iris step %v limited to motor range [%d, %d]",
			ErrRangeClamped, x, cal.Iris.Min, cal.Iris.Max)
	}
	return step, firstErr(aerr, rerr, cerr)
}

// FNumToIrisStep returns the iris position realizing an F-number with the
// zoom motor at zoomStep.
func (c *Converter) FNumToIrisStep(fnum float64, zoomStep int) (int, error) {
	na, err := FNumToNA(fnum)
	if err != nil {
		return 0, err
	}
	return c.NAToIrisStep(na, zoomStep)
}

// AOV returns the full horizontal angle of view in degrees at a focal
// length in millimeters, using the active sensor width.
func (c *Converter) AOV(focalLength float64) (float64, error) {
	cal, _, err := c.store.snapshot()
	if err != nil {
		return 0, err
	}
	if !positive(focalLength) {
		return 0, fmt.Errorf("%w: focal length %v mm", ErrInvalidParameter, focalLength)
	}
	return aovForFL(cal.SensorWidth, focalLength), nil
}

// FOV returns the linear field width in meters captured at a focal length
// in millimeters and an object distance in meters.
func (c *Converter) FOV(focalLength, od float64) (float64, error) {
	aov, err := c.AOV(focalLength)
	if err != nil {
		return 0, err
	}
	if !positive(od) {
		return 0, fmt.Errorf("%w: object distance %v m", ErrInvalidParameter, od)
	}
	if od > Infinity {
		od = Infinity
	}
	return fovForAOV(aov, od), nil
}

// AOVToMotorSteps resolves a requested angle of view in degrees and object
// distance in meters to zoom and focus positions. When the angle needs a
// focal length outside the calibrated span, clampToRange selects between
// clamping with ErrRangeClamped and failing with ErrUnachievableGeometry.
func (c *Converter) AOVToMotorSteps(aov, od float64, clampToRange bool) (MotorSteps, error) {
	cal, fl, err := c.store.snapshot()
	if err != nil {
		return MotorSteps{}, err
	}
	return aovToMotorSteps(cal, fl, aov, od, clampToRange)
}

func aovToMotorSteps(cal *Calibration, fl *polyline, aov, od float64, clampToRange bool) (MotorSteps, error) {
	if !positive(aov) || aov >= 180 {
		return MotorSteps{}, fmt.Errorf("%w: angle of view %v degrees", ErrInvalidParameter, aov)
	}
	if !positive(od) {
		return MotorSteps{}, fmt.Errorf("%w: object distance %v m", ErrInvalidParameter, od)
	}
	need := flForAOV(cal.SensorWidth, aov)
	var adv error
	if need < cal.FLMin() || need > cal.FLMax() {
		if !clampToRange {
			return MotorSteps{}, fmt.Errorf("%w: angle %v degrees needs %.4g mm, calibrated span [%v, %v] mm",
				ErrUnachievableGeometry, aov, need, cal.FLMin(), cal.FLMax())
		}
		adv = fmt.Errorf("%w: focal length %.4g mm limited to [%v, %v]",
			ErrRangeClamped, need, cal.FLMin(), cal.FLMax())
		need = math.Min(math.Max(need, cal.FLMin()), cal.FLMax())
	}
	zoomStep, zerr := flToZoomStep(cal, fl, need)
	if fatal(zerr) {
		return MotorSteps{}, zerr
	}
	focusStep, ferr := odToFocusStep(cal, od, float64(zoomStep))
	if fatal(ferr) {
		return MotorSteps{}, ferr
	}
	achieved, _ := fl.at(float64(zoomStep))
	return MotorSteps{ZoomStep: zoomStep, FocusStep: focusStep, FL: achieved},
		firstErr(adv, ferr, zerr)
}

// FOVToMotorSteps resolves a requested linear field width in meters at an
// object distance in meters to zoom and focus positions.
func (c *Converter) FOVToMotorSteps(fov, od float64, clampToRange bool) (MotorSteps, error) {
	aov, err := FOVToAOV(fov, od)
	if err != nil {
		return MotorSteps{}, err
	}
	cal, fl, err := c.store.snapshot()
	if err != nil {
		return MotorSteps{}, err
	}
	return aovToMotorSteps(cal, fl, aov, od, clampToRange)
}

// DOF returns the depth of field around an object distance in meters at a
// focal length in millimeters with the iris at irisStep, using the active
// circle of confusion.
func (c *Converter) DOF(focalLength float64, irisStep int, od float64) (DepthOfField, error) {
	cal, fl, err := c.store.snapshot()
	if err != nil {
		return DepthOfField{}, err
	}
	if !positive(focalLength) {
		return DepthOfField{}, fmt.Errorf("%w: focal length %v mm", ErrInvalidParameter, focalLength)
	}
	zoomStep, zerr := fl.solveClamped(focalLength)
	na, aerr := irisNA(cal, float64(irisStep), zoomStep)
	if fatal(aerr) {
		return DepthOfField{}, aerr
	}
	d, derr := depthOfField(focalLength, 1/(2*na), cal.COC, od)
	if derr != nil {
		return DepthOfField{}, derr
	}
	return d, firstErr(aerr, zerr)
}

// firstErr surfaces one error from a composite conversion, first non-nil
// wins. Callers have already returned on anything fatal, so what remains is
// advisory.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
