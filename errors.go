package iqsmart

import "errors"

// Sentinel errors returned by conversion and calibration calls. Wrap sites
// add context with fmt.Errorf("...: %w", ...); match with errors.Is.
var (
	// ErrNoCalibration is returned when a conversion is requested before a
	// calibration table has been loaded into the Store.
	ErrNoCalibration = errors.New("no calibration data loaded")

	// ErrInvalidCalibrationData rejects a table whose ordering or range
	// invariants do not hold. A failed Load keeps the previous table active.
	ErrInvalidCalibrationData = errors.New("invalid calibration data")

	// ErrInvalidParameter rejects a non-positive or non-finite input to a
	// conversion. The call has no effect.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrRangeClamped is advisory: the input fell outside the calibrated
	// range and the result was clamped to the nearest boundary. The value
	// returned alongside it is valid and usable, in the same way
	// strconv.ParseFloat returns a saturated value with ErrRange.
	ErrRangeClamped = errors.New("input clamped to calibrated range")

	// ErrOutOfCalibratedRange is returned when a motor position falls so far
	// outside the calibrated domain that no meaningful engineering value can
	// be produced, even by clamping.
	ErrOutOfCalibratedRange = errors.New("outside calibrated range")

	// ErrUnachievableGeometry is returned when a requested angle or field of
	// view needs a focal length the zoom mechanism cannot reach and the
	// caller disallowed clamping.
	ErrUnachievableGeometry = errors.New("geometry not achievable by this lens")

	// ErrIndexOutOfRange is returned by point removal with an index that does
	// not identify a stored correction point.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// advisory reports whether err carries only a range-clamp notice, meaning the
// accompanying result is still valid.
func advisory(err error) bool {
	return errors.Is(err, ErrRangeClamped)
}

// fatal reports whether err should abort a composite conversion.
func fatal(err error) bool {
	return err != nil && !advisory(err)
}
