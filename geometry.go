package iqsmart

import (
	"fmt"
	"math"
)

// NAToFNum converts numeric aperture to F-number by F = 1/(2 NA). The
// aperture must lie in (0, 1].
func NAToFNum(na float64) (float64, error) {
	if !positive(na) || na > 1 {
		return 0, fmt.Errorf("%w: numeric aperture %v", ErrInvalidParameter, na)
	}
	return 1 / (2 * na), nil
}

// FNumToNA converts F-number to numeric aperture by NA = 1/(2 F). F-numbers
// below 0.5 would need an aperture above 1 and are rejected.
func FNumToNA(fnum float64) (float64, error) {
	if !positive(fnum) || fnum < 0.5 {
		return 0, fmt.Errorf("%w: F-number %v", ErrInvalidParameter, fnum)
	}
	return 1 / (2 * fnum), nil
}

// FOVToAOV converts a linear field of view in meters at an object distance
// in meters to the angle of view in degrees.
func FOVToAOV(fov, od float64) (float64, error) {
	if !positive(fov) {
		return 0, fmt.Errorf("%w: field of view %v m", ErrInvalidParameter, fov)
	}
	if !positive(od) {
		return 0, fmt.Errorf("%w: object distance %v m", ErrInvalidParameter, od)
	}
	if od > Infinity {
		od = Infinity
	}
	return 2 * degrees(math.Atan2(fov/2, od)), nil
}

// aovForFL is the full horizontal angle of view in degrees for a focal
// length and sensor width in millimeters.
func aovForFL(sensorWidth, fl float64) float64 {
	return 2 * degrees(math.Atan2(sensorWidth/2, fl))
}

// flForAOV inverts aovForFL.
func flForAOV(sensorWidth, aov float64) float64 {
	return sensorWidth / (2 * math.Tan(radians(aov)/2))
}

// fovForAOV is the linear field width in meters subtended by an angle of
// view at an object distance in meters.
func fovForAOV(aov, od float64) float64 {
	return 2 * od * math.Tan(radians(aov)/2)
}

// DepthOfField bounds the acceptably sharp span around a focused object
// distance, in meters. Far is Infinity once focus reaches past the
// hyperfocal distance.
type DepthOfField struct {
	Near float64
	Far  float64
}

// Total returns the depth span, Infinity when the far limit is unbounded.
func (d DepthOfField) Total() float64 {
	if d.Far >= Infinity {
		return Infinity
	}
	return d.Far - d.Near
}

// depthOfField evaluates the thin-lens limits for a focal length in mm, an
// F-number, a circle of confusion in mm, and an object distance in meters.
// The working variable is millimeters; the hyperfocal distance is
// H = FL^2/(N c) + FL.
func depthOfField(fl, fnum, coc, od float64) (DepthOfField, error) {
	if !positive(od) {
		return DepthOfField{}, fmt.Errorf("%w: object distance %v m", ErrInvalidParameter, od)
	}
	if od > Infinity {
		od = Infinity
	}
	odMM := od * 1000
	if odMM <= fl {
		return DepthOfField{}, fmt.Errorf("%w: object distance %v m within focal length %v mm",
			ErrInvalidParameter, od, fl)
	}
	h := fl*fl/(fnum*coc) + fl
	near := odMM * (h - fl) / (h + odMM - 2*fl)
	d := DepthOfField{Near: math.Min(near/1000, od)}
	if odMM >= h {
		d.Far = Infinity
		return d, nil
	}
	far := odMM * (h - fl) / (h - odMM)
	d.Far = math.Min(far/1000, Infinity)
	if d.Far < od {
		d.Far = od
	}
	return d, nil
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func radians(deg float64) float64 { return deg * math.Pi / 180 }
