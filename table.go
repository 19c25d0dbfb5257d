package iqsmart

import (
	"fmt"
	"math"
)

// Unit conventions used throughout the package: focal length, sensor width
// and circle of confusion in millimeters, object distance in meters, angles
// in degrees at the API boundary, motor positions in steps.
const (
	// Infinity is the object distance treated as infinite (meters). Distances
	// at or beyond it map to the infinity-focus point of the focus curves.
	Infinity = 1e6

	// DefaultCOC is the circle of confusion assumed for depth of field when
	// the table does not supply one, in millimeters (1/5.6" class sensors).
	DefaultCOC = 0.020

	// DefaultMinOD is assumed for tables that omit the nearest calibrated
	// object distance, in meters.
	DefaultMinOD = 2.0
)

// Guard bands around the calibrated focus travel. A focus position within a
// band still resolves with the result clamped to the curve boundary; beyond
// a band no meaningful object distance exists.
const (
	focusOverTravel  = 100 // steps past the infinity-focus point
	focusUnderTravel = 400 // steps short of the near-focus point
)

// minNumericAperture is the floor below which an iris reading is treated as
// fully stopped down rather than resolved to an aperture.
const minNumericAperture = 0.01

// StepRange bounds one motor axis in steps, inclusive.
type StepRange struct {
	Min int
	Max int
}

// Contains reports whether step lies inside the range.
func (r StepRange) Contains(step int) bool {
	return step >= r.Min && step <= r.Max
}

// Clamp limits step to the range and reports whether limiting occurred.
func (r StepRange) Clamp(step int) (int, bool) {
	switch {
	case step < r.Min:
		return r.Min, true
	case step > r.Max:
		return r.Max, true
	default:
		return step, false
	}
}

// FocusSample pairs a calibrated object distance with the design focus-motor
// position measured there. Distances of Infinity mark the infinity-focus
// point.
type FocusSample struct {
	OD   float64 // object distance, meters
	Step float64 // design focus position, fractional steps
}

// IrisSample pairs an iris-motor position with the numeric aperture measured
// there.
type IrisSample struct {
	Step float64
	NA   float64
}

// ZoomEntry is one calibrated zoom position: the focal length realized there
// and the focus and iris design curves measured at that position.
type ZoomEntry struct {
	ZoomStep int
	FL       float64 // focal length, millimeters

	// Focus is ordered by increasing OD with strictly increasing Step, the
	// infinity-focus point at the high end of the travel. Every entry of a
	// table shares the same OD knots.
	Focus []FocusSample

	// Iris is ordered by increasing Step with strictly decreasing NA. Every
	// entry of a table shares the same Step knots.
	Iris []IrisSample
}

// Calibration is the factory design table for one lens model. Tables are
// built by a loader, validated once, and treated as read-only afterwards;
// the Store swaps whole tables rather than mutating one in place.
type Calibration struct {
	Model       string
	SensorWidth float64 // image-side sensor width, millimeters
	COC         float64 // circle of confusion for DOF, millimeters
	FNum        float64 // rated F-number at full aperture
	MinOD       float64 // nearest calibrated object distance, meters

	Zoom  StepRange
	Focus StepRange
	Iris  StepRange

	// Entries are ordered by strictly increasing ZoomStep and strictly
	// increasing FL.
	Entries []ZoomEntry
}

// FLMin returns the shortest calibrated focal length.
func (c *Calibration) FLMin() float64 { return c.Entries[0].FL }

// FLMax returns the longest calibrated focal length.
func (c *Calibration) FLMax() float64 { return c.Entries[len(c.Entries)-1].FL }

// Validate checks every ordering and range invariant the conversion engine
// relies on. All failures wrap ErrInvalidCalibrationData.
func (c *Calibration) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCalibrationData, err)
	}
	return nil
}

func (c *Calibration) validate() error {
	if !positive(c.SensorWidth) {
		return fmt.Errorf("sensor width %v mm", c.SensorWidth)
	}
	if !positive(c.COC) {
		return fmt.Errorf("circle of confusion %v mm", c.COC)
	}
	if !positive(c.FNum) {
		return fmt.Errorf("rated F-number %v", c.FNum)
	}
	if !positive(c.MinOD) {
		return fmt.Errorf("minimum object distance %v m", c.MinOD)
	}
	for _, ax := range []struct {
		name string
		r    StepRange
	}{{"zoom", c.Zoom}, {"focus", c.Focus}, {"iris", c.Iris}} {
		if ax.r.Min >= ax.r.Max {
			return fmt.Errorf("%s motor range [%d, %d] is empty", ax.name, ax.r.Min, ax.r.Max)
		}
	}
	if len(c.Entries) < 2 {
		return fmt.Errorf("%d zoom entries, need at least 2", len(c.Entries))
	}
	for i, e := range c.Entries {
		if i > 0 {
			prev := c.Entries[i-1]
			if e.ZoomStep <= prev.ZoomStep {
				return fmt.Errorf("zoom steps not strictly increasing at entry %d", i)
			}
			if e.FL <= prev.FL {
				return fmt.Errorf("focal lengths not strictly increasing at entry %d", i)
			}
		}
		if !c.Zoom.Contains(e.ZoomStep) {
			return fmt.Errorf("entry %d zoom step %d outside motor range [%d, %d]",
				i, e.ZoomStep, c.Zoom.Min, c.Zoom.Max)
		}
		if !positive(e.FL) {
			return fmt.Errorf("entry %d focal length %v mm", i, e.FL)
		}
		if err := c.validateFocus(i, e.Focus); err != nil {
			return err
		}
		if err := c.validateIris(i, e.Iris); err != nil {
			return err
		}
	}
	return nil
}

func (c *Calibration) validateFocus(entry int, samples []FocusSample) error {
	if len(samples) < 2 {
		return fmt.Errorf("entry %d has %d focus samples, need at least 2", entry, len(samples))
	}
	ref := c.Entries[0].Focus
	if len(samples) != len(ref) {
		return fmt.Errorf("entry %d has %d focus samples, entry 0 has %d", entry, len(samples), len(ref))
	}
	for i, s := range samples {
		if !positive(s.OD) {
			return fmt.Errorf("entry %d focus sample %d object distance %v m", entry, i, s.OD)
		}
		if math.IsNaN(s.Step) || math.IsInf(s.Step, 0) {
			return fmt.Errorf("entry %d focus sample %d step %v", entry, i, s.Step)
		}
		// Interpolating curves between zoom entries needs identical OD knots.
		if s.OD != ref[i].OD {
			return fmt.Errorf("entry %d focus sample %d at %v m, entry 0 at %v m",
				entry, i, s.OD, ref[i].OD)
		}
		if i > 0 {
			if s.OD <= samples[i-1].OD {
				return fmt.Errorf("entry %d focus distances not strictly increasing at sample %d", entry, i)
			}
			if s.Step <= samples[i-1].Step {
				return fmt.Errorf("entry %d focus steps not strictly increasing at sample %d", entry, i)
			}
		}
	}
	return nil
}

func (c *Calibration) validateIris(entry int, samples []IrisSample) error {
	if len(samples) < 2 {
		return fmt.Errorf("entry %d has %d iris samples, need at least 2", entry, len(samples))
	}
	ref := c.Entries[0].Iris
	if len(samples) != len(ref) {
		return fmt.Errorf("entry %d has %d iris samples, entry 0 has %d", entry, len(samples), len(ref))
	}
	for i, s := range samples {
		if math.IsNaN(s.Step) || math.IsInf(s.Step, 0) {
			return fmt.Errorf("entry %d iris sample %d step %v", entry, i, s.Step)
		}
		if !positive(s.NA) || s.NA > 1 {
			return fmt.Errorf("entry %d iris sample %d numeric aperture %v", entry, i, s.NA)
		}
		if s.Step != ref[i].Step {
			return fmt.Errorf("entry %d iris sample %d at step %v, entry 0 at step %v",
				entry, i, s.Step, ref[i].Step)
		}
		if i > 0 {
			if s.Step <= samples[i-1].Step {
				return fmt.Errorf("entry %d iris steps not strictly increasing at sample %d", entry, i)
			}
			if s.NA >= samples[i-1].NA {
				return fmt.Errorf("entry %d iris apertures not strictly decreasing at sample %d", entry, i)
			}
		}
	}
	return nil
}

// clone deep-copies the table so a loaded Store never aliases caller-owned
// slices.
func (c *Calibration) clone() *Calibration {
	out := *c
	out.Entries = make([]ZoomEntry, len(c.Entries))
	for i, e := range c.Entries {
		out.Entries[i] = e
		out.Entries[i].Focus = append([]FocusSample(nil), e.Focus...)
		out.Entries[i].Iris = append([]IrisSample(nil), e.Iris...)
	}
	return &out
}

// positive reports whether v is a finite value greater than zero.
func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
