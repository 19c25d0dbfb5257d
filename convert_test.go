package iqsmart

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConverter(t *testing.T) *Converter {
	t.Helper()
	return NewConverter(loadedStore(t))
}

// TestConverter_ZoomFocalLength covers the zoom axis in both directions.
func TestConverter_ZoomFocalLength(t *testing.T) {
	t.Parallel()
	conv := testConverter(t)

	t.Run("known focal length lands strictly inside the travel", func(t *testing.T) {
		step, err := conv.FLToZoomStep(7.0)
		require.NoError(t, err)
		assert.Greater(t, step, 0)
		assert.Less(t, step, 1000)
	})

	t.Run("round trip stays within one step", func(t *testing.T) {
		for z := 0; z <= 1000; z += 25 {
			fl, err := conv.ZoomStepToFL(z)
			require.NoError(t, err)
			back, err := conv.FLToZoomStep(fl)
			require.NoError(t, err)
			assert.InDelta(t, z, back, 1, "zoom step %d", z)
		}
	})

	t.Run("focal length grows with zoom step", func(t *testing.T) {
		prev := -1.0
		for z := 0; z <= 1000; z += 50 {
			fl, err := conv.ZoomStepToFL(z)
			require.NoError(t, err)
			assert.Greater(t, fl, prev, "zoom step %d", z)
			prev = fl
		}
	})

	t.Run("out of range clamps with advisory", func(t *testing.T) {
		step, err := conv.FLToZoomStep(3.0)
		assert.ErrorIs(t, err, ErrRangeClamped)
		assert.Equal(t, 0, step)
		step, err = conv.FLToZoomStep(50)
		assert.ErrorIs(t, err, ErrRangeClamped)
		assert.Equal(t, 1000, step)
		_, err = conv.FLToZoomStep(-1)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
}

// TestConverter_FocusObjectDistance covers the focus axis in both directions.
func TestConverter_FocusObjectDistance(t *testing.T) {
	t.Parallel()
	conv := testConverter(t)

	t.Run("round trip stays within one step", func(t *testing.T) {
		for _, zoom := range []int{0, 250, 380, 750, 1000} {
			fc, err := conv.Store().FocusCurveAt(float64(zoom))
			require.NoError(t, err)
			min, max := fc.StepSpan()
			for f := int(min) + 1; f < int(max); f += 97 {
				od, err := conv.FocusStepToOD(f, zoom)
				require.NoError(t, err, "zoom %d focus %d", zoom, f)
				back, err := conv.ODToFocusStep(od, zoom)
				require.NoError(t, err, "zoom %d od %v", zoom, od)
				assert.InDelta(t, f, back, 1, "zoom %d focus %d", zoom, f)
			}
		}
	})

	t.Run("distance grows with focus step", func(t *testing.T) {
		prev := 0.0
		for f := 5800; f <= 7000; f += 100 {
			od, err := conv.FocusStepToOD(f, 0)
			require.NoError(t, err)
			assert.Greater(t, od, prev, "focus step %d", f)
			prev = od
		}
	})

	t.Run("near clamp keeps a usable step", func(t *testing.T) {
		step, err := conv.ODToFocusStep(0.25, 0)
		assert.ErrorIs(t, err, ErrRangeClamped)
		assert.Equal(t, 5800, step)
	})

	t.Run("far outside the guard bands fails", func(t *testing.T) {
		_, err := conv.FocusStepToOD(8000, 0)
		assert.ErrorIs(t, err, ErrOutOfCalibratedRange)
		_, err = conv.FocusStepToOD(100, 0)
		assert.ErrorIs(t, err, ErrOutOfCalibratedRange)
	})

	t.Run("infinity request lands on the infinity point", func(t *testing.T) {
		step, err := conv.ODToFocusStep(Infinity, 0)
		require.NoError(t, err)
		assert.Equal(t, 7000, step)
	})
}

// TestConverter_CombinedFraming exercises the one-call framing resolution.
func TestConverter_CombinedFraming(t *testing.T) {
	t.Parallel()
	conv := testConverter(t)

	t.Run("matches the two-call composition", func(t *testing.T) {
		focus, zoom, err := conv.ODFLToFocusStep(6, 8.2)
		require.NoError(t, err)
		wantZoom, err := conv.FLToZoomStep(8.2)
		require.NoError(t, err)
		wantFocus, err := conv.ODToFocusStep(6, wantZoom)
		require.NoError(t, err)
		assert.Equal(t, wantZoom, zoom)
		assert.Equal(t, wantFocus, focus)
	})

	t.Run("advisory from either axis surfaces", func(t *testing.T) {
		_, zoom, err := conv.ODFLToFocusStep(6, 50)
		assert.ErrorIs(t, err, ErrRangeClamped)
		assert.Equal(t, 1000, zoom)
	})

	t.Run("invalid distance fails", func(t *testing.T) {
		_, _, err := conv.ODFLToFocusStep(-3, 8)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
}

// TestConverter_Iris covers aperture conversions in both directions.
func TestConverter_Iris(t *testing.T) {
	t.Parallel()
	conv := testConverter(t)

	t.Run("wide open at the wide end is the rated F/2", func(t *testing.T) {
		na, err := conv.IrisStepToNA(0, 0)
		require.NoError(t, err)
		assert.InDelta(t, 0.25, na, 1e-12)
		fnum, err := conv.IrisStepToFNum(0, 0)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, fnum, 1e-12)
	})

	t.Run("aperture falls as the iris steps in", func(t *testing.T) {
		prev := 1.0
		for step := 0; step <= 75; step += 5 {
			na, err := conv.IrisStepToNA(step, 500)
			require.NoError(t, err)
			assert.Less(t, na, prev, "iris step %d", step)
			prev = na
		}
	})

	t.Run("round trip stays within one step", func(t *testing.T) {
		for _, zoom := range []int{0, 400, 1000} {
			for step := 0; step <= 75; step += 3 {
				na, err := conv.IrisStepToNA(step, zoom)
				require.NoError(t, err)
				back, err := conv.NAToIrisStep(na, zoom)
				require.NoError(t, err)
				assert.InDelta(t, step, back, 1, "zoom %d iris %d", zoom, step)
			}
		}
	})

	t.Run("F-number entry point matches NA entry point", func(t *testing.T) {
		byNA, err := conv.NAToIrisStep(0.1, 250)
		require.NoError(t, err)
		byFNum, err := conv.FNumToIrisStep(5.0, 250)
		require.NoError(t, err)
		assert.Equal(t, byNA, byFNum)
	})

	t.Run("unreachable apertures clamp with advisory", func(t *testing.T) {
		step, err := conv.NAToIrisStep(0.9, 0)
		assert.ErrorIs(t, err, ErrRangeClamped)
		assert.Equal(t, 0, step)
		step, err = conv.NAToIrisStep(0.012, 0)
		assert.ErrorIs(t, err, ErrRangeClamped)
		assert.Equal(t, 75, step)
	})
}

// TestConverter_FieldGeometry exercises angle and field of view resolution.
func TestConverter_FieldGeometry(t *testing.T) {
	t.Parallel()
	conv := testConverter(t)

	t.Run("aov matches the closed form", func(t *testing.T) {
		aov, err := conv.AOV(5.4)
		require.NoError(t, err)
		want := 2 * 180 / math.Pi * math.Atan(5.4/(2*5.4))
		assert.InDelta(t, want, aov, 1e-12)
	})

	t.Run("fov scales with distance", func(t *testing.T) {
		near, err := conv.FOV(6, 5)
		require.NoError(t, err)
		far, err := conv.FOV(6, 10)
		require.NoError(t, err)
		assert.InDelta(t, 2*near, far, 1e-9)
	})

	t.Run("achievable angle resolves both motors", func(t *testing.T) {
		fl := 6.6
		aov, err := conv.AOV(fl)
		require.NoError(t, err)
		ms, err := conv.AOVToMotorSteps(aov, 10, false)
		require.NoError(t, err)
		assert.Equal(t, 500, ms.ZoomStep)
		assert.InDelta(t, fl, ms.FL, 1e-9)
		wantFocus, err := conv.ODToFocusStep(10, 500)
		require.NoError(t, err)
		assert.Equal(t, wantFocus, ms.FocusStep)
	})

	t.Run("angle beyond the wide end fails without the clamp flag", func(t *testing.T) {
		wide, err := conv.AOV(2.0) // needs 2mm, lens stops at 4mm
		require.NoError(t, err)
		_, err = conv.AOVToMotorSteps(wide, 10, false)
		assert.ErrorIs(t, err, ErrUnachievableGeometry)
	})

	t.Run("angle beyond the wide end clamps with the flag", func(t *testing.T) {
		wide, err := conv.AOV(2.0)
		require.NoError(t, err)
		ms, err := conv.AOVToMotorSteps(wide, 10, true)
		assert.ErrorIs(t, err, ErrRangeClamped)
		assert.Equal(t, 0, ms.ZoomStep)
		assert.InDelta(t, 4.0, ms.FL, 1e-9)
	})

	t.Run("fov request agrees with the equivalent aov request", func(t *testing.T) {
		const od = 8.0
		fov, err := conv.FOV(7.0, od)
		require.NoError(t, err)
		byFOV, err := conv.FOVToMotorSteps(fov, od, false)
		require.NoError(t, err)
		aov, err := FOVToAOV(fov, od)
		require.NoError(t, err)
		byAOV, err := conv.AOVToMotorSteps(aov, od, false)
		require.NoError(t, err)
		assert.Equal(t, byAOV, byFOV)
	})

	t.Run("rejects degenerate angles", func(t *testing.T) {
		_, err := conv.AOVToMotorSteps(0, 10, true)
		assert.ErrorIs(t, err, ErrInvalidParameter)
		_, err = conv.AOVToMotorSteps(180, 10, true)
		assert.ErrorIs(t, err, ErrInvalidParameter)
		_, err = conv.FOVToMotorSteps(5, 0, true)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
}

// TestConverter_DOF checks the composed depth-of-field path.
func TestConverter_DOF(t *testing.T) {
	t.Parallel()
	conv := testConverter(t)

	t.Run("brackets the focused distance", func(t *testing.T) {
		for _, tt := range []struct {
			fl   float64
			iris int
			od   float64
		}{
			{4.0, 0, 5},
			{6.6, 30, 8},
			{10.0, 75, 3},
		} {
			d, err := conv.DOF(tt.fl, tt.iris, tt.od)
			require.NoError(t, err, "%+v", tt)
			assert.LessOrEqual(t, d.Near, tt.od, "%+v", tt)
			assert.GreaterOrEqual(t, d.Far, tt.od, "%+v", tt)
		}
	})

	t.Run("stopping down deepens the field", func(t *testing.T) {
		open, err := conv.DOF(6.6, 0, 5)
		require.NoError(t, err)
		stopped, err := conv.DOF(6.6, 60, 5)
		require.NoError(t, err)
		assert.Less(t, stopped.Near, open.Near)
		assert.GreaterOrEqual(t, stopped.Far, open.Far)
	})

	t.Run("wide lens near hyperfocal reaches infinity", func(t *testing.T) {
		d, err := conv.DOF(4.0, 0, 30)
		require.NoError(t, err)
		assert.Equal(t, Infinity, d.Far)
	})
}

// TestConverter_EmptyStore verifies everything degrades to ErrNoCalibration.
func TestConverter_EmptyStore(t *testing.T) {
	t.Parallel()
	conv := NewConverter(NewStore())

	_, err := conv.ZoomStepToFL(0)
	assert.ErrorIs(t, err, ErrNoCalibration)
	_, err = conv.FLToZoomStep(5)
	assert.ErrorIs(t, err, ErrNoCalibration)
	_, err = conv.FocusStepToOD(6000, 0)
	assert.ErrorIs(t, err, ErrNoCalibration)
	_, err = conv.ODToFocusStep(5, 0)
	assert.ErrorIs(t, err, ErrNoCalibration)
	_, _, err = conv.ODFLToFocusStep(5, 6)
	assert.ErrorIs(t, err, ErrNoCalibration)
	_, err = conv.IrisStepToNA(0, 0)
	assert.ErrorIs(t, err, ErrNoCalibration)
	_, err = conv.NAToIrisStep(0.1, 0)
	assert.ErrorIs(t, err, ErrNoCalibration)
	_, err = conv.AOV(5)
	assert.ErrorIs(t, err, ErrNoCalibration)
	_, err = conv.FOV(5, 3)
	assert.ErrorIs(t, err, ErrNoCalibration)
	_, err = conv.AOVToMotorSteps(40, 5, true)
	assert.ErrorIs(t, err, ErrNoCalibration)
	_, err = conv.DOF(5, 0, 3)
	assert.ErrorIs(t, err, ErrNoCalibration)
}
