// Package lensdata loads lens calibration tables from JSON files and
// converts them into iqsmart.Calibration values.
//
// A calibration file carries the per-lens constants (sensor width, circle
// of confusion, rated F-number, minimum object distance), the motor step
// ranges for the three axes, and one entry per calibrated zoom step. The
// object-distance and iris-step knot lists are shared across entries, so
// each entry stores only its focus steps and apertures, one value per
// shared knot.
//
// The package also embeds a table for the TW90 lens family so callers can
// run without any file on disk.
package lensdata

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cliquot22/iqsmart"
)

// maxFileSize is the largest calibration file Load will read. Real tables
// are a few kilobytes; anything near this limit is not a calibration file.
const maxFileSize = 1 << 20 // 1MB

//go:embed tw90.json
var tw90JSON []byte

// File is the on-disk JSON layout of a calibration table.
type File struct {
	Model         string  `json:"model"`
	SensorWidthMM float64 `json:"sensor_width_mm"`
	// COCMM and MinObjectDistanceM are optional; missing values fall back
	// to iqsmart.DefaultCOC and iqsmart.DefaultMinOD.
	COCMM              *float64 `json:"coc_mm,omitempty"`
	FNum               float64  `json:"fnum"`
	MinObjectDistanceM *float64 `json:"min_object_distance_m,omitempty"`

	ZoomRange  Range `json:"zoom_range"`
	FocusRange Range `json:"focus_range"`
	IrisRange  Range `json:"iris_range"`

	// ObjectDistancesM and IrisSteps are the knot lists shared by every
	// entry, ascending. Entry focus steps and apertures pair with them
	// index for index.
	ObjectDistancesM []float64 `json:"object_distances_m"`
	IrisSteps        []int     `json:"iris_steps"`

	Entries []Entry `json:"entries"`
}

// Range is an inclusive motor step range.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Entry is the calibration data for one zoom step.
type Entry struct {
	ZoomStep   int       `json:"zoom_step"`
	FLMM       float64   `json:"fl_mm"`
	FocusSteps []float64 `json:"focus_steps"`
	Apertures  []float64 `json:"apertures"`
}

// Load reads a calibration file from disk and returns the validated table.
func Load(path string) (*iqsmart.Calibration, error) {
	path = filepath.Clean(path)
	if ext := filepath.Ext(path); ext != ".json" {
		return nil, fmt.Errorf("calibration file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat calibration file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("calibration file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}
	cal, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cal, nil
}

// Parse decodes a calibration file and returns the validated table.
func Parse(data []byte) (*iqsmart.Calibration, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", iqsmart.ErrInvalidCalibrationData, err)
	}
	return f.Calibration()
}

// Calibration converts the file layout into an iqsmart.Calibration,
// applying defaults for the optional constants, and validates the result.
func (f *File) Calibration() (*iqsmart.Calibration, error) {
	if len(f.ObjectDistancesM) == 0 {
		return nil, fmt.Errorf("%w: no object distance knots", iqsmart.ErrInvalidCalibrationData)
	}
	if len(f.IrisSteps) == 0 {
		return nil, fmt.Errorf("%w: no iris step knots", iqsmart.ErrInvalidCalibrationData)
	}

	cal := &iqsmart.Calibration{
		Model:       f.Model,
		SensorWidth: f.SensorWidthMM,
		COC:         iqsmart.DefaultCOC,
		FNum:        f.FNum,
		MinOD:       iqsmart.DefaultMinOD,
		Zoom:        iqsmart.StepRange{Min: f.ZoomRange.Min, Max: f.ZoomRange.Max},
		Focus:       iqsmart.StepRange{Min: f.FocusRange.Min, Max: f.FocusRange.Max},
		Iris:        iqsmart.StepRange{Min: f.IrisRange.Min, Max: f.IrisRange.Max},
	}
	if f.COCMM != nil {
		cal.COC = *f.COCMM
	}
	if f.MinObjectDistanceM != nil {
		cal.MinOD = *f.MinObjectDistanceM
	}

	cal.Entries = make([]iqsmart.ZoomEntry, 0, len(f.Entries))
	for i, e := range f.Entries {
		if len(e.FocusSteps) != len(f.ObjectDistancesM) {
			return nil, fmt.Errorf("%w: entry %d has %d focus steps, want %d",
				iqsmart.ErrInvalidCalibrationData, i, len(e.FocusSteps), len(f.ObjectDistancesM))
		}
		if len(e.Apertures) != len(f.IrisSteps) {
			return nil, fmt.Errorf("%w: entry %d has %d apertures, want %d",
				iqsmart.ErrInvalidCalibrationData, i, len(e.Apertures), len(f.IrisSteps))
		}

		entry := iqsmart.ZoomEntry{
			ZoomStep: e.ZoomStep,
			FL:       e.FLMM,
			Focus:    make([]iqsmart.FocusSample, len(e.FocusSteps)),
			Iris:     make([]iqsmart.IrisSample, len(e.Apertures)),
		}
		for j, step := range e.FocusSteps {
			entry.Focus[j] = iqsmart.FocusSample{OD: f.ObjectDistancesM[j], Step: step}
		}
		for j, na := range e.Apertures {
			entry.Iris[j] = iqsmart.IrisSample{Step: float64(f.IrisSteps[j]), NA: na}
		}
		cal.Entries = append(cal.Entries, entry)
	}

	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return cal, nil
}

// Builtin returns the embedded calibration table for a lens family.
func Builtin(model string) (*iqsmart.Calibration, error) {
	switch strings.ToUpper(model) {
	case "TW90":
		return Parse(tw90JSON)
	default:
		return nil, fmt.Errorf("no builtin calibration for model %q", model)
	}
}
