// Command lensctl drives the unit conversion engine against a calibration
// table and prints the resulting lens configuration.
//
// It mirrors a typical setup sequence: pick a focal length (or a target
// angle of view), focus on an object distance, stop down to an F-number,
// then read back every engineering unit the realized motor positions imply.
//
// Usage:
//
//	go run ./cmd/lensctl [flags]
//
// Flags:
//
//	-model   Builtin lens family to load (default: TW90)
//	-cal     Calibration JSON file (overrides -model)
//	-fl      Target focal length in mm (default: 8)
//	-aov     Target angle of view in degrees (overrides -fl)
//	-fov     Target field of view width in meters (overrides -fl and -aov)
//	-od      Object distance in meters (default: 10)
//	-fnum    Target F-number (default: 4)
//	-bfl-db  SQLite database of back focal length correction sets
//	-serial  Lens serial number for -bfl-db lookups
//	-version Print build version and exit
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/cliquot22/iqsmart"
	"github.com/cliquot22/iqsmart/bflstore"
	"github.com/cliquot22/iqsmart/internal/version"
	"github.com/cliquot22/iqsmart/lensdata"
)

func main() {
	model := flag.String("model", "TW90", "Builtin lens family to load")
	calFile := flag.String("cal", "", "Calibration JSON file (overrides -model)")
	fl := flag.Float64("fl", 8.0, "Target focal length in mm")
	aov := flag.Float64("aov", 0, "Target angle of view in degrees (overrides -fl)")
	fov := flag.Float64("fov", 0, "Target field of view width in meters (overrides -fl and -aov)")
	od := flag.Float64("od", 10.0, "Object distance in meters")
	fnum := flag.Float64("fnum", 4.0, "Target F-number")
	bflDB := flag.String("bfl-db", "", "SQLite database of correction sets")
	serial := flag.String("serial", "", "Lens serial number for -bfl-db lookups")
	showVersion := flag.Bool("version", false, "Print build version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lensctl %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cal, err := loadCalibration(*calFile, *model)
	if err != nil {
		log.Fatalf("load calibration: %v", err)
	}
	log.Printf("loaded %s: FL %.1f-%.1f mm, %d zoom entries", cal.Model, cal.FLMin(), cal.FLMax(), len(cal.Entries))

	store := iqsmart.NewStore()
	if err := store.Load(cal); err != nil {
		log.Fatalf("activate calibration: %v", err)
	}
	conv := iqsmart.NewConverter(store)

	bfl := loadCorrections(*bflDB, *serial)

	// Pick the zoom position first, from whichever target was given.
	var zoomStep int
	switch {
	case *fov > 0:
		ms, err := conv.FOVToMotorSteps(*fov, *od, true)
		if err != nil && !advisory(err) {
			log.Fatalf("field of view %.2f m: %v", *fov, err)
		}
		note(err)
		zoomStep = ms.ZoomStep
		log.Printf("field of view %.2f m at %.1f m wants FL %.2f mm", *fov, *od, ms.FL)
	case *aov > 0:
		ms, err := conv.AOVToMotorSteps(*aov, *od, true)
		if err != nil && !advisory(err) {
			log.Fatalf("angle of view %.1f deg: %v", *aov, err)
		}
		note(err)
		zoomStep = ms.ZoomStep
		log.Printf("angle of view %.1f deg wants FL %.2f mm", *aov, ms.FL)
	default:
		zoomStep, err = conv.FLToZoomStep(*fl)
		if err != nil && !advisory(err) {
			log.Fatalf("focal length %.2f mm: %v", *fl, err)
		}
		note(err)
	}

	focusStep, err := conv.ODToFocusStep(*od, zoomStep)
	if err != nil && !advisory(err) {
		log.Fatalf("object distance %.2f m: %v", *od, err)
	}
	note(err)

	irisStep, err := conv.FNumToIrisStep(*fnum, zoomStep)
	if err != nil && !advisory(err) {
		log.Fatalf("F-number %.2f: %v", *fnum, err)
	}
	note(err)

	state, err := iqsmart.NewState(conv, bfl, zoomStep, focusStep, irisStep)
	if err != nil && !advisory(err) {
		log.Fatalf("initialize lens state: %v", err)
	}
	note(err)

	// Move the focus motor to the corrected position for this lens.
	if corrected := state.ApplyBFLCorrection(focusStep); corrected != focusStep {
		log.Printf("correcting focus %d -> %d", focusStep, corrected)
		if err := state.UpdateAfterFocus(corrected); err != nil && !advisory(err) {
			log.Fatalf("apply correction: %v", err)
		}
	}

	printConfig(state)
}

func loadCalibration(calFile, model string) (*iqsmart.Calibration, error) {
	if calFile != "" {
		return lensdata.Load(calFile)
	}
	return lensdata.Builtin(model)
}

// loadCorrections returns the latest stored correction curve for the lens,
// or nil when none is configured or stored.
func loadCorrections(dbPath, serial string) *iqsmart.BFLCurve {
	if dbPath == "" {
		return nil
	}
	if serial == "" {
		log.Fatalf("-bfl-db requires -serial")
	}
	db, err := bflstore.Open(dbPath)
	if err != nil {
		log.Fatalf("open correction db: %v", err)
	}
	defer db.Close()

	set, err := db.LatestSet(serial)
	if err != nil {
		log.Printf("no stored corrections for %s, continuing without: %v", serial, err)
		return nil
	}
	log.Printf("using correction set %s (%d points)", set.SetID, len(set.Points))
	return set.Curve()
}

func advisory(err error) bool { return errors.Is(err, iqsmart.ErrRangeClamped) }

// note logs clamp advisories; the conversion result is still usable.
func note(err error) {
	if err != nil && advisory(err) {
		log.Printf("note: %v", err)
	}
}

func printConfig(state *iqsmart.State) {
	fmt.Printf("zoom step   %6d\n", state.ZoomStep())
	fmt.Printf("focus step  %6d\n", state.FocusStep())
	fmt.Printf("iris step   %6d\n", state.IrisStep())
	fmt.Printf("FL          %8.2f mm\n", state.FL())
	fmt.Printf("OD          %s\n", formatOD(state.OD()))
	fmt.Printf("F/#         %8.2f\n", state.FNum())
	fmt.Printf("NA          %8.3f\n", state.NA())

	if aov, err := state.AOV(); err == nil {
		fmt.Printf("AOV         %8.2f deg\n", aov)
	}
	if fov, err := state.FOV(); err == nil {
		fmt.Printf("FOV         %8.2f m\n", fov)
	}
	if dof, err := state.DOF(); err == nil {
		fmt.Printf("DOF         %s to %s\n", formatOD(dof.Near), formatOD(dof.Far))
	}
}

func formatOD(od float64) string {
	if od >= iqsmart.Infinity {
		return "inf"
	}
	return fmt.Sprintf("%.2f m", od)
}
