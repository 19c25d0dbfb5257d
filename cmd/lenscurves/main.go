// Command lenscurves renders a calibration table as charts: an HTML page of
// interactive plots and, optionally, PNG files.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/cliquot22/iqsmart"
	"github.com/cliquot22/iqsmart/bflstore"
	"github.com/cliquot22/iqsmart/internal/report"
	"github.com/cliquot22/iqsmart/internal/version"
	"github.com/cliquot22/iqsmart/lensdata"
)

func main() {
	model := flag.String("model", "TW90", "Builtin lens family to load")
	calFile := flag.String("cal", "", "Calibration JSON file (overrides -model)")
	out := flag.String("out", "lens-report.html", "HTML report output file")
	pngDir := flag.String("png-dir", "", "Directory for PNG plots (skipped when empty)")
	bflDB := flag.String("bfl-db", "", "SQLite database of correction sets")
	serial := flag.String("serial", "", "Lens serial number for -bfl-db lookups")
	showVersion := flag.Bool("version", false, "Print build version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lenscurves %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	var cal *iqsmart.Calibration
	var err error
	if *calFile != "" {
		cal, err = lensdata.Load(*calFile)
	} else {
		cal, err = lensdata.Builtin(*model)
	}
	if err != nil {
		log.Fatalf("load calibration: %v", err)
	}

	store := iqsmart.NewStore()
	if err := store.Load(cal); err != nil {
		log.Fatalf("activate calibration: %v", err)
	}

	var bfl *iqsmart.BFLCurve
	if *bflDB != "" {
		if *serial == "" {
			log.Fatalf("-bfl-db requires -serial")
		}
		db, err := bflstore.Open(*bflDB)
		if err != nil {
			log.Fatalf("open correction db: %v", err)
		}
		set, err := db.LatestSet(*serial)
		db.Close()
		if err != nil {
			log.Printf("no stored corrections for %s, charting without: %v", *serial, err)
		} else {
			bfl = set.Curve()
		}
	}

	page, err := report.Charts(store, bfl)
	if err != nil {
		log.Fatalf("build charts: %v", err)
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create %s: %v", *out, err)
	}
	if err := page.Render(f); err != nil {
		f.Close()
		log.Fatalf("render charts: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("close %s: %v", *out, err)
	}
	log.Printf("wrote %s", *out)

	if *pngDir != "" {
		n, err := report.PlotPNG(store, bfl, *pngDir)
		if err != nil {
			log.Fatalf("plot PNGs: %v", err)
		}
		log.Printf("wrote %d plots to %s", n, *pngDir)
	}
}
