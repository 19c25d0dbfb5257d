// Package report renders calibration tables and back focal length
// correction curves as charts, either as an HTML page of interactive
// ECharts or as PNG files for offline inspection.
package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cliquot22/iqsmart"
)

// seriesColors is the palette shared by both renderers so the HTML and PNG
// views of one table stay visually comparable.
var seriesColors = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

var paletteRGBA = []color.RGBA{
	{R: 0x44, G: 0x01, B: 0x54, A: 255},
	{R: 0x48, G: 0x27, B: 0x77, A: 255},
	{R: 0x3e, G: 0x49, B: 0x89, A: 255},
	{R: 0x31, G: 0x68, B: 0x8e, A: 255},
	{R: 0x26, G: 0x82, B: 0x8e, A: 255},
	{R: 0x1f, G: 0x9e, B: 0x89, A: 255},
	{R: 0x35, G: 0xb7, B: 0x79, A: 255},
	{R: 0x6e, G: 0xce, B: 0x58, A: 255},
	{R: 0xb5, G: 0xde, B: 0x2b, A: 255},
	{R: 0xfd, G: 0xe7, B: 0x25, A: 255},
}

func seriesColor(i int) string { return seriesColors[i%len(seriesColors)] }

func lineColor(i int) color.RGBA { return paletteRGBA[i%len(paletteRGBA)] }

func entryLabel(e iqsmart.ZoomEntry) string { return fmt.Sprintf("%.1f mm", e.FL) }

// zoomSamples interpolates the focal length across the calibrated zoom span.
func zoomSamples(store *iqsmart.Store, cal *iqsmart.Calibration) (steps, fls []float64) {
	const n = 100
	lo := float64(cal.Entries[0].ZoomStep)
	hi := float64(cal.Entries[len(cal.Entries)-1].ZoomStep)
	for i := 0; i <= n; i++ {
		s := lo + (hi-lo)*float64(i)/n
		fl, err := store.ZoomStepToFL(s)
		if err != nil {
			continue
		}
		steps = append(steps, s)
		fls = append(fls, fl)
	}
	return steps, fls
}

func odLabel(od float64) string {
	if od >= iqsmart.Infinity {
		return "inf"
	}
	return strconv.FormatFloat(od, 'g', -1, 64) + " m"
}

// Charts builds an HTML page of interactive charts for the active table: the
// focal length curve, the per-entry focus and aperture curves, and the
// correction curve when one is present.
func Charts(store *iqsmart.Store, bfl *iqsmart.BFLCurve) (*components.Page, error) {
	cal, err := store.Calibration()
	if err != nil {
		return nil, err
	}

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s calibration", cal.Model)
	page.AddCharts(zoomChart(store, cal), focusChart(cal), irisChart(cal))
	if bfl != nil && bfl.Len() > 0 {
		page.AddCharts(bflChart(bfl))
	}
	return page, nil
}

func zoomChart(store *iqsmart.Store, cal *iqsmart.Calibration) *charts.Line {
	steps, fls := zoomSamples(store, cal)

	x := make([]string, len(steps))
	y := make([]opts.LineData, len(fls))
	for i := range steps {
		x[i] = strconv.Itoa(int(math.Round(steps[i])))
		y[i] = opts.LineData{Value: fls[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Focal Length vs Zoom Position", Subtitle: cal.Model}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "zoom step"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "FL (mm)"}),
	)
	line.SetXAxis(x).AddSeries("focal length", y,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: seriesColor(3)}),
	)
	return line
}

func focusChart(cal *iqsmart.Calibration) *charts.Line {
	knots := cal.Entries[0].Focus
	x := make([]string, len(knots))
	for i, s := range knots {
		x[i] = odLabel(s.OD)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Focus Position vs Object Distance", Subtitle: cal.Model}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30px"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "object distance"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "focus step"}),
	)
	line.SetXAxis(x)
	for i, e := range cal.Entries {
		y := make([]opts.LineData, len(e.Focus))
		for j, s := range e.Focus {
			y[j] = opts.LineData{Value: s.Step}
		}
		line.AddSeries(entryLabel(e), y,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: seriesColor(i)}),
		)
	}
	return line
}

func irisChart(cal *iqsmart.Calibration) *charts.Line {
	knots := cal.Entries[0].Iris
	x := make([]string, len(knots))
	for i, s := range knots {
		x[i] = strconv.Itoa(int(math.Round(s.Step)))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Numeric Aperture vs Iris Position", Subtitle: cal.Model}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30px"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "iris step"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "NA"}),
	)
	line.SetXAxis(x)
	for i, e := range cal.Entries {
		y := make([]opts.LineData, len(e.Iris))
		for j, s := range e.Iris {
			y[j] = opts.LineData{Value: s.NA}
		}
		line.AddSeries(entryLabel(e), y,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: seriesColor(i)}),
		)
	}
	return line
}

func bflChart(bfl *iqsmart.BFLCurve) *charts.Line {
	pts := bfl.Points()
	x := make([]string, len(pts))
	measured := make([]opts.LineData, len(pts))
	fitted := make([]opts.LineData, len(pts))
	for i, p := range pts {
		x[i] = strconv.Itoa(p.Step)
		measured[i] = opts.LineData{Value: p.Correction}
		fitted[i] = opts.LineData{Value: bfl.CorrectionAt(float64(p.Step))}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Back Focal Length Correction", Subtitle: "measured points and fitted curve"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30px"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "focus step"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "correction (steps)"}),
	)
	line.SetXAxis(x)
	line.AddSeries("measured", measured,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: seriesColor(9)}),
	)
	line.AddSeries("fitted", fitted,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: seriesColor(4)}),
	)
	return line
}

// PlotPNG writes PNG plots of the active table into outputDir, one file per
// chart, and returns the number of files written.
func PlotPNG(store *iqsmart.Store, bfl *iqsmart.BFLCurve, outputDir string) (int, error) {
	cal, err := store.Calibration()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	count := 0
	if err := plotZoom(store, cal, filepath.Join(outputDir, "zoom_fl.png")); err != nil {
		return count, err
	}
	count++
	if err := plotFocus(cal, filepath.Join(outputDir, "focus_curves.png")); err != nil {
		return count, err
	}
	count++
	if err := plotIris(cal, filepath.Join(outputDir, "iris_na.png")); err != nil {
		return count, err
	}
	count++

	if bfl != nil && bfl.Len() > 0 {
		if err := plotBFL(bfl, filepath.Join(outputDir, "bfl_correction.png")); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func plotZoom(store *iqsmart.Store, cal *iqsmart.Calibration, file string) error {
	steps, fls := zoomSamples(store, cal)
	pts := make(plotter.XYs, len(steps))
	for i := range steps {
		pts[i] = plotter.XY{X: steps[i], Y: fls[i]}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Focal Length vs Zoom Position", cal.Model)
	p.X.Label.Text = "zoom step"
	p.Y.Label.Text = "FL (mm)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = lineColor(3)
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("save zoom plot: %w", err)
	}
	return nil
}

func plotFocus(cal *iqsmart.Calibration, file string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Focus Position vs 1000/OD", cal.Model)
	p.X.Label.Text = "1000 / object distance (1/m)"
	p.Y.Label.Text = "focus step"

	for i, e := range cal.Entries {
		pts := make(plotter.XYs, len(e.Focus))
		for j, s := range e.Focus {
			pts[j] = plotter.XY{X: 1000 / s.OD, Y: s.Step}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = lineColor(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(entryLabel(e), line)
	}
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("save focus plot: %w", err)
	}
	return nil
}

func plotIris(cal *iqsmart.Calibration, file string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Numeric Aperture vs Iris Position", cal.Model)
	p.X.Label.Text = "iris step"
	p.Y.Label.Text = "NA"

	for i, e := range cal.Entries {
		pts := make(plotter.XYs, len(e.Iris))
		for j, s := range e.Iris {
			pts[j] = plotter.XY{X: s.Step, Y: s.NA}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = lineColor(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(entryLabel(e), line)
	}
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("save iris plot: %w", err)
	}
	return nil
}

func plotBFL(bfl *iqsmart.BFLCurve, file string) error {
	pts := bfl.Points()
	lo := float64(pts[0].Step)
	hi := float64(pts[len(pts)-1].Step)

	p := plot.New()
	p.Title.Text = "Back Focal Length Correction"
	p.X.Label.Text = "focus step"
	p.Y.Label.Text = "correction (steps)"

	const n = 100
	fit := make(plotter.XYs, 0, n+1)
	for i := 0; i <= n; i++ {
		s := lo + (hi-lo)*float64(i)/n
		fit = append(fit, plotter.XY{X: s, Y: bfl.CorrectionAt(s)})
	}
	line, err := plotter.NewLine(fit)
	if err != nil {
		return err
	}
	line.Color = lineColor(4)
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("fitted", line)

	measured := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		measured[i] = plotter.XY{X: float64(pt.Step), Y: pt.Correction}
	}
	scatter, err := plotter.NewScatter(measured)
	if err != nil {
		return err
	}
	scatter.Color = lineColor(9)
	p.Add(scatter)
	p.Legend.Add("measured", scatter)
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("save correction plot: %w", err)
	}
	return nil
}
