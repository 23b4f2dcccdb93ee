package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/pgduckdb/tpchbench/internal/analysis"
	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
)

// DefaultChartName is used when no output path is given.
const DefaultChartName = "comparison.png"

// Palette cycles over labels in the absolute-times panel.
var Palette = []string{"#336699", "#ff9933", "#66cc66", "#cc6666", "#9966cc"}

const (
	speedupColor  = "#22cc22"
	slowdownColor = "#cc2222"
	barAlpha      = 0.8
	groupWidth    = 0.8
)

// ChartName builds "<prefix>_<engines>_<thermals>_comparison.png".
func ChartName(prefix string, engines, thermals []string) string {
	name := prefix
	for _, e := range engines {
		name += "_" + e
	}
	for _, t := range thermals {
		name += "_" + t
	}
	return name + "_comparison.png"
}

// Chart renders a two-panel comparison PNG: absolute latencies on the left,
// symmetric speedups against the baseline on the right.
type Chart struct {
	Width  vg.Length
	Height vg.Length
	DPI    int
}

// NewChart returns a chart with the default 20x8 inch canvas.
func NewChart() *Chart {
	return &Chart{Width: 20 * vg.Inch, Height: 8 * vg.Inch, DPI: 150}
}

// Render writes the chart for cmp to path, or DefaultChartName when path
// is empty. It returns the path written.
func (c *Chart) Render(cmp *analysis.Comparison, path string) (string, error) {
	if path == "" {
		path = DefaultChartName
	}
	if len(cmp.Rows) == 0 {
		return "", benchErrors.NewResultsError(benchErrors.CodeWriteFailed,
			"no queries in common, nothing to chart", nil)
	}

	barWidth := c.barWidth(len(cmp.Rows), len(cmp.Labels))

	absolute, err := absolutePanel(cmp, barWidth)
	if err != nil {
		return "", benchErrors.NewResultsError(benchErrors.CodeWriteFailed, "failed to build chart", err)
	}
	speedups, err := speedupPanel(cmp, barWidth)
	if err != nil {
		return "", benchErrors.NewResultsError(benchErrors.CodeWriteFailed, "failed to build chart", err)
	}

	img := vgimg.NewWith(vgimg.UseWH(c.Width, c.Height), vgimg.UseDPI(c.DPI))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 1, Cols: 2,
		PadX: vg.Millimeter * 8, PadY: vg.Millimeter * 4,
		PadTop: vg.Millimeter * 4, PadBottom: vg.Millimeter * 4,
		PadLeft: vg.Millimeter * 4, PadRight: vg.Millimeter * 4,
	}
	canvases := plot.Align([][]*plot.Plot{{absolute, speedups}}, tiles, dc)
	absolute.Draw(canvases[0][0])
	speedups.Draw(canvases[0][1])

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", benchErrors.NewResultsError(benchErrors.CodeWriteFailed, "failed to create chart directory", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return "", benchErrors.NewResultsError(benchErrors.CodeWriteFailed, fmt.Sprintf("failed to create %s", path), err)
	}
	defer f.Close()

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return "", benchErrors.NewResultsError(benchErrors.CodeWriteFailed, fmt.Sprintf("failed to write %s", path), err)
	}

	log.Info().Str("path", path).Msg("Comparison chart saved")
	return path, nil
}

// barWidth approximates the on-canvas width of one bar so that each query's
// group fills groupWidth of its slot.
func (c *Chart) barWidth(queries, labels int) vg.Length {
	panel := c.Width/2 - 30*vg.Millimeter
	slot := panel / vg.Length(queries+1)
	return slot * groupWidth / vg.Length(labels)
}

// offset is the data-space x shift of label i within its query slot.
func offset(i, n int) float64 {
	w := groupWidth / float64(n)
	return (float64(i) - float64(n)/2 + 0.5) * w
}

func absolutePanel(cmp *analysis.Comparison, barWidth vg.Length) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "TPC-H Query Performance (Absolute Times)"
	p.X.Label.Text = "Query"
	p.Y.Label.Text = "Latency (ms)"
	p.Legend.Top = true

	var floor float64
	if cmp.LogScale {
		p.Y.Label.Text = "Latency (ms) - Log Scale"
		floor = math.Floor(math.Log10(cmp.MinMS))
		p.Y.Tick.Marker = decadeTicks{floor: floor}
	}

	for i, label := range cmp.Labels {
		values := make(plotter.Values, len(cmp.Rows))
		for q, row := range cmp.Rows {
			v := row.Latencies[i]
			if cmp.LogScale {
				v = logHeight(v, floor)
			}
			values[q] = v
		}
		bars, err := plotter.NewBarChart(values, barWidth)
		if err != nil {
			return nil, err
		}
		bars.Color = hexColor(Palette[i%len(Palette)], barAlpha)
		bars.LineStyle.Width = 0
		bars.XMin = offset(i, len(cmp.Labels))
		p.Add(bars)
		p.Legend.Add(label, bars)
	}

	finish(p, cmp)
	p.Y.Min = 0
	return p, nil
}

func speedupPanel(cmp *analysis.Comparison, barWidth vg.Length) (*plot.Plot, error) {
	base := cmp.BaselineLabel()
	p := plot.New()
	p.Title.Text = "TPC-H Query Speedup vs " + base
	p.X.Label.Text = "Query"
	p.Y.Label.Text = fmt.Sprintf("Speedup relative to %s (symmetric scale)", base)
	p.Legend.Top = true

	var xys plotter.XYs
	var texts []string
	for i, label := range cmp.Labels {
		if i == cmp.Baseline {
			continue
		}
		up := make(plotter.Values, len(cmp.Rows))
		down := make(plotter.Values, len(cmp.Rows))
		for q, row := range cmp.Rows {
			s := row.Speedups[i]
			if s.Defined {
				if s.Value >= 0 {
					up[q] = s.Value
				} else {
					down[q] = s.Value
				}
			}
			xys = append(xys, plotter.XY{X: float64(q) + offset(i, len(cmp.Labels)), Y: s.Value})
			texts = append(texts, s.Annotation())
		}

		for _, set := range []struct {
			values plotter.Values
			color  string
		}{{up, speedupColor}, {down, slowdownColor}} {
			bars, err := plotter.NewBarChart(set.values, barWidth)
			if err != nil {
				return nil, err
			}
			bars.Color = hexColor(set.color, barAlpha)
			bars.LineStyle.Width = 0
			bars.XMin = offset(i, len(cmp.Labels))
			p.Add(bars)
			if set.color == speedupColor {
				p.Legend.Add(fmt.Sprintf("%s vs %s", label, base), bars)
			}
		}
	}

	if len(xys) > 0 {
		labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: texts})
		if err != nil {
			return nil, err
		}
		for i := range labels.TextStyle {
			labels.TextStyle[i].Font.Size = vg.Points(8)
			labels.TextStyle[i].Rotation = math.Pi / 2
			labels.TextStyle[i].XAlign = draw.XLeft
			labels.TextStyle[i].YAlign = draw.YCenter
			if xys[i].Y < 0 {
				labels.TextStyle[i].XAlign = draw.XRight
			}
		}
		p.Add(labels)
	}

	zero := plotter.NewFunction(func(float64) float64 { return 0 })
	zero.LineStyle.Width = vg.Points(1)
	zero.LineStyle.Color = color.NRGBA{A: 178}
	zero.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(zero)

	finish(p, cmp)
	return p, nil
}

// finish adds the horizontal grid and query names on the x-axis.
func finish(p *plot.Plot, cmp *analysis.Comparison) {
	grid := plotter.NewGrid()
	grid.Vertical.Color = nil
	grid.Horizontal.Color = color.NRGBA{A: 76}
	p.Add(grid)

	p.NominalX(cmp.Queries()...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
}

// logHeight maps a latency onto decades above floor. Zero latencies have
// no height.
func logHeight(v, floor float64) float64 {
	if v <= 0 {
		return 0
	}
	h := math.Log10(v) - floor
	if h < 0 {
		return 0
	}
	return h
}

// decadeTicks labels a log10-transformed axis with the original values.
type decadeTicks struct {
	floor float64
}

func (d decadeTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for k := math.Floor(min); k <= math.Ceil(max); k++ {
		ticks = append(ticks, plot.Tick{
			Value: k,
			Label: strconv.FormatFloat(math.Pow(10, k+d.floor), 'g', -1, 64),
		})
	}
	return ticks
}

func hexColor(hex string, alpha float64) color.NRGBA {
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return color.NRGBA{A: 255}
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: uint8(math.Round(alpha * 255)),
	}
}
