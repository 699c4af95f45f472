package report

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// DefaultDPI is used when neither the figure nor the caller sets one.
const DefaultDPI = 150

// RenderPNG draws f and writes it as PNG. dpi applies when f.DPI is zero.
func RenderPNG(w io.Writer, f *Figure, dpi int) error {
	if f.Rows*f.Cols != len(f.Panels) || len(f.Panels) == 0 {
		return fmt.Errorf("figure %s: %d panels for a %dx%d grid", f.Name, len(f.Panels), f.Rows, f.Cols)
	}
	if f.DPI > 0 {
		dpi = f.DPI
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	plots := make([][]*plot.Plot, f.Rows)
	for r := range f.Rows {
		plots[r] = make([]*plot.Plot, f.Cols)
		for c := range f.Cols {
			p, err := buildPlot(f.At(r, c))
			if err != nil {
				return fmt.Errorf("figure %s panel %d,%d: %w", f.Name, r, c, err)
			}
			plots[r][c] = p
		}
	}

	width, height := f.size()
	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(dpi))
	dc := draw.New(img)

	var canvases [][]draw.Canvas
	if len(f.HeightRatios) == f.Rows && f.Rows > 1 {
		canvases = splitRows(dc, f.Cols, f.HeightRatios)
	} else {
		canvases = plot.Align(plots, draw.Tiles{
			Rows:      f.Rows,
			Cols:      f.Cols,
			PadX:      vg.Millimeter * 6,
			PadY:      vg.Millimeter * 6,
			PadTop:    vg.Millimeter * 2,
			PadBottom: vg.Millimeter * 2,
			PadLeft:   vg.Millimeter * 2,
			PadRight:  vg.Millimeter * 2,
		}, dc)
	}
	for r := range plots {
		for c := range plots[r] {
			plots[r][c].Draw(canvases[r][c])
		}
	}

	_, err := vgimg.PngCanvas{Canvas: img}.WriteTo(w)
	return err
}

// EncodePNG renders f into memory.
func EncodePNG(f *Figure, dpi int) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderPNG(&buf, f, dpi); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SavePNG renders f to path.
func SavePNG(path string, f *Figure, dpi int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderPNG(file, f, dpi); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (f *Figure) size() (vg.Length, vg.Length) {
	w, h := f.Width, f.Height
	if w <= 0 {
		w = 8 * float64(f.Cols)
		if f.Cols > 1 {
			w = 6.5 * float64(f.Cols)
		}
	}
	if h <= 0 {
		h = 6 * float64(f.Rows)
		if f.Rows > 1 {
			h = 5 * float64(f.Rows)
		}
	}
	return vg.Length(w) * vg.Inch, vg.Length(h) * vg.Inch
}

// splitRows tiles dc into rows sized by ratios and equal-width columns.
func splitRows(dc draw.Canvas, cols int, ratios []float64) [][]draw.Canvas {
	var total float64
	for _, r := range ratios {
		total += r
	}
	pad := vg.Millimeter * 2
	height := dc.Max.Y - dc.Min.Y
	width := (dc.Max.X - dc.Min.X) / vg.Length(cols)

	out := make([][]draw.Canvas, len(ratios))
	top := dc.Max.Y
	for r, ratio := range ratios {
		h := height * vg.Length(ratio/total)
		out[r] = make([]draw.Canvas, cols)
		for c := range cols {
			minX := dc.Min.X + vg.Length(c)*width
			out[r][c] = draw.Canvas{
				Canvas: dc.Canvas,
				Rectangle: vg.Rectangle{
					Min: vg.Point{X: minX + pad, Y: top - h + pad},
					Max: vg.Point{X: minX + width - pad, Y: top - pad},
				},
			}
		}
		top -= h
	}
	return out
}

func buildPlot(panel *Panel) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = panel.Title
	p.X.Label.Text = panel.XLabel
	p.Y.Label.Text = panel.YLabel
	p.Add(plotter.NewGrid())
	if panel.LogX {
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	if panel.LogY {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	next := 0
	pick := func(c int) color.Color {
		if c > 0 {
			return plotutil.Color(c - 1)
		}
		c = next
		next++
		return plotutil.Color(c)
	}

	type entry struct {
		label  string
		thumbs []plot.Thumbnailer
	}
	var legend []entry
	for _, s := range panel.Series {
		xys, xerr, yerr := points(s, panel.LogX, panel.LogY)
		if len(xys) == 0 {
			continue
		}
		col := pick(s.Color)
		thumbs, err := addSeries(p, s.Style, xys, xerr, yerr, col)
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", s.Label, err)
		}
		if s.Label != "" {
			legend = append(legend, entry{s.Label, thumbs})
		}
	}
	for _, l := range panel.Lines {
		if (l.Vertical && panel.LogX || !l.Vertical && panel.LogY) && l.At <= 0 {
			continue
		}
		ref := &refLine{vertical: l.Vertical, at: l.At, style: draw.LineStyle{
			Color:  pick(l.Color),
			Width:  vg.Points(1.2),
			Dashes: []vg.Length{vg.Points(5), vg.Points(3)},
		}}
		p.Add(ref)
		if l.Label != "" {
			legend = append(legend, entry{l.Label, []plot.Thumbnailer{ref}})
		}
	}
	if !panel.NoLegend {
		for _, e := range legend {
			p.Legend.Add(e.label, e.thumbs...)
		}
		p.Legend.Top = true
	}

	if panel.XLim.Set {
		p.X.Min, p.X.Max = panel.XLim.Min, panel.XLim.Max
	}
	if panel.YLim.Set {
		p.Y.Min, p.Y.Max = panel.YLim.Min, panel.YLim.Max
	}
	return p, nil
}

// points copies the finite points of s, dropping non-positive values on
// logarithmic axes.
func points(s Series, logX, logY bool) (plotter.XYs, plotter.XErrors, plotter.YErrors) {
	n := min(len(s.X), len(s.Y))
	xys := make(plotter.XYs, 0, n)
	var xerr plotter.XErrors
	var yerr plotter.YErrors
	for i := 0; i < n; i++ {
		x, y := s.X[i], s.Y[i]
		if !finite(x) || !finite(y) || (logX && x <= 0) || (logY && y <= 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: x, Y: y})
		if i < len(s.XErr) {
			xerr = append(xerr, struct{ Low, High float64 }{s.XErr[i], s.XErr[i]})
		}
		if i < len(s.YErr) {
			yerr = append(yerr, struct{ Low, High float64 }{s.YErr[i], s.YErr[i]})
		}
	}
	if len(xerr) != len(xys) {
		xerr = nil
	}
	if len(yerr) != len(xys) {
		yerr = nil
	}
	return xys, xerr, yerr
}

type xErrorPoints struct {
	plotter.XYs
	plotter.XErrors
}

type yErrorPoints struct {
	plotter.XYs
	plotter.YErrors
}

func addSeries(p *plot.Plot, style Style, xys plotter.XYs, xerr plotter.XErrors, yerr plotter.YErrors, col color.Color) ([]plot.Thumbnailer, error) {
	switch style {
	case Line, Dashed:
		l, err := plotter.NewLine(xys)
		if err != nil {
			return nil, err
		}
		l.Color = col
		l.Width = vg.Points(1.5)
		if style == Dashed {
			l.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
		}
		p.Add(l)
		return []plot.Thumbnailer{l}, nil
	case LinePoints:
		l, s, err := plotter.NewLinePoints(xys)
		if err != nil {
			return nil, err
		}
		l.Color = col
		s.Color = col
		s.Shape = draw.CircleGlyph{}
		s.Radius = vg.Points(2)
		p.Add(l, s)
		return []plot.Thumbnailer{l, s}, nil
	default:
		s, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, err
		}
		s.Color = col
		s.Shape = draw.CircleGlyph{}
		s.Radius = vg.Points(2)
		p.Add(s)
		if style != ErrorBars {
			return []plot.Thumbnailer{s}, nil
		}
		if yerr != nil {
			bars, err := plotter.NewYErrorBars(yErrorPoints{XYs: xys, YErrors: yerr})
			if err != nil {
				return nil, err
			}
			bars.Color = col
			p.Add(bars)
		}
		if xerr != nil {
			bars, err := plotter.NewXErrorBars(xErrorPoints{XYs: xys, XErrors: xerr})
			if err != nil {
				return nil, err
			}
			bars.Color = col
			p.Add(bars)
		}
		return []plot.Thumbnailer{s}, nil
	}
}

// refLine spans the whole data area of a panel at a fixed x or y.
type refLine struct {
	vertical bool
	at       float64
	style    draw.LineStyle
}

func (r *refLine) Plot(c draw.Canvas, p *plot.Plot) {
	trX, trY := p.Transforms(&c)
	if r.vertical {
		x := trX(r.at)
		if x < c.Min.X || x > c.Max.X {
			return
		}
		c.StrokeLine2(r.style, x, c.Min.Y, x, c.Max.Y)
		return
	}
	y := trY(r.at)
	if y < c.Min.Y || y > c.Max.Y {
		return
	}
	c.StrokeLine2(r.style, c.Min.X, y, c.Max.X, y)
}

// DataRange lets the axes include the line's position.
func (r *refLine) DataRange() (xmin, xmax, ymin, ymax float64) {
	inf := 1e308
	if r.vertical {
		return r.at, r.at, inf, -inf
	}
	return inf, -inf, r.at, r.at
}

func (r *refLine) Thumbnail(c *draw.Canvas) {
	y := c.Center().Y
	c.StrokeLine2(r.style, c.Min.X, y, c.Max.X, y)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
