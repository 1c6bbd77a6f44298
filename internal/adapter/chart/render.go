package chart

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/couchcryptid/climate-insights-service/internal/domain"
	"github.com/paulmach/orb"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	noDataColor  = color.RGBA{R: 210, G: 210, B: 210, A: 255}
	borderColor  = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	pointColor   = color.RGBA{R: 31, G: 119, B: 180, A: 180}
	trendColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	monthlyColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// Renderer draws dashboard charts as PNG images.
type Renderer struct {
	MapWidth, MapHeight     vg.Length
	ChartWidth, ChartHeight vg.Length
}

// NewRenderer returns a Renderer with dashboard-sized defaults.
func NewRenderer() *Renderer {
	return &Renderer{
		MapWidth:    12 * vg.Inch,
		MapHeight:   6 * vg.Inch,
		ChartWidth:  7 * vg.Inch,
		ChartHeight: 4.5 * vg.Inch,
	}
}

// colorMapFor returns the sequential palette used for a map metric.
func colorMapFor(metric domain.MapMetric) palette.ColorMap {
	switch metric {
	case domain.MetricTemperature:
		return moreland.SmoothBlueRed()
	case domain.MetricPM25:
		return moreland.BlackBody()
	default:
		return moreland.SmoothGreenRed()
	}
}

// Choropleth fills each boundary polygon by the selected metric. Countries
// without statistics are drawn grey.
func (r *Renderer) Choropleth(w io.Writer, rows []domain.MapRow, metric domain.MapMetric) error {
	p := plot.New()
	p.Title.Text = metric.Title()
	p.HideAxes()

	cm := colorMapFor(metric)
	lo, hi, ok := metric.Range(rows)
	if ok {
		if hi == lo {
			hi = lo + 1
		}
		cm.SetMin(lo)
		cm.SetMax(hi)
		p.Title.Text = fmt.Sprintf("%s (%.2f to %.2f)", metric.Title(), lo, hi)
	}

	for _, row := range rows {
		fill := color.Color(noDataColor)
		if v := metric.Value(row.Stats); ok && !math.IsNaN(v) {
			c, err := cm.At(v)
			if err != nil {
				return fmt.Errorf("colour %s: %w", row.Name, err)
			}
			fill = c
		}
		for _, poly := range polygons(row.Geometry) {
			shape, err := plotter.NewPolygon(rings(poly)...)
			if err != nil {
				return fmt.Errorf("polygon %s: %w", row.Name, err)
			}
			shape.Color = fill
			shape.LineStyle.Color = borderColor
			shape.LineStyle.Width = vg.Points(0.3)
			p.Add(shape)
		}
	}

	return save(w, p, r.MapWidth, r.MapHeight)
}

// AirQuality draws the PM2.5 vs temperature scatter with its trendline.
func (r *Renderer) AirQuality(w io.Writer, aq domain.AirQuality) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("PM2.5 vs. Temperature in %s", aq.City)
	p.X.Label.Text = "Temperature (°C)"
	p.Y.Label.Text = "PM2.5 (µg/m³)"
	p.Add(plotter.NewGrid())

	if len(aq.Points) == 0 {
		return save(w, p, r.ChartWidth, r.ChartHeight)
	}

	xys := make(plotter.XYs, len(aq.Points))
	minX, maxX := aq.Points[0].Temperature, aq.Points[0].Temperature
	for i, pt := range aq.Points {
		xys[i].X = pt.Temperature
		xys[i].Y = pt.PM25
		minX = min(minX, pt.Temperature)
		maxX = max(maxX, pt.Temperature)
	}

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	scatter.GlyphStyle.Color = pointColor
	scatter.GlyphStyle.Radius = vg.Points(3)
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(scatter)
	p.Legend.Add("observations", scatter)

	if aq.Trendline != nil {
		tl := *aq.Trendline
		fn := plotter.NewFunction(tl.At)
		fn.XMin, fn.XMax = minX, maxX
		fn.Color = trendColor
		fn.Width = vg.Points(2)
		p.Add(fn)
		p.Legend.Add(fmt.Sprintf("OLS (R² = %.2f)", tl.RSquared), fn)
	}
	p.Legend.Top = true

	return save(w, p, r.ChartWidth, r.ChartHeight)
}

// Monthly draws the average temperature per calendar month.
func (r *Renderer) Monthly(w io.Writer, mp domain.MonthlyPattern) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Average Monthly Temperature in %s", mp.City)
	p.Y.Label.Text = "Temperature (°C)"
	p.Add(plotter.NewGrid())

	if len(mp.Months) == 0 {
		return save(w, p, r.ChartWidth, r.ChartHeight)
	}

	xys := make(plotter.XYs, len(mp.Months))
	names := make([]string, len(mp.Months))
	for i, m := range mp.Months {
		xys[i].X = float64(i)
		xys[i].Y = m.Temperature
		names[i] = m.Name
	}

	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return fmt.Errorf("monthly line: %w", err)
	}
	line.Color = monthlyColor
	line.Width = vg.Points(2)
	points.GlyphStyle.Color = monthlyColor
	points.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(line, points)
	p.NominalX(names...)

	return save(w, p, r.ChartWidth, r.ChartHeight)
}

func save(w io.Writer, p *plot.Plot, width, height vg.Length) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// polygons flattens a boundary geometry into its polygons.
func polygons(g orb.Geometry) []orb.Polygon {
	switch geom := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{geom}
	case orb.MultiPolygon:
		return geom
	default:
		return nil
	}
}

// rings converts a polygon to plotter vertices; the first ring is the outline
// and the rest are holes.
func rings(poly orb.Polygon) []plotter.XYer {
	out := make([]plotter.XYer, 0, len(poly))
	for _, ring := range poly {
		xys := make(plotter.XYs, len(ring))
		for i, pt := range ring {
			xys[i].X = pt.Lon()
			xys[i].Y = pt.Lat()
		}
		out = append(out, xys)
	}
	return out
}
