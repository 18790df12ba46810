package app

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/stratosonde/groundstation/internal/storage"
)

const (
	chartWidth  = 1200
	chartHeight = 600

	marginLeft   = 80
	marginRight  = 20
	marginTop    = 40
	marginBottom = 30
	panelGap     = 50
)

var (
	backgroundColor = color.RGBA{R: 0x10, G: 0x14, B: 0x1a, A: 0xff}
	gridColor       = color.RGBA{R: 0x2a, G: 0x31, B: 0x3d, A: 0xff}
	zeroLineColor   = color.RGBA{R: 0x4a, G: 0x55, B: 0x68, A: 0xff}
	horizontalColor = color.RGBA{R: 0xff, G: 0xb0, B: 0x2e, A: 0xff}
	altitudeColor   = color.RGBA{R: 0x2e, G: 0xc8, B: 0xff, A: 0xff}
)

// DeviationSeries holds a session's deviation measurements together with
// the bounds needed to scale them onto a chart.
type DeviationSeries struct {
	Session *storage.Session
	Points  []storage.DeviationPoint

	TimeStart time.Time
	TimeEnd   time.Time

	HorizontalMax float64
	AltitudeMin   float64
	AltitudeMax   float64
}

func NewDeviationSeries(session *storage.Session, points []storage.DeviationPoint) *DeviationSeries {
	s := &DeviationSeries{
		Session: session,
		Points:  points,
	}

	if len(points) == 0 {
		return s
	}

	s.TimeStart = points[0].SampleTime
	s.TimeEnd = points[len(points)-1].SampleTime
	s.AltitudeMin = points[0].AltitudeDelta
	s.AltitudeMax = points[0].AltitudeDelta

	for _, p := range points {
		s.HorizontalMax = math.Max(s.HorizontalMax, p.HorizontalMeters)
		s.AltitudeMin = math.Min(s.AltitudeMin, p.AltitudeDelta)
		s.AltitudeMax = math.Max(s.AltitudeMax, p.AltitudeDelta)
	}

	// Avoid degenerate scales for flat series.
	if s.HorizontalMax == 0 {
		s.HorizontalMax = 1
	}
	if s.AltitudeMin == s.AltitudeMax {
		s.AltitudeMin -= 1
		s.AltitudeMax += 1
	}

	return s
}

// panel is the drawable region for one series.
type panel struct {
	image.Rectangle
}

func (p panel) xFor(s *DeviationSeries, t time.Time) int {
	span := s.TimeEnd.Sub(s.TimeStart)
	if span <= 0 {
		return p.Min.X
	}
	frac := float64(t.Sub(s.TimeStart)) / float64(span)
	return p.Min.X + int(frac*float64(p.Dx()-1))
}

func (p panel) yFor(value, lo, hi float64) int {
	frac := (value - lo) / (hi - lo)
	return p.Max.Y - 1 - int(frac*float64(p.Dy()-1))
}

// ChartRenderer draws the two deviation panels: horizontal distance off
// the predicted track on top, altitude delta below.
type ChartRenderer struct {
	top    panel
	bottom panel
}

func NewChartRenderer() *ChartRenderer {
	plotHeight := (chartHeight - marginTop - marginBottom - panelGap) / 2
	left := marginLeft
	right := chartWidth - marginRight

	return &ChartRenderer{
		top: panel{image.Rect(left, marginTop, right, marginTop+plotHeight)},
		bottom: panel{image.Rect(left, marginTop+plotHeight+panelGap, right,
			marginTop+plotHeight+panelGap+plotHeight)},
	}
}

func (r *ChartRenderer) Render(s *DeviationSeries) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, chartWidth, chartHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	r.drawGrid(img, r.top)
	r.drawGrid(img, r.bottom)

	if len(s.Points) == 0 {
		return img
	}

	r.drawSeries(img, r.top, s, horizontalColor, func(p storage.DeviationPoint) (float64, float64, float64) {
		return p.HorizontalMeters, 0, s.HorizontalMax
	})

	zeroY := r.bottom.yFor(0, s.AltitudeMin, s.AltitudeMax)
	if zeroY >= r.bottom.Min.Y && zeroY < r.bottom.Max.Y {
		drawHLine(img, r.bottom.Min.X, r.bottom.Max.X, zeroY, zeroLineColor)
	}
	r.drawSeries(img, r.bottom, s, altitudeColor, func(p storage.DeviationPoint) (float64, float64, float64) {
		return p.AltitudeDelta, s.AltitudeMin, s.AltitudeMax
	})

	return img
}

func (r *ChartRenderer) drawGrid(img *image.RGBA, p panel) {
	const divisions = 4

	for i := 0; i <= divisions; i++ {
		y := p.Min.Y + i*(p.Dy()-1)/divisions
		drawHLine(img, p.Min.X, p.Max.X, y, gridColor)
	}
	for i := 0; i <= 8; i++ {
		x := p.Min.X + i*(p.Dx()-1)/8
		drawVLine(img, x, p.Min.Y, p.Max.Y, gridColor)
	}
}

func (r *ChartRenderer) drawSeries(img *image.RGBA, p panel, s *DeviationSeries, c color.Color, value func(storage.DeviationPoint) (v, lo, hi float64)) {
	prevX, prevY := -1, -1
	for _, point := range s.Points {
		v, lo, hi := value(point)
		x := p.xFor(s, point.SampleTime)
		y := p.yFor(v, lo, hi)

		if prevX >= 0 {
			drawLine(img, prevX, prevY, x, y, c)
		} else {
			img.Set(x, y, c)
		}
		prevX, prevY = x, y
	}
}

func drawHLine(img *image.RGBA, x0, x1, y int, c color.Color) {
	for x := x0; x < x1; x++ {
		img.Set(x, y, c)
	}
}

func drawVLine(img *image.RGBA, x, y0, y1 int, c color.Color) {
	for y := y0; y < y1; y++ {
		img.Set(x, y, c)
	}
}

// drawLine draws a segment between two points using Bresenham's
// algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)

	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}

		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
