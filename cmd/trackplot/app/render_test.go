package app

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stratosonde/groundstation/internal/storage"
)

func seriesOf(values ...float64) *DeviationSeries {
	base := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	points := make([]storage.DeviationPoint, len(values))
	for i, v := range values {
		points[i] = storage.DeviationPoint{
			SampleTime:       base.Add(time.Duration(i) * time.Minute),
			HorizontalMeters: v,
			AltitudeDelta:    -v,
			WaypointIndex:    i,
		}
	}
	return NewDeviationSeries(&storage.Session{ID: 1}, points)
}

func TestNewDeviationSeriesBounds(t *testing.T) {
	s := seriesOf(10, 250, 40)

	if s.HorizontalMax != 250 {
		t.Errorf("HorizontalMax = %f, want 250", s.HorizontalMax)
	}
	if s.AltitudeMin != -250 || s.AltitudeMax != -10 {
		t.Errorf("altitude bounds = [%f, %f], want [-250, -10]", s.AltitudeMin, s.AltitudeMax)
	}
	if got := s.TimeEnd.Sub(s.TimeStart); got != 2*time.Minute {
		t.Errorf("time span = %v, want 2m", got)
	}
}

func TestNewDeviationSeriesDegenerate(t *testing.T) {
	s := seriesOf(0, 0)

	if s.HorizontalMax != 1 {
		t.Errorf("HorizontalMax = %f, want 1 for flat series", s.HorizontalMax)
	}
	if s.AltitudeMin >= s.AltitudeMax {
		t.Errorf("altitude bounds = [%f, %f], want widened", s.AltitudeMin, s.AltitudeMax)
	}

	empty := NewDeviationSeries(nil, nil)
	if len(empty.Points) != 0 {
		t.Errorf("len(Points) = %d, want 0", len(empty.Points))
	}
}

func TestPanelScaling(t *testing.T) {
	s := seriesOf(0, 100)
	p := panel{image.Rect(100, 50, 300, 150)}

	if got := p.xFor(s, s.TimeStart); got != 100 {
		t.Errorf("xFor(start) = %d, want 100", got)
	}
	if got := p.xFor(s, s.TimeEnd); got != 299 {
		t.Errorf("xFor(end) = %d, want 299", got)
	}
	if got := p.yFor(100, 0, 100); got != 50 {
		t.Errorf("yFor(max) = %d, want 50", got)
	}
	if got := p.yFor(0, 0, 100); got != 149 {
		t.Errorf("yFor(min) = %d, want 149", got)
	}
}

func TestRenderPaintsSeries(t *testing.T) {
	s := seriesOf(10, 500, 120, 80)
	img := NewChartRenderer().Render(s)

	if got := img.Bounds(); got.Dx() != chartWidth || got.Dy() != chartHeight {
		t.Fatalf("bounds = %v, want %dx%d", got, chartWidth, chartHeight)
	}

	counts := map[color.RGBA]int{}
	for y := 0; y < chartHeight; y++ {
		for x := 0; x < chartWidth; x++ {
			counts[img.RGBAAt(x, y)]++
		}
	}

	if counts[horizontalColor] == 0 {
		t.Error("no horizontal-deviation pixels painted")
	}
	if counts[altitudeColor] == 0 {
		t.Error("no altitude-delta pixels painted")
	}
	if counts[backgroundColor] == 0 {
		t.Error("no background pixels painted")
	}
}

func TestDrawLineEndpoints(t *testing.T) {
	tests := []struct {
		name           string
		x0, y0, x1, y1 int
	}{
		{"horizontal", 0, 5, 9, 5},
		{"vertical", 5, 0, 5, 9},
		{"diagonal", 0, 0, 9, 9},
		{"steep reversed", 9, 9, 2, 0},
	}

	c := color.RGBA{R: 0xff, A: 0xff}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewRGBA(image.Rect(0, 0, 10, 10))
			drawLine(img, tt.x0, tt.y0, tt.x1, tt.y1, c)

			if got := img.RGBAAt(tt.x0, tt.y0); got != c {
				t.Errorf("start pixel = %v, want %v", got, c)
			}
			if got := img.RGBAAt(tt.x1, tt.y1); got != c {
				t.Errorf("end pixel = %v, want %v", got, c)
			}
		})
	}
}
