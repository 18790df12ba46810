package app

import (
	"fmt"
	"image"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi     float64 = 72
	size    float64 = 13
	infoTop         = 8
)

type Annotator struct {
	context  *freetype.Context
	renderer *ChartRenderer
}

func NewAnnotator() (*Annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.White)
	context.SetHinting(font.HintingFull)

	return &Annotator{
		context:  context,
		renderer: NewChartRenderer(),
	}, nil
}

func (a *Annotator) Annotate(img *image.RGBA, series *DeviationSeries) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, *DeviationSeries) error
	}{
		{"drawing time scale", a.drawTimeScale},
		{"drawing distance scales", a.drawDistanceScales},
		{"drawing info", a.drawInfo},
	}
	for _, op := range ops {
		if err := op.fn(img, series); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *Annotator) drawTimeScale(img *image.RGBA, series *DeviationSeries) error {
	if len(series.Points) == 0 {
		return nil
	}

	p := a.renderer.bottom
	count := p.Dx() / 200
	if count == 0 {
		count = 1
	}
	secsPerLabel := series.TimeEnd.Sub(series.TimeStart) / time.Duration(count)
	pxPerLabel := p.Dx() / count

	for si := 0; si <= count; si++ {
		point := series.TimeStart.Add(secsPerLabel * time.Duration(si))
		x := p.Min.X + si*pxPerLabel

		// guideline below the panel on the exact time
		for i := 0; i < 6; i++ {
			img.Set(x, p.Max.Y+i, image.White)
		}

		pt := freetype.Pt(x-28, p.Max.Y+20)
		if _, err := a.context.DrawString(point.Local().Format("15:04:05"), pt); err != nil {
			return err
		}
	}

	return nil
}

func (a *Annotator) drawDistanceScales(img *image.RGBA, series *DeviationSeries) error {
	if len(series.Points) == 0 {
		return nil
	}

	scales := []struct {
		panel  panel
		lo, hi float64
	}{
		{a.renderer.top, 0, series.HorizontalMax},
		{a.renderer.bottom, series.AltitudeMin, series.AltitudeMax},
	}

	const divisions = 4
	for _, s := range scales {
		for i := 0; i <= divisions; i++ {
			value := s.hi - float64(i)*(s.hi-s.lo)/divisions
			y := s.panel.Min.Y + i*(s.panel.Dy()-1)/divisions

			fract, suffix := humanize.ComputeSI(value)
			str := fmt.Sprintf("%0.1f %sm", fract, suffix)

			pt := freetype.Pt(8, y+5)
			if _, err := a.context.DrawString(str, pt); err != nil {
				return err
			}
		}
	}

	return nil
}

func (a *Annotator) drawInfo(img *image.RGBA, series *DeviationSeries) error {
	var info string
	if series.Session != nil {
		info = fmt.Sprintf("session %d (%s)  transport %s  started %s",
			series.Session.ID,
			series.Session.UUID,
			series.Session.Transport,
			series.Session.StartTime.Local().Format(time.DateTime))
	}
	if len(series.Points) > 0 {
		fract, suffix := humanize.ComputeSI(series.HorizontalMax)
		info = fmt.Sprintf("%s  max off-track %0.1f %sm", info, fract, suffix)
	}

	pt := freetype.Pt(marginLeft, infoTop+int(size))
	_, err := a.context.DrawString(info, pt)
	return err
}
