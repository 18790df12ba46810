package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/stratosonde/groundstation/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("archive file '%s' does not exist: %w", config.DBPath, err)
	}

	archive := storage.NewArchive(config.DBPath)
	defer archive.Close()

	return renderDeviations(ctx, archive, config, logger)
}

func renderDeviations(ctx context.Context, archive *storage.Archive, config *Config, logger *slog.Logger) error {
	session, err := archive.Session(ctx, config.SessionID)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	var opts []storage.ReaderOption
	var filters []any
	switch {
	case config.From != nil && config.To != nil:
		opts = append(opts, storage.WithTimeRange(config.From.UTC(), config.To.UTC()))

		filters = append(filters,
			slog.String("from", config.From.UTC().Format(time.DateTime)),
			slog.String("to", config.To.UTC().Format(time.DateTime)))

	case config.From != nil:
		opts = append(opts, storage.WithStartTime(config.From.UTC()))
		filters = append(filters, slog.String("from", config.From.UTC().Format(time.DateTime)))

	case config.To != nil:
		opts = append(opts, storage.WithEndTime(config.To.UTC()))
		filters = append(filters, slog.String("to", config.To.UTC().Format(time.DateTime)))
	}

	logger.Info("reader configuration", filters...)

	points, err := archive.ReadDeviations(ctx, config.SessionID, opts...)
	if err != nil {
		return fmt.Errorf("reading deviations: %w", err)
	}

	series := NewDeviationSeries(session, points)

	logger.Info("finished reading deviations",
		slog.Group("stats",
			slog.Int("points", len(points)),
			slog.String("from", series.TimeStart.Local().Format(time.DateTime)),
			slog.String("to", series.TimeEnd.Local().Format(time.DateTime)),
			slog.String("maxHorizontal", fmt.Sprintf("%0.1fm", series.HorizontalMax)),
		))

	renderer := NewChartRenderer()

	logger.Info("rendering track plot",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", chartWidth),
			slog.Int("height", chartHeight),
		))

	img := renderer.Render(series)

	if !config.NoAnnotations {
		annotator, err := NewAnnotator()
		if err != nil {
			return fmt.Errorf("creating annotator: %w", err)
		}
		if err = annotator.Annotate(img, series); err != nil {
			return fmt.Errorf("annotating track plot: %w", err)
		}
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
