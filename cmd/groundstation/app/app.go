package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stratosonde/groundstation/internal/flightlog"
	"github.com/stratosonde/groundstation/internal/frame"
	"github.com/stratosonde/groundstation/internal/pubsub"
	"github.com/stratosonde/groundstation/internal/storage"
	"github.com/stratosonde/groundstation/internal/trajectory"
	"github.com/stratosonde/groundstation/internal/transport"
	"github.com/stratosonde/groundstation/internal/transport/serialport"
	"github.com/stratosonde/groundstation/internal/transport/udp"
	"github.com/stratosonde/groundstation/internal/wsfeed"
)

// Run wires the pipeline together from configuration and blocks until
// ctx is canceled or a fatal error occurs.
func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	source, err := createSource(&config.Transport, logger)
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}
	defer source.Close()

	start := time.Now()

	log, err := createFlightLog(&config.Log, start)
	if err != nil {
		return fmt.Errorf("creating flight log: %w", err)
	}
	defer closeWithError(log, &err)

	logger.Info("flight log opened", slog.String("path", log.Path()))

	tracker := createTracker(&config.Trajectory, logger)

	archive, sessionID := createArchive(ctx, &config.Archive, source.ID(), config.Transport, start, logger)
	if archive != nil {
		defer closeWithError(archive, &err)
	}

	publisher := pubsub.New(pubsub.WithLogger(logger))
	defer publisher.Close()

	if config.Feed.Enabled {
		feed := wsfeed.New(config.Feed.ListenAddr, publisher, wsfeed.WithLogger(logger))
		go func() {
			if feedErr := feed.Run(ctx); feedErr != nil {
				logger.Error(feedErr.Error())
			}
		}()
	}

	p := newPipeline(source, frame.NewValidator(config.Limits()), log, tracker, publisher,
		withLogger(logger),
		withArchive(archive, sessionID),
		withQueueSize(config.Pipeline.QueueSize),
		withMaxBatchSize(config.Archive.MaxBatchSize),
	)

	return p.Run(ctx)
}

func createSource(config *TransportConfig, logger *slog.Logger) (transport.Source, error) {
	switch config.Kind {
	case TransportSerial:
		return serialport.New(config.Serial, serialport.WithLogger(logger))

	case TransportUDP:
		return udp.New(config.UDP, udp.WithLogger(logger))

	default:
		return nil, fmt.Errorf("unknown transport kind %q", config.Kind)
	}
}

func createFlightLog(config *LogConfig, start time.Time) (*flightlog.Writer, error) {
	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return flightlog.NewWriter(flightlog.SessionPath(config.Directory, start))
}

// createTracker loads the predicted flight path. A missing or unreadable
// prediction degrades tracking to the unavailable sentinel instead of
// failing startup.
func createTracker(config *TrajectoryConfig, logger *slog.Logger) *trajectory.Tracker {
	if config.Path == "" {
		logger.Warn("no trajectory configured, deviation tracking disabled")
		return trajectory.NewTracker(nil)
	}

	store, err := trajectory.Load(config.Path)
	if err != nil {
		// Load wraps every failure in ErrPredictionUnavailable.
		logger.Warn("deviation tracking disabled", slog.String("error", err.Error()))
		return trajectory.NewTracker(nil)
	}

	logger.Info("trajectory loaded",
		slog.String("path", config.Path),
		slog.Int("waypoints", store.Len()))
	return trajectory.NewTracker(store)
}

// createArchive opens the Sqlite archive and registers this run as a
// session. Archive failures are non-fatal: the CSV flight log remains the
// durable record and the pipeline runs without the archive.
func createArchive(ctx context.Context, config *ArchiveConfig, transportID string, transportConfig TransportConfig, start time.Time, logger *slog.Logger) (*storage.Archive, int64) {
	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		logger.Warn("archive disabled", slog.String("error", err.Error()))
		return nil, 0
	}

	dbPath := filepath.Join(config.Directory, fmt.Sprintf("flight_%s.sqlite", start.UTC().Format("20060102_150405")))
	archive := storage.NewArchive(dbPath)

	sessionID, err := archive.CreateSession(ctx, transportID, transportConfig)
	if err != nil {
		logger.Warn("archive disabled", slog.String("error", err.Error()))
		_ = archive.Close()
		return nil, 0
	}

	logger.Info("archive session created",
		slog.String("path", dbPath),
		slog.Int64("session", sessionID))
	return archive, sessionID
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
