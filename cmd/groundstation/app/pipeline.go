package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stratosonde/groundstation/internal/flightlog"
	"github.com/stratosonde/groundstation/internal/frame"
	"github.com/stratosonde/groundstation/internal/pubsub"
	"github.com/stratosonde/groundstation/internal/storage"
	"github.com/stratosonde/groundstation/internal/telemetry"
	"github.com/stratosonde/groundstation/internal/trajectory"
	"github.com/stratosonde/groundstation/internal/transport"
)

const archiveFlushInterval = 5 * time.Second

func withLogger(logger *slog.Logger) func(*pipeline) {
	return func(p *pipeline) {
		p.logger = logger
	}
}

// withArchive enables batched archiving of accepted samples under the
// given session. A nil archive leaves archiving off.
func withArchive(archive *storage.Archive, sessionID int64) func(*pipeline) {
	return func(p *pipeline) {
		p.archive = archive
		p.sessionID = sessionID
	}
}

func withQueueSize(size int) func(*pipeline) {
	return func(p *pipeline) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

func withMaxBatchSize(size int) func(*pipeline) {
	return func(p *pipeline) {
		if size > 0 {
			p.maxBatchSize = size
		}
	}
}

// pipeline runs the ingestion loop: one goroutine moves raw frames from
// the transport into a bounded queue, a second runs every frame through
// parse, validate, persist, track and publish in arrival order. The queue
// drops new frames when full and counts the loss; the processing side
// never drops.
type pipeline struct {
	source    transport.Source
	validator *frame.Validator
	log       *flightlog.Writer
	tracker   *trajectory.Tracker
	publisher *pubsub.Publisher

	archive   *storage.Archive
	sessionID int64

	logger       *slog.Logger
	queueSize    int
	maxBatchSize int

	framesReceived atomic.Uint64
	queueDrops     atomic.Uint64
	parseErrors    uint64
	rejected       uint64
	lastFrameAt    time.Time

	batch []storage.Entry
}

func newPipeline(source transport.Source, validator *frame.Validator, log *flightlog.Writer, tracker *trajectory.Tracker, publisher *pubsub.Publisher, options ...func(*pipeline)) *pipeline {
	p := pipeline{
		source:       source,
		validator:    validator,
		log:          log,
		tracker:      tracker,
		publisher:    publisher,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		queueSize:    defaultQueueSize,
		maxBatchSize: defaultMaxBatchSize,
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Run blocks until the transport closes or a persistence error occurs.
// On cancellation the queue is drained through persistence before Run
// returns.
func (p *pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames, err := p.source.Frames(ctx)
	if err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}

	p.logger.Info("pipeline started", slog.String("transport", p.source.ID()))

	queue := make(chan telemetry.RawFrame, p.queueSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(queue)

		for raw := range frames {
			p.framesReceived.Add(1)

			select {
			case queue <- raw:
			default:
				p.queueDrops.Add(1)
				p.logger.Debug("queue full, dropping frame", slog.String("source", raw.Source))
			}
		}
	}()

	err = p.processLoop(queue)

	cancel()
	wg.Wait()

	p.flushBatch()
	p.logger.Info("pipeline stopped",
		slog.Uint64("frames", p.framesReceived.Load()),
		slog.Uint64("parseErrors", p.parseErrors),
		slog.Uint64("rejected", p.rejected),
		slog.Uint64("queueDrops", p.queueDrops.Load()))
	return err
}

func (p *pipeline) processLoop(queue <-chan telemetry.RawFrame) error {
	ticker := time.NewTicker(archiveFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case raw, ok := <-queue:
			if !ok {
				return nil
			}
			if err := p.process(raw); err != nil {
				return err
			}

		case <-ticker.C:
			p.flushBatch()
		}
	}
}

// process runs a single frame through the pipeline. Parse and validation
// failures are counted and published as health events; a flight log write
// failure is fatal.
func (p *pipeline) process(raw telemetry.RawFrame) error {
	// Arrival time counts for every frame, rejected ones included.
	p.lastFrameAt = raw.ReceivedAt

	candidate, err := frame.Parse(raw)
	if err != nil {
		p.parseErrors++
		p.logger.Debug("frame rejected", slog.String("error", err.Error()), slog.String("frame", raw.Payload))
		p.publisher.Publish(pubsub.Event{Health: p.health()})
		return nil
	}

	sample, err := p.validator.Validate(candidate)
	if err != nil {
		p.rejected++
		p.logger.Debug("sample rejected", slog.String("error", err.Error()), slog.String("frame", raw.Payload))
		p.publisher.Publish(pubsub.Event{Health: p.health()})
		return nil
	}

	if err = p.log.Append(sample); err != nil {
		return fmt.Errorf("appending to flight log: %w", err)
	}

	deviation := p.tracker.Track(sample)

	if p.archive != nil {
		p.batch = append(p.batch, storage.Entry{Sample: *sample, Deviation: &deviation})
		if len(p.batch) >= p.maxBatchSize {
			p.flushBatch()
		}
	}

	p.publisher.Publish(pubsub.Event{
		Sample:    sample,
		Deviation: &deviation,
		Health:    p.health(),
	})
	return nil
}

// flushBatch writes pending entries to the archive. Failures are logged
// and the batch discarded; the CSV flight log already holds the samples.
func (p *pipeline) flushBatch() {
	if p.archive == nil || len(p.batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.archive.StoreBatch(ctx, p.sessionID, p.batch); err != nil {
		p.logger.Error("archiving batch", slog.String("error", err.Error()), slog.Int("entries", len(p.batch)))
	}
	p.batch = p.batch[:0]
}

func (p *pipeline) health() telemetry.Health {
	return telemetry.Health{
		FramesReceived:   p.framesReceived.Load(),
		ParseErrors:      p.parseErrors,
		Rejected:         p.rejected,
		QueueDrops:       p.queueDrops.Load(),
		LastFrameAt:      p.lastFrameAt,
		PredictionLoaded: p.tracker.Loaded(),
	}
}
