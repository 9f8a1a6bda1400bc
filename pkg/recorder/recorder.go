package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"urbanmove/pkg/loki"
	"urbanmove/pkg/metrics"
	"urbanmove/pkg/otel"
	"urbanmove/pkg/tracking"
	"urbanmove/pkg/types"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	listenerID      = "recorder"
	DefaultInterval = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// ErrTrackingUnavailable is returned by Run once the tracking client has
// given up reconnecting.
var ErrTrackingUnavailable = errors.New("live tracking unavailable")

// Tracker is the part of tracking.Client the recorder drives.
type Tracker interface {
	Connect(targetID string)
	Disconnect()
	AddListener(id string, fn tracking.Listener)
}

// Sink receives flushed batches.
type Sink interface {
	SendPositions(ctx context.Context, targetID string, positions []types.PositionEvent) error
}

type Config struct {
	TargetID     string
	DryRun       bool
	LokiURL      string
	LokiUser     string
	LokiPassword string
	Interval     time.Duration

	// Sink overrides the Loki client built from the Loki settings.
	Sink Sink
	// Output receives dry-run batches. Defaults to stdout.
	Output io.Writer
	Logger *slog.Logger
}

// Recorder buffers live positions for one target and flushes them on an
// interval.
type Recorder struct {
	config  Config
	tracker Tracker
	sink    Sink
	logger  *slog.Logger
	tracer  trace.Tracer

	mu     sync.Mutex
	buffer []types.PositionEvent

	failed chan error
}

func New(config Config, tracker Tracker) (*Recorder, error) {
	if config.TargetID == "" {
		return nil, fmt.Errorf("target id is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("tracking client is required")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	r := &Recorder{
		config:  config,
		tracker: tracker,
		sink:    config.Sink,
		logger:  config.Logger.With("component", "recorder", "target_id", config.TargetID),
		tracer:  otelapi.Tracer("urbanmove/recorder"),
		failed:  make(chan error, 1),
	}

	// Only create a Loki client if not in dry run mode
	if !config.DryRun && r.sink == nil {
		if config.LokiURL == "" {
			return nil, fmt.Errorf("loki URL is required unless running in dry run mode")
		}
		r.sink = loki.NewClient(config.LokiURL, config.LokiUser, config.LokiPassword)
	}

	return r, nil
}

// Run connects the tracker and flushes buffered positions every interval
// until ctx is done or the tracker gives up. Buffered positions are flushed
// once more before returning, and the tracker is disconnected.
func (r *Recorder) Run(ctx context.Context) error {
	r.tracker.AddListener(listenerID, r.handleEvent)
	r.tracker.Connect(r.config.TargetID)
	defer r.tracker.Disconnect()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info("Recorder started", "interval", r.config.Interval, "dry_run", r.config.DryRun)

	for {
		select {
		case <-ctx.Done():
			r.finalFlush()
			r.logger.Info("Recorder stopped")
			return ctx.Err()
		case err := <-r.failed:
			r.finalFlush()
			return fmt.Errorf("%w: %v", ErrTrackingUnavailable, err)
		case <-ticker.C:
			if err := r.flush(ctx); err != nil {
				r.logger.Error("Error flushing positions", "error", err)
			}
		}
	}
}

func (r *Recorder) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.flush(ctx); err != nil {
		r.logger.Error("Error flushing positions on shutdown", "error", err)
	}
}

func (r *Recorder) handleEvent(ev tracking.Event) {
	switch ev.Type {
	case tracking.EventLocation:
		r.mu.Lock()
		r.buffer = append(r.buffer, *ev.Position)
		r.mu.Unlock()
	case tracking.EventConnected:
		r.logger.Info("Live tracking connected")
	case tracking.EventDisconnected:
		r.logger.Warn("Live tracking disconnected, reconnecting", "reason", ev.Err)
	case tracking.EventError:
		if tracking.IsExhausted(ev.Err) {
			select {
			case r.failed <- ev.Err:
			default:
			}
			return
		}
		r.logger.Warn("Live tracking error", "error", ev.Err)
	}
}

// Buffered returns the number of positions waiting for the next flush.
func (r *Recorder) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

func (r *Recorder) drain() []types.PositionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := r.buffer
	r.buffer = nil
	return batch
}

// flush sends everything buffered so far. A failed batch is dropped.
func (r *Recorder) flush(ctx context.Context) error {
	batch := r.drain()
	if len(batch) == 0 {
		return nil
	}

	sinkName := "loki"
	if r.config.DryRun {
		sinkName = "stdout"
	}

	ctx, span := r.tracer.Start(ctx, "recorder.flush",
		trace.WithAttributes(
			attribute.String("tracking.target_id", r.config.TargetID),
			attribute.String("sink", sinkName),
			attribute.Int("positions_count", len(batch)),
		),
	)
	defer span.End()

	start := time.Now()
	var err error
	if r.config.DryRun {
		err = r.printBatch(batch)
	} else {
		err = r.sink.SendPositions(ctx, r.config.TargetID, batch)
	}
	metrics.RecordFlush(ctx, sinkName, len(batch), time.Since(start), err)

	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeNetwork, true)
		return fmt.Errorf("failed to flush %d positions: %w", len(batch), err)
	}

	r.logger.Info("Flushed positions", "count", len(batch), "sink", sinkName)
	otel.SetSpanOk(span)
	return nil
}

func (r *Recorder) printBatch(batch []types.PositionEvent) error {
	w := r.config.Output
	fmt.Fprintf(w, "\n=== DRY RUN - Positions for target %s ===\n", r.config.TargetID)
	fmt.Fprintf(w, "Positions: %d\n", len(batch))
	for i, p := range batch {
		line, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal position for dry run: %w", err)
		}
		fmt.Fprintf(w, "Log Line %d: %s\n", i+1, line)
	}
	fmt.Fprintln(w, "=== END DRY RUN ===")
	return nil
}
