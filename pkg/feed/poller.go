package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"urbanmove/pkg/metrics"
	"urbanmove/pkg/otel"
	"urbanmove/pkg/siri"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultPollInterval = 10 * time.Second

// Poller periodically reads a Source and broadcasts the parsed positions.
type Poller struct {
	source   Source
	parser   *siri.Parser
	hub      *Hub
	interval time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewPoller(source Source, hub *Hub, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   source,
		parser:   siri.NewParser(logger),
		hub:      hub,
		interval: interval,
		logger:   logger.With("component", "feed", "source", source.Name()),
		tracer:   otelapi.Tracer("urbanmove/feed"),
	}
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Feed poller started", "interval", p.interval)

	if _, err := p.pollOnce(ctx); err != nil {
		p.logger.Error("Error in initial poll", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Feed poller stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.pollOnce(ctx); err != nil {
				p.logger.Error("Error polling feed source", "error", err)
			}
		}
	}
}

// pollOnce returns the number of envelopes queued to subscribers.
func (p *Poller) pollOnce(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "feed.poll",
		trace.WithAttributes(attribute.String("source", p.source.Name())),
	)
	defer span.End()

	data, err := p.source.Fetch(ctx)
	if err != nil {
		metrics.RecordFeedPollError(ctx)
		otel.RecordError(span, err, otel.ErrorTypeNetwork, true)
		return 0, fmt.Errorf("failed to fetch feed: %w", err)
	}

	positions, err := p.parser.Parse(ctx, data)
	if err != nil {
		metrics.RecordFeedPollError(ctx)
		otel.RecordError(span, err, otel.ErrorTypeParse, false)
		return 0, fmt.Errorf("failed to parse feed: %w", err)
	}

	queued, err := p.hub.Broadcast(ctx, positions)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeParse, false)
		return 0, err
	}

	span.SetAttributes(
		attribute.Int("positions_count", len(positions)),
		attribute.Int("subscribers", p.hub.Subscribers()),
	)
	p.logger.Debug("Broadcast positions", "positions", len(positions), "queued", queued)
	otel.SetSpanOk(span)
	return queued, nil
}
