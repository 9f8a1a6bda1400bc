package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// HTTP Client Metrics (OTEL Semantic Conventions)
var (
	// HTTPClientRequestDuration measures the duration of REST calls to platform services
	HTTPClientRequestDuration metric.Float64Histogram
)

// Tracking Client Metrics
var (
	// TrackingConnectAttempts counts transport dials, initial and retried
	TrackingConnectAttempts metric.Int64Counter

	// TrackingReconnectsScheduled counts retries put on the backoff timer
	TrackingReconnectsScheduled metric.Int64Counter

	// TrackingReconnectDelay records the backoff delay chosen for each retry
	TrackingReconnectDelay metric.Float64Histogram

	// TrackingPositionsReceived counts GPS_UPDATE envelopes delivered to listeners
	TrackingPositionsReceived metric.Int64Counter

	// TrackingProtocolErrors counts malformed inbound messages
	TrackingProtocolErrors metric.Int64Counter

	// TrackingListenerPanics counts listener callbacks that panicked
	TrackingListenerPanics metric.Int64Counter

	// TrackingFailures counts clients that exhausted their retry budget
	TrackingFailures metric.Int64Counter

	// TrackingConnections tracks currently open transport connections
	TrackingConnections metric.Int64UpDownCounter
)

// Recorder Metrics
var (
	// RecorderFlushDuration measures the duration of recorder flushes
	RecorderFlushDuration metric.Float64Histogram

	// RecorderBatchSize measures the number of positions per flush
	RecorderBatchSize metric.Int64Histogram

	// RecorderFlushTotal counts flushes by sink and status
	RecorderFlushTotal metric.Int64Counter
)

// Feed Metrics
var (
	// FeedSubscribers tracks connected feed subscribers
	FeedSubscribers metric.Int64UpDownCounter

	// FeedPositionsBroadcast counts positions broadcast to subscribers
	FeedPositionsBroadcast metric.Int64Counter

	// FeedPollErrors counts failed source polls
	FeedPollErrors metric.Int64Counter
)

// initializeInstruments creates all metric instruments
func initializeInstruments() error {
	var err error

	HTTPClientRequestDuration, err = Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of HTTP client requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1.0, 2.5, 5.0, 7.5, 10.0),
	)
	if err != nil {
		return err
	}

	TrackingConnectAttempts, err = Meter.Int64Counter(
		"tracking.connect.attempts",
		metric.WithDescription("Transport dials by the tracking client"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	TrackingReconnectsScheduled, err = Meter.Int64Counter(
		"tracking.reconnects.scheduled",
		metric.WithDescription("Reconnection attempts scheduled after a close"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	TrackingReconnectDelay, err = Meter.Float64Histogram(
		"tracking.reconnect.delay",
		metric.WithDescription("Backoff delay before a reconnection attempt"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 4, 8, 16, 32, 64),
	)
	if err != nil {
		return err
	}

	TrackingPositionsReceived, err = Meter.Int64Counter(
		"tracking.positions.received",
		metric.WithDescription("GPS positions delivered to listeners"),
		metric.WithUnit("{position}"),
	)
	if err != nil {
		return err
	}

	TrackingProtocolErrors, err = Meter.Int64Counter(
		"tracking.protocol.errors",
		metric.WithDescription("Malformed inbound tracking messages"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	TrackingListenerPanics, err = Meter.Int64Counter(
		"tracking.listener.panics",
		metric.WithDescription("Listener callbacks that panicked during delivery"),
		metric.WithUnit("{panic}"),
	)
	if err != nil {
		return err
	}

	TrackingFailures, err = Meter.Int64Counter(
		"tracking.state.failed",
		metric.WithDescription("Tracking clients that exhausted their reconnection budget"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return err
	}

	TrackingConnections, err = Meter.Int64UpDownCounter(
		"tracking.connections.open",
		metric.WithDescription("Open tracking transport connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return err
	}

	RecorderFlushDuration, err = Meter.Float64Histogram(
		"recorder.flush.duration",
		metric.WithDescription("Duration of recorder flushes"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return err
	}

	RecorderBatchSize, err = Meter.Int64Histogram(
		"recorder.batch.size",
		metric.WithDescription("Number of positions per flush"),
		metric.WithUnit("{position}"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		return err
	}

	RecorderFlushTotal, err = Meter.Int64Counter(
		"recorder.flush.total",
		metric.WithDescription("Recorder flushes by sink and status"),
		metric.WithUnit("{flush}"),
	)
	if err != nil {
		return err
	}

	FeedSubscribers, err = Meter.Int64UpDownCounter(
		"feed.subscribers",
		metric.WithDescription("Connected feed subscribers"),
		metric.WithUnit("{subscriber}"),
	)
	if err != nil {
		return err
	}

	FeedPositionsBroadcast, err = Meter.Int64Counter(
		"feed.positions.broadcast",
		metric.WithDescription("Positions broadcast to feed subscribers"),
		metric.WithUnit("{position}"),
	)
	if err != nil {
		return err
	}

	FeedPollErrors, err = Meter.Int64Counter(
		"feed.poll.errors",
		metric.WithDescription("Failed feed source polls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	return nil
}
