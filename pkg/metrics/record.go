package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// The Record* helpers are safe to call whether or not InitMetrics installed a
// provider; instruments are nil while metrics are disabled.

// RecordHTTPRequest records one REST call to a platform service.
func RecordHTTPRequest(ctx context.Context, service string, status int, d time.Duration) {
	if !IsEnabled() {
		return
	}
	HTTPClientRequestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("service", service),
		attribute.Int("http.response.status_code", status),
	))
}

// RecordConnectAttempt records a transport dial.
func RecordConnectAttempt(ctx context.Context, retry bool) {
	if !IsEnabled() {
		return
	}
	TrackingConnectAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("retry", retry)))
}

// RecordConnectionOpened and RecordConnectionClosed track open transports.
func RecordConnectionOpened(ctx context.Context) {
	if !IsEnabled() {
		return
	}
	TrackingConnections.Add(ctx, 1)
}

func RecordConnectionClosed(ctx context.Context) {
	if !IsEnabled() {
		return
	}
	TrackingConnections.Add(ctx, -1)
}

// RecordReconnectScheduled records a retry placed on the backoff timer.
func RecordReconnectScheduled(ctx context.Context, attempt int, delay time.Duration) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.Int("attempt", attempt))
	TrackingReconnectsScheduled.Add(ctx, 1, attrs)
	TrackingReconnectDelay.Record(ctx, delay.Seconds(), attrs)
}

// RecordPositionReceived records a position delivered to listeners.
func RecordPositionReceived(ctx context.Context) {
	lastPositionTimestamp.Store(time.Now().Unix())
	if !IsEnabled() {
		return
	}
	TrackingPositionsReceived.Add(ctx, 1)
}

func RecordProtocolError(ctx context.Context) {
	if !IsEnabled() {
		return
	}
	TrackingProtocolErrors.Add(ctx, 1)
}

func RecordListenerPanic(ctx context.Context) {
	if !IsEnabled() {
		return
	}
	TrackingListenerPanics.Add(ctx, 1)
}

func RecordTrackingFailed(ctx context.Context) {
	if !IsEnabled() {
		return
	}
	TrackingFailures.Add(ctx, 1)
}

// RecordFlush records one recorder flush to the given sink.
func RecordFlush(ctx context.Context, sink string, positions int, d time.Duration, err error) {
	if !IsEnabled() {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("sink", sink), attribute.String("status", status))
	RecorderFlushTotal.Add(ctx, 1, attrs)
	RecorderFlushDuration.Record(ctx, d.Seconds(), attrs)
	RecorderBatchSize.Record(ctx, int64(positions), metric.WithAttributes(attribute.String("sink", sink)))
}

// RecordFeedSubscriber adds delta (+1 or -1) to the subscriber gauge.
func RecordFeedSubscriber(ctx context.Context, delta int64) {
	if !IsEnabled() {
		return
	}
	FeedSubscribers.Add(ctx, delta)
}

func RecordFeedBroadcast(ctx context.Context, positions int) {
	if !IsEnabled() {
		return
	}
	FeedPositionsBroadcast.Add(ctx, int64(positions))
}

func RecordFeedPollError(ctx context.Context) {
	if !IsEnabled() {
		return
	}
	FeedPollErrors.Add(ctx, 1)
}
