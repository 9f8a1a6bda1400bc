package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"urbanmove/pkg/metrics"
	"urbanmove/pkg/otel"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otelapi.Tracer("urbanmove/tracking")

// Config configures a Client. Zero values fall back to the defaults.
type Config struct {
	// BaseURL is the ws:// or wss:// tracking endpoint without the ticketId query.
	BaseURL     string
	BaseDelay   time.Duration
	MaxAttempts int

	// HandshakeTimeout and Header are used when Dialer is nil.
	HandshakeTimeout time.Duration
	Header           http.Header

	Dialer Dialer
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Client maintains a live position feed for one target and fans events out
// to registered listeners. All methods are safe for concurrent use.
type Client struct {
	baseURL     string
	baseDelay   time.Duration
	maxAttempts int
	dialer      Dialer
	clock       clockwork.Clock
	logger      *slog.Logger
	listeners   *Registry

	mu         sync.Mutex
	state      State
	targetID   string
	generation uint64
	conn       Conn
	cancelDial context.CancelFunc
	retryTimer clockwork.Timer
	backoff    backoff.BackOff
	attempts   int

	writeMu sync.Mutex
}

// New creates a disconnected client.
func New(cfg Config) *Client {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Dialer == nil {
		cfg.Dialer = NewWebSocketDialer(cfg.HandshakeTimeout, cfg.Header)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		baseURL:     cfg.BaseURL,
		baseDelay:   cfg.BaseDelay,
		maxAttempts: cfg.MaxAttempts,
		dialer:      cfg.Dialer,
		clock:       cfg.Clock,
		logger:      cfg.Logger.With("component", "tracking"),
		state:       StateDisconnected,
	}
	c.listeners = NewRegistry(c.logger, func(string, any) {
		metrics.RecordListenerPanic(context.Background())
	})
	c.backoff = newReconnectBackOff(c.baseDelay, c.maxAttempts)
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of reconnection attempts scheduled since the
// last successful open.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// AddListener registers fn under id, replacing any listener with that id.
func (c *Client) AddListener(id string, fn Listener) {
	c.listeners.Add(id, fn)
}

// RemoveListener unregisters id. Unknown ids are ignored.
func (c *Client) RemoveListener(id string) {
	c.listeners.Remove(id)
}

// ListenerCount returns the number of registered listeners.
func (c *Client) ListenerCount() int {
	return c.listeners.Len()
}

// Connect starts tracking targetID. It returns immediately; the outcome is
// reported through listeners. Calls made while connecting or connected are
// ignored. A call while a retry is pending dials now and keeps the retry
// count. A call from StateFailed or StateDisconnected starts a fresh budget.
func (c *Client) Connect(targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnecting, StateConnected:
		c.logger.Debug("Connect ignored", "state", c.state, "target_id", c.targetID)
		return
	case StateReconnecting:
		c.stopRetryLocked()
	default:
		c.resetBudgetLocked()
	}

	c.targetID = targetID
	c.dialLocked(false)
}

// Disconnect closes the transport, cancels any pending retry or in-flight
// dial, and clears all listeners. It is safe from any state, including from
// inside a listener.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.generation++
	c.stopRetryLocked()
	c.cancelDialLocked()
	conn := c.conn
	c.conn = nil
	previous := c.state
	c.state = StateDisconnected
	c.resetBudgetLocked()
	c.mu.Unlock()

	c.listeners.Clear()
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug("Error closing tracking connection", "error", err)
		}
	}
	if previous != StateDisconnected {
		c.logger.Info("Tracking disconnected", "previous_state", previous)
	}
}

// Send serializes v as JSON and writes it when connected. Otherwise the
// message is dropped with a warning and ErrNotConnected is returned.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		c.logger.Warn("Dropping outbound message, tracking not connected", "state", state)
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("%w: failed to write message: %v", ErrTransport, err)
	}
	return nil
}

func (c *Client) resetBudgetLocked() {
	c.attempts = 0
	c.backoff.Reset()
}

func (c *Client) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Client) cancelDialLocked() {
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
}

// dialLocked starts a new connection generation. c.mu must be held.
func (c *Client) dialLocked(retry bool) {
	c.generation++
	gen := c.generation
	c.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	go c.dial(ctx, gen, c.targetID, retry)
}

func (c *Client) dial(ctx context.Context, gen uint64, targetID string, retry bool) {
	ctx, span := tracer.Start(ctx, "tracking.dial",
		trace.WithAttributes(
			attribute.String("tracking.target_id", targetID),
			attribute.Bool("tracking.retry", retry),
		),
	)
	defer span.End()

	metrics.RecordConnectAttempt(ctx, retry)
	c.logger.Debug("Dialing tracking endpoint", "target_id", targetID, "retry", retry)

	endpoint, err := TrackingURL(c.baseURL, targetID)
	var conn Conn
	if err == nil {
		conn, err = c.dialer.Dial(ctx, endpoint)
	}
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeNetwork, true)
		if !c.isCurrent(gen) {
			return
		}
		c.logger.Warn("Failed to connect to tracking endpoint", "target_id", targetID, "error", err)
		c.emit(gen, Event{Type: EventError, Err: fmt.Errorf("%w: %v", ErrTransport, err)})
		c.handleClose(gen, err)
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.cancelDial = nil
	c.resetBudgetLocked()
	c.mu.Unlock()

	otel.SetSpanOk(span)
	metrics.RecordConnectionOpened(ctx)
	c.logger.Info("Tracking connected", "target_id", targetID)

	c.emit(gen, Event{Type: EventConnected})
	go c.readLoop(gen, conn)
}

func (c *Client) readLoop(gen uint64, conn Conn) {
	defer metrics.RecordConnectionClosed(context.Background())

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if !c.isCurrent(gen) {
				return
			}
			if !isCleanClose(err) {
				c.emit(gen, Event{Type: EventError, Err: fmt.Errorf("%w: %v", ErrTransport, err)})
			}
			c.handleClose(gen, err)
			return
		}
		c.handleMessage(gen, data)
	}
}

func (c *Client) handleMessage(gen uint64, data []byte) {
	ctx := context.Background()
	env, pos, err := DecodeMessage(data)
	if err != nil {
		metrics.RecordProtocolError(ctx)
		c.logger.Warn("Discarding malformed tracking message", "error", err)
		c.emit(gen, Event{Type: EventError, Err: err})
		return
	}
	if pos == nil {
		c.logger.Debug("Ignoring tracking envelope", "type", env.Type)
		return
	}
	metrics.RecordPositionReceived(ctx)
	c.emit(gen, Event{Type: EventLocation, Position: pos})
}

// handleClose moves a live generation to StateReconnecting, tells listeners,
// then either schedules the next retry or gives up.
func (c *Client) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.generation || c.state == StateDisconnected || c.state == StateFailed {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.cancelDialLocked()
	c.state = StateReconnecting
	targetID := c.targetID
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.logger.Info("Tracking connection closed", "target_id", targetID, "reason", cause)
	c.emit(gen, Event{Type: EventDisconnected, Err: cause})

	c.scheduleRetry(gen)
}

func (c *Client) scheduleRetry(gen uint64) {
	ctx := context.Background()

	c.mu.Lock()
	if gen != c.generation || c.state != StateReconnecting || c.retryTimer != nil {
		c.mu.Unlock()
		return
	}

	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		c.state = StateFailed
		attempts := c.attempts
		c.mu.Unlock()

		metrics.RecordTrackingFailed(ctx)
		c.logger.Error("Giving up on tracking connection", "attempts", attempts)
		c.emit(gen, Event{
			Type: EventError,
			Err:  fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempts),
		})
		return
	}

	c.attempts++
	attempt := c.attempts
	c.retryTimer = c.clock.AfterFunc(delay, func() { c.retry(gen) })
	c.mu.Unlock()

	metrics.RecordReconnectScheduled(ctx, attempt, delay)
	c.logger.Info("Scheduling tracking reconnect",
		"attempt", attempt,
		"max_attempts", c.maxAttempts,
		"delay", delay,
	)
}

func (c *Client) retry(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.state != StateReconnecting {
		return
	}
	c.retryTimer = nil
	c.dialLocked(true)
}

func (c *Client) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

// emit delivers ev unless gen has been superseded.
func (c *Client) emit(gen uint64, ev Event) {
	if !c.isCurrent(gen) {
		return
	}
	c.listeners.Notify(ev)
}

// IsExhausted reports whether err is the terminal reconnect error.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrReconnectExhausted)
}
