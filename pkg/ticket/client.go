package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"urbanmove/pkg/identity"
	"urbanmove/pkg/metrics"
	"urbanmove/pkg/otel"
	"urbanmove/pkg/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const userAgent = "urbanmove/1.0.0"

// Client talks to the ticketing service REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	tracer     trace.Tracer
}

// Reservation is a request to issue a ticket. UserID is the raw identifier
// from the user service; it is mapped to a stable UUID before sending.
type Reservation struct {
	UserID     any
	TrajetID   string
	SeatNumber int
	Price      float64
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ticket service returned status %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a client for the service at baseURL. token, if set, is
// sent as a bearer token.
func NewClient(baseURL, token string) *Client {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   30 * time.Second,
	}

	return &Client{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		tracer:     otelapi.Tracer("urbanmove/ticket"),
	}
}

// Create issues a ticket. An invalid user id fails before any request is made.
func (c *Client) Create(ctx context.Context, r Reservation) (*types.Ticket, error) {
	userID, err := identity.StableUUIDString(r.UserID)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(types.TicketRequest{
		UserID:     userID,
		TrajetID:   r.TrajetID,
		SeatNumber: r.SeatNumber,
		Price:      r.Price,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ticket request: %w", err)
	}

	var t types.Ticket
	if err := c.do(ctx, "ticket.create", http.MethodPost, "/api/tickets", body, &t,
		attribute.String("ticket.user_id", userID),
		attribute.String("ticket.trajet_id", r.TrajetID),
	); err != nil {
		return nil, err
	}
	return &t, nil
}

// Get fetches one ticket by id.
func (c *Client) Get(ctx context.Context, ticketID string) (*types.Ticket, error) {
	if ticketID == "" {
		return nil, fmt.Errorf("ticket id is required")
	}

	var t types.Ticket
	if err := c.do(ctx, "ticket.get", http.MethodGet, "/api/tickets/"+url.PathEscape(ticketID), nil, &t,
		attribute.String("ticket.id", ticketID),
	); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListForUser returns the tickets of the user identified by rawUserID.
func (c *Client) ListForUser(ctx context.Context, rawUserID any) ([]types.Ticket, error) {
	userID, err := identity.StableUUIDString(rawUserID)
	if err != nil {
		return nil, err
	}

	var tickets []types.Ticket
	if err := c.do(ctx, "ticket.list_for_user", http.MethodGet, "/api/tickets/user/"+userID, nil, &tickets,
		attribute.String("ticket.user_id", userID),
	); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (c *Client) do(ctx context.Context, spanName, method, path string, body []byte, out any, attrs ...attribute.KeyValue) error {
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
	defer span.End()

	endpoint := c.baseURL + path
	span.SetAttributes(
		attribute.String("http.url", endpoint),
		attribute.String("http.method", method),
	)

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeValidation, false)
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeNetwork, true)
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordHTTPRequest(ctx, "ticket", resp.StatusCode, time.Since(start))

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeNetwork, true)
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		otel.RecordError(span, apiErr, otel.ErrorTypeHTTP, resp.StatusCode >= 500)
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		otel.RecordError(span, err, otel.ErrorTypeParse, false)
		return fmt.Errorf("failed to decode response: %w", err)
	}

	otel.SetSpanOk(span)
	return nil
}
