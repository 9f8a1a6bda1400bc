package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"urbanmove/pkg/metrics"
	"urbanmove/pkg/otel"
	"urbanmove/pkg/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const userAgent = "urbanmove/1.0.0"

type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	tracer     trace.Tracer
}

type PushRequest struct {
	Streams []Stream `json:"streams"`
}

type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// positionLine is the JSON body of one log line.
type positionLine struct {
	TargetID   string   `json:"target_id"`
	BusID      string   `json:"bus_id"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Speed      *float64 `json:"speed,omitempty"`
	RecordedAt string   `json:"recorded_at,omitempty"`
}

func NewClient(baseURL, username, password string) *Client {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   30 * time.Second,
	}

	return &Client{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		tracer:     otelapi.Tracer("urbanmove/loki"),
	}
}

// SendPositions pushes one log line per fix to a stream labelled with the
// tracked target. Lines are stamped with the fix time when known.
func (c *Client) SendPositions(ctx context.Context, targetID string, positions []types.PositionEvent) error {
	ctx, span := c.tracer.Start(ctx, "loki.send_positions",
		trace.WithAttributes(
			attribute.String("tracking.target_id", targetID),
			attribute.Int("positions_count", len(positions)),
		),
	)
	defer span.End()

	now := time.Now()
	logValues := make([][]string, 0, len(positions))
	for _, p := range positions {
		line := positionLine{
			TargetID:  targetID,
			BusID:     p.BusID,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Speed:     p.Speed,
		}
		stamp := now
		if p.Timestamp != nil {
			stamp = *p.Timestamp
			line.RecordedAt = p.Timestamp.Format(time.RFC3339Nano)
		}

		lineJSON, err := json.Marshal(line)
		if err != nil {
			otel.RecordError(span, err, otel.ErrorTypeParse, false)
			return fmt.Errorf("failed to marshal position JSON: %w", err)
		}
		logValues = append(logValues, []string{
			strconv.FormatInt(stamp.UnixNano(), 10),
			string(lineJSON),
		})
	}

	reqBody, err := json.Marshal(PushRequest{
		Streams: []Stream{
			{
				Stream: map[string]string{
					"job":       "urbanmove",
					"service":   "bus-tracking",
					"target_id": targetID,
				},
				Values: logValues,
			},
		},
	})
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeParse, false)
		return fmt.Errorf("failed to marshal Loki request: %w", err)
	}

	url := c.baseURL + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeValidation, false)
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	span.SetAttributes(
		attribute.Bool("auth.enabled", c.username != "" && c.password != ""),
		attribute.String("http.url", url),
		attribute.Int("request.size_bytes", len(reqBody)),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeNetwork, true)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordHTTPRequest(ctx, "loki", resp.StatusCode, time.Since(start))

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("loki returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		otel.RecordError(span, err, otel.ErrorTypeHTTP, resp.StatusCode >= 500)
		return err
	}

	otel.SetSpanOk(span)
	return nil
}
