package bods

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"urbanmove/pkg/metrics"
	"urbanmove/pkg/otel"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	BaseURLTemplate = "https://data.bus-data.dft.gov.uk/api/v1/datafeed/%s/"
	userAgent       = "urbanmove/1.0.0"
)

// Client fetches SIRI-VM snapshots from the Bus Open Data Service.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	tracer     trace.Tracer
}

func NewClient(apiKey, datasetID string) *Client {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   30 * time.Second,
	}

	return &Client{
		httpClient: client,
		apiKey:     apiKey,
		baseURL:    fmt.Sprintf(BaseURLTemplate, datasetID),
		tracer:     otelapi.Tracer("urbanmove/bods"),
	}
}

// FetchVehicleMonitoring returns the raw SIRI-VM document for lineRef. An
// empty lineRef fetches the whole dataset.
func (c *Client) FetchVehicleMonitoring(ctx context.Context, lineRef string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "bods.fetch_vehicle_monitoring",
		trace.WithAttributes(
			attribute.String("line_ref", lineRef),
			attribute.String("api.endpoint", c.baseURL),
		),
	)
	defer span.End()

	query := url.Values{}
	query.Set("api_key", c.apiKey)
	if lineRef != "" {
		query.Set("lineRef", lineRef)
	}
	endpoint := c.baseURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeValidation, false)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeNetwork, true)
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordHTTPRequest(ctx, "bods", resp.StatusCode, time.Since(start))

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.String("http.response.content_type", resp.Header.Get("Content-Type")),
	)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		otel.RecordError(span, err, otel.ErrorTypeHTTP, resp.StatusCode >= 500)
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeNetwork, true)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	span.SetAttributes(attribute.Int("response.size_bytes", len(body)))
	otel.SetSpanOk(span)
	return body, nil
}
