package siri

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"urbanmove/pkg/otel"
	"urbanmove/pkg/types"

	"github.com/clbanning/mxj/v2"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const vehicleActivityPath = "Siri.ServiceDelivery.VehicleMonitoringDelivery.VehicleActivity"

// metresPerSecondToKmh converts SIRI Velocity to the km/h used on the feed.
const metresPerSecondToKmh = 3.6

// Parser decodes SIRI-VM vehicle monitoring documents into positions.
type Parser struct {
	tracer trace.Tracer
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		tracer: otelapi.Tracer("urbanmove/siri"),
		logger: logger.With("component", "siri"),
	}
}

// Parse returns one position per VehicleActivity that has a vehicle
// reference and coordinates. Activities missing either are skipped.
func (p *Parser) Parse(ctx context.Context, xml []byte) ([]types.PositionEvent, error) {
	_, span := p.tracer.Start(ctx, "siri.parse",
		trace.WithAttributes(attribute.Int("xml_size_bytes", len(xml))),
	)
	defer span.End()

	m, err := mxj.NewMapXml(xml)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeParse, false)
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	// A document without the path simply has no activities.
	activities, _ := m.ValuesForPath(vehicleActivityPath)

	positions := make([]types.PositionEvent, 0, len(activities))
	skipped := 0
	for _, activity := range activities {
		activityMap, ok := activity.(map[string]interface{})
		if !ok {
			skipped++
			continue
		}
		pos, ok := parseVehicleActivity(activityMap)
		if !ok {
			skipped++
			continue
		}
		positions = append(positions, pos)
	}

	if skipped > 0 {
		p.logger.Debug("Skipped vehicle activities without position", "skipped", skipped)
	}
	span.SetAttributes(
		attribute.Int("vehicles_count", len(positions)),
		attribute.Int("vehicles_skipped", skipped),
	)
	otel.SetSpanOk(span)
	return positions, nil
}

func parseVehicleActivity(activity map[string]interface{}) (types.PositionEvent, bool) {
	var pos types.PositionEvent

	mvj, ok := activity["MonitoredVehicleJourney"].(map[string]interface{})
	if !ok {
		return pos, false
	}

	pos.BusID = text(mvj["VehicleRef"])
	if pos.BusID == "" {
		if fvjr, ok := mvj["FramedVehicleJourneyRef"].(map[string]interface{}); ok {
			pos.BusID = text(fvjr["DatedVehicleJourneyRef"])
		}
	}
	if pos.BusID == "" {
		return pos, false
	}

	location, ok := mvj["VehicleLocation"].(map[string]interface{})
	if !ok {
		return pos, false
	}
	lat, latErr := parseFloat(text(location["Latitude"]))
	lon, lonErr := parseFloat(text(location["Longitude"]))
	if latErr != nil || lonErr != nil {
		return pos, false
	}
	pos.Latitude = lat
	pos.Longitude = lon

	if v, err := parseFloat(text(mvj["Velocity"])); err == nil {
		speed := v * metresPerSecondToKmh
		pos.Speed = &speed
	}

	if ts, err := time.Parse(time.RFC3339Nano, text(activity["RecordedAtTime"])); err == nil {
		pos.Timestamp = &ts
	}

	return pos, true
}

// text returns the character data of an element, whether mxj decoded it as
// a bare string or, when it carries attributes, as a map with "#text".
func text(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if s, ok := t["#text"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
