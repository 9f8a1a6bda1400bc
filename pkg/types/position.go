package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// EnvelopeGPSUpdate is the envelope type carrying one PositionEvent.
const EnvelopeGPSUpdate = "GPS_UPDATE"

// Envelope is the typed wrapper around every message on the tracking feed.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PositionEvent is one GPS fix for a single bus.
type PositionEvent struct {
	BusID     string     `json:"busId"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Speed     *float64   `json:"speed,omitempty"`     // km/h as reported by the bus service
	Timestamp *time.Time `json:"timestamp,omitempty"` // time of the fix, when known
}

// NewGPSUpdate wraps a position into a GPS_UPDATE envelope.
func NewGPSUpdate(p PositionEvent) (Envelope, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal position: %w", err)
	}
	return Envelope{Type: EnvelopeGPSUpdate, Payload: payload}, nil
}

// timestampLayouts are tried in order. The bus service emits zone-less local
// date-times; other producers send RFC 3339.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts an RFC 3339 or zone-less ISO string, or a number of
// milliseconds since the Unix epoch. Null or empty input yields nil.
func ParseTimestamp(raw json.RawMessage) (*time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] != '"' {
		ms, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %s: %w", raw, err)
		}
		// math.MaxInt64 rounds up to 2^63 as a float64, so the upper bound is exclusive.
		if math.IsNaN(ms) || ms >= math.MaxInt64 || ms < math.MinInt64 {
			return nil, fmt.Errorf("invalid timestamp %s: out of range", raw)
		}
		ts := time.UnixMilli(int64(ms)).UTC()
		return &ts, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("invalid timestamp %s: %w", raw, err)
	}
	if s == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("invalid timestamp %q", s)
}
