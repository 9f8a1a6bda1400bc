package tracking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"urbanmove/pkg/types"
)

type wirePosition struct {
	BusID     json.RawMessage `json:"busId"`
	Latitude  *float64        `json:"latitude"`
	Longitude *float64        `json:"longitude"`
	Speed     *float64        `json:"speed"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// DecodeMessage parses one inbound frame. It returns a nil position for
// well-formed envelopes of a type other than GPS_UPDATE. Every error wraps
// ErrProtocol.
func DecodeMessage(data []byte) (types.Envelope, *types.PositionEvent, error) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, nil, fmt.Errorf("%w: invalid envelope: %v", ErrProtocol, err)
	}
	if env.Type == "" {
		return env, nil, fmt.Errorf("%w: envelope has no type", ErrProtocol)
	}
	if env.Type != types.EnvelopeGPSUpdate {
		return env, nil, nil
	}

	payload := bytes.TrimSpace(env.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return env, nil, fmt.Errorf("%w: %s without payload", ErrProtocol, env.Type)
	}

	var wire wirePosition
	if err := json.Unmarshal(payload, &wire); err != nil {
		return env, nil, fmt.Errorf("%w: invalid %s payload: %v", ErrProtocol, env.Type, err)
	}

	busID, err := decodeBusID(wire.BusID)
	if err != nil {
		return env, nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if wire.Latitude == nil || wire.Longitude == nil {
		return env, nil, fmt.Errorf("%w: position for bus %s is missing coordinates", ErrProtocol, busID)
	}

	ts, err := types.ParseTimestamp(wire.Timestamp)
	if err != nil {
		return env, nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	return env, &types.PositionEvent{
		BusID:     busID,
		Latitude:  *wire.Latitude,
		Longitude: *wire.Longitude,
		Speed:     wire.Speed,
		Timestamp: ts,
	}, nil
}

// decodeBusID accepts a JSON string or number.
func decodeBusID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("position is missing busId")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid busId: %v", err)
		}
		if s == "" {
			return "", fmt.Errorf("position has empty busId")
		}
		return s, nil
	}
	if _, err := strconv.ParseFloat(string(raw), 64); err != nil {
		return "", fmt.Errorf("invalid busId %s", raw)
	}
	return string(raw), nil
}
