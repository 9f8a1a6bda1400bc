package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPositionEventJSON_OptionalFields(t *testing.T) {
	data, err := json.Marshal(PositionEvent{BusID: "B1", Latitude: 33.97, Longitude: -6.85})
	if err != nil {
		t.Fatalf("Failed to marshal PositionEvent: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}

	if result["busId"] != "B1" {
		t.Errorf("busId = %v, want %v", result["busId"], "B1")
	}
	if result["latitude"] != 33.97 {
		t.Errorf("latitude = %v, want %v", result["latitude"], 33.97)
	}
	if _, ok := result["speed"]; ok {
		t.Error("speed should be omitted when nil")
	}
	if _, ok := result["timestamp"]; ok {
		t.Error("timestamp should be omitted when nil")
	}
}

func TestNewGPSUpdate(t *testing.T) {
	speed := 42.5
	env, err := NewGPSUpdate(PositionEvent{BusID: "B7", Latitude: 1, Longitude: 2, Speed: &speed})
	if err != nil {
		t.Fatalf("NewGPSUpdate failed: %v", err)
	}
	if env.Type != EnvelopeGPSUpdate {
		t.Errorf("Type = %q, want %q", env.Type, EnvelopeGPSUpdate)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}
	want := `{"type":"GPS_UPDATE","payload":{"busId":"B7","latitude":1,"longitude":2,"speed":42.5}}`
	if string(data) != want {
		t.Errorf("envelope JSON = %s, want %s", data, want)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  time.Time
		expectNil bool
		expectErr bool
	}{
		{"rfc3339", `"2024-01-15T10:29:45Z"`, time.Date(2024, 1, 15, 10, 29, 45, 0, time.UTC), false, false},
		{"rfc3339 with offset", `"2024-01-15T11:29:45+01:00"`, time.Date(2024, 1, 15, 10, 29, 45, 0, time.UTC), false, false},
		{"zone-less local", `"2024-01-15T10:29:45.123"`, time.Date(2024, 1, 15, 10, 29, 45, 123000000, time.UTC), false, false},
		{"space separated", `"2024-01-15 10:29:45"`, time.Date(2024, 1, 15, 10, 29, 45, 0, time.UTC), false, false},
		{"epoch millis", `1705314585000`, time.Date(2024, 1, 15, 10, 29, 45, 0, time.UTC), false, false},
		{"null", `null`, time.Time{}, true, false},
		{"empty", ``, time.Time{}, true, false},
		{"empty string", `""`, time.Time{}, true, false},
		{"garbage string", `"yesterday"`, time.Time{}, false, true},
		{"garbage literal", `true`, time.Time{}, false, true},
		{"epoch millis too large", `1e300`, time.Time{}, false, true},
		{"epoch millis too small", `-1e300`, time.Time{}, false, true},
		{"epoch millis at int64 bound", `9223372036854775808`, time.Time{}, false, true},
		{"NaN literal", `NaN`, time.Time{}, false, true},
		{"infinity literal", `Inf`, time.Time{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(json.RawMessage(tt.input))
			if tt.expectErr {
				if err == nil {
					t.Errorf("ParseTimestamp(%s) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimestamp(%s) unexpected error: %v", tt.input, err)
			}
			if tt.expectNil {
				if got != nil {
					t.Errorf("ParseTimestamp(%s) = %v, want nil", tt.input, got)
				}
				return
			}
			if got == nil || !got.Equal(tt.expected) {
				t.Errorf("ParseTimestamp(%s) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
