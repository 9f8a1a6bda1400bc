package tracking

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		wantNil   bool
		busID     string
		lat, lon  float64
		speed     *float64
		timestamp *time.Time
	}{
		{
			name:  "minimal update",
			input: `{"type":"GPS_UPDATE","payload":{"busId":"B1","latitude":33.97,"longitude":-6.85}}`,
			busID: "B1", lat: 33.97, lon: -6.85,
		},
		{
			name:      "speed and timestamp",
			input:     `{"type":"GPS_UPDATE","payload":{"busId":"B7","latitude":1,"longitude":2,"speed":42.5,"timestamp":"2024-01-15T10:30:00Z"}}`,
			busID:     "B7", lat: 1, lon: 2,
			speed:     floatPtr(42.5),
			timestamp: timePtr(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)),
		},
		{
			name:  "numeric bus id",
			input: `{"type":"GPS_UPDATE","payload":{"busId":17,"latitude":0,"longitude":0}}`,
			busID: "17",
		},
		{
			name:    "other envelope type",
			input:   `{"type":"ROUTE_CHANGED","payload":{"routeId":"R1"}}`,
			wantNil: true,
		},
		{name: "not json", input: `not json`, wantErr: true},
		{name: "missing type", input: `{"payload":{}}`, wantErr: true},
		{name: "missing payload", input: `{"type":"GPS_UPDATE"}`, wantErr: true},
		{name: "missing bus id", input: `{"type":"GPS_UPDATE","payload":{"latitude":1,"longitude":2}}`, wantErr: true},
		{name: "empty bus id", input: `{"type":"GPS_UPDATE","payload":{"busId":"","latitude":1,"longitude":2}}`, wantErr: true},
		{name: "missing longitude", input: `{"type":"GPS_UPDATE","payload":{"busId":"B1","latitude":1}}`, wantErr: true},
		{name: "string latitude", input: `{"type":"GPS_UPDATE","payload":{"busId":"B1","latitude":"1","longitude":2}}`, wantErr: true},
		{name: "bad timestamp", input: `{"type":"GPS_UPDATE","payload":{"busId":"B1","latitude":1,"longitude":2,"timestamp":"yesterday"}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, pos, err := DecodeMessage([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrProtocol) {
					t.Fatalf("DecodeMessage() error = %v, want ErrProtocol", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeMessage() unexpected error: %v", err)
			}
			if tt.wantNil {
				if pos != nil {
					t.Errorf("DecodeMessage() position = %+v, want nil", pos)
				}
				return
			}
			if pos.BusID != tt.busID || pos.Latitude != tt.lat || pos.Longitude != tt.lon {
				t.Errorf("position = %+v, want %s at %v,%v", pos, tt.busID, tt.lat, tt.lon)
			}
			if (pos.Speed == nil) != (tt.speed == nil) || (pos.Speed != nil && *pos.Speed != *tt.speed) {
				t.Errorf("speed = %v, want %v", pos.Speed, tt.speed)
			}
			if (pos.Timestamp == nil) != (tt.timestamp == nil) || (pos.Timestamp != nil && !pos.Timestamp.Equal(*tt.timestamp)) {
				t.Errorf("timestamp = %v, want %v", pos.Timestamp, tt.timestamp)
			}
		})
	}
}

func TestTrackingURL(t *testing.T) {
	tests := []struct {
		base    string
		target  string
		want    string
		wantErr bool
	}{
		{"ws://localhost:8084/ws/gps", "T1", "ws://localhost:8084/ws/gps?ticketId=T1", false},
		{"wss://api.example.com/ws/gps?lang=fr", "a b", "wss://api.example.com/ws/gps?lang=fr&ticketId=a+b", false},
		{"ws://localhost/ws/gps?ticketId=old", "new", "ws://localhost/ws/gps?ticketId=new", false},
		{"/ws/gps", "T1", "", true},
		{"://bad", "T1", "", true},
	}
	for _, tt := range tests {
		got, err := TrackingURL(tt.base, tt.target)
		if (err != nil) != tt.wantErr {
			t.Errorf("TrackingURL(%q, %q) error = %v, wantErr %v", tt.base, tt.target, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("TrackingURL(%q, %q) = %q, want %q", tt.base, tt.target, got, tt.want)
		}
	}
}

func floatPtr(f float64) *float64 { return &f }

func timePtr(t time.Time) *time.Time { return &t }
