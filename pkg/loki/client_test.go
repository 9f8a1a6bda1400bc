package loki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"urbanmove/pkg/types"
)

func samplePositions() []types.PositionEvent {
	speed := 38.5
	ts := time.Date(2024, 1, 15, 10, 29, 45, 0, time.UTC)
	return []types.PositionEvent{
		{BusID: "B1", Latitude: 33.97, Longitude: -6.85, Speed: &speed, Timestamp: &ts},
		{BusID: "B2", Latitude: 34.01, Longitude: -6.83},
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:3100/", "user", "pass")

	if client.baseURL != "http://localhost:3100" {
		t.Errorf("baseURL = %q, want %q", client.baseURL, "http://localhost:3100")
	}
	if client.username != "user" || client.password != "pass" {
		t.Errorf("credentials = %q/%q", client.username, client.password)
	}
}

func TestSendPositions_MockServer(t *testing.T) {
	var receivedBody []byte
	var receivedHeaders http.Header
	var receivedPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		receivedHeaders = r.Header
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "")
	if err := client.SendPositions(context.Background(), "T-42", samplePositions()); err != nil {
		t.Fatalf("SendPositions failed: %v", err)
	}

	if receivedPath != "/loki/api/v1/push" {
		t.Errorf("path = %s, want /loki/api/v1/push", receivedPath)
	}
	if got := receivedHeaders.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", got)
	}
	if got := receivedHeaders.Get("User-Agent"); got != "urbanmove/1.0.0" {
		t.Errorf("User-Agent = %s, want urbanmove/1.0.0", got)
	}

	var pushReq PushRequest
	if err := json.Unmarshal(receivedBody, &pushReq); err != nil {
		t.Fatalf("Failed to parse request body: %v", err)
	}
	if len(pushReq.Streams) != 1 {
		t.Fatalf("Expected 1 stream, got %d", len(pushReq.Streams))
	}
	stream := pushReq.Streams[0]

	expectedLabels := map[string]string{
		"job":       "urbanmove",
		"service":   "bus-tracking",
		"target_id": "T-42",
	}
	for key, expected := range expectedLabels {
		if stream.Stream[key] != expected {
			t.Errorf("Stream label %q = %q, want %q", key, stream.Stream[key], expected)
		}
	}

	if len(stream.Values) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(stream.Values))
	}

	first := stream.Values[0]
	if first[0] != "1705314585000000000" {
		t.Errorf("first entry timestamp = %s, want fix time in nanoseconds", first[0])
	}

	var line map[string]interface{}
	if err := json.Unmarshal([]byte(first[1]), &line); err != nil {
		t.Fatalf("Failed to parse log content JSON: %v", err)
	}
	if line["bus_id"] != "B1" || line["target_id"] != "T-42" {
		t.Errorf("line = %v", line)
	}
	if line["speed"] != 38.5 || line["recorded_at"] != "2024-01-15T10:29:45Z" {
		t.Errorf("optional fields = %v / %v", line["speed"], line["recorded_at"])
	}

	var second map[string]interface{}
	if err := json.Unmarshal([]byte(stream.Values[1][1]), &second); err != nil {
		t.Fatalf("Failed to parse log content JSON: %v", err)
	}
	if _, ok := second["speed"]; ok {
		t.Error("speed should be omitted when unknown")
	}
	if _, ok := second["recorded_at"]; ok {
		t.Error("recorded_at should be omitted when unknown")
	}
}

func TestSendPositions_Authentication(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		pass     string
		wantAuth bool
	}{
		{"with credentials", "testuser", "testpass", true},
		{"without credentials", "", "", false},
		{"user only", "testuser", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var authHeader string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				authHeader = r.Header.Get("Authorization")
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			if err := NewClient(server.URL, tt.user, tt.pass).SendPositions(context.Background(), "T1", samplePositions()); err != nil {
				t.Fatalf("SendPositions failed: %v", err)
			}
			if got := strings.HasPrefix(authHeader, "Basic "); got != tt.wantAuth {
				t.Errorf("Authorization = %q, want basic auth %v", authHeader, tt.wantAuth)
			}
		})
	}
}

func TestSendPositions_ErrorOnNon2xx(t *testing.T) {
	tests := []struct {
		statusCode int
		expectErr  bool
	}{
		{http.StatusOK, false},
		{http.StatusNoContent, false},
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.statusCode), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			err := NewClient(server.URL, "", "").SendPositions(context.Background(), "T1", samplePositions())
			if tt.expectErr && err == nil {
				t.Errorf("Expected error for status %d, got nil", tt.statusCode)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Unexpected error for status %d: %v", tt.statusCode, err)
			}
		})
	}
}

func TestSendPositions_Empty(t *testing.T) {
	var receivedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := NewClient(server.URL, "", "").SendPositions(context.Background(), "T1", nil); err != nil {
		t.Fatalf("SendPositions failed: %v", err)
	}

	var pushReq PushRequest
	if err := json.Unmarshal(receivedBody, &pushReq); err != nil {
		t.Fatalf("Failed to parse request body: %v", err)
	}
	if len(pushReq.Streams[0].Values) != 0 {
		t.Errorf("Expected 0 log entries, got %d", len(pushReq.Streams[0].Values))
	}
}

func TestSendPositions_ServerUnavailable(t *testing.T) {
	client := NewClient("http://127.0.0.1:59999", "", "")
	if err := client.SendPositions(context.Background(), "T1", samplePositions()); err == nil {
		t.Error("Expected error when server is unavailable, got nil")
	}
}

func TestSendPositions_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewClient(server.URL, "", "").SendPositions(ctx, "T1", samplePositions()); err == nil {
		t.Error("Expected error when context is cancelled, got nil")
	}
}
