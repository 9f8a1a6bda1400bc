package tracking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketClient_EndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ticketIDs := make(chan string, 1)
	authHeaders := make(chan string, 1)
	received := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/gps" {
			http.NotFound(w, r)
			return
		}
		ticketIDs <- r.URL.Query().Get("ticketId")
		authHeaders <- r.Header.Get("Authorization")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteMessage(websocket.TextMessage, []byte(gpsUpdate)); err != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
		conn.ReadMessage()
	}))
	defer server.Close()

	c := New(Config{
		BaseURL:          "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/gps",
		HandshakeTimeout: time.Second,
		Header:           http.Header{"Authorization": []string{"Bearer token-1"}},
		Logger:           discardLogger,
	})
	events := recordEvents(c)
	defer c.Disconnect()

	c.Connect("ticket-9")
	events.expect(t, EventConnected)

	if got := <-ticketIDs; got != "ticket-9" {
		t.Errorf("ticketId = %q, want ticket-9", got)
	}
	if got := <-authHeaders; got != "Bearer token-1" {
		t.Errorf("Authorization = %q, want Bearer token-1", got)
	}

	ev := events.expect(t, EventLocation)[0]
	if ev.Position.BusID != "B1" || ev.Position.Latitude != 33.97 || ev.Position.Longitude != -6.85 {
		t.Errorf("position = %+v, want B1 at 33.97,-6.85", ev.Position)
	}

	if err := c.Send(map[string]string{"type": "PING"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case got := <-received:
		if got != `{"type":"PING"}` {
			t.Errorf("server received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the message")
	}
}

func TestWebSocketDialer_HandshakeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	d := NewWebSocketDialer(time.Second, nil)
	_, err := d.Dial(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"))
	if err == nil {
		t.Fatal("Dial() should fail on a rejected handshake")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error = %v, want status 403 mentioned", err)
	}
}
