package tracking

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeDialer struct {
	mu        sync.Mutex
	endpoints []string
	conns     []*fakeConn
	err       error
}

func (d *fakeDialer) Dial(_ context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints = append(d.endpoints, endpoint)
	if d.err != nil {
		return nil, d.err
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.endpoints)
}

func (d *fakeDialer) endpoint(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endpoints[i]
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type fakeConn struct {
	incoming  chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	readErr error
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.incoming:
		return data, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeWith(nil)
	return nil
}

// closeWith simulates the peer going away; err is what the next read returns.
func (c *fakeConn) closeWith(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.readErr = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *fakeConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, w := range c.written {
		out[i] = string(w)
	}
	return out
}

type eventLog struct {
	ch chan Event
}

func recordEvents(c *Client) *eventLog {
	l := &eventLog{ch: make(chan Event, 64)}
	c.AddListener("test", func(ev Event) { l.ch <- ev })
	return l
}

func (l *eventLog) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-l.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func (l *eventLog) expect(t *testing.T, want ...EventType) []Event {
	t.Helper()
	got := make([]Event, 0, len(want))
	for i, typ := range want {
		ev := l.next(t)
		if ev.Type != typ {
			t.Fatalf("event %d = %s (err=%v), want %s", i, ev.Type, ev.Err, typ)
		}
		got = append(got, ev)
	}
	return got
}

func (l *eventLog) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-l.ch:
		t.Fatalf("unexpected event %s (err=%v)", ev.Type, ev.Err)
	case <-time.After(wait):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func blockUntilTimer(t *testing.T, fc *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("no retry timer scheduled: %v", err)
	}
}

func newTestClient(d Dialer, fc *clockwork.FakeClock) *Client {
	return New(Config{
		BaseURL: "ws://tracking.test/ws/gps",
		Dialer:  d,
		Clock:   fc,
		Logger:  discardLogger,
	})
}
