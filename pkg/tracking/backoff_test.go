package tracking

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func TestNewReconnectBackOff_DefaultSchedule(t *testing.T) {
	b := newReconnectBackOff(time.Second, 5)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Errorf("delay %d = %v, want %v", i+1, got, w)
		}
	}
	if got := b.NextBackOff(); got != backoff.Stop {
		t.Errorf("delay after budget = %v, want backoff.Stop", got)
	}
}

func TestNewReconnectBackOff_LargeAttemptCount(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Duration
		attempts int
	}{
		{"one second forty attempts", time.Second, 40},
		{"one second sixty four attempts", time.Second, 64},
		{"one millisecond two hundred attempts", time.Millisecond, 200},
		{"huge base", time.Duration(1 << 61), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newReconnectBackOff(tt.base, tt.attempts)
			prev := time.Duration(0)
			for i := 0; i < tt.attempts; i++ {
				got := b.NextBackOff()
				if got == backoff.Stop {
					t.Fatalf("delay %d = backoff.Stop, want a delay", i+1)
				}
				if got <= 0 {
					t.Fatalf("delay %d = %v, want positive", i+1, got)
				}
				if got < prev {
					t.Fatalf("delay %d = %v shrank from %v", i+1, got, prev)
				}
				if i < 20 && tt.base < time.Second*2 {
					if want := tt.base << uint(i); got != want {
						t.Errorf("delay %d = %v, want %v", i+1, got, want)
					}
				}
				prev = got
			}
			if got := b.NextBackOff(); got != backoff.Stop {
				t.Errorf("delay after budget = %v, want backoff.Stop", got)
			}
		})
	}
}

func TestReconnectMaxInterval(t *testing.T) {
	if got := reconnectMaxInterval(time.Second, 5); got != 32*time.Second {
		t.Errorf("reconnectMaxInterval(1s, 5) = %v, want 32s", got)
	}
	if got := reconnectMaxInterval(time.Second, 40); got != maxReconnectInterval {
		t.Errorf("reconnectMaxInterval(1s, 40) = %v, want %v", got, maxReconnectInterval)
	}
	if got := reconnectMaxInterval(time.Second, 32); got <= 0 {
		t.Errorf("reconnectMaxInterval(1s, 32) = %v, want positive", got)
	}
}
