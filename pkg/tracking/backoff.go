package tracking

import (
	"math"
	"math/bits"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxAttempts = 5
)

// maxReconnectInterval bounds the doubled delay so the backoff's float
// arithmetic stays inside time.Duration.
const maxReconnectInterval = time.Duration(math.MaxInt64 / 2)

// newReconnectBackOff returns base, 2*base, 4*base, ... with no jitter, and
// backoff.Stop once maxAttempts delays have been handed out. Delays saturate
// at maxReconnectInterval.
func newReconnectBackOff(base time.Duration, maxAttempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = reconnectMaxInterval(base, maxAttempts)
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(maxAttempts))
}

// reconnectMaxInterval is base<<maxAttempts, or maxReconnectInterval when the
// shift would not fit.
func reconnectMaxInterval(base time.Duration, maxAttempts int) time.Duration {
	if base >= maxReconnectInterval {
		return maxReconnectInterval
	}
	if maxAttempts >= bits.LeadingZeros64(uint64(base))-1 {
		return maxReconnectInterval
	}
	return base << uint(maxAttempts)
}
