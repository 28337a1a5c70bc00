package push

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newReconnectBackoff builds the exponential-backoff policy for streaming
// reconnects: 1s initial, factor 2, capped at 60s, ±20% jitter, retried
// forever (the manager itself counts consecutive failures to decide when to
// give up and report a nonretryable error).
func newReconnectBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// maxConsecutiveFailures is how many reconnect attempts in a row are
// tolerated before the manager reports PUSH_NONRETRYABLE_ERROR and stops
// trying.
const maxConsecutiveFailures = 10
