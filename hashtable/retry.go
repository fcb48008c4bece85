package hashtable

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxCASRetries bounds the retry loops in Set/Delete. Past this,
// contention is reported as TryLater rather than spun on forever.
const maxCASRetries = 64

// newContentionBackoff returns the spacing used between CAS retry
// attempts under contention: a short, capped exponential backoff
// rather than a bare spin, so a losing thread backs off instead of
// hammering the same cache line while the winner finishes.
func newContentionBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Nanosecond
	b.MaxInterval = 10 * time.Microsecond
	b.MaxElapsedTime = 0 // bounded by maxCASRetries, not elapsed time
	b.Multiplier = 1.5
	b.RandomizationFactor = 0.3
	return b
}

// backoffWait sleeps for the next interval bo produces, falling back
// to a minimal yield if bo reports it has stopped (should not happen
// given MaxElapsedTime is disabled above).
func backoffWait(bo backoff.BackOff) {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		d = time.Microsecond
	}
	time.Sleep(d)
}
