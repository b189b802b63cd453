package callbackqueue

import "time"

// DefaultQueueSize is the bounded FIFO capacity used if the builder isn't
// given one explicitly.
const DefaultQueueSize = 1000

// DefaultMaxRetries is the number of delivery attempts, beyond the first,
// before an item is dropped.
const DefaultMaxRetries = 50

// Policy defines the retry backoff schedule applied to a failed callback
// delivery: attempts are spaced by an exponentially growing delay, up to a
// fixed cap, until MaxRetries is exhausted.
type Policy struct {
	// MaxRetries is the number of retries (not counting the first
	// attempt) allowed before an item is dropped.
	MaxRetries uint32

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64

	// MaxDelay caps the computed delay, however many attempts have
	// elapsed.
	MaxDelay time.Duration
}

// DefaultPolicy returns the policy spec §6 specifies: base=1s, factor=1.5,
// cap=1h, max_retries=50.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    DefaultMaxRetries,
		BaseDelay:     time.Second,
		BackoffFactor: 1.5,
		MaxDelay:      time.Hour,
	}
}

// ComputeDelay returns the delay to wait before retry number attempt (1 for
// the first retry after the initial failed attempt, 2 for the second, and
// so on).
func (p Policy) ComputeDelay(attempt uint32) time.Duration {
	delay := float64(p.BaseDelay)
	for i := uint32(1); i < attempt; i++ {
		delay *= p.BackoffFactor
		if delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if delay >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Exhausted reports whether attempt has used up the policy's retry budget.
func (p Policy) Exhausted(attempt uint32) bool {
	return attempt > p.MaxRetries
}
