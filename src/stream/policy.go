package stream

import (
	"time"

	"multisig-observer/src/models"

	"github.com/juju/retry"
)

// DefaultReconnectDelay is the pause before reconnecting after the
// coordinator closed the stream on an otherwise healthy network.
const DefaultReconnectDelay = 500 * time.Millisecond

// ReconnectPolicy picks the delay before reconnect attempt n (0-based). The
// attempt count resets once a connection opens.
type ReconnectPolicy interface {
	Delay(attempt int) time.Duration
}

// FixedDelay waits the same time before every attempt.
type FixedDelay time.Duration

func (d FixedDelay) Delay(int) time.Duration { return time.Duration(d) }

// ExponentialBackoff doubles the delay per attempt between Min and Max,
// optionally with jitter so that many clients do not retry in lockstep.
type ExponentialBackoff struct {
	Min     time.Duration
	Max     time.Duration
	Jitter  bool
	backoff func(time.Duration, int) time.Duration
}

func NewExponentialBackoff(min, max time.Duration, jitter bool) *ExponentialBackoff {
	return &ExponentialBackoff{
		Min:     min,
		Max:     max,
		Jitter:  jitter,
		backoff: retry.ExpBackoff(min, max, 2, jitter),
	}
}

func (b *ExponentialBackoff) Delay(attempt int) time.Duration {
	return b.backoff(b.Min, attempt)
}

// PolicyFromConfig builds the policy named in the stream configuration.
func PolicyFromConfig(cfg models.MStreamConfig) ReconnectPolicy {
	delay := time.Duration(cfg.ReconnectDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	if cfg.Backoff == "exponential" {
		return NewExponentialBackoff(delay, time.Duration(cfg.MaxReconnectDelayMs)*time.Millisecond, true)
	}
	return FixedDelay(delay)
}
