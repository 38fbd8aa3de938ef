package transport

import (
	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// newBackOff builds the reconnect schedule: base, 2x base, 4x base, ...
// capped at ReconnectCap, with no jitter.
func newBackOff(config Config, clock clockwork.Clock) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = config.ReconnectBase
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = config.ReconnectCap
	exp.MaxElapsedTime = 0
	exp.Clock = clock
	exp.Reset()

	if config.MaxAttempts <= 0 {
		return exp
	}
	return backoff.WithMaxRetries(exp, uint64(config.MaxAttempts))
}
