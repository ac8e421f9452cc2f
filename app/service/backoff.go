package service

import (
	"math/rand/v2"
	"time"
)

const (
	defaultBackoffBase = 30 * time.Second
	defaultBackoffCap  = time.Hour
)

// nextBackoff returns the delay before the attempt after attemptNumber:
// base × 2^(attemptNumber−1), capped, plus up to 25% random jitter so
// endpoints that failed together don't retry together.
func nextBackoff(attemptNumber int32, base, cap time.Duration) time.Duration {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if cap <= 0 {
		cap = defaultBackoffCap
	}
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := base
	for i := int32(1); i < attemptNumber; i++ {
		if delay >= cap/2 {
			delay = cap
			break
		}
		delay *= 2
	}
	if delay > cap {
		delay = cap
	}

	jitter := time.Duration(rand.Int64N(int64(delay)/4 + 1))
	return delay + jitter
}
