package services

import (
	"math/rand/v2"
	"time"
)

// backoffJitter is the fraction of the delay randomly added or removed.
const backoffJitter = 0.25

// Backoff computes retry delays for failed propagation attempts.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	// Jitter returns a value in [0, 1). Defaults to rand.Float64.
	Jitter func() float64
}

// Delay returns the wait before attempt number attempt (1-based):
// Initial * 2^(attempt-1), capped at Max, with ±25% jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Initial
	for i := 1; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}

	jitter := b.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	d = time.Duration(float64(d) + (jitter()*2-1)*float64(d)*backoffJitter)
	if d <= 0 {
		d = b.Initial
	}
	return d
}
