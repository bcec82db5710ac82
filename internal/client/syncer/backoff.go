package syncer

import "time"

const (
	DefaultBackoffBase    = 2 * time.Second
	DefaultBackoffCeiling = 5 * time.Minute
	DefaultMaxRetries     = 5
)

// BackoffPolicy schedules retries of failed operations.
type BackoffPolicy struct {
	Base       time.Duration
	Ceiling    time.Duration
	MaxRetries int
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:       DefaultBackoffBase,
		Ceiling:    DefaultBackoffCeiling,
		MaxRetries: DefaultMaxRetries,
	}
}

func (p BackoffPolicy) normalized() BackoffPolicy {
	if p.Base <= 0 {
		p.Base = DefaultBackoffBase
	}
	if p.Ceiling < p.Base {
		p.Ceiling = p.Base
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	return p
}

// Backoff returns min(2^n * Base, Ceiling). It is non-decreasing in n and
// never overflows.
func (p BackoffPolicy) Backoff(n int) time.Duration {
	p = p.normalized()
	d := p.Base
	for i := 0; i < n; i++ {
		if d >= p.Ceiling/2 {
			return p.Ceiling
		}
		d *= 2
	}
	return min(d, p.Ceiling)
}

// NextAttempt is when an operation that has now failed retryCount times may
// be tried again.
func (p BackoffPolicy) NextAttempt(retryCount int, now time.Time) time.Time {
	return now.Add(p.Backoff(retryCount))
}
