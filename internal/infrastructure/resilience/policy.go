package resilience

import "time"

// Observer receives retry and breaker events for dependency dashboards.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveRetry(operation string, attempt int)
	ObserveBreakerState(operation, state string)
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// BreakerPolicy trips once FailureRatio of at least MinRequests calls fail
// within a closed interval.
type BreakerPolicy struct {
	Disabled         bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy

	// AttemptTimeout bounds each individual attempt. Zero leaves the caller's
	// deadline as the only bound.
	AttemptTimeout time.Duration

	Observer Observer
}

func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     400 * time.Millisecond,
			Multiplier:     2,
		},
		Breaker: BreakerPolicy{
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	}
}

func (p RetryPolicy) normalize(def RetryPolicy) RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	p.MaxBackoff = max(p.MaxBackoff, p.InitialBackoff)
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	wait := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		wait *= p.Multiplier
		if wait >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	return min(time.Duration(wait), p.MaxBackoff)
}

func (p BreakerPolicy) normalize(def BreakerPolicy) BreakerPolicy {
	if p.MinRequests == 0 {
		p.MinRequests = def.MinRequests
	}
	if p.FailureRatio <= 0 || p.FailureRatio > 1 {
		p.FailureRatio = def.FailureRatio
	}
	if p.OpenTimeout <= 0 {
		p.OpenTimeout = def.OpenTimeout
	}
	if p.HalfOpenMaxCalls == 0 {
		p.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return p
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	c.Retry = c.Retry.normalize(def.Retry)
	c.Breaker = c.Breaker.normalize(def.Breaker)
	c.AttemptTimeout = max(c.AttemptTimeout, 0)
	return c
}
