package common

import (
	"fmt"
	"math"
	"time"
)

// RetryPolicy bounds how a client session (re)establishes its connection.
// It is plain configuration; the client lifecycle manager applies it.
type RetryPolicy struct {
	// MaxAttempts is the number of consecutive failed connection attempts
	// after which the session gives up (>= 1)
	MaxAttempts int
	// InitialDelay is the wait after the first failed attempt
	InitialDelay time.Duration
	// BackoffMultiplier grows the delay after every further failure (>= 1)
	BackoffMultiplier float64
	// MaxDelay caps the delay
	MaxDelay time.Duration
	// PerAttemptTimeout bounds a single connection attempt (0 = only the caller's context)
	PerAttemptTimeout time.Duration
}

// DefaultRetryPolicy returns the policy used when nothing is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          5 * time.Second,
		PerAttemptTimeout: 10 * time.Second,
	}
}

// Delay returns min(InitialDelay * BackoffMultiplier^k, MaxDelay) for k >= 0
func (p RetryPolicy) Delay(k int) time.Duration {
	if k < 0 {
		k = 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(k))
	if math.IsNaN(d) || math.IsInf(d, 0) || d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Validate checks the policy for values the lifecycle manager cannot apply
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("retry policy: max attempts must be >= 1, got %d", p.MaxAttempts)
	case p.InitialDelay < 0:
		return fmt.Errorf("retry policy: initial delay must be >= 0, got %s", p.InitialDelay)
	case p.BackoffMultiplier < 1 || math.IsNaN(p.BackoffMultiplier):
		return fmt.Errorf("retry policy: backoff multiplier must be >= 1, got %g", p.BackoffMultiplier)
	case p.MaxDelay < p.InitialDelay:
		return fmt.Errorf("retry policy: max delay %s is below initial delay %s", p.MaxDelay, p.InitialDelay)
	case p.PerAttemptTimeout < 0:
		return fmt.Errorf("retry policy: per attempt timeout must be >= 0, got %s", p.PerAttemptTimeout)
	}
	return nil
}
