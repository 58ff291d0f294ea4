package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy defines retry behavior
type Policy struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	Jitter      bool

	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool
}

// DefaultPolicy returns a short exponential policy suited to local disk writes
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		InitialWait: 50 * time.Millisecond,
		MaxWait:     time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// LinearPolicy returns a fixed-wait policy
func LinearPolicy(maxAttempts int, wait time.Duration) *Policy {
	return &Policy{
		MaxAttempts: maxAttempts,
		InitialWait: wait,
		MaxWait:     wait,
		Multiplier:  1.0,
	}
}

// Result contains information about a retry run
type Result struct {
	Attempts      int
	Success       bool
	Error         error
	TotalDuration time.Duration
}

// Do executes fn until it succeeds, the policy is exhausted, the error is
// not retryable, or ctx is done.
func Do(ctx context.Context, policy *Policy, fn func() error) *Result {
	if policy == nil {
		policy = DefaultPolicy()
	}

	start := time.Now()
	result := &Result{}

	for attempt := 1; attempt <= max(policy.MaxAttempts, 1); attempt++ {
		result.Attempts = attempt

		err := fn()
		if err == nil {
			result.Success = true
			result.Error = nil
			break
		}
		result.Error = err

		if policy.Retryable != nil && !policy.Retryable(err) {
			break
		}
		if attempt >= policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			result.Error = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		case <-time.After(policy.wait(attempt)):
		}
	}

	result.TotalDuration = time.Since(start)
	return result
}

// wait calculates the backoff before the attempt following attempt
func (p *Policy) wait(attempt int) time.Duration {
	wait := float64(p.InitialWait) * math.Pow(p.Multiplier, float64(attempt-1))
	if wait > float64(p.MaxWait) {
		wait = float64(p.MaxWait)
	}
	if p.Jitter {
		wait += rand.Float64() * wait * 0.1 // 10% jitter
	}
	return time.Duration(wait)
}

// String returns a string representation of the result
func (r *Result) String() string {
	if r.Success {
		return fmt.Sprintf("Success after %d attempt(s) in %v", r.Attempts, r.TotalDuration)
	}
	return fmt.Sprintf("Failed after %d attempt(s) in %v: %v", r.Attempts, r.TotalDuration, r.Error)
}
