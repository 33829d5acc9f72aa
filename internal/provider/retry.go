// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/skeidel/voxpipe/internal/log"
)

// Policy is the one retry configuration used against every provider.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // first backoff
	CapDelay    time.Duration // backoff ceiling
	RetryOn     func(error) bool
	OnRetry     func(attempt int, err error)
}

// DefaultPolicy matches the pipeline defaults: 8 retries, exponential
// backoff from 1s capped at 60s, retrying only transient classifications.
func DefaultPolicy(maxRetries int) Policy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return Policy{
		MaxAttempts: maxRetries + 1,
		BaseDelay:   time.Second,
		CapDelay:    60 * time.Second,
		RetryOn:     Retryable,
	}
}

// Do runs fn under the policy. The context bounds the whole execution
// including backoff sleeps; fn owns its own per-call timeout.
func Do[T any](ctx context.Context, p Policy, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	retryOn := p.RetryOn
	if retryOn == nil {
		retryOn = Retryable
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	cap := p.CapDelay
	if cap < base {
		cap = base
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	policy := retrypolicy.Builder[T]().
		HandleIf(func(_ T, err error) bool { return err != nil && retryOn(err) }).
		WithBackoff(base, cap).
		WithJitterFactor(0.25).
		WithMaxAttempts(maxAttempts).
		OnRetry(func(e failsafe.ExecutionEvent[T]) {
			retriesTotal.WithLabelValues(name).Inc()
			if p.OnRetry != nil {
				p.OnRetry(e.Attempts(), e.LastError())
			}
			logger := log.WithComponent("retry")
			logger.Warn().
				Str(log.FieldProvider, name).
				Int(log.FieldAttempt, e.Attempts()).
				Err(e.LastError()).
				Msg("retrying provider call")
		}).
		Build()

	out, err := failsafe.NewExecutor[T](policy).WithContext(ctx).GetWithExecution(
		func(exec failsafe.Execution[T]) (T, error) {
			return fn(exec.Context())
		})
	result := "success"
	if err != nil {
		result = "error"
	}
	requestsTotal.WithLabelValues(name, result).Inc()
	return out, err
}
