// SPDX-License-Identifier: MIT

// Package provider holds the error taxonomy shared by every external API
// adapter and the single retry combinator all of them call through.
//
// Adapters map HTTP outcomes onto these sentinels with
// fmt.Errorf("...: %w", sentinel); callers branch with errors.Is.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for provider interaction failures.
var (
	// ErrTransient indicates a failure worth retrying (5xx, network reset).
	ErrTransient = errors.New("transient provider error")

	// ErrPermanent indicates a failure that will not heal on retry.
	ErrPermanent = errors.New("permanent provider error")

	// ErrRateLimit indicates the provider rate limit was hit (retryable).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrTimeout indicates a request exceeded its deadline.
	ErrTimeout = errors.New("request timeout")

	// ErrQuotaExceeded indicates the account quota is exhausted (not retryable).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrAuthFailed indicates the API credentials were rejected.
	ErrAuthFailed = errors.New("authentication failed")
)

// Retryable reports whether err is worth another attempt. Rate limits and
// transient failures qualify; everything else, including timeouts of the
// whole call, does not.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimit)
}

// Classify maps an HTTP status code onto the taxonomy. body is a short
// excerpt of the response body carried for diagnostics.
func Classify(statusCode int, body string) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("status %d: %s: %w", statusCode, body, ErrRateLimit)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("status %d: %s: %w", statusCode, body, ErrAuthFailed)
	case statusCode == http.StatusPaymentRequired:
		return fmt.Errorf("status %d: %s: %w", statusCode, body, ErrQuotaExceeded)
	case statusCode >= 500:
		return fmt.Errorf("status %d: %s: %w", statusCode, body, ErrTransient)
	case statusCode >= 400:
		return fmt.Errorf("status %d: %s: %w", statusCode, body, ErrPermanent)
	default:
		return fmt.Errorf("unexpected status %d: %s: %w", statusCode, body, ErrPermanent)
	}
}

// ClassifyTransport maps a transport-level error (request never produced a
// response) onto the taxonomy.
func ClassifyTransport(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%v: %w", err, ErrTimeout)
	case errors.Is(err, context.Canceled):
		return err
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%v: %w", err, ErrTimeout)
		}
		// Connection resets, DNS hiccups and friends heal on retry.
		return fmt.Errorf("%v: %w", err, ErrTransient)
	}
}
