// SPDX-License-Identifier: MIT

package provider

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// limitedTransport blocks on the limiter before each request.
type limitedTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	return t.next.RoundTrip(req)
}

// NewHTTPClient builds the HTTP client every adapter uses: otel-instrumented
// transport, optional requests-per-second cap, per-call timeout. rps <= 0
// disables the limiter.
func NewHTTPClient(timeout time.Duration, rps float64) *http.Client {
	var transport http.RoundTripper = otelhttp.NewTransport(http.DefaultTransport)
	if rps > 0 {
		transport = &limitedTransport{
			limiter: rate.NewLimiter(rate.Limit(rps), 1),
			next:    transport,
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
