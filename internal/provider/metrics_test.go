// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		CapDelay:    time.Millisecond,
	}
}

func TestDoCountsResults(t *testing.T) {
	before := counterValue(t, requestsTotal.WithLabelValues("countprov", "success"))

	_, err := Do(context.Background(), fastPolicy(1), "countprov", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	after := counterValue(t, requestsTotal.WithLabelValues("countprov", "success"))
	assert.Equal(t, before+1, after)
}

func TestDoCountsRetries(t *testing.T) {
	beforeRetries := counterValue(t, retriesTotal.WithLabelValues("retryprov"))
	beforeErrors := counterValue(t, requestsTotal.WithLabelValues("retryprov", "error"))

	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), "retryprov", func(ctx context.Context) (string, error) {
		calls++
		return "", ErrTransient
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")

	assert.Equal(t, beforeRetries+2, counterValue(t, retriesTotal.WithLabelValues("retryprov")))
	assert.Equal(t, beforeErrors+1, counterValue(t, requestsTotal.WithLabelValues("retryprov", "error")))
}
