// SPDX-License-Identifier: MIT

package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxpipe_provider_requests_total",
			Help: "Completed provider executions by provider and result.",
		},
		[]string{"provider", "result"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxpipe_provider_retries_total",
			Help: "Retried provider calls by provider.",
		},
		[]string{"provider"},
	)
)
