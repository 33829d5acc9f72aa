// SPDX-License-Identifier: MIT

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxpipe_stage_jobs_total",
			Help: "Finished stage executions by stage and result.",
		},
		[]string{"stage", "result"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voxpipe_stage_duration_seconds",
			Help:    "Wall time of one stage execution for one file.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"stage"},
	)

	stalledResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voxpipe_stalled_resets_total",
			Help: "Stages reset to failed by the stall sweeper.",
		},
	)
)
