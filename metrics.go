// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vouchd

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type nodeMetrics struct {
	indexRuns         *prometheus.CounterVec // Index runs by outcome
	indexDuration     prometheus.Histogram   // Wall time per index run
	schedulerPasses   prometheus.Counter     // Completed scheduler passes
	schedulerFailures prometheus.Counter     // Scheduled runs that failed
}

func newNodeMetrics(promRegistry prometheus.Registerer) *nodeMetrics {
	if promRegistry == nil {
		return nil
	}
	promautoFactory := promauto.With(promRegistry)
	return &nodeMetrics{
		indexRuns: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vouchd_index_runs_total",
				Help: "number of index runs by outcome",
			},
			[]string{"outcome"},
		),
		indexDuration: promautoFactory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vouchd_index_duration_seconds",
				Help:    "wall time per index run",
				Buckets: prometheus.DefBuckets,
			},
		),
		schedulerPasses: promautoFactory.NewCounter(
			prometheus.CounterOpts{
				Name: "vouchd_scheduler_passes_total",
				Help: "number of completed reindex scheduler passes",
			},
		),
		schedulerFailures: promautoFactory.NewCounter(
			prometheus.CounterOpts{
				Name: "vouchd_scheduler_index_failures_total",
				Help: "number of scheduled index runs that failed",
			},
		),
	}
}

// observeIndex records one finished index run. Outcome is "indexed",
// "skipped", or the failure condition.
func (n *Node) observeIndex(outcome string, start time.Time) {
	if n.metrics == nil {
		return
	}
	n.metrics.indexRuns.WithLabelValues(outcome).Inc()
	n.metrics.indexDuration.Observe(time.Since(start).Seconds())
}
