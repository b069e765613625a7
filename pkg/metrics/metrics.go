/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics registers the service's prometheus collectors. Collectors register on the
// default registry at init so both binaries expose them from their metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "trio2o"

var (
	JobsExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "jobs",
			Name:      "executed_total",
			Help:      "Number of job executions by type and final status.",
		},
		[]string{"type", "status"},
	)
	JobsRedoneTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "jobs",
			Name:      "redone_total",
			Help:      "Number of failed jobs re-enqueued by the redo sweep.",
		},
		[]string{"type"},
	)
	JobsExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "jobs",
			Name:      "expired_total",
			Help:      "Number of Running job rows swept to Fail after exceeding the run expiry.",
		},
		[]string{"type"},
	)
	SchedulingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "selection_duration_seconds",
			Help:      "Duration of destination pod selection.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"driver"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of gateway API requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "code"},
	)
	ForwardedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "forwarder",
			Name:      "requests_total",
			Help:      "Number of requests forwarded to pods by service type and status code.",
		},
		[]string{"service_type", "method", "code"},
	)
)

func init() {
	prometheus.MustRegister(
		JobsExecutedTotal,
		JobsRedoneTotal,
		JobsExpiredTotal,
		SchedulingDuration,
		RequestDuration,
		ForwardedRequestsTotal,
	)
}
