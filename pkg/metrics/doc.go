/*
Package metrics provides Prometheus metrics collection and exposition for the
scheduler backend.

The metrics package defines and registers all backend metrics using the
Prometheus client library, providing observability into executor
registration, core accounting, offer generation, and the launch pipeline.
Metrics are exposed via an HTTP endpoint for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Registry: executors, total/free cores      │          │
	│  │  Offers: rounds generated, cores offered    │          │
	│  │  Launch pump: queue depth, sent, failed     │          │
	│  │  Coordinator: events handled, panics        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Registry Metrics:

schedbackend_executors_total:
  - Type: Gauge
  - Description: Number of currently registered executors

schedbackend_total_cores / schedbackend_free_cores:
  - Type: Gauge
  - Description: Aggregate total/free core count across all executors

schedbackend_executors_registered_total:
  - Type: Counter
  - Description: Total successful RegisterExecutor calls

schedbackend_executors_rejected_total{reason}:
  - Type: Counter
  - Description: Rejected registration attempts by reason (duplicate
    executor id, malformed hostPort); rate-limited attempts are counted
    in schedbackend_registration_rate_limited_total instead

schedbackend_executors_removed_total{reason}:
  - Type: Counter
  - Description: Executor removals by reason (peer terminated, peer
    disconnected, peer shutdown, or the reason text passed to an explicit
    removeExecutor)

Offer Metrics:

schedbackend_offers_generated_total:
  - Type: Counter
  - Description: WorkerOffer rounds generated, single or bulk

schedbackend_offered_cores_total:
  - Type: Counter
  - Description: Cores handed to the cluster scheduler across all offers

Launch Pump Metrics:

schedbackend_launch_queue_depth:
  - Type: Gauge
  - Description: TaskDescriptions currently queued

schedbackend_launches_sent_total / schedbackend_launches_failed_total{cause}:
  - Type: Counter
  - Description: LaunchTask outcomes; cause is "lookup" or "send"

schedbackend_launch_latency_seconds:
  - Type: Histogram
  - Description: Time a task spends queued before being sent

Coordinator Metrics:

schedbackend_coordinator_events_total{kind}:
  - Type: Counter
  - Description: Events handled by the event loop, by message kind

schedbackend_coordinator_handler_duration_seconds{kind}:
  - Type: Histogram
  - Description: Time spent inside a single handler invocation

schedbackend_coordinator_panics_recovered_total:
  - Type: Counter
  - Description: Handler panics recovered under the UnexpectedEvent policy

schedbackend_registration_rate_limited_total:
  - Type: Counter
  - Description: RegisterExecutor attempts dropped by the per-address
    limiter before reaching the Coordinator

# Usage

Updating Gauge Metrics:

	import "github.com/fluxcompute/schedulerbackend/pkg/metrics"

	metrics.ExecutorsTotal.Set(5)
	metrics.FreeCoreCount.Set(12)

Updating Counter Metrics:

	metrics.ExecutorsRegisteredTotal.Inc()
	metrics.ExecutorsRemovedTotal.WithLabelValues("peer disconnected").Inc()

Recording Histogram Observations:

	timer := metrics.NewTimer()
	// ... dequeue and send ...
	timer.ObserveDuration(metrics.LaunchLatency)

Using Timer with Labels:

	timer := metrics.NewTimer()
	// ... handle one coordinator event ...
	timer.ObserveDurationVec(metrics.CoordinatorHandlerDuration, "StatusUpdate")

# Integration Points

This package integrates with:

  - pkg/registry: Collector polls executor/core counts
  - pkg/coordinator: increments registration/removal/offer counters
  - pkg/launchpump: increments launch sent/failed counters and queue depth
  - Prometheus: scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init(), MustRegister panics on duplicate
  - No runtime registration needed

Label Discipline:
  - Labels are never executor or task IDs, to keep cardinality low; cause,
    kind and the rejection reason are fixed sets, while the removal reason
    also carries whatever text callers pass to removeExecutor

Timer Pattern:
  - Create timer at operation start, observe once at completion

# Monitoring

Prometheus Queries (PromQL):

Registry Health:
  - Free core ratio: schedbackend_free_cores / schedbackend_total_cores
  - Removal rate: rate(schedbackend_executors_removed_total[5m])

Launch Pipeline:
  - Launch failure rate: rate(schedbackend_launches_failed_total[5m])
  - Queue backlog: schedbackend_launch_queue_depth
  - p95 launch latency: histogram_quantile(0.95, schedbackend_launch_latency_seconds_bucket)

Coordinator Health:
  - Panic rate: rate(schedbackend_coordinator_panics_recovered_total[5m])
  - p99 handler latency by kind: histogram_quantile(0.99, schedbackend_coordinator_handler_duration_seconds_bucket)

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
