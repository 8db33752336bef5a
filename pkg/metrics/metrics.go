package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	ExecutorsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedbackend_executors_total",
			Help: "Number of currently registered executors",
		},
	)

	TotalCoreCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedbackend_total_cores",
			Help: "Aggregate core count across all registered executors",
		},
	)

	FreeCoreCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedbackend_free_cores",
			Help: "Aggregate free core count across all registered executors",
		},
	)

	ExecutorsRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedbackend_executors_registered_total",
			Help: "Total number of successful executor registrations",
		},
	)

	ExecutorsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedbackend_executors_rejected_total",
			Help: "Total number of rejected registration attempts by reason",
		},
		[]string{"reason"},
	)

	ExecutorsRemovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedbackend_executors_removed_total",
			Help: "Total number of executor removals by reason",
		},
		[]string{"reason"},
	)

	// Offer metrics
	OffersGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedbackend_offers_generated_total",
			Help: "Total number of WorkerOffer rounds generated, single or bulk",
		},
	)

	OfferedCoresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedbackend_offered_cores_total",
			Help: "Total number of cores handed to the cluster scheduler across all offers",
		},
	)

	// Launch pump metrics
	LaunchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedbackend_launch_queue_depth",
			Help: "Number of TaskDescriptions currently queued in the launch pump",
		},
	)

	LaunchesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedbackend_launches_sent_total",
			Help: "Total number of LaunchTask messages successfully sent to an executor",
		},
	)

	LaunchesFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedbackend_launches_failed_total",
			Help: "Total number of LaunchTask send failures by cause",
		},
		[]string{"cause"},
	)

	LaunchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schedbackend_launch_latency_seconds",
			Help:    "Time a TaskDescription spends in the launch queue before being sent",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Status update metrics
	StatusUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedbackend_status_updates_total",
			Help: "Total number of StatusUpdate messages received by task state",
		},
		[]string{"state"},
	)

	// Coordinator metrics
	CoordinatorEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedbackend_coordinator_events_total",
			Help: "Total number of events handled by the Coordinator event loop by kind",
		},
		[]string{"kind"},
	)

	CoordinatorHandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schedbackend_coordinator_handler_duration_seconds",
			Help:    "Time spent inside a single Coordinator event handler",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	CoordinatorPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedbackend_coordinator_panics_recovered_total",
			Help: "Total number of handler panics recovered by the Coordinator's UnexpectedEvent policy",
		},
	)

	RegistrationRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedbackend_registration_rate_limited_total",
			Help: "Total number of RegisterExecutor attempts dropped by the per-address rate limiter",
		},
	)
)

func init() {
	prometheus.MustRegister(ExecutorsTotal)
	prometheus.MustRegister(TotalCoreCount)
	prometheus.MustRegister(FreeCoreCount)
	prometheus.MustRegister(ExecutorsRegisteredTotal)
	prometheus.MustRegister(ExecutorsRejectedTotal)
	prometheus.MustRegister(ExecutorsRemovedTotal)

	prometheus.MustRegister(OffersGeneratedTotal)
	prometheus.MustRegister(OfferedCoresTotal)

	prometheus.MustRegister(LaunchQueueDepth)
	prometheus.MustRegister(LaunchesSentTotal)
	prometheus.MustRegister(LaunchesFailedTotal)
	prometheus.MustRegister(LaunchLatency)

	prometheus.MustRegister(StatusUpdatesTotal)

	prometheus.MustRegister(CoordinatorEventsTotal)
	prometheus.MustRegister(CoordinatorHandlerDuration)
	prometheus.MustRegister(CoordinatorPanicsTotal)
	prometheus.MustRegister(RegistrationRateLimitedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
