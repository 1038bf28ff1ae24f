package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total API requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adprovision_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adprovision_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// provisioning runs labelled by outcome (success, degraded, failed)
	ProvisionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adprovision_runs_total",
			Help: "Total provisioning runs",
		},
		[]string{"outcome"},
	)

	// duration of each provisioning phase
	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adprovision_phase_duration_seconds",
			Help:    "Duration of provisioning phases",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"phase"},
	)

	// placement ids resolved per canonical size key
	PlacementsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adprovision_placements_resolved_total",
			Help: "Total placement ids resolved per size",
		},
		[]string{"size"},
	)

	// template decisions per template id and matching rule
	TemplateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adprovision_template_decisions_total",
			Help: "Total template decisions",
		},
		[]string{"template", "rule"},
	)

	// line item naming attempts labelled by outcome
	NamingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adprovision_naming_attempts_total",
			Help: "Total line item create attempts by outcome",
		},
		[]string{"attempt", "outcome"},
	)

	// creative provisioning outcomes per size
	CreativeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adprovision_creatives_total",
			Help: "Total creative create+associate outcomes",
		},
		[]string{"size", "outcome"},
	)

	// remote ad server calls labelled by operation and outcome
	AdServerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adprovision_adserver_requests_total",
			Help: "Total ad server API calls",
		},
		[]string{"operation", "outcome"},
	)

	// latency of remote ad server calls
	AdServerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adprovision_adserver_request_duration_seconds",
			Help:    "Duration of ad server API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// time spent waiting on the shared ad server rate limiter
	RateLimitWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adprovision_ratelimit_wait_seconds",
			Help:    "Time spent waiting for an ad server rate limit token",
			Buckets: prometheus.DefBuckets,
		},
	)

	// telemetry events dropped because a sink buffer was full
	TelemetryDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adprovision_telemetry_dropped_total",
			Help: "Total telemetry events dropped",
		},
		[]string{"sink"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		ProvisionRuns,
		PhaseDuration,
		PlacementsResolved,
		TemplateDecisions,
		NamingAttempts,
		CreativeOutcomes,
		AdServerRequests,
		AdServerLatency,
		RateLimitWait,
		TelemetryDropped,
	)
}
