package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection instead of touching the Prometheus globals.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Provisioning run metrics
	IncrementProvisionRuns(outcome string)
	RecordPhaseDuration(phase string, duration time.Duration)

	// Placement resolution metrics
	AddPlacementsResolved(size string, count int)

	// Template decision metrics
	IncrementTemplateDecisions(templateID, rule string)

	// Naming protocol metrics
	IncrementNamingAttempts(attempt int, outcome string)

	// Creative metrics
	IncrementCreativeOutcomes(size, outcome string)

	// Ad server client metrics
	IncrementAdServerRequests(operation, outcome string)
	RecordAdServerLatency(operation string, duration time.Duration)
	RecordRateLimitWait(duration time.Duration)

	// Telemetry metrics
	IncrementTelemetryDropped(sink string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Provisioning run metrics
func (r *PrometheusRegistry) IncrementProvisionRuns(outcome string) {
	ProvisionRuns.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordPhaseDuration(phase string, duration time.Duration) {
	PhaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) AddPlacementsResolved(size string, count int) {
	PlacementsResolved.WithLabelValues(size).Add(float64(count))
}

func (r *PrometheusRegistry) IncrementTemplateDecisions(templateID, rule string) {
	TemplateDecisions.WithLabelValues(templateID, rule).Inc()
}

func (r *PrometheusRegistry) IncrementNamingAttempts(attempt int, outcome string) {
	NamingAttempts.WithLabelValues(attemptLabel(attempt), outcome).Inc()
}

func (r *PrometheusRegistry) IncrementCreativeOutcomes(size, outcome string) {
	CreativeOutcomes.WithLabelValues(size, outcome).Inc()
}

// Ad server client metrics
func (r *PrometheusRegistry) IncrementAdServerRequests(operation, outcome string) {
	AdServerRequests.WithLabelValues(operation, outcome).Inc()
}

func (r *PrometheusRegistry) RecordAdServerLatency(operation string, duration time.Duration) {
	AdServerLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) RecordRateLimitWait(duration time.Duration) {
	RateLimitWait.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementTelemetryDropped(sink string) {
	TelemetryDropped.WithLabelValues(sink).Inc()
}

// attemptLabel keeps label cardinality bounded.
func attemptLabel(attempt int) string {
	if attempt < 1 || attempt > 9 {
		return "other"
	}
	return string(rune('0' + attempt))
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementProvisionRuns(outcome string)                                {}
func (r *NoOpRegistry) RecordPhaseDuration(phase string, duration time.Duration)             {}
func (r *NoOpRegistry) AddPlacementsResolved(size string, count int)                         {}
func (r *NoOpRegistry) IncrementTemplateDecisions(templateID, rule string)                   {}
func (r *NoOpRegistry) IncrementNamingAttempts(attempt int, outcome string)                  {}
func (r *NoOpRegistry) IncrementCreativeOutcomes(size, outcome string)                       {}
func (r *NoOpRegistry) IncrementAdServerRequests(operation, outcome string)                  {}
func (r *NoOpRegistry) RecordAdServerLatency(operation string, duration time.Duration)       {}
func (r *NoOpRegistry) RecordRateLimitWait(duration time.Duration)                           {}
func (r *NoOpRegistry) IncrementTelemetryDropped(sink string)                                {}
