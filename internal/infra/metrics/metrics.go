package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadpipe_events_ingested_total",
			Help: "Total number of raw events stored by the ingest API",
		},
		[]string{"source"},
	)

	eventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadpipe_events_processed_total",
			Help: "Total number of raw events closed by the pipeline, by outcome",
		},
		[]string{"outcome"},
	)

	eventDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadpipe_event_duration_seconds",
			Help:    "Duration of one event through the pipeline",
			Buckets: prometheus.DefBuckets,
		},
	)

	stepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadpipe_event_failures_total",
			Help: "Fatal step failures that sent an event back for retry",
		},
		[]string{"step"},
	)

	sideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadpipe_side_effect_failures_total",
			Help: "Best-effort step failures that were logged and skipped",
		},
		[]string{"step"},
	)

	leadsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadpipe_leads_created_total",
			Help: "Total number of new leads inserted",
		},
	)

	leadAssignments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadpipe_lead_assignments_total",
			Help: "Total number of user lead assignments created",
		},
	)

	eventsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadpipe_events_retried_total",
			Help: "Deliveries republished for another attempt or dead-lettered",
		},
		[]string{"result"},
	)
)

func RecordIngested(source string) {
	eventsIngested.WithLabelValues(source).Inc()
}

func RecordEventProcessed(outcome string, seconds float64) {
	eventsProcessed.WithLabelValues(outcome).Inc()
	eventDuration.Observe(seconds)
}

func RecordStepFailure(step string) {
	stepFailures.WithLabelValues(step).Inc()
}

func RecordSideEffectFailure(step string) {
	sideEffectFailures.WithLabelValues(step).Inc()
}

func RecordLeadCreated() {
	leadsCreated.Inc()
}

func RecordAssignment() {
	leadAssignments.Inc()
}

func RecordRetry(result string) {
	eventsRetried.WithLabelValues(result).Inc()
}
