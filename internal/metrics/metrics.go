package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeAccepted labels events that reached the correlator.
	OutcomeAccepted = "accepted"
	// OutcomeInvalid labels events rejected at the ingest boundary.
	OutcomeInvalid = "invalid"
	// OutcomeDuplicate labels events already held by an open incident.
	OutcomeDuplicate = "duplicate"
	// OutcomeRejected labels events dropped because the lane stayed full or ingestion stopped.
	OutcomeRejected = "rejected"
	// OutcomeError labels correlation decisions that failed.
	OutcomeError = "error"

	// StageScore and StageRootCause label enrichment failures.
	StageScore     = "score"
	StageRootCause = "root_cause"
)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarmcorr",
			Name:      "events_total",
			Help:      "Canonical events seen at the ingest boundary, partitioned by domain and outcome.",
		},
		[]string{"domain", "outcome"},
	)

	incidentsOpenedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarmcorr",
			Name:      "incidents_opened_total",
			Help:      "Incidents opened by the correlator.",
		},
	)

	incidentAppendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarmcorr",
			Name:      "incident_appends_total",
			Help:      "Events attached to existing incidents.",
		},
	)

	incidentsClosedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarmcorr",
			Name:      "incidents_closed_total",
			Help:      "Incidents closed by the timeout sweep.",
		},
	)

	openIncidents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "alarmcorr",
			Name:      "open_incidents",
			Help:      "Incidents currently open.",
		},
	)

	windowEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "alarmcorr",
			Name:      "window_events",
			Help:      "Events currently held by the temporal window index.",
		},
	)

	enrichmentFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarmcorr",
			Name:      "enrichment_failures_total",
			Help:      "Scoring or root-cause strategy failures that fell back to defaults.",
		},
		[]string{"stage"},
	)

	decisionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "alarmcorr",
			Name:      "decision_seconds",
			Help:      "Latency of a single correlation decision in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
)

// Register attaches alarmcorr collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		eventsTotal,
		incidentsOpenedTotal,
		incidentAppendsTotal,
		incidentsClosedTotal,
		openIncidents,
		windowEvents,
		enrichmentFailuresTotal,
		decisionDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveEvent counts an event outcome for a domain.
func ObserveEvent(domain, outcome string) {
	if domain == "" {
		domain = "unknown"
	}
	eventsTotal.WithLabelValues(domain, outcome).Inc()
}

// ObserveDecision records how long a correlation decision took.
func ObserveDecision(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	decisionDurationSeconds.Observe(duration.Seconds())
}

// IncidentOpened counts a newly opened incident.
func IncidentOpened() { incidentsOpenedTotal.Inc() }

// IncidentAppended counts an event attached to an existing incident.
func IncidentAppended() { incidentAppendsTotal.Inc() }

// IncidentsClosed counts incidents closed by a sweep.
func IncidentsClosed(n int) {
	if n > 0 {
		incidentsClosedTotal.Add(float64(n))
	}
}

// SetOpenIncidents publishes the current open incident count.
func SetOpenIncidents(n int) { openIncidents.Set(float64(n)) }

// SetWindowEvents publishes the current window index size.
func SetWindowEvents(n int) { windowEvents.Set(float64(n)) }

// EnrichmentFailed counts a strategy failure at the given stage.
func EnrichmentFailed(stage string) { enrichmentFailuresTotal.WithLabelValues(stage).Inc() }
