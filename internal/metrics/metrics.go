// Package metrics exposes prometheus collectors for the submission and lookup
// pipeline. Labels never carry identities, codes or story ids.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lantern"

// Recorder is safe to use as a nil pointer; every method becomes a no-op.
type Recorder struct {
	lookupsTotal       *prometheus.CounterVec
	lookupDuration     *prometheus.HistogramVec
	lookupCandidates   *prometheus.HistogramVec
	rateLimitDecisions *prometheus.CounterVec
	noteRejections     *prometheus.CounterVec
	redactions         *prometheus.CounterVec
	submissions        *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		lookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lookup",
			Name:      "total",
			Help:      "Code lookups by purpose and outcome",
		}, []string{"purpose", "outcome"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lookup",
			Name:      "duration_seconds",
			Help:      "Wall time spent scanning candidates for a code",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"purpose"}),
		lookupCandidates: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lookup",
			Name:      "candidates",
			Help:      "Size of the candidate set examined per lookup",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"purpose"}),
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limiter decisions by policy",
		}, []string{"policy", "decision"}),
		noteRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notes",
			Name:      "rejections_total",
			Help:      "Lantern notes rejected by the content filter, per reason",
		}, []string{"reason"}),
		redactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stories",
			Name:      "redactions_total",
			Help:      "Narratives that triggered a redaction or review category",
		}, []string{"category"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stories",
			Name:      "submissions_total",
			Help:      "Stored stories by initial status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		r.lookupsTotal,
		r.lookupDuration,
		r.lookupCandidates,
		r.rateLimitDecisions,
		r.noteRejections,
		r.redactions,
		r.submissions,
	)
	return r
}

// ObserveLookup records one resolver run.
func (r *Recorder) ObserveLookup(purpose, outcome string, candidates int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.lookupsTotal.WithLabelValues(purpose, outcome).Inc()
	r.lookupDuration.WithLabelValues(purpose).Observe(elapsed.Seconds())
	r.lookupCandidates.WithLabelValues(purpose).Observe(float64(candidates))
}

// ObserveRateLimit records allowed, denied or error for a policy.
func (r *Recorder) ObserveRateLimit(policy, decision string) {
	if r == nil {
		return
	}
	r.rateLimitDecisions.WithLabelValues(policy, decision).Inc()
}

func (r *Recorder) ObserveNoteRejection(reasons []string) {
	if r == nil {
		return
	}
	for _, reason := range reasons {
		r.noteRejections.WithLabelValues(reason).Inc()
	}
}

func (r *Recorder) ObserveRedaction(categories []string) {
	if r == nil {
		return
	}
	for _, category := range categories {
		r.redactions.WithLabelValues(category).Inc()
	}
}

func (r *Recorder) ObserveSubmission(status string) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(status).Inc()
}
