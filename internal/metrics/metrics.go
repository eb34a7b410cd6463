// Package metrics exposes pipeline counters and latencies to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "newsflow"

// Pipeline contains the metrics of both pipeline stages. A nil *Pipeline records nothing.
type Pipeline struct {
	RecordsProcessed  *prometheus.CounterVec
	Analyses          *prometheus.CounterVec
	FacetDuration     *prometheus.HistogramVec
	DLQOutcomes       *prometheus.CounterVec
	IndexOutcomes     *prometheus.CounterVec
	EmbeddingFailures prometheus.Counter
	GeocodeCache      *prometheus.CounterVec
}

// New creates the pipeline metrics and registers them with reg
func New(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		RecordsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "records",
				Name:      "processed_total",
				Help:      "Consumed records by stage and terminal outcome",
			},
			[]string{"stage", "outcome"},
		),

		Analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "total",
				Help:      "Article analyses by status",
			},
			[]string{"status"},
		),

		FacetDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "facet_duration_seconds",
				Help:      "Facet extraction duration in seconds, retries included",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"facet", "status"},
		),

		DLQOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dlq",
				Name:      "outcomes_total",
				Help:      "DLQ handling outcomes by stage",
			},
			[]string{"stage", "outcome"},
		),

		IndexOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "indexer",
				Name:      "documents_total",
				Help:      "Indexed documents by outcome (written, skipped, failed)",
			},
			[]string{"outcome"},
		),

		EmbeddingFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "indexer",
				Name:      "embedding_failures_total",
				Help:      "Embedding calls that failed and left documents without a vector",
			},
		),

		GeocodeCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "geocoder",
				Name:      "cache_lookups_total",
				Help:      "Geocoder cache lookups by query kind and result",
			},
			[]string{"kind", "result"},
		),
	}

	reg.MustRegister(
		p.RecordsProcessed,
		p.Analyses,
		p.FacetDuration,
		p.DLQOutcomes,
		p.IndexOutcomes,
		p.EmbeddingFailures,
		p.GeocodeCache,
	)
	return p
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordProcessed counts a consumed record reaching its terminal outcome
func (p *Pipeline) RecordProcessed(stage, outcome string) {
	if p == nil {
		return
	}
	p.RecordsProcessed.WithLabelValues(stage, outcome).Inc()
}

// RecordAnalysis counts a finished analysis
func (p *Pipeline) RecordAnalysis(err error) {
	if p == nil {
		return
	}
	p.Analyses.WithLabelValues(status(err)).Inc()
}

// RecordFacet records one facet extraction
func (p *Pipeline) RecordFacet(facet string, d time.Duration, err error) {
	if p == nil {
		return
	}
	p.FacetDuration.WithLabelValues(facet, status(err)).Observe(d.Seconds())
}

// RecordDLQOutcome counts a DLQ handling outcome
func (p *Pipeline) RecordDLQOutcome(stage, outcome string) {
	if p == nil {
		return
	}
	p.DLQOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordIndexOutcome counts n documents with the same outcome
func (p *Pipeline) RecordIndexOutcome(outcome string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.IndexOutcomes.WithLabelValues(outcome).Add(float64(n))
}

// RecordEmbeddingFailure counts a failed embedding call
func (p *Pipeline) RecordEmbeddingFailure() {
	if p == nil {
		return
	}
	p.EmbeddingFailures.Inc()
}

// RecordGeocodeCache counts a geocoder cache lookup
func (p *Pipeline) RecordGeocodeCache(kind string, hit bool) {
	if p == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	p.GeocodeCache.WithLabelValues(kind, result).Inc()
}
