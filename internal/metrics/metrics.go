// Package metrics owns the Prometheus registry and the collectors used by the search pipeline.
//
// All recording methods are safe on a nil *Metrics, so components can take metrics as optional.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pawmatch"

// Search pipeline stages.
const (
	StageEmbed  = "embed"
	StageRank   = "rank"
	StageFilter = "filter"
)

// Metrics holds an isolated registry and the pipeline collectors.
type Metrics struct {
	Registry *prometheus.Registry

	searchesTotal  *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	probesTotal    *prometheus.CounterVec
	liveResults    prometheus.Histogram
	shortfallTotal prometheus.Counter
	corpusSize     prometheus.Gauge
}

// New creates a registry labelled with service, registers the pipeline collectors
// and, when defaultCollectors is set, the Go and process collectors.
func New(service string, defaultCollectors bool) *Metrics {
	registry := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, registry)

	m := &Metrics{
		Registry: registry,
		searchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Similarity searches by outcome.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each search pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Reachability probes by outcome and deciding method.",
		}, []string{"outcome", "method"}),
		liveResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_results",
			Help:      "Number of live results returned per search.",
			Buckets:   prometheus.LinearBuckets(0, 5, 11),
		}),
		shortfallTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shortfall_total",
			Help:      "Searches that returned fewer live results than requested.",
		}),
		corpusSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_entries",
			Help:      "Entries in the loaded corpus.",
		}),
	}
	wrapped.MustRegister(
		m.searchesTotal,
		m.stageDuration,
		m.probesTotal,
		m.liveResults,
		m.shortfallTotal,
		m.corpusSize,
	)
	if defaultCollectors {
		wrapped.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveSearch records a finished search. status is "ok" or an error class.
func (m *Metrics) ObserveSearch(status string, live, topK int) {
	if m == nil {
		return
	}
	m.searchesTotal.WithLabelValues(status).Inc()
	if status != "ok" {
		return
	}
	m.liveResults.Observe(float64(live))
	if live < topK {
		m.shortfallTotal.Inc()
	}
}

// ObserveProbe records one probe outcome.
func (m *Metrics) ObserveProbe(alive bool, method string) {
	if m == nil {
		return
	}
	outcome := "dead"
	if alive {
		outcome = "alive"
	}
	if method == "" {
		method = "none"
	}
	m.probesTotal.WithLabelValues(outcome, method).Inc()
}

// SetCorpusSize records the number of loaded corpus entries.
func (m *Metrics) SetCorpusSize(n int) {
	if m == nil {
		return
	}
	m.corpusSize.Set(float64(n))
}
