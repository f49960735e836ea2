package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the API. Each server gets its own
// registry so several servers can live in one process (tests).
type Metrics struct {
	registry    *prometheus.Registry
	asks        *prometheus.CounterVec
	askLatency  prometheus.Histogram
	reloads     *prometheus.CounterVec
	records     prometheus.Gauge
	corpus      prometheus.Gauge
	rateLimited prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		asks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kilimo_asks_total",
			Help: "Asks handled, by outcome",
		}, []string{"outcome"}),
		askLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kilimo_ask_latency_seconds",
			Help:    "Latency of ask requests",
			Buckets: prometheus.DefBuckets,
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kilimo_reloads_total",
			Help: "Dataset reloads, by result",
		}, []string{"result"}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kilimo_dataset_records",
			Help: "Records in the loaded dataset",
		}),
		corpus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kilimo_corpus_documents",
			Help: "Questions available for matching",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kilimo_asks_rate_limited_total",
			Help: "Asks rejected by the rate limiter",
		}),
	}
	m.registry.MustRegister(m.asks, m.askLatency, m.reloads, m.records, m.corpus, m.rateLimited)
	m.registry.MustRegister(collectors.NewGoCollector())
	return m
}

func (m *Metrics) observeAsk(outcome string, d time.Duration) {
	m.asks.WithLabelValues(outcome).Inc()
	m.askLatency.Observe(d.Seconds())
}

func (m *Metrics) observeReload(result string, records, corpus int) {
	m.reloads.WithLabelValues(result).Inc()
	if result != reloadFailed {
		m.records.Set(float64(records))
		m.corpus.Set(float64(corpus))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
