// Package metrics exposes pipeline counters to Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	dois        *prometheus.CounterVec
	downloads   *prometheus.CounterVec
	tables      *prometheus.CounterVec
	records     *prometheus.CounterVec
	extractTime prometheus.Histogram
	httpRetries *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		dois: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steelminer",
			Name:      "dois_collected_total",
			Help:      "New DOIs collected per source",
		}, []string{"source"}),
		downloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steelminer",
			Name:      "downloads_total",
			Help:      "Paper download attempts by winning strategy and outcome",
		}, []string{"strategy", "status"}),
		tables: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steelminer",
			Name:      "tables_extracted_total",
			Help:      "Tables extracted by method",
		}, []string{"method"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steelminer",
			Name:      "records_total",
			Help:      "Steel records by validation status",
		}, []string{"status"}),
		extractTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "steelminer",
			Name:      "paper_extract_seconds",
			Help:      "Time spent extracting one paper",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		httpRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steelminer",
			Name:      "http_retries_total",
			Help:      "HTTP retries by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) DOIs(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dois.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) Download(strategy string, ok bool) {
	if m == nil {
		return
	}
	status := "failed"
	if ok {
		status = "ok"
	}
	m.downloads.WithLabelValues(strategy, status).Inc()
}

func (m *Metrics) Tables(method string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tables.WithLabelValues(method).Add(float64(n))
}

func (m *Metrics) Record(valid bool) {
	if m == nil {
		return
	}
	status := "invalid"
	if valid {
		status = "valid"
	}
	m.records.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveExtract(d time.Duration) {
	if m == nil {
		return
	}
	m.extractTime.Observe(d.Seconds())
}

func (m *Metrics) Retry(reason string) {
	if m == nil {
		return
	}
	m.httpRetries.WithLabelValues(reason).Inc()
}
