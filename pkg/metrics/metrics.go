// Package metrics defines the prometheus collectors exported by the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the basic namespace where all metrics are defined under.
	Namespace = "emission_curve"
)

// NewCounter creates a Counter metrics under the global namespace.
func NewCounter(name, subsystem, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewGauge creates a Gauge metrics under the global namespace.
func NewGauge(name, subsystem, help string, labels []string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewHistogramWithBuckets creates a Histogram metrics with custom buckets.
func NewHistogramWithBuckets(name, subsystem, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}, labels)
}

var (
	requests = NewCounter("requests_total", "http", "HTTP requests by route and status code", []string{"route", "code"})

	statFetches = NewCounter("fetches_total", "stats", "Live stat fetches by result", []string{"result"})

	totalEmission = NewGauge("total_emission", "stats", "Last fetched live total emission in display units", []string{"ticker"})

	chartLookups = NewCounter("lookups_total", "chart_cache", "Chart cache lookups by result", []string{"result"})

	sampleDuration = NewHistogramWithBuckets(
		"sample_duration_seconds",
		"chart",
		"Time spent sampling a curve",
		[]string{"curve"},
		prometheus.ExponentialBuckets(0.001, 2, 14),
	)
)

func ReportRequest(route string, code int) {
	requests.WithLabelValues(route, codeLabel(code)).Inc()
}

func ReportStatFetch(ticker string, amount float64, err error) {
	if err != nil {
		statFetches.WithLabelValues("error").Inc()
		return
	}
	statFetches.WithLabelValues("ok").Inc()
	totalEmission.WithLabelValues(ticker).Set(amount)
}

func ReportChartLookup(hit bool) {
	if hit {
		chartLookups.WithLabelValues("hit").Inc()
		return
	}
	chartLookups.WithLabelValues("miss").Inc()
}

func ReportSample(curve string, elapsed time.Duration) {
	sampleDuration.WithLabelValues(curve).Observe(elapsed.Seconds())
}

func codeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
