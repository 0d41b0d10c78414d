/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsProvider is the set of recording operations the server and the
// resolver use. It is satisfied by both *Metrics and *SimpleMetrics, and its
// lookup and validation methods match the schema package observer interfaces.
type MetricsProvider interface {
	RecordHTTPRequest(method, path string, statusCode int, duration time.Duration)
	IncHTTPRequestsInFlight()
	DecHTTPRequestsInFlight()
	ObserveLookup(repository, outcome string, duration time.Duration)
	ObserveCache(hit bool)
	ObserveValidation(outcome string, duration time.Duration)
	RecordError(component, errorCode string)
}

// NewMetricsProvider returns the default in-memory provider
func NewMetricsProvider() MetricsProvider {
	return NewSimpleMetrics()
}

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Resolution metrics
	LookupsTotal   *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec
	CacheRequests  *prometheus.CounterVec

	// Validation metrics
	ValidationsTotal   *prometheus.CounterVec
	ValidationDuration *prometheus.HistogramVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schema_resolver_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schema_resolver_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "schema_resolver_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		// Resolution metrics
		LookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schema_resolver_lookups_total",
				Help: "Total number of repository lookups",
			},
			[]string{"repository", "outcome"},
		),
		LookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schema_resolver_lookup_duration_seconds",
				Help:    "Repository lookup duration in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"repository", "outcome"},
		),
		CacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schema_resolver_cache_requests_total",
				Help: "Total number of schema cache reads by result",
			},
			[]string{"result"},
		),

		// Validation metrics
		ValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schema_resolver_validations_total",
				Help: "Total number of instance validations",
			},
			[]string{"outcome"},
		),
		ValidationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schema_resolver_validation_duration_seconds",
				Help:    "Instance validation duration in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"outcome"},
		),

		// Error metrics
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schema_resolver_errors_total",
				Help: "Total number of errors returned to clients",
			},
			[]string{"component", "error_code"},
		),
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	statusStr := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// IncHTTPRequestsInFlight increments in-flight HTTP requests
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements in-flight HTTP requests
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// ObserveLookup records one repository lookup
func (m *Metrics) ObserveLookup(repository, outcome string, duration time.Duration) {
	m.LookupsTotal.WithLabelValues(repository, outcome).Inc()
	m.LookupDuration.WithLabelValues(repository, outcome).Observe(duration.Seconds())
}

// ObserveCache records a cache read
func (m *Metrics) ObserveCache(hit bool) {
	m.CacheRequests.WithLabelValues(cacheResult(hit)).Inc()
}

// ObserveValidation records one validation
func (m *Metrics) ObserveValidation(outcome string, duration time.Duration) {
	m.ValidationsTotal.WithLabelValues(outcome).Inc()
	m.ValidationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordError records error metrics
func (m *Metrics) RecordError(component, errorCode string) {
	m.ErrorsTotal.WithLabelValues(component, errorCode).Inc()
}

func cacheResult(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// MultiProvider fans every observation out to several providers
type MultiProvider []MetricsProvider

// NewMultiProvider combines providers, skipping nil entries
func NewMultiProvider(providers ...MetricsProvider) MultiProvider {
	out := make(MultiProvider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (mp MultiProvider) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	for _, p := range mp {
		p.RecordHTTPRequest(method, path, statusCode, duration)
	}
}

func (mp MultiProvider) IncHTTPRequestsInFlight() {
	for _, p := range mp {
		p.IncHTTPRequestsInFlight()
	}
}

func (mp MultiProvider) DecHTTPRequestsInFlight() {
	for _, p := range mp {
		p.DecHTTPRequestsInFlight()
	}
}

func (mp MultiProvider) ObserveLookup(repository, outcome string, duration time.Duration) {
	for _, p := range mp {
		p.ObserveLookup(repository, outcome, duration)
	}
}

func (mp MultiProvider) ObserveCache(hit bool) {
	for _, p := range mp {
		p.ObserveCache(hit)
	}
}

func (mp MultiProvider) ObserveValidation(outcome string, duration time.Duration) {
	for _, p := range mp {
		p.ObserveValidation(outcome, duration)
	}
}

func (mp MultiProvider) RecordError(component, errorCode string) {
	for _, p := range mp {
		p.RecordError(component, errorCode)
	}
}

// Timer provides a convenient way to time operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed duration
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveHistogram observes the elapsed time in a histogram
func (t *Timer) ObserveHistogram(histogram prometheus.Observer) {
	histogram.Observe(t.Duration().Seconds())
}
