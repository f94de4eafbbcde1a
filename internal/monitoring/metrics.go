package monitoring

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exposed at /metrics and a few
// in-process counters summarized by /health.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
	predictionsTotal     *prometheus.CounterVec
	predictionRiskScore  *prometheus.HistogramVec
	predictionDuration   *prometheus.HistogramVec
	vocabularyExtensions *prometheus.CounterVec
	historyAppendErrors  prometheus.Counter
	rateLimitBlocks      *prometheus.CounterVec

	RequestCount         int64
	ErrorCount           int64
	PredictionCount      int64
	FraudCount           int64
	VocabularyExtensions int64
	HistoryErrors        int64
	RateLimitBlocks      int64
	StartTime            time.Time

	// last 1000 response times for percentiles
	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex
}

// NewMetrics creates a metrics instance with its own registry, so tests can
// build as many as they like.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		predictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictions_total",
				Help: "Total number of scored claims",
			},
			[]string{"used_model", "fraud"},
		),
		predictionRiskScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prediction_risk_score",
				Help:    "Distribution of normalized risk scores",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
			[]string{"used_model"},
		),
		predictionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prediction_duration_seconds",
				Help:    "Time to score and explain one claim",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"used_model"},
		),
		vocabularyExtensions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocabulary_extensions_total",
				Help: "Category values first seen at inference time",
			},
			[]string{"field"},
		),
		historyAppendErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "history_append_errors_total",
				Help: "Failed writes to the prediction history",
			},
		),
		rateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_blocks_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"path"},
		),
		StartTime:            time.Now(),
		ResponseTimes:        make([]time.Duration, 0, 1000),
		RequestCountByStatus: make(map[int]int64),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RequestStarted marks a request in flight
func (m *Metrics) RequestStarted() {
	atomic.AddInt64(&m.RequestCount, 1)
	m.httpRequestsInFlight.Inc()
}

// RequestFinished records the outcome of a request started with RequestStarted
func (m *Metrics) RequestFinished(method, path string, statusCode int, duration time.Duration) {
	m.httpRequestsInFlight.Dec()
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	if statusCode >= 400 {
		atomic.AddInt64(&m.ErrorCount, 1)
	}
	m.RecordResponseTime(duration)
	m.RecordRequestByStatus(statusCode)
}

// RecordPrediction records one scored claim
func (m *Metrics) RecordPrediction(usedModel string, fraud bool, riskScore int, duration time.Duration) {
	atomic.AddInt64(&m.PredictionCount, 1)
	if fraud {
		atomic.AddInt64(&m.FraudCount, 1)
	}
	m.predictionsTotal.WithLabelValues(usedModel, strconv.FormatBool(fraud)).Inc()
	m.predictionRiskScore.WithLabelValues(usedModel).Observe(float64(riskScore))
	m.predictionDuration.WithLabelValues(usedModel).Observe(duration.Seconds())
}

// RecordVocabularyExtension counts a category value appended at inference
func (m *Metrics) RecordVocabularyExtension(field string) {
	atomic.AddInt64(&m.VocabularyExtensions, 1)
	m.vocabularyExtensions.WithLabelValues(field).Inc()
}

// IncrementHistoryError counts a failed history append
func (m *Metrics) IncrementHistoryError() {
	atomic.AddInt64(&m.HistoryErrors, 1)
	m.historyAppendErrors.Inc()
}

// IncrementRateLimitBlock counts a rejected request
func (m *Metrics) IncrementRateLimitBlock(path string) {
	atomic.AddInt64(&m.RateLimitBlocks, 1)
	m.rateLimitBlocks.WithLabelValues(path).Inc()
}

// RecordResponseTime keeps the last 1000 samples for percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > 1000 {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	defer m.ResponseTimesMutex.RUnlock()

	if len(m.ResponseTimes) == 0 {
		return 0
	}

	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)
	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}
	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	predictions := atomic.LoadInt64(&m.PredictionCount)
	frauds := atomic.LoadInt64(&m.FraudCount)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}
	fraudRate := float64(0)
	if predictions > 0 {
		fraudRate = float64(frauds) / float64(predictions) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":        time.Since(m.StartTime).Seconds(),
		"start_time":            m.StartTime.Format(time.RFC3339),
		"total_requests":        requests,
		"error_count":           errors,
		"error_rate_percent":    errorRate,
		"predictions":           predictions,
		"fraud_flags":           frauds,
		"fraud_rate_percent":    fraudRate,
		"vocabulary_extensions": atomic.LoadInt64(&m.VocabularyExtensions),
		"history_errors":        atomic.LoadInt64(&m.HistoryErrors),
		"ratelimit_blocks":      atomic.LoadInt64(&m.RateLimitBlocks),

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1e6,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1e6,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1e6,
		"status_code_distribution": m.GetStatusCodeDistribution(),
	}
}
