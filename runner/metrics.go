/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package runner

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "macrobench"

// Metrics exposes Prometheus collectors for benchmark activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts        *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	taskOutcomes    *prometheus.CounterVec
	validations     *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	workersActive   prometheus.Gauge
	rateLimitWaited prometheus.Counter
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns metrics registered with the global Prometheus registry
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics registers collectors with reg. Collectors already registered
// are reused; any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "attempts_total",
			Help:      "Generate, execute, validate cycles by model and result.",
		}, []string{"model", "result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "attempt_stage_duration_seconds",
			Help:      "Time spent in each attempt stage.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage"}),
		taskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "task_outcomes_total",
			Help:      "Work items finished by model and outcome.",
		}, []string{"model", "outcome"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "validation_verdicts_total",
			Help:      "Validation verdicts by category and result.",
		}, []string{"category", "result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queue_depth",
			Help:      "Work items not yet claimed.",
		}),
		workersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "workers_active",
			Help:      "Workers currently processing an item.",
		}),
		rateLimitWaited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limit_wait_seconds_total",
			Help:      "Time generation calls spent waiting on the rate limiter.",
		}),
	}

	m.attempts = register(reg, m.attempts)
	m.stageDuration = register(reg, m.stageDuration)
	m.taskOutcomes = register(reg, m.taskOutcomes)
	m.validations = register(reg, m.validations)
	m.queueDepth = register(reg, m.queueDepth)
	m.workersActive = register(reg, m.workersActive)
	m.rateLimitWaited = register(reg, m.rateLimitWaited)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveAttempt records one finished attempt
func (m *Metrics) ObserveAttempt(model string, success bool) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(model, resultLabel(success)).Inc()
}

// ObserveStage records time spent in generate, execute or validate
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveOutcome records a finished work item
func (m *Metrics) ObserveOutcome(model, outcome string) {
	if m == nil {
		return
	}
	m.taskOutcomes.WithLabelValues(model, outcome).Inc()
}

// ObserveVerdict records a validation verdict
func (m *Metrics) ObserveVerdict(category string, success bool) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(category, resultLabel(success)).Inc()
}

// SetQueueDepth records the number of unclaimed items
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// WorkerStarted and WorkerFinished track busy workers
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.workersActive.Inc()
}

func (m *Metrics) WorkerFinished() {
	if m == nil {
		return
	}
	m.workersActive.Dec()
}

// ObserveRateLimitWait records time spent waiting for the rate limiter
func (m *Metrics) ObserveRateLimitWait(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.rateLimitWaited.Add(d.Seconds())
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
