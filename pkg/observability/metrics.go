package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/aretw0/advisor/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the Prometheus collectors of the engine.
type Metrics struct {
	TaskUpdates     *prometheus.CounterVec
	TaskOutcomes    *prometheus.CounterVec
	Attempts        *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	StepDuration    *prometheus.HistogramVec
	DegradedSteps   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg uses a private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		TaskUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisor_task_updates_total",
			Help: "Accepted task store writes.",
		}, []string{"category"}),
		TaskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisor_task_outcomes_total",
			Help: "Tasks that reached a terminal status.",
		}, []string{"category", "status"}),
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisor_gateway_attempts_total",
			Help: "Requests sent to the scoring service, by outcome.",
		}, []string{"endpoint", "outcome"}),
		AttemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "advisor_gateway_attempt_duration_seconds",
			Help:    "Latency of single gateway attempts.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"endpoint"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "advisor_step_duration_seconds",
			Help:    "Time spent in guided steps, pauses included.",
			Buckets: prometheus.LinearBuckets(0.5, 0.5, 12),
		}, []string{"step"}),
		DegradedSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisor_steps_degraded_total",
			Help: "Guided steps whose remote call failed.",
		}, []string{"step"}),
		gatherer: reg,
	}
	reg.MustRegister(m.TaskUpdates, m.TaskOutcomes, m.Attempts, m.AttemptDuration, m.StepDuration, m.DegradedSteps)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Hooks records the lifecycle events of an engine.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTaskUpdate: func(_ context.Context, e *domain.TaskEvent) {
			c := string(e.Task.Category)
			m.TaskUpdates.WithLabelValues(c).Inc()
			if e.Task.Status.Terminal() {
				m.TaskOutcomes.WithLabelValues(c, string(e.Task.Status)).Inc()
			}
		},
		OnAttempt: func(_ context.Context, e *domain.AttemptEvent) {
			m.Attempts.WithLabelValues(e.Endpoint, outcome(e.Err)).Inc()
			m.AttemptDuration.WithLabelValues(e.Endpoint).Observe(e.Duration.Seconds())
		},
		OnStepLeave: func(_ context.Context, e *domain.StepEvent) {
			m.StepDuration.WithLabelValues(e.StepID).Observe(e.Elapsed.Seconds())
			if e.Degraded {
				m.DegradedSteps.WithLabelValues(e.StepID).Inc()
			}
		},
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var te *domain.TransientError
	if errors.As(err, &te) && te.StatusCode > 0 {
		return "status"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
