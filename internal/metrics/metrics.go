// Package metrics records router and action activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sprintbot"

// Recorder owns a private registry so several recorders can coexist in one
// process (tests, embedded use). A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	classificationFailures prometheus.Counter
	actionRuns             *prometheus.CounterVec
	actionDuration         *prometheus.HistogramVec
	llmTokens              *prometheus.CounterVec
}

// New creates a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Utterances handled by the router, by intent and surface.",
			},
			[]string{"intent", "surface"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time from utterance to rendered reply.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"intent"},
		),
		classificationFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classification_failures_total",
				Help:      "Classifications that fell back to help.",
			},
		),
		actionRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_runs_total",
				Help:      "External script invocations by action and status.",
			},
			[]string{"action", "status"},
		),
		actionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of external script invocations.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"action"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_total",
				Help:      "Tokens used by intent classification.",
			},
			[]string{"provider", "type"},
		),
	}
}

// ObserveRequest records one routed utterance.
func (r *Recorder) ObserveRequest(intent, surface string, d time.Duration) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(intent, surface).Inc()
	r.requestDuration.WithLabelValues(intent).Observe(d.Seconds())
}

// IncClassificationFailure counts a classification that degraded to help.
func (r *Recorder) IncClassificationFailure() {
	if r == nil {
		return
	}
	r.classificationFailures.Inc()
}

// ObserveAction records one script invocation.
func (r *Recorder) ObserveAction(action string, ok bool, d time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	r.actionRuns.WithLabelValues(action, status).Inc()
	r.actionDuration.WithLabelValues(action).Observe(d.Seconds())
}

// AddTokens records LLM token usage.
func (r *Recorder) AddTokens(provider string, input, output int) {
	if r == nil {
		return
	}
	r.llmTokens.WithLabelValues(provider, "input").Add(float64(input))
	r.llmTokens.WithLabelValues(provider, "output").Add(float64(output))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
