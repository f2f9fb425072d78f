package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// Pipeline metrics
	MessagesProcessed *prometheus.CounterVec
	PipelineLatency   *prometheus.HistogramVec

	// Adapter metrics
	ClassifierResults *prometheus.CounterVec
	AdapterLatency    *prometheus.HistogramVec
	Transcriptions    *prometheus.CounterVec

	// Phase metrics
	PhaseAdvances     *prometheus.CounterVec
	PhaseWriteFailure prometheus.Counter

	// Notification metrics
	Notifications *prometheus.CounterVec
	IssuesCreated *prometheus.CounterVec
}

// New creates all application metrics and registers them with reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Total number of inbound messages by kind and final status",
		}, []string{"kind", "status"}),
		PipelineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time spent processing one inbound message",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		ClassifierResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_results_total",
			Help:      "Classification results by source (model, heuristic, placeholder)",
		}, []string{"source"}),
		AdapterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_duration_seconds",
			Help:      "Duration of external model calls",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"adapter"}),
		Transcriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Transcription attempts by result",
		}, []string{"result"}),
		PhaseAdvances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_advances_total",
			Help:      "Automatic phase advances by decision path",
		}, []string{"path"}),
		PhaseWriteFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_write_failures_total",
			Help:      "Phase advances that failed on the primary write",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mention_notifications_total",
			Help:      "Mention notification attempts by result",
		}, []string{"result"}),
		IssuesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_created_total",
			Help:      "Issues created by severity",
		}, []string{"severity"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.MessagesProcessed,
			m.PipelineLatency,
			m.ClassifierResults,
			m.AdapterLatency,
			m.Transcriptions,
			m.PhaseAdvances,
			m.PhaseWriteFailure,
			m.Notifications,
			m.IssuesCreated,
		)
	}
	return m
}

func (m *Metrics) ObserveMessage(kind, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.MessagesProcessed.WithLabelValues(kind, status).Inc()
	m.PipelineLatency.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) ObserveClassification(source string, took time.Duration) {
	if m == nil {
		return
	}
	m.ClassifierResults.WithLabelValues(source).Inc()
	m.AdapterLatency.WithLabelValues("classifier").Observe(took.Seconds())
}

func (m *Metrics) ObserveTranscription(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.Transcriptions.WithLabelValues(result).Inc()
	m.AdapterLatency.WithLabelValues("transcriber").Observe(took.Seconds())
}

func (m *Metrics) PhaseAdvanced(path string) {
	if m == nil {
		return
	}
	m.PhaseAdvances.WithLabelValues(path).Inc()
}

func (m *Metrics) PhaseWriteFailed() {
	if m == nil {
		return
	}
	m.PhaseWriteFailure.Inc()
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IssueCreated(severity string) {
	if m == nil {
		return
	}
	m.IssuesCreated.WithLabelValues(severity).Inc()
}
