package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

// Metrics holds the Prometheus collectors for provider queries. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	TokensTotal       *prometheus.CounterVec
	AdjustmentsTotal  *prometheus.CounterVec
	RetriesTotal      *prometheus.CounterVec
	CacheTotal        *prometheus.CounterVec
	InputEstimate     *prometheus.HistogramVec
	TruncatedTotal    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmb_request_total",
			Help: "Total number of provider requests, by outcome.",
		}, []string{"provider", "model", "mode", "status"}),

		RequestDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmb_request_duration_ms",
			Help:    "Provider request duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 300000},
		}, []string{"provider", "mode"}),

		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmb_tokens_total",
			Help: "Tokens reported by providers.",
		}, []string{"provider", "model", "direction"}),

		AdjustmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmb_adjustments_total",
			Help: "Request values changed or dropped to fit model limits.",
		}, []string{"provider", "field"}),

		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmb_retries_total",
			Help: "Provider requests retried after a retryable failure.",
		}, []string{"provider"}),

		CacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmb_cache_total",
			Help: "Result cache lookups.",
		}, []string{"result"}),

		InputEstimate: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmb_input_tokens_estimate",
			Help:    "Estimated input tokens per request.",
			Buckets: prometheus.ExponentialBuckets(16, 4, 8),
		}, []string{"provider"}),

		TruncatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmb_truncated_total",
			Help: "Responses cut short by the output token limit.",
		}, []string{"provider", "model"}),
	}
}

// RequestLabels holds the values recorded for one completed request.
type RequestLabels struct {
	Provider   llm.ProviderID
	Model      string
	Mode       string
	Status     string
	DurationMs float64
	Usage      llm.Usage
	Truncated  bool
}

func (m *Metrics) RecordRequest(labels RequestLabels) {
	if m == nil {
		return
	}
	provider := string(labels.Provider)

	m.RequestTotal.WithLabelValues(provider, labels.Model, labels.Mode, labels.Status).Inc()
	m.RequestDurationMs.WithLabelValues(provider, labels.Mode).Observe(labels.DurationMs)

	if labels.Usage.InputTokens > 0 {
		m.TokensTotal.WithLabelValues(provider, labels.Model, "input").Add(float64(labels.Usage.InputTokens))
	}
	if labels.Usage.OutputTokens > 0 {
		m.TokensTotal.WithLabelValues(provider, labels.Model, "output").Add(float64(labels.Usage.OutputTokens))
	}
	if labels.Truncated {
		m.TruncatedTotal.WithLabelValues(provider, labels.Model).Inc()
	}
}

func (m *Metrics) RecordAdjustments(env llm.Envelope) {
	if m == nil {
		return
	}
	for _, a := range env.Adjustments {
		m.AdjustmentsTotal.WithLabelValues(string(env.Provider), a.Field).Inc()
	}
}

func (m *Metrics) RecordRetry(provider llm.ProviderID) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(string(provider)).Inc()
}

func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveInputEstimate(provider llm.ProviderID, tokens int) {
	if m == nil {
		return
	}
	m.InputEstimate.WithLabelValues(string(provider)).Observe(float64(tokens))
}
