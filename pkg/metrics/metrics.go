// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks messages appended to a conversation log.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages by role",
		},
		[]string{"role"},
	)

	// SendsRolledBack tracks optimistic sends that were rolled back.
	SendsRolledBack = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sends_rolled_back_total",
			Help: "Optimistic sends rolled back, by reason",
		},
		[]string{"reason"},
	)

	// QuotaRejections tracks sends refused by the daily quota.
	QuotaRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Sends refused because the daily quota was exhausted",
		},
	)

	// PageLoads tracks message page fetches.
	PageLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_page_loads_total",
			Help: "Message page fetches, by kind (first, more)",
		},
		[]string{"kind"},
	)

	// PageCacheHits tracks conversation selections served from the page cache.
	PageCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "page_cache_hits_total",
			Help: "Conversation selections served instantly from the page cache",
		},
	)

	// ExchangeDuration tracks chat exchange round-trip duration.
	ExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exchange_duration_seconds",
			Help:    "Chat exchange round-trip duration",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"outcome"},
	)

	// LLMTokensTotal tracks LLM tokens processed by the local exchanger.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordExchange records a chat exchange round trip.
func RecordExchange(outcome string, duration float64) {
	ExchangeDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordLLMTokens records token usage for a completion.
func RecordLLMTokens(model string, tokensIn, tokensOut int) {
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}
