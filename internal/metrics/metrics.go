// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "owly_api_request_duration_seconds",
			Help:    "Total time taken for analyze requests in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60},
		},
		[]string{"intent"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "owly_api_generation_duration_seconds",
			Help:    "Time spent waiting on the generation backend in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60},
		},
		[]string{"model"},
	)

	IntentCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owly_api_intent_total",
			Help: "Classified intents",
		},
		[]string{"intent"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "owly_api_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	PromptTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owly_api_prompt_tokens_total",
			Help: "Total number of prompt tokens used",
		},
		[]string{"model"},
	)

	CompletionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owly_api_completion_tokens_total",
			Help: "Total number of completion tokens used",
		},
		[]string{"model"},
	)

	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owly_api_error_count",
			Help: "Error count",
		},
		[]string{"code", "from"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owly_api_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
