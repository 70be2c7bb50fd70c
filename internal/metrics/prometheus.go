package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_query_duration_seconds",
			Help:    "End-to-end question processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"backend"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_query_total",
			Help: "Total number of questions processed",
		},
		[]string{"status"},
	)

	SafetyRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_safety_rejections_total",
			Help: "Generated queries rejected by the safety validator",
		},
		[]string{"rule"},
	)

	PlanRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_plan_rejections_total",
			Help: "Queries rejected by the plan gate before execution",
		},
	)

	IntentConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_intent_confidence",
			Help:    "Intent analysis confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	RowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_rows_returned",
			Help:    "Result rows returned per executed query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(SafetyRejections)
	prometheus.MustRegister(PlanRejections)
	prometheus.MustRegister(IntentConfidence)
	prometheus.MustRegister(RowsReturned)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
