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
			Name:    "fin_rag_query_duration_seconds",
			Help:    "End-to-end query processing duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"query_type"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fin_rag_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	TickersResolved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fin_rag_tickers_resolved",
			Help:    "Number of tickers resolved per query",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	TickerSearchFallback = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fin_rag_ticker_search_fallback_total",
			Help: "Queries that needed the web-search ticker fallback",
		},
	)

	ProducerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fin_rag_producer_failures_total",
			Help: "Document producer failures",
		},
		[]string{"producer"},
	)

	DocumentsIndexed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fin_rag_documents_indexed_total",
			Help: "Documents ingested into the index",
		},
		[]string{"source"},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fin_rag_chunks_indexed_total",
			Help: "Chunks appended to the embedding index",
		},
	)

	RetrievedChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fin_rag_retrieved_chunks",
			Help:    "Chunks retrieved per query",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fin_rag_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fin_rag_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fin_rag_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(TickersResolved)
	prometheus.MustRegister(TickerSearchFallback)
	prometheus.MustRegister(ProducerFailures)
	prometheus.MustRegister(DocumentsIndexed)
	prometheus.MustRegister(ChunksIndexed)
	prometheus.MustRegister(RetrievedChunks)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
