// Package metrics は Prometheus のコレクタをまとめ、各コンポーネントの計測ポートを実装する
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matthias-truyzelaere/documindr/internal/core/ask"
	"github.com/matthias-truyzelaere/documindr/internal/core/embedding"
	"github.com/matthias-truyzelaere/documindr/internal/core/ingestion"
	"github.com/matthias-truyzelaere/documindr/internal/core/search"
)

const namespace = "documindr"

// Metrics はプロセス全体のメトリクスを保持する
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	embeddingBatches  *prometheus.CounterVec
	embeddingDuration prometheus.Histogram
	embeddingRetries  prometheus.Counter

	ingestions     *prometheus.CounterVec
	ingestedChunks prometheus.Counter
	ingestDuration prometheus.Histogram

	searchDuration   *prometheus.HistogramVec
	searchCandidates *prometheus.HistogramVec

	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	timeToFirstToken   *prometheus.HistogramVec
	generatedChars     *prometheus.CounterVec
}

// New は専用レジストリにコレクタを登録した Metrics を作成する
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		embeddingBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "batches_total",
			Help:      "Embedding backend calls by result.",
		}, []string{"result"}),
		embeddingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "batch_duration_seconds",
			Help:      "Latency of one embedding sub-batch call.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		embeddingRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "retries_total",
			Help:      "Embedding sub-batch retries.",
		}),
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "documents_total",
			Help:      "Ingested uploads by outcome.",
		}, []string{"outcome"}),
		ingestedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "chunks_total",
			Help:      "Chunks written to the store.",
		}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duration_seconds",
			Help:      "End-to-end ingestion latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each retrieval stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		searchCandidates: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_candidates",
			Help:      "Chunks produced by each retrieval stage.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"stage"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "responses_total",
			Help:      "Completed streamed generations by mode.",
		}, []string{"mode"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Total streamed generation time.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"mode"}),
		timeToFirstToken: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "time_to_first_token_seconds",
			Help:      "Latency until the first non-empty delta.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"mode"}),
		generatedChars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "characters_total",
			Help:      "Characters streamed to clients.",
		}, []string{"mode"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.embeddingBatches,
		m.embeddingDuration,
		m.embeddingRetries,
		m.ingestions,
		m.ingestedChunks,
		m.ingestDuration,
		m.searchDuration,
		m.searchCandidates,
		m.generations,
		m.generationDuration,
		m.timeToFirstToken,
		m.generatedChars,
	)
	return m
}

// Handler は /metrics 用のハンドラを返す
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTPRequest は1リクエストの結果を記録する
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveEmbeddingBatch(_ int, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.embeddingBatches.WithLabelValues(result).Inc()
	m.embeddingDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) IncEmbeddingRetry() {
	m.embeddingRetries.Inc()
}

func (m *Metrics) ObserveIngestion(outcome string, chunks int, elapsed time.Duration) {
	m.ingestions.WithLabelValues(outcome).Inc()
	m.ingestedChunks.Add(float64(chunks))
	m.ingestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSearch(stage string, candidates int, elapsed time.Duration) {
	m.searchDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	m.searchCandidates.WithLabelValues(stage).Observe(float64(candidates))
}

func (m *Metrics) ObserveGeneration(mode string, total, firstToken time.Duration, chars int) {
	m.generations.WithLabelValues(mode).Inc()
	m.generationDuration.WithLabelValues(mode).Observe(total.Seconds())
	if firstToken > 0 {
		m.timeToFirstToken.WithLabelValues(mode).Observe(firstToken.Seconds())
	}
	m.generatedChars.WithLabelValues(mode).Add(float64(chars))
}

// インターフェース実装の確認
var (
	_ embedding.Metrics = (*Metrics)(nil)
	_ ingestion.Metrics = (*Metrics)(nil)
	_ search.Metrics    = (*Metrics)(nil)
	_ ask.Metrics       = (*Metrics)(nil)
)
