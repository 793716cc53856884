package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveEmbeddingBatch(32, 10*time.Millisecond, nil)
	m.ObserveEmbeddingBatch(32, 10*time.Millisecond, errors.New("boom"))
	m.IncEmbeddingRetry()
	m.ObserveIngestion("indexed", 12, time.Second)
	m.ObserveIngestion("skipped", 0, time.Millisecond)
	m.ObserveGeneration("answer", 2*time.Second, 300*time.Millisecond, 420)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.embeddingBatches.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.embeddingBatches.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.embeddingRetries))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.ingestedChunks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestions.WithLabelValues("skipped")))
	assert.Equal(t, 420.0, testutil.ToFloat64(m.generatedChars.WithLabelValues("answer")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest("GET", "/api/health", 200, 5*time.Millisecond)
	m.ObserveSearch("semantic", 5, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `documindr_http_requests_total{method="GET",route="/api/health",status="200"} 1`)
	assert.Contains(t, string(body), `documindr_retrieval_stage_candidates_count{stage="semantic"} 1`)
}
