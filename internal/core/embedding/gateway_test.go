package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthias-truyzelaere/documindr/internal/platform/logger"
)

type fakeBackend struct {
	mu         sync.Mutex
	embedCalls int
	batchSizes []int
	failures   int
	embedErr   error
	shortBy    int
}

func (b *fakeBackend) Embed(_ context.Context, text string) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.embedCalls++
	if b.embedErr != nil {
		return nil, b.embedErr
	}
	return []float32{float32(len(text))}, nil
}

func (b *fakeBackend) BatchEmbed(_ context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batchSizes = append(b.batchSizes, len(texts))
	if b.failures > 0 {
		b.failures--
		return nil, errors.New("model busy")
	}
	vectors := make([][]float32, 0, len(texts))
	for _, t := range texts[:len(texts)-b.shortBy] {
		vectors = append(vectors, []float32{float32(len(t))})
	}
	return vectors, nil
}

type countingMetrics struct {
	batches int
	retries int
	errors  int
}

func (m *countingMetrics) ObserveEmbeddingBatch(_ int, _ time.Duration, err error) {
	m.batches++
	if err != nil {
		m.errors++
	}
}

func (m *countingMetrics) IncEmbeddingRetry() { m.retries++ }

func noWait(int) time.Duration { return 0 }

func newGateway(backend Backend, factoryCalls *int, opts ...Option) *Gateway {
	factory := func() (Backend, error) {
		*factoryCalls++
		return backend, nil
	}
	opts = append([]Option{WithLogger(logger.Discard()), WithBackoff(noWait)}, opts...)
	return NewGateway(factory, opts...)
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(make([]byte, i))
	}
	return out
}

func TestGateway_WarmupRunsOnce(t *testing.T) {
	backend := &fakeBackend{}
	var calls int
	g := newGateway(backend, &calls)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Warmup(context.Background()))
		}()
	}
	wg.Wait()

	_, err := g.Embed(context.Background(), "query")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	// ウォームアップ1回 + クエリ1回
	assert.Equal(t, 2, backend.embedCalls)
}

func TestGateway_InitFailureIsRetried(t *testing.T) {
	var calls int
	backend := &fakeBackend{}
	g := NewGateway(func() (Backend, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("model not found")
		}
		return backend, nil
	}, WithLogger(logger.Discard()))

	err := g.Warmup(context.Background())
	require.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorContains(t, err, "failed to initialize embedding model")

	// バックエンドが復旧した後の呼び出しは成功する
	vectors, err := g.BatchEmbed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, 2, calls)

	require.NoError(t, g.Warmup(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestGateway_WarmupEmbedFailure(t *testing.T) {
	var calls int
	g := newGateway(&fakeBackend{embedErr: errors.New("oom")}, &calls)

	err := g.Warmup(context.Background())
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorContains(t, err, "oom")
}

func TestGateway_BatchEmbedSplitsIntoSubBatches(t *testing.T) {
	backend := &fakeBackend{}
	var calls int
	g := newGateway(backend, &calls)

	input := texts(70)
	vectors, err := g.BatchEmbed(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, []int{32, 32, 6}, backend.batchSizes)
	require.Len(t, vectors, 70)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0])
	}
}

func TestGateway_BatchEmbedEmptyInput(t *testing.T) {
	var calls int
	g := newGateway(&fakeBackend{}, &calls)

	vectors, err := g.BatchEmbed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, calls)
}

func TestGateway_RetriesFailedBatch(t *testing.T) {
	backend := &fakeBackend{failures: 2}
	metrics := &countingMetrics{}
	var calls int
	g := newGateway(backend, &calls, WithMetrics(metrics))

	vectors, err := g.BatchEmbed(context.Background(), texts(3))
	require.NoError(t, err)

	assert.Len(t, vectors, 3)
	assert.Equal(t, []int{3, 3, 3}, backend.batchSizes)
	assert.Equal(t, 2, metrics.retries)
	assert.Equal(t, 3, metrics.batches)
	assert.Equal(t, 2, metrics.errors)
}

func TestGateway_RetryExhaustion(t *testing.T) {
	backend := &fakeBackend{failures: 10}
	var calls int
	g := newGateway(backend, &calls, WithMaxAttempts(3))

	_, err := g.BatchEmbed(context.Background(), texts(40))
	require.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorContains(t, err, "batch 0-32")
	assert.ErrorContains(t, err, "model busy")
	assert.Len(t, backend.batchSizes, 3)
}

func TestGateway_CountMismatch(t *testing.T) {
	var calls int
	g := newGateway(&fakeBackend{shortBy: 1}, &calls)

	_, err := g.BatchEmbed(context.Background(), texts(4))
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorContains(t, err, "expected 4 vectors, got 3")
}

func TestGateway_CancelledDuringBackoff(t *testing.T) {
	backend := &fakeBackend{failures: 10}
	var calls int
	g := newGateway(backend, &calls, WithBackoff(func(int) time.Duration { return time.Hour }))
	require.NoError(t, g.Warmup(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := g.BatchEmbed(ctx, texts(2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, backend.batchSizes, 1)
}

func TestExponentialBackoff(t *testing.T) {
	assert.Equal(t, time.Second, ExponentialBackoff(0))
	assert.Equal(t, 2*time.Second, ExponentialBackoff(1))
	assert.Equal(t, 4*time.Second, ExponentialBackoff(2))
}
