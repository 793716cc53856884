package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultBatchSize は1回のバックエンド呼び出しに渡すテキスト数
	DefaultBatchSize = 32
	// DefaultMaxAttempts はサブバッチごとの最大試行回数
	DefaultMaxAttempts = 3
	// DefaultWarmupTimeout はウォームアップ呼び出しのタイムアウト
	DefaultWarmupTimeout = 2 * time.Minute

	warmupText = "warmup"
)

// ErrEmbedding はEmbeddingモデルの初期化・呼び出しに関するエラー
var ErrEmbedding = errors.New("embedding error")

// Backend はEmbeddingモデルへの最小限の呼び出しインターフェース
type Backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// BackendFactory はバックエンドを生成する。成功するまで利用のたびに呼ばれ得る
type BackendFactory func() (Backend, error)

// Metrics はEmbedding処理の計測値を受け取る
type Metrics interface {
	ObserveEmbeddingBatch(size int, elapsed time.Duration, err error)
	IncEmbeddingRetry()
}

// Gateway はEmbeddingバックエンドを遅延初期化し、バッチ分割とリトライを提供する
type Gateway struct {
	factory     BackendFactory
	batchSize   int
	maxAttempts int
	backoff     func(attempt int) time.Duration
	metrics     Metrics
	logger      *slog.Logger

	mu      sync.Mutex
	backend Backend
}

// Option は Gateway のオプション設定
type Option func(*Gateway)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithBatchSize はサブバッチサイズを設定する
func WithBatchSize(size int) Option {
	return func(g *Gateway) {
		if size > 0 {
			g.batchSize = size
		}
	}
}

// WithMaxAttempts はサブバッチごとの最大試行回数を設定する
func WithMaxAttempts(attempts int) Option {
	return func(g *Gateway) {
		if attempts > 0 {
			g.maxAttempts = attempts
		}
	}
}

// WithBackoff は試行間の待機時間の計算方法を差し替える
func WithBackoff(backoff func(attempt int) time.Duration) Option {
	return func(g *Gateway) {
		if backoff != nil {
			g.backoff = backoff
		}
	}
}

// WithMetrics は計測先を設定する
func WithMetrics(m Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// ExponentialBackoff は 1s, 2s, 4s ... と倍々で待機する
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// NewGateway は新しい Gateway を作成する。バックエンドは初回利用時に生成される
func NewGateway(factory BackendFactory, opts ...Option) *Gateway {
	g := &Gateway{
		factory:     factory,
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
		backoff:     ExponentialBackoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Warmup はバックエンドを初期化する。失敗は保持せず、次の呼び出しで再度初期化を試みる
func (g *Gateway) Warmup(ctx context.Context) error {
	_, err := g.handle(ctx)
	return err
}

// handle はバックエンドを生成し、ダミー入力で1回呼び出して温める
// 成功したバックエンドだけを保持し、失敗時は次の呼び出しで生成からやり直す
func (g *Gateway) handle(ctx context.Context) (Backend, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.backend != nil {
		return g.backend, nil
	}

	backend, err := g.factory()
	if err != nil {
		g.logger.Error("failed to initialize embedding model", "error", err)
		return nil, fmt.Errorf("%w: failed to initialize embedding model: %v", ErrEmbedding, err)
	}

	// 最初の呼び出し元のキャンセルに巻き込まれないよう切り離す
	warmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultWarmupTimeout)
	defer cancel()

	start := time.Now()
	if _, err := backend.Embed(warmCtx, warmupText); err != nil {
		g.logger.Error("failed to warm up embedding model", "error", err)
		return nil, fmt.Errorf("%w: failed to initialize embedding model: %v", ErrEmbedding, err)
	}
	g.backend = backend
	g.logger.Info("embedding model warmed up", "duration", time.Since(start))
	return backend, nil
}

// Embed は単一テキストのベクトルを返す
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	backend, err := g.handle(ctx)
	if err != nil {
		return nil, err
	}

	vector, err := backend.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %v", ErrEmbedding, err)
	}
	return vector, nil
}

// BatchEmbed はテキストをサブバッチに分けてベクトル化する
// 失敗したサブバッチだけを指数バックオフで再試行し、上限に達したらエラーを返す
func (g *Gateway) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	backend, err := g.handle(ctx)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		batch := texts[start:end]

		batchVectors, err := g.embedWithRetry(ctx, backend, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to generate embeddings for batch %d-%d: %w", ErrEmbedding, start, end, err)
		}
		if len(batchVectors) != len(batch) {
			return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbedding, len(batch), len(batchVectors))
		}
		vectors = append(vectors, batchVectors...)
	}

	return vectors, nil
}

func (g *Gateway) embedWithRetry(ctx context.Context, backend Backend, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		start := time.Now()
		vectors, err := backend.BatchEmbed(ctx, batch)
		g.observe(len(batch), time.Since(start), err)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if attempt == g.maxAttempts-1 {
			break
		}

		wait := g.backoff(attempt)
		g.logger.Warn("embedding batch failed, retrying",
			"attempt", attempt+1,
			"maxAttempts", g.maxAttempts,
			"batchSize", len(batch),
			"wait", wait,
			"error", err,
		)
		if g.metrics != nil {
			g.metrics.IncEmbeddingRetry()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func (g *Gateway) observe(size int, elapsed time.Duration, err error) {
	if g.metrics != nil {
		g.metrics.ObserveEmbeddingBatch(size, elapsed, err)
	}
}
