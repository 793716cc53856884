package ask

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
	"github.com/matthias-truyzelaere/documindr/internal/core/search"
)

// 計測・ログ用のモード名
const (
	ModeAnswer  = "answer"
	ModeSummary = "summary"
)

const queryLogLimit = 100

// Retriever はチャンク取得インターフェース
type Retriever interface {
	Search(ctx context.Context, query string, k int, documentID mo.Option[uuid.UUID]) ([]document.Chunk, error)
	DocumentChunks(ctx context.Context, documentID uuid.UUID) ([]document.Chunk, error)
}

// LLMClient はLLM通信インターフェース
// GenerateStream は差分テキストを受け取るたびに onDelta を呼ぶ。onDelta がエラーを返したら中断する
type LLMClient interface {
	GenerateStream(ctx context.Context, prompt string, onDelta func(string) error) error
}

// TokenCounter はプロンプトのトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}

// Metrics は生成処理の計測値を受け取る
type Metrics interface {
	ObserveGeneration(mode string, total, firstToken time.Duration, chars int)
}

// Emit は呼び出し側へテキストを送る。エラーを返すと生成を中断する
type Emit func(text string) error

// AskService は検索結果を根拠に回答・要約をストリーミング生成する
type AskService struct {
	retriever Retriever
	llm       LLMClient
	k         int
	tokens    TokenCounter
	metrics   Metrics
	logger    *slog.Logger
}

type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// WithRetrieverK は質問応答で取得するチャンク数を設定する
func WithRetrieverK(k int) AskServiceOption {
	return func(s *AskService) {
		if k > 0 {
			s.k = k
		}
	}
}

// WithPromptTokenCounter はプロンプトのトークン数をログに出す
func WithPromptTokenCounter(counter TokenCounter) AskServiceOption {
	return func(s *AskService) {
		s.tokens = counter
	}
}

// WithAskMetrics は計測先を設定する
func WithAskMetrics(m Metrics) AskServiceOption {
	return func(s *AskService) {
		s.metrics = m
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(retriever Retriever, llm LLMClient, opts ...AskServiceOption) *AskService {
	svc := &AskService{
		retriever: retriever,
		llm:       llm,
		k:         search.DefaultK,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// StreamAnswer は質問に対する回答をストリーミングする
// 検索結果が空の場合はLLMを呼ばずに定型文だけを送る
func (s *AskService) StreamAnswer(ctx context.Context, query string, documentID mo.Option[uuid.UUID], emit Emit) error {
	chunks, err := s.retriever.Search(ctx, query, s.k, documentID)
	if err != nil {
		return fmt.Errorf("failed to retrieve chunks: %w", err)
	}

	if len(chunks) == 0 {
		s.logger.Info("Query received, no results found", "query", truncateQuery(query))
		return emit(NoAnswerMessage)
	}

	s.logger.Info("Query received",
		"query", truncateQuery(query),
		"sources", search.FormatSources(search.ExtractSources(chunks)),
	)

	prompt := BuildAskPrompt(search.BuildContext(chunks), query)
	return s.stream(ctx, ModeAnswer, prompt, emit)
}

// StreamSummary はドキュメント全体の要約をストリーミングする
func (s *AskService) StreamSummary(ctx context.Context, documentID uuid.UUID, length SummaryLength, emit Emit) error {
	chunks, err := s.retriever.DocumentChunks(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to retrieve document chunks: %w", err)
	}

	s.logger.Info("Summary request",
		"documentID", documentID,
		"length", length,
		"chunks", len(chunks),
	)

	if len(chunks) == 0 {
		s.logger.Info("No chunks found for document", "documentID", documentID)
		return emit(NoSummaryContentMessage)
	}

	prompt := BuildSummaryPrompt(search.BuildContext(chunks), length)
	return s.stream(ctx, ModeSummary, prompt, emit)
}

// stream はLLMの差分を整形して emit へ流し、応答時間を計測する
func (s *AskService) stream(ctx context.Context, mode, prompt string, emit Emit) error {
	if s.tokens != nil {
		s.logger.Debug("Prompt built", "mode", mode, "promptTokens", s.tokens.CountTokens(prompt))
	}

	var (
		start = time.Now()
		first time.Time
		total int
	)

	err := s.llm.GenerateStream(ctx, prompt, func(text string) error {
		if text == "" {
			return nil
		}
		if first.IsZero() {
			first = time.Now()
			// 最初の差分だけ先頭の改行・空白を落とす
			text = strings.TrimLeft(text, "\n\r ")
		}
		total += utf8.RuneCountInString(text)
		if text == "" {
			return nil
		}
		return emit(FixPercentSpacing(text))
	})
	if err != nil {
		return fmt.Errorf("failed to generate %s: %w", mode, err)
	}

	end := time.Now()
	llmTime := end.Sub(start)
	var ttft time.Duration
	genPhase := llmTime
	if !first.IsZero() {
		ttft = first.Sub(start)
		genPhase = end.Sub(first)
	}
	var cps float64
	if genPhase > 0 {
		cps = float64(total) / genPhase.Seconds()
	}

	s.logger.Info(fmt.Sprintf("LLM Response Time: %.2fs | First Token: %.2fs | Tokens Per Second: %.1f",
		llmTime.Seconds(), ttft.Seconds(), cps),
		"mode", mode,
	)
	if s.metrics != nil {
		s.metrics.ObserveGeneration(mode, llmTime, ttft, total)
	}
	return nil
}

func truncateQuery(query string) string {
	runes := []rune(query)
	if len(runes) > queryLogLimit {
		return string(runes[:queryLogLimit]) + "..."
	}
	return query
}
