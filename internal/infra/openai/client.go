package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/matthias-truyzelaere/documindr/internal/core/ask"
)

const (
	// DefaultModel はデフォルトで使用するチャットモデル
	DefaultModel = "llama3.1"

	// DefaultTemperature は回答の揺らぎを抑えた温度
	DefaultTemperature = 0.2

	// DefaultTimeout は非ストリーミング呼び出しのタイムアウト
	DefaultTimeout = 60 * time.Second

	// defaultAPIKey はAPIキー未設定時に送るダミー値（Ollamaは検証しない）
	defaultAPIKey = "ollama"
)

var (
	// ErrNoChoices は応答に候補が含まれない場合のエラー
	ErrNoChoices = errors.New("no completion choices returned")
)

// clientOptions は Ollama の OpenAI 互換エンドポイント向けの共通設定を返す
// 再試行はSDKに任せず呼び出し側で制御する
func clientOptions(baseURL, apiKey string) []option.RequestOption {
	if apiKey == "" {
		apiKey = defaultAPIKey
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/v1/"))
	}
	return opts
}

// Client は OpenAI 互換APIを使用した LLM クライアント実装
type Client struct {
	client          openai.Client
	model           string
	temperature     float64
	reasoningEffort string
	timeout         time.Duration
}

type clientOpts struct {
	model           string
	temperature     float64
	reasoningEffort string
	keepAlive       time.Duration
	timeout         time.Duration
	requestOpts     []option.RequestOption
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOpts)

// WithModel はモデル名を上書きする
func WithModel(model string) ClientOption {
	return func(o *clientOpts) {
		if model != "" {
			o.model = model
		}
	}
}

// WithTemperature は温度を設定する
func WithTemperature(t float64) ClientOption {
	return func(o *clientOpts) {
		o.temperature = t
	}
}

// WithReasoningEffort は推論モデルの思考量（low/medium/high）を設定する
func WithReasoningEffort(effort string) ClientOption {
	return func(o *clientOpts) {
		o.reasoningEffort = effort
	}
}

// WithKeepAlive はモデルをメモリに保持する時間を設定する
func WithKeepAlive(d time.Duration) ClientOption {
	return func(o *clientOpts) {
		o.keepAlive = d
	}
}

// WithTimeout は非ストリーミング呼び出しのタイムアウトを設定する
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOpts) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRequestOptions はSDKのリクエストオプションを追加する
func WithRequestOptions(opts ...option.RequestOption) ClientOption {
	return func(o *clientOpts) {
		o.requestOpts = append(o.requestOpts, opts...)
	}
}

// NewClient は新しい Client を作成する
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	o := clientOpts{
		model:       DefaultModel,
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	requestOpts := clientOptions(baseURL, apiKey)
	if o.keepAlive > 0 {
		requestOpts = append(requestOpts, option.WithJSONSet("keep_alive", int64(o.keepAlive.Seconds())))
	}
	requestOpts = append(requestOpts, o.requestOpts...)

	return &Client{
		client:          openai.NewClient(requestOpts...),
		model:           o.model,
		temperature:     o.temperature,
		reasoningEffort: o.reasoningEffort,
		timeout:         o.timeout,
	}
}

func (c *Client) params(prompt string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.reasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(c.reasoningEffort)
	}
	return params
}

// GenerateStream はストリーミングで応答を生成し、差分ごとに onDelta を呼ぶ
// ctx のキャンセルまたは onDelta のエラーでストリームを閉じて中断する
func (c *Client) GenerateStream(ctx context.Context, prompt string, onDelta func(string) error) error {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(prompt))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if err := onDelta(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("chat stream failed: %w", err)
	}
	return nil
}

// Generate は応答全体を一度に生成する
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, c.params(prompt))
}

// Ping は最小トークン数の生成でバックエンドの稼働を確認する
func (c *Client) Ping(ctx context.Context) error {
	params := c.params("ping")
	params.MaxTokens = openai.Int(1)
	_, err := c.generate(ctx, params)
	return err
}

func (c *Client) generate(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrNoChoices
	}
	return completion.Choices[0].Message.Content, nil
}

// インターフェース実装の確認
var _ ask.LLMClient = (*Client)(nil)
