package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding はトークン数の計測に使う BPE エンコーディング
const DefaultEncoding = "cl100k_base"

// Counter は tiktoken を利用した TokenCounter 実装
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// New は cl100k_base エンコーディングの Counter を作成する
func New() (*Counter, error) {
	return NewWithEncoding(DefaultEncoding)
}

// NewWithEncoding は指定エンコーディングの Counter を作成する
func NewWithEncoding(name string) (*Counter, error) {
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &Counter{encoding: enc}, nil
}

// CountTokens はトークン数を返す。エンコーディング未ロードなら 0
func (c *Counter) CountTokens(text string) int {
	if c == nil || c.encoding == nil {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}
