package chunk

import (
	"strings"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

const (
	// DefaultChunkSize は基準チャンクサイズ（文字数）
	DefaultChunkSize = 800
	// DefaultMinChars はこれ未満の論理単位を捨てる閾値
	DefaultMinChars = 100
	// DefaultOverlap は隣接チャンク間で重ねる文字数
	DefaultOverlap = 200

	shortTextLength  = 2000
	mediumTextLength = 10000
	shortSizeFloor   = 300
	longSizeFloor    = 400

	// passthroughRatio 以下の長さの単位は分割しない
	passthroughRatio = 0.8
)

// Chunker は論理単位をテキスト長に応じたサイズで分割する
type Chunker struct {
	baseSize   int
	minChars   int
	overlap    int
	separators []string
}

// Option は Chunker のオプション設定
type Option func(*Chunker)

// WithBaseSize は基準チャンクサイズを設定する
func WithBaseSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.baseSize = size
		}
	}
}

// WithMinChars は最小文字数を設定する
func WithMinChars(minChars int) Option {
	return func(c *Chunker) {
		if minChars >= 0 {
			c.minChars = minChars
		}
	}
}

// WithOverlap はオーバーラップ文字数を設定する
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithSeparators は区切り文字の優先順を差し替える
func WithSeparators(separators []string) Option {
	return func(c *Chunker) {
		if len(separators) > 0 {
			c.separators = separators
		}
	}
}

// New は新しい Chunker を作成する
func New(opts ...Option) *Chunker {
	c := &Chunker{
		baseSize:   DefaultChunkSize,
		minChars:   DefaultMinChars,
		overlap:    DefaultOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChooseChunkSize はテキスト長から目標チャンクサイズを決める
//
//	length < 2000          -> max(0.8*base, 300)
//	2000 <= length < 10000 -> base
//	length >= 10000        -> max(0.6*base, 400)
func ChooseChunkSize(length, base int) int {
	switch {
	case length < shortTextLength:
		return max(int(float64(base)*0.8), shortSizeFloor)
	case length < mediumTextLength:
		return base
	default:
		return max(int(float64(base)*0.6), longSizeFloor)
	}
}

// Split は短すぎる単位を除外し、残りを目標サイズに分割する
// 出力は元単位のメタデータのコピーを持つ。ChunkIndex の採番は呼び出し側で行う
func (c *Chunker) Split(units []document.Unit) []document.Unit {
	var out []document.Unit
	for _, unit := range units {
		text := strings.TrimSpace(unit.Text)
		length := runeLen(text)
		if length < c.minChars || text == "" {
			continue
		}

		size := ChooseChunkSize(length, c.baseSize)
		if float64(length) <= float64(size)*passthroughRatio {
			out = append(out, document.Unit{Text: text, Metadata: unit.Metadata.Clone()})
			continue
		}

		splitter := NewRecursiveSplitter(size, c.overlap, c.separators)
		for _, piece := range splitter.Split(text) {
			out = append(out, document.Unit{Text: piece, Metadata: unit.Metadata.Clone()})
		}
	}
	return out
}
