package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
	"github.com/matthias-truyzelaere/documindr/internal/core/ingestion"
)

// カテゴリ名
const (
	CategoryPDFPage      = "PDFPage"
	CategoryText         = "Text"
	CategoryDocument     = "Document"
	CategoryPresentation = "Presentation"
	CategorySlide        = "Slide"
)

// minPageChars は PDF ページを採用する最小文字数
const minPageChars = 10

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// Loader は拡張子に応じて抽出器を切り替えるドキュメントローダー
type Loader struct {
	logger *slog.Logger
}

// Option は Loader のオプション設定
type Option func(*Loader)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// New は新しい Loader を作成する
func New(opts ...Option) *Loader {
	l := &Loader{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Load はファイルを論理単位の列として読み込む
// PDF はページ単位、PPTX はスライド単位、それ以外はファイル全体で1単位
func (l *Loader) Load(ctx context.Context, path string) ([]document.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	units, err := l.load(path)
	if err != nil {
		l.logger.Error("failed to load document", "filename", filepath.Base(path), "error", err)
		return nil, err
	}
	return units, nil
}

func (l *Loader) load(path string) ([]document.Unit, error) {
	switch ext := ingestion.Extension(path); ext {
	case ".pdf":
		return loadPDF(path)
	case ".pptx":
		return loadPPTX(path)
	case ".txt":
		return single(path, CategoryText, readText)
	case ".rtf":
		return single(path, CategoryText, readRTF)
	case ".docx":
		return single(path, CategoryDocument, readDOCX)
	case ".doc":
		return single(path, CategoryDocument, readLegacy)
	case ".ppt":
		return single(path, CategoryPresentation, readLegacy)
	default:
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}
}

// single は抽出器の結果を整形して1単位にまとめる。本文が空なら単位を返さない
func single(path, category string, extract func(string) (string, error)) ([]document.Unit, error) {
	raw, err := extract(path)
	if err != nil {
		return nil, err
	}

	text := CleanWhitespace(raw)
	if text == "" {
		return nil, nil
	}
	return []document.Unit{{Text: text, Metadata: baseMetadata(path, category)}}, nil
}

func baseMetadata(path, category string) document.Metadata {
	return document.Metadata{
		Source:   path,
		Category: category,
		Filename: filepath.Base(path),
	}
}

// CleanWhitespace は行内の連続空白を1つにまとめ、各行を trim し、3行以上の改行を空行1つに縮める
func CleanWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}

	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// インターフェース実装の確認
var _ ingestion.Loader = (*Loader)(nil)
