package search

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

const (
	contextDelimiter = "\n\n---\n\n"
	unknownSource    = "unknown"
)

// BuildContext はチャンク本文を1始まりの番号付きで連結し、生成モデルへ渡す根拠テキストを作る
func BuildContext(chunks []document.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[Chunk %d]\n%s", i+1, c.Content)
	}
	return strings.Join(parts, contextDelimiter)
}

// ExtractSources は各チャンクの "ファイル名:ページ:チャンク番号" を返す
func ExtractSources(chunks []document.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		name := unknownSource
		if c.Metadata.Source != "" {
			name = filepath.Base(c.Metadata.Source)
		}
		out[i] = fmt.Sprintf("%s:%d:%d", name, c.Metadata.Page, c.Metadata.ChunkIndex)
	}
	return out
}

// FormatSources はログ用に出典のパス部分をファイル名だけにして連結する
func FormatSources(sources []string) string {
	formatted := make([]string, len(sources))
	for i, source := range sources {
		parts := strings.Split(source, ":")
		if len(parts) >= 3 {
			formatted[i] = fmt.Sprintf("%s:%s:%s", filepath.Base(parts[0]), parts[1], parts[2])
			continue
		}
		formatted[i] = filepath.Base(source)
	}
	return strings.Join(formatted, ", ")
}
