package loader

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

// loadPDF はページごとにテキストを抽出する。10文字未満のページは捨てる
func loadPDF(path string) ([]document.Unit, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	pages := make([]string, r.NumPage())
	for i := range pages {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}

		text, err := pageText(page)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i+1, err)
		}
		pages[i] = text
	}

	return pageUnits(path, pages), nil
}

// pageUnits はページごとの抽出テキストを単位に変換する。pages[i] は i+1 ページ目
// 空白を除いて minPageChars 文字未満のページは除外し、残りのページ番号は保つ
func pageUnits(path string, pages []string) []document.Unit {
	var units []document.Unit
	for i, text := range pages {
		text = strings.TrimSpace(text)
		if utf8.RuneCountInString(text) < minPageChars {
			continue
		}

		meta := baseMetadata(path, CategoryPDFPage)
		meta.Page = i + 1
		units = append(units, document.Unit{Text: text, Metadata: meta})
	}
	return units
}

// pageText は壊れたコンテンツストリームでのパニックをエラーに変換する
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page content: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}
