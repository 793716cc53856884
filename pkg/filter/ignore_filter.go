package filter

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName はディレクトリ取り込み専用の除外ファイル名
const IgnoreFileName = ".documindrignore"

// IgnoreFilter は .gitignore と .documindrignore のパターンマッチングを提供します
type IgnoreFilter struct {
	patterns *gitignore.GitIgnore
}

// NewIgnoreFilter は root 配下の .gitignore と .documindrignore を読み込みます
// どちらも存在しない場合はデフォルトの除外パターンのみを使います
func NewIgnoreFilter(root string) (*IgnoreFilter, error) {
	var patterns []string
	for _, name := range []string{".gitignore", IgnoreFileName} {
		lines, err := readIgnoreFile(filepath.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		patterns = append(patterns, lines...)
	}
	patterns = append(patterns, defaultIgnorePatterns()...)

	return NewFromPatterns(patterns...), nil
}

// NewFromPatterns はパターン列から IgnoreFilter を作成します
func NewFromPatterns(patterns ...string) *IgnoreFilter {
	if len(patterns) == 0 {
		return &IgnoreFilter{}
	}
	return &IgnoreFilter{patterns: gitignore.CompileIgnoreLines(patterns...)}
}

// ShouldIgnore はルートからの相対パスが除外対象かどうかを判定します
// ディレクトリは末尾に "/" を付けて渡します
func (f *IgnoreFilter) ShouldIgnore(relPath string) bool {
	if f == nil || f.patterns == nil {
		return false
	}
	return f.patterns.MatchesPath(filepath.ToSlash(relPath))
}

// readIgnoreFile は空行とコメント行を除いたパターンを返します。ファイルがなければ空
func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

// defaultIgnorePatterns は常に除外するパターンを返します
func defaultIgnorePatterns() []string {
	return []string{
		// バージョン管理
		".git/",
		".svn/",

		// OS・エディタが作るファイル
		".DS_Store",
		"Thumbs.db",
		"desktop.ini",
		"__MACOSX/",
		"*.swp",
		"*~",

		// Office のロックファイル
		"~\\$*",

		// 一時ファイル
		"*.tmp",
		"*.temp",

		// 依存関係
		"node_modules/",
		"vendor/",

		// 機密情報
		".env",
		".env.*",
	}
}
