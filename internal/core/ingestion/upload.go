package ingestion

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

var (
	// ErrInvalidFileType はファイル名・拡張子・空ファイルなど入力不正のエラー
	ErrInvalidFileType = errors.New("invalid file")

	// ErrFileTooLarge はサイズ上限超過のエラー
	ErrFileTooLarge = errors.New("file too large")

	// ErrProcessing は保存・抽出・分割・Embedding・永続化の失敗
	ErrProcessing = errors.New("document processing failed")
)

// InputError は利用者にそのまま返せるメッセージを持つ入力エラー
type InputError struct {
	kind error
	msg  string
}

func newInputError(kind error, format string, args ...any) *InputError {
	return &InputError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func (e *InputError) Error() string { return e.msg }

func (e *InputError) Unwrap() error { return e.kind }

// maxFilenameLength はサニタイズ後のファイル名の最大文字数
const maxFilenameLength = 255

var allowedExtensions = map[string]struct{}{
	".txt":  {},
	".rtf":  {},
	".doc":  {},
	".docx": {},
	".pdf":  {},
	".ppt":  {},
	".pptx": {},
}

// unsafeFilenameChars は単語文字・空白・ドット・ハイフン以外
var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}\p{Mn}_\s.-]`)

// AllowedExtensions はアップロード可能な拡張子をソートして返す
func AllowedExtensions() []string {
	exts := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Extension は小文字化した拡張子を返す。".pdf" のようなドットファイルは拡張子なし
func Extension(name string) string {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") && strings.Count(base, ".") == 1 {
		return ""
	}
	ext := filepath.Ext(base)
	if ext == "." {
		return ""
	}
	return strings.ToLower(ext)
}

// ValidateExtension は拡張子が許可リストに含まれるかを判定する
func ValidateExtension(name string) bool {
	_, ok := allowedExtensions[Extension(name)]
	return ok
}

// FileType は拡張子からファイル種別タグを作る（例: "pdf"）
func FileType(name string) string {
	if ext := strings.TrimPrefix(Extension(name), "."); ext != "" {
		return ext
	}
	return "unknown"
}

// SanitizeFilename はパストラバーサルや危険な文字を取り除いたファイル名を返す
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")

	if runes := []rune(name); len(runes) > maxFilenameLength {
		name = string(runes[:maxFilenameLength])
	}
	return name
}

// ValidateUpload はI/Oの前に行う入力検証。サニタイズ済みファイル名を返す
func ValidateUpload(filename string, size, maxSize int64) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", newInputError(ErrInvalidFileType, "Filename is required.")
	}

	sanitized := SanitizeFilename(filename)
	if !ValidateExtension(sanitized) {
		return "", newInputError(ErrInvalidFileType, "Only files with extensions %s are supported.",
			strings.Join(AllowedExtensions(), ", "))
	}

	if size > maxSize {
		return "", newInputError(ErrFileTooLarge, "File size exceeds maximum allowed size of %.1f MB.",
			float64(maxSize)/(1024*1024))
	}
	if size == 0 {
		return "", newInputError(ErrInvalidFileType, "File is empty.")
	}

	return sanitized, nil
}
