package ask

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength はチャットメッセージの最大文字数
const MaxMessageLength = 2000

// 検索結果が空の場合に生成モデルを呼ばずに返す定型文
const (
	NoAnswerMessage         = "I cannot find this information in the provided text."
	NoSummaryContentMessage = "Unable to generate summary: no content found for this document."
)

var (
	// ErrEmptyMessage は空または空白のみのメッセージ
	ErrEmptyMessage = errors.New("message cannot be empty")

	// ErrInvalidMessage はスクリプト注入の疑いがあるメッセージ
	ErrInvalidMessage = errors.New("invalid characters in message")

	// ErrMessageTooLong は最大文字数を超えるメッセージ
	ErrMessageTooLong = fmt.Errorf("message must be at most %d characters", MaxMessageLength)

	// ErrInvalidSummaryLength は未知の要約長指定
	ErrInvalidSummaryLength = errors.New("length must be one of: concise, normal, comprehensive")
)

var dangerousPatterns = []string{"<script", "javascript:", "onerror="}

// ValidateMessage はチャットメッセージを検証する
func ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	lower := strings.ToLower(message)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return ErrInvalidMessage
		}
	}
	return nil
}

// SummaryLength は要約の長さ指定
type SummaryLength string

const (
	SummaryConcise       SummaryLength = "concise"
	SummaryNormal        SummaryLength = "normal"
	SummaryComprehensive SummaryLength = "comprehensive"
)

// ParseSummaryLength は文字列を SummaryLength に変換する。空文字列は normal とする
func ParseSummaryLength(s string) (SummaryLength, error) {
	switch SummaryLength(strings.ToLower(strings.TrimSpace(s))) {
	case "", SummaryNormal:
		return SummaryNormal, nil
	case SummaryConcise:
		return SummaryConcise, nil
	case SummaryComprehensive:
		return SummaryComprehensive, nil
	default:
		return "", ErrInvalidSummaryLength
	}
}
