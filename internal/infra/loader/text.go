package loader

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"
)

// minRunLength はレガシーバイナリから拾う文字列の最小長
const minRunLength = 4

// ErrBinaryContent はテキストとして扱えない内容のエラー
var ErrBinaryContent = errors.New("file content is binary")

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if enry.IsBinary(data) {
		return "", ErrBinaryContent
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

func readRTF(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(data)), `{\rtf`) {
		return "", errors.New("missing rtf header")
	}
	return StripRTF(string(data)), nil
}

// skipDestinations は本文を含まない RTF の宛先グループ
var skipDestinations = map[string]bool{
	"fonttbl":      true,
	"colortbl":     true,
	"stylesheet":   true,
	"info":         true,
	"pict":         true,
	"header":       true,
	"footer":       true,
	"listtable":    true,
	"generator":    true,
	"themedata":    true,
	"datastore":    true,
	"latentstyles": true,
}

type rtfGroup struct {
	skip bool
	uc   int
}

// StripRTF は RTF の制御語とグループを取り除いてプレーンテキストを返す
func StripRTF(src string) string {
	var out strings.Builder
	stack := []rtfGroup{{uc: 1}}
	pendingSkip := 0

	cur := func() *rtfGroup { return &stack[len(stack)-1] }
	emit := func(s string) {
		if pendingSkip > 0 {
			pendingSkip--
			return
		}
		if !cur().skip {
			out.WriteString(s)
		}
	}

	for i := 0; i < len(src); {
		c := src[i]
		switch c {
		case '{':
			stack = append(stack, *cur())
			i++
		case '}':
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			i++
		case '\r', '\n':
			i++
		case '\\':
			i++
			if i >= len(src) {
				break
			}
			next := src[i]
			switch {
			case next == '\\' || next == '{' || next == '}':
				emit(string(next))
				i++
			case next == '*':
				cur().skip = true
				i++
			case next == '\'':
				if i+2 < len(src) {
					if v, err := strconv.ParseUint(src[i+1:i+3], 16, 8); err == nil {
						emit(string(rune(v)))
					}
					i += 3
				} else {
					i = len(src)
				}
			case isASCIILetter(next):
				start := i
				for i < len(src) && isASCIILetter(src[i]) {
					i++
				}
				word := src[start:i]

				numStart := i
				if i < len(src) && src[i] == '-' {
					i++
				}
				for i < len(src) && src[i] >= '0' && src[i] <= '9' {
					i++
				}
				param := src[numStart:i]
				if i < len(src) && src[i] == ' ' {
					i++
				}

				switch {
				case skipDestinations[word]:
					cur().skip = true
				case word == "par" || word == "line" || word == "sect" || word == "page":
					emit("\n")
				case word == "tab" || word == "cell":
					emit("\t")
				case word == "row":
					emit("\n")
				case word == "uc":
					if n, err := strconv.Atoi(param); err == nil {
						cur().uc = n
					}
				case word == "u":
					if n, err := strconv.Atoi(param); err == nil {
						if n < 0 {
							n += 65536
						}
						emit(string(rune(n)))
						pendingSkip = cur().uc
					}
				}
			default:
				// ~ や - などの制御記号
				if next == '~' {
					emit(" ")
				}
				i++
			}
		default:
			r, size := utf8.DecodeRuneInString(src[i:])
			emit(string(r))
			i += size
		}
	}

	return out.String()
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func readLegacy(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return PrintableRuns(data, minRunLength), nil
}

// PrintableRuns は旧形式の Office バイナリから minLen 文字以上の印字可能な並びを拾う
// 1バイト文字列と UTF-16LE 文字列の両方を対象にする
func PrintableRuns(data []byte, minLen int) string {
	var runs []string

	var ascii []byte
	flushASCII := func() {
		if len(ascii) >= minLen {
			runs = append(runs, string(ascii))
		}
		ascii = ascii[:0]
	}
	for _, b := range data {
		if isPrintable(b) {
			ascii = append(ascii, b)
			continue
		}
		flushASCII()
	}
	flushASCII()

	var wide []byte
	flushWide := func() {
		if len(wide) >= minLen {
			runs = append(runs, string(wide))
		}
		wide = wide[:0]
	}
	for i := 0; i+1 < len(data); i += 2 {
		if data[i+1] == 0 && isPrintable(data[i]) {
			wide = append(wide, data[i])
			continue
		}
		flushWide()
	}
	flushWide()

	return strings.Join(runs, "\n")
}

func isPrintable(b byte) bool {
	return (b >= 0x20 && b <= 0x7e) || b == '\t'
}
