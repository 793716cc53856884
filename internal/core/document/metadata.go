package document

import (
	"encoding/json"
	"maps"
	"math"
	"strconv"
	"strings"
)

// メタデータJSONの既知キー
const (
	keySource     = "source"
	keyPage       = "page"
	keyCategory   = "category"
	keyFilename   = "filename"
	keyChunkIndex = "chunk_index"
	keyDocumentID = "document_id"
	keyTokens     = "tokens"
)

// Metadata はチャンクの出自情報。既知フィールド以外は Extra に保持する
type Metadata struct {
	Source     string
	Page       int
	Category   string
	Filename   string
	ChunkIndex int
	DocumentID string
	Tokens     int
	Extra      map[string]any
}

// Clone は Extra を含めてコピーを返す
func (m Metadata) Clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = maps.Clone(m.Extra)
	}
	return out
}

// MarshalJSON は既知フィールドと Extra を1つのフラットなオブジェクトにする
func (m Metadata) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(m.Extra)+7)
	for k, v := range m.Extra {
		obj[k] = v
	}
	if m.Source != "" {
		obj[keySource] = m.Source
	}
	if m.Page != 0 {
		obj[keyPage] = m.Page
	}
	if m.Category != "" {
		obj[keyCategory] = m.Category
	}
	if m.Filename != "" {
		obj[keyFilename] = m.Filename
	}
	if m.DocumentID != "" {
		obj[keyDocumentID] = m.DocumentID
	}
	if m.Tokens != 0 {
		obj[keyTokens] = m.Tokens
	}
	obj[keyChunkIndex] = m.ChunkIndex
	return json.Marshal(obj)
}

// UnmarshalJSON は型が崩れた値（文字列の数値など）を許容して読み込む
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	*m = Metadata{}
	for k, v := range obj {
		switch k {
		case keySource:
			m.Source = asString(v)
		case keyPage:
			m.Page = asInt(v)
		case keyCategory:
			m.Category = asString(v)
		case keyFilename:
			m.Filename = asString(v)
		case keyChunkIndex:
			m.ChunkIndex = asInt(v)
		case keyDocumentID:
			m.DocumentID = asString(v)
		case keyTokens:
			m.Tokens = asInt(v)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// asInt は解釈できない値を 0 として扱う
func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return int(t)
	case int:
		return t
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
