package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

func TestChooseChunkSize(t *testing.T) {
	tests := []struct {
		name   string
		length int
		base   int
		want   int
	}{
		{"short text shrinks", 500, 800, 640},
		{"medium text keeps base", 3000, 800, 800},
		{"long text shrinks further", 20000, 800, 480},
		{"short floor", 500, 300, 300},
		{"long floor", 20000, 300, 400},
		{"boundary 2000 is medium", 2000, 800, 800},
		{"boundary 10000 is long", 10000, 800, 480},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseChunkSize(tt.length, tt.base))
		})
	}
}

func TestChunker_DropsShortUnits(t *testing.T) {
	c := New()

	out := c.Split([]document.Unit{
		{Text: "too short"},
		{Text: "   \n\t  "},
	})

	assert.Empty(t, out)
}

func TestChunker_SmallUnitPassthrough(t *testing.T) {
	c := New()
	text := strings.Repeat("a", 200)
	meta := document.Metadata{Source: "/data/a.txt", Page: 1, Extra: map[string]any{"k": "v"}}

	out := c.Split([]document.Unit{{Text: "  " + text + "\n", Metadata: meta}})

	require.Len(t, out, 1)
	assert.Equal(t, text, out[0].Text)
	assert.Equal(t, "/data/a.txt", out[0].Metadata.Source)

	out[0].Metadata.Extra["k"] = "changed"
	assert.Equal(t, "v", meta.Extra["k"])
}

func paragraph(i int) string {
	head := fmt.Sprintf("paragraph-%02d ", i)
	return head + strings.Repeat("x", 150-len(head))
}

func TestChunker_SplitsLongUnitWithOverlap(t *testing.T) {
	paragraphs := make([]string, 20)
	for i := range paragraphs {
		paragraphs[i] = paragraph(i)
	}
	text := strings.Join(paragraphs, "\n\n")
	require.Equal(t, 3038, len(text))

	c := New()
	out := c.Split([]document.Unit{{Text: text, Metadata: document.Metadata{Page: 3}}})

	require.Greater(t, len(out), 1)
	for _, u := range out {
		assert.LessOrEqual(t, utf8.RuneCountInString(u.Text), 800)
		assert.Equal(t, 3, u.Metadata.Page)
	}

	assert.Contains(t, out[0].Text, "paragraph-04")
	assert.True(t, strings.HasPrefix(out[1].Text, "paragraph-04"), "second chunk should start with the overlapping paragraph")
	assert.Contains(t, out[len(out)-1].Text, "paragraph-19")
}

func TestRecursiveSplitter_CharacterFallback(t *testing.T) {
	s := NewRecursiveSplitter(4, 1, nil)

	assert.Equal(t, []string{"abcd", "defg", "ghij"}, s.Split("abcdefghij"))
}

func TestRecursiveSplitter_CountsRunes(t *testing.T) {
	s := NewRecursiveSplitter(2, 0, nil)

	assert.Equal(t, []string{"éé", "éé", "é"}, s.Split("ééééé"))
}

func TestRecursiveSplitter_KeepsSeparatorAtStart(t *testing.T) {
	s := NewRecursiveSplitter(10, 0, nil)

	assert.Equal(t, []string{"One. Two", ". Three."}, s.Split("One. Two. Three."))
}

func TestRecursiveSplitter_ClampsOverlap(t *testing.T) {
	s := NewRecursiveSplitter(8, 20, nil)

	assert.Equal(t, 2, s.overlap)
}
