package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIgnoreFilter_ReadsBothFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("# comment\n\ndrafts/\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("*.rtf\r\n!keep.rtf\n"), 0o644))

	f, err := NewIgnoreFilter(root)
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"report.pdf", false},
		{"drafts/", true},
		{"drafts/plan.docx", true},
		{"notes/memo.rtf", true},
		{"keep.rtf", false},
		{".git/", true},
		{"~$report.docx", true},
		{"archive/.DS_Store", true},
		{"slides/deck.pptx", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.ShouldIgnore(tt.path), tt.path)
	}
}

func TestNewIgnoreFilter_NoIgnoreFiles(t *testing.T) {
	f, err := NewIgnoreFilter(t.TempDir())
	require.NoError(t, err)

	assert.False(t, f.ShouldIgnore("a.txt"))
	assert.True(t, f.ShouldIgnore("node_modules/"))
}

func TestIgnoreFilter_Empty(t *testing.T) {
	assert.False(t, NewFromPatterns().ShouldIgnore("anything.pdf"))

	var nilFilter *IgnoreFilter
	assert.False(t, nilFilter.ShouldIgnore("anything.pdf"))
}
