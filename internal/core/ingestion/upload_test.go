package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateExtension(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"report.pdf", true},
		{"notes.docx", true},
		{"readme.txt", true},
		{"SLIDES.PPTX", true},
		{"photo.jpg", false},
		{"script.py", false},
		{"noextension", false},
		{".pdf", false},
		{"trailing.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateExtension(tt.name))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"traversal", "../../etc/passwd.txt", "__etc_passwd.txt"},
		{"backslash", `dir\file.pdf`, "dir_file.pdf"},
		{"special chars", "  my<report>|v2?.pdf ", "myreportv2.pdf"},
		{"keeps spaces and dashes", "Q3 - summary.docx", "Q3 - summary.docx"},
		{"keeps unicode letters", "résumé.pdf", "résumé.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilename_CapsLength(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("a", 300) + ".pdf")
	assert.Len(t, []rune(got), 255)
}

func TestFileType(t *testing.T) {
	assert.Equal(t, "pdf", FileType("a.PDF"))
	assert.Equal(t, "unknown", FileType("a"))
}

func TestValidateUpload(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		name, err := ValidateUpload("../a.pdf", 10, 100)
		require.NoError(t, err)
		assert.Equal(t, "_a.pdf", name)
	})

	t.Run("missing filename", func(t *testing.T) {
		_, err := ValidateUpload("  ", 10, 100)
		assert.ErrorIs(t, err, ErrInvalidFileType)
		assert.Equal(t, "Filename is required.", err.Error())
	})

	t.Run("bad extension", func(t *testing.T) {
		_, err := ValidateUpload("a.exe", 10, 100)
		assert.ErrorIs(t, err, ErrInvalidFileType)
		assert.Equal(t, "Only files with extensions .doc, .docx, .pdf, .ppt, .pptx, .rtf, .txt are supported.", err.Error())
	})

	t.Run("too large", func(t *testing.T) {
		_, err := ValidateUpload("a.pdf", 3*1024*1024, 2*1024*1024)
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.Equal(t, "File size exceeds maximum allowed size of 2.0 MB.", err.Error())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ValidateUpload("a.pdf", 0, 100)
		assert.ErrorIs(t, err, ErrInvalidFileType)
		assert.Equal(t, "File is empty.", err.Error())
	})
}
