package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthias-truyzelaere/documindr/internal/infra/memory"
	"github.com/matthias-truyzelaere/documindr/internal/platform/logger"
)

type prefixIgnore []string

func (p prefixIgnore) ShouldIgnore(rel string) bool {
	for _, prefix := range p {
		if strings.HasPrefix(rel, prefix) {
			return true
		}
	}
	return false
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPipeline_RunIngestsSupportedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), longText("apple", 30))
	writeFile(t, filepath.Join(root, "nested", "b.txt"), longText("banana", 30))
	writeFile(t, filepath.Join(root, "nested", "dup.txt"), longText("apple", 30))
	writeFile(t, filepath.Join(root, "skip", "c.txt"), longText("cherry", 30))
	writeFile(t, filepath.Join(root, "image.jpg"), "not a document")
	writeFile(t, filepath.Join(root, "tiny.txt"), "tiny")

	store := memory.NewStore()
	svc := newTestService(t, store, &stubLoader{}, &stubEmbedder{})
	// 重複判定を決定的にするため1ワーカーで実行する
	pipeline := NewPipeline(svc, prefixIgnore{"skip/"}, 1, logger.Discard())

	stats, err := pipeline.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.IndexedFiles)
	assert.Equal(t, 1, stats.SkippedFiles)
	assert.Equal(t, 1, stats.FailedFiles)
	assert.Equal(t, 2, stats.TotalChunks)

	docs, err := store.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestPipeline_RunMissingRoot(t *testing.T) {
	svc := newTestService(t, memory.NewStore(), &stubLoader{}, &stubEmbedder{})
	pipeline := NewPipeline(svc, nil, 2, logger.Discard())

	_, err := pipeline.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestPipeline_RunCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), longText("apple", 30))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestService(t, memory.NewStore(), &stubLoader{}, &stubEmbedder{})
	_, err := NewPipeline(svc, nil, 1, logger.Discard()).Run(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}
