package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
	"github.com/matthias-truyzelaere/documindr/internal/core/ingestion/chunk"
	"github.com/matthias-truyzelaere/documindr/internal/infra/memory"
	"github.com/matthias-truyzelaere/documindr/internal/platform/logger"
)

// stubLoader はファイル内容を1単位として返すか、固定の単位を返す
type stubLoader struct {
	mu    sync.Mutex
	units []document.Unit
	err   error
	calls int
}

func (l *stubLoader) Load(_ context.Context, path string) ([]document.Unit, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()

	if l.err != nil {
		return nil, l.err
	}
	if l.units != nil {
		out := make([]document.Unit, len(l.units))
		for i, u := range l.units {
			u.Metadata.Source = path
			out[i] = u
		}
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []document.Unit{{Text: string(data), Metadata: document.Metadata{Source: path, Page: 1}}}, nil
}

type stubEmbedder struct {
	mu         sync.Mutex
	batchSizes []int
	err        error
}

func (e *stubEmbedder) BatchEmbed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.batchSizes = append(e.batchSizes, len(texts))
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), float32(i)}
	}
	return out, nil
}

type lengthCounter struct{}

func (lengthCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

func longText(word string, n int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

func newTestService(t *testing.T, repo Repository, loader Loader, embedder Embedder, opts ...ServiceOption) *Service {
	t.Helper()
	base := []ServiceOption{
		WithDataPath(t.TempDir()),
		WithIngestLogger(logger.Discard()),
		WithTokenCounter(lengthCounter{}),
	}
	return NewService(repo, loader, chunk.New(), embedder, append(base, opts...)...)
}

func upload(name, content string) Upload {
	return Upload{Filename: name, Size: int64(len(content)), Body: strings.NewReader(content)}
}

func TestService_IngestThreePageDocument(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	// 2ページ目は空白のためローダーが除外済み
	loader := &stubLoader{units: []document.Unit{
		{Text: longText("alpha", 40), Metadata: document.Metadata{Page: 1, Category: "PDFPage"}},
		{Text: longText("gamma", 40), Metadata: document.Metadata{Page: 3, Category: "PDFPage"}},
	}}
	embedder := &stubEmbedder{}
	svc := newTestService(t, store, loader, embedder)

	result, err := svc.Ingest(ctx, upload("report.txt", "page one\f\fpage three"))
	require.NoError(t, err)

	assert.Equal(t, "report.txt", result.Filename)
	assert.Equal(t, 2, result.ChunksIndexed)
	assert.False(t, result.Skipped())
	assert.Equal(t, []int{2}, embedder.batchSizes)

	doc := store.Document(result.DocumentID).MustGet()
	assert.Equal(t, document.StatusCompleted, doc.Status)
	assert.Equal(t, "txt", doc.FileType)
	assert.Equal(t, int64(len("page one\f\fpage three")), doc.FileSize)

	chunks, err := store.AllChunks(ctx, result.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		assert.Equal(t, "report.txt", c.Metadata.Filename)
		assert.Equal(t, 40, c.Metadata.Tokens)
	}
	assert.Equal(t, 1, chunks[0].Metadata.Page)
	assert.Equal(t, 3, chunks[1].Metadata.Page)
}

func TestService_IngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	loader := &stubLoader{}
	embedder := &stubEmbedder{}
	svc := newTestService(t, store, loader, embedder)
	content := longText("repeated", 30)

	first, err := svc.Ingest(ctx, upload("notes.txt", content))
	require.NoError(t, err)
	require.Greater(t, first.ChunksIndexed, 0)

	second, err := svc.Ingest(ctx, upload("copy-of-notes.txt", content))
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, 0, second.ChunksIndexed)
	assert.True(t, second.Skipped())
	assert.Equal(t, 1, loader.calls)
	assert.Len(t, embedder.batchSizes, 1)

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestService_ValidationHappensBeforeIO(t *testing.T) {
	tests := []struct {
		name    string
		upload  Upload
		wantErr error
		wantMsg string
	}{
		{
			name:    "missing filename",
			upload:  upload("  ", "content"),
			wantErr: ErrInvalidFileType,
			wantMsg: "Filename is required.",
		},
		{
			name:    "unsupported extension",
			upload:  upload("photo.jpg", "content"),
			wantErr: ErrInvalidFileType,
			wantMsg: "Only files with extensions .doc, .docx, .pdf, .ppt, .pptx, .rtf, .txt are supported.",
		},
		{
			name:    "empty file",
			upload:  upload("empty.txt", ""),
			wantErr: ErrInvalidFileType,
			wantMsg: "File is empty.",
		},
		{
			name:    "declared size above limit",
			upload:  Upload{Filename: "big.txt", Size: 2048, Body: strings.NewReader("x")},
			wantErr: ErrFileTooLarge,
			wantMsg: "File size exceeds maximum allowed size of 0.0 MB.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &stubLoader{}
			embedder := &stubEmbedder{}
			svc := newTestService(t, memory.NewStore(), loader, embedder, WithMaxFileSize(1024))

			_, err := svc.Ingest(context.Background(), tt.upload)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotErrorIs(t, err, ErrProcessing)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Zero(t, loader.calls)
			assert.Empty(t, embedder.batchSizes)
		})
	}
}

func TestService_RejectsBodyLargerThanLimit(t *testing.T) {
	loader := &stubLoader{}
	dataPath := t.TempDir()
	svc := newTestService(t, memory.NewStore(), loader, &stubEmbedder{},
		WithMaxFileSize(16), WithDataPath(dataPath))

	_, err := svc.Ingest(context.Background(), Upload{
		Filename: "liar.txt",
		Size:     4,
		Body:     strings.NewReader(strings.Repeat("x", 64)),
	})

	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Zero(t, loader.calls)
	assert.NoFileExists(t, filepath.Join(dataPath, "liar.txt"))
}

func TestService_SanitizesStoredFilename(t *testing.T) {
	dataPath := t.TempDir()
	svc := newTestService(t, memory.NewStore(), &stubLoader{}, &stubEmbedder{}, WithDataPath(dataPath))

	result, err := svc.Ingest(context.Background(), upload("../../etc/passwd.txt", longText("word", 30)))
	require.NoError(t, err)

	assert.Equal(t, "__etc_passwd.txt", result.Filename)
	assert.FileExists(t, filepath.Join(dataPath, "__etc_passwd.txt"))
}

func TestService_EmbeddingFailureLeavesNoDocument(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newTestService(t, store, &stubLoader{}, &stubEmbedder{err: errors.New("backend down")})

	_, err := svc.Ingest(ctx, upload("doc.txt", longText("word", 30)))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessing)
	assert.Contains(t, err.Error(), "backend down")

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestService_LoaderFailureIsProcessingError(t *testing.T) {
	loadErr := errors.New("corrupt file")
	svc := newTestService(t, memory.NewStore(), &stubLoader{err: loadErr}, &stubEmbedder{})

	_, err := svc.Ingest(context.Background(), upload("doc.txt", "anything"))

	assert.ErrorIs(t, err, ErrProcessing)
	assert.ErrorIs(t, err, loadErr)
}

func TestService_NoExtractableText(t *testing.T) {
	embedder := &stubEmbedder{}
	svc := newTestService(t, memory.NewStore(), &stubLoader{}, embedder)

	_, err := svc.Ingest(context.Background(), upload("short.txt", "tiny"))

	assert.ErrorIs(t, err, ErrProcessing)
	assert.Empty(t, embedder.batchSizes)
}

// racingRepo は並行アップロードで先に同じハッシュが登録された状況を再現する
type racingRepo struct {
	winner  uuid.UUID
	lookups int
}

func (r *racingRepo) GetDocumentByHash(context.Context, string) (mo.Option[uuid.UUID], error) {
	r.lookups++
	if r.lookups == 1 {
		return mo.None[uuid.UUID](), nil
	}
	return mo.Some(r.winner), nil
}

func (r *racingRepo) InsertDocument(context.Context, document.NewDocument) (uuid.UUID, error) {
	return uuid.Nil, document.ErrDuplicateHash
}

func (r *racingRepo) InsertChunksAndComplete(context.Context, uuid.UUID, []document.NewChunk) (int, error) {
	return 0, errors.New("must not be called")
}

func TestService_DuplicateRaceFallsBackToLookup(t *testing.T) {
	repo := &racingRepo{winner: uuid.New()}
	svc := newTestService(t, repo, &stubLoader{}, &stubEmbedder{})

	result, err := svc.Ingest(context.Background(), upload("doc.txt", longText("word", 30)))
	require.NoError(t, err)

	assert.Equal(t, repo.winner, result.DocumentID)
	assert.Equal(t, 0, result.ChunksIndexed)
	assert.Equal(t, 2, repo.lookups)
}

func TestService_IngestPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "local.txt")
	require.NoError(t, os.WriteFile(path, []byte(longText("local", 30)), 0o644))

	store := memory.NewStore()
	svc := newTestService(t, store, &stubLoader{}, &stubEmbedder{})

	result, err := svc.IngestPath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "local.txt", result.Filename)
	assert.Equal(t, 1, result.ChunksIndexed)

	_, err = svc.IngestPath(context.Background(), dir)
	assert.Error(t, err)
}

func TestService_IngestPathInsideDataPath(t *testing.T) {
	dataPath := t.TempDir()
	path := filepath.Join(dataPath, "stored.txt")
	content := longText("stored", 30)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	store := memory.NewStore()
	svc := newTestService(t, store, &stubLoader{}, &stubEmbedder{}, WithDataPath(dataPath))

	result, err := svc.IngestPath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksIndexed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

// gatedRepo は指定ハッシュの最初の検索を release が閉じるまで止める
type gatedRepo struct {
	*memory.Store
	hash    string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRepo) GetDocumentByHash(ctx context.Context, contentHash string) (mo.Option[uuid.UUID], error) {
	if contentHash == r.hash {
		r.once.Do(func() {
			close(r.entered)
			<-r.release
		})
	}
	return r.Store.GetDocumentByHash(ctx, contentHash)
}

func TestService_ConcurrentSameNameUploadsKeepTheirOwnContent(t *testing.T) {
	ctx := context.Background()
	dataPath := t.TempDir()
	alpha := longText("alpha", 30)
	beta := longText("beta", 30)

	alphaHash, err := HashReader(strings.NewReader(alpha))
	require.NoError(t, err)

	repo := &gatedRepo{
		Store:   memory.NewStore(),
		hash:    alphaHash,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newTestService(t, repo, &stubLoader{}, &stubEmbedder{}, WithDataPath(dataPath))

	type outcome struct {
		result *Result
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		result, err := svc.Ingest(ctx, upload("same.txt", alpha))
		first <- outcome{result, err}
	}()

	// alpha の保存後、検索の手前で beta が同名で割り込む
	<-repo.entered
	second, err := svc.Ingest(ctx, upload("same.txt", beta))
	require.NoError(t, err)
	close(repo.release)

	got := <-first
	require.NoError(t, got.err)
	require.NotEqual(t, second.DocumentID, got.result.DocumentID)

	alphaChunks, err := repo.AllChunks(ctx, got.result.DocumentID)
	require.NoError(t, err)
	require.NotEmpty(t, alphaChunks)
	for _, c := range alphaChunks {
		assert.Contains(t, c.Content, "alpha")
		assert.NotContains(t, c.Content, "beta")
		assert.Equal(t, "same.txt", c.Metadata.Filename)
		assert.Equal(t, filepath.Join(dataPath, "same.txt"), c.Metadata.Source)
	}

	betaChunks, err := repo.AllChunks(ctx, second.DocumentID)
	require.NoError(t, err)
	require.NotEmpty(t, betaChunks)
	for _, c := range betaChunks {
		assert.Contains(t, c.Content, "beta")
	}

	docs, err := repo.ListDocuments(ctx)
	require.NoError(t, err)
	hashes := make([]string, 0, len(docs))
	for _, d := range docs {
		hashes = append(hashes, d.ContentHash)
	}
	assert.Contains(t, hashes, alphaHash)

	entries, err := os.ReadDir(dataPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "same.txt", entries[0].Name())
}

func TestService_FailedIngestLeavesNoTempFile(t *testing.T) {
	dataPath := t.TempDir()
	svc := newTestService(t, memory.NewStore(), &stubLoader{}, &stubEmbedder{err: errors.New("backend down")},
		WithDataPath(dataPath))

	_, err := svc.Ingest(context.Background(), upload("doc.txt", longText("word", 30)))
	require.Error(t, err)

	entries, err := os.ReadDir(dataPath)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
