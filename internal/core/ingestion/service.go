package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

const (
	// DefaultDataPath はアップロードファイルの保存先
	DefaultDataPath = "./data"
	// DefaultMaxFileSize はアップロード可能な最大バイト数
	DefaultMaxFileSize int64 = 200 * 1024 * 1024
)

// 取り込み結果のメトリクスラベル
const (
	OutcomeIndexed = "indexed"
	OutcomeSkipped = "skipped"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// Upload はアップロードされた1ファイル
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// Result は取り込み結果。ChunksIndexed が0なら登録済みのためスキップしたことを表す
type Result struct {
	Filename      string
	DocumentID    uuid.UUID
	ChunksIndexed int
}

// Skipped は重複としてスキップされたかを返す
func (r *Result) Skipped() bool {
	return r.ChunksIndexed == 0
}

// Metrics は取り込み処理の計測値を受け取る
type Metrics interface {
	ObserveIngestion(outcome string, chunks int, elapsed time.Duration)
}

// Service はファイルの検証・保存・重複排除・分割・ベクトル化・永続化を行う
type Service struct {
	repository  Repository
	loader      Loader
	splitter    Splitter
	embedder    Embedder
	tokens      TokenCounter
	metrics     Metrics
	dataPath    string
	maxFileSize int64
	logger      *slog.Logger
}

type serviceOptions struct {
	tokens      TokenCounter
	metrics     Metrics
	dataPath    string
	maxFileSize int64
	logger      *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithIngestLogger は Service にロガーを設定する
func WithIngestLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithTokenCounter はチャンクのトークン数計測を有効にする
func WithTokenCounter(counter TokenCounter) ServiceOption {
	return func(o *serviceOptions) {
		o.tokens = counter
	}
}

// WithIngestMetrics は計測先を設定する
func WithIngestMetrics(m Metrics) ServiceOption {
	return func(o *serviceOptions) {
		o.metrics = m
	}
}

// WithDataPath は保存先ディレクトリを設定する
func WithDataPath(path string) ServiceOption {
	return func(o *serviceOptions) {
		if path != "" {
			o.dataPath = path
		}
	}
}

// WithMaxFileSize はサイズ上限を設定する
func WithMaxFileSize(size int64) ServiceOption {
	return func(o *serviceOptions) {
		if size > 0 {
			o.maxFileSize = size
		}
	}
}

// NewService は新しい Service を作成する
func NewService(
	repo Repository,
	loader Loader,
	splitter Splitter,
	embedder Embedder,
	opts ...ServiceOption,
) *Service {
	options := serviceOptions{
		dataPath:    DefaultDataPath,
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Service{
		repository:  repo,
		loader:      loader,
		splitter:    splitter,
		embedder:    embedder,
		tokens:      options.tokens,
		metrics:     options.metrics,
		dataPath:    options.dataPath,
		maxFileSize: options.maxFileSize,
		logger:      options.logger,
	}
}

// Ingest はアップロードを取り込む
// 同じ内容のドキュメントが既に存在する場合は読み込み・分割・ベクトル化を行わず既存IDを返す
func (s *Service) Ingest(ctx context.Context, upload Upload) (*Result, error) {
	start := time.Now()

	filename, err := ValidateUpload(upload.Filename, upload.Size, s.maxFileSize)
	if err != nil {
		s.observe(OutcomeInvalid, 0, start)
		return nil, err
	}

	result, err := s.ingest(ctx, filename, upload.Body)
	if err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			s.observe(OutcomeInvalid, 0, start)
			return nil, err
		}
		s.observe(OutcomeFailed, 0, start)
		s.logger.Error("Failed to process document", "filename", filename, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	if result.Skipped() {
		s.observe(OutcomeSkipped, 0, start)
		s.logger.Info("Skipped indexing (already indexed)",
			"filename", filename,
			"documentID", result.DocumentID,
		)
	} else {
		s.observe(OutcomeIndexed, result.ChunksIndexed, start)
		s.logger.Info("Indexed document",
			"filename", filename,
			"documentID", result.DocumentID,
			"chunks", result.ChunksIndexed,
			"duration", time.Since(start),
		)
	}
	return result, nil
}

// IngestPath はローカルファイルを取り込む
func (s *Service) IngestPath(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return s.Ingest(ctx, Upload{
		Filename: filepath.Base(path),
		Size:     info.Size(),
		Body:     f,
	})
}

// ingest はアップロードごとの一時ファイルに保存してから処理する
// ハッシュ計算と読み込みは一時ファイルに対して行い、同名の並行アップロードと内容が混ざらないようにする
func (s *Service) ingest(ctx context.Context, filename string, body io.Reader) (*Result, error) {
	tmpPath, size, err := s.save(filename, body)
	if err != nil {
		return nil, err
	}

	dest := filepath.Join(s.dataPath, filename)
	published := false
	defer func() {
		if !published {
			_ = os.Remove(tmpPath)
		}
	}()
	publish := func() {
		if err := os.Rename(tmpPath, dest); err != nil {
			s.logger.Warn("Failed to move uploaded file into place", "filename", filename, "error", err)
			return
		}
		published = true
	}

	contentHash, err := HashFile(tmpPath)
	if err != nil {
		return nil, err
	}

	existing, err := s.repository.GetDocumentByHash(ctx, contentHash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up document by hash: %w", err)
	}
	if id, ok := existing.Get(); ok {
		publish()
		return &Result{Filename: filename, DocumentID: id}, nil
	}

	units, err := s.loader.Load(ctx, tmpPath)
	if err != nil {
		return nil, err
	}

	chunks := s.splitter.Split(units)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", filename)
	}

	texts := make([]string, len(chunks))
	newChunks := make([]document.NewChunk, len(chunks))
	for i, c := range chunks {
		meta := c.Metadata
		meta.ChunkIndex = i
		// 一時ファイル名ではなく公開後のパスと元のファイル名を記録する
		meta.Source = dest
		meta.Filename = filename
		if s.tokens != nil {
			meta.Tokens = s.tokens.CountTokens(c.Text)
		}
		texts[i] = c.Text
		newChunks[i] = document.NewChunk{Content: c.Text, Metadata: meta}
	}

	vectors, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(newChunks) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(newChunks), len(vectors))
	}
	for i := range newChunks {
		newChunks[i].Embedding = vectors[i]
	}

	documentID, err := s.repository.InsertDocument(ctx, document.NewDocument{
		Filename:    filename,
		FileType:    FileType(filename),
		FileSize:    size,
		ContentHash: contentHash,
	})
	if errors.Is(err, document.ErrDuplicateHash) {
		return s.duplicateResult(ctx, filename, contentHash, publish, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	count, err := s.repository.InsertChunksAndComplete(ctx, documentID, newChunks)
	if errors.Is(err, document.ErrDuplicateHash) {
		return s.duplicateResult(ctx, filename, contentHash, publish, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert chunks for document %s: %w", documentID, err)
	}

	publish()
	return &Result{Filename: filename, DocumentID: documentID, ChunksIndexed: count}, nil
}

// duplicateResult は同一内容の並行アップロードに負けた場合に、先に完了したドキュメントを返す
func (s *Service) duplicateResult(ctx context.Context, filename, contentHash string, publish func(), dupErr error) (*Result, error) {
	existing, err := s.repository.GetDocumentByHash(ctx, contentHash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up document by hash: %w", err)
	}
	id, ok := existing.Get()
	if !ok {
		return nil, dupErr
	}
	publish()
	return &Result{Filename: filename, DocumentID: id}, nil
}

// save はアップロード内容を保存先ディレクトリの一時ファイルに書き込み、パスと実サイズを返す
// 一時ファイルは拡張子を保つためローダーはそのまま形式を判別できる
func (s *Service) save(filename string, body io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.dataPath, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create data directory: %w", err)
	}

	f, err := os.CreateTemp(s.dataPath, ".upload-*"+Extension(filename))
	if err != nil {
		return "", 0, fmt.Errorf("failed to save uploaded file: %w", err)
	}
	tmpPath := f.Name()

	// 申告サイズを信用せず、上限+1バイトまでしか読まない
	written, copyErr := io.Copy(f, io.LimitReader(body, s.maxFileSize+1))
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to save uploaded file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to save uploaded file: %w", closeErr)
	}

	switch {
	case written > s.maxFileSize:
		_ = os.Remove(tmpPath)
		return "", 0, newInputError(ErrFileTooLarge, "File size exceeds maximum allowed size of %.1f MB.",
			float64(s.maxFileSize)/(1024*1024))
	case written == 0:
		_ = os.Remove(tmpPath)
		return "", 0, newInputError(ErrInvalidFileType, "File is empty.")
	}

	return tmpPath, written, nil
}

func (s *Service) observe(outcome string, chunks int, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveIngestion(outcome, chunks, time.Since(start))
	}
}
