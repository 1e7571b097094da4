package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/liliang-cn/synergereader/internal/chunker"
	"github.com/liliang-cn/synergereader/internal/domain"
	"github.com/liliang-cn/synergereader/internal/watcher"
	"go.uber.org/zap"
)

// maxUploadBytes caps a single uploaded or watched file
const maxUploadBytes = 32 << 20

// BatchEmbedder embeds many texts, one vector per text in order
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) [][]float32
}

// DocumentStore persists documents and their chunks
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error
	Get(ctx context.Context, id int64) (*domain.Document, error)
	List(ctx context.Context) ([]*domain.Document, error)
	UpdateMetadata(ctx context.Context, id int64, m domain.DocumentMetadata) error
}

// IngestService handles document ingestion
type IngestService struct {
	docs      DocumentStore
	embedder  BatchEmbedder
	chunkSize int
	logger    *zap.Logger
}

// NewIngestService creates a new ingest service
func NewIngestService(docs DocumentStore, embedder BatchEmbedder, chunkSize int, logger *zap.Logger) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{
		docs:      docs,
		embedder:  embedder,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// DecodeText returns content as UTF-8, reading it as Latin-1 when it is not
// valid UTF-8. A leading byte order mark is dropped.
func DecodeText(content []byte) string {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if utf8.Valid(content) {
		return string(content)
	}

	runes := make([]rune, len(content))
	for i, b := range content {
		runes[i] = rune(b)
	}
	return string(runes)
}

// Ingest chunks, embeds and stores one document
func (s *IngestService) Ingest(ctx context.Context, filename string, content []byte, meta domain.DocumentMetadata) (*domain.Document, error) {
	text := DecodeText(content)

	texts := chunker.Chunk(text, s.chunkSize)
	if len(texts) == 0 {
		return nil, &domain.EmptyInputError{What: fmt.Sprintf("document %q has no text", filename)}
	}

	vectors := s.embedder.EmbedBatch(ctx, texts)

	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{Index: i, Text: t, Embedding: vectors[i]}
	}

	doc := &domain.Document{
		Filename: filename,
		Content:  text,
		Metadata: meta,
	}
	if err := s.docs.Create(ctx, doc, chunks); err != nil {
		return nil, err
	}

	s.logger.Info("Document ingested",
		zap.Int64("document_id", doc.ID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)),
	)
	return doc, nil
}

// IngestUploads ingests every uploaded file and reports a result per file.
// One file failing does not stop the others.
func (s *IngestService) IngestUploads(ctx context.Context, files []*multipart.FileHeader, meta domain.DocumentMetadata) []domain.IngestResult {
	results := make([]domain.IngestResult, 0, len(files))
	for _, fh := range files {
		result := domain.IngestResult{Filename: fh.Filename}

		content, err := readUpload(fh)
		if err == nil {
			var doc *domain.Document
			if doc, err = s.Ingest(ctx, fh.Filename, content, meta); err == nil {
				result.DocumentID = doc.ID
				result.Chunks = doc.ChunkCount
			}
		}
		if err != nil {
			s.logger.Warn("Upload rejected", zap.String("filename", fh.Filename), zap.Error(err))
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxUploadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes: %w", maxUploadBytes, domain.ErrInvalidRequest)
	}
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	return io.ReadAll(io.LimitReader(src, maxUploadBytes))
}

// IngestFile ingests a file from disk, named by its base name
func (s *IngestService) IngestFile(ctx context.Context, path string) (*domain.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxUploadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes: %w", maxUploadBytes, domain.ErrInvalidRequest)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.Ingest(ctx, filepath.Base(path), content, titleFromFilename(path))
}

// Watch ingests created or modified files from events until the channel
// closes or ctx is done.
func (s *IngestService) Watch(ctx context.Context, events <-chan watcher.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Op != watcher.Created && ev.Op != watcher.Modified {
				continue
			}
			if _, err := s.IngestFile(ctx, ev.Path); err != nil {
				s.logger.Warn("Watched file not ingested", zap.String("path", ev.Path), zap.Error(err))
			}
		}
	}
}

// ListDocuments lists stored documents
func (s *IngestService) ListDocuments(ctx context.Context) ([]*domain.Document, error) {
	docs, err := s.docs.List(ctx)
	if docs == nil && err == nil {
		docs = []*domain.Document{}
	}
	return docs, err
}

// UpdateMetadata edits a document's bibliographic metadata
func (s *IngestService) UpdateMetadata(ctx context.Context, id int64, meta domain.DocumentMetadata) (*domain.Document, error) {
	if err := s.docs.UpdateMetadata(ctx, id, meta); err != nil {
		return nil, err
	}
	return s.docs.Get(ctx, id)
}

func titleFromFilename(path string) domain.DocumentMetadata {
	base := filepath.Base(path)
	return domain.DocumentMetadata{Title: strings.TrimSuffix(base, filepath.Ext(base))}
}
