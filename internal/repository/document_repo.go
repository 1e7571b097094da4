package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/liliang-cn/synergereader/internal/domain"
)

// DocumentRepository handles document and chunk persistence
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create stores a document and its chunks in one transaction
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin document insert", err)
	}
	defer tx.Rollback()

	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	m := doc.Metadata

	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents (filename, content, uploaded_at, author, title, publication_date, source, doi_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.Filename, doc.Content, doc.UploadedAt, m.Author, m.Title, m.PublicationDate, m.Source, m.DOIURL)
	if err != nil {
		return persistErr("insert document", err)
	}
	if doc.ID, err = res.LastInsertId(); err != nil {
		return persistErr("insert document", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (document_id, chunk_index, chunk_text, embedding_json)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return persistErr("prepare chunk insert", err)
	}
	defer stmt.Close()

	for i := range chunks {
		embeddingJSON, err := json.Marshal(chunks[i].Embedding)
		if err != nil {
			return persistErr("encode embedding", err)
		}
		chunks[i].DocumentID = doc.ID
		res, err := stmt.ExecContext(ctx, doc.ID, chunks[i].Index, chunks[i].Text, string(embeddingJSON))
		if err != nil {
			return persistErr("insert chunk", err)
		}
		chunks[i].ID, _ = res.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit document insert", err)
	}
	doc.ChunkCount = len(chunks)
	return nil
}

// Get retrieves a document by ID without its content
func (r *DocumentRepository) Get(ctx context.Context, id int64) (*domain.Document, error) {
	doc := &domain.Document{}
	m := &doc.Metadata

	err := r.db.QueryRowContext(ctx, `
		SELECT d.id, d.filename, d.uploaded_at, d.author, d.title, d.publication_date, d.source, d.doi_url,
			(SELECT COUNT(*) FROM document_chunks c WHERE c.document_id = d.id)
		FROM documents d WHERE d.id = ?
	`, id).Scan(&doc.ID, &doc.Filename, &doc.UploadedAt, &m.Author, &m.Title, &m.PublicationDate,
		&m.Source, &m.DOIURL, &doc.ChunkCount)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get document", err)
	}
	return doc, nil
}

// List retrieves all documents, newest first, with chunk counts
func (r *DocumentRepository) List(ctx context.Context) ([]*domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.id, d.filename, d.uploaded_at, d.author, d.title, d.publication_date, d.source, d.doi_url,
			COUNT(c.id)
		FROM documents d
		LEFT JOIN document_chunks c ON c.document_id = d.id
		GROUP BY d.id
		ORDER BY d.uploaded_at DESC, d.id DESC
	`)
	if err != nil {
		return nil, persistErr("list documents", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc := &domain.Document{}
		m := &doc.Metadata
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.UploadedAt, &m.Author, &m.Title,
			&m.PublicationDate, &m.Source, &m.DOIURL, &doc.ChunkCount); err != nil {
			return nil, persistErr("list documents", err)
		}
		docs = append(docs, doc)
	}

	return docs, persistErr("list documents", rows.Err())
}

// UpdateMetadata replaces a document's bibliographic metadata
func (r *DocumentRepository) UpdateMetadata(ctx context.Context, id int64, m domain.DocumentMetadata) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE documents SET author = ?, title = ?, publication_date = ?, source = ?, doi_url = ?
		WHERE id = ?
	`, m.Author, m.Title, m.PublicationDate, m.Source, m.DOIURL, id)
	if err != nil {
		return persistErr("update document metadata", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListChunks retrieves every stored chunk with its document's citation fields
func (r *DocumentRepository) ListChunks(ctx context.Context) ([]domain.CorpusChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.chunk_text, c.embedding_json,
			d.filename, d.author, d.title, d.publication_date, d.source, d.doi_url
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		ORDER BY c.document_id, c.chunk_index
	`)
	if err != nil {
		return nil, persistErr("list chunks", err)
	}
	defer rows.Close()

	var chunks []domain.CorpusChunk
	for rows.Next() {
		var c domain.CorpusChunk
		var embeddingJSON string
		m := &c.Metadata
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &embeddingJSON,
			&c.Filename, &m.Author, &m.Title, &m.PublicationDate, &m.Source, &m.DOIURL); err != nil {
			return nil, persistErr("list chunks", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &c.Embedding); err != nil {
			// A corrupt vector only removes this chunk from ranking.
			c.Embedding = nil
		}
		chunks = append(chunks, c)
	}

	return chunks, persistErr("list chunks", rows.Err())
}
