package repository

import (
	"context"
	"time"

	"github.com/liliang-cn/synergereader/internal/domain"
)

// KnowledgeRepository handles knowledge-base persistence
type KnowledgeRepository struct {
	db *DB
}

// NewKnowledgeRepository creates a new knowledge-base repository
func NewKnowledgeRepository(db *DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

// Create inserts an entry and sets its ID
func (r *KnowledgeRepository) Create(ctx context.Context, entry *domain.KnowledgeBaseEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO knowledge_base (question, original_answer, corrected_answer, created_at, chat_history_id, context_text)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Question, entry.OriginalAnswer, entry.CorrectedAnswer, entry.CreatedAt, entry.ChatHistoryID, entry.ContextText)
	if err != nil {
		return persistErr("insert knowledge entry", err)
	}

	entry.ID, err = res.LastInsertId()
	return persistErr("insert knowledge entry", err)
}

// CreateBatch inserts entries in one transaction
func (r *KnowledgeRepository) CreateBatch(ctx context.Context, entries []*domain.KnowledgeBaseEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin knowledge insert", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO knowledge_base (question, original_answer, corrected_answer, created_at, chat_history_id, context_text)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.Question, e.OriginalAnswer, e.CorrectedAnswer, e.CreatedAt, e.ChatHistoryID, e.ContextText)
		if err != nil {
			return persistErr("insert knowledge entry", err)
		}
		e.ID, _ = res.LastInsertId()
	}

	return persistErr("commit knowledge insert", tx.Commit())
}

// Recent retrieves up to limit entries, newest first. A limit <= 0 returns all.
func (r *KnowledgeRepository) Recent(ctx context.Context, limit int) ([]domain.KnowledgeBaseEntry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, question, original_answer, corrected_answer, created_at, chat_history_id, context_text
		FROM knowledge_base
		ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, persistErr("list knowledge", err)
	}
	defer rows.Close()

	var entries []domain.KnowledgeBaseEntry
	for rows.Next() {
		var e domain.KnowledgeBaseEntry
		if err := rows.Scan(&e.ID, &e.Question, &e.OriginalAnswer, &e.CorrectedAnswer,
			&e.CreatedAt, &e.ChatHistoryID, &e.ContextText); err != nil {
			return nil, persistErr("list knowledge", err)
		}
		entries = append(entries, e)
	}

	return entries, persistErr("list knowledge", rows.Err())
}
