package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/liliang-cn/synergereader/internal/domain"
)

// HistoryRepository handles chat history persistence
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

const historyColumns = `id, user_id, timestamp, selected_text, question, answer, rating, comment`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(s rowScanner) (domain.ChatHistoryEntry, error) {
	var e domain.ChatHistoryEntry
	var rating sql.NullInt64
	err := s.Scan(&e.ID, &e.UserID, &e.Timestamp, &e.SelectedText, &e.Question, &e.Answer, &rating, &e.Comment)
	if rating.Valid {
		v := int(rating.Int64)
		e.Rating = &v
	}
	return e, err
}

// Create appends a history entry and sets its ID
func (r *HistoryRepository) Create(ctx context.Context, entry *domain.ChatHistoryEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_history (user_id, timestamp, selected_text, question, answer)
		VALUES (?, ?, ?, ?, ?)
	`, entry.UserID, entry.Timestamp, entry.SelectedText, entry.Question, entry.Answer)
	if err != nil {
		return persistErr("insert history entry", err)
	}

	entry.ID, err = res.LastInsertId()
	return persistErr("insert history entry", err)
}

// Get retrieves a history entry by ID
func (r *HistoryRepository) Get(ctx context.Context, id int64) (*domain.ChatHistoryEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM chat_history WHERE id = ?`, id)

	e, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get history entry", err)
	}
	return &e, nil
}

// Recent retrieves a user's most recent entries, newest first
func (r *HistoryRepository) Recent(ctx context.Context, userID int64, limit int) ([]domain.ChatHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+historyColumns+`
		FROM chat_history WHERE user_id = ?
		ORDER BY id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, persistErr("list history", err)
	}
	defer rows.Close()

	var entries []domain.ChatHistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, persistErr("list history", err)
		}
		entries = append(entries, e)
	}

	return entries, persistErr("list history", rows.Err())
}

// Rate sets the rating and comment of an entry
func (r *HistoryRepository) Rate(ctx context.Context, id int64, rating int, comment string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE chat_history SET rating = ?, comment = ? WHERE id = ?`,
		rating, comment, id)
	if err != nil {
		return persistErr("rate history entry", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("history entry %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
