package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/liliang-cn/synergereader/internal/domain"
)

// UserRepository resolves authentication tokens to user IDs. Registration and
// login live outside this service; it only reads the users table.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Lookup returns the user owning token and whether one exists
func (r *UserRepository) Lookup(ctx context.Context, token string) (int64, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false, nil
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE token = ?`, token).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, persistErr("lookup token", err)
	}
	return id, true, nil
}

// ResolveToken returns the user owning token, or AnonymousUserID when the
// token is empty or unknown
func (r *UserRepository) ResolveToken(ctx context.Context, token string) (int64, error) {
	id, ok, err := r.Lookup(ctx, token)
	if err != nil || !ok {
		return domain.AnonymousUserID, err
	}
	return id, nil
}
