package service

import (
	"context"
	"fmt"

	"github.com/liliang-cn/synergereader/internal/domain"
	"go.uber.org/zap"
)

// HistoryReader reads and rates chat history
type HistoryReader interface {
	Get(ctx context.Context, id int64) (*domain.ChatHistoryEntry, error)
	Recent(ctx context.Context, userID int64, limit int) ([]domain.ChatHistoryEntry, error)
	Rate(ctx context.Context, id int64, rating int, comment string) error
}

// UserLookup finds the user owning a token
type UserLookup interface {
	Lookup(ctx context.Context, token string) (int64, bool, error)
}

// HistoryService serves a caller's past answers and their ratings
type HistoryService struct {
	history HistoryReader
	users   UserLookup
	limit   int
	logger  *zap.Logger
}

// NewHistoryService creates a new history service
func NewHistoryService(history HistoryReader, users UserLookup, limit int, logger *zap.Logger) *HistoryService {
	if limit <= 0 {
		limit = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{history: history, users: users, limit: limit, logger: logger}
}

// History returns the most recent entries of the token's owner. An empty
// token lists anonymous history; an unknown token is unauthorized.
func (s *HistoryService) History(ctx context.Context, token string) ([]domain.ChatHistoryEntry, error) {
	owner := domain.AnonymousUserID
	if token != "" {
		id, ok, err := s.users.Lookup(ctx, token)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrUnauthorized
		}
		owner = id
	}

	entries, err := s.history.Recent(ctx, owner, s.limit)
	if entries == nil && err == nil {
		entries = []domain.ChatHistoryEntry{}
	}
	return entries, err
}

// Rate sets the rating and comment of a history entry
func (s *HistoryService) Rate(ctx context.Context, req domain.RatingRequest) error {
	if req.Rating < domain.MinRating || req.Rating > domain.MaxRating {
		return fmt.Errorf("rating must be between %d and %d: %w", domain.MinRating, domain.MaxRating, domain.ErrInvalidRequest)
	}
	if err := s.history.Rate(ctx, req.ID, req.Rating, req.Comment); err != nil {
		return err
	}

	s.logger.Info("Answer rated", zap.Int64("entry_id", req.ID), zap.Int("rating", req.Rating))
	return nil
}
