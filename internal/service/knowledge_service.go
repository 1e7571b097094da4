package service

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/liliang-cn/synergereader/internal/domain"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// KnowledgeStore persists knowledge-base entries
type KnowledgeStore interface {
	Create(ctx context.Context, entry *domain.KnowledgeBaseEntry) error
	CreateBatch(ctx context.Context, entries []*domain.KnowledgeBaseEntry) error
	Recent(ctx context.Context, limit int) ([]domain.KnowledgeBaseEntry, error)
}

// HistoryGetter reads one history entry
type HistoryGetter interface {
	Get(ctx context.Context, id int64) (*domain.ChatHistoryEntry, error)
}

// KnowledgeService curates the knowledge base
type KnowledgeService struct {
	kb      KnowledgeStore
	history HistoryGetter
	logger  *zap.Logger
}

// NewKnowledgeService creates a new knowledge service
func NewKnowledgeService(kb KnowledgeStore, history HistoryGetter, logger *zap.Logger) *KnowledgeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeService{kb: kb, history: history, logger: logger}
}

// Insert adds curated question and answer pairs
func (s *KnowledgeService) Insert(ctx context.Context, items []domain.KnowledgeItem) ([]*domain.KnowledgeBaseEntry, error) {
	if len(items) == 0 {
		return nil, &domain.EmptyInputError{What: "knowledge items"}
	}

	entries := make([]*domain.KnowledgeBaseEntry, len(items))
	for i, it := range items {
		q, a := strings.TrimSpace(it.Question), strings.TrimSpace(it.Answer)
		if q == "" || a == "" {
			return nil, fmt.Errorf("item %d needs a question and an answer: %w", i, domain.ErrInvalidRequest)
		}
		entries[i] = &domain.KnowledgeBaseEntry{Question: q, CorrectedAnswer: a}
		if src := strings.TrimSpace(it.Source); src != "" {
			entries[i].ContextText = "Source: " + src
		}
	}

	if err := s.kb.CreateBatch(ctx, entries); err != nil {
		return nil, err
	}

	s.logger.Info("Knowledge entries added", zap.Int("count", len(entries)))
	return entries, nil
}

// List returns every entry, newest first
func (s *KnowledgeService) List(ctx context.Context) ([]domain.KnowledgeBaseEntry, error) {
	entries, err := s.kb.Recent(ctx, 0)
	if entries == nil && err == nil {
		entries = []domain.KnowledgeBaseEntry{}
	}
	return entries, err
}

// SubmitCorrection records a corrected answer for a past question as a
// knowledge-base entry linked to that history row
func (s *KnowledgeService) SubmitCorrection(ctx context.Context, req domain.CorrectionRequest) (*domain.KnowledgeBaseEntry, error) {
	corrected := strings.TrimSpace(req.CorrectedAnswer)
	if corrected == "" {
		return nil, &domain.EmptyInputError{What: "corrected answer"}
	}

	h, err := s.history.Get(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("history entry %d: %w", req.ChatID, domain.ErrNotFound)
	}

	var contextText []string
	if h.SelectedText != "" {
		contextText = append(contextText, "Selected text: "+h.SelectedText)
	}
	if c := strings.TrimSpace(req.Comment); c != "" {
		contextText = append(contextText, "Comment: "+c)
	}

	entry := &domain.KnowledgeBaseEntry{
		Question:        h.Question,
		OriginalAnswer:  h.Answer,
		CorrectedAnswer: corrected,
		ChatHistoryID:   &h.ID,
		ContextText:     strings.Join(contextText, "\n"),
	}
	if err := s.kb.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Correction recorded",
		zap.Int64("chat_id", h.ID),
		zap.Int64("knowledge_id", entry.ID),
	)
	return entry, nil
}

// seedFile is the YAML layout accepted by ImportYAML
type seedFile struct {
	Items []domain.KnowledgeItem `yaml:"items"`
}

// ImportYAML inserts the items listed in a YAML seed file and returns how
// many were added. Items whose question is already stored are skipped, so the
// same file can be imported on every start.
func (s *KnowledgeService) ImportYAML(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read knowledge seed: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("failed to parse knowledge seed: %w", err)
	}

	existing, err := s.kb.Recent(ctx, 0)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, e := range existing {
		known[strings.ToLower(e.Question)] = true
	}

	var fresh []domain.KnowledgeItem
	for _, it := range seed.Items {
		key := strings.ToLower(strings.TrimSpace(it.Question))
		if known[key] {
			continue
		}
		known[key] = true
		fresh = append(fresh, it)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	entries, err := s.Insert(ctx, fresh)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
