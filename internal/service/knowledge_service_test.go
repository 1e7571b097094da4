package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/liliang-cn/synergereader/internal/domain"
	"go.uber.org/zap/zaptest"
)

func TestInsert(t *testing.T) {
	kb := &fakeKnowledge{}
	svc := NewKnowledgeService(kb, &fakeHistory{}, zaptest.NewLogger(t))
	ctx := context.Background()

	entries, err := svc.Insert(ctx, []domain.KnowledgeItem{
		{Question: " What is RAG? ", Answer: "Retrieval augmented generation", Source: "glossary"},
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Question != "What is RAG?" || entries[0].ContextText != "Source: glossary" {
		t.Errorf("unexpected entries %+v", entries)
	}

	if _, err := svc.Insert(ctx, nil); !errors.Is(err, domain.ErrEmptyInput) {
		t.Errorf("expected empty input error, got %v", err)
	}
	if _, err := svc.Insert(ctx, []domain.KnowledgeItem{{Question: "q"}}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected invalid request, got %v", err)
	}
}

func TestSubmitCorrection(t *testing.T) {
	history := &fakeHistory{entries: []domain.ChatHistoryEntry{
		{ID: 5, Question: "capital of France?", Answer: "Lyon", SelectedText: "France"},
	}}
	kb := &fakeKnowledge{}
	svc := NewKnowledgeService(kb, history, zaptest.NewLogger(t))
	ctx := context.Background()

	entry, err := svc.SubmitCorrection(ctx, domain.CorrectionRequest{ChatID: 5, CorrectedAnswer: "Paris", Comment: "wrong city"})
	if err != nil {
		t.Fatalf("correction failed: %v", err)
	}
	if entry.Question != "capital of France?" || entry.OriginalAnswer != "Lyon" || entry.CorrectedAnswer != "Paris" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.ChatHistoryID == nil || *entry.ChatHistoryID != 5 {
		t.Errorf("expected link to history entry 5, got %v", entry.ChatHistoryID)
	}
	if !strings.Contains(entry.ContextText, "France") || !strings.Contains(entry.ContextText, "wrong city") {
		t.Errorf("unexpected context text %q", entry.ContextText)
	}

	if _, err := svc.SubmitCorrection(ctx, domain.CorrectionRequest{ChatID: 99, CorrectedAnswer: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := svc.SubmitCorrection(ctx, domain.CorrectionRequest{ChatID: 5}); !errors.Is(err, domain.ErrEmptyInput) {
		t.Errorf("expected empty input, got %v", err)
	}
}

func TestImportYAML_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.yaml")
	seed := `items:
  - question: What is an embedding?
    answer: A vector representation of text.
  - question: What is a chunk?
    answer: A slice of a document.
    source: docs
`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	kb := &fakeKnowledge{entries: []domain.KnowledgeBaseEntry{{ID: 1, Question: "what is a chunk?"}}}
	svc := NewKnowledgeService(kb, &fakeHistory{}, zaptest.NewLogger(t))
	ctx := context.Background()

	n, err := svc.ImportYAML(ctx, path)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one new item, got %d", n)
	}

	n, err = svc.ImportYAML(ctx, path)
	if err != nil || n != 0 {
		t.Errorf("expected second import to add nothing, got %d (err %v)", n, err)
	}

	list, _ := svc.List(ctx)
	if len(list) != 2 {
		t.Errorf("expected two entries, got %d", len(list))
	}
}

func TestImportYAML_BadFile(t *testing.T) {
	svc := NewKnowledgeService(&fakeKnowledge{}, &fakeHistory{}, zaptest.NewLogger(t))

	if _, err := svc.ImportYAML(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("items: [unclosed"), 0o644)
	if _, err := svc.ImportYAML(context.Background(), path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
