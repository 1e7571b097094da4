package api

import (
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/synergereader/internal/api/admin"
	"github.com/liliang-cn/synergereader/internal/api/reader"
	"github.com/liliang-cn/synergereader/internal/domain"
	"go.uber.org/zap/zaptest"
)

type nopServices struct{}

func (nopServices) Ask(ctx context.Context, req domain.AskRequest) (<-chan domain.StreamEvent, error) {
	return nil, domain.ErrInvalidRequest
}

func (nopServices) IngestUploads(ctx context.Context, files []*multipart.FileHeader, meta domain.DocumentMetadata) []domain.IngestResult {
	return nil
}

func (nopServices) ListDocuments(ctx context.Context) ([]*domain.Document, error) {
	return []*domain.Document{}, nil
}

func (nopServices) History(ctx context.Context, token string) ([]domain.ChatHistoryEntry, error) {
	return nil, nil
}

func (nopServices) Rate(ctx context.Context, req domain.RatingRequest) error { return nil }

func (nopServices) List(ctx context.Context) ([]domain.KnowledgeBaseEntry, error) {
	return nil, nil
}

func (nopServices) SubmitCorrection(ctx context.Context, req domain.CorrectionRequest) (*domain.KnowledgeBaseEntry, error) {
	return nil, domain.ErrNotFound
}

func (nopServices) UpdateMetadata(ctx context.Context, id int64, meta domain.DocumentMetadata) (*domain.Document, error) {
	return &domain.Document{ID: id, Metadata: meta}, nil
}

func (nopServices) Insert(ctx context.Context, items []domain.KnowledgeItem) ([]*domain.KnowledgeBaseEntry, error) {
	return []*domain.KnowledgeBaseEntry{}, nil
}

func newRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)
	s := nopServices{}
	return SetupRouter(Handlers{
		Reader: reader.NewHandler(s, s, s, s, logger),
		Admin:  admin.NewHandler(s, s),
	}, RouterConfig{
		APIKey: "key",
		Probe:  func() gin.H { return gin.H{"generation_model": "llama3.1:8b"} },
		Logger: logger,
	})
}

func TestRouter_Probes(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "llama3.1:8b") {
		t.Errorf("test: got %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestRouter_AdminRoutesNeedKey(t *testing.T) {
	r := newRouter(t)

	body := `{"items":[{"question":"q","answer":"a"}]}`

	req := httptest.NewRequest(http.MethodPost, "/knowledge_base", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/knowledge_base", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "key")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("expected 201 with key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/knowledge_base", nil))
	if w.Code != http.StatusOK {
		t.Errorf("listing is public: expected 200, got %d", w.Code)
	}
}
