// Package reader serves the public reading-assistant routes.
package reader

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/synergereader/internal/api/apierr"
	"github.com/liliang-cn/synergereader/internal/domain"
	"github.com/liliang-cn/synergereader/internal/protocol"
	"go.uber.org/zap"
)

// Asker answers questions as a stream of frames
type Asker interface {
	Ask(ctx context.Context, req domain.AskRequest) (<-chan domain.StreamEvent, error)
}

// Ingester stores uploaded documents
type Ingester interface {
	IngestUploads(ctx context.Context, files []*multipart.FileHeader, meta domain.DocumentMetadata) []domain.IngestResult
	ListDocuments(ctx context.Context) ([]*domain.Document, error)
}

// Historian lists and rates past answers
type Historian interface {
	History(ctx context.Context, token string) ([]domain.ChatHistoryEntry, error)
	Rate(ctx context.Context, req domain.RatingRequest) error
}

// Curator reads the knowledge base and records corrections
type Curator interface {
	List(ctx context.Context) ([]domain.KnowledgeBaseEntry, error)
	SubmitCorrection(ctx context.Context, req domain.CorrectionRequest) (*domain.KnowledgeBaseEntry, error)
}

// Handler handles reader API requests
type Handler struct {
	asker     Asker
	ingester  Ingester
	historian Historian
	curator   Curator
	logger    *zap.Logger
}

// NewHandler creates a new reader handler
func NewHandler(asker Asker, ingester Ingester, historian Historian, curator Curator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		asker:     asker,
		ingester:  ingester,
		historian: historian,
		curator:   curator,
		logger:    logger,
	}
}

// RegisterRoutes registers reader routes
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/ask", h.Ask)
	r.POST("/upload", h.Upload)
	r.GET("/documents", h.ListDocuments)
	r.POST("/history", h.History)
	r.PUT("/put_ratings", h.Rate)
	r.POST("/submit_correction", h.SubmitCorrection)
	r.GET("/knowledge_base", h.ListKnowledge)
}

// Ask streams an answer in the framed text protocol
func (h *Handler) Ask(c *gin.Context) {
	var req domain.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	frames, err := h.asker.Ask(ctx, req)
	if err != nil {
		apierr.Abort(c, err)
		return
	}

	c.Header("Content-Type", protocol.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for {
		select {
		case ev, ok := <-frames:
			if !ok {
				return
			}
			if err := protocol.Write(c.Writer, ev); err != nil {
				h.logger.Warn("Client write failed, dropping stream", zap.Error(err))
				return
			}
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// Upload ingests one or many files sent as "file" or "files"
func (h *Handler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		apierr.BadRequest(c, "multipart form is required")
		return
	}

	var files []*multipart.FileHeader
	files = append(files, form.File["file"]...)
	files = append(files, form.File["files"]...)
	if len(files) == 0 {
		apierr.BadRequest(c, "file is required")
		return
	}

	meta := domain.DocumentMetadata{
		Author:          c.PostForm("author"),
		Title:           c.PostForm("title"),
		PublicationDate: c.PostForm("publication_date"),
		Source:          c.PostForm("source"),
		DOIURL:          c.PostForm("doi_url"),
	}

	results := h.ingester.IngestUploads(c.Request.Context(), files, meta)

	status := http.StatusBadRequest
	for _, r := range results {
		if r.Error == "" {
			status = http.StatusCreated
			break
		}
	}
	c.JSON(status, gin.H{"results": results})
}

// ListDocuments lists stored documents
func (h *Handler) ListDocuments(c *gin.Context) {
	docs, err := h.ingester.ListDocuments(c.Request.Context())
	if err != nil {
		apierr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// History lists the caller's recent answers. The body is optional.
func (h *Handler) History(c *gin.Context) {
	var req domain.HistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		apierr.BadRequest(c, err.Error())
		return
	}

	entries, err := h.historian.History(c.Request.Context(), req.Token)
	if err != nil {
		apierr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// Rate rates a history entry
func (h *Handler) Rate(c *gin.Context) {
	var req domain.RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, err.Error())
		return
	}

	if err := h.historian.Rate(c.Request.Context(), req); err != nil {
		apierr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rating saved"})
}

// SubmitCorrection records a corrected answer in the knowledge base
func (h *Handler) SubmitCorrection(c *gin.Context) {
	var req domain.CorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, err.Error())
		return
	}

	entry, err := h.curator.SubmitCorrection(c.Request.Context(), req)
	if err != nil {
		apierr.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// ListKnowledge lists knowledge-base entries, newest first
func (h *Handler) ListKnowledge(c *gin.Context) {
	entries, err := h.curator.List(c.Request.Context())
	if err != nil {
		apierr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
