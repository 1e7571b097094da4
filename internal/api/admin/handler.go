package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/synergereader/internal/api/apierr"
	"github.com/liliang-cn/synergereader/internal/domain"
)

// MetadataEditor edits document metadata
type MetadataEditor interface {
	UpdateMetadata(ctx context.Context, id int64, meta domain.DocumentMetadata) (*domain.Document, error)
}

// KnowledgeInserter adds curated knowledge-base entries
type KnowledgeInserter interface {
	Insert(ctx context.Context, items []domain.KnowledgeItem) ([]*domain.KnowledgeBaseEntry, error)
}

// Handler handles curation requests guarded by the admin key
type Handler struct {
	docs      MetadataEditor
	knowledge KnowledgeInserter
}

// NewHandler creates a new admin handler
func NewHandler(docs MetadataEditor, knowledge KnowledgeInserter) *Handler {
	return &Handler{
		docs:      docs,
		knowledge: knowledge,
	}
}

// RegisterRoutes registers admin routes
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.PUT("/documents/:id/metadata", h.UpdateMetadata)
	r.POST("/knowledge_base", h.InsertKnowledge)
}

// UpdateMetadata replaces a document's bibliographic metadata
func (h *Handler) UpdateMetadata(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apierr.BadRequest(c, "invalid document id")
		return
	}

	var req domain.UpdateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, err.Error())
		return
	}

	doc, err := h.docs.UpdateMetadata(c.Request.Context(), id, req.DocumentMetadata)
	if err != nil {
		apierr.Abort(c, err)
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	c.JSON(http.StatusOK, doc)
}

// InsertKnowledge adds question and answer pairs to the knowledge base
func (h *Handler) InsertKnowledge(c *gin.Context) {
	var req domain.KnowledgeInsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, err.Error())
		return
	}

	entries, err := h.knowledge.Insert(c.Request.Context(), req.Items)
	if err != nil {
		apierr.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"inserted": len(entries), "entries": entries})
}
