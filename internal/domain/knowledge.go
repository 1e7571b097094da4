package domain

import "time"

// KnowledgeBaseEntry is a curated question and answer pair
type KnowledgeBaseEntry struct {
	ID              int64     `json:"id"`
	Question        string    `json:"question"`
	OriginalAnswer  string    `json:"original_answer"`
	CorrectedAnswer string    `json:"corrected_answer"`
	CreatedAt       time.Time `json:"created_at"`
	ChatHistoryID   *int64    `json:"chat_history_id,omitempty"`
	ContextText     string    `json:"context_text,omitempty"`
}

// KnowledgeMatch is a knowledge-base entry with its keyword-overlap score
type KnowledgeMatch struct {
	Entry KnowledgeBaseEntry `json:"entry"`
	Score int                `json:"score"`
}

// KnowledgeItem is one directly inserted knowledge-base entry
type KnowledgeItem struct {
	Question string `json:"question" yaml:"question" binding:"required"`
	Answer   string `json:"answer" yaml:"answer" binding:"required"`
	Source   string `json:"source" yaml:"source"`
}

// KnowledgeInsertRequest inserts a batch of knowledge-base entries
type KnowledgeInsertRequest struct {
	Items []KnowledgeItem `json:"items" binding:"required,dive"`
}

// CorrectionRequest turns a corrected answer into a knowledge-base entry
type CorrectionRequest struct {
	ChatID          int64  `json:"chat_id" binding:"required"`
	CorrectedAnswer string `json:"corrected_answer" binding:"required"`
	Comment         string `json:"comment"`
}
