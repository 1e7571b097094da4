package domain

import "time"

// AnonymousUserID owns history entries created without a resolvable token
const AnonymousUserID int64 = 0

// Rating bounds accepted for history entries
const (
	MinRating = 1
	MaxRating = 5
)

// ChatHistoryEntry represents one answered question
type ChatHistoryEntry struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Timestamp    time.Time `json:"timestamp"`
	SelectedText string    `json:"selected_text"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	Rating       *int      `json:"rating,omitempty"`
	Comment      string    `json:"comment,omitempty"`
}

// HistoryMatch is a history entry with its keyword-overlap score
type HistoryMatch struct {
	Entry ChatHistoryEntry `json:"entry"`
	Score int              `json:"score"`
}

// AskRequest is the request to answer a question
type AskRequest struct {
	SelectedText string `json:"selected_text"`
	Question     string `json:"question" binding:"required"`
	Model        string `json:"model"`
	AuthToken    string `json:"auth_token"`
}

// HistoryRequest is the request to list a caller's history
type HistoryRequest struct {
	Token string `json:"token"`
}

// RatingRequest rates a history entry
type RatingRequest struct {
	ID      int64  `json:"id" binding:"required"`
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}
