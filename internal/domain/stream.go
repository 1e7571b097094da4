package domain

// StreamEvent is one frame of an answer stream: ContextFrame, TokenFrame,
// ErrorFrame or CompletionFrame.
type StreamEvent interface {
	streamEvent()
}

// ContextFrame describes the evidence an answer is grounded in. It is always the
// first frame of a stream.
type ContextFrame struct {
	ContextChunks      []string       `json:"context_chunks"`
	Citations          CitationList   `json:"citations"`
	APACitations       []string       `json:"apa_citations"`
	HasExternalSources bool           `json:"has_external_sources"`
	SimilarityScore    float64        `json:"similarity_score"`
	CitationNote       string         `json:"citation_note"`
	RelevantHistory    []HistoryMatch `json:"relevant_history,omitempty"`
}

// TokenFrame carries one incremental piece of the generated answer
type TokenFrame struct {
	Text string
}

// ErrorFrame terminates a stream that failed
type ErrorFrame struct {
	Message string
}

// CompletionFrame terminates a stream whose answer was persisted
type CompletionFrame struct {
	EntryID int64
}

func (ContextFrame) streamEvent()    {}
func (TokenFrame) streamEvent()      {}
func (ErrorFrame) streamEvent()      {}
func (CompletionFrame) streamEvent() {}

// IsTerminal reports whether ev ends a stream
func IsTerminal(ev StreamEvent) bool {
	switch ev.(type) {
	case ErrorFrame, CompletionFrame:
		return true
	}
	return false
}
