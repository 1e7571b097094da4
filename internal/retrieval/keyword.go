package retrieval

import (
	"sort"
	"strings"

	"github.com/liliang-cn/synergereader/internal/domain"
)

// Keyword-overlap weights
const (
	questionWeight = 1
	selectedWeight = 2
)

// words returns the distinct lower-cased whitespace-separated words of s
func words(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// overlap counts the words of a that also occur in b
func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

// ScoreHistory scores prior entries by keyword overlap with the new question
// and selected text. Each shared question word adds 1, each shared selected-text
// word adds 2. Entries scoring 0 are dropped; the rest are returned best first,
// at most limit of them. Equal scores keep the input order.
func ScoreHistory(question, selectedText string, entries []domain.ChatHistoryEntry, limit int) []domain.HistoryMatch {
	if limit <= 0 {
		return nil
	}

	qWords := words(question)
	sWords := words(selectedText)

	var matches []domain.HistoryMatch
	for _, e := range entries {
		score := questionWeight*overlap(qWords, words(e.Question)) +
			selectedWeight*overlap(sWords, words(e.SelectedText))
		if score > 0 {
			matches = append(matches, domain.HistoryMatch{Entry: e, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// ScoreKnowledge scores knowledge-base entries by the number of question words
// they share with the stored question. Filtering and truncation match
// ScoreHistory.
func ScoreKnowledge(question string, entries []domain.KnowledgeBaseEntry, limit int) []domain.KnowledgeMatch {
	if limit <= 0 {
		return nil
	}

	qWords := words(question)

	var matches []domain.KnowledgeMatch
	for _, e := range entries {
		if score := overlap(qWords, words(e.Question)); score > 0 {
			matches = append(matches, domain.KnowledgeMatch{Entry: e, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
