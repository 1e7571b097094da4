package prompt

import (
	"strings"
	"testing"

	"github.com/liliang-cn/synergereader/internal/domain"
)

func TestBuild_Order(t *testing.T) {
	got := Build(Input{
		Knowledge: []domain.KnowledgeMatch{{
			Entry: domain.KnowledgeBaseEntry{Question: "capital of France?", CorrectedAnswer: "Paris"},
		}},
		Evidence:     []string{"chunk one", "chunk two"},
		SelectedText: "  highlighted passage ",
		Question:     "What is the capital?",
	})

	want := "<knowledge_base>\nQ: capital of France?\nA: Paris\n</knowledge_base>\n" +
		"<context>\nchunk one\n\nchunk two\n</context>\n" +
		"<text_snippet>\nhighlighted passage\n</text_snippet>\n" +
		"<question>\nWhat is the capital?\n</question>\n" +
		Instruction

	if got != want {
		t.Errorf("unexpected prompt:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuild_OmitsEmptyBlocks(t *testing.T) {
	got := Build(Input{Question: "why?"})

	for _, tag := range []string{"<knowledge_base>", "<context>", "<text_snippet>"} {
		if strings.Contains(got, tag) {
			t.Errorf("expected %s to be omitted:\n%s", tag, got)
		}
	}
	if !strings.HasPrefix(got, "<question>\nwhy?\n</question>\n") {
		t.Errorf("unexpected prompt: %q", got)
	}
	if !strings.HasSuffix(got, Instruction) {
		t.Error("expected instruction suffix")
	}
}
