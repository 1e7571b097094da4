// Package prompt builds the grounded generation prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/liliang-cn/synergereader/internal/domain"
)

// Instruction closes every prompt
const Instruction = "Answer the question using only the information above. " +
	"If it does not contain the answer, say so plainly."

// Input is everything a prompt is built from
type Input struct {
	Knowledge    []domain.KnowledgeMatch
	Evidence     []string
	SelectedText string
	Question     string
}

// Build concatenates the knowledge-base block, the evidence block, the selected
// text and the question, each in its own tag, followed by Instruction. Empty
// blocks are left out. Citations are never part of the prompt.
func Build(in Input) string {
	var b strings.Builder

	if len(in.Knowledge) > 0 {
		b.WriteString("<knowledge_base>\n")
		for i, k := range in.Knowledge {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", k.Entry.Question, k.Entry.CorrectedAnswer)
		}
		b.WriteString("</knowledge_base>\n")
	}

	if len(in.Evidence) > 0 {
		writeBlock(&b, "context", strings.Join(in.Evidence, "\n\n"))
	}

	if s := strings.TrimSpace(in.SelectedText); s != "" {
		writeBlock(&b, "text_snippet", s)
	}

	writeBlock(&b, "question", strings.TrimSpace(in.Question))
	b.WriteString(Instruction)

	return b.String()
}

func writeBlock(b *strings.Builder, tag, body string) {
	fmt.Fprintf(b, "<%s>\n%s\n</%s>\n", tag, body, tag)
}
