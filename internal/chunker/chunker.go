// Package chunker splits document text into bounded-size segments.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultSize is the default maximum chunk length in characters
const DefaultSize = 500

// Chunk packs the whitespace-separated words of text greedily into chunks whose
// rendered length (words joined by single spaces) does not exceed size
// characters. A word longer than size is emitted alone rather than truncated.
// Empty or whitespace-only text yields no chunks.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultSize
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var (
		chunks  []string
		current []string
		length  int
	)
	for _, word := range words {
		n := utf8.RuneCountInString(word)
		if len(current) > 0 && length+1+n > size {
			chunks = append(chunks, strings.Join(current, " "))
			current, length = current[:0], 0
		}
		if len(current) > 0 {
			length++
		}
		current = append(current, word)
		length += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}
