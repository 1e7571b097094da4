// Package citation renders evidence sources as APA-style reference strings.
package citation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/liliang-cn/synergereader/internal/domain"
)

const noDate = "(n.d.)"

var yearPattern = regexp.MustCompile(`\b(\d{4})\b`)

// Format renders c as an APA-style reference
func Format(c domain.Citation) string {
	switch c := c.(type) {
	case domain.DocumentCitation:
		return formatDocument(c)
	case domain.WebCitation:
		return formatWeb(c)
	}
	return ""
}

// FormatAll renders every citation in order
func FormatAll(cs []domain.Citation) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = Format(c)
	}
	return out
}

// formatDocument renders `Author. (Year). *Title*. Source. Retrieved from URL`,
// leaving out absent fields.
func formatDocument(c domain.DocumentCitation) string {
	var parts []string
	if a := strings.TrimSpace(c.Author); a != "" {
		parts = append(parts, a)
	}
	parts = append(parts, year(c.PublicationDate))
	if t := strings.TrimSpace(c.Title); t != "" {
		parts = append(parts, italic(t))
	}
	if s := strings.TrimSpace(c.Source); s != "" {
		parts = append(parts, s)
	}
	if u := DOIURL(c.DOIURL); u != "" {
		parts = append(parts, "Retrieved from "+u)
	}
	return join(parts)
}

// formatWeb renders `*Title*. (AccessDate). Retrieved from URL`
func formatWeb(c domain.WebCitation) string {
	var parts []string
	if t := strings.TrimSpace(c.Title); t != "" {
		parts = append(parts, italic(t))
	}
	if d := strings.TrimSpace(c.AccessDate); d != "" {
		parts = append(parts, fmt.Sprintf("(%s)", d))
	} else {
		parts = append(parts, noDate)
	}
	if u := strings.TrimSpace(c.URL); u != "" {
		parts = append(parts, "Retrieved from "+u)
	}
	return join(parts)
}

// DOIURL turns a bare DOI into a resolvable URL and leaves URLs untouched
func DOIURL(doi string) string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return ""
	}
	lower := strings.ToLower(doi)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return doi
	}
	for _, prefix := range []string{"doi:", "doi.org/"} {
		if strings.HasPrefix(lower, prefix) {
			doi = strings.TrimSpace(doi[len(prefix):])
			lower = strings.ToLower(doi)
		}
	}
	return "https://doi.org/" + doi
}

func year(date string) string {
	if m := yearPattern.FindStringSubmatch(date); m != nil {
		return fmt.Sprintf("(%s)", m[1])
	}
	return noDate
}

func italic(s string) string {
	return "*" + s + "*"
}

// join separates parts with ". ", dropping trailing periods first so an author
// like "Smith, J." does not render a double period.
func join(parts []string) string {
	for i, p := range parts {
		if !strings.HasSuffix(p, "*") {
			parts[i] = strings.TrimRight(p, ".")
		}
	}
	return strings.Join(parts, ". ")
}
