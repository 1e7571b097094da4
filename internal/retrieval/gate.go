package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/liliang-cn/synergereader/internal/domain"
	"go.uber.org/zap"
)

// DefaultThreshold is the similarity below which internal evidence is weak
const DefaultThreshold = 0.75

// AccessDateLayout renders web citation access dates, e.g. "2024, May 1"
const AccessDateLayout = "2006, January 2"

// Source says where the evidence of a Decision came from
type Source int

const (
	// SourceInternal is document evidence at or above the threshold
	SourceInternal Source = iota
	// SourceExternal is web search evidence
	SourceExternal
	// SourceLowRelevance is weak document evidence kept because search found nothing
	SourceLowRelevance
	// SourceNone means neither documents nor search produced any evidence
	SourceNone
)

func (s Source) String() string {
	switch s {
	case SourceInternal:
		return "internal"
	case SourceExternal:
		return "external"
	case SourceLowRelevance:
		return "low_relevance"
	case SourceNone:
		return "none"
	}
	return "unknown"
}

// Searcher queries an external search engine
type Searcher interface {
	Search(ctx context.Context, query string, limit int) []domain.WebResult
}

// Evidence is one grounding item and where it came from
type Evidence struct {
	Text     string
	Citation domain.Citation
}

// Decision is the outcome of the relevance gate
type Decision struct {
	Source             Source
	Evidence           []Evidence
	SimilarityScore    float64
	HasExternalSources bool
	Note               string
}

// GateOptions configures a Gate
type GateOptions struct {
	Threshold float64
	Limit     int
	// Searcher may be nil, in which case external search finds nothing.
	Searcher Searcher
	Now      func() time.Time
	Logger   *zap.Logger
}

// Gate chooses between document evidence and web search
type Gate struct {
	threshold float64
	limit     int
	searcher  Searcher
	now       func() time.Time
	logger    *zap.Logger
}

// NewGate creates a relevance gate
func NewGate(opts GateOptions) *Gate {
	if opts.Limit <= 0 {
		opts.Limit = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Gate{
		threshold: opts.Threshold,
		limit:     opts.Limit,
		searcher:  opts.Searcher,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

// Decide picks the evidence for question. Strong document evidence is used as
// is and search is never called. Weak or missing document evidence triggers a
// search; weak evidence is kept only if the search comes back empty.
func (g *Gate) Decide(ctx context.Context, question string, ranking Ranking) Decision {
	best := ranking.Best()

	if len(ranking.Matches) > 0 && best >= g.threshold {
		return Decision{
			Source:          SourceInternal,
			Evidence:        internalEvidence(ranking.Matches),
			SimilarityScore: best,
			Note:            fmt.Sprintf("Answer grounded in uploaded documents (best similarity %.2f).", best),
		}
	}

	web := g.search(ctx, question)

	if len(ranking.Matches) == 0 && len(web) == 0 {
		g.logger.Warn("No document or web evidence available")
		return Decision{
			Source: SourceNone,
			Note:   "No relevant content found in uploaded documents and web search is unavailable; answer is not grounded in any source.",
		}
	}

	if len(ranking.Matches) == 0 {
		return Decision{
			Source:             SourceExternal,
			Evidence:           g.externalEvidence(web),
			HasExternalSources: true,
			Note:               "No relevant content found in uploaded documents; answer grounded in web search results.",
		}
	}

	if len(web) > 0 {
		return Decision{
			Source:             SourceExternal,
			Evidence:           g.externalEvidence(web),
			SimilarityScore:    best,
			HasExternalSources: true,
			Note: fmt.Sprintf("Best document similarity %.2f is below the %.2f threshold; answer grounded in web search results.",
				best, g.threshold),
		}
	}

	g.logger.Warn("Web search returned nothing, keeping low-relevance documents",
		zap.Float64("similarity", best),
	)
	return Decision{
		Source:          SourceLowRelevance,
		Evidence:        internalEvidence(ranking.Matches),
		SimilarityScore: best,
		Note: fmt.Sprintf("Web search returned no results; falling back to low-relevance document excerpts (best similarity %.2f).",
			best),
	}
}

func (g *Gate) search(ctx context.Context, question string) []domain.WebResult {
	if g.searcher == nil {
		return nil
	}
	return g.searcher.Search(ctx, question, g.limit)
}

func internalEvidence(matches []Match) []Evidence {
	out := make([]Evidence, len(matches))
	for i, m := range matches {
		out[i] = Evidence{Text: m.Text, Citation: m.Citation}
	}
	return out
}

func (g *Gate) externalEvidence(results []domain.WebResult) []Evidence {
	accessed := g.now().Format(AccessDateLayout)
	out := make([]Evidence, len(results))
	for i, r := range results {
		text := r.Snippet
		if text == "" {
			text = r.Title
		}
		out[i] = Evidence{
			Text:     text,
			Citation: domain.WebCitation{Title: r.Title, URL: r.URL, AccessDate: accessed},
		}
	}
	return out
}
