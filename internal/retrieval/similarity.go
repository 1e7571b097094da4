// Package retrieval ranks evidence for a question and decides where it comes from.
package retrieval

import (
	"math"
	"sort"

	"github.com/liliang-cn/synergereader/internal/domain"
)

// Candidate is one rankable piece of evidence
type Candidate struct {
	Text     string
	Vector   []float32
	Citation domain.Citation
}

// Match is a ranked candidate
type Match struct {
	Text     string
	Score    float64
	Citation domain.Citation
}

// Ranking is the result of Rank
type Ranking struct {
	Matches []Match
	// Mismatched counts candidates skipped because their dimension differs
	// from the query.
	Mismatched int
	// MismatchedDim is the dimension of the last skipped candidate.
	MismatchedDim int
	// ZeroQuery is set when the query vector has zero norm; nothing is ranked.
	ZeroQuery bool
}

// MismatchError returns a DimensionMismatchError describing skipped
// candidates, or nil if none were skipped.
func (r Ranking) MismatchError(queryDim int) error {
	if r.Mismatched == 0 {
		return nil
	}
	return &domain.DimensionMismatchError{Want: queryDim, Got: r.MismatchedDim, Count: r.Mismatched}
}

// Best returns the highest score, or 0 when there are no matches
func (r Ranking) Best() float64 {
	if len(r.Matches) == 0 {
		return 0
	}
	return r.Matches[0].Score
}

// CosineSimilarity returns the cosine of the angle between a and b. It is 0 if
// either vector has zero norm or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp rounding drift.
	return math.Max(-1, math.Min(1, sim))
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

type scored struct {
	idx   int
	score float64
}

// before orders by score descending, then by corpus position
func before(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.idx < b.idx
}

// Rank scores every candidate against query and returns the top k by cosine
// similarity. Candidates with a different dimension are skipped. Ties keep
// corpus order.
func Rank(query []float32, corpus []Candidate, k int) Ranking {
	var r Ranking
	if k <= 0 || len(corpus) == 0 {
		return r
	}
	if norm(query) == 0 {
		r.ZeroQuery = true
		return r
	}

	items := make([]scored, 0, len(corpus))
	for i, c := range corpus {
		if len(c.Vector) != len(query) {
			r.Mismatched++
			r.MismatchedDim = len(c.Vector)
			continue
		}
		items = append(items, scored{idx: i, score: CosineSimilarity(query, c.Vector)})
	}

	if len(items) > k {
		selectTop(items, k)
		items = items[:k]
	}
	sort.Slice(items, func(i, j int) bool { return before(items[i], items[j]) })

	r.Matches = make([]Match, len(items))
	for i, it := range items {
		c := corpus[it.idx]
		r.Matches[i] = Match{Text: c.Text, Score: it.score, Citation: c.Citation}
	}
	return r
}

// selectTop partially orders items so that items[:k] holds the k best, in no
// particular order (quickselect).
func selectTop(items []scored, k int) {
	lo, hi := 0, len(items)-1
	for lo < hi {
		p := partition(items, lo, hi)
		switch {
		case p == k-1:
			return
		case p < k-1:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

// partition uses the middle element as pivot (Lomuto) and returns its final index
func partition(items []scored, lo, hi int) int {
	mid := lo + (hi-lo)/2
	items[mid], items[hi] = items[hi], items[mid]
	pivot := items[hi]

	store := lo
	for i := lo; i < hi; i++ {
		if before(items[i], pivot) {
			items[store], items[i] = items[i], items[store]
			store++
		}
	}
	items[store], items[hi] = items[hi], items[store]
	return store
}
