// Package retrieval packs ranked chunks into a token budget.
package retrieval

import (
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/token"
)

// Planner selects which ranked chunks fit into a prompt's token budget.
type Planner struct {
	est *token.Estimator
}

// NewPlanner creates a planner using the shared size estimator, so packing
// costs agree with the sizes measured at chunking time.
func NewPlanner(est *token.Estimator) *Planner {
	return &Planner{est: est}
}

// Pack greedily admits results, in the given (descending-score) order, into
// the budget. At most one chunk per title is admitted; further chunks from
// an already-used title are skipped regardless of score. Iteration stops
// entirely at the first result whose size exceeds the remaining budget:
// the input is sorted by relevance, not size, so hunting for a smaller
// later candidate would trade latency for marginal fill. The budget never
// goes negative.
func (p *Planner) Pack(results []models.SimilarityResult, budget int) []models.Chunk {
	var selected []models.Chunk
	usedTitles := make(map[string]bool)
	rest := budget
	for _, r := range results {
		if usedTitles[r.Title] {
			continue
		}
		size := p.est.Count(r.Text)
		if size > rest {
			break
		}
		selected = append(selected, models.Chunk{Text: r.Text, Title: r.Title})
		usedTitles[r.Title] = true
		rest -= size
	}
	return selected
}
