// Package reconcile maps lesson content returned by the LLM back onto the subtopics that
// were requested in the same batch.
package reconcile

import (
	"github.com/google/uuid"

	"github.com/codeW-Krish/ai-course-backend/internal/types"
)

// Reasons an item is dropped.
const (
	ReasonUnmatched     = "unmatched"
	ReasonAlreadyFilled = "duplicate"
)

// Stub is a requested subtopic.
type Stub struct {
	ID    uuid.UUID
	Title string
}

// Match pairs a subtopic with its generated content.
type Match struct {
	SubtopicID uuid.UUID
	Content    types.SubtopicContent
}

// Dropped is a returned item that will not be persisted.
type Dropped struct {
	SubtopicTitle string
	Reason        string
}

// Result is the outcome of one reconciliation.
type Result struct {
	Matches []Match
	Dropped []Dropped
}

// Reconcile matches items to stubs by normalized title (case-folded, whitespace
// collapsed). Each stub is claimed at most once: when several stubs share a title the
// first unclaimed one wins, and an item whose stubs are all claimed is dropped. Items that
// match nothing are dropped too. Matches come back in item order.
func Reconcile(stubs []Stub, items []types.SubtopicContent) Result {
	byTitle := make(map[string][]int, len(stubs))
	for i, s := range stubs {
		key := types.NormalizeTitle(s.Title)
		byTitle[key] = append(byTitle[key], i)
	}

	claimed := make([]bool, len(stubs))
	var res Result
	for _, item := range items {
		candidates, ok := byTitle[types.NormalizeTitle(item.SubtopicTitle)]
		if !ok {
			res.Dropped = append(res.Dropped, Dropped{SubtopicTitle: item.SubtopicTitle, Reason: ReasonUnmatched})
			continue
		}

		idx := -1
		for _, c := range candidates {
			if !claimed[c] {
				idx = c
				break
			}
		}
		if idx < 0 {
			res.Dropped = append(res.Dropped, Dropped{SubtopicTitle: item.SubtopicTitle, Reason: ReasonAlreadyFilled})
			continue
		}

		claimed[idx] = true
		res.Matches = append(res.Matches, Match{SubtopicID: stubs[idx].ID, Content: item})
	}
	return res
}
