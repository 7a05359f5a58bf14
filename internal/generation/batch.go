package generation

import (
	"github.com/google/uuid"

	"github.com/codeW-Krish/ai-course-backend/internal/db"
)

const (
	// BatchSize is the number of subtopics sent per provider call.
	BatchSize = 3
	// smallUnitLimit is the largest missing count sent as a single batch.
	smallUnitLimit = 4
)

// unitGroup is the missing subtopics of one unit, in position order.
type unitGroup struct {
	ID        uuid.UUID
	Title     string
	Position  int
	Subtopics []db.MissingSubtopic
}

// groupByUnit groups rows already ordered by unit position then subtopic position,
// keeping that order.
func groupByUnit(missing []db.MissingSubtopic) []unitGroup {
	var groups []unitGroup
	for _, m := range missing {
		if n := len(groups); n == 0 || groups[n-1].ID != m.UnitID {
			groups = append(groups, unitGroup{ID: m.UnitID, Title: m.UnitTitle, Position: m.UnitPosition})
		}
		last := &groups[len(groups)-1]
		last.Subtopics = append(last.Subtopics, m)
	}
	return groups
}

// chunk splits a unit's missing subtopics into batches. Units with at most
// smallUnitLimit missing go out in one call.
func chunk[T any](items []T) [][]T {
	if len(items) == 0 {
		return nil
	}
	if len(items) <= smallUnitLimit {
		return [][]T{items}
	}

	batches := make([][]T, 0, (len(items)+BatchSize-1)/BatchSize)
	for start := 0; start < len(items); start += BatchSize {
		end := min(start+BatchSize, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}

// splitAtUnit partitions missing rows into those in units up to and including
// position and the rest. Input order is preserved in both halves.
func splitAtUnit(missing []db.MissingSubtopic, position int) (head, tail []db.MissingSubtopic) {
	for _, m := range missing {
		if m.UnitPosition <= position {
			head = append(head, m)
		} else {
			tail = append(tail, m)
		}
	}
	return head, tail
}
