package tasks

import (
	"sort"
	"strings"

	"atask/internal/service"
)

// Filters narrows the projected view. The zero value matches everything.
type Filters struct {
	Completed  *bool
	SearchTerm string
}

// Matches reports whether t passes both clauses of f.
func (f Filters) Matches(t service.Task) bool {
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.SearchTerm))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), term) ||
		strings.Contains(strings.ToLower(t.Description), term)
}

// Project returns the tasks matching filters, newest first.
// The input slice is never modified.
func Project(tasks []service.Task, filters Filters) []service.Task {
	out := make([]service.Task, 0, len(tasks))
	for _, t := range tasks {
		if filters.Matches(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
