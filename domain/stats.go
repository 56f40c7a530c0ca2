package domain

import (
	"sort"
	"time"
)

// DueSoonWindow bounds how far ahead a pending task's due date may lie to
// count as due this week.
const DueSoonWindow = 7 * 24 * time.Hour

// GroupCount is one entry of a grouped breakdown.
type GroupCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Stats is the statistics snapshot for one user's task set at a single
// instant. It is computed on demand and never persisted.
type Stats struct {
	Total          int          `json:"total"`
	Completed      int          `json:"completed"`
	Pending        int          `json:"pending"`
	Overdue        int          `json:"overdue"`
	DueThisWeek    int          `json:"dueThisWeek"`
	ByPriority     []GroupCount `json:"byPriority"`
	ByCategory     []GroupCount `json:"byCategory"`
	CompletionRate float64      `json:"completionRate"`
	Insights       string       `json:"insights"`
}

// Aggregate computes the snapshot for tasks as of now. It is a pure function:
// the same task set and instant always yield the same counts. Overdue and
// due-this-week only consider pending tasks; the groupings cover all tasks
// and contain one entry per distinct key.
func Aggregate(tasks []Task, now time.Time) Stats {
	s := Stats{Total: len(tasks)}
	byPriority := make(map[string]int)
	byCategory := make(map[string]int)
	horizon := now.Add(DueSoonWindow)

	for _, t := range tasks {
		if t.Completed {
			s.Completed++
		} else {
			s.Pending++
			if t.DueDate != nil {
				switch {
				case t.DueDate.Before(now):
					s.Overdue++
				case !t.DueDate.After(horizon):
					s.DueThisWeek++
				}
			}
		}
		byPriority[string(t.Priority)]++
		byCategory[t.Category]++
	}

	if s.Total > 0 {
		s.CompletionRate = float64(s.Completed) / float64(s.Total)
	}
	s.ByPriority = groupCounts(byPriority)
	s.ByCategory = groupCounts(byCategory)
	return s
}

func groupCounts(m map[string]int) []GroupCount {
	out := make([]GroupCount, 0, len(m))
	for k, v := range m {
		out = append(out, GroupCount{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
