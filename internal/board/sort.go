package board

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joescharf/pmdash/internal/models"
)

// SortKey selects the board ordering.
type SortKey string

const (
	SortCreated  SortKey = "created"
	SortDueDate  SortKey = "due_date"
	SortPriority SortKey = "priority"
	SortTitle    SortKey = "title"
)

// ParseSortKey validates a user-supplied key. Empty means SortCreated.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.TrimSpace(s)); k {
	case "":
		return SortCreated, nil
	case SortCreated, SortDueDate, SortPriority, SortTitle:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort key %q (want created, due_date, priority or title)", s)
	}
}

// Sort returns a stably sorted copy of tasks.
func Sort(tasks []*models.Task, key SortKey) []*models.Task {
	out := append([]*models.Task(nil), tasks...)
	sort.SliceStable(out, less(out, key))
	return out
}

func less(ts []*models.Task, key SortKey) func(i, j int) bool {
	switch key {
	case SortDueDate:
		return func(i, j int) bool {
			a, b := ts[i].DueDate, ts[j].DueDate
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return a.Before(*b)
			}
		}
	case SortPriority:
		return func(i, j int) bool {
			return ts[i].Priority.Rank() > ts[j].Priority.Rank()
		}
	case SortTitle:
		return func(i, j int) bool {
			return strings.ToLower(ts[i].Title) < strings.ToLower(ts[j].Title)
		}
	default:
		return func(i, j int) bool {
			return ts[i].CreatedAt.After(ts[j].CreatedAt)
		}
	}
}
