// Package search ranks projects, tasks and team members against a
// search-as-you-type query.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/store"
)

// DefaultLimit caps results when the caller gives no limit.
const DefaultLimit = 10

// Kind is the entity type of a result.
type Kind string

const (
	KindProject Kind = "project"
	KindTask    Kind = "task"
	KindMember  Kind = "member"
)

// Result is one ranked match.
type Result struct {
	Kind      Kind   `json:"kind"`
	ID        string `json:"id"`
	Label     string `json:"label"`
	Detail    string `json:"detail,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	Score     int    `json:"score"`
}

// Index is a searchable snapshot.
type Index struct {
	entries []Result
}

// NewIndex builds an index over the given records.
func NewIndex(projects []*models.Project, tasks []*models.Task, members []*models.TeamMember) *Index {
	ix := &Index{entries: make([]Result, 0, len(projects)+len(tasks)+len(members))}
	for _, p := range projects {
		ix.entries = append(ix.entries, Result{Kind: KindProject, ID: p.ID, Label: p.Name, Detail: string(p.Status.Display()), ProjectID: p.ID})
	}
	for _, t := range tasks {
		ix.entries = append(ix.entries, Result{Kind: KindTask, ID: t.ID, Label: t.Title, Detail: t.Status.Label(), ProjectID: t.ProjectID})
	}
	for _, m := range members {
		ix.entries = append(ix.entries, Result{Kind: KindMember, ID: m.ID, Label: m.Name, Detail: string(m.Role)})
	}
	return ix
}

// Len is the number of indexed records.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// entrySource adapts the index for the fuzzy library.
type entrySource []Result

func (s entrySource) String(i int) string {
	return s[i].Label
}

func (s entrySource) Len() int {
	return len(s)
}

// Search returns up to limit matches, best first. An empty query matches
// nothing.
func (ix *Index) Search(query string, limit int) []Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	matches := fuzzy.FindFrom(query, entrySource(ix.entries))
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]Result, len(matches))
	for i, m := range matches {
		out[i] = ix.entries[m.Index]
		out[i].Score = m.Score
	}
	return out
}

// Lister is the read side Load needs.
type Lister interface {
	ListProjects(ctx context.Context) ([]*models.Project, error)
	ListTasks(ctx context.Context, filter store.TaskListFilter) ([]*models.Task, error)
	ListTeamMembers(ctx context.Context) ([]*models.TeamMember, error)
}

// Load fetches the three collections concurrently and indexes them.
func Load(ctx context.Context, l Lister) (*Index, error) {
	var (
		projects []*models.Project
		tasks    []*models.Task
		members  []*models.TeamMember
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if projects, err = l.ListProjects(gctx); err != nil {
			return fmt.Errorf("list projects: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if tasks, err = l.ListTasks(gctx, store.TaskListFilter{}); err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if members, err = l.ListTeamMembers(gctx); err != nil {
			return fmt.Errorf("list team members: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewIndex(projects, tasks, members), nil
}
