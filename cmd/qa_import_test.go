package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/llm"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/store"
)

func TestParseQANotes(t *testing.T) {
	t.Run("numbered list with project headings", func(t *testing.T) {
		md := `# Session notes

## Project Storefront

1. Checkout button misaligned on mobile view
2. Page crash when cart is empty
3. Search results are slow to load

## Project Admin

1. Cannot save user roles
2. Minor typo in footer
`
		issues := parseQANotes(md)
		require.Len(t, issues, 5)

		assert.Equal(t, "Storefront", issues[0].Project)
		assert.Equal(t, "Checkout button misaligned on mobile view", issues[0].Title)
		assert.Equal(t, "ui", issues[0].IssueType)
		assert.Equal(t, "medium", issues[0].Severity)

		assert.Equal(t, "bug", issues[1].IssueType)
		assert.Equal(t, "critical", issues[1].Severity)

		assert.Equal(t, "performance", issues[2].IssueType)

		assert.Equal(t, "Admin", issues[3].Project)
		assert.Equal(t, "high", issues[3].Severity)

		assert.Equal(t, "Admin", issues[4].Project)
		assert.Equal(t, "low", issues[4].Severity)
	})

	t.Run("bulleted list", func(t *testing.T) {
		md := `## Project test

- Item one
- Item two
* Item three
`
		issues := parseQANotes(md)
		require.Len(t, issues, 3)
		assert.Equal(t, "test", issues[0].Project)
		assert.Equal(t, "Item one", issues[0].Title)
		assert.Equal(t, "Item three", issues[2].Title)
		assert.Equal(t, "functional", issues[2].IssueType)
	})

	t.Run("no project heading", func(t *testing.T) {
		issues := parseQANotes("1. First issue\n2. Second issue\n")
		require.Len(t, issues, 2)
		assert.Equal(t, "", issues[0].Project)
	})

	t.Run("sub-items keep parent as reproduction context", func(t *testing.T) {
		md := `## Project test

1. Login page
1.1 Error shown for valid password
1.2. Reset link broken

2. Reports
2.1 Export is slow
`
		issues := parseQANotes(md)
		require.Len(t, issues, 5)

		assert.Equal(t, "Login page", issues[0].Title)
		assert.Empty(t, issues[0].StepsToReproduce)

		assert.Equal(t, "Error shown for valid password", issues[1].Title)
		assert.Equal(t, "1. Login page\n1.1 Error shown for valid password", issues[1].StepsToReproduce)

		assert.Equal(t, "Reset link broken", issues[2].Title)
		assert.Equal(t, "1. Login page\n1.2. Reset link broken", issues[2].StepsToReproduce)

		assert.Equal(t, "2. Reports\n2.1 Export is slow", issues[4].StepsToReproduce)
	})

	t.Run("sub-item without parent", func(t *testing.T) {
		issues := parseQANotes("## Project test\n\n1.1 Orphan\n")
		require.Len(t, issues, 1)
		assert.Equal(t, "Orphan", issues[0].Title)
		assert.Empty(t, issues[0].StepsToReproduce)
	})

	t.Run("empty and prose-only", func(t *testing.T) {
		assert.Empty(t, parseQANotes(""))
		assert.Empty(t, parseQANotes("# Heading\n\nJust a paragraph.\n"))
	})
}

// setupImportStore opens a temp store with one project for import tests.
func setupImportStore(t *testing.T) (store.Store, *models.Project) {
	t.Helper()
	dir := testEnv(t)
	s, err := store.NewSQLiteStore(filepath.Join(dir, "import.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	proj := &models.Project{Name: "Storefront", Status: models.ProjectStatusOnTrack}
	require.NoError(t, s.CreateProject(context.Background(), proj))
	return s, proj
}

func notesIssue(project, title string) importedIssue {
	return importedIssue{Project: project, ExtractedQAIssue: llm.ExtractedQAIssue{Title: title}}
}

func TestCreateImportedIssues(t *testing.T) {
	t.Run("creates and classifies", func(t *testing.T) {
		s, proj := setupImportStore(t)
		ctx := context.Background()

		err := createImportedIssues(ctx, s, forms.New(s, nil, nil), []importedIssue{
			notesIssue(proj.Name, "Checkout crash"),
			notesIssue(proj.Name, "Slow search"),
		})
		require.NoError(t, err)

		issues, err := s.ListQAIssues(ctx, proj.ID)
		require.NoError(t, err)
		require.Len(t, issues, 2)
		for _, q := range issues {
			assert.Equal(t, "local", q.CreatedBy)
			assert.Equal(t, models.QAStatusOpen, q.Status)
			if q.Title == "Checkout crash" {
				assert.Equal(t, models.SeverityCritical, q.Severity)
				assert.Equal(t, "bug", q.IssueType)
			}
		}
	})

	t.Run("re-import skips existing titles", func(t *testing.T) {
		s, proj := setupImportStore(t)
		ctx := context.Background()
		sub := forms.New(s, nil, nil)

		batch := []importedIssue{notesIssue(proj.Name, "Issue A"), notesIssue(proj.Name, "Issue B")}
		require.NoError(t, createImportedIssues(ctx, s, sub, batch))
		require.NoError(t, createImportedIssues(ctx, s, sub, append(batch, notesIssue(proj.Name, "issue c"))))

		issues, err := s.ListQAIssues(ctx, proj.ID)
		require.NoError(t, err)
		assert.Len(t, issues, 3)
	})

	t.Run("duplicates within a batch", func(t *testing.T) {
		s, proj := setupImportStore(t)
		ctx := context.Background()

		err := createImportedIssues(ctx, s, forms.New(s, nil, nil), []importedIssue{
			notesIssue(proj.Name, "Dup"),
			notesIssue(proj.Name, "dup"),
			notesIssue(proj.Name, "Unique"),
		})
		require.NoError(t, err)

		issues, err := s.ListQAIssues(ctx, proj.ID)
		require.NoError(t, err)
		assert.Len(t, issues, 2)
	})

	t.Run("unknown project is skipped", func(t *testing.T) {
		s, proj := setupImportStore(t)
		ctx := context.Background()

		err := createImportedIssues(ctx, s, forms.New(s, nil, nil), []importedIssue{
			notesIssue("Nowhere", "Lost issue"),
			notesIssue("", "No project"),
		})
		require.NoError(t, err)

		issues, err := s.ListQAIssues(ctx, proj.ID)
		require.NoError(t, err)
		assert.Empty(t, issues)
	})
}
