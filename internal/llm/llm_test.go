package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildExtractPrompt(t *testing.T) {
	t.Run("with project", func(t *testing.T) {
		system, user := buildExtractPrompt("- checkout total off by one cent", "Payments")

		assert.Contains(t, system, "JSON array")
		assert.Contains(t, system, `"title"`)
		assert.Contains(t, system, `"severity"`)
		assert.Contains(t, system, `"steps_to_reproduce"`)

		assert.Contains(t, user, "Project: Payments")
		assert.Contains(t, user, "off by one cent")
	})

	t.Run("without project", func(t *testing.T) {
		_, user := buildExtractPrompt("some notes", "")
		assert.NotContains(t, user, "Project:")
		assert.Contains(t, user, "some notes")
	})

	t.Run("system prompt specifies valid severities and types", func(t *testing.T) {
		system, _ := buildExtractPrompt("notes", "")

		for _, v := range []string{"critical", "high", "medium", "low", "bug", "ui", "performance", "security", "functional"} {
			assert.Contains(t, system, `"`+v+`"`)
		}
	})
}

func TestBuildExtractPromptContent(t *testing.T) {
	notes := strings.Repeat("x", 10000)
	_, user := buildExtractPrompt(notes, "a")
	assert.Contains(t, user, notes)
}

func TestBuildEnrichPrompt(t *testing.T) {
	t.Run("with all fields", func(t *testing.T) {
		system, user := buildEnrichPrompt(QAIssueDraft{
			Title:            "Login fails",
			Description:      "Login page errors on submit",
			StepsToReproduce: "1. Open /login\n2. Submit",
			ExpectedResult:   "Dashboard loads",
			ActualResult:     "500 error",
		})

		assert.Contains(t, system, `"description"`)
		assert.Contains(t, system, `"steps_to_reproduce"`)
		assert.Contains(t, system, `"expected_result"`)
		assert.Contains(t, system, `"actual_result"`)

		assert.Contains(t, user, "Login fails")
		assert.Contains(t, user, "Existing description:\nLogin page errors on submit")
		assert.Contains(t, user, "1. Open /login")
		assert.Contains(t, user, "Dashboard loads")
		assert.Contains(t, user, "500 error")
	})

	t.Run("with only title", func(t *testing.T) {
		_, user := buildEnrichPrompt(QAIssueDraft{Title: "Dark mode contrast"})

		assert.Contains(t, user, "Dark mode contrast")
		assert.NotContains(t, user, "Existing description")
		assert.NotContains(t, user, "Steps to reproduce")
	})
}

func TestStripFencing(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```\n", "[1,2]"},
		{"whitespace", "  \n{}\n ", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFencing(tt.in))
		})
	}
}
