package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ExtractedQAIssue holds a single QA issue extracted from free-form test notes.
type ExtractedQAIssue struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	Severity         string `json:"severity"`
	IssueType        string `json:"issue_type"`
	StepsToReproduce string `json:"steps_to_reproduce"`
	ExpectedResult   string `json:"expected_result"`
	ActualResult     string `json:"actual_result"`
}

// Client wraps the Anthropic API for QA issue extraction and enrichment.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildExtractPrompt constructs the system and user prompts for QA issue extraction.
func buildExtractPrompt(notes, projectName string) (system string, user string) {
	system = `You extract QA issues from a tester's session notes. Return ONLY a JSON array of objects with these fields:
- "title": concise issue title
- "description": brief description of the defect (can be empty string if the title is self-explanatory)
- "severity": one of "critical", "high", "medium", "low"
- "issue_type": one of "bug", "ui", "performance", "security", "functional"
- "steps_to_reproduce": numbered steps, one per line, taken from the notes (empty string if none are given)
- "expected_result": what should have happened (empty string if unknown)
- "actual_result": what actually happened (empty string if unknown)

Rules:
- Each distinct defect is one issue; passing checks are not issues
- Default severity to "medium" unless the notes suggest data loss, crashes or security exposure (critical) or a blocked workflow (high)
- Never invent steps or results that are not supported by the notes
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	if projectName != "" {
		sb.WriteString("Project: ")
		sb.WriteString(projectName)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Extract QA issues from these notes:\n\n")
	sb.WriteString(notes)
	user = sb.String()
	return
}

// ExtractQAIssues sends test notes to the LLM and returns structured QA issues.
func (c *Client) ExtractQAIssues(ctx context.Context, notes, projectName string) ([]ExtractedQAIssue, error) {
	systemPrompt, userPrompt := buildExtractPrompt(notes, projectName)
	text, err := c.complete(ctx, systemPrompt, userPrompt, 4096)
	if err != nil {
		return nil, err
	}

	var issues []ExtractedQAIssue
	if err := json.Unmarshal([]byte(text), &issues); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return issues, nil
}

// EnrichedQAIssue holds the LLM-generated fields for a QA issue.
type EnrichedQAIssue struct {
	Description      string `json:"description"`
	StepsToReproduce string `json:"steps_to_reproduce"`
	ExpectedResult   string `json:"expected_result"`
	ActualResult     string `json:"actual_result"`
}

// QAIssueDraft is what the reporter has written so far.
type QAIssueDraft struct {
	Title            string
	Description      string
	StepsToReproduce string
	ExpectedResult   string
	ActualResult     string
}

// buildEnrichPrompt constructs the system and user prompts for QA issue enrichment.
func buildEnrichPrompt(d QAIssueDraft) (system string, user string) {
	system = `You tidy QA issue reports for a project management system. Given an issue's title and whatever fields the tester filled in, return a JSON object with exactly four fields:

- "description": A concise 1-3 sentence summary of the defect. If a description is already provided, improve it for clarity.
- "steps_to_reproduce": Numbered steps, one per line, that reproduce the defect. Keep existing steps; only fill gaps that follow directly from the report.
- "expected_result": One sentence describing the correct behaviour.
- "actual_result": One sentence describing the observed behaviour.

Rules:
- Return valid JSON only, no markdown fencing or explanation
- Never change the meaning of what the tester wrote
- Use an empty string for a field that cannot be inferred from the report`

	var sb strings.Builder
	sb.WriteString("Issue title: ")
	sb.WriteString(d.Title)
	sb.WriteString("\n")
	for _, f := range []struct{ label, value string }{
		{"Existing description", d.Description},
		{"Steps to reproduce", d.StepsToReproduce},
		{"Expected result", d.ExpectedResult},
		{"Actual result", d.ActualResult},
	} {
		if f.value == "" {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(f.label)
		sb.WriteString(":\n")
		sb.WriteString(f.value)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// EnrichQAIssue sends a draft to the LLM and returns the completed fields.
func (c *Client) EnrichQAIssue(ctx context.Context, d QAIssueDraft) (*EnrichedQAIssue, error) {
	systemPrompt, userPrompt := buildEnrichPrompt(d)
	text, err := c.complete(ctx, systemPrompt, userPrompt, 2048)
	if err != nil {
		return nil, err
	}

	var enriched EnrichedQAIssue
	if err := json.Unmarshal([]byte(text), &enriched); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return &enriched, nil
}

// complete runs one message exchange and returns the first text block with
// any markdown fencing removed.
func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return stripFencing(text), nil
}

// stripFencing removes a surrounding ``` block if present.
func stripFencing(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
