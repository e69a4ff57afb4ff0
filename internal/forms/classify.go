package forms

import (
	"strings"

	"github.com/joescharf/pmdash/internal/models"
)

// Issue types inferred for QA issues.
const (
	IssueTypeBug         = "bug"
	IssueTypeUI          = "ui"
	IssueTypePerformance = "performance"
	IssueTypeSecurity    = "security"
	IssueTypeFunctional  = "functional"
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ClassifyIssueType infers a QA issue type from its title using keyword
// heuristics. Security is checked first, then performance, UI, and bug.
// Defaults to "functional" if no keywords match.
func ClassifyIssueType(title string) string {
	lower := strings.ToLower(title)

	securityKeywords := []string{
		"security", "xss", "csrf", "injection", "vulnerab",
		"exploit", "data leak", "unauthori", "bypass",
	}
	if containsAny(lower, securityKeywords) {
		return IssueTypeSecurity
	}

	performanceKeywords := []string{
		"slow", "performance", "latency", "timeout", "laggy", "lagging",
		"memory", "cpu", "takes forever", "hanging", "freez",
	}
	if containsAny(lower, performanceKeywords) {
		return IssueTypePerformance
	}

	uiKeywords := []string{
		"layout", "alignment", "misaligned", "overlap", "css", "color", "colour",
		"font", "icon", "button", "modal", "responsive", "mobile view", "dark mode",
		"typo", "spacing",
	}
	if containsAny(lower, uiKeywords) {
		return IssueTypeUI
	}

	// Multi-word phrases checked first, then single words with common variants.
	bugKeywords := []string{
		"issue with", "not working", "doesn't work", "does not work",
		"bug", "broken", "crash", "error", "exception",
		"regression", "fail", "fault", "defect", "wrong",
	}
	if containsAny(lower, bugKeywords) {
		return IssueTypeBug
	}

	return IssueTypeFunctional
}

// ClassifySeverity infers a QA severity from the title. Critical keywords
// are checked before high, then low. Defaults to medium.
func ClassifySeverity(title string) models.Severity {
	lower := strings.ToLower(title)

	criticalKeywords := []string{
		"critical", "blocker", "data loss", "production down", "outage",
		"security", "crash", "p0",
	}
	if containsAny(lower, criticalKeywords) {
		return models.SeverityCritical
	}

	highKeywords := []string{
		"urgent", "cannot", "can't", "unable", "broken", "fails", "p1",
	}
	if containsAny(lower, highKeywords) {
		return models.SeverityHigh
	}

	lowKeywords := []string{
		"minor", "nice to have", "cosmetic", "trivial", "typo",
		"low priority", "polish",
	}
	if containsAny(lower, lowKeywords) {
		return models.SeverityLow
	}

	return models.SeverityMedium
}
