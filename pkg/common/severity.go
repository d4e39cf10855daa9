package common

import "strings"

// Severity is the normalized severity bucket shared by all alert sources.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityUnknown  Severity = "unknown"
)

// NormalizeSeverity maps the source-specific severity vocabularies onto the
// common enum. Code-scanning rules report error/warning/note, Dependabot
// reports CRITICAL/HIGH/MODERATE/LOW, security-severity levels use
// critical/high/medium/low. Matching is case-insensitive and anything
// unrecognized maps to unknown, never to an error.
func NormalizeSeverity(severity string) Severity {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "moderate", "warning":
		return SeverityMedium
	case "low", "note":
		return SeverityLow
	default:
		return SeverityUnknown
	}
}
