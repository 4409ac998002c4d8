// Package probe contains the core probe-run machinery: diagnostic
// record collection, workflow state staging and the step runner.
package probe

import "time"

// Record types, matching how run transcripts bucket what went wrong.
const (
	TypeConsoleError     = "console_error"
	TypeNetworkError     = "network_error"
	TypePageError        = "page_error"
	TypeUIError          = "ui_error"
	TypePerformanceIssue = "performance_issue"
)

// Severities, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Record is a single diagnostic event observed during a probe run.
type Record struct {
	Type      string    `json:"type"`
	Page      string    `json:"page"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Stack     string    `json:"stack,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
