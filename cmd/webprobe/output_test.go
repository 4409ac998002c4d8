package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copymill/webprobe/apiprobe"
	"github.com/copymill/webprobe/probe"
)

func init() {
	color.NoColor = true
}

func sampleReport() *probe.RunReport {
	return &probe.RunReport{
		RunID:    "run-1",
		Scenario: "login",
		OK:       true,
		Steps: []probe.StepResult{
			{Name: "open login page", Status: probe.StatusPassed, Duration: 120 * time.Millisecond},
			{Name: "wait for login form", Status: probe.StatusFailed, Error: "selector never appeared"},
			{Name: "submit", Status: probe.StatusSkipped},
		},
		Records: []probe.Record{
			{Type: probe.TypeUIError, Page: "login", Message: "boom", Severity: probe.SeverityMedium},
		},
		Summary: probe.Summary{
			Total:      1,
			BySeverity: map[string]int{probe.SeverityMedium: 1},
			ByType:     map[string]int{probe.TypeUIError: 1},
		},
	}
}

func TestPrintReportText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, "text", sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "scenario login")
	assert.Contains(t, out, "✓ open login page")
	assert.Contains(t, out, "✗ wait for login form: selector never appeared")
	assert.Contains(t, out, "- submit")
	assert.Contains(t, out, "1 finding(s)")
	assert.Contains(t, out, "[ui_error/medium] login: boom")
}

func TestPrintReportTextNoFindings(t *testing.T) {
	report := sampleReport()
	report.Records = nil
	report.Summary = probe.Summary{}

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, "text", report))
	assert.Contains(t, buf.String(), "no findings")
}

func TestPrintReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, "json", sampleReport()))

	var got probe.RunReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Len(t, got.Steps, 3)
	assert.Equal(t, 1, got.Summary.Total)
}

func TestPrintAPIResults(t *testing.T) {
	results := []apiprobe.Result{
		{Name: "health", Method: "GET", Path: "/api/health", Status: 200, OK: true},
		{Name: "generate", Method: "POST", Path: "/api/ai/generate", Status: 502, OK: false},
		{Name: "unreachable", Method: "GET", Path: "/api/clients", Error: "connection refused"},
	}

	var buf bytes.Buffer
	require.NoError(t, printAPIResults(&buf, "text", results))

	out := buf.String()
	assert.Contains(t, out, "✓ health")
	assert.Contains(t, out, "-> 200")
	assert.Contains(t, out, "✗ generate")
	assert.Contains(t, out, "(connection refused)")
}

func TestPrintHealth(t *testing.T) {
	var buf bytes.Buffer
	printHealth(&buf, "text", "https://app.copymill.test", nil)
	assert.Contains(t, buf.String(), "healthy")

	buf.Reset()
	printHealth(&buf, "json", "https://app.copymill.test", assert.AnError)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, false, got["healthy"])
}
