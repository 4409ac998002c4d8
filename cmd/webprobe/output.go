package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/copymill/webprobe/apiprobe"
	"github.com/copymill/webprobe/probe"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func printReport(w io.Writer, format string, report *probe.RunReport) error {
	if format == "json" {
		return writeJSON(w, report)
	}

	fmt.Fprintf(w, "%s %s (run %s)\n", bold("scenario"), report.Scenario, report.RunID)
	for _, step := range report.Steps {
		switch step.Status {
		case probe.StatusPassed:
			fmt.Fprintf(w, "  %s %s (%s)\n", green("✓"), step.Name, step.Duration)
		case probe.StatusFailed:
			fmt.Fprintf(w, "  %s %s: %s\n", red("✗"), step.Name, step.Error)
		default:
			fmt.Fprintf(w, "  %s %s\n", yellow("-"), step.Name)
		}
	}

	sum := report.Summary
	if sum.Total == 0 {
		fmt.Fprintf(w, "%s no findings\n", green("ok"))
		return nil
	}
	fmt.Fprintf(w, "%s %d finding(s)\n", red("!!"), sum.Total)
	for _, rec := range report.Records {
		fmt.Fprintf(w, "  [%s/%s] %s: %s\n", rec.Type, rec.Severity, rec.Page, rec.Message)
	}
	return nil
}

func printAPIResults(w io.Writer, format string, results []apiprobe.Result) error {
	if format == "json" {
		return writeJSON(w, results)
	}

	for _, res := range results {
		mark := green("✓")
		if !res.OK {
			mark = red("✗")
		}
		fmt.Fprintf(w, "%s %-28s %s %s", mark, res.Name, res.Method, res.Path)
		if res.Status != 0 {
			fmt.Fprintf(w, " -> %d", res.Status)
		}
		if res.Error != "" {
			fmt.Fprintf(w, " (%s)", res.Error)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func printHealth(w io.Writer, format, baseURL string, err error) {
	if format == "json" {
		out := map[string]any{"base_url": baseURL, "healthy": err == nil}
		if err != nil {
			out["error"] = err.Error()
		}
		_ = writeJSON(w, out)
		return
	}
	if err != nil {
		fmt.Fprintf(w, "%s %s: %v\n", red("✗"), baseURL, err)
		return
	}
	fmt.Fprintf(w, "%s %s healthy\n", green("✓"), baseURL)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
