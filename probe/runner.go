package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/copymill/webprobe/log"
)

// Policy decides what a step failure does to the rest of the run.
type Policy int

const (
	// Continue logs the failure as a record and moves on. Probes are
	// fault-tolerant by default: a dead endpoint is a finding, not a
	// reason to stop looking.
	Continue Policy = iota
	// Abort stops the run; remaining steps are reported as skipped.
	Abort
)

// Step statuses in a report.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Step is one named action in a probe scenario.
type Step struct {
	Name   string
	Policy Policy
	Run    func(ctx context.Context) error
}

// StepResult is the outcome of one step.
type StepResult struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunReport is everything a probe run produced.
type RunReport struct {
	RunID    string       `json:"run_id"`
	Scenario string       `json:"scenario"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Steps    []StepResult `json:"steps"`
	Records  []Record     `json:"records,omitempty"`
	Summary  Summary      `json:"summary"`
	OK       bool         `json:"ok"`
}

// Runner executes scenario steps sequentially and assembles the report.
type Runner struct {
	logger    *log.Logger
	collector *Collector

	// Steps slower than this are recorded as performance issues.
	slowStep time.Duration
}

// NewRunner returns a Runner reporting into the given collector.
// slowStep <= 0 disables the performance check.
func NewRunner(logger *log.Logger, collector *Collector, slowStep time.Duration) *Runner {
	if collector == nil {
		collector = NewCollector()
	}
	return &Runner{
		logger:    logger,
		collector: collector,
		slowStep:  slowStep,
	}
}

// Collector returns the collector the runner reports into.
func (r *Runner) Collector() *Collector { return r.collector }

// Run executes the steps in order and returns the assembled report.
// Failures under the Continue policy are folded into the report; only
// an Abort step failure marks the run as not OK and skips the rest.
func (r *Runner) Run(ctx context.Context, scenario string, steps []Step) *RunReport {
	report := &RunReport{
		RunID:    uuid.NewString(),
		Scenario: scenario,
		Started:  time.Now(),
		OK:       true,
	}
	r.logger.Infof("probe:run", "scenario:%s run:%s starting with %d steps",
		scenario, report.RunID, len(steps))

	aborted := false
	for _, step := range steps {
		if aborted {
			report.Steps = append(report.Steps, StepResult{
				Name:   step.Name,
				Status: StatusSkipped,
			})
			continue
		}

		start := time.Now()
		err := step.Run(ctx)
		elapsed := time.Since(start)

		result := StepResult{Name: step.Name, Duration: elapsed}
		if err != nil {
			result.Status = StatusFailed
			result.Error = err.Error()
			r.logger.Warnf("probe:run", "scenario:%s step:%s failed: %v", scenario, step.Name, err)
			r.collector.Add(Record{
				Type:     TypeUIError,
				Page:     scenario,
				Message:  fmt.Sprintf("step %q: %v", step.Name, err),
				Severity: SeverityMedium,
			})
			if step.Policy == Abort {
				aborted = true
				report.OK = false
			}
		} else {
			result.Status = StatusPassed
			r.logger.Debugf("probe:run", "scenario:%s step:%s passed in %s", scenario, step.Name, elapsed)
		}

		if r.slowStep > 0 && elapsed > r.slowStep {
			r.collector.Add(Record{
				Type:     TypePerformanceIssue,
				Page:     scenario,
				Message:  fmt.Sprintf("step %q took %s (threshold %s)", step.Name, elapsed, r.slowStep),
				Severity: SeverityLow,
			})
		}

		report.Steps = append(report.Steps, result)
	}

	report.Finished = time.Now()
	report.Records = r.collector.Records()
	report.Summary = r.collector.Summarize()
	r.logger.Infof("probe:run", "scenario:%s run:%s finished ok:%t records:%d",
		scenario, report.RunID, report.OK, report.Summary.Total)

	return report
}
