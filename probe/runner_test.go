package probe

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copymill/webprobe/log"
)

func testRunner(t *testing.T, slowStep time.Duration) *Runner {
	t.Helper()
	return NewRunner(log.NewNull(context.Background()), NewCollector(), slowStep)
}

func TestRunnerAllPassing(t *testing.T) {
	t.Parallel()

	r := testRunner(t, 0)
	report := r.Run(context.Background(), "login", []Step{
		{Name: "navigate", Run: func(context.Context) error { return nil }},
		{Name: "fill credentials", Run: func(context.Context) error { return nil }},
	})

	assert.True(t, report.OK)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Steps, 2)
	for _, s := range report.Steps {
		assert.Equal(t, StatusPassed, s.Status)
	}
	assert.Zero(t, report.Summary.Total)
}

func TestRunnerContinuePolicy(t *testing.T) {
	t.Parallel()

	var ran []string
	step := func(name string, err error) Step {
		return Step{Name: name, Run: func(context.Context) error {
			ran = append(ran, name)
			return err
		}}
	}

	r := testRunner(t, 0)
	report := r.Run(context.Background(), "error-scan", []Step{
		step("visit /matrix", errors.New("net::ERR_CONNECTION_REFUSED")),
		step("visit /clients", nil),
	})

	// A failed probe under Continue is a finding, not a stop.
	assert.True(t, report.OK)
	assert.Equal(t, []string{"visit /matrix", "visit /clients"}, ran)
	assert.Equal(t, StatusFailed, report.Steps[0].Status)
	assert.Equal(t, StatusPassed, report.Steps[1].Status)
	assert.Equal(t, 1, report.Summary.ByType[TypeUIError])
}

func TestRunnerAbortPolicy(t *testing.T) {
	t.Parallel()

	var ran []string
	r := testRunner(t, 0)
	report := r.Run(context.Background(), "login", []Step{
		{Name: "navigate", Policy: Abort, Run: func(context.Context) error {
			ran = append(ran, "navigate")
			return errors.New("timeout")
		}},
		{Name: "fill credentials", Run: func(context.Context) error {
			ran = append(ran, "fill credentials")
			return nil
		}},
	})

	assert.False(t, report.OK)
	assert.Equal(t, []string{"navigate"}, ran)
	assert.Equal(t, StatusFailed, report.Steps[0].Status)
	assert.Equal(t, StatusSkipped, report.Steps[1].Status)
}

func TestRunnerSlowStepRecorded(t *testing.T) {
	t.Parallel()

	r := testRunner(t, time.Millisecond)
	report := r.Run(context.Background(), "workflow", []Step{
		{Name: "wait for motivations", Run: func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		}},
	})

	assert.True(t, report.OK)
	assert.Equal(t, 1, report.Summary.ByType[TypePerformanceIssue])
}

func TestRunnerReportTalliesMatchRecords(t *testing.T) {
	t.Parallel()

	r := testRunner(t, 0)
	r.Collector().Add(Record{Type: TypeConsoleError, Severity: SeverityMedium})
	report := r.Run(context.Background(), "scan", []Step{
		{Name: "fail", Run: func(context.Context) error { return errors.New("nope") }},
	})

	assert.Len(t, report.Records, report.Summary.Total)
	var bySeverity int
	for _, n := range report.Summary.BySeverity {
		bySeverity += n
	}
	assert.Equal(t, report.Summary.Total, bySeverity)
}
