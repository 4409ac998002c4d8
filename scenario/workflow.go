package scenario

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/copymill/webprobe/probe"
)

// Selectors on the workflow pages.
const (
	selStepMarker     = `[data-testid="workflow-step"]`
	selBriefTextarea  = `textarea[name="brief"]`
	selParseBrief     = `[data-testid="parse-brief"]`
	selMotivationCard = `[data-testid="motivation-card"]`
	selGenerateCopy   = `[data-testid="generate-copy"]`
	selCopyVariation  = `[data-testid="copy-variation"]`
	selAssetGrid      = `[data-testid="asset-grid"]`
	selNextStepButton = `[data-testid="next-step"]`
)

// WorkflowConfig parameterizes the workflow probe.
type WorkflowConfig struct {
	BaseURL string
	// BriefText is typed into the brief form. When BriefDir is set the
	// text is also staged as a temp file, exercising the upload path's
	// artifact plumbing, and removed at the end of the run.
	BriefText string
	BriefDir  string
	// Seed, when non-nil, is written into session storage before the
	// workflow page loads, staging the UI at Seed.ActiveStep.
	Seed    *probe.WorkflowState
	Capture Capture
}

// Workflow returns the multi-step workflow probe: optionally stage a
// state snapshot, walk brief -> motivations -> copy -> assets, and
// verify the staged state round-trips through the page.
func Workflow(p Page, cfg WorkflowConfig) []probe.Step {
	var briefPath string

	steps := []probe.Step{
		{
			Name:   "open workflow page",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				return p.Navigate(ctx, cfg.BaseURL+"/workflow")
			},
		},
	}

	if cfg.Seed != nil {
		steps = append(steps,
			probe.Step{
				Name:   "seed workflow state",
				Policy: probe.Abort,
				Run: func(ctx context.Context) error {
					return probe.SeedState(ctx, p, cfg.Seed)
				},
			},
			probe.Step{
				Name: "verify state round-trip",
				Run: func(ctx context.Context) error {
					state, err := probe.ReadState(ctx, p)
					if err != nil {
						return err
					}
					if state == nil {
						return errors.New("seeded state not readable")
					}
					if state.ActiveStep != cfg.Seed.ActiveStep {
						return errors.Errorf("seeded step %q, read back %q",
							cfg.Seed.ActiveStep, state.ActiveStep)
					}
					return nil
				},
			},
			probe.Step{
				Name:   "reload into seeded step",
				Policy: probe.Abort,
				Run: func(ctx context.Context) error {
					if err := p.Reload(ctx); err != nil {
						return err
					}
					return p.WaitForSelector(ctx, selStepMarker)
				},
			},
			probe.Step{
				Name: "verify step marker",
				Run: func(ctx context.Context) error {
					text, err := p.ElementText(ctx, selStepMarker)
					if err != nil {
						return err
					}
					if !strings.Contains(strings.ToLower(text), cfg.Seed.ActiveStep) {
						return errors.Errorf("step marker reads %q, want step %q",
							text, cfg.Seed.ActiveStep)
					}
					return nil
				},
			},
		)
	}

	if cfg.BriefDir != "" {
		steps = append(steps, probe.Step{
			Name: "stage brief file",
			Run: func(ctx context.Context) error {
				briefPath = filepath.Join(cfg.BriefDir, "brief.txt")
				return os.WriteFile(briefPath, []byte(cfg.BriefText), 0o600)
			},
		})
	}

	steps = append(steps,
		probe.Step{
			Name:   "fill brief",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				if err := p.WaitForSelector(ctx, selBriefTextarea); err != nil {
					return err
				}
				return p.Fill(ctx, selBriefTextarea, cfg.BriefText)
			},
		},
		probe.Step{
			Name:   "parse brief",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				return p.Click(ctx, selParseBrief)
			},
		},
		probe.Step{
			Name: "screenshot brief",
			Run: func(ctx context.Context) error {
				return capture(ctx, cfg.Capture, "workflow-brief")
			},
		},
		probe.Step{
			Name:   "wait for motivations",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				return p.WaitForSelector(ctx, selMotivationCard)
			},
		},
		probe.Step{
			Name: "select first motivation",
			Run: func(ctx context.Context) error {
				return p.Click(ctx, selMotivationCard)
			},
		},
		probe.Step{
			Name: "screenshot motivations",
			Run: func(ctx context.Context) error {
				return capture(ctx, cfg.Capture, "workflow-motivations")
			},
		},
		probe.Step{
			Name:   "generate copy",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				if err := p.Click(ctx, selGenerateCopy); err != nil {
					return err
				}
				return p.WaitForSelector(ctx, selCopyVariation)
			},
		},
		probe.Step{
			Name: "screenshot copy",
			Run: func(ctx context.Context) error {
				return capture(ctx, cfg.Capture, "workflow-copy")
			},
		},
		probe.Step{
			Name: "advance to assets",
			Run: func(ctx context.Context) error {
				if err := p.Click(ctx, selNextStepButton); err != nil {
					return err
				}
				return p.WaitForSelector(ctx, selAssetGrid)
			},
		},
		probe.Step{
			Name: "screenshot assets",
			Run: func(ctx context.Context) error {
				return capture(ctx, cfg.Capture, "workflow-assets")
			},
		},
		probe.Step{
			Name: "remove staged brief file",
			Run: func(ctx context.Context) error {
				if briefPath == "" {
					return nil
				}
				return os.Remove(briefPath)
			},
		},
	)

	return steps
}
