package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/copymill/webprobe/probe"
	"github.com/copymill/webprobe/scenario"
)

func newLoginCmd(r *rootCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "probe the login flow end to end",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.runAuthFlow(cmd, "login", scenario.Login)
		},
	}
}

func newSignupCmd(r *rootCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "probe the signup flow end to end",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.runAuthFlow(cmd, "signup", scenario.Signup)
		},
	}
}

func (r *rootCmd) runAuthFlow(cmd *cobra.Command, name string,
	flow func(scenario.Page, scenario.LoginConfig) []probe.Step,
) error {
	if err := r.requireCreds(); err != nil {
		return err
	}
	ctx := cmd.Context()

	s, err := r.startSession(ctx, name)
	if err != nil {
		return err
	}
	defer s.close()

	steps := flow(s.page, scenario.LoginConfig{
		BaseURL:  r.cfg.BaseURL,
		Email:    r.cfg.Email,
		Password: r.cfg.Password,
		Capture:  s.capture,
	})
	return r.finish(s.runner.Run(ctx, name, steps))
}

func newWorkflowCmd(r *rootCmd) *cobra.Command {
	var (
		briefText string
		briefDir  string
		seedStep  string
		waitStep  string
	)
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "walk the brief-to-assets workflow UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.requireCreds(); err != nil {
				return err
			}
			ctx := cmd.Context()

			s, err := r.startSession(ctx, "workflow")
			if err != nil {
				return err
			}
			defer s.close()

			// Auth first so the workflow pages are reachable.
			steps := scenario.Login(s.page, scenario.LoginConfig{
				BaseURL:  r.cfg.BaseURL,
				Email:    r.cfg.Email,
				Password: r.cfg.Password,
			})

			cfg := scenario.WorkflowConfig{
				BaseURL:   r.cfg.BaseURL,
				BriefText: briefText,
				BriefDir:  briefDir,
				Capture:   s.capture,
			}
			if seedStep != "" {
				cfg.Seed = &probe.WorkflowState{ActiveStep: seedStep}
			}
			steps = append(steps, scenario.Workflow(s.page, cfg)...)

			if waitStep != "" {
				updates, stop, err := s.page.WatchSessionStorage(ctx, probe.SessionKey)
				if err != nil {
					return browserErr(err)
				}
				defer stop()
				steps = append(steps, scenario.WaitForStepTransition(updates, waitStep))
			}

			return r.finish(s.runner.Run(ctx, "workflow", steps))
		},
	}
	cmd.Flags().StringVar(&briefText, "brief", defaultBriefText, "brief text typed into the workflow form")
	cmd.Flags().StringVar(&briefDir, "brief-dir", "", "also stage the brief as a file in this directory")
	cmd.Flags().StringVar(&seedStep, "seed-step", "", "stage the workflow at this step before the page loads")
	cmd.Flags().StringVar(&waitStep, "wait-step", "", "wait for the UI to transition to this step")
	return cmd
}

const defaultBriefText = "Launch campaign for the Aurora desk lamp: warm, minimal, " +
	"aimed at home-office workers who want better light without clutter."

func newErrorsCmd(r *rootCmd) *cobra.Command {
	var (
		routes []string
		settle time.Duration
	)
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "scan routes and collect console, network and page errors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := r.startSession(ctx, "errorscan")
			if err != nil {
				return err
			}
			defer s.close()

			steps := scenario.ErrorScan(s.page, scenario.ErrorScanConfig{
				BaseURL: r.cfg.BaseURL,
				Routes:  routes,
				Settle:  settle,
				Capture: s.capture,
			})
			return r.finish(s.runner.Run(ctx, "errorscan", steps))
		},
	}
	cmd.Flags().StringSliceVar(&routes, "routes", nil, "routes to visit (default: the standard set)")
	cmd.Flags().DurationVar(&settle, "settle", 2*time.Second, "linger on each page to catch late errors")
	return cmd
}
