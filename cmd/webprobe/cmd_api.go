package main

import (
	"github.com/spf13/cobra"

	"github.com/copymill/webprobe/apiprobe"
)

func newAPICmd(r *rootCmd) *cobra.Command {
	var renderURL string
	cmd := &cobra.Command{
		Use:   "api",
		Short: "sweep the HTTP API endpoints without a browser",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			prober := apiprobe.New(r.cfg.BaseURL, r.cfg.Timeout, r.logger(ctx))

			// Login is best-effort: authed checks still run and report
			// their rejections as findings.
			if r.cfg.Email != "" {
				if err := prober.Login(ctx, r.cfg.Email, r.cfg.Password); err != nil {
					r.logger(ctx).Warnf("cli", "api login: %v", err)
				}
			}

			checks := apiprobe.DefaultChecks(r.cfg.Email, r.cfg.Password)
			if renderURL != "" {
				checks = append(checks, apiprobe.RenderCheck(renderURL))
			}
			results := prober.Run(ctx, checks)
			if err := printAPIResults(cmd.OutOrStdout(), r.flagOutput, results); err != nil {
				return err
			}
			for _, res := range results {
				if !res.OK {
					r.exit = exitFindings
					break
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&renderURL, "render-url", "", "also probe this external rendering service URL")
	return cmd
}

func newHealthCmd(r *rootCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "check the target's health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			prober := apiprobe.New(r.cfg.BaseURL, r.cfg.Timeout, r.logger(ctx))
			if err := prober.Health(ctx); err != nil {
				printHealth(cmd.OutOrStdout(), r.flagOutput, r.cfg.BaseURL, err)
				r.exit = exitFindings
				return nil
			}
			printHealth(cmd.OutOrStdout(), r.flagOutput, r.cfg.BaseURL, nil)
			return nil
		},
	}
}
