package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/copymill/webprobe/browser"
	"github.com/copymill/webprobe/chromium"
	"github.com/copymill/webprobe/config"
	"github.com/copymill/webprobe/log"
	"github.com/copymill/webprobe/probe"
	"github.com/copymill/webprobe/scenario"
	"github.com/copymill/webprobe/storage"
)

// rootCmd holds the resolved configuration and the exit code the
// subcommands settle on.
type rootCmd struct {
	cmd *cobra.Command
	cfg *config.Config

	// Flag values; empty/zero means "keep the environment's value".
	flagBaseURL   string
	flagCreds     string
	flagHeadless  bool
	flagViewport  string
	flagShotDir   string
	flagOutput    string
	flagVerbose   bool
	flagAttach    int
	flagNoCapture bool

	exit int
}

func newRootCmd() *rootCmd {
	r := &rootCmd{}
	r.cmd = &cobra.Command{
		Use:           "webprobe",
		Short:         "probe a deployed Copymill instance for UI and API defects",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return r.setup(cmd)
		},
	}

	pf := r.cmd.PersistentFlags()
	pf.StringVar(&r.flagBaseURL, "base-url", "", "base URL of the target application")
	pf.StringVar(&r.flagCreds, "creds", "", "path to a JSON credentials file")
	pf.BoolVar(&r.flagHeadless, "headless", true, "run the browser headless")
	pf.StringVar(&r.flagViewport, "viewport", "", "viewport preset: desktop, tablet or mobile")
	pf.StringVar(&r.flagShotDir, "screenshot-dir", "", "directory for screenshot artifacts")
	pf.StringVarP(&r.flagOutput, "output", "o", "text", "report format: text or json")
	pf.BoolVarP(&r.flagVerbose, "verbose", "v", false, "debug logging")
	pf.IntVar(&r.flagAttach, "attach-port", 0, "attach to a running browser's DevTools port instead of launching")
	pf.BoolVar(&r.flagNoCapture, "no-screenshots", false, "disable screenshot capture")

	r.cmd.AddCommand(
		newLoginCmd(r),
		newSignupCmd(r),
		newWorkflowCmd(r),
		newErrorsCmd(r),
		newAPICmd(r),
		newHealthCmd(r),
	)

	return r
}

// setup resolves configuration for every subcommand: environment first,
// explicit flags on top.
func (r *rootCmd) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return configErr(err)
	}

	if r.flagBaseURL != "" {
		cfg.BaseURL = r.flagBaseURL
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = r.flagHeadless
	}
	if r.flagViewport != "" {
		cfg.Viewport = r.flagViewport
	}
	if r.flagShotDir != "" {
		cfg.ScreenshotDir = r.flagShotDir
	}
	if r.flagAttach > 0 {
		cfg.AttachPort = r.flagAttach
	}
	if r.flagCreds != "" {
		if err := cfg.LoadCredentials(r.flagCreds); err != nil {
			return configErr(err)
		}
	}
	if r.flagVerbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return configErr(err)
	}
	if r.flagOutput != "text" && r.flagOutput != "json" {
		return configErr(fmt.Errorf("unknown output format %q", r.flagOutput))
	}

	r.cfg = cfg
	return nil
}

func (r *rootCmd) logger(ctx context.Context) *log.Logger {
	l := log.New(ctx, logrus.New(), r.flagVerbose, nil)
	if err := l.SetLevel(r.cfg.LogLevel); err != nil {
		_ = l.SetLevel("info")
	}
	return l
}

// session is everything a browser-driven subcommand needs.
type session struct {
	browser   *browser.Browser
	page      *browser.Page
	collector *probe.Collector
	runner    *probe.Runner
	capture   scenario.Capture
	close     func()
}

// startSession launches (or attaches to) a browser, opens a page at the
// configured viewport and wires the error collector to it. pageName
// labels the collector's records.
func (r *rootCmd) startSession(ctx context.Context, pageName string) (*session, error) {
	logger := r.logger(ctx)

	var (
		proc *chromium.Process
		err  error
	)
	if r.cfg.AttachPort > 0 {
		proc, err = chromium.Attach(ctx, r.cfg.AttachHost, r.cfg.AttachPort, logger)
	} else {
		proc, err = chromium.Launch(ctx, chromium.Options{
			ExecutablePath: r.cfg.ChromePath,
			Headless:       r.cfg.Headless,
		}, logger)
	}
	if err != nil {
		return nil, browserErr(err)
	}

	b, err := browser.Connect(ctx, proc, logger)
	if err != nil {
		proc.Terminate()
		return nil, browserErr(err)
	}

	page, err := b.NewPage(ctx)
	if err != nil {
		_ = b.Close(ctx)
		proc.Terminate()
		return nil, browserErr(err)
	}

	vp := scenario.ViewportByName(r.cfg.Viewport)
	if err := page.SetViewport(ctx, vp.Width, vp.Height, vp.Mobile); err != nil {
		logger.Warnf("cli", "setting %s viewport: %v", vp.Name, err)
	}

	collector := probe.NewCollector()
	detach := collector.Attach(ctx, page, pageName)

	s := &session{
		browser:   b,
		page:      page,
		collector: collector,
		runner:    probe.NewRunner(logger, collector, r.cfg.SlowStep),
		// Browser.Close already initiates the process's graceful close.
		close: func() {
			detach()
			if err := b.Close(ctx); err != nil {
				logger.Warnf("cli", "closing browser: %v", err)
			}
			proc.Wait()
		},
	}
	if !r.flagNoCapture {
		shot := browser.NewScreenshotter(storage.NewLocalFilePersister())
		dir := r.cfg.ScreenshotDir
		s.capture = func(ctx context.Context, name string) error {
			_, err := shot.Screenshot(ctx, page, browser.ScreenshotOptions{
				Path:     filepath.Join(dir, name+".png"),
				FullPage: true,
			})
			return err
		}
	}

	return s, nil
}

// finish prints the report and records the exit code for main.
func (r *rootCmd) finish(report *probe.RunReport) error {
	if err := printReport(r.cmd.OutOrStdout(), r.flagOutput, report); err != nil {
		return err
	}
	if !report.OK || report.Summary.Total > 0 {
		r.exit = exitFindings
	}
	return nil
}

func (r *rootCmd) requireCreds() error {
	if r.cfg.Email == "" || r.cfg.Password == "" {
		return configErr(fmt.Errorf("credentials required: set WEBPROBE_EMAIL/WEBPROBE_PASSWORD or pass --creds"))
	}
	return nil
}
