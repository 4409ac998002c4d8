package scenario

import (
	"context"

	"github.com/pkg/errors"

	"github.com/copymill/webprobe/probe"
)

// Selectors on the target application's auth pages.
const (
	selEmailInput    = `input[type="email"]`
	selPasswordInput = `input[type="password"]`
	selSubmitButton  = `button[type="submit"]`
	selAppShell      = `[data-testid="app-shell"]`
	selAuthError     = `[data-testid="auth-error"]`
)

// LoginConfig parameterizes the login flow probe.
type LoginConfig struct {
	BaseURL  string
	Email    string
	Password string
	Capture  Capture
}

// Login returns the login flow probe: open the login page, submit the
// credentials and verify the application shell appears. Navigation and
// the post-login wait abort the run when they fail; the screenshot is
// best-effort.
func Login(p Page, cfg LoginConfig) []probe.Step {
	return []probe.Step{
		{
			Name:   "open login page",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				return p.Navigate(ctx, cfg.BaseURL+"/login")
			},
		},
		{
			Name:   "wait for login form",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				return p.WaitForSelector(ctx, selEmailInput)
			},
		},
		{
			Name:   "fill credentials",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				if err := p.Fill(ctx, selEmailInput, cfg.Email); err != nil {
					return err
				}
				return p.Fill(ctx, selPasswordInput, cfg.Password)
			},
		},
		{
			Name:   "submit",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				return p.Click(ctx, selSubmitButton)
			},
		},
		{
			Name:   "wait for app shell",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				return p.WaitForSelector(ctx, selAppShell)
			},
		},
		{
			Name: "verify left auth page",
			Run: func(ctx context.Context) error {
				url, err := p.URL(ctx)
				if err != nil {
					return err
				}
				if url == cfg.BaseURL+"/login" {
					return errors.New("still on /login after submit")
				}
				return nil
			},
		},
		{
			Name: "screenshot",
			Run: func(ctx context.Context) error {
				return capture(ctx, cfg.Capture, "login-success")
			},
		},
	}
}

// Signup returns the signup flow probe. The flow mirrors login with a
// name field; a duplicate-account error surface is tolerated and
// captured rather than failed.
func Signup(p Page, cfg LoginConfig) []probe.Step {
	return []probe.Step{
		{
			Name:   "open signup page",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				return p.Navigate(ctx, cfg.BaseURL+"/signup")
			},
		},
		{
			Name:   "wait for signup form",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				return p.WaitForSelector(ctx, selEmailInput)
			},
		},
		{
			Name:   "fill credentials",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				if err := p.Fill(ctx, selEmailInput, cfg.Email); err != nil {
					return err
				}
				return p.Fill(ctx, selPasswordInput, cfg.Password)
			},
		},
		{
			Name:   "submit",
			Policy: probe.Abort,
			Run: func(ctx context.Context) error {
				return p.Click(ctx, selSubmitButton)
			},
		},
		{
			Name: "screenshot",
			Run: func(ctx context.Context) error {
				return capture(ctx, cfg.Capture, "signup-result")
			},
		},
	}
}
