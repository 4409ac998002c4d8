package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/copymill/webprobe/probe"
)

// DefaultRoutes are the pages the error scan visits when not told
// otherwise.
var DefaultRoutes = []string{"/", "/login", "/workflow", "/matrix", "/clients"}

// ErrorScanConfig parameterizes the error scan probe.
type ErrorScanConfig struct {
	BaseURL string
	// Routes overrides DefaultRoutes when non-empty.
	Routes []string
	// Settle is how long to stay on each page after load so late
	// console and network failures are observed. Zero means no linger.
	Settle  time.Duration
	Capture Capture
}

// ErrorScan returns a probe that visits each route in turn. The caller
// attaches a collector to the page; this scenario only drives the
// navigation. Every step uses the Continue policy: an unreachable
// route is a finding, and the scan moves on.
func ErrorScan(p Page, cfg ErrorScanConfig) []probe.Step {
	routes := cfg.Routes
	if len(routes) == 0 {
		routes = DefaultRoutes
	}

	steps := make([]probe.Step, 0, len(routes)+1)
	for _, route := range routes {
		route := route
		steps = append(steps, probe.Step{
			Name: "visit " + route,
			Run: func(ctx context.Context) error {
				if err := p.Navigate(ctx, cfg.BaseURL+route); err != nil {
					return err
				}
				if cfg.Settle > 0 {
					select {
					case <-time.After(cfg.Settle):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				return capture(ctx, cfg.Capture, "scan"+sanitizeRoute(route))
			},
		})
	}

	return steps
}

func sanitizeRoute(route string) string {
	if route == "/" {
		return "-home"
	}
	out := make([]rune, 0, len(route))
	for _, r := range route {
		if r == '/' {
			r = '-'
		}
		out = append(out, r)
	}
	return string(out)
}

// WaitForStepTransition returns a step that blocks until the
// application writes the wanted workflow step into session storage,
// consuming the given watch stream.
func WaitForStepTransition(updates <-chan string, step string) probe.Step {
	return probe.Step{
		Name: fmt.Sprintf("wait for %s step", step),
		Run: func(ctx context.Context) error {
			_, err := probe.WaitForStep(ctx, updates, step)
			return err
		},
	}
}
