// Package scenario holds the canned probe scripts: each scenario is a
// sequence of named steps for the probe runner, driving the target
// application's UI through a page.
package scenario

import "context"

// Page is the slice of page behavior scenarios drive. *browser.Page
// satisfies it; tests use a fake.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	WaitForSelector(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	ElementText(ctx context.Context, selector string) (string, error)
	URL(ctx context.Context) (string, error)
	SessionStorageGet(ctx context.Context, key string) (string, error)
	SessionStorageSet(ctx context.Context, key, value string) error
}

// Capture persists a screenshot under the given artifact name. A nil
// Capture disables screenshots for the scenario.
type Capture func(ctx context.Context, name string) error

// Viewport is a device preset applied before a scenario runs.
type Viewport struct {
	Name   string
	Width  int64
	Height int64
	Mobile bool
}

// Standard viewport presets mirroring the sizes the manual scripts
// probed with.
var (
	ViewportDesktop = Viewport{Name: "desktop", Width: 1440, Height: 900}
	ViewportTablet  = Viewport{Name: "tablet", Width: 820, Height: 1180, Mobile: true}
	ViewportMobile  = Viewport{Name: "mobile", Width: 390, Height: 844, Mobile: true}
)

// ViewportByName resolves a preset by name, defaulting to desktop.
func ViewportByName(name string) Viewport {
	switch name {
	case ViewportTablet.Name:
		return ViewportTablet
	case ViewportMobile.Name:
		return ViewportMobile
	default:
		return ViewportDesktop
	}
}

func capture(ctx context.Context, c Capture, name string) error {
	if c == nil {
		return nil
	}
	return c(ctx, name)
}
