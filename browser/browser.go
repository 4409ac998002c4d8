// Package browser exposes page-level operations on top of the CDP
// client: navigation, form filling, evaluation, screenshots, session
// storage staging and diagnostic event streams.
package browser

import (
	"context"
	"fmt"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	cdpext "github.com/chromedp/cdproto/cdp"
	cdpnetwork "github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"

	"github.com/copymill/webprobe/cdp"
	"github.com/copymill/webprobe/chromium"
	"github.com/copymill/webprobe/log"
)

// Browser couples a CDP client with the process it is connected to.
type Browser struct {
	ctx     context.Context
	client  *cdp.Client
	process *chromium.Process
	logger  *log.Logger
}

// Connect dials the CDP endpoint of the given browser process.
func Connect(ctx context.Context, process *chromium.Process, logger *log.Logger) (*Browser, error) {
	client := cdp.NewClient(ctx, logger)
	if err := client.Connect(process.WsURL()); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	b := &Browser{
		ctx:     ctx,
		client:  client,
		process: process,
		logger:  logger,
	}

	go func() {
		select {
		case <-client.Done():
			process.DidLoseConnection()
		case <-ctx.Done():
		}
	}()

	return b, nil
}

// Client returns the underlying CDP client.
func (b *Browser) Client() *cdp.Client { return b.client }

// Version reports the product and user agent strings of the connected
// browser.
func (b *Browser) Version(ctx context.Context) (product, userAgent string, err error) {
	_, product, _, userAgent, _, err = cdpbrowser.GetVersion().Do(b.execCtx(ctx))
	if err != nil {
		return "", "", fmt.Errorf("getting browser version: %w", err)
	}
	return product, userAgent, nil
}

// NewPage creates a blank page target, attaches to it and enables the
// CDP domains the probe layer relies on.
func (b *Browser) NewPage(ctx context.Context) (*Page, error) {
	targetID, err := target.CreateTarget("about:blank").Do(b.execCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating page target: %w", err)
	}

	sessionID, err := target.AttachToTarget(targetID).WithFlatten(true).Do(b.execCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("attaching to page target: %w", err)
	}

	p := &Page{
		browser:   b,
		targetID:  targetID,
		sessionID: sessionID,
		logger:    b.logger,
	}

	sctx := p.execCtx(ctx)
	if err := cdppage.Enable().Do(sctx); err != nil {
		return nil, fmt.Errorf("enabling Page domain: %w", err)
	}
	if err := cdpruntime.Enable().Do(sctx); err != nil {
		return nil, fmt.Errorf("enabling Runtime domain: %w", err)
	}
	if err := cdpnetwork.Enable().Do(sctx); err != nil {
		return nil, fmt.Errorf("enabling Network domain: %w", err)
	}

	b.logger.Debugf("browser", "new page target:%s session:%s", targetID, sessionID)

	return p, nil
}

// Close asks the browser to shut down cleanly and disconnects.
func (b *Browser) Close(ctx context.Context) error {
	b.process.GracefulClose()
	err := cdpbrowser.Close().Do(b.execCtx(ctx))
	b.client.Disconnect()
	if err != nil {
		return fmt.Errorf("closing browser: %w", err)
	}
	return nil
}

// execCtx returns a context that executes actions against the browser
// target.
func (b *Browser) execCtx(ctx context.Context) context.Context {
	return cdpext.WithExecutor(ctx, b.client)
}
