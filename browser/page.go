package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto"
	cdpext "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/pkg/errors"

	"github.com/copymill/webprobe/cdp"
	"github.com/copymill/webprobe/log"
)

// How often WaitForSelector re-queries the DOM.
const selectorPollInterval = 100 * time.Millisecond

// ErrEvalException is returned when an evaluated expression throws.
var ErrEvalException = errors.New("evaluation threw an exception")

// Page is an attached page target. All operations are routed through
// the page's CDP session.
type Page struct {
	browser   *Browser
	targetID  target.ID
	sessionID target.SessionID
	logger    *log.Logger
}

// TargetID returns the page's CDP target ID.
func (p *Page) TargetID() string { return string(p.targetID) }

// execCtx returns a context that routes actions to this page's session.
func (p *Page) execCtx(ctx context.Context) context.Context {
	return cdpext.WithExecutor(cdp.WithSessionID(ctx, string(p.sessionID)), p.browser.client)
}

// Navigate loads the URL and blocks until the load event fires or ctx
// expires.
func (p *Page) Navigate(ctx context.Context, url string) error {
	sctx := p.execCtx(ctx)

	// Subscribe before navigating so a fast load cannot slip past us.
	loaded, unsub := p.browser.client.Subscribe(
		cdp.WithSessionID(ctx, string(p.sessionID)),
		cdproto.EventPageLoadEventFired,
	)
	defer unsub()

	_, _, errorText, _, err := cdppage.Navigate(url).Do(sctx)
	if err != nil {
		return fmt.Errorf("navigating to %q: %w", url, err)
	}
	if errorText != "" {
		return errors.Errorf("navigating to %q: %s", url, errorText)
	}

	select {
	case <-loaded:
		p.logger.Debugf("browser:page", "loaded %q", url)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %q to load: %w", url, ctx.Err())
	}
}

// Reload reloads the page and waits for the load event.
func (p *Page) Reload(ctx context.Context) error {
	loaded, unsub := p.browser.client.Subscribe(
		cdp.WithSessionID(ctx, string(p.sessionID)),
		cdproto.EventPageLoadEventFired,
	)
	defer unsub()

	if err := cdppage.Reload().Do(p.execCtx(ctx)); err != nil {
		return fmt.Errorf("reloading page: %w", err)
	}

	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for reload: %w", ctx.Err())
	}
}

// Evaluate runs the JS expression in the page and, when out is non-nil,
// unmarshals the JSON-serialized result into it.
func (p *Page) Evaluate(ctx context.Context, expr string, out any) error {
	obj, exc, err := cdpruntime.Evaluate(expr).
		WithReturnByValue(true).
		WithAwaitPromise(true).
		Do(p.execCtx(ctx))
	if err != nil {
		return fmt.Errorf("evaluating expression: %w", err)
	}
	if exc != nil {
		return errors.Wrap(ErrEvalException, exc.Error())
	}
	if out == nil || obj == nil || obj.Value == nil {
		return nil
	}
	if err := json.Unmarshal(obj.Value, out); err != nil {
		return fmt.Errorf("unmarshaling evaluation result: %w", err)
	}
	return nil
}

// WaitForSelector polls the DOM until the selector matches an element
// or ctx expires.
func (p *Page) WaitForSelector(ctx context.Context, selector string) error {
	expr := fmt.Sprintf("!!document.querySelector(%s)", strconv.Quote(selector))

	ticker := time.NewTicker(selectorPollInterval)
	defer ticker.Stop()

	for {
		var found bool
		if err := p.Evaluate(ctx, expr, &found); err != nil {
			return err
		}
		if found {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for selector %q", selector)
		}
	}
}

// Click dispatches a click on the first element matching the selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.click();
		return true;
	})()`, strconv.Quote(selector))

	var clicked bool
	if err := p.Evaluate(ctx, expr, &clicked); err != nil {
		return err
	}
	if !clicked {
		return errors.Errorf("click: no element matches %q", selector)
	}
	return nil
}

// Fill sets the value of the input matching the selector and fires the
// input and change events. The value is set through the prototype
// setter so framework-controlled inputs observe the change.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.focus();
		const proto = Object.getPrototypeOf(el);
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) {
			desc.set.call(el, %s);
		} else {
			el.value = %s;
		}
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, strconv.Quote(selector), strconv.Quote(value), strconv.Quote(value))

	var filled bool
	if err := p.Evaluate(ctx, expr, &filled); err != nil {
		return err
	}
	if !filled {
		return errors.Errorf("fill: no element matches %q", selector)
	}
	return nil
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	err := p.Evaluate(ctx, "document.title", &title)
	return title, err
}

// URL returns the page's current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	err := p.Evaluate(ctx, "window.location.href", &url)
	return url, err
}

// Content returns the serialized DOM of the page.
func (p *Page) Content(ctx context.Context) (string, error) {
	var html string
	err := p.Evaluate(ctx, "document.documentElement.outerHTML", &html)
	return html, err
}

// SetViewport overrides the device metrics of the page.
func (p *Page) SetViewport(ctx context.Context, width, height int64, mobile bool) error {
	err := emulation.SetDeviceMetricsOverride(width, height, 1.0, mobile).Do(p.execCtx(ctx))
	if err != nil {
		return fmt.Errorf("setting viewport to %dx%d: %w", width, height, err)
	}
	return nil
}

// Close detaches from and disposes the page target.
func (p *Page) Close(ctx context.Context) error {
	if err := target.CloseTarget(p.targetID).Do(p.browser.execCtx(ctx)); err != nil {
		return fmt.Errorf("closing page target: %w", err)
	}
	return nil
}
