package browser

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chromedp/cdproto"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"

	"github.com/copymill/webprobe/cdp"
)

// Name of the binding the storage watcher injects into the page.
const stateBindingName = "__webprobeStateChanged"

// SessionStorageGet returns the raw value stored under key, or "" when
// the key is absent.
func (p *Page) SessionStorageGet(ctx context.Context, key string) (string, error) {
	expr := fmt.Sprintf("sessionStorage.getItem(%s)", strconv.Quote(key))
	var value *string
	if err := p.Evaluate(ctx, expr, &value); err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

// SessionStorageSet stores value under key.
func (p *Page) SessionStorageSet(ctx context.Context, key, value string) error {
	expr := fmt.Sprintf("sessionStorage.setItem(%s, %s)",
		strconv.Quote(key), strconv.Quote(value))
	return p.Evaluate(ctx, expr, nil)
}

// SessionStorageRemove deletes key from session storage.
func (p *Page) SessionStorageRemove(ctx context.Context, key string) error {
	expr := fmt.Sprintf("sessionStorage.removeItem(%s)", strconv.Quote(key))
	return p.Evaluate(ctx, expr, nil)
}

// WatchSessionStorage streams every value written to the given session
// storage key. It works by wrapping sessionStorage.setItem with a hook
// that forwards writes through a CDP binding, so changes arrive as
// events rather than being polled for. The hook is installed on the
// current document and re-installed on every navigation.
func (p *Page) WatchSessionStorage(ctx context.Context, key string) (<-chan string, func(), error) {
	sctx := p.execCtx(ctx)

	if err := cdpruntime.AddBinding(stateBindingName).Do(sctx); err != nil {
		return nil, nil, fmt.Errorf("adding storage binding: %w", err)
	}

	hook := fmt.Sprintf(`(() => {
		const orig = sessionStorage.setItem.bind(sessionStorage);
		sessionStorage.setItem = (k, v) => {
			orig(k, v);
			if (k === %s && typeof window.%s === 'function') {
				window.%s(String(v));
			}
		};
	})()`, strconv.Quote(key), stateBindingName, stateBindingName)

	if _, err := cdppage.AddScriptToEvaluateOnNewDocument(hook).Do(sctx); err != nil {
		return nil, nil, fmt.Errorf("installing storage hook: %w", err)
	}
	if err := p.Evaluate(ctx, hook, nil); err != nil {
		return nil, nil, fmt.Errorf("installing storage hook on current document: %w", err)
	}

	events, unsub := p.browser.client.Subscribe(
		cdp.WithSessionID(ctx, string(p.sessionID)),
		cdproto.EventRuntimeBindingCalled,
	)

	out := make(chan string, 16)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return
				}
				call, ok := evt.Data.(*cdpruntime.EventBindingCalled)
				if !ok || call.Name != stateBindingName {
					continue
				}
				select {
				case out <- call.Payload:
				default:
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		unsub()
		close(done)
	}

	return out, cancel, nil
}
