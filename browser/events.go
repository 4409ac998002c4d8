package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto"
	cdpnetwork "github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"

	"github.com/copymill/webprobe/cdp"
)

// ConsoleMessage is a console API call observed on the page.
type ConsoleMessage struct {
	Type string // "log", "warning", "error", ...
	Text string
}

// PageError is an uncaught exception observed on the page.
type PageError struct {
	Message string
	Stack   string
}

// ResponseInfo describes a network response observed on the page.
type ResponseInfo struct {
	URL        string
	Status     int64
	StatusText string
}

// ConsoleMessages streams console API calls from the page. The cancel
// func stops the stream and closes the channel.
func (p *Page) ConsoleMessages(ctx context.Context) (<-chan ConsoleMessage, func()) {
	events, unsub := p.browser.client.Subscribe(
		cdp.WithSessionID(ctx, string(p.sessionID)),
		cdproto.EventRuntimeConsoleAPICalled,
	)

	out := make(chan ConsoleMessage, 64)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return
				}
				call, ok := evt.Data.(*cdpruntime.EventConsoleAPICalled)
				if !ok {
					continue
				}
				select {
				case out <- ConsoleMessage{Type: string(call.Type), Text: consoleText(call)}:
				default:
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() {
		unsub()
		close(done)
	}
}

// Exceptions streams uncaught exceptions from the page.
func (p *Page) Exceptions(ctx context.Context) (<-chan PageError, func()) {
	events, unsub := p.browser.client.Subscribe(
		cdp.WithSessionID(ctx, string(p.sessionID)),
		cdproto.EventRuntimeExceptionThrown,
	)

	out := make(chan PageError, 64)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return
				}
				thrown, ok := evt.Data.(*cdpruntime.EventExceptionThrown)
				if !ok || thrown.ExceptionDetails == nil {
					continue
				}
				select {
				case out <- pageError(thrown.ExceptionDetails):
				default:
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() {
		unsub()
		close(done)
	}
}

// Responses streams network responses received by the page.
func (p *Page) Responses(ctx context.Context) (<-chan ResponseInfo, func()) {
	events, unsub := p.browser.client.Subscribe(
		cdp.WithSessionID(ctx, string(p.sessionID)),
		cdproto.EventNetworkResponseReceived,
	)

	out := make(chan ResponseInfo, 64)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return
				}
				recv, ok := evt.Data.(*cdpnetwork.EventResponseReceived)
				if !ok || recv.Response == nil {
					continue
				}
				select {
				case out <- ResponseInfo{
					URL:        recv.Response.URL,
					Status:     recv.Response.Status,
					StatusText: recv.Response.StatusText,
				}:
				default:
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() {
		unsub()
		close(done)
	}
}

func consoleText(call *cdpruntime.EventConsoleAPICalled) string {
	parts := make([]string, 0, len(call.Args))
	for _, arg := range call.Args {
		if arg == nil {
			continue
		}
		switch {
		case arg.Value != nil:
			parts = append(parts, strings.Trim(string(arg.Value), `"`))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		}
	}
	return strings.Join(parts, " ")
}

func pageError(details *cdpruntime.ExceptionDetails) PageError {
	pe := PageError{Message: details.Text}
	if details.Exception != nil && details.Exception.Description != "" {
		pe.Message = details.Exception.Description
	}
	if details.StackTrace != nil {
		frames := make([]string, 0, len(details.StackTrace.CallFrames))
		for _, f := range details.StackTrace.CallFrames {
			frames = append(frames, fmt.Sprintf("%s at %s:%d", f.FunctionName, f.URL, f.LineNumber))
		}
		pe.Stack = strings.Join(frames, "\n")
	}
	return pe
}
