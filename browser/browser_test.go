package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copymill/webprobe/chromium"
	"github.com/copymill/webprobe/log"
)

// fakeBrowser serves the DevTools /json/version endpoint and a CDP
// websocket with canned per-method results, standing in for a real
// Chrome in page-level tests. Raw event frames written to events are
// pushed to the connected client.
type fakeBrowser struct {
	srv     *httptest.Server
	results map[string]string
	events  chan string
}

func newFakeBrowser(t *testing.T) *fakeBrowser {
	t.Helper()

	f := &fakeBrowser{
		results: map[string]string{
			"Target.createTarget":   `{"targetId":"TARGET-1"}`,
			"Target.attachToTarget": `{"sessionId":"SESSION-1"}`,
		},
		events: make(chan string, 8),
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/cdp"
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"webSocketDebuggerUrl":%q}`, wsURL)
	})
	mux.HandleFunc("/cdp", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		var writeMu sync.Mutex
		write := func(frame string) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return ws.WriteMessage(websocket.TextMessage, []byte(frame))
		}

		closed := make(chan struct{})
		defer close(closed)
		go func() {
			for {
				select {
				case frame := <-f.events:
					if write(frame) != nil {
						return
					}
				case <-closed:
					return
				}
			}
		}()

		for {
			_, buf, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID     int64  `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(buf, &req); err != nil {
				continue
			}
			result := f.results[req.Method]
			if result == "" {
				result = "{}"
			}
			if write(fmt.Sprintf(`{"id":%d,"result":%s}`, req.ID, result)) != nil {
				return
			}
		}
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeBrowser) hostPort(t *testing.T) (string, int) {
	t.Helper()

	u, err := url.Parse(f.srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func newTestPage(t *testing.T, f *fakeBrowser) (*Page, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	host, port := f.hostPort(t)
	proc, err := chromium.Attach(ctx, host, port, log.NewNull(ctx))
	require.NoError(t, err)

	b, err := Connect(ctx, proc, log.NewNull(ctx))
	require.NoError(t, err)
	t.Cleanup(b.client.Disconnect)

	p, err := b.NewPage(ctx)
	require.NoError(t, err)

	return p, ctx
}

func TestNewPageAttachesSession(t *testing.T) {
	t.Parallel()

	f := newFakeBrowser(t)
	p, _ := newTestPage(t, f)
	assert.Equal(t, "TARGET-1", p.TargetID())
	assert.Equal(t, "SESSION-1", string(p.sessionID))
}

func TestPageEvaluate(t *testing.T) {
	t.Parallel()

	f := newFakeBrowser(t)
	p, ctx := newTestPage(t, f)

	f.results["Runtime.evaluate"] = `{"result":{"type":"string","value":"Copymill — Login"}}`
	title, err := p.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Copymill — Login", title)
}

func TestPageEvaluateException(t *testing.T) {
	t.Parallel()

	f := newFakeBrowser(t)
	p, ctx := newTestPage(t, f)

	f.results["Runtime.evaluate"] = `{
		"result": {"type": "undefined"},
		"exceptionDetails": {
			"exceptionId": 1,
			"text": "Uncaught",
			"lineNumber": 1,
			"columnNumber": 1,
			"exception": {"type": "object", "description": "ReferenceError: nope"}
		}
	}`
	err := p.Evaluate(ctx, "nope()", nil)
	require.ErrorIs(t, err, ErrEvalException)
}

func TestPageSessionStorageGetAbsent(t *testing.T) {
	t.Parallel()

	f := newFakeBrowser(t)
	p, ctx := newTestPage(t, f)

	// sessionStorage.getItem returns null for a missing key.
	f.results["Runtime.evaluate"] = `{"result":{"type":"object","subtype":"null","value":null}}`
	v, err := p.SessionStorageGet(ctx, "copymill.workflow")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestBrowserCloseSequence(t *testing.T) {
	t.Parallel()

	f := newFakeBrowser(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	host, port := f.hostPort(t)
	proc, err := chromium.Attach(ctx, host, port, log.NewNull(ctx))
	require.NoError(t, err)

	b, err := Connect(ctx, proc, log.NewNull(ctx))
	require.NoError(t, err)

	require.NoError(t, b.Close(ctx))

	// Callers may close the process again after the browser; the repeat
	// must be harmless and Wait must return.
	proc.GracefulClose()

	done := make(chan struct{})
	go func() {
		proc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait blocked after browser close")
	}
}

func TestPageNavigateWaitsForLoad(t *testing.T) {
	t.Parallel()

	f := newFakeBrowser(t)
	p, ctx := newTestPage(t, f)

	f.results["Page.navigate"] = `{"frameId":"FRAME-1","loaderId":"LOADER-1"}`

	go func() {
		time.Sleep(100 * time.Millisecond)
		f.events <- `{"method":"Page.loadEventFired","params":{"timestamp":1},"sessionId":"SESSION-1"}`
	}()

	require.NoError(t, p.Navigate(ctx, "https://app.copymill.test/login"))
}

func TestWatchSessionStorageDeliversWrites(t *testing.T) {
	t.Parallel()

	f := newFakeBrowser(t)
	p, ctx := newTestPage(t, f)

	updates, stop, err := p.WatchSessionStorage(ctx, "copymill.workflow")
	require.NoError(t, err)
	defer stop()

	f.events <- `{"method":"Runtime.bindingCalled","params":{` +
		`"name":"__webprobeStateChanged",` +
		`"payload":"{\"activeStep\":\"motivations\"}",` +
		`"executionContextId":1},"sessionId":"SESSION-1"}`
	// A call on some other binding must not surface.
	f.events <- `{"method":"Runtime.bindingCalled","params":{` +
		`"name":"other","payload":"nope","executionContextId":1},"sessionId":"SESSION-1"}`
	f.events <- `{"method":"Runtime.bindingCalled","params":{` +
		`"name":"__webprobeStateChanged",` +
		`"payload":"{\"activeStep\":\"copy\"}",` +
		`"executionContextId":1},"sessionId":"SESSION-1"}`

	want := []string{`{"activeStep":"motivations"}`, `{"activeStep":"copy"}`}
	for _, expected := range want {
		select {
		case got := <-updates:
			assert.Equal(t, expected, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", expected)
		}
	}
}

func TestPageDocument(t *testing.T) {
	t.Parallel()

	f := newFakeBrowser(t)
	p, ctx := newTestPage(t, f)

	html := `<html><body><h1 class=\"step-title\">Brief</h1></body></html>`
	f.results["Runtime.evaluate"] = `{"result":{"type":"string","value":"` + html + `"}}`

	exists, err := p.ElementExists(ctx, "h1.step-title")
	require.NoError(t, err)
	assert.True(t, exists)

	text, err := p.ElementText(ctx, "h1.step-title")
	require.NoError(t, err)
	assert.Equal(t, "Brief", text)
}
