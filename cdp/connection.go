package cdp

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	jsonv2 "github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"

	"github.com/copymill/webprobe/log"
)

// Large read/write buffers: screenshot payloads arrive base64-encoded
// in single frames.
const wsBufferSize = 1 << 20

// wsIOError wraps a low-level websocket error so callers can map it to
// a connection-closed condition.
type wsIOError struct{ err error }

func (e wsIOError) Error() string { return fmt.Sprintf("websocket IO: %v", e.err) }
func (e wsIOError) Unwrap() error { return e.err }

type connection struct {
	ws     *websocket.Conn
	wsURL  string
	logger *log.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newConnection(ctx context.Context, wsURL string, logger *log.Logger) (*connection, error) {
	wd := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   wsBufferSize,
		WriteBufferSize:  wsBufferSize,
		Proxy:            http.ProxyFromEnvironment,
	}
	ws, _, err := wd.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dialing CDP websocket %q: %w", wsURL, err)
	}
	return &connection{
		ws:     ws,
		wsURL:  wsURL,
		logger: logger,
	}, nil
}

func (c *connection) readMessage() (*cdproto.Message, error) {
	_, buf, err := c.ws.ReadMessage()
	if err != nil {
		return nil, wsIOError{err}
	}
	var msg cdproto.Message
	if err := jsonv2.Unmarshal(buf, &msg); err != nil {
		return nil, fmt.Errorf("unmarshaling CDP message: %w", err)
	}
	return &msg, nil
}

func (c *connection) writeMessage(msg *cdproto.Message) error {
	buf, err := jsonv2.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling CDP message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return wsIOError{err}
	}
	if _, err := w.Write(buf); err != nil {
		return wsIOError{err}
	}
	if err := w.Close(); err != nil {
		return wsIOError{err}
	}
	return nil
}

// handleIOError normalizes websocket teardown errors. Expected close
// codes are not errors from the caller's point of view.
func (c *connection) handleIOError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Debugf("cdp:connection", "wsURL:%q closed: %v", c.wsURL, err)
		return nil
	}
	return err
}

func (c *connection) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
