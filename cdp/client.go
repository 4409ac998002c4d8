// Package cdp implements a minimal Chrome DevTools Protocol client used
// by the probe toolkit to drive a browser over a websocket.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	cdpext "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	jsonv2 "github.com/go-json-experiment/json"

	"github.com/copymill/webprobe/log"
)

// ErrConnectionClosed is returned for commands issued after the CDP
// connection has gone away.
var ErrConnectionClosed = errors.New("CDP connection closed")

var _ cdpext.Executor = &Client{}

// Client manages CDP communication with the browser. It implements
// cdp.Executor, so cdproto actions can be run against it directly:
//
//	action.Do(cdp.WithExecutor(ctx, client))
//
// Commands are routed to a page or frame target by carrying a session
// ID in the context (see WithSessionID).
type Client struct {
	ctx    context.Context
	logger *log.Logger

	conn    *connection
	msgID   int64
	sendCh  chan *cdproto.Message
	errorCh chan error
	done    chan struct{}
	closed  atomic.Bool

	msgSubsMu sync.Mutex
	msgSubs   map[int64]chan *cdproto.Message

	watcher *eventWatcher
	wsURL   string
}

// NewClient returns a Client that is unusable until a CDP connection is
// established with Connect.
func NewClient(ctx context.Context, logger *log.Logger) *Client {
	return &Client{
		ctx:     ctx,
		logger:  logger,
		sendCh:  make(chan *cdproto.Message, 32), // buffered to avoid blocking in Execute
		errorCh: make(chan error, 1),
		done:    make(chan struct{}),
		msgSubs: make(map[int64]chan *cdproto.Message),
		watcher: newEventWatcher(ctx),
	}
}

// Connect to the browser that exposes a CDP API at wsURL.
func (c *Client) Connect(wsURL string) (err error) {
	if c.wsURL != "" {
		return fmt.Errorf("CDP connection already established to %q", c.wsURL)
	}

	if c.conn, err = newConnection(c.ctx, wsURL, c.logger); err != nil {
		return err
	}
	c.logger.Infof("cdp", "established CDP connection to %q", wsURL)
	c.wsURL = wsURL

	go c.recvLoop()
	go c.sendLoop()

	return nil
}

// Disconnect closes the CDP connection. Pending Execute calls are
// woken with ErrConnectionClosed.
func (c *Client) Disconnect() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)
	if c.conn != nil {
		_ = c.conn.Close()
	}

	c.msgSubsMu.Lock()
	for id, ch := range c.msgSubs {
		close(ch)
		delete(c.msgSubs, id)
	}
	c.msgSubsMu.Unlock()
}

// Done is closed when the connection has gone away, whether by
// Disconnect or by the browser side hanging up.
func (c *Client) Done() <-chan struct{} { return c.done }

// WsURL returns the websocket URL the client is connected to.
func (c *Client) WsURL() string { return c.wsURL }

// Execute implements cdp.Executor: it sends a CDP command and blocks
// for the matching response.
func (c *Client) Execute(ctx context.Context, method string, params, res any) error {
	c.logger.Debugf("cdp:execute", "wsURL:%q method:%q", c.wsURL, method)
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	id := atomic.AddInt64(&c.msgID, 1)

	recvCh := make(chan *cdproto.Message, 1)
	c.msgSubsMu.Lock()
	c.msgSubs[id] = recvCh
	c.msgSubsMu.Unlock()
	defer func() {
		c.msgSubsMu.Lock()
		delete(c.msgSubs, id)
		c.msgSubsMu.Unlock()
	}()

	msg, err := c.newMessage(ctx, id, method, params)
	if err != nil {
		return err
	}
	return c.send(ctx, msg, recvCh, res)
}

// ExecuteWithoutExpectationOnReply sends a CDP command without waiting
// for its response.
func (c *Client) ExecuteWithoutExpectationOnReply(ctx context.Context, method string, params, res any) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	// Closing a target bypasses the response bookkeeping entirely;
	// callers should cancel the target's context instead.
	if method == target.CommandCloseTarget {
		return errors.New("to close the target, cancel its context")
	}

	msg, err := c.newMessage(ctx, atomic.AddInt64(&c.msgID, 1), method, params)
	if err != nil {
		return err
	}
	return c.send(ctx, msg, nil, res)
}

// Subscribe returns a channel notified when any of the given CDP events
// arrive for the session carried by ctx, plus a cancel func that
// unsubscribes and closes the channel.
func (c *Client) Subscribe(ctx context.Context, events ...cdproto.MethodType) (<-chan *Event, func()) {
	return c.watcher.subscribe(GetSessionID(ctx), events...)
}

func (c *Client) newMessage(ctx context.Context, id int64, method string, params any) (*cdproto.Message, error) {
	var buf []byte
	if params != nil {
		var err error
		if buf, err = jsonv2.Marshal(params); err != nil {
			return nil, fmt.Errorf("marshaling %q params: %w", method, err)
		}
	}
	msg := &cdproto.Message{
		ID:     id,
		Method: cdproto.MethodType(method),
		Params: buf,
	}
	// Without a session ID the message addresses the browser target;
	// with one it is routed to the matching page or frame target.
	if sid := GetSessionID(ctx); sid != "" {
		msg.SessionID = target.SessionID(sid)
	}
	return msg, nil
}

func (c *Client) send(ctx context.Context, msg *cdproto.Message, recvCh chan *cdproto.Message, res any) error {
	select {
	case c.sendCh <- msg:
	case err := <-c.errorCh:
		var wsErr wsIOError
		if errors.As(err, &wsErr) {
			return c.conn.handleIOError(wsErr.Unwrap())
		}
		return err
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	if recvCh == nil {
		return nil
	}

	select {
	case msg, ok := <-recvCh:
		switch {
		case !ok || msg == nil:
			return ErrConnectionClosed
		case msg.Error != nil:
			return fmt.Errorf("%s: %w", msg.Method, msg.Error)
		case res != nil:
			return jsonv2.Unmarshal(msg.Result, res)
		}
	case err := <-c.errorCh:
		var wsErr wsIOError
		if errors.As(err, &wsErr) {
			return c.conn.handleIOError(wsErr.Unwrap())
		}
		return err
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	return nil
}

func (c *Client) recvLoop() {
	defer c.Disconnect()

	for {
		msg, err := c.conn.readMessage()
		if err != nil {
			if c.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			var wsErr wsIOError
			if errors.As(err, &wsErr) {
				if ioErr := c.conn.handleIOError(wsErr.Unwrap()); ioErr != nil {
					c.logger.Errorf("cdp", "reading CDP message from %q: %v", c.wsURL, ioErr)
				}
				return
			}
			c.logger.Errorf("cdp", "reading CDP message from %q: %v", c.wsURL, err)
			continue
		}

		switch {
		case msg.Method != "":
			evt, err := cdproto.UnmarshalMessage(msg)
			if err != nil {
				c.logger.Debugf("cdp", "unmarshaling CDP event %q: %v", msg.Method, err)
				continue
			}
			c.watcher.notify(&Event{
				Name:      msg.Method,
				Data:      evt,
				sessionID: msg.SessionID,
			})
		case msg.ID > 0:
			c.msgSubsMu.Lock()
			ch, ok := c.msgSubs[msg.ID]
			if ok {
				delete(c.msgSubs, msg.ID)
			}
			c.msgSubsMu.Unlock()
			if !ok {
				// Response to a fire-and-forget command.
				continue
			}
			select {
			case ch <- msg:
			case <-c.ctx.Done():
				return
			}
		default:
			c.logger.Warnf("cdp", "ignoring malformed incoming CDP message (missing id or method): %#v", msg)
		}
	}
}

func (c *Client) sendLoop() {
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.conn.writeMessage(msg); err != nil {
				select {
				case c.errorCh <- err:
				case <-c.done:
					return
				case <-c.ctx.Done():
					return
				}
			}
		case <-c.done:
			return
		case <-c.ctx.Done():
			_ = c.conn.Close()
			return
		}
	}
}
