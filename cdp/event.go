package cdp

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
)

// Event is a CDP event received from the browser, decoded into the
// cdproto event type named by Name.
type Event struct {
	Name      cdproto.MethodType
	Data      any
	sessionID target.SessionID
}

// SessionID returns the session the event was raised on, or "" for
// browser-target events.
func (e *Event) SessionID() string { return string(e.sessionID) }

type subscriber struct {
	sessionID string
	ch        chan *Event
}

// eventWatcher fans incoming CDP events out to subscribers, keyed by
// event name and filtered by session ID.
type eventWatcher struct {
	ctx    context.Context
	subsMu sync.RWMutex
	subs   map[cdproto.MethodType][]*subscriber
}

func newEventWatcher(ctx context.Context) *eventWatcher {
	return &eventWatcher{
		ctx:  ctx,
		subs: make(map[cdproto.MethodType][]*subscriber),
	}
}

// subscribe registers interest in the given events for the session.
// An empty sessionID subscribes to browser-target events only. The
// returned cancel func unsubscribes and closes the channel.
func (w *eventWatcher) subscribe(sessionID string, events ...cdproto.MethodType) (<-chan *Event, func()) {
	sub := &subscriber{
		sessionID: sessionID,
		// Buffered: the recv loop must never block on a slow consumer.
		ch: make(chan *Event, 64),
	}

	w.subsMu.Lock()
	for _, evt := range events {
		w.subs[evt] = append(w.subs[evt], sub)
	}
	w.subsMu.Unlock()

	cancel := func() {
		w.subsMu.Lock()
		for _, evt := range events {
			subs := w.subs[evt]
			for i, s := range subs {
				if s == sub {
					w.subs[evt] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		}
		w.subsMu.Unlock()
		close(sub.ch)
	}

	return sub.ch, cancel
}

func (w *eventWatcher) notify(evt *Event) {
	w.subsMu.RLock()
	defer w.subsMu.RUnlock()

	for _, sub := range w.subs[evt.Name] {
		if sub.sessionID != string(evt.sessionID) {
			continue
		}
		select {
		case sub.ch <- evt:
		case <-w.ctx.Done():
			return
		default:
			// Drop rather than stall the recv loop. Probes tolerate
			// missing an event; they cannot tolerate a wedged client.
		}
	}
}
