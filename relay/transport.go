// Package relay owns the connections to remote Nostr relay endpoints: the
// NIP-01 websocket transport and the pool that keeps a healthy subset of
// endpoints connected.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zapabug/madtrips-sub000/errors"
	"github.com/zapabug/madtrips-sub000/nostr"
)

// Conn abstracts one relay session for testability. The real implementation
// wraps gorilla/websocket; tests use in-memory fakes.
type Conn interface {
	// URL returns the endpoint this session is connected to.
	URL() string
	// Query issues a subscription and collects matching stored events until
	// the relay signals end-of-stored-events or the context expires.
	Query(ctx context.Context, filters []nostr.Filter) ([]*nostr.Event, error)
	// Publish sends an event and waits for the relay's acceptance reply.
	Publish(ctx context.Context, ev *nostr.Event) error
	// Ping verifies the session is still alive.
	Ping(ctx context.Context) error
	// Close tears the session down. Safe to call more than once.
	Close() error
}

// Dialer establishes a session to one endpoint. The pool takes it as a
// dependency so tests can substitute fakes.
type Dialer func(ctx context.Context, url string, logger *zap.SugaredLogger) (Conn, error)

const (
	writeWait = 10 * time.Second

	// A single relay answering a contact-list query for 25 seeds should
	// stay well under this; anything bigger is a misbehaving relay.
	maxQueryEvents = 2000
)

// wsConn is the gorilla/websocket NIP-01 session.
type wsConn struct {
	url    string
	conn   *websocket.Conn
	logger *zap.SugaredLogger

	writeMu sync.Mutex // gorilla allows one concurrent writer

	subMu sync.Mutex
	subs  map[string]chan inbound // subscription id -> dispatch channel
	oks   map[string]chan okReply // event id -> publish acceptance

	closeOnce sync.Once
	closed    chan struct{}
}

type inbound struct {
	event *nostr.Event
	eose  bool
}

type okReply struct {
	accepted bool
	reason   string
}

// DialWebsocket opens a NIP-01 session to the given relay URL.
func DialWebsocket(ctx context.Context, url string, logger *zap.SugaredLogger) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial relay %s", url)
	}

	c := &wsConn{
		url:    url,
		conn:   conn,
		logger: logger.Named("relay.conn"),
		subs:   make(map[string]chan inbound),
		oks:    make(map[string]chan okReply),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *wsConn) URL() string {
	return c.url
}

// readLoop dispatches incoming frames to waiting subscriptions until the
// connection dies. A dead read loop closes the session; the pool's health
// monitor notices on its next tick.
func (c *wsConn) readLoop() {
	defer c.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 2 {
			c.logger.Debugw("Dropping unparseable relay frame", "url", c.url)
			continue
		}

		var label string
		if err := json.Unmarshal(frame[0], &label); err != nil {
			continue
		}

		switch label {
		case "EVENT":
			if len(frame) < 3 {
				continue
			}
			var subID string
			if err := json.Unmarshal(frame[1], &subID); err != nil {
				continue
			}
			var ev nostr.Event
			if err := json.Unmarshal(frame[2], &ev); err != nil {
				c.logger.Debugw("Dropping undecodable event", "url", c.url)
				continue
			}
			c.dispatch(subID, inbound{event: &ev})

		case "EOSE":
			var subID string
			if err := json.Unmarshal(frame[1], &subID); err != nil {
				continue
			}
			c.dispatch(subID, inbound{eose: true})

		case "OK":
			if len(frame) < 3 {
				continue
			}
			var eventID string
			var accepted bool
			if json.Unmarshal(frame[1], &eventID) != nil || json.Unmarshal(frame[2], &accepted) != nil {
				continue
			}
			reply := okReply{accepted: accepted}
			if len(frame) >= 4 {
				_ = json.Unmarshal(frame[3], &reply.reason)
			}
			c.subMu.Lock()
			ch, ok := c.oks[eventID]
			c.subMu.Unlock()
			if ok {
				select {
				case ch <- reply:
				default:
				}
			}

		case "NOTICE":
			var msg string
			_ = json.Unmarshal(frame[1], &msg)
			c.logger.Debugw("Relay notice", "url", c.url, "notice", msg)

		case "CLOSED":
			var subID string
			if err := json.Unmarshal(frame[1], &subID); err != nil {
				continue
			}
			c.dispatch(subID, inbound{eose: true})
		}
	}
}

func (c *wsConn) dispatch(subID string, msg inbound) {
	c.subMu.Lock()
	ch, ok := c.subs[subID]
	c.subMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	case <-c.closed:
	}
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Query implements the REQ/EVENT/EOSE exchange: register a subscription,
// collect stored events until EOSE, then CLOSE it.
func (c *wsConn) Query(ctx context.Context, filters []nostr.Filter) ([]*nostr.Event, error) {
	subID := uuid.NewString()
	ch := make(chan inbound, 64)

	c.subMu.Lock()
	c.subs[subID] = ch
	c.subMu.Unlock()
	defer func() {
		c.subMu.Lock()
		delete(c.subs, subID)
		c.subMu.Unlock()
	}()

	req := make([]interface{}, 0, len(filters)+2)
	req = append(req, "REQ", subID)
	for _, f := range filters {
		req = append(req, f)
	}
	if err := c.writeJSON(req); err != nil {
		return nil, errors.Wrapf(err, "failed to send REQ to %s", c.url)
	}

	var events []*nostr.Event
	for {
		select {
		case <-ctx.Done():
			_ = c.writeJSON([]interface{}{"CLOSE", subID})
			return events, errors.Wrapf(errors.ErrTimeout, "query to %s", c.url)
		case <-c.closed:
			return events, errors.Newf("connection to %s closed mid-query", c.url)
		case msg := <-ch:
			if msg.eose {
				_ = c.writeJSON([]interface{}{"CLOSE", subID})
				return events, nil
			}
			if msg.event != nil && len(events) < maxQueryEvents {
				events = append(events, msg.event)
			}
		}
	}
}

// Publish sends an event and waits for the relay's OK reply.
func (c *wsConn) Publish(ctx context.Context, ev *nostr.Event) error {
	ch := make(chan okReply, 1)
	c.subMu.Lock()
	c.oks[ev.ID] = ch
	c.subMu.Unlock()
	defer func() {
		c.subMu.Lock()
		delete(c.oks, ev.ID)
		c.subMu.Unlock()
	}()

	if err := c.writeJSON([]interface{}{"EVENT", ev}); err != nil {
		return errors.Wrapf(err, "failed to send event to %s", c.url)
	}

	select {
	case <-ctx.Done():
		return errors.Wrapf(errors.ErrTimeout, "publish to %s", c.url)
	case <-c.closed:
		return errors.Newf("connection to %s closed mid-publish", c.url)
	case reply := <-ch:
		if !reply.accepted {
			return errors.Newf("relay %s rejected event: %s", c.url, reply.reason)
		}
		return nil
	}
}

// Ping sends a websocket-level ping frame.
func (c *wsConn) Ping(ctx context.Context) error {
	select {
	case <-c.closed:
		return errors.Newf("connection to %s is closed", c.url)
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
	return nil
}
