package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zapabug/madtrips-sub000/graph"
)

// WebSocket timeout constants following Gorilla best practices.
const (
	// Time allowed to write a message to the peer
	wsWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	wsPongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than wsPongWait)
	wsPingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	wsMaxMessageSize = 4096

	// Per-client send buffer; broadcasts drop when it is full
	wsSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP surface is CORS-open; the socket matches it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one WebSocket consumer of graph and connectivity updates.
type Client struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan interface{}

	closeOnce sync.Once
}

func graphUpdateMessage(g *graph.SocialGraph) interface{} {
	return map[string]interface{}{
		"type":      "graph_update",
		"graph":     g,
		"timestamp": time.Now().Unix(),
	}
}

func relayStatusMessage(connected []string) interface{} {
	return map[string]interface{}{
		"type":      "relay_status",
		"connected": len(connected),
		"urls":      connected,
		"timestamp": time.Now().Unix(),
	}
}

// handleWebSocket upgrades /ws and attaches the client to the broadcast set.
// New clients immediately receive the current graph and relay status so they
// never render from nothing.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan interface{}, wsSendBuffer),
	}
	if !s.registerClient(client) {
		s.logger.Warnw("Rejecting WebSocket client, server full", "max", s.cfg.MaxClients)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server full"),
			time.Now().Add(wsWriteWait))
		conn.Close()
		return
	}
	s.logger.Debugw("WebSocket client connected", "client", client.id, "clients", s.clientCount())

	if g := s.builder.CurrentGraph(); g != nil {
		client.send <- graphUpdateMessage(g)
	}
	client.send <- relayStatusMessage(s.pool.ConnectedEndpoints())

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection to process pongs and detect disconnects.
// Inbound payloads are ignored: the socket is push-only.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump serializes all writes to the peer: queued messages and pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close tears the client down exactly once, on either pump exiting or
// server shutdown.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.server.unregisterClient(c)
		c.conn.Close()
		c.server.logger.Debugw("WebSocket client disconnected", "client", c.id)
	})
}
