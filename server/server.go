// Package server exposes the graph engine over HTTP and WebSocket: graph
// queries, seed registration, node expansion, follow operations, relay
// status, health and metrics, plus push notifications for graph and
// connectivity changes.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zapabug/madtrips-sub000/config"
	"github.com/zapabug/madtrips-sub000/graph"
	"github.com/zapabug/madtrips-sub000/media"
	"github.com/zapabug/madtrips-sub000/nostr"
)

// GraphService is the slice of the graph builder the server depends on.
type GraphService interface {
	Build(ctx context.Context, seeds []string, opts graph.Options) (*graph.SocialGraph, error)
	ExpandNode(ctx context.Context, nodeID string)
	CurrentGraph() *graph.SocialGraph
	Reset()
	OnGraphChange(fn func(*graph.SocialGraph)) func()
	Phase() graph.Phase
}

// RelayPool is the slice of the relay pool the server depends on.
type RelayPool interface {
	ConnectedEndpoints() []string
	ConnectedCount() int
	OnStatusUpdate(fn func(connected []string)) func()
}

// FollowService mutates and inspects contact lists.
type FollowService interface {
	Follow(ctx context.Context, from, to string) bool
	Unfollow(ctx context.Context, from, to string) bool
	IsFollowing(ctx context.Context, from, to string) bool
	Following(ctx context.Context, from string) []string
}

// SeedRegistry persists the seed identities graphs are built around.
type SeedRegistry interface {
	Add(ctx context.Context, identity string) error
	PubKeys(ctx context.Context) ([]string, error)
}

// FeedService answers profile-card and note queries.
type FeedService interface {
	Profile(ctx context.Context, identity string) (nostr.ProfileRecord, error)
	Notes(ctx context.Context, identity string, limit int) ([]nostr.ContentRecord, error)
}

// AvatarService fetches and caches avatar images.
type AvatarService interface {
	Get(ctx context.Context, url string) (media.Image, error)
}

// Server is the HTTP/WebSocket surface over the graph engine.
type Server struct {
	cfg     config.ServerConfig
	builder GraphService
	pool    RelayPool
	social  FollowService
	seeds   SeedRegistry
	feed    FeedService
	avatars AvatarService
	logger  *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[*Client]bool

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	unsubGraph  func()
	unsubStatus func()

	broadcastDrops atomic.Int64
}

// New wires a server over its collaborators. Nothing is started until Run.
func New(cfg config.ServerConfig, builder GraphService, pool RelayPool, social FollowService, seeds SeedRegistry, feed FeedService, avatars AvatarService, logger *zap.SugaredLogger) *Server {
	s := &Server{
		cfg:     cfg,
		builder: builder,
		pool:    pool,
		social:  social,
		seeds:   seeds,
		feed:    feed,
		avatars: avatars,
		logger:  logger.Named("server"),
		clients: make(map[*Client]bool),
	}
	// Replaced in Run; set here so background work spawned by handlers has
	// a context even under httptest.
	s.ctx, s.cancel = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	s.setupRoutes(mux)
	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Run serves HTTP until ctx is cancelled, then drains. Graph and relay
// status changes are forwarded to connected WebSocket clients for as long
// as the server runs.
func (s *Server) Run(ctx context.Context) error {
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.unsubGraph = s.builder.OnGraphChange(func(g *graph.SocialGraph) {
		s.broadcast(graphUpdateMessage(g))
	})
	s.unsubStatus = s.pool.OnStatusUpdate(func(connected []string) {
		s.broadcast(relayStatusMessage(connected))
	})

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("HTTP server listening", "addr", s.cfg.Listen)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.cancel()
		return err
	case <-s.ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)

	s.unsubGraph()
	s.unsubStatus()
	s.closeClients()
	s.wg.Wait()
	s.logger.Infow("Server stopped", "dropped_broadcasts", s.broadcastDrops.Load())
	return err
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*Client]bool)
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// broadcast queues a message to every connected client, dropping it for
// clients whose send buffer is full. A slow consumer never blocks the
// engine.
func (s *Server) broadcast(msg interface{}) int {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		select {
		case c.send <- msg:
			sent++
		default:
			s.broadcastDrops.Add(1)
		}
	}
	return sent
}

func (s *Server) registerClient(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxClients > 0 && len(s.clients) >= s.cfg.MaxClients {
		return false
	}
	s.clients[c] = true
	return true
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
