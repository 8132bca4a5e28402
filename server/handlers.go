package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/zapabug/madtrips-sub000/graph"
)

// handleGraph serves GET /api/graph?seeds=a,b&second_degree=true. Without a
// seeds parameter the persisted seed registry is used. Responses come from
// the graph cache when fresh.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	seeds := splitSeeds(r.URL.Query().Get("seeds"))
	if len(seeds) == 0 {
		stored, err := s.seeds.PubKeys(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load seed registry")
			return
		}
		seeds = stored
	}
	if len(seeds) == 0 {
		writeError(w, http.StatusBadRequest, "No seeds given and none registered")
		return
	}

	opts := graph.Options{
		ShowSecondDegree: r.URL.Query().Get("second_degree") == "true",
		ForceFresh:       r.URL.Query().Get("refresh") == "true",
	}
	g, err := s.builder.Build(r.Context(), seeds, opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type seedRequest struct {
	PubKey string `json:"pubkey"`
}

// handleGraphSeeds serves POST /api/graph/seeds: validates and persists a
// new seed identity, then rebuilds the graph in the background. 202 means
// accepted, not built; clients hear the result over /ws.
func (s *Server) handleGraphSeeds(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req seedRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	if err := s.seeds.Add(r.Context(), req.PubKey); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
		defer cancel()
		seeds, err := s.seeds.PubKeys(ctx)
		if err != nil {
			s.logger.Errorw("Failed to reload seeds after registration", "error", err)
			return
		}
		if _, err := s.builder.Build(ctx, seeds, graph.Options{
			ShowSecondDegree: true,
			ForceFresh:       true,
		}); err != nil {
			s.logger.Errorw("Rebuild after seed registration failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type expandRequest struct {
	Node string `json:"node"`
}

// handleGraphExpand serves POST /api/graph/expand: fetches one node's
// contacts and merges them in. The merged graph is broadcast to WebSocket
// clients; the response carries the current snapshot.
func (s *Server) handleGraphExpand(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req expandRequest
	if readJSON(w, r, &req) != nil {
		return
	}
	if req.Node == "" {
		writeError(w, http.StatusBadRequest, "Missing node")
		return
	}

	s.builder.ExpandNode(r.Context(), req.Node)

	g := s.builder.CurrentGraph()
	if g == nil {
		writeError(w, http.StatusConflict, "No graph built yet")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleRelays serves GET /api/relays for connectivity indicators.
func (s *Server) handleRelays(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	urls := s.pool.ConnectedEndpoints()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": len(urls),
		"urls":      urls,
	})
}

type followRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	s.handleFollowMutation(w, r, s.social.Follow)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	s.handleFollowMutation(w, r, s.social.Unfollow)
}

func (s *Server) handleFollowMutation(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) bool) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req followRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	ok := op(r.Context(), req.From, req.To)
	status := http.StatusOK
	if !ok {
		// Best effort by contract: the flag is the result, not an error.
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]bool{"ok": ok})
}

// handleFollowing serves GET /api/following?from=&to=. With to it answers a
// single membership question, without it the whole contact list.
func (s *Server) handleFollowing(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	from := r.URL.Query().Get("from")
	if from == "" {
		writeError(w, http.StatusBadRequest, "Missing from")
		return
	}
	if to := r.URL.Query().Get("to"); to != "" {
		writeJSON(w, http.StatusOK, map[string]bool{
			"following": s.social.IsFollowing(r.Context(), from, to),
		})
		return
	}
	contacts := s.social.Following(r.Context(), from)
	if contacts == nil {
		contacts = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"contacts": contacts})
}

// handleHealth serves GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"relays":  s.pool.ConnectedCount(),
		"clients": s.clientCount(),
		"phase":   s.builder.Phase().String(),
	})
}

func splitSeeds(raw string) []string {
	if raw == "" {
		return nil
	}
	var seeds []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}
	return seeds
}
