package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes registers all HTTP handlers on the server's mux.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.corsMiddleware(s.handleWebSocket))
	mux.HandleFunc("/api/health", s.corsMiddleware(s.handleHealth))
	mux.HandleFunc("/api/graph", s.corsMiddleware(s.handleGraph))
	mux.HandleFunc("/api/graph/seeds", s.corsMiddleware(s.handleGraphSeeds))
	mux.HandleFunc("/api/graph/expand", s.corsMiddleware(s.handleGraphExpand))
	mux.HandleFunc("/api/relays", s.corsMiddleware(s.handleRelays))
	mux.HandleFunc("/api/follow", s.corsMiddleware(s.handleFollow))
	mux.HandleFunc("/api/unfollow", s.corsMiddleware(s.handleUnfollow))
	mux.HandleFunc("/api/following", s.corsMiddleware(s.handleFollowing))
	mux.HandleFunc("/api/profile", s.corsMiddleware(s.handleProfile))
	mux.HandleFunc("/api/notes", s.corsMiddleware(s.handleNotes))
	mux.HandleFunc("/api/avatar", s.corsMiddleware(s.handleAvatar))
	mux.Handle("/metrics", promhttp.Handler())
}

// corsMiddleware adds CORS headers and answers preflight requests. The API
// serves browser frontends on other origins (the booking site itself runs
// elsewhere), so the surface is open by default.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}
