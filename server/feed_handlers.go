package server

import (
	"net/http"
	"strconv"

	"github.com/zapabug/madtrips-sub000/errors"
	"github.com/zapabug/madtrips-sub000/nostr"
)

// handleProfile serves GET /api/profile?id= for node detail cards.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing id")
		return
	}

	p, err := s.feed.Profile(r.Context(), id)
	switch {
	case errors.Is(err, errors.ErrInvalidIdentity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrNotFound):
		writeError(w, http.StatusNotFound, "No profile known for this identity")
	case err != nil:
		writeError(w, http.StatusBadGateway, "Profile lookup failed")
	default:
		npub, _ := nostr.EncodeNpub(p.PubKey)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"pubkey":      p.PubKey,
			"npub":        npub,
			"name":        p.Name,
			"displayName": p.DisplayName,
			"about":       p.About,
			"picture":     p.Picture,
			"nip05":       p.NIP05,
			"lud16":       p.LightningAddr,
		})
	}
}

// handleNotes serves GET /api/notes?author=&limit= for trip feeds.
func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	author := r.URL.Query().Get("author")
	if author == "" {
		writeError(w, http.StatusBadRequest, "Missing author")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	notes, err := s.feed.Notes(r.Context(), author, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if notes == nil {
		notes = []nostr.ContentRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": notes})
}

// handleAvatar serves GET /api/avatar?url=, proxying profile pictures
// through the image cache.
func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "Missing url")
		return
	}

	img, err := s.avatars.Get(r.Context(), url)
	if err != nil {
		// The frontend falls back to its placeholder on any non-200.
		writeError(w, http.StatusBadGateway, "Avatar unavailable")
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=1800")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}
