package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/tiltlogic/tiltlogic-core/internal/show"
)

// PlaylistSummary describes one registered playlist.
type PlaylistSummary struct {
	Name        string `json:"name"`
	Running     bool   `json:"running"`
	CurrentStep int    `json:"current_step"`
}

// StartPlaylistRequest is the body for POST /playlists/{name}/start.
type StartPlaylistRequest struct {
	Priority    int  `json:"priority"`
	Repeat      bool `json:"repeat"`
	RepeatCount int  `json:"repeat_count"`
	Reset       bool `json:"reset"`
}

// StopPlaylistRequest is the body for POST /playlists/{name}/stop.
type StopPlaylistRequest struct {
	Reset bool `json:"reset"`
	Hold  bool `json:"hold"`
}

// handleListPlaylists returns every registered playlist and its state.
func (s *Server) handleListPlaylists(w http.ResponseWriter, _ *http.Request) {
	var out []PlaylistSummary
	ok := s.onLoop(func() {
		out = make([]PlaylistSummary, 0, len(s.playlists))
		for name, p := range s.playlists {
			out = append(out, PlaylistSummary{
				Name:        name,
				Running:     p.Running(),
				CurrentStep: p.CurrentStep(),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	})
	if !ok {
		writeLoopTimeout(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"playlists": out,
		"count":     len(out),
	})
}

// handleStartPlaylist starts a registered playlist.
func (s *Server) handleStartPlaylist(w http.ResponseWriter, r *http.Request) {
	var req StartPlaylistRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body: "+err.Error())
			return
		}
	}

	s.playlistAction(w, r, func(p *show.Playlist) {
		p.Start(req.Priority, req.Repeat, req.RepeatCount, req.Reset)
	})
}

// handleStopPlaylist stops a running playlist.
func (s *Server) handleStopPlaylist(w http.ResponseWriter, r *http.Request) {
	var req StopPlaylistRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body: "+err.Error())
			return
		}
	}

	s.playlistAction(w, r, func(p *show.Playlist) {
		p.Stop(req.Reset, req.Hold)
	})
}

// playlistAction resolves the {name} URL parameter and applies fn on
// the control loop.
func (s *Server) playlistAction(w http.ResponseWriter, r *http.Request, fn func(p *show.Playlist)) {
	name := chi.URLParam(r, "name")

	p, found := s.playlists[name]
	if !found {
		writeNotFound(w, "playlist not found: "+name)
		return
	}

	var summary PlaylistSummary
	ok := s.onLoop(func() {
		fn(p)
		summary = PlaylistSummary{
			Name:        name,
			Running:     p.Running(),
			CurrentStep: p.CurrentStep(),
		}
	})
	if !ok {
		writeLoopTimeout(w)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
