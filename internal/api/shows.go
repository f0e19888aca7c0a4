package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tiltlogic/tiltlogic-core/internal/show"
)

// ShowSummary is a single entry in the show list response.
type ShowSummary struct {
	Name       string   `json:"name"`
	TotalSteps int      `json:"total_steps"`
	Tokens     []string `json:"tokens,omitempty"`
	Running    int      `json:"running"`
}

// PlayRequest is the body for POST /shows/{name}/play.
//
// All fields are optional; zero values match the defaults a bare
// play call gets on the control loop.
type PlayRequest struct {
	Priority      int            `json:"priority"`
	Speed         float64        `json:"speed"`
	StartStep     int            `json:"start_step"`
	Loops         int            `json:"loops"`
	SyncMS        int            `json:"sync_ms"`
	Resume        bool           `json:"resume"`
	ManualAdvance bool           `json:"manual_advance"`
	Blend         bool           `json:"blend"`
	Hold          bool           `json:"hold"`
	Key           string         `json:"key"`
	Tokens        map[string]any `json:"tokens"`
}

// PlayResponse describes the instance started by a play request.
type PlayResponse struct {
	InstanceID int64  `json:"instance_id,omitempty"`
	Show       string `json:"show"`
	Queued     bool   `json:"queued,omitempty"`
}

// handleListShows returns every loaded show with its step count and
// declared tokens.
func (s *Server) handleListShows(w http.ResponseWriter, _ *http.Request) {
	var out []ShowSummary
	ok := s.onLoop(func() {
		names := s.library.Names()
		out = make([]ShowSummary, 0, len(names))
		for _, name := range names {
			sh, found := s.library.Get(name)
			if !found {
				continue
			}
			out = append(out, showSummary(sh))
		}
	})
	if !ok {
		writeLoopTimeout(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"shows": out,
		"count": len(out),
	})
}

// handleGetShow returns one show's summary.
func (s *Server) handleGetShow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var (
		summary ShowSummary
		found   bool
	)
	ok := s.onLoop(func() {
		var sh *show.Show
		sh, found = s.library.Get(name)
		if found {
			summary = showSummary(sh)
		}
	})
	if !ok {
		writeLoopTimeout(w)
		return
	}
	if !found {
		writeNotFound(w, "show not found: "+name)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleReloadShows re-reads every show file from the library directory.
func (s *Server) handleReloadShows(w http.ResponseWriter, _ *http.Request) {
	var (
		err   error
		count int
	)
	ok := s.onLoop(func() {
		err = s.library.Reload()
		count = s.library.Count()
	})
	if !ok {
		writeLoopTimeout(w)
		return
	}
	if err != nil {
		writeInternalError(w, "reloading shows: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"loaded": count})
}

// handlePlayShow starts a show instance.
//
// When the show is not yet loaded the play is queued and fires if a
// later (re)load brings the show in; the response reports queued=true.
func (s *Server) handlePlayShow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req PlayRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body: "+err.Error())
			return
		}
	}

	opts := show.PlayOptions{
		Priority:      req.Priority,
		Speed:         req.Speed,
		StartStep:     req.StartStep,
		Loops:         req.Loops,
		SyncMS:        req.SyncMS,
		Resume:        req.Resume,
		ManualAdvance: req.ManualAdvance,
		Blend:         req.Blend,
		Hold:          req.Hold,
		Key:           req.Key,
		Tokens:        req.Tokens,
	}

	var (
		in  *show.Instance
		err error
	)
	ok := s.onLoop(func() {
		in, err = s.library.Play(name, opts)
	})
	if !ok {
		writeLoopTimeout(w)
		return
	}
	if err != nil {
		var tokenErr *show.TokenMismatchError
		if errors.As(err, &tokenErr) {
			writeBadRequest(w, err.Error())
			return
		}
		var stepErr *show.InvalidStepError
		if errors.As(err, &stepErr) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "playing show: "+err.Error())
		return
	}
	if in == nil {
		writeJSON(w, http.StatusAccepted, PlayResponse{Show: name, Queued: true})
		return
	}

	writeJSON(w, http.StatusOK, PlayResponse{InstanceID: in.ID(), Show: name})
}

// handleStopShow stops every running instance of the named show.
func (s *Server) handleStopShow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var stopped int
	ok := s.onLoop(func() {
		stopped = s.controller.StopShowsByName(name)
	})
	if !ok {
		writeLoopTimeout(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

// showSummary builds the list entry for one show. Control-loop only.
func showSummary(sh *show.Show) ShowSummary {
	return ShowSummary{
		Name:       sh.Name(),
		TotalSteps: sh.TotalSteps(),
		Tokens:     sh.Tokens(),
		Running:    sh.RunningCount(),
	}
}
