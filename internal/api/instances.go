package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tiltlogic/tiltlogic-core/internal/show"
)

// InstanceSummary describes one running show instance.
type InstanceSummary struct {
	ID          int64  `json:"id"`
	Show        string `json:"show"`
	Key         string `json:"key,omitempty"`
	Priority    int    `json:"priority"`
	NextStep    int    `json:"next_step"`
	LoopsPlayed int    `json:"loops_played"`
	Paused      bool   `json:"paused"`
}

// AdvanceRequest is the body for POST /instances/{id}/advance.
//
// ShowStep jumps to an explicit 1-based step. Otherwise Steps are
// skipped forward, or backward when Back is set.
type AdvanceRequest struct {
	Steps    int  `json:"steps"`
	ShowStep int  `json:"show_step"`
	Back     bool `json:"back"`
}

// handleListInstances returns every running instance.
func (s *Server) handleListInstances(w http.ResponseWriter, _ *http.Request) {
	var out []InstanceSummary
	ok := s.onLoop(func() {
		instances := s.controller.Instances()
		out = make([]InstanceSummary, 0, len(instances))
		for _, in := range instances {
			out = append(out, instanceSummary(in))
		}
	})
	if !ok {
		writeLoopTimeout(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"instances": out,
		"count":     len(out),
	})
}

// handlePauseInstance suspends a running instance.
func (s *Server) handlePauseInstance(w http.ResponseWriter, r *http.Request) {
	s.instanceAction(w, r, func(in *show.Instance) error {
		s.controller.Pause(in)
		return nil
	})
}

// handleResumeInstance continues a paused instance.
func (s *Server) handleResumeInstance(w http.ResponseWriter, r *http.Request) {
	s.instanceAction(w, r, func(in *show.Instance) error {
		s.controller.Resume(in)
		return nil
	})
}

// handleStopInstance stops an instance and restores its devices.
func (s *Server) handleStopInstance(w http.ResponseWriter, r *http.Request) {
	s.instanceAction(w, r, func(in *show.Instance) error {
		s.controller.StopShow(in)
		return nil
	})
}

// handleAdvanceInstance moves an instance through its timeline.
func (s *Server) handleAdvanceInstance(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	s.instanceAction(w, r, func(in *show.Instance) error {
		if req.Back {
			return s.controller.StepBack(in, req.Steps)
		}
		return s.controller.Advance(in, req.Steps, req.ShowStep)
	})
}

// instanceAction resolves the {id} URL parameter on the control loop
// and applies fn to the instance, translating the outcome to HTTP.
func (s *Server) instanceAction(w http.ResponseWriter, r *http.Request, fn func(in *show.Instance) error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid instance id")
		return
	}

	var (
		found     bool
		actionErr error
		summary   InstanceSummary
	)
	ok := s.onLoop(func() {
		var in *show.Instance
		in, found = s.controller.Instance(id)
		if !found {
			return
		}
		actionErr = fn(in)
		summary = instanceSummary(in)
	})
	if !ok {
		writeLoopTimeout(w)
		return
	}
	if !found {
		writeNotFound(w, "instance not found")
		return
	}
	if actionErr != nil {
		writeBadRequest(w, actionErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// instanceSummary builds the response entry for one instance.
// Control-loop only.
func instanceSummary(in *show.Instance) InstanceSummary {
	return InstanceSummary{
		ID:          in.ID(),
		Show:        in.ShowName(),
		Key:         in.Key(),
		Priority:    in.Priority(),
		NextStep:    in.NextStepIndex() + 1,
		LoopsPlayed: in.LoopsPlayed(),
		Paused:      in.Paused(),
	}
}
