package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"
)

// SystemStatus is the response for GET /status.
type SystemStatus struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeStatus  `json:"runtime"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Playback      PlaybackStatus `json:"playback"`
}

// RuntimeStatus contains Go runtime statistics.
type RuntimeStatus struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTStatus contains MQTT client statistics.
type MQTTStatus struct {
	Connected bool `json:"connected"`
}

// PlaybackStatus contains show engine statistics.
type PlaybackStatus struct {
	ShowsLoaded      int `json:"shows_loaded"`
	RunningInstances int `json:"running_instances"`
	ExternalShows    int `json:"external_shows"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus returns system and playback status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := SystemStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStatus{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.mqtt != nil {
		status.MQTT.Connected = s.mqtt.IsConnected()
	}

	ok := s.onLoop(func() {
		status.Playback = PlaybackStatus{
			ShowsLoaded:      s.library.Count(),
			RunningInstances: s.controller.RunningCount(),
			ExternalShows:    s.controller.ExternalShowCount(),
		}
	})
	if !ok {
		writeLoopTimeout(w)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleListExecutions returns recent show executions from the audit
// trail, newest first. The limit query parameter caps the result.
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "execution history unavailable")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	executions, err := s.repo.RecentExecutions(r.Context(), limit)
	if err != nil {
		writeInternalError(w, "listing executions: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"executions": executions,
		"count":      len(executions),
	})
}
