package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports static runtime metadata.
type StatusHandler struct {
	mode      string
	version   string
	features  map[string]bool
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler. features lists which optional
// subsystems (redis, chain, s3, notify) are wired.
func NewStatusHandler(mode, version string, features map[string]bool, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, version: version, features: features, startedAt: startedAt}
}

// GetStatus responds with the mode, version, uptime and enabled features.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"features":       h.features,
	})
}
