package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// SnapshotStore lists and opens exported snapshots.
type SnapshotStore interface {
	List(ctx context.Context) ([]domain.BlobInfo, error)
	Open(ctx context.Context, key string) (domain.BlobInfo, []byte, error)
}

// SnapshotHandler serves exported snapshots. A nil store answers 503.
type SnapshotHandler struct {
	store  SnapshotStore
	logger *slog.Logger
}

// NewSnapshotHandler creates a SnapshotHandler.
func NewSnapshotHandler(store SnapshotStore, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{store: store, logger: logger}
}

// List returns snapshot objects, newest first.
// GET /api/snapshots
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot export is not configured")
		return
	}
	infos, err := h.store.List(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "list snapshots", err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": infos})
}

// Get streams one snapshot as JSONL.
// GET /api/snapshots/{key...}
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot export is not configured")
		return
	}
	info, body, err := h.store.Open(r.Context(), r.PathValue("key"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get snapshot", err)
		return
	}
	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
