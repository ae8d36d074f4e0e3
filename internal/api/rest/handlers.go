// Package rest exposes a read-only HTTP view over the sync audit trail.
// Mutations happen through the CLI only.
package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clintrovert/tpsync/internal/audit"
)

// Handler handles REST API requests.
type Handler struct {
	store  *audit.Store
	logger *zap.Logger
}

// NewHandler creates a new REST handler.
func NewHandler(store *audit.Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// SyncRecordResponse is the JSON form of one audit record.
type SyncRecordResponse struct {
	ID           uint     `json:"id"`
	Operation    string   `json:"operation"`
	Release      string   `json:"release"`
	Team         string   `json:"team"`
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	Conflicts    []string `json:"conflicts,omitempty"`
	APICallCount int      `json:"api_call_count"`
	CreatedAt    string   `json:"created_at"`
}

// ListSyncs handles GET /syncs.
func (h *Handler) ListSyncs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.store.Recent(limit)
	if err != nil {
		h.logger.Error("failed to list sync records", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]SyncRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toResponse(rec))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetSync handles GET /syncs/{id}.
func (h *Handler) GetSync(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	rec, err := h.store.Get(uint(id))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toResponse(*rec))
}

// RegisterRoutes registers REST API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/syncs", h.ListSyncs)
	r.Get("/syncs/{id}", h.GetSync)
}

func toResponse(rec audit.Record) SyncRecordResponse {
	resp := SyncRecordResponse{
		ID:           rec.ID,
		Operation:    rec.Operation,
		Release:      rec.Release,
		Team:         rec.Team,
		Success:      rec.Success,
		Message:      rec.Message,
		APICallCount: rec.APICallCount,
		CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.Conflicts != "" {
		resp.Conflicts = strings.Split(rec.Conflicts, "\n")
	}
	return resp
}
