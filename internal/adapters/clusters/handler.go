// Package clusters exposes cluster lookups over HTTP.
package clusters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"genecluster/internal/cluster"
	"genecluster/internal/core"
)

// Querier answers cluster lookups. *core.Service satisfies it.
type Querier interface {
	GetClusters(ctx context.Context, query string, maxMatchEntries int) (core.Result, error)
	GetClusterByID(ctx context.Context, id string) (*cluster.Cluster, bool, error)
	Status() core.Status
}

// Handler routes the cluster API.
type Handler struct {
	Service Querier
	mux     *http.ServeMux
}

// NewHandler constructs the HTTP handler.
func NewHandler(svc Querier) *Handler {
	h := &Handler{Service: svc, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /get_cluster/{partialName}", h.handleSearch("partialName"))
	h.mux.HandleFunc("GET /api/v1/clusters", h.handleSearch(""))
	h.mux.HandleFunc("GET /api/v1/clusters/{id}", h.handleGet)
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /readyz", h.handleReady)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "cluster service not configured")
		return
	}
	h.mux.ServeHTTP(w, r)
}

// handleSearch reads the query from the named path value, or from ?q= when
// pathKey is empty.
func (h *Handler) handleSearch(pathKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if pathKey != "" {
			query = r.PathValue(pathKey)
		}
		maxEntries := 0
		if raw := r.URL.Query().Get("max"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "max must be a positive integer")
				return
			}
			maxEntries = n
		}
		res, err := h.Service.GetClusters(r.Context(), query, maxEntries)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, ok, err := h.Service.GetClusterByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "cluster "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cluster": c})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.Status())
}

func (h *Handler) handleReady(w http.ResponseWriter, _ *http.Request) {
	st := h.Service.Status()
	status := http.StatusOK
	if st.State != core.StateReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, st)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var buildErr *core.BuildError
	switch {
	case errors.As(err, &buildErr):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "cluster index not ready")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
