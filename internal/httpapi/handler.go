package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"xcom/map-go/internal/feeds"
	"xcom/map-go/internal/hidden"
	"xcom/map-go/internal/metrics"
	"xcom/map-go/internal/openmanet"
	"xcom/map-go/internal/overlay"
	"xcom/map-go/internal/roster"
)

// Pinger is the readiness surface of an optional backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the handler's collaborators. Controller is required; everything
// else may be nil and the matching endpoints degrade or report unavailable.
type Deps struct {
	Controller *overlay.Controller
	Hidden     *hidden.Store
	Feeds      *feeds.Log
	Mesh       *feeds.MeshState
	Poller     *openmanet.Poller
	Roster     *roster.Roster
	Stream     *MapStream
	Metrics    *metrics.Metrics
	Stores     []Pinger
}

type Handler struct {
	log  zerolog.Logger
	deps Deps
}

func NewHandler(log zerolog.Logger, deps Deps) *Handler {
	return &Handler{log: log, deps: deps}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.deps.Metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/overlay", func(r chi.Router) {
				r.Get("/legend", h.handleLegend)
				r.Get("/markers", h.handleMarkers)
				r.Post("/resync", h.handleResync)
				r.Get("/filters", h.handleGetFilters)
				r.Patch("/filters", h.handlePatchFilters)
			})

			r.Route("/hidden", func(r chi.Router) {
				r.Get("/", h.handleListHidden)
				r.Post("/", h.handleHide)
				r.Delete("/{kind}/{id}", h.handleUnhide)
			})

			r.Post("/feeds/imported", h.handleImportFeed)

			r.Route("/mesh", func(r chi.Router) {
				r.Put("/state", h.handleMeshState)
				r.Post("/assign", h.handleAssign)
				r.Get("/status", h.handleMeshStatus)
			})
		})
	})

	if h.deps.Stream != nil {
		r.Get("/ws/map", h.deps.Stream.HandleWS)
	}

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Header().Set("X-Request-Id", middleware.GetReqID(r.Context()))

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		// Route pattern, not raw path, so metric cardinality stays bounded.
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}
		h.deps.Metrics.ObserveHTTPRequest(r.Method, path, ww.Status(), duration)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, store := range h.deps.Stores {
		if err := store.Ping(ctx); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "backing store not ready", map[string]any{"error": err.Error()})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) handleLegend(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"legend": h.deps.Controller.Legend(),
		"counts": h.deps.Controller.Counts(),
	})
}

func (h *Handler) handleMarkers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.deps.Controller.Snapshot())
}

func (h *Handler) handleResync(w http.ResponseWriter, r *http.Request) {
	h.deps.Controller.Resync()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"legend": h.deps.Controller.Legend(),
		"counts": h.deps.Controller.Counts(),
	})
}

func (h *Handler) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.deps.Controller.Filters())
}

// filtersPatch carries partial filter updates. Absent fields stay unchanged;
// disabled_types, when present, replaces the whole per-type map.
type filtersPatch struct {
	Enabled       *bool                        `json:"enabled,omitempty"`
	TrustedOnly   *bool                        `json:"trusted_only,omitempty"`
	RecentOnly    *bool                        `json:"recent_only,omitempty"`
	DisabledTypes *map[overlay.TemplateID]bool `json:"disabled_types,omitempty"`
}

func (h *Handler) handlePatchFilters(w http.ResponseWriter, r *http.Request) {
	var req filtersPatch
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	h.deps.Controller.UpdateFilters(func(f *overlay.Filters) {
		if req.Enabled != nil {
			f.Enabled = *req.Enabled
		}
		if req.TrustedOnly != nil {
			f.TrustedOnly = *req.TrustedOnly
		}
		if req.RecentOnly != nil {
			f.RecentOnly = *req.RecentOnly
		}
		if req.DisabledTypes != nil {
			f.DisabledTypes = *req.DisabledTypes
		}
	})

	h.writeJSON(w, http.StatusOK, h.deps.Controller.Filters())
}

func (h *Handler) handleListHidden(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hidden == nil {
		h.writeJSON(w, http.StatusOK, []hidden.Item{})
		return
	}
	items := h.deps.Hidden.Items()
	if items == nil {
		items = []hidden.Item{}
	}
	h.writeJSON(w, http.StatusOK, items)
}

type hideRequest struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

func parseHiddenKind(raw string) (overlay.HiddenKind, bool) {
	switch overlay.HiddenKind(strings.ToLower(raw)) {
	case overlay.KindImported:
		return overlay.KindImported, true
	case overlay.KindMesh:
		return overlay.KindMesh, true
	}
	return "", false
}

func (h *Handler) handleHide(w http.ResponseWriter, r *http.Request) {
	var req hideRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	kind, ok := parseHiddenKind(req.Kind)
	if !ok || req.ID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "kind must be imported or mesh and id must be set", nil)
		return
	}
	if h.deps.Hidden == nil {
		h.writeError(w, http.StatusServiceUnavailable, "hidden_unavailable", "hidden store not configured", nil)
		return
	}

	h.deps.Hidden.Hide(r.Context(), kind, req.ID, req.Label)
	h.writeJSON(w, http.StatusOK, map[string]any{"hidden": true, "kind": string(kind), "id": req.ID})
}

func (h *Handler) handleUnhide(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseHiddenKind(chi.URLParam(r, "kind"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "kind must be imported or mesh", nil)
		return
	}
	if h.deps.Hidden == nil {
		h.writeError(w, http.StatusServiceUnavailable, "hidden_unavailable", "hidden store not configured", nil)
		return
	}

	id := chi.URLParam(r, "id")
	h.deps.Hidden.Unhide(r.Context(), kind, id)
	h.writeJSON(w, http.StatusOK, map[string]any{"hidden": false, "kind": string(kind), "id": id})
}

type importRequest struct {
	Features   []overlay.Feature `json:"features"`
	ImportedAt *time.Time        `json:"imported_at,omitempty"`
	Mode       string            `json:"mode,omitempty"`
}

func (h *Handler) handleImportFeed(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if len(req.Features) == 0 {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "features must not be empty", nil)
		return
	}
	if h.deps.Feeds == nil {
		h.writeError(w, http.StatusServiceUnavailable, "feeds_unavailable", "imported feed not configured", nil)
		return
	}

	importedAt := time.Now().UTC()
	if req.ImportedAt != nil {
		importedAt = *req.ImportedAt
	}
	h.deps.Feeds.Append(r.Context(), overlay.ReportCollection{
		Features:   req.Features,
		ImportedAt: importedAt,
		Mode:       overlay.Mode(req.Mode),
	})
	h.deps.Controller.Resync()

	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": len(req.Features),
		"counts":   h.deps.Controller.Counts(),
	})
}

type meshStateRequest struct {
	Nodes  []overlay.MeshNode `json:"nodes"`
	Status string             `json:"status,omitempty"`
}

func (h *Handler) handleMeshState(w http.ResponseWriter, r *http.Request) {
	var req meshStateRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if h.deps.Mesh == nil {
		h.writeError(w, http.StatusServiceUnavailable, "mesh_unavailable", "mesh state not configured", nil)
		return
	}

	status := req.Status
	if status == "" {
		status = "ok"
	}
	h.deps.Mesh.Set(req.Nodes, status)
	h.deps.Controller.Resync()

	h.writeJSON(w, http.StatusOK, map[string]any{"nodes": len(req.Nodes), "status": status})
}

type assignRequest struct {
	NodeID string `json:"node_id"`
	UnitID string `json:"unit_id"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if req.NodeID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "node_id must be set", nil)
		return
	}
	if h.deps.Roster == nil {
		h.writeError(w, http.StatusServiceUnavailable, "roster_unavailable", "roster not configured", nil)
		return
	}

	h.deps.Roster.Assign(req.NodeID, req.UnitID)
	h.deps.Controller.Resync()

	unit, assigned := h.deps.Roster.Assignment(req.NodeID)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"node_id":  req.NodeID,
		"unit_id":  unit,
		"assigned": assigned,
	})
}

func (h *Handler) handleMeshStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	if h.deps.Mesh != nil {
		resp["radio"] = h.deps.Mesh.Status()
	}
	if h.deps.Poller != nil {
		resp["openmanet"] = h.deps.Poller.Status()
	}
	h.writeJSON(w, http.StatusOK, resp)
}
