package downloads

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/handlers"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/routes"
)

// Handler provides HTTP endpoints for download session operations.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// ResetResult reports how many failed files were returned to pending.
type ResetResult struct {
	Reset int64 `json:"reset"`
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "downloads"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for download endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/downloads",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/failed", Handler: h.ListFailed},
			{Method: "POST", Pattern: "/failed/reset", Handler: h.ResetFailed},
		},
		Children: []routes.Group{
			{
				Prefix: "/sessions",
				Routes: []routes.Route{
					{Method: "POST", Pattern: "", Handler: h.Start},
					{Method: "GET", Pattern: "", Handler: h.List},
					{Method: "GET", Pattern: "/{id}", Handler: h.Find},
					{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
					{Method: "POST", Pattern: "/{id}/resume", Handler: h.Resume},
					{Method: "GET", Pattern: "/{id}/files", Handler: h.Files},
					{Method: "GET", Pattern: "/{id}/events", Handler: h.Events},
				},
			},
		},
	}
}

// Start creates a session and returns it immediately with 202 Accepted.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var cmd StartCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidParams)
		return
	}

	s, err := h.sys.Start(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, s)
}

// List returns a paginated list of sessions filtered by source_type and status.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	s, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, s)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	s, err := h.sys.Cancel(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, s)
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	s, err := h.sys.Resume(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, s)
}

// Files returns the session's file rows, optionally narrowed by ?status=.
func (h *Handler) Files(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var status *string
	if st := r.URL.Query().Get("status"); st != "" {
		status = &st
	}

	files, err := h.sys.Files(r.Context(), id, status)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, files)
}

func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	events, err := h.sys.Events(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, events)
}

// ListFailed returns failed files across sessions, filtered by source_type and filename.
func (h *Handler) ListFailed(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FailedFiltersFromQuery(r.URL.Query())

	result, err := h.sys.ListFailed(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// ResetFailed returns failed files to pending. An empty body resets every failed file.
func (h *Handler) ResetFailed(w http.ResponseWriter, r *http.Request) {
	var filters FailedFilters
	if err := json.NewDecoder(r.Body).Decode(&filters); err != nil && !errors.Is(err, io.EOF) {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidParams)
		return
	}

	n, err := h.sys.ResetFailed(r.Context(), filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, ResetResult{Reset: n})
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}
