package reconcile

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/handlers"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/routes"
)

// Handler provides HTTP endpoints for reconciliation.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "reconcile"),
		pagination: pagination,
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/reconciliation",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.Overview},
			{Method: "GET", Pattern: "/{pair}", Handler: h.Query},
			{Method: "POST", Pattern: "/{pair}/search", Handler: h.Search},
			{Method: "POST", Pattern: "/{pair}/recompute", Handler: h.Recompute},
			{Method: "GET", Pattern: "/{pair}/staleness", Handler: h.Staleness},
		},
	}
}

// Overview reports the staleness of every pair.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	out, err := h.sys.Overview(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, out)
}

// Query reads page, page_size, search, sort, status, key, and refresh from
// the query string.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	filters := FiltersFromQuery(values)
	refresh, _ := strconv.ParseBool(values.Get("refresh"))

	h.query(w, r, QueryRequest{
		PageRequest: pagination.PageRequestFromQuery(values, h.pagination),
		Keys:        filters.Keys,
		Status:      filters.Status,
		Refresh:     refresh,
	})
}

// Search takes a QueryRequest JSON body.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	req.Normalize(h.pagination)

	h.query(w, r, req)
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request, req QueryRequest) {
	req.Pair = r.PathValue("pair")

	result, err := h.sys.Query(r.Context(), req)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

type recomputeRequest struct {
	Keys []string `json:"keys"`
}

// Recompute rebuilds the pair's cache. The body is optional.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	summary, err := h.sys.Recompute(r.Context(), r.PathValue("pair"), req.Keys)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, summary)
}

func (h *Handler) Staleness(w http.ResponseWriter, r *http.Request) {
	st, err := h.sys.Staleness(r.Context(), r.PathValue("pair"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, st)
}
