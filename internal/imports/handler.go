package imports

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/handlers"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/pagination"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/routes"
)

// Handler provides HTTP endpoints for import operations.
type Handler struct {
	sys           System
	logger        *slog.Logger
	pagination    pagination.Config
	maxUploadSize int64
}

// NewHandler creates a Handler with the given system, logger, pagination config, and upload limit.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "imports"),
		pagination:    pagination,
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for import endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/imports",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/upload", Handler: h.Upload},
			{Method: "GET", Pattern: "/progress/{schema}", Handler: h.Progress},
			{Method: "POST", Pattern: "/{schema}", Handler: h.ImportAll},
			{Method: "DELETE", Pattern: "/{schema}", Handler: h.Cancel},
			{Method: "POST", Pattern: "/{schema}/files/{filename}", Handler: h.ImportSchemaFile},
		},
		Children: []routes.Group{
			{
				Prefix: "/files",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "", Handler: h.Files},
					{Method: "GET", Pattern: "/{id}", Handler: h.FindFile},
					{Method: "GET", Pattern: "/{id}/errors", Handler: h.RowErrors},
					{Method: "POST", Pattern: "/{filename}", Handler: h.ImportFile},
				},
			},
		},
	}
}

// ImportAll starts an import of every pending file of the schema.
func (h *Handler) ImportAll(w http.ResponseWriter, r *http.Request) {
	p, err := h.sys.ImportAll(r.Context(), r.PathValue("schema"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, p)
}

// ImportSchemaFile imports one file with an explicit schema.
func (h *Handler) ImportSchemaFile(w http.ResponseWriter, r *http.Request) {
	schema := r.PathValue("schema")
	h.importFile(w, r, ImportCommand{Filename: r.PathValue("filename"), Schema: &schema})
}

// ImportFile imports one file with the schema inferred from its name or headers.
func (h *Handler) ImportFile(w http.ResponseWriter, r *http.Request) {
	h.importFile(w, r, ImportCommand{Filename: r.PathValue("filename")})
}

func (h *Handler) importFile(w http.ResponseWriter, r *http.Request, cmd ImportCommand) {
	p, err := h.sys.ImportFile(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, p)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, err := h.sys.Cancel(r.PathValue("schema"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, p)
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.sys.Progress(r.PathValue("schema"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, p)
}

// Upload stores a multipart "file" field in the uploads directory.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrInvalidFile)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}
	defer file.Close()

	result, err := h.sys.Upload(r.Context(), filepath.Base(header.Filename), file)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, result)
}

// Files returns a paginated list of imported files filtered by file_type,
// status, facility_code, and filename.
func (h *Handler) Files(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.Files(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) FindFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.fileID(w, r)
	if !ok {
		return
	}

	f, err := h.sys.FindFile(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, f)
}

func (h *Handler) RowErrors(w http.ResponseWriter, r *http.Request) {
	id, ok := h.fileID(w, r)
	if !ok {
		return
	}

	errs, err := h.sys.RowErrors(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, errs)
}

func (h *Handler) fileID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}
