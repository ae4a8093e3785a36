package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/livevars/internal/apperr"
	"github.com/starford/livevars/internal/index"
	"github.com/starford/livevars/internal/models"
	"github.com/starford/livevars/internal/render"
	"github.com/starford/livevars/internal/resolver"
	"github.com/starford/livevars/internal/session"
	"github.com/starford/livevars/internal/value"
)

// Render formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

const defaultPreviewLength = 50

// Handler holds API route handlers.
type Handler struct {
	sess       *session.Session
	catalog    index.Catalog
	scanner    *render.Scanner
	previewLen int
	highlight  bool
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithPreviewLength sets the default truncation length of property previews.
func WithPreviewLength(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.previewLen = n
		}
	}
}

// WithHighlight wraps substituted values in HTML output in a marker span.
func WithHighlight(on bool) HandlerOption {
	return func(h *Handler) {
		h.highlight = on
	}
}

// NewHandler creates a new Handler.
func NewHandler(sess *session.Session, catalog index.Catalog, scanner *render.Scanner, opts ...HandlerOption) *Handler {
	h := &Handler{
		sess:       sess,
		catalog:    catalog,
		scanner:    scanner,
		previewLen: defaultPreviewLength,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// docPath extracts the document path from the wildcard URL segment.
// Supports encoded slashes from OpenAPI clients (e.g. notes%2Fteam.md).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func scopeParam(w http.ResponseWriter, r *http.Request) (resolver.Scope, bool) {
	scope, err := resolver.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorDetail("invalid scope", err))
		return 0, false
	}
	return scope, true
}

// Resolve handles GET /api/resolve.
//
//	@Summary		Resolve a variable path
//	@Tags			variables
//	@Produce		json
//	@Param			path	query		string	true	"Variable path"
//	@Param			doc		query		string	false	"Current document"
//	@Success		200		{object}	ResolveResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path, doc := q.Get("path"), q.Get("doc")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	v, ok := h.sess.Resolve(path, doc)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{
		Path:     path,
		Document: doc,
		Value:    v,
		Display:  value.Display(v),
		Syntax:   h.scanner.Syntax(path),
	})
}

// Paths handles GET /api/paths.
//
//	@Summary		List variable paths
//	@Tags			variables
//	@Produce		json
//	@Param			q		query		string	false	"Filter"
//	@Param			doc		query		string	false	"Current document"
//	@Param			scope	query		string	false	"Scope"	Enums(local, all)
//	@Param			match	query		string	false	"Match mode"	Enums(contains, prefix)
//	@Success		200		{object}	PathsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/paths [get]
func (h *Handler) Paths(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	doc, filter := q.Get("doc"), q.Get("q")

	var paths []string
	switch q.Get("match") {
	case "", "contains":
		paths = h.sess.FindPathsContaining(filter, scope, doc)
	case "prefix":
		paths = h.sess.FindPathsStartingWith(filter, scope, doc)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("match must be 'contains' or 'prefix'"))
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, PathsResponse{Paths: paths})
}

// Properties handles GET /api/properties.
//
//	@Summary		List variables with value previews
//	@Tags			variables
//	@Produce		json
//	@Param			q			query		string	false	"Filter"
//	@Param			doc			query		string	false	"Current document"
//	@Param			scope		query		string	false	"Scope"	Enums(local, all)
//	@Param			max_length	query		int		false	"Preview length"
//	@Success		200			{object}	PropertiesResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/properties [get]
func (h *Handler) Properties(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	maxLen := h.previewLen
	if s := q.Get("max_length"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("max_length must be a positive integer"))
			return
		}
		maxLen = n
	}
	props := h.sess.Properties(q.Get("q"), scope, q.Get("doc"), maxLen)
	writeJSON(w, http.StatusOK, PropertiesResponse{Properties: props})
}

// SetVariable handles PUT /api/variables.
//
//	@Summary		Write a variable into a document's front matter
//	@Tags			variables
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SetVariableRequest	true	"Variable to write"
//	@Success		200		{object}	VariableResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/variables [put]
func (h *Handler) SetVariable(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SetVariableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Value.IsUndefined() {
		writeJSON(w, http.StatusBadRequest, errorBody("path and value are required"))
		return
	}

	if req.DryRun {
		ch, err := h.sess.Plan(req.Path, req.Document, req.Value)
		if err != nil {
			h.writeSetError(w, req.Path, err)
			return
		}
		writeJSON(w, http.StatusOK, VariableResponse{
			Path:     ch.Path,
			Document: ch.Document,
			Key:      ch.Key,
			Value:    ch.Value,
			Literal:  ch.Literal,
			DryRun:   true,
			Diff:     ch.Diff,
		})
		return
	}

	ch, err := h.sess.Set(r.Context(), req.Path, req.Document, req.Value)
	if err != nil {
		h.writeSetError(w, req.Path, err)
		return
	}
	writeJSON(w, http.StatusOK, VariableResponse{
		Path:      ch.Path,
		Document:  ch.Document,
		Key:       ch.Key,
		Value:     ch.Value,
		Literal:   ch.Literal,
		Persisted: ch.Persisted,
	})
}

func (h *Handler) writeSetError(w http.ResponseWriter, path string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidPath), errors.Is(err, apperr.ErrNoDocument):
		writeJSON(w, http.StatusBadRequest, errorDetail("invalid path", err))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("document not found"))
	case errors.Is(err, apperr.ErrWrite):
		slog.Error("write variable failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorDetail("write failed", err))
	default:
		slog.Error("set variable failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorDetail("set failed", err))
	}
}

// SetOverride handles POST /api/overrides.
//
//	@Summary		Record an in-memory override without touching the vault
//	@Tags			variables
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OverrideRequest	true	"Override"
//	@Success		200		{object}	ResolveResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/overrides [post]
func (h *Handler) SetOverride(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Value.IsUndefined() {
		writeJSON(w, http.StatusBadRequest, errorBody("path and value are required"))
		return
	}
	h.sess.SetOverride(req.Path, req.Document, req.Value)
	writeJSON(w, http.StatusOK, ResolveResponse{
		Path:     req.Path,
		Document: req.Document,
		Value:    req.Value,
		Display:  value.Display(req.Value),
		Syntax:   h.scanner.Syntax(req.Path),
	})
}

// Render handles GET /api/render/*.
//
//	@Summary		Render a document with its variables substituted
//	@Tags			render
//	@Produce		json
//	@Param			path		path		string	true	"Document path"
//	@Param			format		query		string	false	"Output format"	Enums(markdown, html)
//	@Param			highlight	query		bool	false	"Wrap values in a marker span"
//	@Success		200			{object}	RenderResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/render/{path} [get]
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = FormatMarkdown
	}
	if format != FormatMarkdown && format != FormatHTML {
		writeJSON(w, http.StatusBadRequest, errorBody("format must be 'markdown' or 'html'"))
		return
	}
	highlight := h.highlight
	if s := q.Get("highlight"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("highlight must be a boolean"))
			return
		}
		highlight = b
	}

	raw, err := h.sess.Read(path)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrInvalidPath):
			writeJSON(w, http.StatusBadRequest, errorDetail("invalid path", err))
		default:
			slog.Error("read document failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	lookup := func(p string) (value.Value, bool) { return h.sess.Resolve(p, path) }
	content := h.scanner.Substitute(string(raw), lookup)
	if format == FormatHTML {
		content, err = h.scanner.HTML(string(raw), lookup, highlight)
		if err != nil {
			slog.Error("render html failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
	}
	writeJSON(w, http.StatusOK, RenderResponse{Path: path, Format: format, Content: content})
}

// SearchCatalog handles GET /api/catalog/search.
//
//	@Summary		Search indexed front-matter values across the vault
//	@Tags			catalog
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	CatalogSearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/search [get]
func (h *Handler) SearchCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.catalog.SearchValues(q, limit)
	if err != nil {
		slog.Error("catalog search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, CatalogSearchResponse{Results: results})
}

// DocumentsWhere handles GET /api/catalog/documents.
//
//	@Summary		List documents whose property displays as the given value
//	@Tags			catalog
//	@Produce		json
//	@Param			key		query		string	true	"Property key"
//	@Param			value	query		string	true	"Display value"
//	@Success		200		{object}	DocumentsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/documents [get]
func (h *Handler) DocumentsWhere(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, val := q.Get("key"), q.Get("value")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'key' is required"))
		return
	}
	docs, err := h.catalog.DocumentsWhere(key, val)
	if err != nil {
		slog.Error("catalog documents failed", slog.String("key", key), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if docs == nil {
		docs = []string{}
	}
	writeJSON(w, http.StatusOK, DocumentsResponse{Documents: docs})
}

// DocumentProperties handles GET /api/catalog/documents/*.
//
//	@Summary		List the indexed properties of one document
//	@Tags			catalog
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	CatalogSearchResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/documents/{path} [get]
func (h *Handler) DocumentProperties(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	cs, err := h.catalog.GetChecksum(path)
	if err != nil {
		slog.Error("catalog lookup failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if cs == "" {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	props, err := h.catalog.DocumentProperties(path)
	if err != nil {
		slog.Error("catalog properties failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if props == nil {
		props = []models.CatalogEntry{}
	}
	writeJSON(w, http.StatusOK, CatalogSearchResponse{Results: props})
}
