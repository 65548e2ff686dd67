package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/formulary/internal/editor"
	"github.com/starford/formulary/internal/index"
	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/surface"
)

const maxBody = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	ed  *editor.Editor
	idx index.FormulaIndex
}

// NewHandler creates a new Handler.
func NewHandler(ed *editor.Editor, idx index.FormulaIndex) *Handler {
	return &Handler{ed: ed, idx: idx}
}

func etag(n models.FormulaNode) string {
	return `"` + index.Checksum(n) + `"`
}

// ListFormulas handles GET /api/formulas.
//
//	@Summary		List formulas in insertion order
//	@Tags			formulas
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			kind	query		string	false	"Filter by kind"	Enums(inline, block)
//	@Success		200		{object}	FormulaListResponse
//	@Security		BearerAuth
//	@Router			/formulas [get]
func (h *Handler) ListFormulas(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	kind := q.Get("kind")

	items := make([]Formula, 0)
	for _, n := range h.ed.List() {
		if kind == "" || string(n.Kind) == kind {
			items = append(items, n)
		}
	}
	total := len(items)
	if offset > 0 {
		items = items[min(offset, total):]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	writeJSON(w, http.StatusOK, FormulaListResponse{Formulas: items, Total: total})
}

// GetFormula handles GET /api/formulas/{id}.
//
//	@Summary		Get a single formula
//	@Tags			formulas
//	@Produce		json
//	@Param			id	path		string	true	"Formula id"
//	@Success		200	{object}	Formula
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/formulas/{id} [get]
func (h *Handler) GetFormula(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, ok := h.ed.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.Header().Set("ETag", etag(n))
	writeJSON(w, http.StatusOK, n)
}

// CreateFormula handles POST /api/formulas. The formula is inserted at the
// caret and the caret moves past it.
//
//	@Summary		Insert a new formula
//	@Tags			formulas
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FormulaRequest	true	"Formula to insert"
//	@Success		201		{object}	Formula
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/formulas [post]
func (h *Handler) CreateFormula(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var req FormulaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	n, err := h.ed.Insert(editor.Input{
		Kind:         models.Kind(req.Kind),
		SourceFormat: models.Format(req.SourceFormat),
		SourceText:   req.SourceText,
	})
	if err != nil {
		writeErr(w, "create formula", err)
		return
	}
	w.Header().Set("ETag", etag(n))
	writeJSON(w, http.StatusCreated, n)
}

// UpdateFormula handles PUT /api/formulas/{id}.
//
//	@Summary		Update a formula with optimistic concurrency
//	@Tags			formulas
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string					true	"Formula id"
//	@Param			If-Match	header		string					false	"Checksum for optimistic concurrency"
//	@Param			body		body		UpdateFormulaRequest	true	"Changed fields"
//	@Success		200			{object}	Formula
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/formulas/{id} [put]
func (h *Handler) UpdateFormula(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	id := chi.URLParam(r, "id")
	var req UpdateFormulaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	var c editor.Change
	if req.Kind != nil {
		k := models.Kind(*req.Kind)
		c.Kind = &k
	}
	if req.SourceFormat != nil {
		f := models.Format(*req.SourceFormat)
		c.SourceFormat = &f
	}
	c.SourceText = req.SourceText

	// Strip surrounding quotes if present (standard ETag format).
	var match func(models.FormulaNode) bool
	if ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`); ifMatch != "" {
		match = func(cur models.FormulaNode) bool { return index.Checksum(cur) == ifMatch }
	}

	n, err := h.ed.UpdateIf(id, c, match)
	if err != nil {
		writeErr(w, "update formula", err)
		return
	}
	w.Header().Set("ETag", etag(n))
	writeJSON(w, http.StatusOK, n)
}

// DeleteFormula handles DELETE /api/formulas/{id}.
//
//	@Summary		Delete a formula
//	@Tags			formulas
//	@Param			id	path	string	true	"Formula id"
//	@Success		204	"Formula deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/formulas/{id} [delete]
func (h *Handler) DeleteFormula(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.ed.Delete(id); err != nil {
		writeErr(w, "delete formula", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Undo handles POST /api/undo.
//
//	@Summary		Reverse the most recent formula operation
//	@Tags			formulas
//	@Produce		json
//	@Success		200	{object}	UndoResponse
//	@Security		BearerAuth
//	@Router			/undo [post]
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	op, ok, err := h.ed.Undo()
	if err != nil {
		writeErr(w, "undo", err)
		return
	}
	resp := UndoResponse{Undone: ok, CanUndo: h.ed.CanUndo(), CanRedo: h.ed.CanRedo()}
	if ok {
		resp.Operation = &OperationSummary{Kind: string(op.Kind), NodeID: op.NodeID, Timestamp: op.Timestamp}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across formula sources and labels
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	if h.idx == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("search index not configured"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.idx.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{ID: hit.ID, Kind: hit.Kind, Label: hit.Label, Snippet: hit.Snippet})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Document handles GET /api/document.
//
//	@Summary		Get the document markup and the formula order
//	@Tags			document
//	@Produce		json
//	@Success		200	{object}	DocumentResponse
//	@Security		BearerAuth
//	@Router			/document [get]
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	var resp DocumentResponse
	h.ed.View(func(s *surface.Surface) {
		resp.HTML = s.HTML()
		resp.Formulas = s.FormulaIDs()
	})
	if resp.Formulas == nil {
		resp.Formulas = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Stats handles GET /api/stats.
//
//	@Summary		Editor and render cache statistics
//	@Tags			document
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Formulas: len(h.ed.List()),
		History:  len(h.ed.History()),
		CanUndo:  h.ed.CanUndo(),
		Render:   h.ed.RenderStats(),
	})
}

// decodeBody reads a JSON body, reporting a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}
