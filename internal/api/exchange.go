package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/starford/formulary/internal/clipboard"
	"github.com/starford/formulary/internal/editor"
	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/serialize"
	"github.com/starford/formulary/internal/storage"
	"github.com/starford/formulary/internal/surface"
)

// Convert handles POST /api/convert.
//
//	@Summary		Convert markup to expression text
//	@Tags			conversion
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConvertRequest	true	"Markup to convert"
//	@Success		200		{object}	ConvertResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/convert [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res := h.ed.Convert(req.Markup)
	writeJSON(w, http.StatusOK, ConvertResponse{
		Expression: res.Expression,
		Tier:       res.Tier.String(),
		Degraded:   res.Degraded(),
	})
}

// Render handles POST /api/render. Nothing is registered.
//
//	@Summary		Render a formula without inserting it
//	@Tags			conversion
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FormulaRequest	true	"Formula to render"
//	@Success		200		{object}	RenderResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/render [post]
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var req FormulaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.ed.Preview(editor.Input{
		Kind:         models.Kind(req.Kind),
		SourceFormat: models.Format(req.SourceFormat),
		SourceText:   req.SourceText,
	})
	if err != nil {
		writeErr(w, "render", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export handles GET /api/export.
//
//	@Summary		Export every formula
//	@Tags			exchange
//	@Produce		json
//	@Produce		html
//	@Param			format	query	string	false	"Export format"	Enums(json, html)
//	@Success		200
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	switch format := r.URL.Query().Get("format"); format {
	case "", storage.FormatJSON:
		data, err := h.ed.ExportJSON()
		if err != nil {
			writeErr(w, "export", err)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case storage.FormatHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, h.ed.ExportHTML())
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("unknown export format "+format))
	}
}

// Import handles POST /api/import. The body is an export document; the
// format comes from the query string or, failing that, the Content-Type.
// Valid entries are committed even when others are rejected.
//
//	@Summary		Import an export document
//	@Tags			exchange
//	@Accept			json
//	@Accept			html
//	@Produce		json
//	@Param			format	query		string	false	"Import format"	Enums(json, html)
//	@Success		200		{object}	serialize.ImportResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = storage.FormatJSON
		if strings.HasPrefix(r.Header.Get("Content-Type"), "text/html") {
			format = storage.FormatHTML
		}
	}

	var res serialize.ImportResult
	switch format {
	case storage.FormatJSON:
		res, err = h.ed.ImportJSON(body)
	case storage.FormatHTML:
		res, err = h.ed.ImportHTML(string(body))
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("unknown import format "+format))
		return
	}
	if err != nil {
		writeErr(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ClipboardCopy handles POST /api/clipboard/copy. It selects the formula and
// returns what a copy would place on the clipboard.
//
//	@Summary		Copy a formula
//	@Tags			clipboard
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CopyRequest	true	"Formula to copy"
//	@Success		200		{object}	ClipboardData
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/clipboard/copy [post]
func (h *Handler) ClipboardCopy(w http.ResponseWriter, r *http.Request) {
	var req CopyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.ed.SelectFormula(req.ID); err != nil {
		writeErr(w, "copy", err)
		return
	}
	cb := clipboard.NewMemory()
	ok, err := h.ed.Copy(cb)
	if err != nil {
		writeErr(w, "copy", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	var out ClipboardData
	out.Formula, _ = cb.GetData(clipboard.MIMEFormula)
	out.HTML, _ = cb.GetData(clipboard.MIMEHTML)
	out.Text, _ = cb.GetData(clipboard.MIMEText)
	writeJSON(w, http.StatusOK, out)
}

// ClipboardPaste handles POST /api/clipboard/paste. A formula on the
// clipboard is inserted at the caret with a fresh id; plain text is typed
// in instead.
//
//	@Summary		Paste clipboard content
//	@Tags			clipboard
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ClipboardData	true	"Clipboard content"
//	@Success		200		{object}	PasteResponse
//	@Success		201		{object}	PasteResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/clipboard/paste [post]
func (h *Handler) ClipboardPaste(w http.ResponseWriter, r *http.Request) {
	var req ClipboardData
	if !decodeBody(w, r, &req) {
		return
	}
	cb := clipboard.NewMemory()
	for _, item := range []struct{ mime, data string }{
		{clipboard.MIMEFormula, req.Formula},
		{clipboard.MIMEHTML, req.HTML},
		{clipboard.MIMEText, req.Text},
	} {
		if item.data != "" {
			_ = cb.SetData(item.mime, item.data)
		}
	}
	n, ok, err := h.ed.Paste(cb)
	if err != nil {
		writeErr(w, "paste", err)
		return
	}
	if ok {
		writeJSON(w, http.StatusCreated, PasteResponse{Pasted: true, Formula: &n})
		return
	}
	if req.Text != "" {
		h.ed.HandleInput(&surface.Event{Kind: surface.EventInsertText, Data: req.Text})
	}
	writeJSON(w, http.StatusOK, PasteResponse{})
}

// Input handles POST /api/input. The event passes the selection guard
// before the surface applies it.
//
//	@Summary		Deliver an editing event to the document
//	@Tags			document
//	@Accept			json
//	@Produce		json
//	@Param			body	body		InputRequest	true	"Editing event"
//	@Success		200		{object}	InputResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/input [post]
func (h *Handler) Input(w http.ResponseWriter, r *http.Request) {
	var req InputRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind, ok := surface.ParseEventKind(req.Kind)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown event kind "+req.Kind))
		return
	}
	if req.Formula != "" {
		if err := h.ed.SelectFormula(req.Formula); err != nil {
			writeErr(w, "input", err)
			return
		}
	}
	ev := &surface.Event{Kind: kind, Data: req.Data, Target: h.ed.Selection()}
	handled := h.ed.HandleInput(ev)
	writeJSON(w, http.StatusOK, InputResponse{Intercepted: handled, Prevented: ev.DefaultPrevented()})
}
