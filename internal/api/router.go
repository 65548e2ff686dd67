package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/formulary/internal/editor"
	"github.com/starford/formulary/internal/index"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// idx backs GET /search and may be nil, in which case search reports 503.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(ed *editor.Editor, idx index.FormulaIndex, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(ed, idx)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Formulas CRUD.
	r.Get("/formulas", h.ListFormulas)
	r.Post("/formulas", h.CreateFormula)
	r.Get("/formulas/{id}", h.GetFormula)
	r.Put("/formulas/{id}", h.UpdateFormula)
	r.Delete("/formulas/{id}", h.DeleteFormula)
	r.Post("/undo", h.Undo)

	// Conversion and preview.
	r.Post("/convert", h.Convert)
	r.Post("/render", h.Render)

	// Export and import.
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)

	// Clipboard round trip.
	r.Post("/clipboard/copy", h.ClipboardCopy)
	r.Post("/clipboard/paste", h.ClipboardPaste)

	r.Get("/search", h.Search)
	r.Get("/document", h.Document)
	r.Post("/input", h.Input)
	r.Get("/stats", h.Stats)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
