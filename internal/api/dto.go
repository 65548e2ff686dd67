package api

import (
	"time"

	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/render"
)

// FormulaRequest is the request body for creating a formula.
type FormulaRequest struct {
	Kind         string `json:"kind" example:"inline"`
	SourceFormat string `json:"sourceFormat" example:"expression"`
	SourceText   string `json:"sourceText" example:"\\frac{a}{b}" validate:"required"`
}

// UpdateFormulaRequest is the request body for updating a formula. Omitted
// fields keep their value.
type UpdateFormulaRequest struct {
	Kind         *string `json:"kind,omitempty" example:"block"`
	SourceFormat *string `json:"sourceFormat,omitempty" example:"expression"`
	SourceText   *string `json:"sourceText,omitempty" example:"\\sqrt{x}"`
}

// Formula is the full formula response type (aliased from the domain layer).
type Formula = models.FormulaNode

// FormulaListResponse wraps paginated formula listings.
type FormulaListResponse struct {
	Formulas []Formula `json:"formulas" validate:"required"`
	Total    int       `json:"total" example:"42" validate:"required"`
}

// OperationSummary describes an undone operation.
type OperationSummary struct {
	Kind      string    `json:"kind" example:"insert"`
	NodeID    string    `json:"nodeId" example:"5f0c..."`
	Timestamp time.Time `json:"timestamp"`
}

// UndoResponse is returned by POST /undo.
type UndoResponse struct {
	Undone    bool              `json:"undone"`
	Operation *OperationSummary `json:"operation,omitempty"`
	CanUndo   bool              `json:"canUndo"`
	CanRedo   bool              `json:"canRedo"`
}

// ConvertRequest is the request body for POST /convert.
type ConvertRequest struct {
	Markup string `json:"markup" example:"<mfrac><mi>a</mi><mi>b</mi></mfrac>" validate:"required"`
}

// ConvertResponse reports the converted expression and the tier that
// produced it.
type ConvertResponse struct {
	Expression string `json:"expression" example:"\\frac{a}{b}"`
	Tier       string `json:"tier" example:"structural"`
	Degraded   bool   `json:"degraded"`
}

// RenderResponse is the derived part of a formula (aliased from the render
// layer).
type RenderResponse = render.Result

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	ID      string `json:"id" validate:"required"`
	Kind    string `json:"kind" example:"inline"`
	Label   string `json:"label" example:"a over b"`
	Snippet string `json:"snippet" example:"...\\frac{a}{b}..."`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// DocumentResponse carries the current document markup.
type DocumentResponse struct {
	HTML     string   `json:"html"`
	Formulas []string `json:"formulas"`
}

// CopyRequest names the formula to copy.
type CopyRequest struct {
	ID string `json:"id" validate:"required"`
}

// ClipboardData is the clipboard content exchanged by the clipboard
// endpoints, one field per MIME type.
type ClipboardData struct {
	Formula string `json:"formula,omitempty"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// PasteResponse reports whether the clipboard held a formula.
type PasteResponse struct {
	Pasted  bool     `json:"pasted"`
	Formula *Formula `json:"formula,omitempty"`
}

// StatsResponse reports editor statistics.
type StatsResponse struct {
	Formulas int          `json:"formulas"`
	History  int          `json:"history"`
	CanUndo  bool         `json:"canUndo"`
	Render   render.Stats `json:"render"`
}

// InputRequest is one editing event. When Formula is set, that formula is
// selected before the event is delivered.
type InputRequest struct {
	Kind    string `json:"kind" example:"delete-backward" validate:"required"`
	Data    string `json:"data,omitempty"`
	Formula string `json:"formula,omitempty"`
}

// InputResponse reports how the event was handled.
type InputResponse struct {
	Intercepted bool `json:"intercepted"`
	Prevented   bool `json:"prevented"`
}
