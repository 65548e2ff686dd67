// Package editor wires the formula stores of one editor instance together.
//
// An Editor owns its converter, renderer, registry, document surface,
// selection guard, clipboard bridge, undo history and serializer. Nothing is
// shared between instances. Every exported method takes the editor's mutex,
// so HTTP handlers, MCP tools and the inbox watcher can call in concurrently;
// the components themselves do no locking.
package editor

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/formulary/internal/apperr"
	"github.com/starford/formulary/internal/clipboard"
	"github.com/starford/formulary/internal/convert"
	"github.com/starford/formulary/internal/guard"
	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/registry"
	"github.com/starford/formulary/internal/render"
	"github.com/starford/formulary/internal/serialize"
	"github.com/starford/formulary/internal/surface"
	"github.com/starford/formulary/internal/typeset"
	"github.com/starford/formulary/internal/undo"
)

// Input describes a formula to create or preview.
type Input struct {
	Kind         models.Kind   `json:"kind"`
	SourceFormat models.Format `json:"sourceFormat"`
	SourceText   string        `json:"sourceText"`
}

// normalize applies defaults and validates in.
func (in Input) normalize() (Input, error) {
	kind, err := models.ParseKind(string(in.Kind))
	if err != nil {
		return in, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	format, err := models.ParseFormat(string(in.SourceFormat))
	if err != nil {
		return in, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	if strings.TrimSpace(in.SourceText) == "" {
		return in, fmt.Errorf("%w: sourceText must not be empty", apperr.ErrInvalid)
	}
	return Input{Kind: kind, SourceFormat: format, SourceText: in.SourceText}, nil
}

// Change lists the fields of an update. Nil fields keep their value.
type Change struct {
	Kind         *models.Kind   `json:"kind,omitempty"`
	SourceFormat *models.Format `json:"sourceFormat,omitempty"`
	SourceText   *string        `json:"sourceText,omitempty"`
}

type options struct {
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	engine    render.Engine
	undoLimit int
	maxDepth  int
	document  string
}

// Option configures an Editor.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the time source for node timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDs sets the node id generator. The default generates UUIDs.
func WithIDs(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithEngine replaces the typesetting engine.
func WithEngine(e render.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithUndoLimit sets the number of operations kept for undo.
func WithUndoLimit(n int) Option {
	return func(o *options) { o.undoLimit = n }
}

// WithMaxConversionDepth bounds markup nesting for structural conversion.
func WithMaxConversionDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithDocument seeds the surface with an HTML fragment.
func WithDocument(fragment string) Option {
	return func(o *options) { o.document = fragment }
}

// Editor is one independent editing context.
type Editor struct {
	mu sync.Mutex

	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	conv       *convert.Engine
	renderer   *render.Renderer
	registry   *registry.Registry
	surface    *surface.Surface
	guard      *guard.Guard
	bridge     *clipboard.Bridge
	history    *undo.Stack
	serializer *serialize.Service
}

// New creates an Editor.
func New(opts ...Option) (*Editor, error) {
	o := options{
		logger:    slog.Default(),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
		undoLimit: undo.DefaultLimit,
		maxDepth:  convert.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine == nil {
		o.engine = typeset.New()
	}

	s := surface.New()
	if o.document != "" {
		var err error
		if s, err = surface.Parse(o.document); err != nil {
			return nil, fmt.Errorf("editor: %w", err)
		}
	}

	e := &Editor{
		logger:  o.logger,
		now:     o.now,
		newID:   o.newID,
		surface: s,
	}
	e.conv = convert.New(convert.WithMaxDepth(o.maxDepth), convert.WithLogger(o.logger))
	e.renderer = render.New(o.engine, e.conv, render.WithLogger(o.logger))
	e.registry = registry.New(registry.WithClock(o.now))
	e.history = undo.New(o.undoLimit, undo.WithLogger(o.logger))
	e.guard = guard.New(s, e.deleteLocked, guard.WithLogger(o.logger))
	e.bridge = clipboard.NewBridge(s, e.registry.Get, e.pasteLocked, clipboard.WithLogger(o.logger))
	e.serializer = serialize.New(e.renderer,
		serialize.WithLogger(o.logger),
		serialize.WithClock(o.now),
		serialize.WithIDs(o.newID),
	)
	return e, nil
}

// Insert creates, renders and registers a formula and inserts it at the
// caret. The caret ends up just past the new element.
func (e *Editor) Insert(in Input) (models.FormulaNode, error) {
	in, err := in.normalize()
	if err != nil {
		return models.FormulaNode{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insertLocked(in)
}

func (e *Editor) insertLocked(in Input) (models.FormulaNode, error) {
	now := e.now()
	n := models.FormulaNode{
		ID:           e.newID(),
		Kind:         in.Kind,
		SourceFormat: in.SourceFormat,
		SourceText:   in.SourceText,
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	out := e.renderer.Render(n)
	n.RenderedMarkup, n.AccessibilityLabel = out.RenderedMarkup, out.AccessibilityLabel
	if err := e.registry.Add(n); err != nil {
		return models.FormulaNode{}, fmt.Errorf("editor: insert: %w", err)
	}
	el := e.surface.InsertFormula(e.surface.Caret(), n)
	e.surface.CaretAfter(el)
	e.record(models.OpInsert, n.ID, nil, &n, e.surface.PathOf(el))
	e.logger.Debug("editor: formula inserted", slog.String("id", n.ID), slog.String("kind", string(n.Kind)))
	return n, nil
}

func (e *Editor) pasteLocked(src clipboard.Source) (models.FormulaNode, error) {
	return e.insertLocked(Input{Kind: src.Kind, SourceFormat: src.Format, SourceText: src.Text})
}

// Update changes a formula's source or kind, re-renders it and refreshes its
// ModifiedAt.
func (e *Editor) Update(id string, c Change) (models.FormulaNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateLocked(id, c, nil)
}

// UpdateIf is Update with a precondition evaluated against the current node
// under the editor lock. A rejected precondition fails with
// apperr.ErrConflict and changes nothing.
func (e *Editor) UpdateIf(id string, c Change, match func(models.FormulaNode) bool) (models.FormulaNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateLocked(id, c, match)
}

func (e *Editor) updateLocked(id string, c Change, match func(models.FormulaNode) bool) (models.FormulaNode, error) {
	before, ok := e.registry.Get(id)
	if !ok {
		return models.FormulaNode{}, fmt.Errorf("editor: update %s: %w", id, apperr.ErrNotFound)
	}
	if match != nil && !match(before) {
		return models.FormulaNode{}, fmt.Errorf("editor: update %s: %w", id, apperr.ErrConflict)
	}
	in := Input{Kind: before.Kind, SourceFormat: before.SourceFormat, SourceText: before.SourceText}
	if c.Kind != nil {
		in.Kind = *c.Kind
	}
	if c.SourceFormat != nil {
		in.SourceFormat = *c.SourceFormat
	}
	if c.SourceText != nil {
		in.SourceText = *c.SourceText
	}
	in, err := in.normalize()
	if err != nil {
		return models.FormulaNode{}, err
	}

	candidate := before
	candidate.Kind, candidate.SourceFormat, candidate.SourceText = in.Kind, in.SourceFormat, in.SourceText
	out := e.renderer.Render(candidate)
	after, err := e.registry.Update(id, models.Patch{
		Kind:               &in.Kind,
		SourceFormat:       &in.SourceFormat,
		SourceText:         &in.SourceText,
		RenderedMarkup:     &out.RenderedMarkup,
		AccessibilityLabel: &out.AccessibilityLabel,
	})
	if err != nil {
		return models.FormulaNode{}, fmt.Errorf("editor: update %s: %w", id, err)
	}
	var loc []int
	if el := e.surface.FindFormula(id); el != nil {
		e.surface.UpdateFormula(el, after)
		loc = e.surface.PathOf(el)
	}
	e.record(models.OpUpdate, id, &before, &after, loc)
	return after, nil
}

// Delete removes a formula from the registry and the document.
func (e *Editor) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.deleteLocked(id) {
		return fmt.Errorf("editor: delete %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// deleteLocked is the guard's Remover.
func (e *Editor) deleteLocked(id string) bool {
	n, ok := e.registry.Get(id)
	if !ok {
		// Drop an orphaned element all the same.
		if el := e.surface.FindFormula(id); el != nil {
			e.surface.Remove(el)
		}
		return false
	}
	var loc []int
	if el := e.surface.FindFormula(id); el != nil {
		loc = e.surface.PathOf(el)
		e.surface.Remove(el)
	}
	e.registry.Delete(id)
	e.record(models.OpDelete, id, &n, nil, loc)
	return true
}

func (e *Editor) record(kind models.OpKind, id string, before, after *models.FormulaNode, loc []int) {
	e.history.Record(models.Operation{
		Kind:      kind,
		NodeID:    id,
		Before:    before,
		After:     after,
		Timestamp: e.now(),
		Location:  loc,
	})
}

// Undo reverses the most recent operation. It reports false when there was
// nothing to undo.
func (e *Editor) Undo() (models.Operation, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Undo(reverser{e})
}

// CanUndo reports whether Undo has an operation to reverse.
func (e *Editor) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

// CanRedo always reports false.
func (e *Editor) CanRedo() bool {
	return e.history.CanRedo()
}

// History returns the recorded operations, oldest first.
func (e *Editor) History() []models.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Operations()
}

// Get returns the formula stored under id.
func (e *Editor) Get(id string) (models.FormulaNode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Get(id)
}

// List returns every formula in insertion order.
func (e *Editor) List() []models.FormulaNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.GetAll()
}

// Subscribe registers fn for registry changes. Observers run while the
// editor is locked and must not call back into it.
func (e *Editor) Subscribe(fn registry.Observer) *registry.Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Subscribe(fn)
}

// Document renders the current document as HTML.
func (e *Editor) Document() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface.HTML()
}

// Convert runs markup through the conversion engine.
func (e *Editor) Convert(markup string) convert.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Convert(markup)
}

// Preview renders a formula without registering it.
func (e *Editor) Preview(in Input) (render.Result, error) {
	in, err := in.normalize()
	if err != nil {
		return render.Result{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renderer.RenderKey(render.Key{Format: in.SourceFormat, Source: in.SourceText, Kind: in.Kind}), nil
}

// RenderStats reports render cache statistics.
func (e *Editor) RenderStats() render.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renderer.Stats()
}
