package editor

import (
	"fmt"
	"log/slog"

	"github.com/starford/formulary/internal/apperr"
	"github.com/starford/formulary/internal/clipboard"
	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/serialize"
	"github.com/starford/formulary/internal/surface"
)

// HandleInput delivers an input event: the selection guard sees it first and
// the surface's default handling runs unless the guard prevented it. It
// reports whether the guard took over.
func (e *Editor) HandleInput(ev *surface.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	handled := e.guard.Handle(ev)
	e.surface.ApplyDefault(ev)
	e.reconcileLocked()
	return handled
}

// Select replaces the surface selection.
func (e *Editor) Select(sel surface.Selection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.surface.SetSelection(sel)
}

// Selection returns the surface selection.
func (e *Editor) Selection() surface.Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface.Selection()
}

// SelectFormula selects the full extent of the formula id.
func (e *Editor) SelectFormula(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	el := e.surface.FindFormula(id)
	if el == nil {
		return fmt.Errorf("editor: select %s: %w", id, apperr.ErrNotFound)
	}
	e.surface.SelectNode(el)
	return nil
}

// View runs fn with the surface while the editor is locked.
func (e *Editor) View(fn func(s *surface.Surface)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.surface)
}

// Copy writes the selected formula to cb.
func (e *Editor) Copy(cb clipboard.Clipboard) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bridge.Copy(cb)
}

// Paste inserts a fresh copy of the formula on cb at the caret. It reports
// false when cb holds no formula.
func (e *Editor) Paste(cb clipboard.Clipboard) (models.FormulaNode, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bridge.Paste(cb)
}

// ExportJSON encodes every formula as a JSON export document.
func (e *Editor) ExportJSON() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serializer.ExportJSON(e.registry.GetAll())
}

// ExportHTML renders every formula as an HTML export fragment.
func (e *Editor) ExportHTML() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serializer.ExportHTML(e.registry.GetAll())
}

// ImportJSON imports a JSON export document. Imported formulas are appended
// to the document and can be undone one by one.
func (e *Editor) ImportJSON(data []byte) (serialize.ImportResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serializer.ImportJSON(data, importTarget{e: e, record: true})
}

// ImportHTML imports an HTML export fragment.
func (e *Editor) ImportHTML(fragment string) (serialize.ImportResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serializer.ImportHTML(fragment, importTarget{e: e, record: true})
}

// Restore loads entries from a previous session. Restored formulas are not
// undoable.
func (e *Editor) Restore(entries []serialize.Entry) serialize.ImportResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serializer.ImportEntries(entries, importTarget{e: e})
}

type importTarget struct {
	e      *Editor
	record bool
}

func (t importTarget) Has(id string) bool {
	_, ok := t.e.registry.Get(id)
	return ok
}

func (t importTarget) Register(n models.FormulaNode) error {
	if err := t.e.registry.Add(n); err != nil {
		return err
	}
	el := t.e.surface.AppendFormula(n)
	if t.record {
		t.e.record(models.OpInsert, n.ID, nil, &n, t.e.surface.PathOf(el))
	}
	return nil
}

// Reconcile deletes registered formulas whose element is no longer in the
// document and returns their ids.
func (e *Editor) Reconcile() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconcileLocked()
}

func (e *Editor) reconcileLocked() []string {
	present := make(map[string]struct{})
	for _, id := range e.surface.FormulaIDs() {
		present[id] = struct{}{}
	}
	var removed []string
	for _, n := range e.registry.GetAll() {
		if _, ok := present[n.ID]; ok {
			continue
		}
		e.registry.Delete(n.ID)
		e.record(models.OpDelete, n.ID, &n, nil, nil)
		removed = append(removed, n.ID)
		e.logger.Info("editor: orphaned formula removed", slog.String("id", n.ID))
	}
	return removed
}

// reverser applies undo operations while the editor is locked.
type reverser struct {
	e *Editor
}

func (r reverser) ReverseInsert(op models.Operation) error {
	if _, ok := r.e.registry.Delete(op.NodeID); !ok {
		return fmt.Errorf("editor: undo insert %s: %w", op.NodeID, apperr.ErrNotFound)
	}
	if el := r.e.surface.FindFormula(op.NodeID); el != nil {
		r.e.surface.Remove(el)
	}
	return nil
}

func (r reverser) ReverseDelete(op models.Operation) error {
	if op.Before == nil {
		return fmt.Errorf("editor: undo delete %s: %w", op.NodeID, apperr.ErrInvalid)
	}
	n := *op.Before
	if err := r.e.registry.Add(n); err != nil {
		return fmt.Errorf("editor: undo delete %s: %w", op.NodeID, err)
	}
	if r.e.surface.FindFormula(n.ID) == nil {
		r.e.surface.InsertFormulaAt(op.Location, n)
	}
	return nil
}

func (r reverser) ReverseUpdate(op models.Operation) error {
	if op.Before == nil {
		return fmt.Errorf("editor: undo update %s: %w", op.NodeID, apperr.ErrInvalid)
	}
	if err := r.e.registry.Restore(*op.Before); err != nil {
		return fmt.Errorf("editor: undo update %s: %w", op.NodeID, err)
	}
	if el := r.e.surface.FindFormula(op.NodeID); el != nil {
		r.e.surface.UpdateFormula(el, *op.Before)
	}
	return nil
}
