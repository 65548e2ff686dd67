// Package guard keeps formula elements atomic with respect to caret
// movement, text input and deletion on an editable surface.
package guard

import (
	"log/slog"

	"golang.org/x/net/html"

	"github.com/starford/formulary/internal/surface"
)

// StateKind classifies a selection relative to formula elements.
type StateKind int

const (
	Outside StateKind = iota
	Inside
	Adjacent
)

func (k StateKind) String() string {
	switch k {
	case Inside:
		return "inside-formula"
	case Adjacent:
		return "adjacent-formula"
	default:
		return "outside-formula"
	}
}

// Side says on which side of the formula the caret sits.
type Side int

const (
	SideBefore Side = iota + 1
	SideAfter
)

func (s Side) String() string {
	switch s {
	case SideBefore:
		return "before"
	case SideAfter:
		return "after"
	default:
		return ""
	}
}

// Direction is the direction an input event acts in.
type Direction int

const (
	DirNone Direction = iota
	DirBackward
	DirForward
)

// State is the result of Classify. Node is the formula element for Inside
// and Adjacent states.
type State struct {
	Kind StateKind
	Node *html.Node
	Side Side
}

// Remover deletes the formula with the given id from the registry and the
// tree as one unit.
type Remover func(id string) bool

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// Guard intercepts input events on one surface.
type Guard struct {
	surface *surface.Surface
	remove  Remover
	logger  *slog.Logger
}

// New creates a Guard for s.
func New(s *surface.Surface, remove Remover, opts ...Option) *Guard {
	g := &Guard{surface: s, remove: remove, logger: slog.Default()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Classify determines the state of sel. The direction decides which
// neighbour is inspected for a collapsed selection; DirNone looks behind the
// caret first, then ahead of it.
func (g *Guard) Classify(sel surface.Selection, dir Direction) State {
	a, f := sel.Anchor, sel.Focus
	if a.Node == nil || f.Node == nil || !g.surface.Attached(a.Node) || !g.surface.Attached(f.Node) {
		return State{Kind: Outside}
	}
	if el := g.surface.FormulaAncestor(a.Node); el != nil {
		return State{Kind: Inside, Node: el}
	}
	if el := g.surface.FormulaAncestor(f.Node); el != nil {
		return State{Kind: Inside, Node: el}
	}
	if !sel.Collapsed() {
		// A range covering exactly one formula element.
		if a.Node == f.Node && a.Node.Type == html.ElementNode && f.Offset == a.Offset+1 {
			if el := surface.ChildAt(a.Node, a.Offset); surface.IsFormula(el) {
				return State{Kind: Inside, Node: el}
			}
		}
		return State{Kind: Outside}
	}
	if dir != DirForward {
		if el := surface.Before(f); surface.IsFormula(el) {
			return State{Kind: Adjacent, Node: el, Side: SideAfter}
		}
	}
	if dir != DirBackward {
		if el := surface.After(f); surface.IsFormula(el) {
			return State{Kind: Adjacent, Node: el, Side: SideBefore}
		}
	}
	return State{Kind: Outside}
}

// Handle applies the atomicity policy to ev. It reports whether the guard
// took over the event, in which case the default is prevented. Handle never
// panics.
func (g *Guard) Handle(ev *surface.Event) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("guard: handler panicked",
				slog.String("event", ev.Kind.String()),
				slog.Any("panic", r),
			)
			handled = false
		}
	}()

	switch ev.Kind {
	case surface.EventInsertText:
		st := g.Classify(g.surface.Selection(), DirNone)
		if st.Kind != Inside {
			return false
		}
		ev.PreventDefault()
		g.surface.CaretAfter(st.Node)
		return true

	case surface.EventDeleteBackward:
		st := g.Classify(g.surface.Selection(), DirBackward)
		if st.Kind == Inside || (st.Kind == Adjacent && st.Side == SideAfter) {
			return g.removeNode(ev, st)
		}

	case surface.EventDeleteForward:
		st := g.Classify(g.surface.Selection(), DirForward)
		if st.Kind == Inside || (st.Kind == Adjacent && st.Side == SideBefore) {
			return g.removeNode(ev, st)
		}

	case surface.EventPointerSelect:
		return g.expand(ev)

	case surface.EventNavigate:
		return g.skip(ev)
	}
	return false
}

func (g *Guard) removeNode(ev *surface.Event, st State) bool {
	ev.PreventDefault()
	id := surface.FormulaID(st.Node)
	if !g.remove(id) {
		g.logger.Debug("guard: formula already gone", slog.String("id", id))
	}
	return true
}

// expand widens a pointer selection so that no formula is partially covered.
func (g *Guard) expand(ev *surface.Event) bool {
	a, f := ev.Target.Anchor, ev.Target.Focus
	if a.Node == nil || f.Node == nil || !g.surface.Attached(a.Node) || !g.surface.Attached(f.Node) {
		return false
	}
	fa := g.surface.FormulaAncestor(a.Node)
	ff := g.surface.FormulaAncestor(f.Node)
	if fa == nil && ff == nil {
		return false
	}
	ev.PreventDefault()
	if fa != nil && fa == ff {
		g.surface.SelectNode(fa)
		return true
	}
	if fa != nil {
		a = surface.Position{Node: fa.Parent, Offset: surface.ChildIndex(fa)}
	}
	if ff != nil {
		f = surface.Position{Node: ff.Parent, Offset: surface.ChildIndex(ff) + 1}
	}
	g.surface.SetSelection(surface.Selection{Anchor: a, Focus: f})
	return true
}

// skip moves a caret that would land inside a formula to its edge. Data
// "backward" lands before the formula; anything else lands after it.
func (g *Guard) skip(ev *surface.Event) bool {
	pos := ev.Target.Focus
	if pos.Node == nil || !g.surface.Attached(pos.Node) {
		return false
	}
	el := g.surface.FormulaAncestor(pos.Node)
	if el == nil {
		return false
	}
	ev.PreventDefault()
	if ev.Data == "backward" {
		g.surface.Collapse(surface.Position{Node: el.Parent, Offset: surface.ChildIndex(el)})
		return true
	}
	g.surface.CaretAfter(el)
	return true
}
