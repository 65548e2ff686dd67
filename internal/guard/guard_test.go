package guard

import (
	"testing"

	"golang.org/x/net/html"

	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/surface"
)

type fixture struct {
	s       *surface.Surface
	g       *Guard
	removed []string
}

func newFixture(t *testing.T, fragment string) *fixture {
	t.Helper()
	s, err := surface.Parse(fragment)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fx := &fixture{s: s}
	fx.g = New(s, func(id string) bool {
		fx.removed = append(fx.removed, id)
		el := s.FindFormula(id)
		if el == nil {
			return false
		}
		s.Remove(el)
		return true
	})
	return fx
}

func (fx *fixture) insert(pos surface.Position, id string) *html.Node {
	return fx.s.InsertFormula(pos, models.FormulaNode{
		ID:             id,
		Kind:           models.KindInline,
		SourceFormat:   models.FormatExpression,
		SourceText:     "x^2",
		RenderedMarkup: `<span class="msup">x<sup>2</sup></span>`,
	})
}

func TestClassify(t *testing.T) {
	fx := newFixture(t, "<p>ab</p>")
	p := fx.s.Root().FirstChild
	text := p.FirstChild
	el := fx.insert(surface.Position{Node: text, Offset: 1}, "f1")
	head, tail := el.PrevSibling, el.NextSibling

	cases := []struct {
		name string
		sel  surface.Position
		dir  Direction
		kind StateKind
		side Side
	}{
		{"inside", surface.Position{Node: el.FirstChild}, DirNone, Inside, 0},
		{"after formula backward", surface.Position{Node: tail, Offset: 0}, DirBackward, Adjacent, SideAfter},
		{"before formula forward", surface.Position{Node: head, Offset: 1}, DirForward, Adjacent, SideBefore},
		{"before formula backward", surface.Position{Node: head, Offset: 1}, DirBackward, Outside, 0},
		{"mid text", surface.Position{Node: head, Offset: 0}, DirNone, Outside, 0},
		{"container offset", surface.Position{Node: p, Offset: 2}, DirBackward, Adjacent, SideAfter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := fx.g.Classify(surface.Selection{Anchor: tc.sel, Focus: tc.sel}, tc.dir)
			if st.Kind != tc.kind || st.Side != tc.side {
				t.Fatalf("state = %v/%v, want %v/%v", st.Kind, st.Side, tc.kind, tc.side)
			}
			if st.Kind != Outside && st.Node != el {
				t.Fatal("state does not reference the formula")
			}
		})
	}
}

func TestClassify_DetachedIsOutside(t *testing.T) {
	fx := newFixture(t, "<p>a</p>")
	el := fx.insert(surface.Position{Node: fx.s.Root()}, "f1")
	inner := el.FirstChild
	fx.s.Remove(el)

	pos := surface.Position{Node: inner}
	if st := fx.g.Classify(surface.Selection{Anchor: pos, Focus: pos}, DirNone); st.Kind != Outside {
		t.Fatalf("state = %v, want outside", st.Kind)
	}
}

func TestBackspaceAfterFormula_RemovesIt(t *testing.T) {
	fx := newFixture(t, "")
	el := fx.insert(surface.Position{Node: fx.s.Root()}, "f1")
	fx.s.CaretAfter(el)

	ev := &surface.Event{Kind: surface.EventDeleteBackward}
	if !fx.g.Handle(ev) {
		t.Fatal("backspace not handled")
	}
	if !ev.DefaultPrevented() {
		t.Fatal("default not prevented")
	}
	if len(fx.removed) != 1 || fx.removed[0] != "f1" {
		t.Fatalf("removed = %v", fx.removed)
	}
	if fx.s.Attached(el) {
		t.Fatal("formula still in tree")
	}
}

func TestDeleteBeforeFormula_RemovesIt(t *testing.T) {
	fx := newFixture(t, "<p>a</p>")
	text := fx.s.Root().FirstChild.FirstChild
	fx.insert(surface.Position{Node: text, Offset: 1}, "f1")
	fx.s.Collapse(surface.Position{Node: text, Offset: 1})

	if !fx.g.Handle(&surface.Event{Kind: surface.EventDeleteForward}) {
		t.Fatal("delete not handled")
	}
	if len(fx.removed) != 1 {
		t.Fatalf("removed = %v", fx.removed)
	}
}

func TestBackspaceAwayFromFormula_NotHandled(t *testing.T) {
	fx := newFixture(t, "<p>ab</p>")
	text := fx.s.Root().FirstChild.FirstChild
	fx.insert(surface.Position{Node: text, Offset: 0}, "f1")
	// text is now "" before the formula, tail "ab" after it.
	tail := fx.s.FindFormula("f1").NextSibling
	fx.s.Collapse(surface.Position{Node: tail, Offset: 2})

	ev := &surface.Event{Kind: surface.EventDeleteBackward}
	if fx.g.Handle(ev) || ev.DefaultPrevented() {
		t.Fatal("ordinary backspace intercepted")
	}
}

func TestTypingInsideFormula_MovesCaretOut(t *testing.T) {
	fx := newFixture(t, "")
	el := fx.insert(surface.Position{Node: fx.s.Root()}, "f1")
	fx.s.Collapse(surface.Position{Node: el.FirstChild.FirstChild, Offset: 0})

	ev := &surface.Event{Kind: surface.EventInsertText, Data: "z"}
	if !fx.g.Handle(ev) {
		t.Fatal("insert not handled")
	}
	fx.s.ApplyDefault(ev)
	caret := fx.s.Caret()
	if caret.Node.PrevSibling != el || caret.Offset != 0 {
		t.Fatalf("caret = %+v, want just after formula", caret)
	}
	if surface.Text(el) != "x2" {
		t.Fatalf("formula text changed to %q", surface.Text(el))
	}
}

func TestPointerSelect_ExpandsToFormula(t *testing.T) {
	fx := newFixture(t, "<p>ab</p>")
	text := fx.s.Root().FirstChild.FirstChild
	el := fx.insert(surface.Position{Node: text, Offset: 1}, "f1")
	inner := surface.Position{Node: el.FirstChild, Offset: 0}

	ev := &surface.Event{Kind: surface.EventPointerSelect, Target: surface.Selection{Anchor: inner, Focus: inner}}
	if !fx.g.Handle(ev) {
		t.Fatal("pointer select not handled")
	}
	sel := fx.s.Selection()
	if sel.Anchor.Node != el.Parent || sel.Focus.Offset != sel.Anchor.Offset+1 {
		t.Fatalf("selection = %+v", sel)
	}
	if surface.ChildAt(sel.Anchor.Node, sel.Anchor.Offset) != el {
		t.Fatal("selection does not cover the formula")
	}

	// Deleting the full-extent selection removes the formula.
	if !fx.g.Handle(&surface.Event{Kind: surface.EventDeleteBackward}) {
		t.Fatal("delete of selected formula not handled")
	}
	if fx.s.Attached(el) {
		t.Fatal("formula still attached")
	}
}

func TestPointerSelect_PartialDragExpands(t *testing.T) {
	fx := newFixture(t, "<p>ab</p>")
	text := fx.s.Root().FirstChild.FirstChild
	el := fx.insert(surface.Position{Node: text, Offset: 1}, "f1")
	start := surface.Position{Node: text, Offset: 0}
	inner := surface.Position{Node: el.FirstChild, Offset: 0}

	fx.g.Handle(&surface.Event{Kind: surface.EventPointerSelect, Target: surface.Selection{Anchor: start, Focus: inner}})
	sel := fx.s.Selection()
	if sel.Anchor != start {
		t.Fatalf("anchor moved: %+v", sel.Anchor)
	}
	if sel.Focus.Node != el.Parent || sel.Focus.Offset != surface.ChildIndex(el)+1 {
		t.Fatalf("focus = %+v", sel.Focus)
	}
}

func TestNavigate_SkipsFormula(t *testing.T) {
	fx := newFixture(t, "")
	el := fx.insert(surface.Position{Node: fx.s.Root()}, "f1")
	inner := surface.Position{Node: el.FirstChild}

	fx.g.Handle(&surface.Event{Kind: surface.EventNavigate, Target: surface.Selection{Anchor: inner, Focus: inner}})
	if fx.s.Caret().Node.PrevSibling != el {
		t.Fatal("forward navigation should land after the formula")
	}

	fx.g.Handle(&surface.Event{Kind: surface.EventNavigate, Data: "backward", Target: surface.Selection{Anchor: inner, Focus: inner}})
	caret := fx.s.Caret()
	if caret.Node != fx.s.Root() || caret.Offset != surface.ChildIndex(el) {
		t.Fatalf("caret = %+v, want before formula", caret)
	}
}

func TestHandle_RecoversPanics(t *testing.T) {
	fx := newFixture(t, "")
	el := fx.insert(surface.Position{Node: fx.s.Root()}, "f1")
	fx.s.CaretAfter(el)
	fx.g.remove = func(string) bool { panic("boom") }

	if fx.g.Handle(&surface.Event{Kind: surface.EventDeleteBackward}) {
		t.Fatal("panicking handler reported handled")
	}
}
