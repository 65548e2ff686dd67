package surface

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/starford/formulary/internal/models"
)

// Attributes carried by every formula element.
const (
	AttrID     = "data-formula-id"
	AttrFormat = "data-formula-format"
	AttrKind   = "data-formula-kind"
	AttrSource = "data-formula-source"

	ClassFormula = "formula-node"
)

// Attr returns the value of attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets attribute key on n, replacing an existing value.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// IsFormula reports whether n is a formula element.
func IsFormula(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	id, ok := Attr(n, AttrID)
	return ok && id != ""
}

// FormulaID returns the formula id carried by n.
func FormulaID(n *html.Node) string {
	id, _ := Attr(n, AttrID)
	return id
}

// FormulaAncestor walks up from n to the nearest formula element, stopping
// at stop. It returns nil when there is none.
func FormulaAncestor(n, stop *html.Node) *html.Node {
	for ; n != nil && n != stop; n = n.Parent {
		if IsFormula(n) {
			return n
		}
	}
	return nil
}

// FormulaAncestor is FormulaAncestor bounded by this surface's root.
func (s *Surface) FormulaAncestor(n *html.Node) *html.Node {
	return FormulaAncestor(n, s.root)
}

// NewFormulaElement builds the atomic element for node: a span for inline
// formulas, a div for blocks.
func NewFormulaElement(node models.FormulaNode) *html.Node {
	el := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
	if node.Kind == models.KindBlock {
		el.Data, el.DataAtom = "div", atom.Div
	}
	el.Attr = []html.Attribute{
		{Key: "class", Val: ClassFormula},
		{Key: "contenteditable", Val: "false"},
	}
	setFormulaAttrs(el, node)
	setRendered(el, node.RenderedMarkup)
	return el
}

// setRendered replaces the children of el with the parsed rendered markup.
func setRendered(el *html.Node, markup string) {
	for c := el.FirstChild; c != nil; {
		next := c.NextSibling
		el.RemoveChild(c)
		c = next
	}
	if markup == "" {
		return
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), &html.Node{
		Type:     html.ElementNode,
		Data:     el.Data,
		DataAtom: el.DataAtom,
	})
	if err != nil {
		el.AppendChild(&html.Node{Type: html.TextNode, Data: markup})
		return
	}
	for _, n := range nodes {
		el.AppendChild(n)
	}
}

func setFormulaAttrs(el *html.Node, node models.FormulaNode) {
	SetAttr(el, AttrID, node.ID)
	SetAttr(el, AttrFormat, string(node.SourceFormat))
	SetAttr(el, AttrKind, string(node.Kind))
	SetAttr(el, AttrSource, node.SourceText)
}

// InsertFormula inserts an element for node at pos and returns it. A position
// inside another formula inserts after that formula.
func (s *Surface) InsertFormula(pos Position, node models.FormulaNode) *html.Node {
	el := NewFormulaElement(node)
	s.insertAt(pos, el)
	return el
}

// InsertFormulaAt inserts an element for node at a path produced by PathOf.
// Paths that no longer resolve append to the document.
func (s *Surface) InsertFormulaAt(path []int, node models.FormulaNode) *html.Node {
	el := NewFormulaElement(node)
	if len(path) == 0 {
		s.root.AppendChild(el)
		return el
	}
	parent := s.NodeAt(path[:len(path)-1])
	if parent == nil || parent.Type != html.ElementNode || IsFormula(parent) {
		s.root.AppendChild(el)
		return el
	}
	s.insertAt(Position{Node: parent, Offset: path[len(path)-1]}, el)
	return el
}

// AppendFormula appends an element for node at the end of the document.
// Inline formulas go into a trailing paragraph.
func (s *Surface) AppendFormula(node models.FormulaNode) *html.Node {
	el := NewFormulaElement(node)
	if node.Kind == models.KindBlock {
		s.root.AppendChild(el)
		return el
	}
	p := s.root.LastChild
	if p == nil || p.Type != html.ElementNode || p.DataAtom != atom.P {
		p = &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
		s.root.AppendChild(p)
	}
	p.AppendChild(el)
	return el
}

// UpdateFormula rewrites the attributes of el for node. A change of kind
// swaps the element between span and div.
func (s *Surface) UpdateFormula(el *html.Node, node models.FormulaNode) {
	setFormulaAttrs(el, node)
	if node.Kind == models.KindBlock {
		el.Data, el.DataAtom = "div", atom.Div
	} else {
		el.Data, el.DataAtom = "span", atom.Span
	}
	setRendered(el, node.RenderedMarkup)
}

// FindFormula returns the element carrying id, or nil.
func (s *Surface) FindFormula(id string) *html.Node {
	var found *html.Node
	s.walk(func(n *html.Node) bool {
		if IsFormula(n) && FormulaID(n) == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// FormulaIDs lists the ids of all formula elements in document order.
func (s *Surface) FormulaIDs() []string {
	var ids []string
	s.walk(func(n *html.Node) bool {
		if IsFormula(n) {
			ids = append(ids, FormulaID(n))
		}
		return true
	})
	return ids
}

// Remove detaches el and returns the position it occupied. If the selection
// pointed into el, the caret moves to that position.
func (s *Surface) Remove(el *html.Node) Position {
	parent := el.Parent
	if parent == nil {
		return Position{Node: s.root}
	}
	pos := Position{Node: parent, Offset: ChildIndex(el)}
	// Prefer a caret inside the following text run when there is one.
	if next := el.NextSibling; next != nil && next.Type == html.TextNode {
		pos = Position{Node: next, Offset: 0}
	} else if prev := el.PrevSibling; prev != nil && prev.Type == html.TextNode {
		pos = Position{Node: prev, Offset: runeLen(prev.Data)}
	}
	parent.RemoveChild(el)
	if !s.Attached(s.sel.Anchor.Node) || !s.Attached(s.sel.Focus.Node) {
		s.Collapse(pos)
	}
	return pos
}

// CaretAfter places the caret just past el, creating an empty text anchor
// when no text node follows it.
func (s *Surface) CaretAfter(el *html.Node) Position {
	next := el.NextSibling
	if next == nil || next.Type != html.TextNode {
		next = &html.Node{Type: html.TextNode}
		insertAfter(el, next)
	}
	pos := Position{Node: next, Offset: 0}
	s.Collapse(pos)
	return pos
}

// SelectNode selects the full extent of el.
func (s *Surface) SelectNode(el *html.Node) {
	i := ChildIndex(el)
	s.sel = Selection{
		Anchor: Position{Node: el.Parent, Offset: i},
		Focus:  Position{Node: el.Parent, Offset: i + 1},
	}
}

// walk visits nodes depth-first until fn returns false.
func (s *Surface) walk(fn func(*html.Node) bool) {
	var visit func(*html.Node) bool
	visit = func(n *html.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !fn(c) || !visit(c) {
				return false
			}
		}
		return true
	}
	visit(s.root)
}
