// Package surface is the editable document tree that formula elements live
// in. It is built on golang.org/x/net/html nodes under a single root
// container and tracks one selection.
//
// Formula elements carry their identity and source as attributes so that the
// tree is self-describing; the canonical node lives in the registry.
package surface

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Position addresses a point in the tree. For text nodes Offset counts runes;
// for element nodes it is a child index.
type Position struct {
	Node   *html.Node
	Offset int
}

// Selection is an anchor/focus pair. A collapsed selection is the caret.
type Selection struct {
	Anchor Position
	Focus  Position
}

// Collapsed reports whether anchor and focus coincide.
func (s Selection) Collapsed() bool {
	return s.Anchor == s.Focus
}

// Surface is an editable document tree.
type Surface struct {
	root *html.Node
	sel  Selection
}

// New returns an empty surface with the caret at the start.
func New() *Surface {
	root := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "class", Val: "surface"}, {Key: "contenteditable", Val: "true"}},
	}
	s := &Surface{root: root}
	s.sel = Selection{Anchor: Position{Node: root}, Focus: Position{Node: root}}
	return s
}

// Parse builds a surface from an HTML fragment.
func Parse(fragment string) (*Surface, error) {
	s := New()
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, fmt.Errorf("surface: parse: %w", err)
	}
	for _, n := range nodes {
		s.root.AppendChild(n)
	}
	return s, nil
}

// Root returns the root container.
func (s *Surface) Root() *html.Node {
	return s.root
}

// HTML renders the document content without the root container.
func (s *Surface) HTML() string {
	var buf bytes.Buffer
	for c := s.root.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// Selection returns the current selection.
func (s *Surface) Selection() Selection {
	return s.sel
}

// SetSelection replaces the selection.
func (s *Surface) SetSelection(sel Selection) {
	s.sel = sel
}

// Collapse places the caret at pos.
func (s *Surface) Collapse(pos Position) {
	s.sel = Selection{Anchor: pos, Focus: pos}
}

// Caret returns the focus of the selection.
func (s *Surface) Caret() Position {
	return s.sel.Focus
}

// Attached reports whether n is part of this surface's tree.
func (s *Surface) Attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == s.root {
			return true
		}
	}
	return false
}

// ChildIndex returns the index of n among its parent's children, or -1.
func ChildIndex(n *html.Node) int {
	if n == nil || n.Parent == nil {
		return -1
	}
	i := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c == n {
			return i
		}
		i++
	}
	return -1
}

// ChildAt returns the i-th child of n, or nil.
func ChildAt(n *html.Node, i int) *html.Node {
	if n == nil || i < 0 {
		return nil
	}
	c := n.FirstChild
	for ; c != nil && i > 0; i-- {
		c = c.NextSibling
	}
	return c
}

// PathOf returns the child-index path from the root to n, or nil when n is
// not attached.
func (s *Surface) PathOf(n *html.Node) []int {
	var path []int
	for ; n != nil && n != s.root; n = n.Parent {
		path = append(path, ChildIndex(n))
	}
	if n != s.root {
		return nil
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// NodeAt resolves a path produced by PathOf.
func (s *Surface) NodeAt(path []int) *html.Node {
	n := s.root
	for _, i := range path {
		n = ChildAt(n, i)
		if n == nil {
			return nil
		}
	}
	return n
}

// CommonAncestor returns the deepest node containing both a and b.
func CommonAncestor(a, b *html.Node) *html.Node {
	seen := make(map[*html.Node]struct{})
	for n := a; n != nil; n = n.Parent {
		seen[n] = struct{}{}
	}
	for n := b; n != nil; n = n.Parent {
		if _, ok := seen[n]; ok {
			return n
		}
	}
	return nil
}

// insertAt inserts n at pos, splitting a text node when needed, and returns
// the inserted node.
func (s *Surface) insertAt(pos Position, n *html.Node) {
	target := pos.Node
	if target == nil || !s.Attached(target) {
		s.root.AppendChild(n)
		return
	}
	if f := FormulaAncestor(target, s.root); f != nil {
		insertAfter(f, n)
		return
	}
	switch target.Type {
	case html.TextNode:
		head, tail := splitRunes(target.Data, pos.Offset)
		target.Data = head
		insertAfter(target, n)
		if tail != "" {
			insertAfter(n, &html.Node{Type: html.TextNode, Data: tail})
		}
	default:
		if ref := ChildAt(target, pos.Offset); ref != nil {
			target.InsertBefore(n, ref)
		} else {
			target.AppendChild(n)
		}
	}
}

func insertAfter(ref, n *html.Node) {
	if ref.NextSibling != nil {
		ref.Parent.InsertBefore(n, ref.NextSibling)
		return
	}
	ref.Parent.AppendChild(n)
}

// splitRunes splits s at rune offset i, clamping i into range.
func splitRunes(s string, i int) (string, string) {
	if i <= 0 {
		return "", s
	}
	n := 0
	for b := range s {
		if n == i {
			return s[:b], s[b:]
		}
		n++
	}
	return s, ""
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
