package surface

import (
	"strings"

	"golang.org/x/net/html"
)

// EventKind identifies an input event delivered to the surface.
type EventKind int

const (
	EventInsertText EventKind = iota + 1
	EventDeleteBackward
	EventDeleteForward
	EventPointerSelect
	EventNavigate
)

func (k EventKind) String() string {
	switch k {
	case EventInsertText:
		return "insert-text"
	case EventDeleteBackward:
		return "delete-backward"
	case EventDeleteForward:
		return "delete-forward"
	case EventPointerSelect:
		return "pointer-select"
	case EventNavigate:
		return "navigate"
	default:
		return "unknown"
	}
}

// ParseEventKind maps the wire name of an event kind back to its value.
func ParseEventKind(s string) (EventKind, bool) {
	for k := EventInsertText; k <= EventNavigate; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Event is one input event. Target carries the selection a pointer or
// navigation event would land on.
type Event struct {
	Kind   EventKind
	Data   string
	Target Selection

	prevented bool
}

// PreventDefault suppresses the surface's default handling of the event.
func (e *Event) PreventDefault() {
	e.prevented = true
}

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool {
	return e.prevented
}

// ApplyDefault performs the surface's own handling of ev.
func (s *Surface) ApplyDefault(ev *Event) {
	if ev.DefaultPrevented() {
		return
	}
	switch ev.Kind {
	case EventInsertText:
		s.Collapse(s.InsertText(s.Caret(), ev.Data))
	case EventDeleteBackward:
		s.Collapse(s.DeleteBackward(s.Caret()))
	case EventDeleteForward:
		s.Collapse(s.DeleteForward(s.Caret()))
	case EventPointerSelect, EventNavigate:
		s.SetSelection(ev.Target)
	}
}

// InsertText inserts text at pos and returns the position after it.
func (s *Surface) InsertText(pos Position, text string) Position {
	n := pos.Node
	if n == nil || !s.Attached(n) {
		n = s.root
		pos = Position{Node: n, Offset: childCount(n)}
	}
	if n.Type == html.TextNode {
		head, tail := splitRunes(n.Data, pos.Offset)
		n.Data = head + text + tail
		return Position{Node: n, Offset: runeLen(head) + runeLen(text)}
	}
	if prev := ChildAt(n, pos.Offset-1); prev != nil && prev.Type == html.TextNode {
		prev.Data += text
		return Position{Node: prev, Offset: runeLen(prev.Data)}
	}
	t := &html.Node{Type: html.TextNode, Data: text}
	if ref := ChildAt(n, pos.Offset); ref != nil {
		n.InsertBefore(t, ref)
	} else {
		n.AppendChild(t)
	}
	return Position{Node: t, Offset: runeLen(text)}
}

// DeleteBackward removes the character before pos. An element before the
// caret is removed whole.
func (s *Surface) DeleteBackward(pos Position) Position {
	n := pos.Node
	if n == nil || !s.Attached(n) {
		return pos
	}
	if n.Type == html.TextNode {
		pos.Offset = min(pos.Offset, runeLen(n.Data))
	}
	if n.Type == html.TextNode && pos.Offset > 0 {
		head, tail := splitRunes(n.Data, pos.Offset)
		r := []rune(head)
		n.Data = string(r[:len(r)-1]) + tail
		return Position{Node: n, Offset: len(r) - 1}
	}
	prev := before(n, pos)
	if prev == nil {
		return pos
	}
	if prev.Type == html.TextNode {
		r := []rune(prev.Data)
		prev.Data = string(r[:len(r)-1])
		return Position{Node: prev, Offset: len(r) - 1}
	}
	at := s.Remove(prev)
	if n.Type == html.TextNode {
		return pos
	}
	return at
}

// DeleteForward removes the character after pos. An element after the caret
// is removed whole.
func (s *Surface) DeleteForward(pos Position) Position {
	n := pos.Node
	if n == nil || !s.Attached(n) {
		return pos
	}
	if n.Type == html.TextNode && pos.Offset < runeLen(n.Data) {
		head, tail := splitRunes(n.Data, pos.Offset)
		_, rest := splitRunes(tail, 1)
		n.Data = head + rest
		return pos
	}
	next := after(n, pos)
	if next == nil {
		return pos
	}
	if next.Type == html.TextNode {
		_, rest := splitRunes(next.Data, 1)
		next.Data = rest
		return pos
	}
	at := s.Remove(next)
	if n.Type == html.TextNode {
		return pos
	}
	return at
}

// Before returns the sibling immediately preceding pos, skipping empty text.
func Before(pos Position) *html.Node {
	if pos.Node == nil {
		return nil
	}
	return before(pos.Node, pos)
}

// After returns the sibling immediately following pos, skipping empty text.
func After(pos Position) *html.Node {
	if pos.Node == nil {
		return nil
	}
	return after(pos.Node, pos)
}

func before(n *html.Node, pos Position) *html.Node {
	var c *html.Node
	if n.Type == html.TextNode {
		if pos.Offset > 0 {
			return nil
		}
		c = n.PrevSibling
	} else {
		c = ChildAt(n, pos.Offset-1)
	}
	for c != nil && isEmptyText(c) {
		c = c.PrevSibling
	}
	return c
}

func after(n *html.Node, pos Position) *html.Node {
	var c *html.Node
	if n.Type == html.TextNode {
		if pos.Offset < runeLen(n.Data) {
			return nil
		}
		c = n.NextSibling
	} else {
		c = ChildAt(n, pos.Offset)
	}
	for c != nil && isEmptyText(c) {
		c = c.NextSibling
	}
	return c
}

func isEmptyText(n *html.Node) bool {
	return n.Type == html.TextNode && n.Data == ""
}

func childCount(n *html.Node) int {
	i := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		i++
	}
	return i
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}
