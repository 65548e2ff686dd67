package serialize

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/starford/formulary/internal/apperr"
	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/render"
	"github.com/starford/formulary/internal/surface"
)

// HTML export attributes beyond the ones every formula element carries.
const (
	ClassExport    = "formula-export"
	AttrVersion    = "data-version"
	AttrTimestamp  = "data-timestamp"
	AttrCreatedAt  = "data-created-at"
	AttrModifiedAt = "data-modified-at"
	AttrLabel      = "aria-label"
)

// ExportHTML renders nodes as a fragment: one export container holding a
// formula element per node, with its rendered markup inside.
func (s *Service) ExportHTML(nodes []models.FormulaNode) string {
	root := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: ClassExport},
			{Key: AttrVersion, Val: Version},
			{Key: AttrTimestamp, Val: s.now().UTC().Format(time.RFC3339)},
		},
	}
	for _, n := range nodes {
		el := surface.NewFormulaElement(n)
		surface.SetAttr(el, AttrCreatedAt, n.CreatedAt.UTC().Format(time.RFC3339Nano))
		surface.SetAttr(el, AttrModifiedAt, n.ModifiedAt.UTC().Format(time.RFC3339Nano))
		if n.AccessibilityLabel != "" {
			surface.SetAttr(el, AttrLabel, n.AccessibilityLabel)
		}
		root.AppendChild(el)
	}
	var buf bytes.Buffer
	_ = html.Render(&buf, root)
	return buf.String()
}

// ImportHTML rebuilds nodes from an exported fragment. The embedded markup
// is taken as is and the renderer is not consulted. The fragment must hold an
// export container or at least one formula element.
func (s *Service) ImportHTML(fragment string, t Target) (ImportResult, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		res := ImportResult{Errors: []string{fmt.Sprintf("invalid HTML: %v", err)}}
		return res, fmt.Errorf("serialize: import html: %w: %v", apperr.ErrInvalid, err)
	}
	var elems []*html.Node
	container := false
	for _, n := range nodes {
		collect(n, &elems, &container)
	}
	if !container && len(elems) == 0 {
		msg := "no formula export found"
		return ImportResult{Errors: []string{msg}}, fmt.Errorf("serialize: import html: %w: %s", apperr.ErrInvalid, msg)
	}

	var res ImportResult
	for i, el := range elems {
		e := entryFromElement(el)
		if err := e.Validate(); err != nil {
			s.logger.Warn("serialize: html entry skipped", slog.Int("index", i), slog.String("error", err.Error()))
			res.fail("entry %d: %v", i, err)
			continue
		}
		n := s.build(e, t)
		n.RenderedMarkup = innerHTML(el)
		if n.RenderedMarkup == "" {
			n.RenderedMarkup = render.Fallback(n.SourceFormat, n.SourceText)
		}
		n.AccessibilityLabel, _ = surface.Attr(el, AttrLabel)
		if n.AccessibilityLabel == "" && n.SourceFormat == models.FormatExpression {
			n.AccessibilityLabel = render.Label(n.SourceText)
		}
		if err := t.Register(n); err != nil {
			res.fail("entry %d: %v", i, err)
			continue
		}
		res.Imported++
		res.Nodes = append(res.Nodes, n)
	}
	res.Success = len(res.Errors) == 0
	return res, nil
}

// collect gathers formula elements in document order without descending
// into them.
func collect(n *html.Node, out *[]*html.Node, container *bool) {
	if n.Type == html.ElementNode {
		if hasClass(n, ClassExport) {
			*container = true
		}
		if isFormulaElement(n) {
			*out = append(*out, n)
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, out, container)
	}
}

// isFormulaElement accepts elements flagged by class or by a source
// attribute, so entries with a missing id or source are still reported.
func isFormulaElement(n *html.Node) bool {
	if hasClass(n, surface.ClassFormula) {
		return true
	}
	_, ok := surface.Attr(n, surface.AttrSource)
	return ok
}

func hasClass(n *html.Node, class string) bool {
	v, _ := surface.Attr(n, "class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func entryFromElement(el *html.Node) Entry {
	get := func(key string) string {
		v, _ := surface.Attr(el, key)
		return v
	}
	return Entry{
		ID:           get(surface.AttrID),
		Kind:         get(surface.AttrKind),
		SourceFormat: get(surface.AttrFormat),
		SourceText:   get(surface.AttrSource),
		CreatedAt:    parseTime(get(AttrCreatedAt)),
		ModifiedAt:   parseTime(get(AttrModifiedAt)),
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func innerHTML(el *html.Node) string {
	var buf bytes.Buffer
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}
