package clipboard

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/starford/formulary/internal/convert"
	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/surface"
)

// AttrMarker flags the element carrying a copied formula.
const AttrMarker = "data-formula-clip"

// Source is the part of a formula that travels through the clipboard.
type Source struct {
	Format models.Format
	Kind   models.Kind
	Text   string
}

// SourceOf extracts the clipboard source of n.
func SourceOf(n models.FormulaNode) Source {
	return Source{Format: n.SourceFormat, Kind: n.Kind, Text: n.SourceText}
}

// Payload renders the private marker element for n.
func Payload(n models.FormulaNode) string {
	el := &html.Node{
		Type:     html.ElementNode,
		Data:     "span",
		DataAtom: atom.Span,
		Attr: []html.Attribute{
			{Key: AttrMarker, Val: "1"},
			{Key: surface.AttrFormat, Val: string(n.SourceFormat)},
			{Key: surface.AttrKind, Val: string(n.Kind)},
			{Key: surface.AttrSource, Val: n.SourceText},
		},
	}
	el.AppendChild(&html.Node{Type: html.TextNode, Data: PlainText(n)})
	var buf bytes.Buffer
	_ = html.Render(&buf, el)
	return buf.String()
}

// PlainText is the fallback text for n: the expression verbatim, or the
// markup with its tags stripped.
func PlainText(n models.FormulaNode) string {
	if n.SourceFormat == models.FormatMarkup {
		return convert.StripTags(n.SourceText)
	}
	return n.SourceText
}

// ParsePayload finds the first marker element in s. It reports false when
// there is none or it carries no source text.
func ParsePayload(s string) (Source, bool) {
	if !strings.Contains(s, AttrMarker) {
		return Source{}, false
	}
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(s), ctx)
	if err != nil {
		return Source{}, false
	}
	for _, n := range nodes {
		if el := findMarker(n); el != nil {
			return sourceFrom(el)
		}
	}
	return Source{}, false
}

func findMarker(n *html.Node) *html.Node {
	if n.Type == html.ElementNode {
		if _, ok := surface.Attr(n, AttrMarker); ok {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if el := findMarker(c); el != nil {
			return el
		}
	}
	return nil
}

func sourceFrom(el *html.Node) (Source, bool) {
	text, _ := surface.Attr(el, surface.AttrSource)
	if strings.TrimSpace(text) == "" {
		return Source{}, false
	}
	f, _ := surface.Attr(el, surface.AttrFormat)
	k, _ := surface.Attr(el, surface.AttrKind)
	format, err := models.ParseFormat(f)
	if err != nil {
		return Source{}, false
	}
	kind, err := models.ParseKind(k)
	if err != nil {
		return Source{}, false
	}
	return Source{Format: format, Kind: kind, Text: text}, true
}
