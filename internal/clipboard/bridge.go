package clipboard

import (
	"fmt"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/surface"
)

// Lookup returns the registered node for id.
type Lookup func(id string) (models.FormulaNode, bool)

// Inserter creates, renders, registers and inserts a fresh node at the caret.
type Inserter func(src Source) (models.FormulaNode, error)

// Bridge connects a surface's selection to a Clipboard.
type Bridge struct {
	surface *surface.Surface
	lookup  Lookup
	insert  Inserter
	logger  *slog.Logger
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBridge creates a Bridge.
func NewBridge(s *surface.Surface, lookup Lookup, insert Inserter, opts ...BridgeOption) *Bridge {
	b := &Bridge{surface: s, lookup: lookup, insert: insert, logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Selected returns the formula element the current selection is on, if any.
func (b *Bridge) Selected() *html.Node {
	sel := b.surface.Selection()
	a, f := sel.Anchor, sel.Focus
	if a.Node == nil || f.Node == nil || !b.surface.Attached(a.Node) || !b.surface.Attached(f.Node) {
		return nil
	}
	common := surface.CommonAncestor(a.Node, f.Node)
	if el := b.surface.FormulaAncestor(common); el != nil {
		return el
	}
	if a.Node == f.Node && a.Node.Type == html.ElementNode && f.Offset == a.Offset+1 {
		if el := surface.ChildAt(a.Node, a.Offset); surface.IsFormula(el) {
			return el
		}
	}
	return nil
}

// Copy writes the selected formula to cb. It reports false, leaving cb
// untouched, when the selection is not on a formula.
func (b *Bridge) Copy(cb Clipboard) (bool, error) {
	el := b.Selected()
	if el == nil {
		return false, nil
	}
	id := surface.FormulaID(el)
	node, ok := b.lookup(id)
	if !ok {
		b.logger.Debug("clipboard: formula not registered, copying attributes", slog.String("id", id))
		node = nodeFromElement(el)
	}
	return true, Write(cb, node)
}

// Write puts the private payload and the plain-text fallback for n on cb.
func Write(cb Clipboard, n models.FormulaNode) error {
	payload := Payload(n)
	if err := cb.Clear(); err != nil {
		return fmt.Errorf("clipboard: clear: %w", err)
	}
	for _, item := range []struct{ mime, data string }{
		{MIMEFormula, payload},
		{MIMEHTML, payload},
		{MIMEText, PlainText(n)},
	} {
		if err := cb.SetData(item.mime, item.data); err != nil {
			return fmt.Errorf("clipboard: set %s: %w", item.mime, err)
		}
	}
	return nil
}

// Read returns the formula source on cb, checking the private type first and
// then text/html for the marker.
func Read(cb Clipboard) (Source, bool) {
	for _, mime := range []string{MIMEFormula, MIMEHTML} {
		data, ok := cb.GetData(mime)
		if !ok {
			continue
		}
		if src, ok := ParsePayload(data); ok {
			return src, true
		}
	}
	return Source{}, false
}

// Paste inserts a fresh formula from cb at the caret. It reports false when
// cb holds no formula, leaving the paste to the surface's default handling.
func (b *Bridge) Paste(cb Clipboard) (models.FormulaNode, bool, error) {
	src, ok := Read(cb)
	if !ok {
		return models.FormulaNode{}, false, nil
	}
	n, err := b.insert(src)
	if err != nil {
		return models.FormulaNode{}, true, fmt.Errorf("clipboard: paste: %w", err)
	}
	return n, true, nil
}

func nodeFromElement(el *html.Node) models.FormulaNode {
	n := models.FormulaNode{ID: surface.FormulaID(el)}
	f, _ := surface.Attr(el, surface.AttrFormat)
	k, _ := surface.Attr(el, surface.AttrKind)
	n.SourceFormat, _ = models.ParseFormat(f)
	n.Kind, _ = models.ParseKind(k)
	n.SourceText, _ = surface.Attr(el, surface.AttrSource)
	return n
}
