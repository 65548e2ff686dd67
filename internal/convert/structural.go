package convert

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errTooDeep = errors.New("markup nesting too deep")

// construct is the closed set of markup constructs the structural tier knows.
type construct int

const (
	constructUnsupported construct = iota
	constructSqrt
	constructSup
	constructSub
	constructFrac
	constructFenced
	constructRow
	constructToken
)

func classify(tag string) construct {
	switch tag {
	case "msqrt":
		return constructSqrt
	case "msup":
		return constructSup
	case "msub":
		return constructSub
	case "mfrac":
		return constructFrac
	case "mfenced":
		return constructFenced
	case "math", "mrow", "mstyle":
		return constructRow
	case "mi", "mn", "mo", "mtext":
		return constructToken
	default:
		return constructUnsupported
	}
}

// element is a parsed markup element. Children hold either elements or text.
type element struct {
	name     string
	attrs    map[string]string
	children []child
}

type child struct {
	el   *element
	text string
}

func (c child) blank() bool {
	return c.el == nil && strings.TrimSpace(c.text) == ""
}

func (el *element) attr(name, def string) string {
	if v, ok := el.attrs[name]; ok {
		return v
	}
	return def
}

// operands returns the non-blank children.
func (el *element) operands() []child {
	out := make([]child, 0, len(el.children))
	for _, c := range el.children {
		if !c.blank() {
			out = append(out, c)
		}
	}
	return out
}

func (el *element) textContent() string {
	var b strings.Builder
	var walk func(*element)
	walk = func(e *element) {
		for _, c := range e.children {
			if c.el != nil {
				walk(c.el)
				continue
			}
			b.WriteString(c.text)
		}
	}
	walk(el)
	return strings.Join(strings.Fields(b.String()), " ")
}

// parseMarkup decodes s strictly into a synthetic root element.
func parseMarkup(s string, maxDepth int) (*element, error) {
	dec := xml.NewDecoder(strings.NewReader(s))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity

	root := &element{}
	stack := []*element{root}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		parent := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) > maxDepth {
				return nil, errTooDeep
			}
			el := &element{name: strings.ToLower(t.Name.Local), attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				el.attrs[strings.ToLower(a.Name.Local)] = a.Value
			}
			parent.children = append(parent.children, child{el: el})
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			parent.children = append(parent.children, child{text: string(t)})
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].name)
	}
	return root, nil
}

func (e *Engine) structural(markup string) (string, error) {
	root, err := parseMarkup(markup, e.maxDepth)
	if err != nil {
		return "", err
	}
	return convertChildren(root.children), nil
}

// convertChildren converts siblings in order and joins them with spaces.
func convertChildren(children []child) string {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		if s := convertChild(c); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func convertChild(c child) string {
	if c.el == nil {
		return strings.TrimSpace(c.text)
	}
	return convertElement(c.el)
}

func convertElement(el *element) string {
	switch classify(el.name) {
	case constructSqrt:
		return `\sqrt{` + convertChildren(el.children) + `}`
	case constructSup:
		return binary(el, func(base, exp string) string { return base + "^{" + exp + "}" })
	case constructSub:
		return binary(el, func(base, sub string) string { return base + "_{" + sub + "}" })
	case constructFrac:
		return binary(el, func(num, den string) string { return `\frac{` + num + "}{" + den + "}" })
	case constructFenced:
		return el.attr("open", "(") + convertChildren(el.children) + el.attr("close", ")")
	case constructRow:
		return convertChildren(el.children)
	case constructToken:
		return strings.TrimSpace(el.textContent())
	case constructUnsupported:
		return el.textContent()
	}
	return el.textContent()
}

// binary builds a two-operand construct. Any other arity degrades to the
// available operands joined in order.
func binary(el *element, build func(a, b string) string) string {
	ops := el.operands()
	if len(ops) != 2 {
		return convertChildren(ops)
	}
	return build(convertChild(ops[0]), convertChild(ops[1]))
}
