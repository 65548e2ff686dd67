// Package typeset is a small typesetting engine for the expression language.
//
// It is the default stand-in for an external renderer: it accepts an
// expression and a display-mode flag and returns HTML markup, or a
// *ParseError when the expression is malformed.
package typeset

import (
	"fmt"
	"html"
	"strings"
	"unicode"
)

// ParseError reports a malformed expression.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("typeset: %s at position %d", e.Msg, e.Pos)
}

// Engine renders expressions to HTML.
type Engine struct{}

// New returns an Engine.
func New() *Engine {
	return &Engine{}
}

// Render typesets expr. Display mode lays the formula out as a block.
func (e *Engine) Render(expr string, displayMode bool) (string, error) {
	p := &parser{src: []rune(expr)}
	body, err := p.parseSeq(false)
	if err != nil {
		return "", err
	}
	if p.pos < len(p.src) {
		return "", p.errorf("unexpected %q", string(p.src[p.pos]))
	}
	if displayMode {
		return `<div class="formula formula-display">` + body + `</div>`, nil
	}
	return `<span class="formula formula-inline">` + body + `</span>`, nil
}

var symbols = map[string]string{
	"alpha": "α", "beta": "β", "gamma": "γ", "delta": "δ", "epsilon": "ε",
	"theta": "θ", "lambda": "λ", "mu": "μ", "pi": "π", "sigma": "σ",
	"phi": "φ", "omega": "ω", "Delta": "Δ", "Sigma": "Σ", "Omega": "Ω",
	"infty": "∞", "cdot": "·", "times": "×", "pm": "±", "leq": "≤",
	"geq": "≥", "neq": "≠", "approx": "≈", "sum": "∑", "int": "∫",
	"prod": "∏", "partial": "∂", "to": "→", "in": "∈", ",": " ", ";": " ",
	"{": "{", "}": "}", "\\": "",
}

type parser struct {
	src []rune
	pos int
}

func (p *parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

// parseSeq parses items until EOF or, inside a group, a closing brace.
func (p *parser) parseSeq(inGroup bool) (string, error) {
	var b strings.Builder
	for {
		p.skipSpace()
		if p.eof() {
			if inGroup {
				return "", p.errorf("missing closing brace")
			}
			return b.String(), nil
		}
		if p.src[p.pos] == '}' {
			if !inGroup {
				return "", p.errorf("unbalanced closing brace")
			}
			return b.String(), nil
		}
		item, err := p.parseItem()
		if err != nil {
			return "", err
		}
		b.WriteString(item)
	}
}

func (p *parser) parseItem() (string, error) {
	base, err := p.parseAtom()
	if err != nil {
		return "", err
	}
	for {
		p.skipSpace()
		if p.eof() {
			return base, nil
		}
		var class string
		switch p.src[p.pos] {
		case '^':
			class = "sup"
		case '_':
			class = "sub"
		default:
			return base, nil
		}
		p.pos++
		p.skipSpace()
		if p.eof() || p.src[p.pos] == '}' {
			return "", p.errorf("missing %s script", class)
		}
		script, err := p.parseAtom()
		if err != nil {
			return "", err
		}
		base = `<span class="m` + class + `">` + base + `<span class="` + class + `">` + script + `</span></span>`
	}
}

func (p *parser) parseAtom() (string, error) {
	r := p.src[p.pos]
	switch {
	case r == '{':
		p.pos++
		inner, err := p.parseSeq(true)
		if err != nil {
			return "", err
		}
		p.pos++ // closing brace
		return `<span class="mrow">` + inner + `</span>`, nil
	case r == '\\':
		return p.parseCommand()
	case r == '^' || r == '_':
		return "", p.errorf("script without base")
	case unicode.IsLetter(r):
		p.pos++
		return `<span class="mi">` + html.EscapeString(string(r)) + `</span>`, nil
	case unicode.IsDigit(r):
		start := p.pos
		for !p.eof() && (unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
			p.pos++
		}
		return `<span class="mn">` + string(p.src[start:p.pos]) + `</span>`, nil
	default:
		p.pos++
		return `<span class="mo">` + html.EscapeString(string(r)) + `</span>`, nil
	}
}

func (p *parser) parseCommand() (string, error) {
	p.pos++ // backslash
	if p.eof() {
		return "", p.errorf("dangling backslash")
	}
	start := p.pos
	if unicode.IsLetter(p.src[p.pos]) {
		for !p.eof() && unicode.IsLetter(p.src[p.pos]) {
			p.pos++
		}
	} else {
		p.pos++
	}
	name := string(p.src[start:p.pos])

	switch name {
	case "frac":
		num, err := p.parseArg(name)
		if err != nil {
			return "", err
		}
		den, err := p.parseArg(name)
		if err != nil {
			return "", err
		}
		return `<span class="mfrac"><span class="num">` + num + `</span><span class="den">` + den + `</span></span>`, nil
	case "sqrt":
		index := ""
		p.skipSpace()
		if !p.eof() && p.src[p.pos] == '[' {
			end := p.pos + 1
			for end < len(p.src) && p.src[end] != ']' {
				end++
			}
			if end >= len(p.src) {
				return "", p.errorf("missing closing bracket")
			}
			index = `<span class="root-index">` + html.EscapeString(string(p.src[p.pos+1:end])) + `</span>`
			p.pos = end + 1
		}
		arg, err := p.parseArg(name)
		if err != nil {
			return "", err
		}
		return `<span class="msqrt">` + index + arg + `</span>`, nil
	case "text", "mathrm", "mathbf", "mathit":
		arg, err := p.parseArg(name)
		if err != nil {
			return "", err
		}
		return `<span class="` + name + `">` + arg + `</span>`, nil
	case "left", "right":
		p.skipSpace()
		if p.eof() {
			return "", p.errorf("missing delimiter after \\%s", name)
		}
		d := p.src[p.pos]
		p.pos++
		if d == '\\' && !p.eof() {
			d = p.src[p.pos]
			p.pos++
		}
		if d == '.' {
			return "", nil
		}
		return `<span class="mo delim">` + html.EscapeString(string(d)) + `</span>`, nil
	}

	if sym, ok := symbols[name]; ok {
		return `<span class="mo">` + html.EscapeString(sym) + `</span>`, nil
	}
	return `<span class="mop">` + html.EscapeString(name) + `</span>`, nil
}

// parseArg parses one required command argument: a group or a single atom.
func (p *parser) parseArg(cmd string) (string, error) {
	p.skipSpace()
	if p.eof() || p.src[p.pos] == '}' {
		return "", p.errorf("missing argument for \\%s", cmd)
	}
	return p.parseAtom()
}
