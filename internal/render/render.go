// Package render turns formula sources into visual markup and an
// accessibility label, memoizing every result per (format, source, kind).
package render

import (
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/starford/formulary/internal/convert"
	"github.com/starford/formulary/internal/models"
)

// fallbackPrefixLen is the number of source runes shown in fallback markup.
const fallbackPrefixLen = 20

// Engine is the external typesetting engine. It may fail on malformed input.
type Engine interface {
	Render(expr string, displayMode bool) (string, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(expr string, displayMode bool) (string, error)

// Render calls f.
func (f EngineFunc) Render(expr string, displayMode bool) (string, error) {
	return f(expr, displayMode)
}

// Key identifies a cache entry.
type Key struct {
	Format models.Format
	Source string
	Kind   models.Kind
}

// KeyOf returns the cache key of a node.
func KeyOf(n models.FormulaNode) Key {
	return Key{Format: n.SourceFormat, Source: n.SourceText, Kind: n.Kind}
}

// Result is the derived, cacheable part of a formula node.
type Result struct {
	RenderedMarkup     string `json:"renderedMarkup"`
	AccessibilityLabel string `json:"accessibilityLabel"`
	// Failed is set when the engine rejected the formula and RenderedMarkup
	// holds the fallback placeholder.
	Failed bool `json:"failed,omitempty"`
}

// Stats reports cache activity.
type Stats struct {
	Entries     int `json:"entries"`
	Hits        int `json:"hits"`
	Misses      int `json:"misses"`
	EngineCalls int `json:"engineCalls"`
	Failures    int `json:"failures"`
}

// Renderer is a memoized front to the typesetting engine.
//
// The cache is append-only for the lifetime of the Renderer. Renderer does no
// locking; its owner serializes access.
type Renderer struct {
	engine Engine
	conv   *convert.Engine
	logger *slog.Logger
	cache  map[Key]Result
	stats  Stats
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger used for render failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a Renderer that typesets with engine and converts markup input
// with conv.
func New(engine Engine, conv *convert.Engine, opts ...Option) *Renderer {
	r := &Renderer{
		engine: engine,
		conv:   conv,
		logger: slog.Default(),
		cache:  make(map[Key]Result),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.conv == nil {
		r.conv = convert.New(convert.WithLogger(r.logger))
	}
	return r
}

// Render returns the derived markup and label for node. It never fails.
func (r *Renderer) Render(node models.FormulaNode) Result {
	return r.RenderKey(KeyOf(node))
}

// RenderKey renders the formula identified by key.
func (r *Renderer) RenderKey(key Key) Result {
	if res, ok := r.cache[key]; ok {
		r.stats.Hits++
		return res
	}
	r.stats.Misses++

	expr := key.Source
	degraded := false
	if key.Format == models.FormatMarkup {
		conv := r.conv.Convert(key.Source)
		expr = conv.Expression
		degraded = conv.Degraded()
	}

	res := Result{AccessibilityLabel: Label(expr)}
	if degraded {
		res.AccessibilityLabel = convert.StripTags(key.Source)
	}

	markup, err := r.typeset(expr, key.Kind.DisplayMode())
	if err != nil {
		r.stats.Failures++
		r.logger.Debug("render: engine failed",
			slog.String("format", string(key.Format)),
			slog.String("error", err.Error()))
		res.RenderedMarkup = Fallback(key.Format, key.Source)
		res.Failed = true
	} else {
		res.RenderedMarkup = markup
	}

	r.cache[key] = res
	return res
}

// Lookup returns a cached result without rendering.
func (r *Renderer) Lookup(key Key) (Result, bool) {
	res, ok := r.cache[key]
	return res, ok
}

// Stats returns a snapshot of cache counters.
func (r *Renderer) Stats() Stats {
	s := r.stats
	s.Entries = len(r.cache)
	return s
}

func (r *Renderer) typeset(expr string, display bool) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render: engine panic: %v", p)
		}
	}()
	r.stats.EngineCalls++
	return r.engine.Render(expr, display)
}

// Fallback returns the placeholder shown for a formula the engine rejected.
func Fallback(format models.Format, source string) string {
	runes := []rune(source)
	if len(runes) > fallbackPrefixLen {
		runes = runes[:fallbackPrefixLen]
	}
	return fmt.Sprintf("[%s: %s...]", strings.ToUpper(string(format)), html.EscapeString(string(runes)))
}
