// Package convert translates the markup interchange format (MathML-like) into
// the expression language (LaTeX-like).
//
// Conversion runs in three tiers. A structural walk over the parsed markup is
// tried first; malformed markup falls back to pattern extraction on the raw
// string; when no pattern applies the tag-stripped text is returned. The
// engine never returns an error.
package convert

import (
	"fmt"
	"log/slog"
	"strings"
)

// DefaultMaxDepth bounds element nesting accepted by the structural tier.
const DefaultMaxDepth = 64

// Tier identifies which conversion strategy produced a result.
type Tier int

const (
	TierStructural Tier = iota + 1
	TierPattern
	TierRawText
)

func (t Tier) String() string {
	switch t {
	case TierStructural:
		return "structural"
	case TierPattern:
		return "pattern"
	case TierRawText:
		return "raw-text"
	default:
		return "unknown"
	}
}

// Result is the outcome of a conversion.
type Result struct {
	Expression string
	Tier       Tier
}

// Degraded reports whether conversion had to give up on structure entirely.
func (r Result) Degraded() bool {
	return r.Tier == TierRawText
}

// Engine converts markup to expression text.
type Engine struct {
	maxDepth int
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth sets the nesting limit of the structural tier. Deeper input
// falls through to the pattern tier.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithLogger sets the logger used to report tier fallbacks.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ToExpression converts markup to expression text. It never fails; the result
// may be empty.
func (e *Engine) ToExpression(markup string) string {
	return e.Convert(markup).Expression
}

// Convert converts markup and reports which tier produced the result.
func (e *Engine) Convert(markup string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("convert: recovered from panic", slog.String("panic", fmt.Sprint(r)))
			res = Result{Expression: StripTags(markup), Tier: TierRawText}
		}
	}()

	expr, err := e.structural(markup)
	if err == nil && strings.TrimSpace(expr) != "" {
		return Result{Expression: expr, Tier: TierStructural}
	}
	if err != nil {
		e.logger.Debug("convert: structural parse failed", slog.String("error", err.Error()))
	}

	if expr := extractPatterns(markup); expr != "" {
		return Result{Expression: expr, Tier: TierPattern}
	}

	return Result{Expression: StripTags(markup), Tier: TierRawText}
}
