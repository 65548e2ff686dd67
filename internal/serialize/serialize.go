// Package serialize exports registered formulas to JSON and HTML documents
// and imports them back with a best-effort policy: every valid entry is
// committed even when others are rejected.
package serialize

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/render"
)

// Version is the export format version written by this package.
const Version = "1.0"

// Entry is one exported node. Derived fields are not part of it.
type Entry struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	SourceFormat string    `json:"sourceFormat"`
	SourceText   string    `json:"sourceText"`
	CreatedAt    time.Time `json:"createdAt"`
	ModifiedAt   time.Time `json:"modifiedAt"`
}

// Validate checks that the entry can become a node.
func (e Entry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.SourceText, validation.Required.Error("must not be empty"),
			validation.By(notBlank)),
		validation.Field(&e.Kind, validation.In("", string(models.KindInline), string(models.KindBlock))),
		validation.Field(&e.SourceFormat, validation.In("", string(models.FormatExpression), string(models.FormatMarkup))),
	)
}

func notBlank(v any) error {
	if s, _ := v.(string); strings.TrimSpace(s) == "" {
		return validation.NewError("validation_blank", "must not be empty")
	}
	return nil
}

// EntryOf converts a node to its export entry.
func EntryOf(n models.FormulaNode) Entry {
	return Entry{
		ID:           n.ID,
		Kind:         string(n.Kind),
		SourceFormat: string(n.SourceFormat),
		SourceText:   n.SourceText,
		CreatedAt:    n.CreatedAt,
		ModifiedAt:   n.ModifiedAt,
	}
}

// Document is the JSON export format.
type Document struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Nodes     []Entry   `json:"nodes"`
}

// ImportResult reports the outcome of an import. Success is false as soon as
// one error occurred, even though valid entries are still committed.
type ImportResult struct {
	Success  bool                 `json:"success"`
	Imported int                  `json:"imported"`
	Errors   []string             `json:"errors"`
	Nodes    []models.FormulaNode `json:"-"`
}

func (r *ImportResult) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Target receives imported nodes.
type Target interface {
	// Has reports whether id is already in use.
	Has(id string) bool
	// Register commits a fully built node.
	Register(n models.FormulaNode) error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source used for export timestamps and missing
// node timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs sets the generator for ids of entries that have none or collide.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// Service is the serialization service of one editor.
type Service struct {
	renderer *render.Renderer
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// New creates a Service that renders JSON imports with r.
func New(r *render.Renderer, opts ...Option) *Service {
	s := &Service{
		renderer: r,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.newID == nil {
		s.newID = sequentialIDs()
	}
	return s
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("imported-%d", n)
	}
}

// build turns a validated entry into a node without derived fields.
func (s *Service) build(e Entry, t Target) models.FormulaNode {
	kind, _ := models.ParseKind(e.Kind)
	format, _ := models.ParseFormat(e.SourceFormat)
	id := strings.TrimSpace(e.ID)
	if id == "" || t.Has(id) {
		id = s.newID()
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	modified := e.ModifiedAt
	if modified.IsZero() {
		modified = created
	}
	return models.FormulaNode{
		ID:           id,
		Kind:         kind,
		SourceFormat: format,
		SourceText:   e.SourceText,
		CreatedAt:    created,
		ModifiedAt:   modified,
	}
}

// ImportEntries renders and registers every valid entry.
func (s *Service) ImportEntries(entries []Entry, t Target) ImportResult {
	in := make([]indexed, len(entries))
	for i, e := range entries {
		in[i] = indexed{index: i, entry: e}
	}
	return s.commit(in, ImportResult{}, t)
}

// indexed is an entry with its position in the source document.
type indexed struct {
	index int
	entry Entry
}

// commit validates, renders and registers entries, appending to the errors
// already collected in res.
func (s *Service) commit(entries []indexed, res ImportResult, t Target) ImportResult {
	for _, in := range entries {
		i, e := in.index, in.entry
		if err := e.Validate(); err != nil {
			s.logger.Warn("serialize: entry skipped", slog.Int("index", i), slog.String("error", err.Error()))
			res.fail("entry %d: %v", i, err)
			continue
		}
		n := s.build(e, t)
		out := s.renderer.Render(n)
		n.RenderedMarkup, n.AccessibilityLabel = out.RenderedMarkup, out.AccessibilityLabel
		if err := t.Register(n); err != nil {
			res.fail("entry %d: %v", i, err)
			continue
		}
		res.Imported++
		res.Nodes = append(res.Nodes, n)
	}
	res.Success = len(res.Errors) == 0
	return res
}
