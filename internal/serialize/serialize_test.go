package serialize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/starford/formulary/internal/apperr"
	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/render"
	"github.com/starford/formulary/internal/typeset"
)

var fixed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memTarget struct {
	nodes map[string]models.FormulaNode
	order []string
}

func newTarget() *memTarget {
	return &memTarget{nodes: map[string]models.FormulaNode{}}
}

func (m *memTarget) Has(id string) bool {
	_, ok := m.nodes[id]
	return ok
}

func (m *memTarget) Register(n models.FormulaNode) error {
	if m.Has(n.ID) {
		return fmt.Errorf("register %s: %w", n.ID, apperr.ErrAlreadyExists)
	}
	m.nodes[n.ID] = n
	m.order = append(m.order, n.ID)
	return nil
}

func newService() *Service {
	return New(render.New(typeset.New(), nil), WithClock(func() time.Time { return fixed }))
}

func TestImportJSON_BestEffort(t *testing.T) {
	payload := `{
		"version": "1.0",
		"timestamp": "2026-03-01T00:00:00Z",
		"nodes": [
			{"id": "a", "kind": "inline", "sourceFormat": "expression", "sourceText": "x^2"},
			{"id": "b", "kind": "block", "sourceFormat": "markup", "sourceText": "<mfrac><mi>a</mi><mi>b</mi></mfrac>"},
			{"id": "c", "kind": "inline", "sourceFormat": "expression", "sourceText": ""},
			{"id": "d", "sourceText": "\\sqrt{y}"}
		]
	}`
	tgt := newTarget()
	res, err := newService().ImportJSON([]byte(payload), tgt)
	if err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}
	if res.Success || res.Imported != 3 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Errors[0], "entry 2") {
		t.Errorf("error = %q, want it to name entry 2", res.Errors[0])
	}
	if len(tgt.nodes) != 3 || tgt.Has("c") {
		t.Fatalf("registered = %v", tgt.order)
	}
	d := tgt.nodes["d"]
	if d.Kind != models.KindInline || d.SourceFormat != models.FormatExpression {
		t.Errorf("defaults not applied: %+v", d)
	}
	if d.RenderedMarkup == "" || d.AccessibilityLabel != "square root of y" {
		t.Errorf("d not rendered: %+v", d)
	}
	if !d.CreatedAt.Equal(fixed) || !d.ModifiedAt.Equal(fixed) {
		t.Errorf("missing timestamps not filled: %v %v", d.CreatedAt, d.ModifiedAt)
	}
}

func TestImportJSON_MalformedEntryKeepsOthers(t *testing.T) {
	cases := []struct {
		name, bad string
	}{
		{"wrong type", `{"id":"d","sourceText":5}`},
		{"bad timestamp", `{"id":"d","sourceText":"y","createdAt":"yesterday"}`},
		{"not an object", `"d"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := `{"version":"1.0","nodes":[
				{"id":"a","sourceText":"x^2"},
				` + tc.bad + `,
				{"id":"b","sourceText":"\\sqrt{y}"},
				{"id":"c","kind":"block","sourceText":"z"}
			]}`
			tgt := newTarget()
			res, err := newService().ImportJSON([]byte(payload), tgt)
			if err != nil {
				t.Fatalf("ImportJSON: %v", err)
			}
			if res.Success || res.Imported != 3 || len(res.Errors) != 1 {
				t.Fatalf("result = %+v", res)
			}
			if !strings.Contains(res.Errors[0], "entry 1") {
				t.Errorf("error = %q, want it to name entry 1", res.Errors[0])
			}
			if !tgt.Has("a") || !tgt.Has("b") || !tgt.Has("c") || tgt.Has("d") {
				t.Errorf("registered = %v", tgt.order)
			}
		})
	}
}

func TestImportJSON_NotAnObject(t *testing.T) {
	for _, payload := range []string{`[1,2]`, `null`, `"nodes"`} {
		res, err := newService().ImportJSON([]byte(payload), newTarget())
		if !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("%s: err = %v, want ErrInvalid", payload, err)
		}
		if res.Imported != 0 || len(res.Errors) != 1 {
			t.Errorf("%s: result = %+v", payload, res)
		}
	}
}

func TestImportJSON_AllValidSucceeds(t *testing.T) {
	payload := `{"version":"1.0","nodes":[{"sourceText":"a"},{"sourceText":"b"}],"extra":true}`
	res, err := newService().ImportJSON([]byte(payload), newTarget())
	if err != nil || !res.Success || res.Imported != 2 {
		t.Fatalf("result = %+v, err = %v", res, err)
	}
}

func TestImportJSON_InvalidPayload(t *testing.T) {
	res, err := newService().ImportJSON([]byte(`{"nodes": [`), newTarget())
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	if res.Success || res.Imported != 0 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestImportJSON_OtherVersionAccepted(t *testing.T) {
	res, err := newService().ImportJSON([]byte(`{"version":"2.0","nodes":[{"sourceText":"z"}]}`), newTarget())
	if err != nil || res.Imported != 1 {
		t.Fatalf("result = %+v, err = %v", res, err)
	}
}

func TestImportJSON_InvalidKindRejected(t *testing.T) {
	res, _ := newService().ImportJSON([]byte(`{"nodes":[{"kind":"huge","sourceText":"z"},{"sourceFormat":"latex","sourceText":"z"}]}`), newTarget())
	if res.Imported != 0 || len(res.Errors) != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestImport_CollidingIDGetsFreshOne(t *testing.T) {
	tgt := newTarget()
	_ = tgt.Register(models.FormulaNode{ID: "a"})
	res, _ := newService().ImportJSON([]byte(`{"nodes":[{"id":"a","sourceText":"z"},{"sourceText":"w"}]}`), tgt)
	if res.Imported != 2 {
		t.Fatalf("result = %+v", res)
	}
	for _, n := range res.Nodes {
		if n.ID == "a" || n.ID == "" {
			t.Fatalf("imported id %q", n.ID)
		}
	}
}

func TestExportJSON_ExcludesDerivedFields(t *testing.T) {
	n := models.FormulaNode{
		ID: "a", Kind: models.KindBlock, SourceFormat: models.FormatExpression, SourceText: "x",
		RenderedMarkup: "<b>x</b>", AccessibilityLabel: "x", CreatedAt: fixed, ModifiedAt: fixed,
	}
	data, err := newService().ExportJSON([]models.FormulaNode{n})
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	if strings.Contains(string(data), "renderedMarkup") || strings.Contains(string(data), "accessibilityLabel") {
		t.Fatalf("export contains derived fields: %s", data)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Version != Version || !doc.Timestamp.Equal(fixed) || len(doc.Nodes) != 1 || doc.Nodes[0].SourceText != "x" || doc.Nodes[0].Kind != "block" {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestHTML_RoundTrip(t *testing.T) {
	src := newService()
	nodes := []models.FormulaNode{
		{ID: "a", Kind: models.KindInline, SourceFormat: models.FormatExpression, SourceText: `\frac{1}{2}`,
			RenderedMarkup: `<span class="formula">½</span>`, AccessibilityLabel: "fraction 1 over 2", CreatedAt: fixed, ModifiedAt: fixed},
		{ID: "b", Kind: models.KindBlock, SourceFormat: models.FormatMarkup, SourceText: `<mi>x</mi>`,
			RenderedMarkup: `<div class="formula">x</div>`, AccessibilityLabel: "x", CreatedAt: fixed, ModifiedAt: fixed},
	}
	out := src.ExportHTML(nodes)
	if !strings.Contains(out, `class="formula-export"`) || !strings.Contains(out, `data-version="1.0"`) {
		t.Fatalf("export = %s", out)
	}

	tgt := newTarget()
	res, err := newService().ImportHTML(out, tgt)
	if err != nil || !res.Success || res.Imported != 2 {
		t.Fatalf("result = %+v, err = %v", res, err)
	}
	for i, want := range nodes {
		got := tgt.nodes[want.ID]
		if !sameNode(got, want) {
			t.Errorf("node %d = %+v\nwant %+v", i, got, want)
		}
	}
}

func TestImportHTML_DoesNotRender(t *testing.T) {
	calls := 0
	r := render.New(render.EngineFunc(func(string, bool) (string, error) {
		calls++
		return "x", nil
	}), nil)
	s := New(r)
	frag := `<p><span class="formula-node" data-formula-id="a" data-formula-source="x^2"><b>x²</b></span></p>`
	res, err := s.ImportHTML(frag, newTarget())
	if err != nil || res.Imported != 1 {
		t.Fatalf("result = %+v, err = %v", res, err)
	}
	if calls != 0 {
		t.Fatalf("engine called %d times", calls)
	}
	if res.Nodes[0].RenderedMarkup != "<b>x²</b>" || res.Nodes[0].AccessibilityLabel != "x to the power of 2" {
		t.Fatalf("node = %+v", res.Nodes[0])
	}
}

func TestImportHTML_BestEffort(t *testing.T) {
	frag := `<div class="formula-export">` +
		`<span class="formula-node" data-formula-id="a" data-formula-source="a">a</span>` +
		`<span class="formula-node" data-formula-id="b" data-formula-source="">b</span>` +
		`</div>`
	res, err := newService().ImportHTML(frag, newTarget())
	if err != nil {
		t.Fatalf("ImportHTML: %v", err)
	}
	if res.Success || res.Imported != 1 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestImportHTML_NothingToImport(t *testing.T) {
	res, err := newService().ImportHTML(`<p>just prose</p>`, newTarget())
	if !errors.Is(err, apperr.ErrInvalid) || res.Imported != 0 {
		t.Fatalf("result = %+v, err = %v", res, err)
	}
	res, err = newService().ImportHTML(`<div class="formula-export"></div>`, newTarget())
	if err != nil || !res.Success || res.Imported != 0 {
		t.Fatalf("empty export: result = %+v, err = %v", res, err)
	}
}

func sameNode(a, b models.FormulaNode) bool {
	return a.ID == b.ID && a.Kind == b.Kind && a.SourceFormat == b.SourceFormat &&
		a.SourceText == b.SourceText && a.RenderedMarkup == b.RenderedMarkup &&
		a.AccessibilityLabel == b.AccessibilityLabel &&
		a.CreatedAt.Equal(b.CreatedAt) && a.ModifiedAt.Equal(b.ModifiedAt)
}
