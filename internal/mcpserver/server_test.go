package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/formulary/internal/editor"
	"github.com/starford/formulary/internal/index"
	"github.com/starford/formulary/internal/serialize"
	"github.com/starford/formulary/internal/storage"
	"github.com/starford/formulary/internal/testutil"
)

func testServer(t *testing.T) (*Server, *editor.Editor, storage.Provider) {
	t.Helper()
	_, store := testutil.TestStore(t)
	db := testutil.TestDB(t)
	ed := testutil.TestEditor(t, db)
	return New(ed, db, store), ed, store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "convert_markup":
		result, err = srv.convertMarkup(ctx, req)
	case "render_formula":
		result, err = srv.renderFormula(ctx, req)
	case "insert_formula":
		result, err = srv.insertFormula(ctx, req)
	case "list_formulas":
		result, err = srv.listFormulas(ctx, req)
	case "search_formulas":
		result, err = srv.searchFormulas(ctx, req)
	case "delete_formula":
		result, err = srv.deleteFormula(ctx, req)
	case "undo":
		result, err = srv.undo(ctx, req)
	case "export_formulas":
		result, err = srv.exportFormulas(ctx, req)
	case "import_formulas":
		result, err = srv.importFormulas(ctx, req)
	case "get_export_format":
		result, err = srv.getExportFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestConvertMarkup(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "convert_markup", map[string]interface{}{
		"markup": "<msqrt><mi>x</mi></msqrt>",
	})
	var out struct {
		Expression string `json:"expression"`
		Tier       string `json:"tier"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if out.Expression != `\sqrt{x}` || out.Tier != "structural" {
		t.Errorf("convert = %+v", out)
	}
}

func TestRenderFormula_DoesNotInsert(t *testing.T) {
	srv, ed, _ := testServer(t)
	r := callTool(t, srv, "render_formula", map[string]interface{}{"source": "x^2", "kind": "block"})
	if r.IsError {
		t.Fatalf("render error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "renderedMarkup") {
		t.Errorf("render = %s", resultText(r))
	}
	if len(ed.List()) != 0 {
		t.Error("render inserted a formula")
	}

	r = callTool(t, srv, "render_formula", map[string]interface{}{"source": "x", "kind": "sideways"})
	if !r.IsError {
		t.Error("expected error for unknown kind")
	}
}

func TestInsertListDeleteUndo(t *testing.T) {
	srv, ed, _ := testServer(t)

	r := callTool(t, srv, "insert_formula", map[string]interface{}{"source": `\frac{a}{b}`})
	if r.IsError {
		t.Fatalf("insert error: %s", resultText(r))
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal([]byte(resultText(r)), &created)
	if created.ID == "" {
		t.Fatalf("insert result = %s", resultText(r))
	}

	r = callTool(t, srv, "list_formulas", map[string]interface{}{})
	if !strings.HasPrefix(resultText(r), created.ID+"\tinline\texpression\t") {
		t.Errorf("list = %q", resultText(r))
	}

	r = callTool(t, srv, "delete_formula", map[string]interface{}{"id": created.ID})
	if resultText(r) != "deleted: "+created.ID {
		t.Errorf("delete = %q", resultText(r))
	}
	if len(ed.List()) != 0 {
		t.Fatal("formula survived delete")
	}

	r = callTool(t, srv, "undo", map[string]interface{}{})
	if resultText(r) != "undone: delete "+created.ID {
		t.Errorf("undo = %q", resultText(r))
	}
	if _, ok := ed.Get(created.ID); !ok {
		t.Error("undo did not restore the formula")
	}
}

func TestDeleteFormulaMissing(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "delete_formula", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing formula")
	}
}

func TestUndoNothing(t *testing.T) {
	srv, _, _ := testServer(t)
	if got := resultText(callTool(t, srv, "undo", map[string]interface{}{})); got != "nothing to undo" {
		t.Errorf("undo = %q", got)
	}
}

func TestSearchFormulas(t *testing.T) {
	srv, _, _ := testServer(t)
	_ = callTool(t, srv, "insert_formula", map[string]interface{}{"source": `\sqrt{y}`})
	_ = callTool(t, srv, "insert_formula", map[string]interface{}{"source": "z"})

	r := callTool(t, srv, "search_formulas", map[string]interface{}{"query": "sqrt"})
	var hits []index.SearchResult
	if err := json.Unmarshal([]byte(resultText(r)), &hits); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if len(hits) != 1 {
		t.Errorf("hits = %+v", hits)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src, _, _ := testServer(t)
	_ = callTool(t, src, "insert_formula", map[string]interface{}{"source": "a+b"})
	_ = callTool(t, src, "insert_formula", map[string]interface{}{"source": "<mi>x</mi>", "format": "markup", "kind": "block"})

	doc := resultText(callTool(t, src, "export_formulas", map[string]interface{}{}))

	dst, ed, _ := testServer(t)
	r := callTool(t, dst, "import_formulas", map[string]interface{}{"document": doc})
	var res serialize.ImportResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if !res.Success || res.Imported != 2 {
		t.Errorf("import = %+v", res)
	}
	if len(ed.List()) != 2 {
		t.Errorf("formulas = %d", len(ed.List()))
	}
}

func TestImportFormulas_HTMLDocumentDetected(t *testing.T) {
	src, _, _ := testServer(t)
	_ = callTool(t, src, "insert_formula", map[string]interface{}{"source": "x^2"})
	doc := resultText(callTool(t, src, "export_formulas", map[string]interface{}{"format": "html"}))
	if !strings.HasPrefix(doc, "<div") {
		t.Fatalf("html export = %q", doc)
	}

	dst, ed, _ := testServer(t)
	r := callTool(t, dst, "import_formulas", map[string]interface{}{"document": doc})
	if r.IsError {
		t.Fatalf("import error: %s", resultText(r))
	}
	if len(ed.List()) != 1 {
		t.Errorf("formulas = %d", len(ed.List()))
	}
}

func TestImportFormulas_DataURI(t *testing.T) {
	srv, ed, _ := testServer(t)
	doc := `{"version":"1.0","nodes":[{"sourceText":"a"},{"sourceText":"  "}]}`
	uri := "data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(doc))

	r := callTool(t, srv, "import_formulas", map[string]interface{}{"url": uri})
	var res serialize.ImportResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if res.Success || res.Imported != 1 || len(res.Errors) != 1 {
		t.Errorf("import = %+v", res)
	}
	if len(ed.List()) != 1 {
		t.Errorf("formulas = %d", len(ed.List()))
	}
}

func TestExportToFileAndImportByPath(t *testing.T) {
	srv, _, store := testServer(t)
	_ = callTool(t, srv, "insert_formula", map[string]interface{}{"source": "e^{i\\pi}"})

	r := callTool(t, srv, "export_formulas", map[string]interface{}{"format": "html", "filename": "../my export"})
	if resultText(r) != "saved: exports/my_export.html" {
		t.Fatalf("export = %q", resultText(r))
	}
	data, err := store.Read("exports/my_export.html")
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}

	dst, ed, dstStore := testServer(t)
	if err := dstStore.Write("in.html", data); err != nil {
		t.Fatal(err)
	}
	r = callTool(t, dst, "import_formulas", map[string]interface{}{"path": "in.html"})
	if r.IsError {
		t.Fatalf("import error: %s", resultText(r))
	}
	if len(ed.List()) != 1 {
		t.Errorf("formulas = %d", len(ed.List()))
	}
}

func TestImportFormulas_Errors(t *testing.T) {
	srv, _, _ := testServer(t)
	cases := []map[string]interface{}{
		{},
		{"document": "{broken"},
		{"path": "missing.json"},
		{"url": "ftp://example.com/x.json"},
		{"document": "{}", "format": "yaml"},
	}
	for _, args := range cases {
		if r := callTool(t, srv, "import_formulas", args); !r.IsError {
			t.Errorf("import %v: expected error, got %s", args, resultText(r))
		}
	}
}

func TestGetExportFormat(t *testing.T) {
	srv, _, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_export_format", map[string]interface{}{}))
	if !strings.Contains(text, "sourceText") || !strings.Contains(text, "formula-export") {
		t.Error("contract missing field descriptions")
	}
}

func TestExportFilename(t *testing.T) {
	cases := []struct{ name, format, want string }{
		{"out.json", "json", "out.json"},
		{"out.json", "html", "out.html"},
		{"page.htm", "html", "page.htm"},
		{"a/b/c d", "json", "c_d.json"},
	}
	for _, c := range cases {
		if got := exportFilename(c.name, c.format); got != c.want {
			t.Errorf("exportFilename(%q, %q) = %q, want %q", c.name, c.format, got, c.want)
		}
	}
	if got := exportFilename("", "json"); !strings.HasPrefix(got, "formulas-") || !strings.HasSuffix(got, ".json") {
		t.Errorf("empty name = %q", got)
	}
}
