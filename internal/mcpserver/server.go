// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Formulary tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/formulary/internal/apperr"
	"github.com/starford/formulary/internal/editor"
	"github.com/starford/formulary/internal/index"
	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/serialize"
	"github.com/starford/formulary/internal/storage"
)

const exportFormatURI = "formulary://export-format"

// ExportDir is the directory saved exports are written to. It sits below
// the inbox root, so saved exports are not imported again.
const ExportDir = "exports"

// Server wraps the MCP server with Formulary tools.
type Server struct {
	mcp   *server.MCPServer
	ed    *editor.Editor
	db    index.FormulaIndex
	store storage.Provider
}

// New creates a new MCP server with all Formulary tools registered. db and
// store are optional; search_formulas and saving exports need them.
func New(ed *editor.Editor, db index.FormulaIndex, store storage.Provider) *Server {
	s := &Server{ed: ed, db: db, store: store}

	s.mcp = server.NewMCPServer(
		"Formulary",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("convert_markup",
		mcp.WithDescription("Convert MathML-like markup to LaTeX-like expression text. "+
			"Reports which conversion tier produced the result."),
		mcp.WithString("markup", mcp.Required(), mcp.Description("Markup to convert, e.g. <mfrac><mi>a</mi><mi>b</mi></mfrac>")),
	), s.convertMarkup)

	s.mcp.AddTool(mcp.NewTool("render_formula",
		mcp.WithDescription("Render a formula and return its markup and accessibility label without inserting it."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Formula source text")),
		mcp.WithString("format", mcp.Description("Source format: expression (default) or markup")),
		mcp.WithString("kind", mcp.Description("inline (default) or block")),
	), s.renderFormula)

	s.mcp.AddTool(mcp.NewTool("insert_formula",
		mcp.WithDescription("Insert a formula at the caret of the document. The caret moves past it."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Formula source text")),
		mcp.WithString("format", mcp.Description("Source format: expression (default) or markup")),
		mcp.WithString("kind", mcp.Description("inline (default) or block")),
	), s.insertFormula)

	s.mcp.AddTool(mcp.NewTool("list_formulas",
		mcp.WithDescription("List every formula in the document in insertion order."),
		mcp.WithString("kind", mcp.Description("Optional kind filter: inline or block")),
	), s.listFormulas)

	s.mcp.AddTool(mcp.NewTool("search_formulas",
		mcp.WithDescription("Full-text search through formula sources and accessibility labels."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchFormulas)

	s.mcp.AddTool(mcp.NewTool("delete_formula",
		mcp.WithDescription("Delete a formula from the document. The deletion can be undone."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Formula id")),
	), s.deleteFormula)

	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Reverse the most recent insert, update or delete. There is no redo."),
	), s.undo)

	s.mcp.AddTool(mcp.NewTool("export_formulas",
		mcp.WithDescription("Export every formula as a JSON or HTML document. "+
			"With a filename the document is saved to the export directory instead of returned."),
		mcp.WithString("format", mcp.Description("json (default) or html")),
		mcp.WithString("filename", mcp.Description("Optional file name in the export directory")),
	), s.exportFormulas)

	s.mcp.AddTool(mcp.NewTool("import_formulas",
		mcp.WithDescription("Import formulas from an export document. Documents MUST follow the "+
			"export format contract (get_export_format tool or the "+exportFormatURI+" resource). "+
			"Pass the document inline, as a data: or http(s) URL, or as a file in the export directory. "+
			"Valid entries are imported even when others are rejected."),
		mcp.WithString("document", mcp.Description("Export document text")),
		mcp.WithString("url", mcp.Description("data: or http(s) URL of an export document")),
		mcp.WithString("path", mcp.Description("File in the export directory")),
		mcp.WithString("format", mcp.Description("json or html; detected when omitted")),
	), s.importFormulas)

	s.mcp.AddTool(mcp.NewTool("get_export_format",
		mcp.WithDescription("Returns the export format contract. "+
			"Call this before building documents for import_formulas."),
	), s.getExportFormat)

	// Resource: export format contract.
	s.mcp.AddResource(
		mcp.NewResource(exportFormatURI, "Export Format Contract",
			mcp.WithResourceDescription("JSON and HTML export formats accepted by import_formulas."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readExportFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func optString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func inputOf(req mcp.CallToolRequest) (editor.Input, error) {
	src, err := req.RequireString("source")
	if err != nil {
		return editor.Input{}, err
	}
	return editor.Input{
		Kind:         models.Kind(optString(req, "kind")),
		SourceFormat: models.Format(optString(req, "format")),
		SourceText:   src,
	}, nil
}

func (s *Server) convertMarkup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	markup, err := req.RequireString("markup")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := s.ed.Convert(markup)
	return jsonResult(map[string]any{
		"expression": res.Expression,
		"tier":       res.Tier.String(),
		"degraded":   res.Degraded(),
	}), nil
}

func (s *Server) renderFormula(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := inputOf(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.ed.Preview(in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) insertFormula(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := inputOf(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.ed.Insert(in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(n), nil
}

func (s *Server) listFormulas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := optString(req, "kind")
	var lines []string
	for _, n := range s.ed.List() {
		if kind != "" && string(n.Kind) != kind {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s\t%s", n.ID, n.Kind, n.SourceFormat, n.SourceText))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no formulas"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) searchFormulas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.db == nil {
		return mcp.NewToolResultError("search index not configured"), nil
	}
	results, err := s.db.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) deleteFormula(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ed.Delete(id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) undo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	op, ok, err := s.ed.Undo()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultText("nothing to undo"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("undone: %s %s", op.Kind, op.NodeID)), nil
}

func (s *Server) exportFormulas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := optString(req, "format")
	if format == "" {
		format = storage.FormatJSON
	}
	var doc []byte
	switch format {
	case storage.FormatJSON:
		data, err := s.ed.ExportJSON()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		doc = data
	case storage.FormatHTML:
		doc = []byte(s.ed.ExportHTML())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown export format: %s", format)), nil
	}

	filename := optString(req, "filename")
	if filename == "" {
		return mcp.NewToolResultText(string(doc)), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("export directory not configured"), nil
	}
	name := ExportDir + "/" + exportFilename(filename, format)
	if err := s.store.Write(name, doc); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save export: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", name)), nil
}

func (s *Server) importFormulas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := optString(req, "format")
	var data []byte
	switch {
	case optString(req, "document") != "":
		data = []byte(optString(req, "document"))
		if format == "" && strings.HasPrefix(strings.TrimSpace(string(data)), "<") {
			format = storage.FormatHTML
		}
	case optString(req, "url") != "":
		fetched, detected, err := fetchDocument(optString(req, "url"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data = fetched
		if format == "" {
			format = detected
		}
	case optString(req, "path") != "":
		if s.store == nil {
			return mcp.NewToolResultError("export directory not configured"), nil
		}
		p := optString(req, "path")
		read, err := s.store.Read(p)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", p)), nil
		}
		data = read
		if format == "" {
			format = storage.FormatOf(p)
		}
	default:
		return mcp.NewToolResultError("one of document, url or path is required"), nil
	}
	if format == "" {
		format = storage.FormatJSON
	}

	var (
		res serialize.ImportResult
		err error
	)
	switch format {
	case storage.FormatJSON:
		res, err = s.ed.ImportJSON(data)
	case storage.FormatHTML:
		res, err = s.ed.ImportHTML(string(data))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown import format: %s", format)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) getExportFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ExportFormatContract), nil
}

func (s *Server) readExportFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      exportFormatURI,
			MIMEType: "text/markdown",
			Text:     ExportFormatContract,
		},
	}, nil
}
