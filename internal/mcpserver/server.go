// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes livevars tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/livevars/internal/apperr"
	"github.com/starford/livevars/internal/diff"
	"github.com/starford/livevars/internal/index"
	"github.com/starford/livevars/internal/render"
	"github.com/starford/livevars/internal/resolver"
	"github.com/starford/livevars/internal/session"
	"github.com/starford/livevars/internal/value"
)

const defaultPreviewLength = 50

// Server wraps the MCP server with livevars tools.
type Server struct {
	mcp     *server.MCPServer
	sess    *session.Session
	catalog index.Catalog
	scanner *render.Scanner
}

// New creates a new MCP server with all livevars tools registered.
func New(sess *session.Session, catalog index.Catalog, scanner *render.Scanner) *Server {
	s := &Server{sess: sess, catalog: catalog, scanner: scanner}

	s.mcp = server.NewMCPServer(
		"livevars",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("resolve_variable",
		mcp.WithDescription("Resolve a variable path to its current value."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Variable path, local (meta.owner) or global (notes/team.md/meta.owner)")),
		mcp.WithString("document", mcp.Description("Current document; local paths resolve against it")),
	), s.resolveVariable)

	s.mcp.AddTool(mcp.NewTool("list_variables",
		mcp.WithDescription("List variable paths with a preview of their values."),
		mcp.WithString("query", mcp.Description("Only paths containing this text")),
		mcp.WithString("document", mcp.Description("Current document")),
		mcp.WithString("scope", mcp.Description("local (default) or all"), mcp.Enum("local", "all")),
		mcp.WithNumber("max_length", mcp.Description("Truncate previews to this many characters")),
	), s.listVariables)

	s.mcp.AddTool(mcp.NewTool("set_variable",
		mcp.WithDescription("Write a variable into the front matter of its document. "+
			"Read the syntax guide first via get_variable_syntax or the "+SyntaxURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Variable path; at most one dot in the key")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New value, parsed as a YAML scalar")),
		mcp.WithString("document", mcp.Description("Current document; required for local paths")),
		mcp.WithBoolean("dry_run", mcp.Description("Return the diff without writing")),
	), s.setVariable)

	s.mcp.AddTool(mcp.NewTool("render_document",
		mcp.WithDescription("Render a document with every variable reference substituted."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. folder/doc.md)")),
		mcp.WithString("format", mcp.Description("markdown (default) or html"), mcp.Enum("markdown", "html")),
	), s.renderDocument)

	s.mcp.AddTool(mcp.NewTool("search_properties",
		mcp.WithDescription("Search front-matter keys and values across the whole vault."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchProperties)

	s.mcp.AddTool(mcp.NewTool("get_variable_syntax",
		mcp.WithDescription("Returns the variable reference syntax guide. "+
			"With a path, also returns the reference to paste into a document."),
		mcp.WithString("path", mcp.Description("Variable path to format as a reference")),
	), s.getVariableSyntax)

	s.mcp.AddResource(
		mcp.NewResource(SyntaxURI, "Variable Syntax",
			mcp.WithResourceDescription("How documents reference and write live variables."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSyntaxResource,
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

func (s *Server) guide() string {
	return SyntaxGuide(s.scanner.Delimiters())
}

func (s *Server) resolveVariable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc := req.GetString("document", "")
	v, ok := s.sess.Resolve(path, doc)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(value.Display(v)), nil
}

func (s *Server) listVariables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := resolver.ParseScope(req.GetString("scope", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	maxLen := req.GetInt("max_length", defaultPreviewLength)
	props := s.sess.Properties(req.GetString("query", ""), scope, req.GetString("document", ""), maxLen)
	if len(props) == 0 {
		return mcp.NewToolResultText("no variables found"), nil
	}
	out, _ := json.MarshalIndent(props, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) setVariable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc := req.GetString("document", "")
	v := value.ParseScalar(raw)

	if req.GetBool("dry_run", false) {
		ch, err := s.sess.Plan(path, doc, v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(ch.Diff) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("no change: %s", ch.Document)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("would write %s:\n%s", ch.Document, diff.Unified(ch.Diff))), nil
	}

	ch, err := s.sess.Set(ctx, path, doc, v)
	if err != nil {
		if errors.Is(err, apperr.ErrWrite) {
			return mcp.NewToolResultError(fmt.Sprintf("value kept in memory only: %v", err)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ch.Persisted {
		return mcp.NewToolResultText(fmt.Sprintf("set %s = %s (in memory, no target document)", path, ch.Literal)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("set %s = %s in %s", path, ch.Literal, ch.Document)), nil
}

func (s *Server) renderDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.sess.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	lookup := func(p string) (value.Value, bool) { return s.sess.Resolve(p, path) }

	switch format := req.GetString("format", "markdown"); format {
	case "markdown":
		return mcp.NewToolResultText(s.scanner.Substitute(string(data), lookup)), nil
	case "html":
		out, err := s.scanner.HTML(string(data), lookup, false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unsupported format: %s", format)), nil
	}
}

func (s *Server) searchProperties(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.catalog.SearchValues(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no properties found"), nil
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%s/%s: %s", r.Document, r.Key, r.Display))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getVariableSyntax(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if path := req.GetString("path", ""); path != "" {
		return mcp.NewToolResultText(s.scanner.Syntax(path)), nil
	}
	return mcp.NewToolResultText(s.guide()), nil
}

func (s *Server) readSyntaxResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      SyntaxURI,
			MIMEType: "text/markdown",
			Text:     s.guide(),
		},
	}, nil
}
