// Package mcp exposes the index over the Model Context Protocol so
// agent clients can drive it through line-delimited JSON-RPC on stdio.
// Tool responses carry the same envelope as the CLI's --json output.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/omnidex/oci/internal/config"
	"github.com/omnidex/oci/internal/debug"
	"github.com/omnidex/oci/internal/envelope"
	"github.com/omnidex/oci/internal/indexing"
	"github.com/omnidex/oci/internal/query"
	"github.com/omnidex/oci/internal/state"
	"github.com/omnidex/oci/internal/version"
)

// Server wires the indexer and query engine into MCP tools.
type Server struct {
	cfg    *config.Config
	ix     *indexing.Indexer
	st     *state.State
	engine *query.Engine
	server *sdk.Server
}

// NewServer creates the MCP server and registers the tool surface.
func NewServer(cfg *config.Config, ix *indexing.Indexer, st *state.State) *Server {
	s := &Server{
		cfg:    cfg,
		ix:     ix,
		st:     st,
		engine: query.New(st),
	}
	s.server = sdk.NewServer(&sdk.Implementation{
		Name:    "oci-mcp-server",
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s
}

// Run serves MCP over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	debug.LogMCP("serving over stdio, root=%s", s.st.Root())
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&sdk.Tool{
		Name:        "index",
		Description: "Build or refresh the code index incrementally. Unchanged files are skipped via the fingerprint manifest.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"force": {
					Type:        "boolean",
					Description: "Force full rebuild, ignoring the manifest",
				},
			},
		},
	}, s.handleIndex)

	s.server.AddTool(&sdk.Tool{
		Name:        "search",
		Description: "BM25 ranked code search. Supports -term negation and path:/ext:/kind: filters inline in the query string.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Search query",
				},
				"top_k": {
					Type:        "integer",
					Description: "Maximum results (default 10)",
				},
				"filters": {
					Type:        "string",
					Description: "Extra filter tokens, same grammar as inline filters",
				},
			},
			Required: []string{"query"},
		},
	}, s.handleSearch)

	s.server.AddTool(&sdk.Tool{
		Name:        "find_symbol",
		Description: "Look up symbol definitions by simple name, scoped name, or prefix.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"name": {
					Type:        "string",
					Description: "Symbol name",
				},
				"scoped": {
					Type:        "boolean",
					Description: "Treat name as a fully scoped path",
				},
				"prefix": {
					Type:        "boolean",
					Description: "Prefix-scan simple names",
				},
			},
			Required: []string{"name"},
		},
	}, s.handleFindSymbol)

	s.server.AddTool(&sdk.Tool{
		Name:        "find_calls",
		Description: "Traverse the call graph around a symbol in either direction.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"name": {
					Type:        "string",
					Description: "Symbol name (simple for callers, scoped or simple for callees)",
				},
				"direction": {
					Type:        "string",
					Description: "callers or callees (default callers)",
				},
			},
			Required: []string{"name"},
		},
	}, s.handleFindCalls)

	s.server.AddTool(&sdk.Tool{
		Name:        "topology",
		Description: "File-level import graph with PageRank relevance scores.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, s.handleTopology)

	s.server.AddTool(&sdk.Tool{
		Name:        "fold",
		Description: "Render one file as a signature skeleton: each symbol's head line and span.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"file": {
					Type:        "string",
					Description: "Repository-relative file path",
				},
			},
			Required: []string{"file"},
		},
	}, s.handleFold)
}

func (s *Server) handleIndex(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
	var params struct {
		Force bool `json:"force"`
	}
	if err := unmarshalArgs(req, &params); err != nil {
		return errorResult(err), nil
	}

	opts := indexing.OptionsFromConfig(s.cfg)
	opts.Force = params.Force
	report, err := s.ix.Update(ctx, s.st, opts)
	if err != nil {
		return errorResult(err), nil
	}
	return envelopeResult("index", map[string]interface{}{
		"files":          report.TotalFiles,
		"files_reparsed": report.FilesReparsed,
		"files_skipped":  report.FilesSkipped,
		"files_removed":  report.FilesRemoved,
		"symbols":        report.Symbols,
	})
}

func (s *Server) handleSearch(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
	var params struct {
		Query   string `json:"query"`
		TopK    int    `json:"top_k"`
		Filters string `json:"filters"`
	}
	if err := unmarshalArgs(req, &params); err != nil {
		return errorResult(err), nil
	}

	results, err := s.engine.Search(params.Query, params.TopK, params.Filters)
	if err != nil {
		return errorResult(err), nil
	}
	return envelopeResult("search", map[string]interface{}{
		"query":   params.Query,
		"results": results,
	})
}

func (s *Server) handleFindSymbol(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
	var params struct {
		Name   string `json:"name"`
		Scoped bool   `json:"scoped"`
		Prefix bool   `json:"prefix"`
	}
	if err := unmarshalArgs(req, &params); err != nil {
		return errorResult(err), nil
	}

	results := s.engine.Symbols(params.Name, params.Scoped, params.Prefix)
	return envelopeResult("symbol", map[string]interface{}{
		"query":   params.Name,
		"results": results,
	})
}

func (s *Server) handleFindCalls(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
	var params struct {
		Name      string `json:"name"`
		Direction string `json:"direction"`
	}
	if err := unmarshalArgs(req, &params); err != nil {
		return errorResult(err), nil
	}

	direction := params.Direction
	if direction == "" {
		direction = "callers"
	}
	payload := map[string]interface{}{
		"symbol":    params.Name,
		"direction": direction,
	}
	switch direction {
	case "callers":
		payload["results"] = s.engine.Callers(params.Name)
	case "callees":
		payload["results"] = s.engine.Callees(params.Name)
	default:
		return errorResult(fmt.Errorf("direction must be callers or callees, got %q", direction)), nil
	}
	return envelopeResult("calls", payload)
}

func (s *Server) handleTopology(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
	return envelopeResult("topology", map[string]interface{}{
		"results": s.engine.Topology(),
	})
}

func (s *Server) handleFold(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
	var params struct {
		File string `json:"file"`
	}
	if err := unmarshalArgs(req, &params); err != nil {
		return errorResult(err), nil
	}

	entries, err := s.engine.Fold(params.File)
	if err != nil {
		return errorResult(err), nil
	}
	return envelopeResult("fold", map[string]interface{}{
		"file":    params.File,
		"results": entries,
	})
}

func unmarshalArgs(req *sdk.CallToolRequest, out interface{}) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, out); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

func envelopeResult(opType string, payload map[string]interface{}) (*sdk.CallToolResult, error) {
	text, err := envelope.EncodeCompact(envelope.Success(opType, payload))
	if err != nil {
		return errorResult(err), nil
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: text}},
	}, nil
}

func errorResult(err error) *sdk.CallToolResult {
	text, encErr := envelope.EncodeCompact(envelope.Error(err))
	if encErr != nil {
		text = fmt.Sprintf(`{"ok":false,"error":{"code":"internal","message":%q}}`, err.Error())
	}
	return &sdk.CallToolResult{
		IsError: true,
		Content: []sdk.Content{&sdk.TextContent{Text: text}},
	}
}
