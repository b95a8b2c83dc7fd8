package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codegraph-rag/engine/internal/pipeline"
)

// indexParams covers index, batch_index and clean_index: all three walk
// path under the same Options, batch_index additionally resuming a prior
// sessionId.
type indexParams struct {
	Path             string   `json:"path"`
	Incremental      bool     `json:"incremental,omitempty"`
	Force            bool     `json:"force,omitempty"`
	Exclude          []string `json:"exclude,omitempty"`
	MaxFilesPerBatch int      `json:"maxFilesPerBatch,omitempty"`
	SessionID        string   `json:"sessionId,omitempty"`
}

func (p indexParams) toOptions() pipeline.Options {
	return pipeline.Options{
		Incremental:      p.Incremental,
		Force:            p.Force,
		ExcludePatterns:  p.Exclude,
		MaxFilesPerBatch: p.MaxFilesPerBatch,
	}
}

func indexInputSchema(withSessionID bool) *jsonschema.Schema {
	props := map[string]*jsonschema.Schema{
		"path":        stringSchema("root path to walk and index"),
		"incremental": boolSchema("reuse the CST cache where content hashes match"),
		"force":       boolSchema("bypass the cache and reparse every file"),
		"exclude":     stringArraySchema("additional glob exclude patterns, merged with config"),
	}
	if withSessionID {
		props["maxFilesPerBatch"] = intSchema("files to process this call; resumes from sessionId's cursor")
		props["sessionId"] = stringSchema("prior batch_index session id to resume, omitted to start a new one")
	}
	return objectSchema(props, "path")
}

func (s *Server) registerIndexTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "index",
		Description: "Walk a repository, parse every supported file and commit the result to the code graph and vector index.",
		InputSchema: indexInputSchema(false),
	}, s.handleIndex)

	s.server.AddTool(&mcp.Tool{
		Name:        "batch_index",
		Description: "Index at most maxFilesPerBatch files from a resumable session; call repeatedly with the returned sessionId until done.",
		InputSchema: indexInputSchema(true),
	}, s.handleBatchIndex)

	s.server.AddTool(&mcp.Tool{
		Name:        "clean_index",
		Description: "Drop every prior graph record and cache entry, then run a fresh index of path.",
		InputSchema: indexInputSchema(false),
	}, s.handleCleanIndex)

	s.server.AddTool(&mcp.Tool{
		Name:        "reset_graph",
		Description: "Truncate the code graph entirely; stored embeddings are not removed.",
		InputSchema: objectSchema(nil),
	}, s.handleResetGraph)
}

func (s *Server) handleIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p indexParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.Index(ctx, p.Path, p.toOptions())
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

func (s *Server) handleBatchIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p indexParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.BatchIndex(ctx, p.Path, p.toOptions(), p.SessionID)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

func (s *Server) handleCleanIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p indexParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.CleanIndex(ctx, p.Path, p.toOptions())
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

func (s *Server) handleResetGraph(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.conductor.ResetGraph(ctx); err != nil {
		return toolError(err)
	}
	return ok(map[string]bool{"reset": true})
}
