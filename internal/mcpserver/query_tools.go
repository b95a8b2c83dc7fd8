package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codegraph-rag/engine/internal/errs"
	"github.com/codegraph-rag/engine/internal/graphstore"
	"github.com/codegraph-rag/engine/internal/query"
	"github.com/codegraph-rag/engine/internal/types"
)

func (s *Server) registerQueryTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "query",
		Description: "Resolve q as a structural entity/path lookup first, falling back to a semantic search when nothing structural matches.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"q":            stringSchema("natural-language or structural query text"),
			"filePathHint": stringSchema("optional path hint used to break resolution ties"),
			"k":            intSchema("semantic fallback top-K"),
			"pageSize":     intSchema("semantic fallback page size"),
			"cursor":       stringSchema("opaque pagination cursor from a prior call"),
		}, "q"),
	}, s.handleQuery)

	s.server.AddTool(&mcp.Tool{
		Name:        "list_file_entities",
		Description: "List every entity recorded for a file, in source order.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"path": stringSchema("file path as recorded in the graph"),
		}, "path"),
	}, s.handleListFileEntities)

	s.server.AddTool(&mcp.Tool{
		Name:        "list_entity_relationships",
		Description: "Resolve entityName to its best-matching entity and expand its relationships up to depth hops.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"entityName":   stringSchema("entity name to resolve, as in resolve_entity"),
			"filePathHint": stringSchema("optional path hint used to disambiguate the resolved entity"),
			"direction":    stringSchema("out, in, or both (default out)"),
			"depth":        intSchema("maximum BFS expansion depth (default 1)"),
			"types":        stringArraySchema("restrict to these relationship types, e.g. calls, imports"),
		}, "entityName"),
	}, s.handleListEntityRelationships)

	s.server.AddTool(&mcp.Tool{
		Name:        "resolve_entity",
		Description: "Rank entities matching name by exact/prefix/substring/fuzzy strength, then path-hint overlap, then type priority.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"name":         stringSchema("entity name to resolve"),
			"filePathHint": stringSchema("optional path hint used to break ties"),
		}, "name"),
	}, s.handleResolveEntity)

	s.server.AddTool(&mcp.Tool{
		Name:        "get_entity_source",
		Description: "Read an entity's owning file lazily and return its span expanded by contextLines, truncated to maxBytes.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"entityId":     stringSchema("entity id, as returned by resolve_entity or list_file_entities"),
			"contextLines": intSchema("lines of context to include on each side (default 0)"),
			"maxBytes":     intSchema("truncate the returned text to this many bytes (0 = unbounded)"),
		}, "entityId"),
	}, s.handleGetEntitySource)

	s.server.AddTool(&mcp.Tool{
		Name:        "analyze_code_impact",
		Description: "Compute reverse reachability from entityId over calls/imports/inherits/implements/member_of edges up to depth hops.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"entityId": stringSchema("entity id to analyze"),
			"depth":    intSchema("maximum BFS expansion depth (default 1)"),
		}, "entityId"),
	}, s.handleAnalyzeCodeImpact)

	s.server.AddTool(&mcp.Tool{
		Name:        "analyze_hotspots",
		Description: "Rank entities by complexity, fan_in or fan_out and return the top limit.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"metric": stringSchema("complexity, fan_in, or fan_out"),
			"limit":  intSchema("maximum entities to return"),
		}, "metric"),
	}, s.handleAnalyzeHotspots)

	s.server.AddTool(&mcp.Tool{
		Name:        "suggest_refactoring",
		Description: "Flag entities in filePath worth a closer look, ranked by complexity and fan-in/fan-out heuristics.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"filePath": stringSchema("file path to score"),
		}, "filePath"),
	}, s.handleSuggestRefactoring)

	s.server.AddTool(&mcp.Tool{
		Name:        "get_graph",
		Description: "Return up to limit entities and every relationship between them, for rendering a subgraph.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"limit": intSchema("maximum entities to include (0 = unbounded)"),
		}),
	}, s.handleGetGraph)

	s.server.AddTool(&mcp.Tool{
		Name:        "get_graph_stats",
		Description: "Summarize the current contents of Graph Storage: entity/relationship/file counts by type and language.",
		InputSchema: objectSchema(nil),
	}, s.handleGetGraphStats)
}

func relTypesFrom(raw []string) []types.RelationshipType {
	if len(raw) == 0 {
		return nil
	}
	out := make([]types.RelationshipType, len(raw))
	for i, r := range raw {
		out[i] = types.RelationshipType(r)
	}
	return out
}

func directionFrom(raw string) graphstore.Direction {
	switch graphstore.Direction(raw) {
	case graphstore.DirIn:
		return graphstore.DirIn
	case graphstore.DirBoth:
		return graphstore.DirBoth
	default:
		return graphstore.DirOut
	}
}

type queryParams struct {
	Q            string `json:"q"`
	FilePathHint string `json:"filePathHint,omitempty"`
	K            int    `json:"k,omitempty"`
	PageSize     int    `json:"pageSize,omitempty"`
	Cursor       string `json:"cursor,omitempty"`
}

func (s *Server) handleQuery(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p queryParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.Query(ctx, p.Q, p.FilePathHint, p.K, p.PageSize, p.Cursor)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

type pathParams struct {
	Path string `json:"path"`
}

func (s *Server) handleListFileEntities(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p pathParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.ListFileEntities(ctx, p.Path)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

type listRelationshipsParams struct {
	EntityName   string   `json:"entityName"`
	FilePathHint string   `json:"filePathHint,omitempty"`
	Direction    string   `json:"direction,omitempty"`
	Depth        int      `json:"depth,omitempty"`
	Types        []string `json:"types,omitempty"`
}

// handleListEntityRelationships resolves entityName to its best-ranked
// entity id before expanding relationships, matching resolve_entity's own
// ranking.
func (s *Server) handleListEntityRelationships(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p listRelationshipsParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	ranked, err := s.conductor.ResolveEntity(ctx, p.EntityName, p.FilePathHint)
	if err != nil {
		return toolError(err)
	}
	if len(ranked) == 0 {
		return toolError(errs.InvalidArgument("entityName", "no matching entity"))
	}
	result, err := s.conductor.ListRelationships(ctx, ranked[0].Value.ID, directionFrom(p.Direction), relTypesFrom(p.Types), p.Depth)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

type resolveEntityParams struct {
	Name         string `json:"name"`
	FilePathHint string `json:"filePathHint,omitempty"`
}

func (s *Server) handleResolveEntity(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p resolveEntityParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.ResolveEntity(ctx, p.Name, p.FilePathHint)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

type entitySourceParams struct {
	EntityID     string `json:"entityId"`
	ContextLines int    `json:"contextLines,omitempty"`
	MaxBytes     int    `json:"maxBytes,omitempty"`
}

func (s *Server) handleGetEntitySource(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p entitySourceParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.GetSourceSnippet(ctx, p.EntityID, p.ContextLines, p.MaxBytes)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

type impactParams struct {
	EntityID string `json:"entityId"`
	Depth    int    `json:"depth,omitempty"`
}

func (s *Server) handleAnalyzeCodeImpact(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p impactParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.Impact(ctx, p.EntityID, p.Depth)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

type hotspotsParams struct {
	Metric string `json:"metric"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Server) handleAnalyzeHotspots(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p hotspotsParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.Hotspots(ctx, query.HotspotMetric(p.Metric), p.Limit)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

type refactorParams struct {
	FilePath string `json:"filePath"`
}

func (s *Server) handleSuggestRefactoring(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p refactorParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.SuggestRefactoring(ctx, p.FilePath)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

type getGraphParams struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Server) handleGetGraph(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p getGraphParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.GetGraph(ctx, p.Limit)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

func (s *Server) handleGetGraphStats(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.conductor.GetGraphStats(ctx)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}
