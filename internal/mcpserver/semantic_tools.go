package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerSemanticTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "semantic_search",
		Description: "Embed q, fetch the top-K nearest vectors, and re-rank with a structural name-substring bonus.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"q":        stringSchema("natural-language query text"),
			"k":        intSchema("number of nearest vectors to fetch"),
			"pageSize": intSchema("page size for cursor pagination"),
			"cursor":   stringSchema("opaque pagination cursor from a prior call"),
		}, "q"),
	}, s.handleSemanticSearch)

	s.server.AddTool(&mcp.Tool{
		Name:        "find_similar_code",
		Description: "Embed code (or re-embed entityId's own text) and return the k nearest entities, excluding the query entity.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"code":     stringSchema("source snippet to embed; omit to use entityId's own text"),
			"entityId": stringSchema("entity id to re-embed when code is omitted"),
			"k":        intSchema("number of nearest entities to return"),
		}),
	}, s.handleFindSimilarCode)

	s.server.AddTool(&mcp.Tool{
		Name:        "detect_code_clones",
		Description: "Scan every pair of embedded entities and report those at or above minSimilarity.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"minSimilarity": numberSchema("minimum cosine similarity, in [-1,1]"),
		}, "minSimilarity"),
	}, s.handleDetectCodeClones)

	s.server.AddTool(&mcp.Tool{
		Name:        "cross_language_search",
		Description: "Embed q, fetch the top-K nearest vectors, and keep only hits written in one of languages (no re-rank).",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"q":         stringSchema("natural-language query text"),
			"languages": stringArraySchema("restrict results to these languages; empty means no restriction"),
			"k":         intSchema("number of nearest vectors to fetch"),
		}, "q"),
	}, s.handleCrossLanguageSearch)

	s.server.AddTool(&mcp.Tool{
		Name:        "find_related_concepts",
		Description: "Return the k entities whose embeddings are nearest entityId's own.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"entityId": stringSchema("entity id to find related concepts for"),
			"k":        intSchema("number of related entities to return"),
		}, "entityId"),
	}, s.handleFindRelatedConcepts)
}

type semanticSearchParams struct {
	Q        string `json:"q"`
	K        int    `json:"k,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
}

func (s *Server) handleSemanticSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p semanticSearchParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.SemanticSearch(ctx, p.Q, p.K, p.PageSize, p.Cursor)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

type findSimilarCodeParams struct {
	Code     string `json:"code,omitempty"`
	EntityID string `json:"entityId,omitempty"`
	K        int    `json:"k,omitempty"`
}

func (s *Server) handleFindSimilarCode(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p findSimilarCodeParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.FindSimilarCode(ctx, p.Code, p.EntityID, p.K)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

type detectCodeClonesParams struct {
	MinSimilarity float64 `json:"minSimilarity"`
}

func (s *Server) handleDetectCodeClones(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p detectCodeClonesParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.DetectCodeClones(ctx, p.MinSimilarity)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

type crossLanguageSearchParams struct {
	Q         string   `json:"q"`
	Languages []string `json:"languages,omitempty"`
	K         int      `json:"k,omitempty"`
}

func (s *Server) handleCrossLanguageSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p crossLanguageSearchParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.CrossLanguageSearch(ctx, p.Q, p.Languages, p.K)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}

type findRelatedConceptsParams struct {
	EntityID string `json:"entityId"`
	K        int    `json:"k,omitempty"`
}

func (s *Server) handleFindRelatedConcepts(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p findRelatedConceptsParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return badArgs("params", err.Error())
	}
	result, err := s.conductor.FindRelatedConcepts(ctx, p.EntityID, p.K)
	if err != nil {
		return toolError(err)
	}
	return ok(result)
}
