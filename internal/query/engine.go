package query

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/codegraph-rag/engine/internal/errs"
	"github.com/codegraph-rag/engine/internal/graphstore"
	"github.com/codegraph-rag/engine/internal/semantic"
	"github.com/codegraph-rag/engine/internal/types"
	"github.com/codegraph-rag/engine/internal/vectorstore"
)

// DefaultPageSize bounds a cursor-paginated call when the caller doesn't
// specify one.
const DefaultPageSize = 20

// Engine answers structural and hybrid semantic queries over the current
// Graph Storage / Vector Store snapshot. It holds no index of
// its own; every call re-reads the stores so results always reflect the
// latest commit.
type Engine struct {
	graph    *graphstore.Store
	vectors  *vectorstore.Store
	embedder semantic.Embedder
}

// New builds a Query Engine bound to the graph and vector stores and the
// embedder used to vectorize queries for semanticSearch.
func New(graph *graphstore.Store, vectors *vectorstore.Store, embedder semantic.Embedder) *Engine {
	return &Engine{graph: graph, vectors: vectors, embedder: embedder}
}

// Ranked pairs a result with the score resolveEntity used to order it.
type Ranked[T any] struct {
	Value T
	Score float64
}

// entityTypePriority ranks entity kinds for resolveEntity's tie-break:
// class/function/method outrank property/variable.
func entityTypePriority(t types.EntityType) int {
	switch t {
	case types.EntityClass, types.EntityFunction, types.EntityMethod, types.EntityInterface:
		return 2
	case types.EntityModule, types.EntityEnum, types.EntityTypedef:
		return 1
	default:
		return 0
	}
}

// ResolveEntity ranks entities matching name by (exact > prefix > substring
// > fuzzy) match strength, then by path-hint suffix overlap, then by
// entity-type priority.
func (e *Engine) ResolveEntity(ctx context.Context, name, filePathHint string) ([]Ranked[types.Entity], error) {
	all, err := e.graph.AllEntities(ctx)
	if err != nil {
		return nil, err
	}

	var ranked []Ranked[types.Entity]
	for _, ent := range all {
		score := nameMatchScore(ent.Name, name)
		if score <= 0 {
			continue
		}
		score += pathHintScore(ent.FilePath, filePathHint)
		score += float64(entityTypePriority(ent.Type)) * 0.01
		ranked = append(ranked, Ranked[types.Entity]{Value: ent, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}

func nameMatchScore(entityName, query string) float64 {
	switch {
	case entityName == query:
		return 100
	case strings.HasPrefix(entityName, query):
		return 70
	case strings.Contains(entityName, query):
		return 40
	default:
		sim, err := edlib.StringsSimilarity(entityName, query, edlib.JaroWinkler)
		if err != nil || sim < 0.85 {
			return 0
		}
		return 20 * float64(sim)
	}
}

func pathHintScore(entityPath, hint string) float64 {
	if hint == "" {
		return 0
	}
	entityParts := strings.Split(strings.ToLower(entityPath), "/")
	hintParts := strings.Split(strings.ToLower(hint), "/")
	overlap := 0
	for i := 1; i <= len(entityParts) && i <= len(hintParts); i++ {
		if entityParts[len(entityParts)-i] == hintParts[len(hintParts)-i] {
			overlap++
		} else {
			break
		}
	}
	return float64(overlap) * 5
}

// ListFileEntities returns every entity recorded for path, in source
// order.
func (e *Engine) ListFileEntities(ctx context.Context, path string) ([]types.Entity, error) {
	return e.graph.GetEntitiesByFile(ctx, path)
}

// ListRelationships expands entityID's relationships up to depth hops in
// direction, optionally restricted to types.
func (e *Engine) ListRelationships(ctx context.Context, entityID string, direction graphstore.Direction, relTypes []types.RelationshipType, depth int) ([]types.Edge, error) {
	return e.graph.GetRelationships(ctx, entityID, direction, relTypes, depth)
}

// ImpactResult is analyze_code_impact's response shape.
type ImpactResult struct {
	Reachable []types.Entity
	Edges     []types.Edge
}

// impactTypes are the relationship kinds impact analysis traverses.
var impactTypes = []types.RelationshipType{
	types.RelCalls, types.RelImports, types.RelInherits, types.RelImplements, types.RelMemberOf,
}

// Impact computes reverse reachability from entityID: everything that
// would be affected by a change to it, by following calls/imports/
// inherits/implements/member_of edges backward up to depth hops.
func (e *Engine) Impact(ctx context.Context, entityID string, depth int) (ImpactResult, error) {
	edges, err := e.graph.GetRelationships(ctx, entityID, graphstore.DirIn, impactTypes, depth)
	if err != nil {
		return ImpactResult{}, err
	}

	seen := map[string]bool{}
	var reachable []types.Entity
	for _, edge := range edges {
		if seen[edge.From] {
			continue
		}
		seen[edge.From] = true
		if ent, ok, err := e.graph.GetEntityByID(ctx, edge.From); err == nil && ok {
			reachable = append(reachable, ent)
		}
	}
	return ImpactResult{Reachable: reachable, Edges: edges}, nil
}

// HotspotMetric selects the ranking signal for Hotspots.
type HotspotMetric string

const (
	MetricComplexity HotspotMetric = "complexity"
	MetricFanIn      HotspotMetric = "fan_in"
	MetricFanOut     HotspotMetric = "fan_out"
)

// Hotspots ranks entities by metric and returns the top limit.
func (e *Engine) Hotspots(ctx context.Context, metric HotspotMetric, limit int) ([]types.Entity, error) {
	all, err := e.graph.AllEntities(ctx)
	if err != nil {
		return nil, err
	}

	var score map[string]int
	if metric == MetricFanIn || metric == MetricFanOut {
		fanIn, fanOut, err := e.graph.CountRelationshipsByEntity(ctx)
		if err != nil {
			return nil, err
		}
		if metric == MetricFanIn {
			score = fanIn
		} else {
			score = fanOut
		}
	}

	type scored struct {
		entity types.Entity
		value  int
	}
	ranked := make([]scored, 0, len(all))
	for _, ent := range all {
		var v int
		if metric == MetricComplexity {
			v = atoiOr(ent.MetaOr("complexity", "0"), 0)
		} else {
			v = score[ent.ID]
		}
		ranked = append(ranked, scored{entity: ent, value: v})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].value > ranked[j].value })

	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]types.Entity, limit)
	for i := 0; i < limit; i++ {
		out[i] = ranked[i].entity
	}
	return out, nil
}

func atoiOr(s string, def int) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return def
	}
	return n
}

// SemanticResult is one hit from SemanticSearch.
type SemanticResult struct {
	Entity            types.Entity
	Score             float64
	StructuralMatches []string
}

// SemanticSearchResult is SemanticSearch's paginated response.
type SemanticSearchResult struct {
	Results    []SemanticResult
	NextCursor string
}

// SemanticSearch embeds query, fetches the top-K nearest vectors, and
// re-ranks them by combining cosine similarity with a structural bonus for
// name-substring matches, annotating each hit with which signals fired.
func (e *Engine) SemanticSearch(ctx context.Context, query string, k int, pageSize int, rawCursor string) (SemanticSearchResult, error) {
	fingerprint := fmt.Sprintf("semantic:%s:%d", query, k)
	offset, err := decodeCursor(rawCursor, fingerprint)
	if err != nil {
		return SemanticSearchResult{}, err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	vec := e.embedder.Embed(query)
	hits, err := e.vectors.SearchTopK(ctx, vec, k)
	if err != nil {
		return SemanticSearchResult{}, err
	}

	const nameSubstringBonus = 0.1
	var results []SemanticResult
	lowerQuery := strings.ToLower(query)
	for _, hit := range hits {
		ent, ok, err := e.graph.GetEntityByID(ctx, hit.EntityID)
		if err != nil {
			return SemanticSearchResult{}, err
		}
		if !ok {
			continue // embedding survived entity deletion window; skip rather than fail the whole query
		}
		score := hit.Score
		var matches []string
		if strings.Contains(strings.ToLower(ent.Name), lowerQuery) {
			matches = append(matches, "name-substring")
			score += nameSubstringBonus
		}
		results = append(results, SemanticResult{Entity: ent, Score: score, StructuralMatches: matches})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	end := offset + pageSize
	var next string
	if end < len(results) {
		next = encodeCursor(fingerprint, end)
	} else {
		end = len(results)
	}
	if offset > len(results) {
		offset = len(results)
	}
	return SemanticSearchResult{Results: results[offset:end], NextCursor: next}, nil
}

// SourceSnippet is getSourceSnippet's response shape.
type SourceSnippet struct {
	Text      string
	Range     types.Location
	Truncated bool
}

// GetSourceSnippet reads entityID's owning file lazily and returns the
// entity's span expanded by contextLines on each side, truncated to
// maxBytes.
func (e *Engine) GetSourceSnippet(ctx context.Context, entityID string, contextLines, maxBytes int) (SourceSnippet, error) {
	ent, ok, err := e.graph.GetEntityByID(ctx, entityID)
	if err != nil {
		return SourceSnippet{}, err
	}
	if !ok {
		return SourceSnippet{}, errs.InvalidArgument("entityId", "no such entity")
	}

	data, err := os.ReadFile(ent.FilePath)
	if err != nil {
		return SourceSnippet{}, errs.IOError("readSnippet", ent.FilePath, err)
	}
	lines := strings.Split(string(data), "\n")

	start := ent.Location.Start.Line - 1 - contextLines
	if start < 0 {
		start = 0
	}
	end := ent.Location.End.Line + contextLines
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		start = end
	}

	text := strings.Join(lines[start:end], "\n")
	truncated := false
	if maxBytes > 0 && len(text) > maxBytes {
		text = text[:maxBytes]
		truncated = true
	}

	return SourceSnippet{
		Text: text,
		Range: types.Location{
			Start: types.Point{Line: start + 1, Column: 0},
			End:   types.Point{Line: end, Column: 0},
		},
		Truncated: truncated,
	}, nil
}

// FindEntitiesByName exposes the paginated structural name search, used by
// callers that want raw regex matching instead of ResolveEntity's ranked
// fuzzy behavior.
func (e *Engine) FindEntitiesByName(ctx context.Context, pattern string, pageSize int, rawCursor string) ([]types.Entity, string, error) {
	fingerprint := "findByName:" + pattern
	offset, err := decodeCursor(rawCursor, fingerprint)
	if err != nil {
		return nil, "", err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	matches, total, err := e.graph.FindEntitiesByName(ctx, pattern, offset, pageSize)
	if err != nil {
		return nil, "", err
	}
	var next string
	if offset+pageSize < total {
		next = encodeCursor(fingerprint, offset+pageSize)
	}
	return matches, next, nil
}

// GetGraphStats exposes get_graph_stats().
func (e *Engine) GetGraphStats(ctx context.Context) (types.GraphStats, error) {
	return e.graph.GetGraphStats(ctx)
}
