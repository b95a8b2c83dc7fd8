package query

import (
	"context"
	"sort"
	"strings"

	"github.com/codegraph-rag/engine/internal/errs"
	"github.com/codegraph-rag/engine/internal/graphstore"
	"github.com/codegraph-rag/engine/internal/semantic"
	"github.com/codegraph-rag/engine/internal/types"
	"github.com/codegraph-rag/engine/internal/vectorstore"
)

// FindSimilarCode embeds code (or, if code is empty, re-embeds entityID's
// own text) and returns the k nearest entities by cosine similarity,
// excluding the query entity itself.
func (e *Engine) FindSimilarCode(ctx context.Context, code, entityID string, k int) ([]SemanticResult, error) {
	text := code
	var exclude string
	if text == "" {
		if entityID == "" {
			return nil, errs.InvalidArgument("code|entityId", "one of code or entityId is required")
		}
		ent, ok, err := e.graph.GetEntityByID(ctx, entityID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.InvalidArgument("entityId", "no such entity")
		}
		text = semantic.EntityText(ent)
		exclude = entityID
	}

	if k <= 0 {
		return nil, nil
	}
	hits, err := e.vectors.SearchTopK(ctx, e.embedder.Embed(text), k+1)
	if err != nil {
		return nil, err
	}
	return e.hitsToResults(ctx, hits, exclude, k)
}

// FindRelatedConcepts returns the k entities whose embeddings are nearest
// entityID's own, a thin alias of FindSimilarCode keyed purely by id.
func (e *Engine) FindRelatedConcepts(ctx context.Context, entityID string, k int) ([]SemanticResult, error) {
	return e.FindSimilarCode(ctx, "", entityID, k)
}

func (e *Engine) hitsToResults(ctx context.Context, hits []vectorstore.ScoredEntity, exclude string, k int) ([]SemanticResult, error) {
	var out []SemanticResult
	for _, hit := range hits {
		if hit.EntityID == exclude {
			continue
		}
		ent, ok, err := e.graph.GetEntityByID(ctx, hit.EntityID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, SemanticResult{Entity: ent, Score: hit.Score})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// ClonePair is one hit from DetectCodeClones: two distinct entities whose
// embeddings score at or above the requested similarity threshold.
type ClonePair struct {
	A          types.Entity
	B          types.Entity
	Similarity float64
}

// DetectCodeClones scans every pair of embedded entities and reports those
// at or above minSimilarity, a brute-force O(n^2) pass over whatever the
// Vector Store currently holds (there is no size cap on this operation, so
// callers on very large graphs should prefer semanticSearch/findSimilarCode
// against a specific entity instead).
func (e *Engine) DetectCodeClones(ctx context.Context, minSimilarity float64) ([]ClonePair, error) {
	vectors, err := e.vectors.AllEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var pairs []ClonePair
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			sim := vectorstore.CosineSimilarity(vectors[ids[i]], vectors[ids[j]])
			if sim < minSimilarity {
				continue
			}
			entA, okA, err := e.graph.GetEntityByID(ctx, ids[i])
			if err != nil {
				return nil, err
			}
			entB, okB, err := e.graph.GetEntityByID(ctx, ids[j])
			if err != nil {
				return nil, err
			}
			if !okA || !okB {
				continue
			}
			pairs = append(pairs, ClonePair{A: entA, B: entB, Similarity: sim})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	return pairs, nil
}

// CrossLanguageSearch embeds query, fetches the top-k nearest vectors
// (without SemanticSearch's name-substring re-rank or pagination) and
// restricts the hits to entities whose Language is in languages (empty
// languages means no restriction), letting a query phrased in natural language surface matches
// written in any of the requested target languages.
func (e *Engine) CrossLanguageSearch(ctx context.Context, query string, languages []string, k int) ([]SemanticResult, error) {
	want := make(map[string]bool, len(languages))
	for _, lang := range languages {
		want[strings.ToLower(lang)] = true
	}

	vec := e.embedder.Embed(query)
	hits, err := e.vectors.SearchTopK(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	var out []SemanticResult
	for _, hit := range hits {
		ent, ok, err := e.graph.GetEntityByID(ctx, hit.EntityID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if len(want) > 0 && !want[strings.ToLower(ent.Language)] {
			continue
		}
		out = append(out, SemanticResult{Entity: ent, Score: hit.Score})
	}
	return out, nil
}

// RefactorSuggestion flags one entity in a file worth a closer look, with
// the heuristic that triggered it.
type RefactorSuggestion struct {
	Entity types.Entity
	Reason string
}

// SuggestRefactoring scores every entity declared in filePath against
// simple heuristics (the complexity metadata analyzers record plus the
// Query Engine's own fan-in/fan-out counts) and returns the ones worth
// flagging, highest-complexity first.
func (e *Engine) SuggestRefactoring(ctx context.Context, filePath string) ([]RefactorSuggestion, error) {
	entities, err := e.graph.GetEntitiesByFile(ctx, filePath)
	if err != nil {
		return nil, err
	}
	fanIn, fanOut, err := e.graph.CountRelationshipsByEntity(ctx)
	if err != nil {
		return nil, err
	}

	var out []RefactorSuggestion
	for _, ent := range entities {
		complexity := atoiOr(ent.MetaOr("complexity", "0"), 0)
		switch {
		case complexity >= refactorComplexityThreshold:
			out = append(out, RefactorSuggestion{Entity: ent, Reason: "high cyclomatic complexity"})
		case fanOut[ent.ID] >= refactorFanThreshold:
			out = append(out, RefactorSuggestion{Entity: ent, Reason: "high fan-out: extract a narrower interface"})
		case fanIn[ent.ID] >= refactorFanThreshold:
			out = append(out, RefactorSuggestion{Entity: ent, Reason: "high fan-in: central dependency, changes ripple widely"})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return atoiOr(out[i].Entity.MetaOr("complexity", "0"), 0) > atoiOr(out[j].Entity.MetaOr("complexity", "0"), 0)
	})
	return out, nil
}

const (
	refactorComplexityThreshold = 10
	refactorFanThreshold        = 8
)

// GraphView is get_graph's response shape: a bounded slice of the entity
// graph for visualization, not the full structural query surface the other
// operations expose.
type GraphView struct {
	Entities []types.Entity
	Edges    []types.Edge
}

// GetGraph returns up to limit entities and every relationship between
// them, for callers that want to render a subgraph rather than traverse it.
func (e *Engine) GetGraph(ctx context.Context, limit int) (GraphView, error) {
	all, err := e.graph.AllEntities(ctx)
	if err != nil {
		return GraphView{}, err
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	ids := make(map[string]bool, len(all))
	for _, ent := range all {
		ids[ent.ID] = true
	}

	var edges []types.Edge
	for _, ent := range all {
		rels, err := e.graph.GetRelationships(ctx, ent.ID, graphstore.DirOut, nil, 1)
		if err != nil {
			return GraphView{}, err
		}
		for _, edge := range rels {
			if ids[edge.From] && ids[edge.To] {
				edges = append(edges, edge)
			}
		}
	}
	return GraphView{Entities: all, Edges: edges}, nil
}

// QueryResult is the generic query() dispatcher's response: structural
// matches when q names an entity, a semantic fallback otherwise.
type QueryResult struct {
	Structural []Ranked[types.Entity]
	Semantic   *SemanticSearchResult
}

// Query is the catch-all lookup accepting either a structural name or a
// natural-language question. It first tries q as an entity name/path
// lookup (resolveEntity), and only
// falls back to embedding it as a natural-language semantic query when
// nothing structural matches, so an exact symbol name never pays the cost
// of a vector scan it doesn't need.
func (e *Engine) Query(ctx context.Context, q, filePathHint string, k, pageSize int, cursor string) (QueryResult, error) {
	structural, err := e.ResolveEntity(ctx, q, filePathHint)
	if err != nil {
		return QueryResult{}, err
	}
	if len(structural) > 0 {
		return QueryResult{Structural: structural}, nil
	}

	sem, err := e.SemanticSearch(ctx, q, k, pageSize, cursor)
	if err != nil {
		return QueryResult{}, err
	}
	return QueryResult{Semantic: &sem}, nil
}
