// Package agents is the Conductor: the
// parser, indexer, query, semantic and orchestrator agents that front the
// Incremental Parser, Graph Storage commit path, Query Engine, Semantic
// Indexer and top-level index/reset operations with Scheduler admission and
// Knowledge Bus visibility. Each agent owns its own Scheduler lane and
// queues; shared access to the stores goes through the Pipeline and Query
// Engine, never directly.
package agents

import (
	"context"
	"time"

	"github.com/codegraph-rag/engine/internal/bus"
	"github.com/codegraph-rag/engine/internal/cache"
	"github.com/codegraph-rag/engine/internal/graphstore"
	"github.com/codegraph-rag/engine/internal/pipeline"
	"github.com/codegraph-rag/engine/internal/query"
	"github.com/codegraph-rag/engine/internal/scheduler"
	"github.com/codegraph-rag/engine/internal/telemetry"
	"github.com/codegraph-rag/engine/internal/types"
)

// Agent names, used both as Scheduler lane keys and Stats/metrics labels.
const (
	AgentParser       = "parser"
	AgentIndexer      = "indexer"
	AgentQuery        = "query"
	AgentSemantic     = "semantic"
	AgentOrchestrator = "orchestrator"
)

// Conductor dispatches every external operation through a named agent's
// Scheduler lane, so CPU-bound parsing, I/O-bound commits and query work
// compete for admission independently instead of sharing one global queue.
type Conductor struct {
	scheduler *scheduler.Scheduler
	bus       *bus.Bus
	pipeline  *pipeline.Pipeline
	query     *query.Engine
	log       *telemetry.Logger
}

// Config sizes each agent's concurrency cap and backlog depth. Zero values
// take the Scheduler's own per-call defaults (concurrency=1, backlog=16).
type Config struct {
	ParserConcurrency   int
	IndexerConcurrency  int
	QueryConcurrency    int
	SemanticConcurrency int
	Backlog             int
}

// New builds a Conductor and registers its five standard agent lanes onto
// sched: parser and indexer on the CPU-bound pool (CST construction and
// SQLite commits are compute/IO heavy respectively but both compete for the
// same small core count), query and semantic on the IO-bound pool (they
// spend most of their time waiting on SQLite reads), orchestrator on
// CPU-bound with a concurrency of 1 since index/clean_index/reset_graph are
// exclusive, repo-wide operations.
func New(sched *scheduler.Scheduler, b *bus.Bus, p *pipeline.Pipeline, q *query.Engine, log *telemetry.Logger, cfg Config) *Conductor {
	if log == nil {
		log = telemetry.Default()
	}
	sched.RegisterAgent(AgentParser, scheduler.CPUBound, cfg.ParserConcurrency, cfg.Backlog)
	sched.RegisterAgent(AgentIndexer, scheduler.CPUBound, cfg.IndexerConcurrency, cfg.Backlog)
	sched.RegisterAgent(AgentQuery, scheduler.IOBound, cfg.QueryConcurrency, cfg.Backlog)
	sched.RegisterAgent(AgentSemantic, scheduler.IOBound, cfg.SemanticConcurrency, cfg.Backlog)
	sched.RegisterAgent(AgentOrchestrator, scheduler.CPUBound, 1, cfg.Backlog)

	return &Conductor{scheduler: sched, bus: b, pipeline: p, query: q, log: log}
}

// Heartbeat marks every standard agent alive. Callers run this on a ticker
// at scheduler.DefaultHeartbeatInterval; Conductor itself stays free of
// background goroutines so tests can drive it deterministically.
func (c *Conductor) Heartbeat() {
	for _, name := range []string{AgentParser, AgentIndexer, AgentQuery, AgentSemantic, AgentOrchestrator} {
		c.scheduler.Heartbeat(name)
	}
}

// RunHeartbeats launches the periodic heartbeat loop and blocks until ctx
// is cancelled; callers typically run it in its own goroutine.
func (c *Conductor) RunHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(scheduler.DefaultHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Heartbeat()
		}
	}
}

// Index runs the orchestrator agent's index() operation through the
// Scheduler, returning AgentBusy if the orchestrator's backlog is full
// (e.g. a clean_index or reset_graph is already in flight).
func (c *Conductor) Index(ctx context.Context, path string, opts pipeline.Options) (pipeline.IndexResult, error) {
	var result pipeline.IndexResult
	err := c.scheduler.Submit(ctx, AgentOrchestrator, func(ctx context.Context) error {
		r, err := c.pipeline.Index(ctx, path, opts)
		result = r
		return err
	})
	return result, err
}

// BatchIndex runs one resumable chunk of batch_index() through the parser
// agent's lane, since each chunk's dominant cost is CST construction.
func (c *Conductor) BatchIndex(ctx context.Context, path string, opts pipeline.Options, sessionID string) (pipeline.BatchIndexResult, error) {
	var result pipeline.BatchIndexResult
	err := c.scheduler.Submit(ctx, AgentParser, func(ctx context.Context) error {
		r, err := c.pipeline.BatchIndex(ctx, path, opts, sessionID)
		result = r
		return err
	})
	return result, err
}

// CleanIndex runs clean_index() through the orchestrator agent, same as
// Index, since both are exclusive repo-wide operations.
func (c *Conductor) CleanIndex(ctx context.Context, path string, opts pipeline.Options) (pipeline.IndexResult, error) {
	var result pipeline.IndexResult
	err := c.scheduler.Submit(ctx, AgentOrchestrator, func(ctx context.Context) error {
		r, err := c.pipeline.CleanIndex(ctx, path, opts)
		result = r
		return err
	})
	return result, err
}

// ResetGraph runs reset_graph() through the orchestrator agent.
func (c *Conductor) ResetGraph(ctx context.Context) error {
	return c.scheduler.Submit(ctx, AgentOrchestrator, func(ctx context.Context) error {
		return c.pipeline.ResetGraph(ctx)
	})
}

// ResolveEntity runs resolve_entity() through the query agent.
func (c *Conductor) ResolveEntity(ctx context.Context, name, filePathHint string) ([]query.Ranked[types.Entity], error) {
	var out []query.Ranked[types.Entity]
	err := c.scheduler.Submit(ctx, AgentQuery, func(ctx context.Context) error {
		c.publishQueryIssued("resolve_entity", name)
		r, err := c.query.ResolveEntity(ctx, name, filePathHint)
		out = r
		return err
	})
	return out, err
}

// ListFileEntities runs list_file_entities() through the query agent.
func (c *Conductor) ListFileEntities(ctx context.Context, path string) ([]types.Entity, error) {
	var out []types.Entity
	err := c.scheduler.Submit(ctx, AgentQuery, func(ctx context.Context) error {
		c.publishQueryIssued("list_file_entities", path)
		r, err := c.query.ListFileEntities(ctx, path)
		out = r
		return err
	})
	return out, err
}

// ListRelationships runs list_entity_relationships() through the query agent.
func (c *Conductor) ListRelationships(ctx context.Context, entityID string, direction graphstore.Direction, relTypes []types.RelationshipType, depth int) ([]types.Edge, error) {
	var out []types.Edge
	err := c.scheduler.Submit(ctx, AgentQuery, func(ctx context.Context) error {
		c.publishQueryIssued("list_entity_relationships", entityID)
		r, err := c.query.ListRelationships(ctx, entityID, direction, relTypes, depth)
		out = r
		return err
	})
	return out, err
}

// GetGraphStats runs get_graph_stats() through the query agent.
func (c *Conductor) GetGraphStats(ctx context.Context) (types.GraphStats, error) {
	var out types.GraphStats
	err := c.scheduler.Submit(ctx, AgentQuery, func(ctx context.Context) error {
		c.publishQueryIssued("get_graph_stats", "")
		r, err := c.query.GetGraphStats(ctx)
		out = r
		return err
	})
	return out, err
}

// Impact runs analyze_code_impact() through the query agent.
func (c *Conductor) Impact(ctx context.Context, entityID string, depth int) (query.ImpactResult, error) {
	var out query.ImpactResult
	err := c.scheduler.Submit(ctx, AgentQuery, func(ctx context.Context) error {
		c.publishQueryIssued("analyze_code_impact", entityID)
		r, err := c.query.Impact(ctx, entityID, depth)
		out = r
		return err
	})
	return out, err
}

// Hotspots runs analyze_hotspots() through the query agent.
func (c *Conductor) Hotspots(ctx context.Context, metric query.HotspotMetric, limit int) ([]types.Entity, error) {
	var out []types.Entity
	err := c.scheduler.Submit(ctx, AgentQuery, func(ctx context.Context) error {
		c.publishQueryIssued("analyze_hotspots", string(metric))
		r, err := c.query.Hotspots(ctx, metric, limit)
		out = r
		return err
	})
	return out, err
}

// SemanticSearch runs semantic_search() through the semantic agent, since
// embedding the query and scanning the Vector Store are its dominant costs.
func (c *Conductor) SemanticSearch(ctx context.Context, q string, k, pageSize int, cursor string) (query.SemanticSearchResult, error) {
	var out query.SemanticSearchResult
	err := c.scheduler.Submit(ctx, AgentSemantic, func(ctx context.Context) error {
		c.publishQueryIssued("semantic_search", q)
		r, err := c.query.SemanticSearch(ctx, q, k, pageSize, cursor)
		out = r
		return err
	})
	return out, err
}

// GetSourceSnippet runs get_entity_source() through the query agent.
func (c *Conductor) GetSourceSnippet(ctx context.Context, entityID string, contextLines, maxBytes int) (query.SourceSnippet, error) {
	var out query.SourceSnippet
	err := c.scheduler.Submit(ctx, AgentQuery, func(ctx context.Context) error {
		c.publishQueryIssued("get_entity_source", entityID)
		r, err := c.query.GetSourceSnippet(ctx, entityID, contextLines, maxBytes)
		out = r
		return err
	})
	return out, err
}

// Query runs the generic query() dispatcher through the query agent.
func (c *Conductor) Query(ctx context.Context, q, filePathHint string, k, pageSize int, cursor string) (query.QueryResult, error) {
	var out query.QueryResult
	err := c.scheduler.Submit(ctx, AgentQuery, func(ctx context.Context) error {
		c.publishQueryIssued("query", q)
		r, err := c.query.Query(ctx, q, filePathHint, k, pageSize, cursor)
		out = r
		return err
	})
	return out, err
}

// FindSimilarCode runs find_similar_code() through the semantic agent.
func (c *Conductor) FindSimilarCode(ctx context.Context, code, entityID string, k int) ([]query.SemanticResult, error) {
	var out []query.SemanticResult
	err := c.scheduler.Submit(ctx, AgentSemantic, func(ctx context.Context) error {
		c.publishQueryIssued("find_similar_code", entityID)
		r, err := c.query.FindSimilarCode(ctx, code, entityID, k)
		out = r
		return err
	})
	return out, err
}

// DetectCodeClones runs detect_code_clones() through the semantic agent.
func (c *Conductor) DetectCodeClones(ctx context.Context, minSimilarity float64) ([]query.ClonePair, error) {
	var out []query.ClonePair
	err := c.scheduler.Submit(ctx, AgentSemantic, func(ctx context.Context) error {
		c.publishQueryIssued("detect_code_clones", "")
		r, err := c.query.DetectCodeClones(ctx, minSimilarity)
		out = r
		return err
	})
	return out, err
}

// CrossLanguageSearch runs cross_language_search() through the semantic agent.
func (c *Conductor) CrossLanguageSearch(ctx context.Context, q string, languages []string, k int) ([]query.SemanticResult, error) {
	var out []query.SemanticResult
	err := c.scheduler.Submit(ctx, AgentSemantic, func(ctx context.Context) error {
		c.publishQueryIssued("cross_language_search", q)
		r, err := c.query.CrossLanguageSearch(ctx, q, languages, k)
		out = r
		return err
	})
	return out, err
}

// FindRelatedConcepts runs find_related_concepts() through the semantic agent.
func (c *Conductor) FindRelatedConcepts(ctx context.Context, entityID string, k int) ([]query.SemanticResult, error) {
	var out []query.SemanticResult
	err := c.scheduler.Submit(ctx, AgentSemantic, func(ctx context.Context) error {
		c.publishQueryIssued("find_related_concepts", entityID)
		r, err := c.query.FindRelatedConcepts(ctx, entityID, k)
		out = r
		return err
	})
	return out, err
}

// SuggestRefactoring runs suggest_refactoring() through the query agent.
func (c *Conductor) SuggestRefactoring(ctx context.Context, filePath string) ([]query.RefactorSuggestion, error) {
	var out []query.RefactorSuggestion
	err := c.scheduler.Submit(ctx, AgentQuery, func(ctx context.Context) error {
		c.publishQueryIssued("suggest_refactoring", filePath)
		r, err := c.query.SuggestRefactoring(ctx, filePath)
		out = r
		return err
	})
	return out, err
}

// GetGraph runs get_graph() through the query agent.
func (c *Conductor) GetGraph(ctx context.Context, limit int) (query.GraphView, error) {
	var out query.GraphView
	err := c.scheduler.Submit(ctx, AgentQuery, func(ctx context.Context) error {
		c.publishQueryIssued("get_graph", "")
		r, err := c.query.GetGraph(ctx, limit)
		out = r
		return err
	})
	return out, err
}

// Metrics is get_metrics()'s response shape: a summary cutting across the
// graph and the parser's CST cache, distinct from get_agent_metrics()
// (Scheduler lane occupancy) and get_bus_stats() (Knowledge Bus subscriber
// counts).
type Metrics struct {
	Graph types.GraphStats
	Cache cache.Stats
}

// GetMetrics runs get_metrics() through the query agent.
func (c *Conductor) GetMetrics(ctx context.Context) (Metrics, error) {
	var out Metrics
	err := c.scheduler.Submit(ctx, AgentQuery, func(ctx context.Context) error {
		stats, err := c.query.GetGraphStats(ctx)
		if err != nil {
			return err
		}
		out = Metrics{Graph: stats, Cache: c.pipeline.CacheStats()}
		return nil
	})
	return out, err
}

func (c *Conductor) publishQueryIssued(op, arg string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.TopicQueryIssued, map[string]string{"op": op, "arg": arg})
}

// AgentMetrics reports every registered agent's lane occupancy, for
// get_agent_metrics().
func (c *Conductor) AgentMetrics() []scheduler.Stats {
	return c.scheduler.AgentStats()
}

// BusStats reports Knowledge Bus subscriber counts, for get_bus_stats().
func (c *Conductor) BusStats() bus.Stats {
	if c.bus == nil {
		return bus.Stats{}
	}
	return c.bus.Stats()
}

// ClearBusTopic runs clear_bus_topic() directly; it has no agent-specific
// cost worth admission-controlling.
func (c *Conductor) ClearBusTopic(topic string) {
	if c.bus != nil {
		c.bus.ClearTopic(topic)
	}
}
