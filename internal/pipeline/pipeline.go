// Package pipeline is the orchestrator wiring the Incremental Parser, Graph
// Storage and Semantic Indexer into the engine's top-level operations:
// index, batch_index, clean_index and reset_graph. It owns the
// file walk and the resumable batch-index session store.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codegraph-rag/engine/internal/bus"
	"github.com/codegraph-rag/engine/internal/cache"
	"github.com/codegraph-rag/engine/internal/config"
	"github.com/codegraph-rag/engine/internal/errs"
	"github.com/codegraph-rag/engine/internal/graphstore"
	"github.com/codegraph-rag/engine/internal/incrparser"
	"github.com/codegraph-rag/engine/internal/semantic"
	"github.com/codegraph-rag/engine/internal/telemetry"
	"github.com/codegraph-rag/engine/internal/types"
)

// Options configures a single index/batch_index/clean_index call, layered
// over the loaded Config.
type Options struct {
	// Incremental reparses only changed files; unchanged files are served
	// from the content-hash cache.
	Incremental bool
	// Force bypasses the cache entirely and reparses everything.
	Force            bool
	ExcludePatterns  []string
	MaxFilesPerBatch int
}

// IndexResult is index()'s and clean_index()'s response shape.
type IndexResult struct {
	FilesIndexed  int
	Entities      int
	Relationships int
	DurationMs    float64
}

// Pipeline wires one Incremental Parser, one Graph Storage and one Semantic
// Indexer together. It holds no per-call state; BatchIndex's resumability
// lives in the session store instead.
type Pipeline struct {
	cfg     *config.Config
	parser  *incrparser.Parser
	graph   *graphstore.Store
	indexer *semantic.Indexer
	bus     *bus.Bus
	log     *telemetry.Logger

	sessions *SessionStore
}

// New builds a Pipeline. sessionDir is where batch_index persists resumable
// IndexSession records.
func New(cfg *config.Config, parser *incrparser.Parser, graph *graphstore.Store, indexer *semantic.Indexer, b *bus.Bus, log *telemetry.Logger, sessionDir string) *Pipeline {
	if log == nil {
		log = telemetry.Default()
	}
	return &Pipeline{
		cfg:      cfg,
		parser:   parser,
		graph:    graph,
		indexer:  indexer,
		bus:      b,
		log:      log,
		sessions: NewSessionStore(sessionDir),
	}
}

func (p *Pipeline) excludes(opts Options) []string {
	return p.cfg.MergedExcludes(opts.ExcludePatterns)
}

// Index walks path, parses every discovered file and commits the results to
// Graph Storage, reconciling the Semantic Indexer's vectors as it goes.
func (p *Pipeline) Index(ctx context.Context, path string, opts Options) (IndexResult, error) {
	start := time.Now()

	files, err := walkFiles(path, p.excludes(opts))
	if err != nil {
		return IndexResult{}, errs.IOError("walk", path, err)
	}

	batch := p.parser.ParseBatch(ctx, files, incrparser.ParseOptions{SkipCache: opts.Force})

	result := IndexResult{FilesIndexed: len(files)}
	for _, pr := range batch.Results {
		if err := p.commit(ctx, pr); err != nil {
			p.log.Warn("index commit failed path=%s err=%v", pr.FilePath, err)
			continue
		}
		result.Entities += len(pr.Entities)
		result.Relationships += len(pr.Relationships)
	}

	result.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0
	if p.bus != nil {
		p.bus.Publish(bus.TopicIndexDirty, result)
	}
	return result, nil
}

// commit fetches a file's previously recorded entities, replaces them in
// Graph Storage, and reconciles the Semantic Indexer against the diff so
// vector rows stay consistent with the entity rows that produced them
// within the same commit.
func (p *Pipeline) commit(ctx context.Context, pr types.ParseResult) error {
	previous, err := p.graph.GetEntitiesByFile(ctx, pr.FilePath)
	if err != nil {
		return err
	}

	record := types.FileRecord{
		FilePath:     pr.FilePath,
		ContentHash:  pr.ContentHash,
		Language:     pr.Language,
		LastParsedAt: time.Now(),
		ParseTimeMs:  pr.ParseTimeMs,
		ErrorCount:   len(pr.Errors),
	}
	if err := p.graph.CommitFile(ctx, record, pr.Entities, pr.Relationships, pr.Errors); err != nil {
		return err
	}

	if p.indexer != nil {
		p.indexer.SyncFile(ctx, previous, pr.Entities)
	}
	if p.bus != nil {
		p.bus.Publish(bus.TopicParseDone, pr)
	}
	return nil
}

// BatchIndexResult is batch_index()'s response shape.
type BatchIndexResult struct {
	SessionID string
	Done      bool
	Processed int
	Remaining int
	Percent   int
	Errors    []types.ParseError
}

// BatchIndex processes at most opts.MaxFilesPerBatch files from a resumable
// session, creating one when sessionID is empty and persisting the advanced
// cursor before returning.
func (p *Pipeline) BatchIndex(ctx context.Context, path string, opts Options, sessionID string) (BatchIndexResult, error) {
	maxPerBatch := opts.MaxFilesPerBatch
	if maxPerBatch <= 0 {
		maxPerBatch = p.cfg.Indexing.MaxFilesPerBatch
	}
	if maxPerBatch <= 0 {
		maxPerBatch = incrparser.DefaultBatchSize
	}

	var session *types.IndexSession
	if sessionID != "" {
		loaded, err := p.sessions.Load(sessionID)
		if err != nil {
			return BatchIndexResult{}, err
		}
		session = loaded
	} else {
		files, err := walkFiles(path, p.excludes(opts))
		if err != nil {
			return BatchIndexResult{}, errs.IOError("walk", path, err)
		}
		session = &types.IndexSession{
			SessionID: uuid.NewString(),
			RootPath:  path,
			FileQueue: files,
			StartedAt: time.Now(),
			Stats:     types.BatchStats{Total: len(files)},
		}
	}

	end := session.Cursor + maxPerBatch
	if end > len(session.FileQueue) {
		end = len(session.FileQueue)
	}
	chunk := session.FileQueue[session.Cursor:end]

	batch := p.parser.ParseBatch(ctx, chunk, incrparser.ParseOptions{SkipCache: opts.Force})
	for _, pr := range batch.Results {
		if err := p.commit(ctx, pr); err != nil {
			p.log.Warn("batchIndex commit failed path=%s err=%v", pr.FilePath, err)
		}
	}

	session.Cursor = end
	session.Stats.Succeeded += batch.Stats.Succeeded
	session.Stats.Failed += batch.Stats.Failed
	session.Stats.FromCache += batch.Stats.FromCache
	session.Stats.TotalTimeMs += batch.Stats.TotalTimeMs

	if !session.Done() {
		if err := p.sessions.Save(session); err != nil {
			return BatchIndexResult{}, err
		}
	} else {
		p.sessions.Delete(session.SessionID)
	}

	return BatchIndexResult{
		SessionID: session.SessionID,
		Done:      session.Done(),
		Processed: session.Cursor,
		Remaining: session.Remaining(),
		Percent:   session.Percent(),
		Errors:    batch.Errors,
	}, nil
}

// CleanIndex discards every record in Graph Storage and every cache entry,
// not only those under path, then runs a fresh Index of path.
func (p *Pipeline) CleanIndex(ctx context.Context, path string, opts Options) (IndexResult, error) {
	if err := p.graph.ResetAll(ctx); err != nil {
		return IndexResult{}, err
	}
	p.parser.ClearCache()
	return p.Index(ctx, path, opts)
}

// ResetGraph truncates Graph Storage entirely.
func (p *Pipeline) ResetGraph(ctx context.Context) error {
	return p.graph.ResetAll(ctx)
}

// CacheStats exposes the Incremental Parser's CST cache occupancy, for
// get_metrics().
func (p *Pipeline) CacheStats() cache.Stats {
	return p.parser.CacheStats()
}

// ProcessChanges applies a batch of externally-observed FileChanges
// (typically from a Watcher) through the same commit path as Index,
// including deletions.
func (p *Pipeline) ProcessChanges(ctx context.Context, changes []types.FileChange, opts Options) []types.ParseResult {
	for _, c := range changes {
		if c.ChangeType != types.ChangeDeleted {
			continue
		}
		// Capture the doomed ids before the rows go away, so their
		// embeddings can be evicted too.
		var doomed []types.Entity
		if p.indexer != nil {
			if prev, err := p.graph.GetEntitiesByFile(ctx, c.FilePath); err == nil {
				doomed = prev
			}
		}
		if err := p.graph.DeleteFile(ctx, c.FilePath); err != nil {
			p.log.Warn("processChanges delete failed path=%s err=%v", c.FilePath, err)
			continue
		}
		for _, e := range doomed {
			p.indexer.EnqueueDelete(ctx, e.ID)
		}
	}

	results := p.parser.ProcessIncremental(ctx, changes, incrparser.ParseOptions{SkipCache: false})
	for _, pr := range results {
		if err := p.commit(ctx, pr); err != nil {
			p.log.Warn("processChanges commit failed path=%s err=%v", pr.FilePath, err)
		}
	}
	return results
}
