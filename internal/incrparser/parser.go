// Package incrparser implements the Incremental Parser: the
// component that coordinates the content-hash LRU cache, the Tree-Sitter
// Parser and the Language Analyzers into parseFile/parseBatch/
// processIncremental. Batches run in bounded-parallelism chunks; each
// worker drives the full grammar-parse-analyze chain for one file.
package incrparser

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"golang.org/x/sync/semaphore"

	"github.com/codegraph-rag/engine/internal/analysis"
	"github.com/codegraph-rag/engine/internal/cache"
	"github.com/codegraph-rag/engine/internal/errs"
	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/telemetry"
	"github.com/codegraph-rag/engine/internal/treesitter"
	"github.com/codegraph-rag/engine/internal/types"
)

// DefaultBatchSize is parseBatch's default chunk size.
const DefaultBatchSize = 10

// ParseOptions configures a single parseFile/parseBatch call.
type ParseOptions struct {
	// SkipCache, when true, bypasses the LRU entirely (opts.useCache==false).
	SkipCache bool
	// BatchSize overrides DefaultBatchSize for parseBatch.
	BatchSize int
	// Parallelism bounds how many files within one chunk parse concurrently;
	// defaults to the chunk size when unset.
	Parallelism int
}

// BatchResult is parseBatch's return shape.
type BatchResult struct {
	Results []types.ParseResult
	Errors  []types.ParseError
	Stats   types.BatchStats
}

// Parser is the Incremental Parser: cache + grammar + tree-sitter +
// analyzer dispatch, plus the retained-tree table processIncremental needs
// to reparse incrementally.
type Parser struct {
	registry *grammar.Registry
	ts       *treesitter.Parser
	cache    *cache.LRU
	log      *telemetry.Logger

	treesMu sync.Mutex
	trees   map[string]*tree_sitter.Tree
}

// New builds an Incremental Parser bound to registry, with an LRU sized at
// maxCacheBytes (<=0 uses cache.DefaultMaxBytes).
func New(registry *grammar.Registry, maxCacheBytes int64, log *telemetry.Logger) *Parser {
	if log == nil {
		log = telemetry.Default()
	}
	return &Parser{
		registry: registry,
		ts:       treesitter.New(registry),
		cache:    cache.New(maxCacheBytes, log),
		log:      log,
		trees:    make(map[string]*tree_sitter.Tree),
	}
}

// ParseFile parses (or returns the cached parse of) path. When text is nil
// the file's bytes are read from disk.
func (p *Parser) ParseFile(ctx context.Context, path string, text []byte, opts ParseOptions) (types.ParseResult, error) {
	if text == nil {
		errKey := cache.Key(path, "error")
		if !opts.SkipCache {
			if entry, ok := p.cache.Get(errKey); ok {
				result := entry.Result
				result.FromCache = true
				return result, nil
			}
		}
		b, err := os.ReadFile(path)
		if err != nil {
			result := p.errorResult(path, "error", errs.IOError("readFile", path, err))
			if !opts.SkipCache {
				p.cache.Put(errKey, result, estimateSize(result))
			}
			return result, nil
		}
		text = b
	}

	hash := contentHash(text)
	key := cache.Key(path, hash)

	if !opts.SkipCache {
		if entry, ok := p.cache.Get(key); ok {
			result := entry.Result
			result.FromCache = true
			return result, nil
		}
	}

	result := p.analyze(ctx, path, text, hash)

	if !opts.SkipCache {
		size := estimateSize(result)
		p.cache.Put(key, result, size)
	}
	return result, nil
}

func (p *Parser) analyze(ctx context.Context, path string, text []byte, hash string) types.ParseResult {
	start := time.Now()

	lang, ok := grammar.LanguageForPath(path)
	if !ok {
		return p.errorResult(path, hash, errs.UnsupportedLanguage(path))
	}

	analyzer, ok := analysis.For(lang)
	if !ok {
		return p.errorResult(path, hash, errs.UnsupportedLanguage(path))
	}

	var tree *tree_sitter.Tree
	if grammar.HasCST(lang) {
		po, err := p.ts.Parse(ctx, path, text)
		if err != nil {
			return p.errorResult(path, hash, err)
		}
		tree = po.Tree
	}

	actx := analysis.NewContext(p.log, analysis.DefaultAnalyzeTimeout)
	out := analyzer.Analyze(actx, tree, text, path)

	if len(out.Entities) == 0 && len(out.Errors) == 0 && (lang == grammar.LangJS || lang == grammar.LangTS) {
		out = regexFallback(text, path)
	}

	elapsed := time.Since(start)
	if tree != nil {
		p.retainTree(path, tree)
	}

	return types.ParseResult{
		FilePath:      path,
		Entities:      out.Entities,
		Relationships: out.Relationships,
		Errors:        out.Errors,
		ParseTimeMs:   float64(elapsed.Microseconds()) / 1000.0,
		FromCache:     false,
		ContentHash:   hash,
		Language:      string(lang),
	}
}

func (p *Parser) errorResult(path, hash string, err error) types.ParseResult {
	return types.ParseResult{
		FilePath:    path,
		Errors:      []types.ParseError{{FilePath: path, Message: err.Error()}},
		ContentHash: hash,
	}
}

func (p *Parser) retainTree(path string, tree *tree_sitter.Tree) {
	p.treesMu.Lock()
	defer p.treesMu.Unlock()
	if old, ok := p.trees[path]; ok && old != tree {
		old.Close()
	}
	p.trees[path] = tree
}

func (p *Parser) retainedTree(path string) *tree_sitter.Tree {
	p.treesMu.Lock()
	defer p.treesMu.Unlock()
	return p.trees[path]
}

func (p *Parser) forgetTree(path string) {
	p.treesMu.Lock()
	defer p.treesMu.Unlock()
	if old, ok := p.trees[path]; ok {
		old.Close()
		delete(p.trees, path)
	}
}

// ParseBatch processes files in bounded-parallelism chunks of opts.BatchSize
// (default DefaultBatchSize), emitting a progress log line every 100 files.
func (p *Parser) ParseBatch(ctx context.Context, files []string, opts ParseOptions) BatchResult {
	chunkSize := opts.BatchSize
	if chunkSize <= 0 {
		chunkSize = DefaultBatchSize
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = chunkSize
	}

	start := time.Now()
	var br BatchResult
	br.Results = make([]types.ParseResult, 0, len(files))
	br.Stats.Total = len(files)

	sem := semaphore.NewWeighted(int64(parallelism))
	var mu sync.Mutex
	var processed int

	for chunkStart := 0; chunkStart < len(files); chunkStart += chunkSize {
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(files) {
			chunkEnd = len(files)
		}
		chunk := files[chunkStart:chunkEnd]

		var wg sync.WaitGroup
		for _, f := range chunk {
			select {
			case <-ctx.Done():
				mu.Lock()
				br.Errors = append(br.Errors, types.ParseError{FilePath: f, Message: "cancelled"})
				br.Stats.Failed++
				mu.Unlock()
				continue
			default:
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				br.Errors = append(br.Errors, types.ParseError{FilePath: f, Message: err.Error()})
				mu.Unlock()
				continue
			}
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				defer sem.Release(1)

				result, _ := p.ParseFile(ctx, path, nil, opts)

				mu.Lock()
				defer mu.Unlock()
				br.Results = append(br.Results, result)
				if len(result.Entities) == 0 && len(result.Errors) > 0 {
					br.Stats.Failed++
					br.Errors = append(br.Errors, result.Errors...)
				} else {
					br.Stats.Succeeded++
				}
				if result.FromCache {
					br.Stats.FromCache++
				}
				processed++
				if processed%100 == 0 {
					p.log.Info("parseBatch progress: %d/%d files", processed, len(files))
				}
			}(f)
		}
		wg.Wait()
	}

	elapsed := time.Since(start)
	br.Stats.TotalTimeMs = float64(elapsed.Microseconds()) / 1000.0
	if elapsed > 0 {
		br.Stats.ThroughputFilesPerSec = float64(len(files)) / elapsed.Seconds()
	}
	return br
}

// ProcessIncremental applies a batch of FileChanges, reparsing modified
// files incrementally against their retained tree when edits are supplied,
// and evicting cache/tree state for deleted files. It returns one
// ParseResult per created/modified change, in input order; deleted changes
// produce no result (callers drive Graph Storage deletion separately).
func (p *Parser) ProcessIncremental(ctx context.Context, changes []types.FileChange, opts ParseOptions) []types.ParseResult {
	results := make([]types.ParseResult, 0, len(changes))

	for _, change := range changes {
		select {
		case <-ctx.Done():
			return results
		default:
		}

		switch change.ChangeType {
		case types.ChangeDeleted:
			p.cache.DeletePrefix(change.FilePath + ":")
			p.forgetTree(change.FilePath)
			continue

		case types.ChangeCreated, types.ChangeModified:
			if change.Content != nil && len(change.Edits) > 0 {
				if oldTree := p.retainedTree(change.FilePath); oldTree != nil {
					results = append(results, p.parseIncrementalAgainst(ctx, change, oldTree, opts))
					continue
				}
			}
			result, _ := p.ParseFile(ctx, change.FilePath, change.Content, opts)
			results = append(results, result)
		}
	}
	return results
}

func (p *Parser) parseIncrementalAgainst(ctx context.Context, change types.FileChange, oldTree *tree_sitter.Tree, opts ParseOptions) types.ParseResult {
	hash := contentHash(change.Content)
	key := cache.Key(change.FilePath, hash)
	if !opts.SkipCache {
		if entry, ok := p.cache.Get(key); ok {
			result := entry.Result
			result.FromCache = true
			return result
		}
	}

	lang, ok := grammar.LanguageForPath(change.FilePath)
	if !ok || !grammar.HasCST(lang) {
		result := p.analyze(ctx, change.FilePath, change.Content, hash)
		if !opts.SkipCache {
			p.cache.Put(key, result, estimateSize(result))
		}
		return result
	}

	start := time.Now()
	po, err := p.ts.ParseIncremental(ctx, change.FilePath, change.Content, change.Edits, oldTree)
	if err != nil {
		return p.errorResult(change.FilePath, hash, err)
	}

	analyzer, ok := analysis.For(lang)
	if !ok {
		return p.errorResult(change.FilePath, hash, errs.UnsupportedLanguage(change.FilePath))
	}
	actx := analysis.NewContext(p.log, analysis.DefaultAnalyzeTimeout)
	out := analyzer.Analyze(actx, po.Tree, change.Content, change.FilePath)
	elapsed := time.Since(start)

	p.retainTree(change.FilePath, po.Tree)

	result := types.ParseResult{
		FilePath:      change.FilePath,
		Entities:      out.Entities,
		Relationships: out.Relationships,
		Errors:        out.Errors,
		ParseTimeMs:   float64(elapsed.Microseconds()) / 1000.0,
		ContentHash:   hash,
		Language:      string(lang),
	}
	if !opts.SkipCache {
		p.cache.Put(key, result, estimateSize(result))
	}
	return result
}

// ClearCache empties the LRU entirely.
func (p *Parser) ClearCache() {
	p.cache.Clear()
}

// ExportCache serializes the current LRU contents to JSON, for persisting
// across process restarts.
func (p *Parser) ExportCache() ([]byte, error) {
	return json.Marshal(p.cache.Export())
}

// WarmRestart repopulates the LRU from a previously exported snapshot. A
// freshly warm-restarted cache must reach >=80% fromCache hit rate on an
// unchanged repository.
func (p *Parser) WarmRestart(data []byte) error {
	var entries []types.CacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return errs.New(errs.KindIOError, "warmRestart", err)
	}
	p.cache.Restore(entries)
	return nil
}

// CacheStats exposes the LRU's hit/miss/eviction counters.
func (p *Parser) CacheStats() cache.Stats {
	return p.cache.Stats()
}

func estimateSize(r types.ParseResult) int {
	b, err := json.Marshal(r)
	if err != nil {
		return 256
	}
	return len(b)
}
