package semantic

import (
	"context"
	"sync"

	"github.com/codegraph-rag/engine/internal/telemetry"
	"github.com/codegraph-rag/engine/internal/types"
	"github.com/codegraph-rag/engine/internal/vectorstore"
)

// DefaultQueueSize bounds the embeddings queue shared by the Indexer's
// workers.
const DefaultQueueSize = 512

type jobKind int

const (
	jobUpsert jobKind = iota
	jobDelete
)

type job struct {
	kind   jobKind
	entity types.Entity
	id     string
}

// Indexer derives embeddings for entities in the background and keeps the
// Vector Store's rows in sync with Graph Storage commits. Queries that
// need semantic results tolerate a not-yet-embedded entity by falling
// back to structural matching; embedding is never on the
// critical path of a commit.
type Indexer struct {
	embedder Embedder
	store    *vectorstore.Store
	log      *telemetry.Logger

	queue chan job
	wg    sync.WaitGroup
}

// New builds a Semantic Indexer with the given embedding backend and
// target Vector Store. Call Start to launch its worker pool (size bounded
// by the Scheduler's agent concurrency cap in the caller).
func New(embedder Embedder, store *vectorstore.Store, queueSize int, log *telemetry.Logger) *Indexer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = telemetry.Default()
	}
	return &Indexer{embedder: embedder, store: store, log: log, queue: make(chan job, queueSize)}
}

// Start launches the given number of consumer goroutines draining the
// embeddings queue until ctx is cancelled.
func (ix *Indexer) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		ix.wg.Add(1)
		go ix.worker(ctx)
	}
}

// Wait blocks until every worker has exited after ctx cancellation. Jobs
// still queued at that point are not processed.
func (ix *Indexer) Wait() {
	ix.wg.Wait()
}

func (ix *Indexer) worker(ctx context.Context) {
	defer ix.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-ix.queue:
			if !ok {
				return
			}
			ix.process(ctx, j)
		}
	}
}

func (ix *Indexer) process(ctx context.Context, j job) {
	switch j.kind {
	case jobUpsert:
		vec := ix.embedder.Embed(EntityText(j.entity))
		if err := ix.store.Upsert(ctx, j.entity.ID, vec); err != nil {
			ix.log.Warn("semantic indexer upsert failed entity=%s err=%v", j.entity.ID, err)
		}
	case jobDelete:
		if err := ix.store.Delete(ctx, j.id); err != nil {
			ix.log.Warn("semantic indexer delete failed entity=%s err=%v", j.id, err)
		}
	}
}

// EnqueueUpsert schedules entity for (re-)embedding. It blocks if the
// queue is at capacity, which is the component's natural backpressure
// suspension point.
func (ix *Indexer) EnqueueUpsert(ctx context.Context, entity types.Entity) {
	select {
	case ix.queue <- job{kind: jobUpsert, entity: entity}:
	case <-ctx.Done():
	}
}

// EnqueueDelete schedules id's embedding for removal.
func (ix *Indexer) EnqueueDelete(ctx context.Context, id string) {
	select {
	case ix.queue <- job{kind: jobDelete, id: id}:
	case <-ctx.Done():
	}
}

// Reconcile diffs the entities previously recorded for a file against the
// entities a fresh commit is about to write. added/modified entities are
// enqueued for upsert and removed ids for deletion, so embeddings never
// outlive their entity past the commit window.
func Reconcile(previous, current []types.Entity) (added, modified []types.Entity, removed []string) {
	prevByID := make(map[string]types.Entity, len(previous))
	for _, e := range previous {
		prevByID[e.ID] = e
	}
	currIDs := make(map[string]bool, len(current))

	for _, e := range current {
		currIDs[e.ID] = true
		prev, existed := prevByID[e.ID]
		if !existed {
			added = append(added, e)
			continue
		}
		if EntityText(prev) != EntityText(e) {
			modified = append(modified, e)
		}
	}

	for id := range prevByID {
		if !currIDs[id] {
			removed = append(removed, id)
		}
	}
	return added, modified, removed
}

// SyncFile enqueues every consequence of replacing a file's prior entities
// with its current ones: upserts for added/modified, deletes for removed.
func (ix *Indexer) SyncFile(ctx context.Context, previous, current []types.Entity) {
	added, modified, removed := Reconcile(previous, current)
	for _, e := range added {
		ix.EnqueueUpsert(ctx, e)
	}
	for _, e := range modified {
		ix.EnqueueUpsert(ctx, e)
	}
	for _, id := range removed {
		ix.EnqueueDelete(ctx, id)
	}
}
