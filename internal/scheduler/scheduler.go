// Package scheduler is the Resource Manager / Scheduler: the
// component that admits CPU-bound and I/O-bound work onto two bounded
// pools, enforces a per-agent concurrency cap with a bounded FIFO backlog,
// tracks heartbeat liveness, and hands cooperative cancellation tokens to
// long-running tasks. Built on golang.org/x/sync's semaphore.Weighted for
// the two admission pools.
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/codegraph-rag/engine/internal/errs"
	"github.com/codegraph-rag/engine/internal/telemetry"
)

// Pool identifies one of the two admission pools.
type Pool int

const (
	CPUBound Pool = iota
	IOBound
)

// DefaultHeartbeatInterval is how often a live agent is expected to check in.
const DefaultHeartbeatInterval = 5 * time.Second

// DefaultToolCallDeadline is the default externally-triggered operation
// deadline.
const DefaultToolCallDeadline = 600 * time.Second

// Config sizes the two pools. Zero values take the defaults:
// CPU pool = min(4, NumCPU), IO pool = 8.
type Config struct {
	CPUWorkers int
	IOWorkers  int
}

func (c Config) withDefaults() Config {
	if c.CPUWorkers <= 0 {
		if n := runtime.NumCPU(); n < 4 {
			c.CPUWorkers = n
		} else {
			c.CPUWorkers = 4
		}
	}
	if c.IOWorkers <= 0 {
		c.IOWorkers = 8
	}
	return c
}

// Scheduler admits tasks onto the CPU/IO pools, respecting a per-agent
// concurrency cap and bounded backlog.
type Scheduler struct {
	cpuSem *semaphore.Weighted
	ioSem  *semaphore.Weighted
	log    *telemetry.Logger

	mu         sync.Mutex
	agents     map[string]*agentLane
	heartbeats map[string]time.Time
}

// New builds a Scheduler with the given pool sizes.
func New(cfg Config, log *telemetry.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	if log == nil {
		log = telemetry.Default()
	}
	return &Scheduler{
		cpuSem:     semaphore.NewWeighted(int64(cfg.CPUWorkers)),
		ioSem:      semaphore.NewWeighted(int64(cfg.IOWorkers)),
		log:        log,
		agents:     make(map[string]*agentLane),
		heartbeats: make(map[string]time.Time),
	}
}

type agentLane struct {
	name    string
	pool    Pool
	sem     *semaphore.Weighted // per-agent concurrency cap
	backlog chan struct{}       // bounded-backlog token bucket
}

// RegisterAgent declares an agent's pool affinity, concurrency cap and
// backlog depth. Re-registering the same name replaces its lane.
func (s *Scheduler) RegisterAgent(name string, pool Pool, concurrency, backlog int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	if backlog <= 0 {
		backlog = 16
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[name] = &agentLane{
		name:    name,
		pool:    pool,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		backlog: make(chan struct{}, backlog),
	}
}

func (s *Scheduler) lane(name string) (*agentLane, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.agents[name]
	return l, ok
}

func (s *Scheduler) poolSem(pool Pool) *semaphore.Weighted {
	if pool == IOBound {
		return s.ioSem
	}
	return s.cpuSem
}

// Submit runs fn once both the agent's concurrency cap and the pool's
// admission slot are available. If the agent's bounded backlog is already
// full, Submit returns AgentBusy immediately instead of blocking; callers
// retry with backoff. Once admitted, fn observes ctx for
// cooperative cancellation at its own suspension points.
func (s *Scheduler) Submit(ctx context.Context, agent string, fn func(context.Context) error) error {
	lane, ok := s.lane(agent)
	if !ok {
		return errs.New(errs.KindInvalidArgument, "submit", nil).WithPath(agent)
	}

	select {
	case lane.backlog <- struct{}{}:
		defer func() { <-lane.backlog }()
	default:
		return errs.AgentBusy(agent)
	}

	pool := s.poolSem(lane.pool)
	if err := pool.Acquire(ctx, 1); err != nil {
		return errs.Cancelled("submit:" + agent)
	}
	defer pool.Release(1)

	if err := lane.sem.Acquire(ctx, 1); err != nil {
		return errs.Cancelled("submit:" + agent)
	}
	defer lane.sem.Release(1)

	return fn(ctx)
}

// Heartbeat records that agent is alive as of now.
func (s *Scheduler) Heartbeat(agent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats[agent] = time.Now()
}

// IsStale reports whether agent hasn't heartbeat-ed within
// maxMissed*DefaultHeartbeatInterval. An agent with no recorded heartbeat
// at all is not considered stale (it may simply not have started).
func (s *Scheduler) IsStale(agent string, maxMissed int) bool {
	s.mu.Lock()
	last, ok := s.heartbeats[agent]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return time.Since(last) > time.Duration(maxMissed)*DefaultHeartbeatInterval
}

// ToolCallContext derives a context bounded by the tool-call deadline.
func ToolCallContext(parent context.Context, deadline time.Duration) (context.Context, context.CancelFunc) {
	if deadline <= 0 {
		deadline = DefaultToolCallDeadline
	}
	return context.WithTimeout(parent, deadline)
}

// Stats describes one agent lane's current occupancy, for
// get_agent_metrics().
type Stats struct {
	Agent        string
	QueueDepth   int
	QueueBacklog int
}

// AgentStats snapshots every registered agent's lane occupancy.
func (s *Scheduler) AgentStats() []Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Stats, 0, len(s.agents))
	for name, lane := range s.agents {
		out = append(out, Stats{Agent: name, QueueDepth: len(lane.backlog), QueueBacklog: cap(lane.backlog)})
	}
	return out
}
