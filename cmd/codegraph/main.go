// Command codegraph is the thin CLI entrypoint wrapping the core engine.
// The CLI surface, MCP transport and packaging are thin adapters over the
// core; this binary only parses flags, builds one
// Conductor, and either serves it over MCP stdio or runs a one-shot index.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/codegraph-rag/engine/internal/agents"
	"github.com/codegraph-rag/engine/internal/bus"
	"github.com/codegraph-rag/engine/internal/config"
	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/graphstore"
	"github.com/codegraph-rag/engine/internal/incrparser"
	"github.com/codegraph-rag/engine/internal/mcpserver"
	"github.com/codegraph-rag/engine/internal/pipeline"
	"github.com/codegraph-rag/engine/internal/query"
	"github.com/codegraph-rag/engine/internal/scheduler"
	"github.com/codegraph-rag/engine/internal/semantic"
	"github.com/codegraph-rag/engine/internal/telemetry"
	"github.com/codegraph-rag/engine/internal/vectorstore"
)

// engine bundles every component New'd up from one Config, closed together
// via Close. Built once per process invocation.
type engine struct {
	conductor  *agents.Conductor
	sched      *scheduler.Scheduler
	graph      *graphstore.Store
	vectors    *vectorstore.Store
	semIndexer *semantic.Indexer
	stopSem    context.CancelFunc
	log        *telemetry.Logger
}

func buildEngine(cfg *config.Config) (*engine, error) {
	log := telemetry.New(telemetry.LevelInfo)
	if cfg.Logging.Directory != "" {
		if _, err := log.MirrorToDirectory(config.ExpandPath(cfg.Logging.Directory)); err != nil {
			log.Warn("could not mirror logs to %s: %v", cfg.Logging.Directory, err)
		}
	}

	dbDir := config.ExpandPath(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	graph, err := graphstore.Open(filepath.Join(dbDir, "graph.db"))
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	vectors, err := vectorstore.Open(filepath.Join(dbDir, "vectors.db"), cfg.Embedding.Dimension)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	embedder := semantic.NewHashEmbedder(cfg.Embedding.Dimension)
	b := bus.New(256)
	semIndexer := semantic.New(embedder, vectors, 256, log)
	semCtx, stopSem := context.WithCancel(context.Background())
	semIndexer.Start(semCtx, 2)
	registry := grammar.NewRegistry()
	parser := incrparser.New(registry, 100*1024*1024, log)
	pl := pipeline.New(cfg, parser, graph, semIndexer, b, log, filepath.Join(dbDir, "sessions"))
	qe := query.New(graph, vectors, embedder)

	sched := scheduler.New(scheduler.Config{
		CPUWorkers: cfg.Scheduler.CPUWorkers,
		IOWorkers:  cfg.Scheduler.IOWorkers,
	}, log)
	conductor := agents.New(sched, b, pl, qe, log, agents.Config{Backlog: 64})

	return &engine{
		conductor:  conductor,
		sched:      sched,
		graph:      graph,
		vectors:    vectors,
		semIndexer: semIndexer,
		stopSem:    stopSem,
		log:        log,
	}, nil
}

func (e *engine) Close() {
	e.stopSem()
	e.semIndexer.Wait()
	_ = e.graph.Close()
	_ = e.vectors.Close()
	_ = e.log.Close()
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		root = "."
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if db := c.String("database"); db != "" {
		cfg.Database.Path = db
	}
	for _, w := range cfg.Warnings {
		fmt.Fprintln(os.Stderr, "config warning:", w)
	}
	return cfg, nil
}

func main() {
	app := &cli.App{
		Name:  "codegraph",
		Usage: "incremental code-graph and semantic index MCP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Value: ".", Usage: "project root to load configuration from"},
			&cli.StringFlag{Name: "database", Aliases: []string{"d"}, Usage: "override database.path"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the MCP server over stdio",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					e, err := buildEngine(cfg)
					if err != nil {
						return err
					}
					defer e.Close()

					ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
					defer stop()
					go e.conductor.RunHeartbeats(ctx)

					srv := mcpserver.NewServer(e.conductor, e.log)
					return srv.Start(ctx)
				},
			},
			{
				Name:      "index",
				Usage:     "index a path once and print summary stats",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "incremental", Usage: "only re-parse changed files"},
				},
				Action: func(c *cli.Context) error {
					path := c.Args().First()
					if path == "" {
						return cli.Exit("index requires a path argument", 1)
					}
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					e, err := buildEngine(cfg)
					if err != nil {
						return err
					}
					defer e.Close()

					result, err := e.conductor.Index(context.Background(), path, pipeline.Options{
						Incremental:      c.Bool("incremental"),
						MaxFilesPerBatch: cfg.Indexing.MaxFilesPerBatch,
					})
					if err != nil {
						return err
					}
					fmt.Printf("filesIndexed=%d entities=%d relationships=%d durationMs=%.1f\n",
						result.FilesIndexed, result.Entities, result.Relationships, result.DurationMs)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "codegraph:", err)
		os.Exit(1)
	}
}
