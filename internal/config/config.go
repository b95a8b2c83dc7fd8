// Package config loads the engine's configuration into an immutable
// snapshot at startup. Live reconfiguration is out of scope;
// callers that need to pick up edits restart the process or re-open a
// fresh snapshot.
package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
)

// Config is the full recognized configuration surface.
// Unknown keys encountered while parsing are collected into Warnings
// rather than rejected.
type Config struct {
	Database  Database
	Embedding Embedding
	Indexing  Indexing
	Scheduler Scheduler
	Logging   Logging
	Warnings  []string
}

// Database controls where the graph and vector stores persist.
type Database struct {
	Path string // e.g. "~/.code-graph-rag" ; '~' is expanded to the user's home.
}

// Embedding controls the fixed vector dimension used by the Vector Store.
type Embedding struct {
	Dimension int
}

// Indexing controls batch sizing and exclusion globs for the file walk.
type Indexing struct {
	MaxFilesPerBatch int
	Exclude          []string
}

// Scheduler controls the two admission-pool sizes.
type Scheduler struct {
	CPUWorkers int
	IOWorkers  int
}

// Logging controls where log lines are mirrored besides stderr.
type Logging struct {
	Directory string
	MirrorTmp bool
}

// BuiltinExclusions are always merged with any configured exclude globs.
var BuiltinExclusions = []string{
	".git/**",
	"node_modules/**",
	"dist/**",
	"build/**",
	"target/**",
	"*.min.js",
	".code-graph-rag/**",
	"tmp/**",
}

// Default returns a Config populated with the engine's documented defaults.
func Default() *Config {
	return &Config{
		Database:  Database{Path: "~/.code-graph-rag"},
		Embedding: Embedding{Dimension: 384},
		Indexing: Indexing{
			MaxFilesPerBatch: 50,
			Exclude:          append([]string{}, BuiltinExclusions...),
		},
		Scheduler: Scheduler{
			CPUWorkers: cpuPoolSize(),
			IOWorkers:  8,
		},
		Logging: Logging{},
	}
}

func cpuPoolSize() int {
	if n := runtime.NumCPU(); n < 4 {
		return n
	}
	return 4
}

// ExpandPath expands a leading "~" to the current user's home directory.
func ExpandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home := ""
	if u, err := user.Current(); err == nil {
		home = u.HomeDir
	} else if h, err := os.UserHomeDir(); err == nil {
		home = h
	}
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// MergedExcludes returns the indexing excludes merged with the built-in
// exclusions and any per-call excludePatterns passed to index().
func (c *Config) MergedExcludes(extra []string) []string {
	out := make([]string, 0, len(BuiltinExclusions)+len(c.Indexing.Exclude)+len(extra))
	seen := make(map[string]bool)
	add := func(patterns []string) {
		for _, p := range patterns {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	add(BuiltinExclusions)
	add(c.Indexing.Exclude)
	add(extra)
	return out
}
