// Package telemetry is the engine's structured logging layer. Stdout is
// reserved for MCP protocol frames when the engine runs as a stdio server,
// so every log line goes to stderr or to a log file under the configured
// logging directory.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level orders log severities from most to least verbose.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is a minimal leveled logger writing to one or more io.Writers.
// It never writes to stdout so the MCP stdio transport stays clean.
type Logger struct {
	mu      sync.Mutex
	out     []io.Writer
	minimum Level
	fields  map[string]string
	file    *os.File
}

// New creates a Logger at the given minimum level, writing to stderr.
func New(minimum Level) *Logger {
	return &Logger{out: []io.Writer{os.Stderr}, minimum: minimum}
}

// WithFields returns a derived logger that prefixes every line with the
// given static key=value pairs, e.g. a component name.
func (l *Logger) WithFields(fields map[string]string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	merged := make(map[string]string, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{out: l.out, minimum: l.minimum, fields: merged, file: l.file}
}

// MirrorToDirectory opens (creating if needed) a timestamped log file under
// dir and additionally writes every line there. When mirrorTmp is also set
// by the caller's configuration, callers should pass os.TempDir()-rooted
// dir themselves; this function only performs the file plumbing.
func (l *Logger) MirrorToDirectory(dir string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	name := fmt.Sprintf("codegraph-%s.log", time.Now().Format("20060102T150405"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open log file: %w", err)
	}
	l.file = f
	l.out = append(l.out, f)
	return path, nil
}

// Close releases any open log file handle.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.minimum {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("%s [%s] %s", time.Now().UTC().Format(time.RFC3339Nano), level, fmt.Sprintf(format, args...))
	for k, v := range l.fields {
		line += fmt.Sprintf(" %s=%s", k, v)
	}
	line += "\n"
	for _, w := range l.out {
		_, _ = io.WriteString(w, line)
	}
}

func (l *Logger) Trace(format string, args ...any) { l.log(LevelTrace, format, args...) }
func (l *Logger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

// CircuitBreakerEvent logs a structured circuit-breaker trip so operators
// can see which analyzer aborted and why without crashing the process.
func (l *Logger) CircuitBreakerEvent(path, analyzer, reason string) {
	l.Warn("circuit breaker tripped path=%s analyzer=%s reason=%s", path, analyzer, reason)
}

// CacheEviction logs an observable-but-non-fatal LRU eviction trace.
func (l *Logger) CacheEviction(key string, sizeBytes int) {
	l.Trace("lru evicted key=%s bytes=%d", key, sizeBytes)
}

var (
	defaultOnce sync.Once
	defaultLog  *Logger
)

// Default returns a process-wide logger at Info level, lazily created.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLog = New(LevelInfo)
	})
	return defaultLog
}
