package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/codegraph-rag/engine/internal/errs"
	"github.com/codegraph-rag/engine/internal/grammar"
	"github.com/codegraph-rag/engine/internal/types"
)

// Watcher drives processIncremental from live filesystem change
// notifications, translating each event into one FileChange as it
// arrives; events are not debounced or coalesced.
type Watcher struct {
	fsw      *fsnotify.Watcher
	pipeline *Pipeline
	opts     Options
}

// NewWatcher watches root plus every directory that held at least one
// indexable, non-excluded file at construction time. Directories created
// later are not added.
func NewWatcher(p *Pipeline, root string, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.IOError("newWatcher", root, err)
	}

	dirs, err := walkDirs(root, p.excludes(opts))
	if err != nil {
		fsw.Close()
		return nil, errs.IOError("walkDirs", root, err)
	}
	for _, d := range dirs {
		if err := fsw.Add(d); err != nil {
			fsw.Close()
			return nil, errs.IOError("watchDir", d, err)
		}
	}

	return &Watcher{fsw: fsw, pipeline: p, opts: opts}, nil
}

// Close releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run consumes filesystem events until ctx is cancelled, translating each
// one into a FileChange and driving it through the Pipeline's
// ProcessChanges, one file at a time to keep commits small and
// cursor-resumable under the Scheduler's deadline policy.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if change, ok := w.translate(ev); ok {
				w.pipeline.ProcessChanges(ctx, []types.FileChange{change}, w.opts)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.pipeline.log.Warn("watcher error: %v", err)
		}
	}
}

func (w *Watcher) translate(ev fsnotify.Event) (types.FileChange, bool) {
	if isExcluded(ev.Name, w.opts.ExcludePatterns) {
		return types.FileChange{}, false
	}
	if _, ok := grammar.LanguageForPath(ev.Name); !ok {
		return types.FileChange{}, false
	}

	switch {
	case ev.Op&fsnotify.Remove == fsnotify.Remove, ev.Op&fsnotify.Rename == fsnotify.Rename:
		return types.FileChange{FilePath: ev.Name, ChangeType: types.ChangeDeleted}, true
	case ev.Op&fsnotify.Create == fsnotify.Create:
		content, err := os.ReadFile(ev.Name)
		if err != nil {
			return types.FileChange{}, false
		}
		return types.FileChange{FilePath: ev.Name, ChangeType: types.ChangeCreated, Content: content}, true
	case ev.Op&fsnotify.Write == fsnotify.Write:
		content, err := os.ReadFile(ev.Name)
		if err != nil {
			return types.FileChange{}, false
		}
		return types.FileChange{FilePath: ev.Name, ChangeType: types.ChangeModified, Content: content}, true
	default:
		return types.FileChange{}, false
	}
}

func walkDirs(root string, exclude []string) ([]string, error) {
	var dirs []string
	files, err := walkFiles(root, exclude)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{root: true}
	dirs = append(dirs, root)
	for _, f := range files {
		dir := filepath.Dir(f)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}
