package pipeline

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/codegraph-rag/engine/internal/grammar"
)

// walkFiles lists every indexable file under root, honoring exclude globs
// (doublestar patterns matched against the root-relative, slash-normalized
// path) and skipping symlink cycles.
func walkFiles(root string, exclude []string) ([]string, error) {
	var out []string
	visitedDirs := make(map[string]bool)

	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}

		if info.IsDir() {
			realPath, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			if visitedDirs[realPath] {
				return filepath.SkipDir
			}
			visitedDirs[realPath] = true
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if rel != "." && isExcluded(rel+"/", exclude) {
				return filepath.SkipDir
			}
			return nil
		}

		if isExcluded(rel, exclude) {
			return nil
		}
		if _, ok := grammar.LanguageForPath(path); !ok {
			return nil
		}
		out = append(out, path)
		return nil
	})
	return out, err
}

func isExcluded(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}
