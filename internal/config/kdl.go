package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// configFileName is the primary configuration file, KDL-formatted, looked
// up under the project root.
const configFileName = ".code-graph-rag.kdl"

// Load reads projectRoot's .code-graph-rag.kdl if present, falling back to
// defaults. A missing file is not an error; a malformed one is.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(projectRoot, configFileName)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "database":
			for _, cn := range n.Children {
				if nodeName(cn) == "path" {
					if s, ok := firstStringArg(cn); ok {
						cfg.Database.Path = s
					}
				} else {
					cfg.warn("database." + nodeName(cn))
				}
			}
		case "embedding":
			for _, cn := range n.Children {
				if nodeName(cn) == "dimension" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Embedding.Dimension = v
					}
				} else {
					cfg.warn("embedding." + nodeName(cn))
				}
			}
		case "indexing":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "maxFilesPerBatch":
					if v, ok := firstIntArg(cn); ok {
						cfg.Indexing.MaxFilesPerBatch = v
					}
				case "exclude":
					cfg.Indexing.Exclude = append(cfg.Indexing.Exclude, collectStringArgs(cn)...)
				default:
					cfg.warn("indexing." + nodeName(cn))
				}
			}
		case "scheduler":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "cpuWorkers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Scheduler.CPUWorkers = v
					}
				case "ioWorkers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Scheduler.IOWorkers = v
					}
				default:
					cfg.warn("scheduler." + nodeName(cn))
				}
			}
		case "logging":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "directory":
					if s, ok := firstStringArg(cn); ok {
						cfg.Logging.Directory = s
					}
				case "mirrorTmp":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Logging.MirrorTmp = b
					}
				default:
					cfg.warn("logging." + nodeName(cn))
				}
			}
		default:
			cfg.warn(nodeName(n))
		}
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	return cfg, nil
}

// LoadTOMLOverlay merges a TOML overlay file (used for CI/profile-specific
// overrides) onto an already-loaded Config. Only the keys read below are
// applied; any other key, including indexing.exclude, is ignored without
// adding to Warnings.
func LoadTOMLOverlay(cfg *Config, path string) error {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read overlay %s: %w", path, err)
	}

	var overlay struct {
		Database  map[string]any `toml:"database"`
		Embedding map[string]any `toml:"embedding"`
		Indexing  map[string]any `toml:"indexing"`
		Scheduler map[string]any `toml:"scheduler"`
		Logging   map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(content, &overlay); err != nil {
		return fmt.Errorf("parse overlay %s: %w", path, err)
	}

	if v, ok := overlay.Database["path"].(string); ok {
		cfg.Database.Path = ExpandPath(v)
	}
	if v, ok := overlay.Embedding["dimension"].(int64); ok {
		cfg.Embedding.Dimension = int(v)
	}
	if v, ok := overlay.Indexing["maxFilesPerBatch"].(int64); ok {
		cfg.Indexing.MaxFilesPerBatch = int(v)
	}
	if v, ok := overlay.Scheduler["cpuWorkers"].(int64); ok {
		cfg.Scheduler.CPUWorkers = int(v)
	}
	if v, ok := overlay.Scheduler["ioWorkers"].(int64); ok {
		cfg.Scheduler.IOWorkers = int(v)
	}
	if v, ok := overlay.Logging["directory"].(string); ok {
		cfg.Logging.Directory = v
	}
	if v, ok := overlay.Logging["mirrorTmp"].(bool); ok {
		cfg.Logging.MirrorTmp = v
	}
	return nil
}

func (c *Config) warn(key string) {
	c.Warnings = append(c.Warnings, fmt.Sprintf("unrecognized configuration key %q ignored", key))
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	s, ok := n.Arguments[0].Value.(string)
	return s, ok
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	b, ok := n.Arguments[0].Value.(bool)
	return b, ok
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
