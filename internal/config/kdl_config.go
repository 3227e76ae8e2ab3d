package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// fileName is the project and global config file name.
const fileName = ".trigramsearch.kdl"

// Load loads configuration for root, merging a global ~/.trigramsearch.kdl
// base with a project-local .trigramsearch.kdl override. Either or both
// files may be absent; Default(root) is returned when neither is present.
func Load(root string) (*Config, error) {
	var base *Config
	if home, err := os.UserHomeDir(); err == nil {
		if globalCfg, err := loadKDL(home, home); err == nil && globalCfg != nil {
			base = globalCfg
		}
	}

	project, err := loadKDL(root, root)
	if err != nil {
		return nil, err
	}

	switch {
	case base != nil && project != nil:
		return merge(base, project), nil
	case project != nil:
		return project, nil
	case base != nil:
		base.Project.Root = root
		return base, nil
	default:
		return Default(root), nil
	}
}

// merge overlays project on top of base: every scalar setting comes from
// project, including ones the project file leaves at their defaults, so a
// base scalar setting does not survive once a project file exists.
// Exclusions and inclusions from both are unioned rather than one
// replacing the other, so a project config can tighten or add to the
// global exclusion set without first having to repeat it.
func merge(base, project *Config) *Config {
	merged := *project
	merged.Exclude = mergeUnique(base.Exclude, project.Exclude)
	merged.Include = mergeUnique(base.Include, project.Include)
	return &merged
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// loadKDL reads dir/.trigramsearch.kdl if present and parses it, resolving
// Project.Root relative to rootForRelative when the file leaves it relative
// or empty.
func loadKDL(dir, rootForRelative string) (*Config, error) {
	path := filepath.Join(dir, fileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := parseKDL(string(content), rootForRelative)
	if err != nil {
		return nil, err
	}

	if cfg.Project.Root != "" && !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Clean(filepath.Join(rootForRelative, cfg.Project.Root))
	} else if cfg.Project.Root == "" {
		abs, err := filepath.Abs(rootForRelative)
		if err == nil {
			cfg.Project.Root = abs
		} else {
			cfg.Project.Root = rootForRelative
		}
	}

	return cfg, nil
}

func parseKDL(content, defaultRoot string) (*Config, error) {
	cfg := Default(defaultRoot)

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", fileName, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "case_sensitive":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.CaseSensitive = b
					}
				case "batch_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.BatchSize = v
					}
				case "watch_mode":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.WatchMode = b
					}
				case "watch_debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.WatchDebounceMs = v
					}
				}
			}
		case "search":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "include_files":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Search.IncludeFiles = b
					}
				case "include_symbols":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Search.IncludeSymbols = b
					}
				case "max_results":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.MaxResults = v
					}
				case "min_trigram_length":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.MinTrigramLength = v
					}
				case "enable_camelcase":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Search.EnableCamelCase = b
					}
				case "debug":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Search.Debug = b
					}
				case "storage":
					if s, ok := firstStringArg(cn); ok {
						cfg.Search.Storage = StorageKind(s)
					}
				}
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			cfg.Exclude = collectStringArgs(n)
		}
	}

	return cfg, nil
}

// --- kdl-go document helpers ---

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
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
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
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
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

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
