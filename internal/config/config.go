// Package config loads and holds the engine's configuration.
package config

// Config holds the options recognized by the engine.
type Config struct {
	Project Project
	Index   Index
	Search  Search

	Include []string
	Exclude []string
}

type Project struct {
	Root string
}

type Index struct {
	CaseSensitive   bool
	BatchSize       int
	WatchMode       bool
	WatchDebounceMs int
}

type Search struct {
	IncludeFiles     bool
	IncludeSymbols   bool
	MaxResults       int
	MinTrigramLength int
	EnableCamelCase  bool
	Debug            bool
	Storage          StorageKind
}

// StorageKind selects the storage adapter implementation.
type StorageKind string

const (
	StoragePersistent StorageKind = "persistent"
	StorageMemory     StorageKind = "memory"
)

// defaultExclusions is the built-in exclusion set unioned with any
// project-specific excludes.
var defaultExclusions = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/dist/**",
	"**/build/**",
	"**/.idea/**",
	"**/.vscode/**",
	"**/*.swp",
}

// Default returns a config with every option set to its built-in default,
// rooted at root.
func Default(root string) *Config {
	return &Config{
		Project: Project{Root: root},
		Index: Index{
			CaseSensitive:   false,
			BatchSize:       10000,
			WatchMode:       true,
			WatchDebounceMs: 1000,
		},
		Search: Search{
			IncludeFiles:     true,
			IncludeSymbols:   true,
			MaxResults:       50,
			MinTrigramLength: 3,
			EnableCamelCase:  true,
			Debug:            false,
			Storage:          StoragePersistent,
		},
		Include: []string{},
		Exclude: append([]string(nil), defaultExclusions...),
	}
}

// EffectiveExclude returns Exclude unioned with the built-in default set,
// deduplicated.
func (c *Config) EffectiveExclude() []string {
	seen := make(map[string]bool, len(c.Exclude)+len(defaultExclusions))
	out := make([]string, 0, len(c.Exclude)+len(defaultExclusions))
	for _, p := range defaultExclusions {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range c.Exclude {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
