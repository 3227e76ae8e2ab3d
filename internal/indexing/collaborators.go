// Package indexing implements the Index Builder/Maintainer: initial full
// build, debounced incremental updates driven by a file watcher, and
// refresh.
package indexing

import "github.com/devpushing/codesearch/internal/types"

// FileEnumerator is the workspace enumerator collaborator: given exclusion
// globs, it yields every indexable workspace file path.
type FileEnumerator interface {
	Enumerate(exclude []string) ([]string, error)
}

// Symbol is the flat per-symbol record the symbol provider collaborator
// returns.
type Symbol struct {
	Name      string
	Kind      types.Kind
	Container string
	URI       string
	Range     *types.Range
}

// SymbolProvider is the symbol provider collaborator. It may return an
// empty list if unavailable.
type SymbolProvider interface {
	Symbols() ([]Symbol, error)
}
