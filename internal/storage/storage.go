// Package storage defines the uniform contract implemented by the sharded
// in-memory store and the persistent SQLite-backed store.
package storage

import (
	"context"

	"github.com/devpushing/codesearch/internal/types"
)

// Adapter is the storage contract every backend implements. All mutating
// operations fail with a *errors.StorageError on I/O or invariant breach.
type Adapter interface {
	// Initialize must be called once before any other op; idempotent on
	// repeat calls.
	Initialize(ctx context.Context) error

	// Clear drops every item and posting. Any open transaction is rolled
	// back first.
	Clear(ctx context.Context) error

	// Close releases resources held by the adapter (files, timers). It
	// does not imply Clear.
	Close() error

	AddItem(ctx context.Context, item types.Item) (types.ItemID, error)
	UpdateItem(ctx context.Context, id types.ItemID, patch types.Patch) error
	DeleteItem(ctx context.Context, id types.ItemID) error
	GetItem(ctx context.Context, id types.ItemID) (*types.Item, error)
	GetItemByPath(ctx context.Context, path string) (*types.Item, error)
	// ForEachItem streams every item in the store to fn, supporting the
	// Query Engine's abbreviation enumeration fallback.
	ForEachItem(ctx context.Context, fn func(types.Item) error) error

	// AddTrigrams bulk inserts postings, silently ignoring duplicates.
	AddTrigrams(ctx context.Context, postings []types.TrigramPosting) error
	// RemoveTrigrams removes all trigram postings for itemID.
	RemoveTrigrams(ctx context.Context, itemID types.ItemID) error
	// SearchTrigrams maps each matching item to the count of distinct
	// terms it has postings under. The in-memory store returns every item
	// with at least one posting under any of terms; the persistent store
	// returns only items with postings under every distinct term.
	SearchTrigrams(ctx context.Context, terms []string) (map[types.ItemID]int, error)

	AddTokens(ctx context.Context, postings []types.TokenPosting) error
	RemoveTokens(ctx context.Context, itemID types.ItemID) error
	SearchTokens(ctx context.Context, terms []string) (map[types.ItemID]int, error)

	// Begin/Commit/Rollback provide single-level transactions. A nested
	// Begin is a no-op that logs a warning rather than erroring.
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	Stats(ctx context.Context) (types.Stats, error)
}

// AutoCommitController is an optional capability a backend may implement
// to support the Builder's bulk-indexing mode: the Builder explicitly
// disables auto_commit around bulk indexing and issues an outer
// transaction for the whole sweep. The in-memory store has no
// implicit-batch behavior to disable, so it does not implement this.
type AutoCommitController interface {
	SetAutoCommit(enabled bool)
}
