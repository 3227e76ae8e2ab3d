package indexing

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/devpushing/codesearch/internal/types"
	"github.com/devpushing/codesearch/internal/watch"
)

// Maintainer wires a Builder to a file watcher, debouncing raw events into
// periodic batched transactions.
type Maintainer struct {
	builder *Builder

	mu       sync.Mutex
	pending  map[string]watchOp
	timer    *time.Timer
	debounce time.Duration
}

// NewMaintainer wraps builder with the debounced incremental-update
// pipeline.
func NewMaintainer(builder *Builder) *Maintainer {
	return &Maintainer{
		builder:  builder,
		pending:  make(map[string]watchOp),
		debounce: builder.debounceDur,
	}
}

// Run consumes events from ch until it is closed or ctx is cancelled,
// collapsing them into the pending map and scheduling a debounced flush.
func (m *Maintainer) Run(ctx context.Context, ch <-chan watch.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.record(ev)
		}
	}
}

func (m *Maintainer) record(ev watch.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Op {
	case watch.OpCreate:
		m.pending[ev.Path] = opCreate
	case watch.OpModify:
		m.pending[ev.Path] = opModify
	case watch.OpRemove:
		m.pending[ev.Path] = opDelete
	}

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, m.flush)
}

func (m *Maintainer) flush() {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[string]watchOp)
	m.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	ctx := context.Background()
	if err := m.builder.processPending(ctx, pending); err != nil {
		log.Printf("indexing: incremental update failed: %v", err)
	}
}

// processPending applies the collapsed create/modify/delete map of a
// debounce window in a single transaction.
func (b *Builder) processPending(ctx context.Context, pending map[string]watchOp) error {
	if err := b.store.Begin(ctx); err != nil {
		return err
	}

	for path, op := range pending {
		if err := b.applyOne(ctx, path, op); err != nil {
			b.store.Rollback(ctx)
			return err
		}
	}

	return b.store.Commit(ctx)
}

func (b *Builder) applyOne(ctx context.Context, path string, op watchOp) error {
	existing, err := b.store.GetItemByPath(ctx, path)
	if err != nil {
		return err
	}

	switch op {
	case opCreate:
		if existing == nil {
			_, err := b.indexFile(ctx, path)
			return err
		}
		return b.reindexFile(ctx, existing)

	case opModify:
		if existing != nil {
			return b.reindexFile(ctx, existing)
		}
		_, err := b.indexFile(ctx, path)
		return err

	case opDelete:
		if existing == nil {
			return nil
		}
		return b.store.DeleteItem(ctx, existing.ID)
	}

	return nil
}

// reindexFile purges an existing file item's postings and re-derives them
// in place, leaving its id and any child symbols untouched.
func (b *Builder) reindexFile(ctx context.Context, item *types.Item) error {
	if err := b.store.RemoveTrigrams(ctx, item.ID); err != nil {
		return err
	}
	if err := b.store.RemoveTokens(ctx, item.ID); err != nil {
		return err
	}

	rel := item.Path
	if b.builderRoot() != "" {
		if r, err := filepath.Rel(b.builderRoot(), item.Path); err == nil {
			rel = r
		}
	}
	return b.indexText(ctx, item.ID, item.Name+" "+rel)
}

func (b *Builder) builderRoot() string {
	return b.cfg.Project.Root
}
