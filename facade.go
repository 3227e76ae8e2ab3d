// Package codesearch is the public façade over the trigram/token search
// engine: initialize, search, refresh, shutdown, plus a stats accessor. It
// owns the background watcher and snapshot timer, the singleflight group
// that collapses concurrent initialization attempts into one build, and
// the lock that keeps a refresh from tearing a search out from under a
// caller mid-scan.
package codesearch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/devpushing/codesearch/internal/config"
	serrors "github.com/devpushing/codesearch/internal/errors"
	"github.com/devpushing/codesearch/internal/indexing"
	"github.com/devpushing/codesearch/internal/search"
	"github.com/devpushing/codesearch/internal/storage"
	"github.com/devpushing/codesearch/internal/storemem"
	"github.com/devpushing/codesearch/internal/storesql"
	"github.com/devpushing/codesearch/internal/types"
	"github.com/devpushing/codesearch/internal/watch"
)

const snapshotInterval = 5 * time.Second

// Engine is the public façade over a single workspace index.
type Engine struct {
	cfg   *config.Config
	store storage.Adapter

	enumerator indexing.FileEnumerator
	symbols    indexing.SymbolProvider

	builder    *indexing.Builder
	maintainer *indexing.Maintainer
	query      *search.Engine
	watcher    *watch.Watcher

	initGroup singleflight.Group

	mu          sync.RWMutex
	initialized bool
	shutdown    bool

	refreshMu sync.Mutex // excludes Search while a Refresh is rebuilding the index

	cancelWatch context.CancelFunc
	stopTimer   chan struct{}
	wg          sync.WaitGroup
}

// Option configures an Engine before Initialize.
type Option func(*Engine)

// WithEnumerator installs the collaborator that lists workspace file paths
// to index.
func WithEnumerator(e indexing.FileEnumerator) Option {
	return func(eng *Engine) { eng.enumerator = e }
}

// WithSymbolProvider installs the collaborator that supplies per-file
// symbols to index alongside files.
func WithSymbolProvider(p indexing.SymbolProvider) Option {
	return func(eng *Engine) { eng.symbols = p }
}

// New creates an Engine for cfg. The storage backend is selected by
// cfg.Search.Storage.
func New(cfg *config.Config, opts ...Option) *Engine {
	eng := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(eng)
	}
	return eng
}

// Initialize builds or loads the index. Concurrent callers share one
// in-flight build via singleflight rather than racing separate builds.
func (e *Engine) Initialize(ctx context.Context) error {
	_, err, _ := e.initGroup.Do("initialize", func() (any, error) {
		return nil, e.doInitialize(ctx)
	})
	return err
}

func (e *Engine) doInitialize(ctx context.Context) error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return serrors.NewStorageError("initialize", serrors.ErrInvalidState)
	}
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	store, err := e.openStore()
	if err != nil {
		return err
	}
	if err := store.Initialize(ctx); err != nil {
		return err
	}
	e.store = store

	e.builder = indexing.New(store, e.cfg, e.enumerator, e.symbols)
	e.query = search.New(store, e.cfg)

	if err := e.builder.Build(ctx); err != nil {
		return err
	}

	if e.cfg.Index.WatchMode && e.cfg.Project.Root != "" {
		if err := e.startWatch(); err != nil {
			return err
		}
	}

	e.startSnapshotTimer()

	e.mu.Lock()
	e.initialized = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) openStore() (storage.Adapter, error) {
	switch e.cfg.Search.Storage {
	case config.StorageMemory:
		return storemem.New(), nil
	case config.StoragePersistent, "":
		path := e.cfg.Project.Root + "/.trigramsearch.db"
		return storesql.New(path, storesql.WithBatchSize(e.cfg.Index.BatchSize), storesql.WithDebug(e.cfg.Search.Debug)), nil
	default:
		return nil, fmt.Errorf("codesearch: unknown storage kind %q", e.cfg.Search.Storage)
	}
}

func (e *Engine) startWatch() error {
	w, err := watch.New(e.cfg.Project.Root, e.cfg.EffectiveExclude())
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	e.watcher = w
	e.maintainer = indexing.NewMaintainer(e.builder)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelWatch = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.maintainer.Run(ctx, w.Events())
	}()

	return nil
}

// flusher is the optional capability a persistent backend exposes for the
// façade's snapshot timer to drive. The in-memory backend doesn't
// implement it and is simply never flushed.
type flusher interface {
	Flush() error
}

func (e *Engine) startSnapshotTimer() {
	e.stopTimer = make(chan struct{})
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stopTimer:
				return
			case <-ticker.C:
				if f, ok := e.store.(flusher); ok {
					if err := f.Flush(); err != nil {
						log.Printf("codesearch: periodic flush failed: %v", err)
					}
				}
			}
		}
	}()
}

// Search awaits initialization if still in progress, then delegates to the
// Query Engine. It blocks until any in-flight Refresh completes, so a
// search never reads a half-rebuilt index.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}

	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	return e.query.Search(ctx, query, limit)
}

// Refresh clears and rebuilds the index. It excludes Search for its
// duration so callers never observe a partially rebuilt index.
func (e *Engine) Refresh(ctx context.Context) error {
	if err := e.Initialize(ctx); err != nil {
		return err
	}

	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	return e.builder.Refresh(ctx)
}

// Stats returns the current item/trigram/token totals.
func (e *Engine) Stats(ctx context.Context) (types.Stats, error) {
	if err := e.Initialize(ctx); err != nil {
		return types.Stats{}, err
	}
	return e.store.Stats(ctx)
}

// Shutdown stops timers and the watcher, and closes the storage adapter.
// It is idempotent: a second call is a no-op. Once Shutdown has returned,
// any later call to Initialize, Search, Stats, or Refresh fails with
// ErrInvalidState rather than silently rebuilding a new index underneath
// a caller that thinks the engine is torn down.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return nil
	}
	wasInitialized := e.initialized
	e.shutdown = true
	e.initialized = false
	e.mu.Unlock()

	if !wasInitialized {
		return nil
	}

	if e.cancelWatch != nil {
		e.cancelWatch()
	}
	if e.stopTimer != nil {
		close(e.stopTimer)
	}
	if e.watcher != nil {
		e.watcher.Stop()
	}
	e.wg.Wait()

	if e.store == nil {
		return nil
	}
	if err := e.store.Close(); err != nil {
		return serrors.NewStorageError("shutdown", err)
	}
	return nil
}
