package indexing

import (
	"context"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devpushing/codesearch/internal/config"
	"github.com/devpushing/codesearch/internal/debug"
	serrors "github.com/devpushing/codesearch/internal/errors"
	"github.com/devpushing/codesearch/internal/storage"
	"github.com/devpushing/codesearch/internal/tokenize"
	"github.com/devpushing/codesearch/internal/types"
)

// progressInterval is the Builder's yield/report cadence during the
// initial build.
const progressInterval = 50

// ProgressFunc receives the running count of items indexed so far.
type ProgressFunc func(indexed int)

// Builder drives initial indexing and incremental maintenance over a
// Storage Adapter.
type Builder struct {
	store      storage.Adapter
	cfg        *config.Config
	enumerator FileEnumerator
	symbols    SymbolProvider

	onProgress  ProgressFunc
	debounceDur time.Duration
}

type watchOp int

const (
	opCreate watchOp = iota
	opModify
	opDelete
)

// New creates a Builder. enumerator and symbols may be nil, in which case
// the initial build indexes no files/symbols (a no-op build).
func New(store storage.Adapter, cfg *config.Config, enumerator FileEnumerator, symbols SymbolProvider) *Builder {
	return &Builder{
		store:       store,
		cfg:         cfg,
		enumerator:  enumerator,
		symbols:     symbols,
		debounceDur: time.Duration(cfg.Index.WatchDebounceMs) * time.Millisecond,
	}
}

// SetProgressCallback installs a callback invoked every progressInterval
// items during Build.
func (b *Builder) SetProgressCallback(fn ProgressFunc) {
	b.onProgress = fn
}

// Build performs the initial full index if the store reports zero items.
// It is a no-op if items already exist (persistent store loaded from a
// prior session). Cancelling ctx rolls back and restores auto_commit.
func (b *Builder) Build(ctx context.Context) error {
	stats, err := b.store.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.Items != 0 {
		debug.Logf(b.cfg.Search.Debug, "indexing: %d items already present, skipping initial build", stats.Items)
		return nil
	}

	if controller, ok := b.store.(storage.AutoCommitController); ok {
		controller.SetAutoCommit(false)
		defer controller.SetAutoCommit(true)
	}

	if err := b.store.Begin(ctx); err != nil {
		return err
	}

	if err := b.buildLocked(ctx); err != nil {
		b.store.Rollback(ctx)
		if err == context.Canceled {
			return serrors.NewBuildError("build", serrors.ErrCancelled)
		}
		return err
	}

	return b.store.Commit(ctx)
}

func (b *Builder) buildLocked(ctx context.Context) error {
	indexed := 0
	report := func() {
		indexed++
		if b.onProgress != nil && indexed%progressInterval == 0 {
			b.onProgress(indexed)
		}
	}

	// The enumerator and symbol-provider round trips are independent I/O
	// calls to separate collaborators; fetch both concurrently via
	// errgroup before the (necessarily sequential, since symbols need
	// their parent file's id) indexing pass.
	var paths []string
	var symbols []Symbol

	group, _ := errgroup.WithContext(ctx)
	if b.enumerator != nil {
		group.Go(func() error {
			p, err := b.enumerator.Enumerate(b.cfg.EffectiveExclude())
			if err != nil {
				return serrors.NewBuildError("enumerate", err)
			}
			paths = p
			return nil
		})
	}
	if b.symbols != nil {
		group.Go(func() error {
			s, err := b.symbols.Symbols()
			if err != nil {
				return serrors.NewBuildError("symbols", err)
			}
			symbols = s
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	fileIDs := make(map[string]types.ItemID)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, err := b.indexFile(ctx, path)
		if err != nil {
			return err
		}
		fileIDs[path] = id
		report()
	}

	if len(symbols) == 0 {
		return nil
	}

	byFile := make(map[string][]Symbol)
	for _, sym := range symbols {
		byFile[sym.URI] = append(byFile[sym.URI], sym)
	}

	for uri, syms := range byFile {
		if err := ctx.Err(); err != nil {
			return err
		}

		fileID, ok := fileIDs[uri]
		if !ok {
			id, err := b.indexFile(ctx, uri)
			if err != nil {
				return err
			}
			fileID = id
			fileIDs[uri] = fileID
		}

		for _, sym := range syms {
			if err := b.indexSymbol(ctx, sym, fileID); err != nil {
				return err
			}
			report()
		}
	}

	return nil
}

// indexFile inserts a File item and indexes "<basename> <relative_path>".
func (b *Builder) indexFile(ctx context.Context, path string) (types.ItemID, error) {
	rel := path
	if b.cfg.Project.Root != "" {
		if r, err := filepath.Rel(b.cfg.Project.Root, path); err == nil {
			rel = r
		}
	}
	name := filepath.Base(path)

	id, err := b.store.AddItem(ctx, types.Item{Path: path, Name: name, Kind: types.KindFile})
	if err != nil {
		return 0, err
	}

	if err := b.indexText(ctx, id, name+" "+rel); err != nil {
		return 0, err
	}
	return id, nil
}

// indexSymbol inserts a symbol as a child of fileID and indexes
// "<name> <container> <basename>".
func (b *Builder) indexSymbol(ctx context.Context, sym Symbol, fileID types.ItemID) error {
	id, err := b.store.AddItem(ctx, types.Item{
		Path:     sym.URI + "#" + sym.Container + "#" + sym.Name,
		Name:     sym.Name,
		Kind:     sym.Kind,
		ParentID: &fileID,
		Metadata: &types.Metadata{Container: sym.Container, Range: sym.Range},
	})
	if err != nil {
		return err
	}

	return b.indexText(ctx, id, sym.Name+" "+sym.Container+" "+filepath.Base(sym.URI))
}

// indexText writes the trigram and token postings for text under id.
func (b *Builder) indexText(ctx context.Context, id types.ItemID, text string) error {
	trigramOccs := tokenize.Trigrams(text, b.cfg.Index.CaseSensitive)
	if len(trigramOccs) > 0 {
		postings := make([]types.TrigramPosting, len(trigramOccs))
		for i, occ := range trigramOccs {
			postings[i] = types.TrigramPosting{Trigram: tokenize.FoldCase(occ.Trigram, b.cfg.Index.CaseSensitive), ItemID: id, Pos: occ.Pos}
		}
		if err := b.store.AddTrigrams(ctx, postings); err != nil {
			return err
		}
	}

	tokenOccs := tokenize.Tokens(text)
	if len(tokenOccs) > 0 {
		postings := make([]types.TokenPosting, len(tokenOccs))
		for i, occ := range tokenOccs {
			postings[i] = types.TokenPosting{Token: tokenize.FoldCase(occ.Token, b.cfg.Index.CaseSensitive), ItemID: id, Pos: occ.Pos}
		}
		if err := b.store.AddTokens(ctx, postings); err != nil {
			return err
		}
	}
	return nil
}

// Refresh clears the store and performs a fresh initial build.
func (b *Builder) Refresh(ctx context.Context) error {
	if err := b.store.Clear(ctx); err != nil {
		return err
	}
	return b.Build(ctx)
}
