package codesearch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/devpushing/codesearch/internal/config"
	serrors "github.com/devpushing/codesearch/internal/errors"
	"github.com/devpushing/codesearch/internal/indexing"
	"github.com/devpushing/codesearch/internal/types"
)

type staticEnumerator struct{ paths []string }

func (s *staticEnumerator) Enumerate(exclude []string) ([]string, error) { return s.paths, nil }

type staticSymbols struct{ symbols []indexing.Symbol }

func (s *staticSymbols) Symbols() ([]indexing.Symbol, error) { return s.symbols, nil }

func memConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default(root)
	cfg.Search.Storage = config.StorageMemory
	cfg.Index.WatchMode = false
	return cfg
}

func TestEngine_InitializeSearchShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := memConfig(t)
	root := cfg.Project.Root
	mainGo := filepath.Join(root, "main.go")

	eng := New(cfg,
		WithEnumerator(&staticEnumerator{paths: []string{mainGo}}),
		WithSymbolProvider(&staticSymbols{symbols: []indexing.Symbol{
			{Name: "processData", Kind: types.KindFunction, Container: "main", URI: mainGo},
		}}),
	)

	ctx := context.Background()
	require.NoError(t, eng.Initialize(ctx))

	results, err := eng.Search(ctx, "processData", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "processData", results[0].Item.Name)

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Items)

	require.NoError(t, eng.Shutdown())
}

func TestEngine_ConcurrentInitializeSharesOneBuild(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := memConfig(t)
	eng := New(cfg, WithEnumerator(&staticEnumerator{paths: nil}))

	ctx := context.Background()
	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() { errs <- eng.Initialize(ctx) }()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	require.NoError(t, eng.Shutdown())
}

func TestEngine_RefreshRebuildsIndex(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := memConfig(t)
	root := cfg.Project.Root
	mainGo := filepath.Join(root, "main.go")

	eng := New(cfg, WithEnumerator(&staticEnumerator{paths: []string{mainGo}}))
	ctx := context.Background()
	require.NoError(t, eng.Initialize(ctx))

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Items)

	require.NoError(t, eng.Refresh(ctx))
	stats, err = eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Items)

	require.NoError(t, eng.Shutdown())
}

func TestEngine_ShutdownIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := memConfig(t)
	eng := New(cfg)
	require.NoError(t, eng.Initialize(context.Background()))
	require.NoError(t, eng.Shutdown())
	require.NoError(t, eng.Shutdown())
}

func TestEngine_OperationsAfterShutdownReturnInvalidState(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := memConfig(t)
	eng := New(cfg)
	ctx := context.Background()
	require.NoError(t, eng.Initialize(ctx))
	require.NoError(t, eng.Shutdown())

	_, err := eng.Search(ctx, "anything", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, serrors.ErrInvalidState))

	_, err = eng.Stats(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, serrors.ErrInvalidState))

	err = eng.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, serrors.ErrInvalidState))

	err = eng.Initialize(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, serrors.ErrInvalidState))
}
