package indexing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpushing/codesearch/internal/config"
	"github.com/devpushing/codesearch/internal/storemem"
	"github.com/devpushing/codesearch/internal/types"
)

type fakeEnumerator struct {
	paths []string
}

func (f *fakeEnumerator) Enumerate(exclude []string) ([]string, error) {
	return f.paths, nil
}

type fakeSymbolProvider struct {
	symbols []Symbol
}

func (f *fakeSymbolProvider) Symbols() ([]Symbol, error) {
	return f.symbols, nil
}

func newTestBuilder(t *testing.T, paths []string, symbols []Symbol) (*Builder, *storemem.Store) {
	t.Helper()
	store := storemem.New()
	require.NoError(t, store.Initialize(context.Background()))

	cfg := config.Default("/workspace")
	b := New(store, cfg, &fakeEnumerator{paths: paths}, &fakeSymbolProvider{symbols: symbols})
	return b, store
}

func TestBuild_IndexesFilesAndSymbols(t *testing.T) {
	ctx := context.Background()
	b, store := newTestBuilder(t,
		[]string{"/workspace/main.go"},
		[]Symbol{{Name: "HandleRequest", Kind: types.KindFunction, Container: "main", URI: "/workspace/main.go"}},
	)

	require.NoError(t, b.Build(ctx))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Items, "one file item plus one symbol item")

	fileItem, err := store.GetItemByPath(ctx, "/workspace/main.go")
	require.NoError(t, err)
	require.NotNil(t, fileItem)

	symItem, err := store.GetItemByPath(ctx, "/workspace/main.go#main#HandleRequest")
	require.NoError(t, err)
	require.NotNil(t, symItem)
	require.NotNil(t, symItem.ParentID)
	assert.Equal(t, fileItem.ID, *symItem.ParentID)
}

func TestBuild_SkipsWhenItemsAlreadyPresent(t *testing.T) {
	ctx := context.Background()
	b, store := newTestBuilder(t, []string{"/workspace/main.go"}, nil)

	_, err := store.AddItem(ctx, types.Item{Path: "preexisting", Name: "preexisting"})
	require.NoError(t, err)

	require.NoError(t, b.Build(ctx))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Items, "build must not run when the store already has items")
}

func TestBuild_ReportsProgressEvery50Items(t *testing.T) {
	ctx := context.Background()
	paths := make([]string, 120)
	for i := range paths {
		paths[i] = fmt.Sprintf("/workspace/file%d.go", i)
	}

	b, _ := newTestBuilder(t, paths, nil)

	var progressCalls []int
	b.SetProgressCallback(func(indexed int) {
		progressCalls = append(progressCalls, indexed)
	})

	require.NoError(t, b.Build(ctx))
	assert.Equal(t, []int{50, 100}, progressCalls)
}

func TestRefresh_ClearsThenRebuilds(t *testing.T) {
	ctx := context.Background()
	b, store := newTestBuilder(t, []string{"/workspace/main.go"}, nil)

	require.NoError(t, b.Build(ctx))
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Items)

	require.NoError(t, b.Refresh(ctx))
	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Items, "refresh rebuilds from the same enumerator")
}

func TestProcessPending_CreateModifyDelete(t *testing.T) {
	ctx := context.Background()
	b, store := newTestBuilder(t, nil, nil)
	require.NoError(t, b.Build(ctx))

	require.NoError(t, b.processPending(ctx, map[string]watchOp{
		"/workspace/new.go": opCreate,
	}))
	item, err := store.GetItemByPath(ctx, "/workspace/new.go")
	require.NoError(t, err)
	require.NotNil(t, item)

	require.NoError(t, b.processPending(ctx, map[string]watchOp{
		"/workspace/new.go": opModify,
	}))
	item2, err := store.GetItemByPath(ctx, "/workspace/new.go")
	require.NoError(t, err)
	require.NotNil(t, item2)
	assert.Equal(t, item.ID, item2.ID, "modify re-indexes in place, keeping the same id")

	require.NoError(t, b.processPending(ctx, map[string]watchOp{
		"/workspace/new.go": opDelete,
	}))
	item3, err := store.GetItemByPath(ctx, "/workspace/new.go")
	require.NoError(t, err)
	assert.Nil(t, item3)
}

func TestProcessPending_CreateOnExistingPathTreatedAsModify(t *testing.T) {
	ctx := context.Background()
	b, store := newTestBuilder(t, []string{"/workspace/main.go"}, nil)
	require.NoError(t, b.Build(ctx))

	existing, err := store.GetItemByPath(ctx, "/workspace/main.go")
	require.NoError(t, err)

	require.NoError(t, b.processPending(ctx, map[string]watchOp{
		"/workspace/main.go": opCreate,
	}))

	again, err := store.GetItemByPath(ctx, "/workspace/main.go")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, again.ID, "create on an existing path must be treated as modify, not a duplicate insert")
}
