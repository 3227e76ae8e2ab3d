package storemem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpushing/codesearch/internal/types"
)

func TestAddItem_DuplicatePathFails(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Initialize(ctx))

	_, err := s.AddItem(ctx, types.Item{Path: "a.go", Name: "a"})
	require.NoError(t, err)

	_, err = s.AddItem(ctx, types.Item{Path: "a.go", Name: "a"})
	require.Error(t, err)
}

func TestRoundTrip_AddGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Initialize(ctx))

	id, err := s.AddItem(ctx, types.Item{Path: "a.go", Name: "a", Kind: types.KindFile})
	require.NoError(t, err)

	got, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a.go", got.Path)
	assert.Equal(t, "a", got.Name)

	require.NoError(t, s.DeleteItem(ctx, id))

	got, err = s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteItem_CascadesToChildren(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Initialize(ctx))

	fileID, err := s.AddItem(ctx, types.Item{Path: "a.go", Name: "a", Kind: types.KindFile})
	require.NoError(t, err)

	symID, err := s.AddItem(ctx, types.Item{Path: "a.go#Foo", Name: "Foo", Kind: types.KindFunction, ParentID: &fileID})
	require.NoError(t, err)

	require.NoError(t, s.AddTrigrams(ctx, []types.TrigramPosting{{Trigram: "foo", ItemID: symID, Pos: 0}}))

	require.NoError(t, s.DeleteItem(ctx, fileID))

	got, err := s.GetItem(ctx, symID)
	require.NoError(t, err)
	assert.Nil(t, got, "deleting a parent must cascade to its children")

	counts, err := s.SearchTrigrams(ctx, []string{"foo"})
	require.NoError(t, err)
	assert.Empty(t, counts, "cascade delete must also purge the child's postings")
}

func TestAddTrigrams_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Initialize(ctx))

	id, err := s.AddItem(ctx, types.Item{Path: "a.go", Name: "a"})
	require.NoError(t, err)

	postings := []types.TrigramPosting{{Trigram: "abc", ItemID: id, Pos: 0}}
	require.NoError(t, s.AddTrigrams(ctx, postings))
	require.NoError(t, s.AddTrigrams(ctx, postings))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DistinctTrigram)
}

func TestSearchTrigrams_CountedLookup(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Initialize(ctx))

	getUser, err := s.AddItem(ctx, types.Item{Path: "getUser", Name: "getUser"})
	require.NoError(t, err)
	getName, err := s.AddItem(ctx, types.Item{Path: "getName", Name: "getName"})
	require.NoError(t, err)

	require.NoError(t, s.AddTrigrams(ctx, []types.TrigramPosting{
		{Trigram: "get", ItemID: getUser, Pos: 0},
		{Trigram: "use", ItemID: getUser, Pos: 3},
		{Trigram: "get", ItemID: getName, Pos: 0},
	}))

	counts, err := s.SearchTrigrams(ctx, []string{"get"})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[getUser])
	assert.Equal(t, 1, counts[getName])

	counts, err = s.SearchTrigrams(ctx, []string{"get", "use"})
	require.NoError(t, err)
	assert.Equal(t, 2, counts[getUser])
	assert.Equal(t, 1, counts[getName])
}

func TestSearchTrigrams_DuplicateQueryTermsDoNotInflateCount(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Initialize(ctx))

	id, err := s.AddItem(ctx, types.Item{Path: "a.go", Name: "a"})
	require.NoError(t, err)
	require.NoError(t, s.AddTrigrams(ctx, []types.TrigramPosting{{Trigram: "abc", ItemID: id, Pos: 0}}))

	counts, err := s.SearchTrigrams(ctx, []string{"abc", "abc", "abc"})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[id])
}

func TestRemoveTrigrams_FreesEmptyShard(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Initialize(ctx))

	id, err := s.AddItem(ctx, types.Item{Path: "a.go", Name: "a"})
	require.NoError(t, err)
	require.NoError(t, s.AddTrigrams(ctx, []types.TrigramPosting{{Trigram: "abc", ItemID: id, Pos: 0}}))
	assert.Equal(t, 1, s.ShardStats().ActiveTrigramShards)

	require.NoError(t, s.RemoveTrigrams(ctx, id))
	assert.Equal(t, 0, s.ShardStats().ActiveTrigramShards)

	counts, err := s.SearchTrigrams(ctx, []string{"abc"})
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestTransactions_NoOpInMemory(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Initialize(ctx))

	require.NoError(t, s.Begin(ctx))
	require.NoError(t, s.Begin(ctx)) // nested begin is a no-op, not an error
	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.Rollback(ctx))
}
