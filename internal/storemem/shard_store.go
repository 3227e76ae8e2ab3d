// Package storemem implements the Storage Adapter contract as a sharded,
// purely in-memory store. Sharding partitions the inverted indexes into
// fixed-size shard arrays keyed by the leading code units of the term, so
// no single map ever has to hold the whole index.
package storemem

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	serrors "github.com/devpushing/codesearch/internal/errors"
	"github.com/devpushing/codesearch/internal/types"
)

const (
	trigramShardCount = 65536
	tokenShardCount   = 256
)

// postingSet maps an item to the set of positions the term occurs at for
// that item. Positions aren't used by lookup but are kept so
// RemoveTrigrams/RemoveTokens can restore exact re-derivation after a
// re-index.
type postingSet map[types.ItemID]map[int]struct{}

type trigramShard struct {
	terms map[string]postingSet
}

type tokenShard struct {
	terms map[string]postingSet
}

// Store is the sharded in-memory Storage Adapter implementation.
type Store struct {
	mu sync.Mutex

	initialized bool
	closed      bool
	txDepth     int

	nextID   types.ItemID
	items    map[types.ItemID]*types.Item
	byPath   map[string]types.ItemID
	children map[types.ItemID][]types.ItemID // parentID -> child IDs

	trigramShards [trigramShardCount]*trigramShard
	tokenShards   [tokenShardCount]*tokenShard

	activeTrigramShards int
	activeTokenShards   int
	distinctTrigrams    int
	distinctTokens      int
	lastUpdated         time.Time
}

// New creates an empty sharded in-memory store.
func New() *Store {
	return &Store{
		items:    make(map[types.ItemID]*types.Item),
		byPath:   make(map[string]types.ItemID),
		children: make(map[types.ItemID][]types.ItemID),
	}
}

func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.txDepth > 0 {
		s.txDepth = 0
	}

	s.items = make(map[types.ItemID]*types.Item)
	s.byPath = make(map[string]types.ItemID)
	s.children = make(map[types.ItemID][]types.ItemID)
	for i := range s.trigramShards {
		s.trigramShards[i] = nil
	}
	for i := range s.tokenShards {
		s.tokenShards[i] = nil
	}
	s.activeTrigramShards = 0
	s.activeTokenShards = 0
	s.distinctTrigrams = 0
	s.distinctTokens = 0
	s.lastUpdated = time.Now()
	return nil
}

// trigramShardIndex dispatches a trigram to a shard by its leading two
// bytes. Identifiers built from non-ASCII source text (leading byte >=
// 0x80, i.e. a UTF-8 continuation/multi-byte lead byte) cluster into a
// narrow slice of that keyspace under a plain byte-pair key, so those
// terms are dispatched by an xxhash digest instead to spread them evenly
// across shards.
func trigramShardIndex(trigram string) uint32 {
	if len(trigram) == 0 {
		return 0
	}
	if trigram[0] >= 0x80 {
		return uint32(xxhash.Sum64String(trigram))
	}
	if len(trigram) == 1 {
		return uint32(trigram[0]) << 8
	}
	return (uint32(trigram[0]) << 8) | uint32(trigram[1])
}

// tokenShardIndex dispatches a token to a shard by its leading byte,
// falling back to an xxhash digest for non-ASCII leading bytes for the
// same reason as trigramShardIndex.
func tokenShardIndex(token string) uint32 {
	if len(token) == 0 {
		return 0
	}
	if token[0] >= 0x80 {
		return uint32(xxhash.Sum64String(token))
	}
	return uint32(token[0])
}

func (s *Store) AddItem(ctx context.Context, item types.Item) (types.ItemID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byPath[item.Path]; exists {
		return 0, serrors.NewStorageError("add_item", serrors.ErrDuplicatePath).WithPath(item.Path)
	}

	s.nextID++
	id := s.nextID
	item.ID = id
	s.items[id] = &item
	s.byPath[item.Path] = id
	if item.ParentID != nil {
		s.children[*item.ParentID] = append(s.children[*item.ParentID], id)
	}
	s.lastUpdated = time.Now()
	return id, nil
}

func (s *Store) UpdateItem(ctx context.Context, id types.ItemID, patch types.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[id]
	if !exists {
		return serrors.NewStorageError("update_item", serrors.ErrNotFound)
	}

	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.Kind != nil {
		item.Kind = *patch.Kind
	}
	if patch.ParentID != nil {
		s.reparent(id, item.ParentID, *patch.ParentID)
		item.ParentID = *patch.ParentID
	}
	if patch.Metadata != nil {
		item.Metadata = patch.Metadata
	}
	s.lastUpdated = time.Now()
	return nil
}

func (s *Store) reparent(id types.ItemID, oldParent, newParent *types.ItemID) {
	if oldParent != nil {
		siblings := s.children[*oldParent]
		for i, c := range siblings {
			if c == id {
				s.children[*oldParent] = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	if newParent != nil {
		s.children[*newParent] = append(s.children[*newParent], id)
	}
}

// DeleteItem removes id and, cascading, every descendant reachable through
// ParentID, plus all postings for every removed item, so no orphaned
// posting can ever outlive its item.
func (s *Store) DeleteItem(ctx context.Context, id types.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteItemLocked(id)
}

func (s *Store) deleteItemLocked(id types.ItemID) error {
	item, exists := s.items[id]
	if !exists {
		return serrors.NewStorageError("delete_item", serrors.ErrNotFound)
	}

	for _, childID := range append([]types.ItemID(nil), s.children[id]...) {
		if err := s.deleteItemLocked(childID); err != nil {
			return err
		}
	}

	s.removeTrigramsLocked(id)
	s.removeTokensLocked(id)

	delete(s.items, id)
	delete(s.byPath, item.Path)
	delete(s.children, id)
	if item.ParentID != nil {
		s.reparent(id, item.ParentID, nil)
	}
	s.lastUpdated = time.Now()
	return nil
}

func (s *Store) GetItem(ctx context.Context, id types.ItemID) (*types.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[id]
	if !exists {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

// ForEachItem calls fn once per item, snapshotting the item list under the
// lock first so fn may safely call back into the store.
func (s *Store) ForEachItem(ctx context.Context, fn func(types.Item) error) error {
	s.mu.Lock()
	items := make([]types.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, *item)
	}
	s.mu.Unlock()

	for _, item := range items {
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetItemByPath(ctx context.Context, path string) (*types.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.byPath[path]
	if !exists {
		return nil, nil
	}
	cp := *s.items[id]
	return &cp, nil
}

func (s *Store) AddTrigrams(ctx context.Context, postings []types.TrigramPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range postings {
		idx := trigramShardIndex(p.Trigram) & (trigramShardCount - 1)
		shard := s.trigramShards[idx]
		if shard == nil {
			shard = &trigramShard{terms: make(map[string]postingSet)}
			s.trigramShards[idx] = shard
			s.activeTrigramShards++
		}

		set, exists := shard.terms[p.Trigram]
		if !exists {
			set = make(postingSet)
			shard.terms[p.Trigram] = set
			s.distinctTrigrams++
		}
		positions, exists := set[p.ItemID]
		if !exists {
			positions = make(map[int]struct{})
			set[p.ItemID] = positions
		}
		positions[p.Pos] = struct{}{} // idempotent: duplicates silently ignored
	}
	s.lastUpdated = time.Now()
	return nil
}

func (s *Store) RemoveTrigrams(ctx context.Context, itemID types.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeTrigramsLocked(itemID)
	return nil
}

func (s *Store) removeTrigramsLocked(itemID types.ItemID) {
	for i, shard := range s.trigramShards {
		if shard == nil {
			continue
		}
		for trigram, set := range shard.terms {
			if _, ok := set[itemID]; ok {
				delete(set, itemID)
				if len(set) == 0 {
					delete(shard.terms, trigram)
					s.distinctTrigrams--
				}
			}
		}
		if len(shard.terms) == 0 {
			s.trigramShards[i] = nil
			s.activeTrigramShards--
		}
	}
}

func (s *Store) SearchTrigrams(ctx context.Context, terms []string) (map[types.ItemID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(terms))
	counts := make(map[types.ItemID]int)
	for _, term := range terms {
		if seen[term] {
			continue // duplicate query terms don't inflate the count
		}
		seen[term] = true

		idx := trigramShardIndex(term) & (trigramShardCount - 1)
		shard := s.trigramShards[idx]
		if shard == nil {
			continue
		}
		set, exists := shard.terms[term]
		if !exists {
			continue
		}
		for itemID := range set {
			counts[itemID]++
		}
	}
	return counts, nil
}

func (s *Store) AddTokens(ctx context.Context, postings []types.TokenPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range postings {
		idx := tokenShardIndex(p.Token) & (tokenShardCount - 1)
		shard := s.tokenShards[idx]
		if shard == nil {
			shard = &tokenShard{terms: make(map[string]postingSet)}
			s.tokenShards[idx] = shard
			s.activeTokenShards++
		}

		set, exists := shard.terms[p.Token]
		if !exists {
			set = make(postingSet)
			shard.terms[p.Token] = set
			s.distinctTokens++
		}
		positions, exists := set[p.ItemID]
		if !exists {
			positions = make(map[int]struct{})
			set[p.ItemID] = positions
		}
		positions[p.Pos] = struct{}{}
	}
	s.lastUpdated = time.Now()
	return nil
}

func (s *Store) RemoveTokens(ctx context.Context, itemID types.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeTokensLocked(itemID)
	return nil
}

func (s *Store) removeTokensLocked(itemID types.ItemID) {
	for i, shard := range s.tokenShards {
		if shard == nil {
			continue
		}
		for token, set := range shard.terms {
			if _, ok := set[itemID]; ok {
				delete(set, itemID)
				if len(set) == 0 {
					delete(shard.terms, token)
					s.distinctTokens--
				}
			}
		}
		if len(shard.terms) == 0 {
			s.tokenShards[i] = nil
			s.activeTokenShards--
		}
	}
}

func (s *Store) SearchTokens(ctx context.Context, terms []string) (map[types.ItemID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(terms))
	counts := make(map[types.ItemID]int)
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true

		idx := tokenShardIndex(term) & (tokenShardCount - 1)
		shard := s.tokenShards[idx]
		if shard == nil {
			continue
		}
		set, exists := shard.terms[term]
		if !exists {
			continue
		}
		for itemID := range set {
			counts[itemID]++
		}
	}
	return counts, nil
}

// Begin/Commit/Rollback are no-ops: the in-memory store has no rollback
// semantics. A nested Begin only logs a warning rather than erroring,
// since callers are only ever expected to nest one level deep.
func (s *Store) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txDepth > 0 {
		log.Printf("storemem: nested Begin is a no-op")
	}
	s.txDepth++
	return nil
}

func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txDepth > 0 {
		s.txDepth--
	}
	return nil
}

func (s *Store) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txDepth > 0 {
		s.txDepth--
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (types.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.Stats{
		Items:           int64(len(s.items)),
		DistinctTrigram: int64(s.distinctTrigrams),
		DistinctToken:   int64(s.distinctTokens),
		LastUpdated:     s.lastUpdated,
	}, nil
}

// ShardStats reports shard occupancy and distinct-term counts, useful for
// sizing and monitoring an in-memory index.
type ShardStats struct {
	ActiveTrigramShards int
	ActiveTokenShards   int
	UniqueTrigrams      int
	UniqueTokens        int
}

func (s *Store) ShardStats() ShardStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ShardStats{
		ActiveTrigramShards: s.activeTrigramShards,
		ActiveTokenShards:   s.activeTokenShards,
		UniqueTrigrams:      s.distinctTrigrams,
		UniqueTokens:        s.distinctTokens,
	}
}
