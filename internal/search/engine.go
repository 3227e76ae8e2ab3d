// Package search implements the Query Engine: a staged pipeline over a
// Storage Adapter that turns a raw query string into a ranked list of
// items.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/devpushing/codesearch/internal/config"
	"github.com/devpushing/codesearch/internal/storage"
	"github.com/devpushing/codesearch/internal/tokenize"
	"github.com/devpushing/codesearch/internal/types"
)

// tokenMatchBoost is added to the score of an item found via the token
// probe, so a CamelCase/snake_case word match outranks a same-scoring
// trigram-only hit.
const tokenMatchBoost = 100

// abbreviationFallbackScore is the flat score assigned to items found only
// via the abbreviation enumeration fallback.
const abbreviationFallbackScore = 600

// Result is one ranked search hit.
type Result struct {
	Item  types.Item
	Score int
}

// Engine is the Query Engine, reading from a Storage Adapter.
type Engine struct {
	store storage.Adapter
	cfg   *config.Config
}

// New creates a Query Engine over store, governed by cfg's search options
// (min_trigram_length, enable_camelcase, case_sensitive, include_files,
// include_symbols, max_results).
func New(store storage.Adapter, cfg *config.Config) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// Search runs the trigram, token, and abbreviation probes, merges their
// hits by best score, filters by item kind, and ranks the result. limit
// <= 0 falls back to cfg.Search.MaxResults.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = e.cfg.Search.MaxResults
	}

	merged := make(map[types.ItemID]Result)

	if len(q) >= e.cfg.Search.MinTrigramLength {
		if err := e.probeTrigrams(ctx, q, merged); err != nil {
			return nil, err
		}
	}

	if e.cfg.Search.EnableCamelCase {
		if err := e.probeTokens(ctx, q, merged); err != nil {
			return nil, err
		}
	}

	if err := e.probeAbbreviations(ctx, q, merged); err != nil {
		return nil, err
	}

	results := e.filterByKind(merged)
	sortResults(results, q)

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) probeTrigrams(ctx context.Context, q string, merged map[types.ItemID]Result) error {
	terms := tokenize.TrigramSet(q, e.cfg.Index.CaseSensitive)
	if len(terms) == 0 {
		return nil
	}

	counts, err := e.store.SearchTrigrams(ctx, terms)
	if err != nil {
		return err
	}

	for id := range counts {
		item, err := e.store.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			continue
		}
		score := tokenize.Score(q, item.Name, e.cfg.Index.CaseSensitive)
		if score <= 0 {
			continue
		}
		mergeMax(merged, *item, score)
	}
	return nil
}

func (e *Engine) probeTokens(ctx context.Context, q string, merged map[types.ItemID]Result) error {
	terms := make([]string, 0)
	for _, t := range tokenize.TokenStrings(q) {
		terms = append(terms, tokenize.FoldCase(t, e.cfg.Index.CaseSensitive))
	}
	if len(terms) == 0 {
		return nil
	}

	counts, err := e.store.SearchTokens(ctx, terms)
	if err != nil {
		return err
	}

	for id := range counts {
		if existing, exists := merged[id]; exists {
			existing.Score += tokenMatchBoost
			merged[id] = existing
			continue
		}

		item, err := e.store.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			continue
		}
		score := tokenize.Score(q, item.Name, e.cfg.Index.CaseSensitive)
		if score <= 0 {
			continue
		}
		mergeMax(merged, *item, score+tokenMatchBoost)
	}
	return nil
}

// probeAbbreviations enumerates every item not yet present in merged and
// includes it at a flat score if the abbreviation predicate holds. This
// stage walks the whole corpus rather than using an index, an accepted
// tradeoff for small-to-medium workspaces.
func (e *Engine) probeAbbreviations(ctx context.Context, q string, merged map[types.ItemID]Result) error {
	return e.store.ForEachItem(ctx, func(item types.Item) error {
		if _, exists := merged[item.ID]; exists {
			return nil
		}
		if tokenize.AbbreviationMatches(q, item.Name) {
			mergeMax(merged, item, abbreviationFallbackScore)
		}
		return nil
	})
}

func mergeMax(merged map[types.ItemID]Result, item types.Item, score int) {
	if existing, ok := merged[item.ID]; ok {
		if score > existing.Score {
			merged[item.ID] = Result{Item: item, Score: score}
		}
		return
	}
	merged[item.ID] = Result{Item: item, Score: score}
}

func (e *Engine) filterByKind(merged map[types.ItemID]Result) []Result {
	out := make([]Result, 0, len(merged))
	for _, r := range merged {
		if r.Item.Kind == types.KindFile && !e.cfg.Search.IncludeFiles {
			continue
		}
		if r.Item.Kind != types.KindFile && !e.cfg.Search.IncludeSymbols {
			continue
		}
		out = append(out, r)
	}
	return out
}

// sortResults orders descending by score; ties broken by shorter name
// length, then by Levenshtein distance to q (via go-edlib) for results
// still tied on both.
func sortResults(results []Result, q string) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if len(a.Item.Name) != len(b.Item.Name) {
			return len(a.Item.Name) < len(b.Item.Name)
		}
		da, _ := edlib.StringsSimilarity(q, a.Item.Name, edlib.Levenshtein)
		db, _ := edlib.StringsSimilarity(q, b.Item.Name, edlib.Levenshtein)
		return da > db
	})
}
