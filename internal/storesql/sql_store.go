// Package storesql implements the Storage Adapter contract as a
// persistent relational file: three tables — items, trigrams, tokens —
// with covering indexes and WAL journaling. Flush is called periodically
// by the façade's snapshot timer rather than an internal goroutine. The
// driver is modernc.org/sqlite, the pure-Go (cgo-free) SQLite
// implementation the sibling sqldef example wires for its own SQLite
// backend.
package storesql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	serrors "github.com/devpushing/codesearch/internal/errors"
	"github.com/devpushing/codesearch/internal/types"

	_ "modernc.org/sqlite"
)

const (
	defaultBatchSize = 10000
	mmapSizeBytes    = 256 * 1024 * 1024
)

// Store is the persistent Storage Adapter implementation.
type Store struct {
	path string
	db   *sql.DB

	mu             sync.Mutex
	tx             *sql.Tx
	txDepth        int
	autoCommit     bool
	batchSize      int
	opsSinceCommit int
	dirty          bool

	debug bool
}

// Option configures a Store before Initialize.
type Option func(*Store)

// WithBatchSize overrides the default auto-commit batch size.
func WithBatchSize(n int) Option {
	return func(s *Store) { s.batchSize = n }
}

// WithDebug enables verbose logging of flush activity.
func WithDebug(enabled bool) Option {
	return func(s *Store) { s.debug = enabled }
}

// New creates a persistent store backed by the file at path. Call
// Initialize before any other operation.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:       path,
		autoCommit: true,
		batchSize:  defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil // idempotent on repeat
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return serrors.NewStorageError("initialize", err).WithPath(s.path)
	}
	db.SetMaxOpenConns(1) // SQLite write concurrency is inherently single-writer

	if err := applyPragmas(db); err != nil {
		db.Close()
		return serrors.NewStorageError("initialize", err).WithPath(s.path)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return serrors.NewStorageError("initialize", err).WithPath(s.path)
	}

	s.db = db
	return nil
}

// applyPragmas sets the performance pragmas: write-ahead journaling,
// relaxed sync, and a memory-mapped cache sized to ~256 MiB.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA mmap_size = %d", mmapSizeBytes),
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func createSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			kind INTEGER NOT NULL,
			parent_id INTEGER REFERENCES items(id) ON DELETE CASCADE,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_path ON items(path)`,
		`CREATE INDEX IF NOT EXISTS idx_items_kind ON items(kind)`,
		`CREATE TABLE IF NOT EXISTS trigrams (
			trigram TEXT NOT NULL,
			item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			PRIMARY KEY (trigram, item_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trigrams_trigram ON trigrams(trigram)`,
		`CREATE INDEX IF NOT EXISTS idx_trigrams_item ON trigrams(item_id)`,
		`CREATE TABLE IF NOT EXISTS tokens (
			token TEXT NOT NULL,
			item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			PRIMARY KEY (token, item_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_token ON tokens(token)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_item ON tokens(item_id)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

// Flush serializes the database to disk (a WAL checkpoint) if changes are
// pending since the last call. The façade drives this on its own
// 5-second ticker, rather than the adapter spawning its own goroutine. A
// failure is logged and retried on the next call; it never surfaces to
// the caller.
func (s *Store) Flush() error {
	s.mu.Lock()
	dirty := s.dirty
	s.dirty = false
	s.mu.Unlock()

	if !dirty {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		log.Printf("storesql: periodic checkpoint failed, will retry: %v", err)
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
	}
	return nil
}

// Close forces a final flush and closes the backing file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
		s.txDepth = 0
		s.opsSinceCommit = 0
	}

	for _, table := range []string{"tokens", "trigrams", "items"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return serrors.NewStorageError("clear", err)
		}
	}
	s.dirty = true
	return nil
}

// execer returns the current implicit/explicit transaction if one is
// open, else the database handle directly.
func (s *Store) execer() interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
} {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// noteWrite manages the implicit auto-commit batch transaction:
// add_item/add_trigrams/add_tokens open an implicit transaction on first
// write when auto_commit is on, and commit every batch_size operations.
// It must be called with s.mu held, after the write completed
// successfully.
func (s *Store) noteWrite(ctx context.Context) error {
	s.dirty = true
	if s.txDepth > 0 || !s.autoCommit {
		return nil // caller (the Builder) owns an explicit outer transaction
	}

	s.opsSinceCommit++
	if s.opsSinceCommit >= s.batchSize {
		if s.tx != nil {
			if err := s.tx.Commit(); err != nil {
				return serrors.NewStorageError("batch_commit", err)
			}
			s.tx = nil
		}
		s.opsSinceCommit = 0
	}
	return nil
}

// beginImplicitIfNeeded opens the implicit auto-commit transaction before
// the first write of a batch.
func (s *Store) beginImplicitIfNeeded(ctx context.Context) error {
	if s.txDepth > 0 || !s.autoCommit || s.tx != nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return serrors.NewStorageError("begin_implicit", err)
	}
	s.tx = tx
	return nil
}

func (s *Store) AddItem(ctx context.Context, item types.Item) (types.ItemID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginImplicitIfNeeded(ctx); err != nil {
		return 0, err
	}

	metadataJSON, err := encodeMetadata(item.Metadata)
	if err != nil {
		return 0, serrors.NewStorageError("add_item", err).WithPath(item.Path)
	}

	res, err := s.execer().ExecContext(ctx,
		`INSERT INTO items (path, name, kind, parent_id, metadata) VALUES (?, ?, ?, ?, ?)`,
		item.Path, item.Name, int(item.Kind), nullableParent(item.ParentID), metadataJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, serrors.NewStorageError("add_item", serrors.ErrDuplicatePath).WithPath(item.Path)
		}
		return 0, serrors.NewStorageError("add_item", err).WithPath(item.Path)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, serrors.NewStorageError("add_item", err).WithPath(item.Path)
	}

	if err := s.noteWrite(ctx); err != nil {
		return 0, err
	}
	return types.ItemID(id), nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableParent(id *types.ItemID) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}

func encodeMetadata(m *types.Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func decodeMetadata(data []byte) (*types.Metadata, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m types.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) UpdateItem(ctx context.Context, id types.ItemID, patch types.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginImplicitIfNeeded(ctx); err != nil {
		return err
	}

	existing, err := s.getItemLocked(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return serrors.NewStorageError("update_item", serrors.ErrNotFound)
	}

	if patch.Name != nil {
		existing.Name = *patch.Name
	}
	if patch.Kind != nil {
		existing.Kind = *patch.Kind
	}
	if patch.ParentID != nil {
		existing.ParentID = *patch.ParentID
	}
	if patch.Metadata != nil {
		existing.Metadata = patch.Metadata
	}

	metadataJSON, err := encodeMetadata(existing.Metadata)
	if err != nil {
		return serrors.NewStorageError("update_item", err)
	}

	_, err = s.execer().ExecContext(ctx,
		`UPDATE items SET name = ?, kind = ?, parent_id = ?, metadata = ? WHERE id = ?`,
		existing.Name, int(existing.Kind), nullableParent(existing.ParentID), metadataJSON, int64(id))
	if err != nil {
		return serrors.NewStorageError("update_item", err)
	}

	return s.noteWrite(ctx)
}

func (s *Store) DeleteItem(ctx context.Context, id types.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginImplicitIfNeeded(ctx); err != nil {
		return err
	}

	res, err := s.execer().ExecContext(ctx, `DELETE FROM items WHERE id = ?`, int64(id))
	if err != nil {
		return serrors.NewStorageError("delete_item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return serrors.NewStorageError("delete_item", err)
	}
	if n == 0 {
		return serrors.NewStorageError("delete_item", serrors.ErrNotFound)
	}

	return s.noteWrite(ctx)
}

func (s *Store) GetItem(ctx context.Context, id types.ItemID) (*types.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getItemLocked(ctx, id)
}

func (s *Store) getItemLocked(ctx context.Context, id types.ItemID) (*types.Item, error) {
	row := s.execer().QueryRowContext(ctx,
		`SELECT id, path, name, kind, parent_id, metadata FROM items WHERE id = ?`, int64(id))
	return scanItem(row)
}

func (s *Store) GetItemByPath(ctx context.Context, path string) (*types.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.execer().QueryRowContext(ctx,
		`SELECT id, path, name, kind, parent_id, metadata FROM items WHERE path = ?`, path)
	return scanItem(row)
}

func scanItem(row *sql.Row) (*types.Item, error) {
	var (
		id           int64
		path, name   string
		kind         int
		parentID     sql.NullInt64
		metadataJSON []byte
	)
	if err := row.Scan(&id, &path, &name, &kind, &parentID, &metadataJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, serrors.NewStorageError("get_item", err)
	}

	item := &types.Item{
		ID:   types.ItemID(id),
		Path: path,
		Name: name,
		Kind: types.Kind(kind),
	}
	if parentID.Valid {
		pid := types.ItemID(parentID.Int64)
		item.ParentID = &pid
	}
	metadata, err := decodeMetadata(metadataJSON)
	if err != nil {
		return nil, serrors.NewStorageError("get_item", err)
	}
	item.Metadata = metadata
	return item, nil
}

// ForEachItem streams every item to fn, supporting the Query Engine's
// abbreviation enumeration fallback.
func (s *Store) ForEachItem(ctx context.Context, fn func(types.Item) error) error {
	s.mu.Lock()
	rows, err := s.execer().QueryContext(ctx,
		`SELECT id, path, name, kind, parent_id, metadata FROM items`)
	if err != nil {
		s.mu.Unlock()
		return serrors.NewStorageError("for_each_item", err)
	}

	var items []types.Item
	for rows.Next() {
		var (
			id           int64
			path, name   string
			kind         int
			parentID     sql.NullInt64
			metadataJSON []byte
		)
		if err := rows.Scan(&id, &path, &name, &kind, &parentID, &metadataJSON); err != nil {
			rows.Close()
			s.mu.Unlock()
			return serrors.NewStorageError("for_each_item", err)
		}
		item := types.Item{ID: types.ItemID(id), Path: path, Name: name, Kind: types.Kind(kind)}
		if parentID.Valid {
			pid := types.ItemID(parentID.Int64)
			item.ParentID = &pid
		}
		metadata, err := decodeMetadata(metadataJSON)
		if err != nil {
			rows.Close()
			s.mu.Unlock()
			return serrors.NewStorageError("for_each_item", err)
		}
		item.Metadata = metadata
		items = append(items, item)
	}
	rowsErr := rows.Err()
	rows.Close()
	s.mu.Unlock()
	if rowsErr != nil {
		return serrors.NewStorageError("for_each_item", rowsErr)
	}

	for _, item := range items {
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AddTrigrams(ctx context.Context, postings []types.TrigramPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(postings) == 0 {
		return nil
	}
	if err := s.beginImplicitIfNeeded(ctx); err != nil {
		return err
	}

	for _, p := range postings {
		// INSERT OR IGNORE: duplicates are silently ignored.
		if _, err := s.execer().ExecContext(ctx,
			`INSERT OR IGNORE INTO trigrams (trigram, item_id, position) VALUES (?, ?, ?)`,
			p.Trigram, int64(p.ItemID), p.Pos); err != nil {
			return serrors.NewStorageError("add_trigrams", err)
		}
	}

	return s.noteWrite(ctx)
}

func (s *Store) RemoveTrigrams(ctx context.Context, itemID types.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginImplicitIfNeeded(ctx); err != nil {
		return err
	}
	if _, err := s.execer().ExecContext(ctx, `DELETE FROM trigrams WHERE item_id = ?`, int64(itemID)); err != nil {
		return serrors.NewStorageError("remove_trigrams", err)
	}
	return s.noteWrite(ctx)
}

// SearchTrigrams enforces an all-must-appear filter: only items matching
// every distinct query trigram are returned.
func (s *Store) SearchTrigrams(ctx context.Context, terms []string) (map[types.ItemID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	distinct := dedupe(terms)
	if len(distinct) == 0 {
		return map[types.ItemID]int{}, nil
	}

	placeholders, args := placeholdersFor(distinct)
	query := fmt.Sprintf(
		`SELECT item_id, COUNT(DISTINCT trigram) AS c FROM trigrams WHERE trigram IN (%s)
		 GROUP BY item_id HAVING COUNT(DISTINCT trigram) = ?`, placeholders)
	args = append(args, len(distinct))

	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, serrors.NewStorageError("search_trigrams", err)
	}
	defer rows.Close()

	return scanCounts(rows)
}

func (s *Store) AddTokens(ctx context.Context, postings []types.TokenPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(postings) == 0 {
		return nil
	}
	if err := s.beginImplicitIfNeeded(ctx); err != nil {
		return err
	}

	for _, p := range postings {
		if _, err := s.execer().ExecContext(ctx,
			`INSERT OR IGNORE INTO tokens (token, item_id, position) VALUES (?, ?, ?)`,
			p.Token, int64(p.ItemID), p.Pos); err != nil {
			return serrors.NewStorageError("add_tokens", err)
		}
	}

	return s.noteWrite(ctx)
}

func (s *Store) RemoveTokens(ctx context.Context, itemID types.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginImplicitIfNeeded(ctx); err != nil {
		return err
	}
	if _, err := s.execer().ExecContext(ctx, `DELETE FROM tokens WHERE item_id = ?`, int64(itemID)); err != nil {
		return serrors.NewStorageError("remove_tokens", err)
	}
	return s.noteWrite(ctx)
}

// SearchTokens retains per-item counts without the all-must-match filter,
// for fractional-match scoring.
func (s *Store) SearchTokens(ctx context.Context, terms []string) (map[types.ItemID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	distinct := dedupe(terms)
	if len(distinct) == 0 {
		return map[types.ItemID]int{}, nil
	}

	placeholders, args := placeholdersFor(distinct)
	query := fmt.Sprintf(
		`SELECT item_id, COUNT(DISTINCT token) AS c FROM tokens WHERE token IN (%s) GROUP BY item_id`,
		placeholders)

	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, serrors.NewStorageError("search_tokens", err)
	}
	defer rows.Close()

	return scanCounts(rows)
}

func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func placeholdersFor(terms []string) (string, []any) {
	marks := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, t := range terms {
		marks[i] = "?"
		args[i] = t
	}
	return strings.Join(marks, ","), args
}

func scanCounts(rows *sql.Rows) (map[types.ItemID]int, error) {
	counts := make(map[types.ItemID]int)
	for rows.Next() {
		var itemID int64
		var count int
		if err := rows.Scan(&itemID, &count); err != nil {
			return nil, serrors.NewStorageError("scan_counts", err)
		}
		counts[types.ItemID(itemID)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, serrors.NewStorageError("scan_counts", err)
	}
	return counts, nil
}

// Begin/Commit/Rollback implement a single-level explicit transaction:
// the Builder disables auto_commit and wraps a whole bulk sweep in one
// outer transaction via these.
func (s *Store) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.txDepth > 0 {
		log.Printf("storesql: nested Begin is a no-op")
		s.txDepth++
		return nil
	}

	if s.tx != nil {
		// An implicit auto-commit batch was mid-flight; fold it into the
		// explicit transaction rather than starting a second one.
		s.txDepth = 1
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return serrors.NewStorageError("begin", err)
	}
	s.tx = tx
	s.txDepth = 1
	return nil
}

func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.txDepth == 0 {
		return nil
	}
	s.txDepth--
	if s.txDepth > 0 {
		return nil
	}

	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	s.opsSinceCommit = 0
	if err != nil {
		return serrors.NewStorageError("commit", err)
	}
	s.dirty = true
	return nil
}

func (s *Store) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txDepth = 0
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	s.opsSinceCommit = 0
	if err != nil {
		return serrors.NewStorageError("rollback", err)
	}
	return nil
}

// Stats counts items and distinct trigrams/tokens from the tables.
// LastUpdated is the time of the Stats call; the store does not record
// when it was last written.
func (s *Store) Stats(ctx context.Context) (types.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items, trigrams, tokens int64
	if err := s.execer().QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&items); err != nil {
		return types.Stats{}, serrors.NewStorageError("stats", err)
	}
	if err := s.execer().QueryRowContext(ctx, `SELECT COUNT(DISTINCT trigram) FROM trigrams`).Scan(&trigrams); err != nil {
		return types.Stats{}, serrors.NewStorageError("stats", err)
	}
	if err := s.execer().QueryRowContext(ctx, `SELECT COUNT(DISTINCT token) FROM tokens`).Scan(&tokens); err != nil {
		return types.Stats{}, serrors.NewStorageError("stats", err)
	}

	return types.Stats{
		Items:           items,
		DistinctTrigram: trigrams,
		DistinctToken:   tokens,
		LastUpdated:     time.Now(),
	}, nil
}

// SetAutoCommit toggles the implicit batching transaction. The Builder
// disables it around bulk indexing and drives an explicit outer
// transaction instead.
func (s *Store) SetAutoCommit(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoCommit = enabled
}
