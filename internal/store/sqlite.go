package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	tmerr "github.com/rmraya/hybridtm/internal/errors"
	"github.com/rmraya/hybridtm/internal/tm"
)

const (
	dbFileName   = "entries.db"
	lockFileName = ".store.lock"

	// metaKeyDimension stores the vector dimension fixed at table creation.
	metaKeyDimension = "vector_dimension"
)

// entryColumns is the flattened column list of the entries table, in scan
// order. Nested metadata objects (notes, properties, segment_ref) are
// stored as JSON strings.
const entryColumns = `id, language, pure_text, element, file_id, original, unit_id,
	segment_index, segment_count, vector,
	state, sub_state, quality, creation_date, creation_id, change_date, change_id,
	creation_tool, creation_tool_version, context, last_usage_date, usage_count,
	notes, properties, segment_ref`

// SQLiteStore implements VectorStore over a single SQLite database with an
// in-memory HNSW graph for distance queries. The database directory is
// held under an exclusive file lock for the lifetime of the store.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dir    string
	lock   *flock.Flock
	dim    int
	ann    *annIndex
	closed bool
}

// Verify interface implementation at compile time.
var _ VectorStore = (*SQLiteStore)(nil)

// OpenOrCreate opens the store in dir, creating the directory and database
// as needed. The open is idempotent: an existing table is reused and its
// vector index rebuilt from the stored rows.
func OpenOrCreate(ctx context.Context, dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, tmerr.Wrap(tmerr.KindStoreError, "create store directory", err).WithPath(dir)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, tmerr.Wrap(tmerr.KindStoreError, "acquire store lock", err).WithPath(dir)
	}
	if !acquired {
		return nil, tmerr.New(tmerr.KindStoreError, "store is in use by another process").WithPath(dir)
	}

	dbPath := filepath.Join(dir, dbFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, tmerr.Wrap(tmerr.KindStoreError, "open database", err).WithPath(dbPath)
	}

	// WAL must be set via PRAGMA for modernc.org/sqlite.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, tmerr.Wrap(tmerr.KindStoreError, "configure database", err).WithPath(dbPath)
		}
	}

	s := &SQLiteStore{
		db:   db,
		dir:  dir,
		lock: lock,
		ann:  newANNIndex(),
	}

	if err := s.loadExisting(ctx); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return s, nil
}

// loadExisting reads the stored dimension, if any, and rebuilds the HNSW
// graph from the table.
func (s *SQLiteStore) loadExisting(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS store_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "create meta table", err)
	}

	var dimStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM store_meta WHERE key = ?`, metaKeyDimension).Scan(&dimStr)
	if err == sql.ErrNoRows {
		return nil // fresh store, CreateTable pending
	}
	if err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "read stored dimension", err)
	}
	if _, err := fmt.Sscanf(dimStr, "%d", &s.dim); err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "parse stored dimension", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, vector FROM entries`)
	if err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "scan vectors", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return tmerr.Wrap(tmerr.KindStoreError, "scan vector row", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			slog.Warn("skipping undecodable vector", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		s.ann.add(id, vec)
	}
	return rows.Err()
}

// CreateTable creates the entries table with the given vector dimension.
func (s *SQLiteStore) CreateTable(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tmerr.New(tmerr.KindStoreError, "store is closed")
	}
	if dim <= 0 {
		return tmerr.Newf(tmerr.KindStoreError, "invalid vector dimension %d", dim)
	}
	if s.dim != 0 {
		if s.dim != dim {
			return tmerr.Newf(tmerr.KindDimensionMismatch,
				"table has dimension %d, requested %d", s.dim, dim)
		}
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		language TEXT NOT NULL,
		pure_text TEXT NOT NULL,
		element TEXT NOT NULL,
		file_id TEXT NOT NULL,
		original TEXT,
		unit_id TEXT NOT NULL,
		segment_index INTEGER NOT NULL,
		segment_count INTEGER NOT NULL,
		vector BLOB NOT NULL,
		state TEXT,
		sub_state TEXT,
		quality INTEGER,
		creation_date TEXT,
		creation_id TEXT,
		change_date TEXT,
		change_id TEXT,
		creation_tool TEXT,
		creation_tool_version TEXT,
		context TEXT,
		last_usage_date TEXT,
		usage_count INTEGER,
		notes TEXT,
		properties TEXT,
		segment_ref TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_entries_language ON entries(language);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "create entries table", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO store_meta (key, value) VALUES (?, ?)`,
		metaKeyDimension, fmt.Sprintf("%d", dim)); err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "record vector dimension", err)
	}
	s.dim = dim
	return nil
}

// Dimension returns the dimension fixed at table creation, 0 if unset.
func (s *SQLiteStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// UpsertBatch inserts entries in one transaction. Vector lengths are
// validated against the table dimension before any write.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, entries []*tm.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tmerr.New(tmerr.KindStoreError, "store is closed")
	}
	if s.dim == 0 {
		return tmerr.New(tmerr.KindStoreError, "table has not been created")
	}
	for _, e := range entries {
		if len(e.Vector) != s.dim {
			return tmerr.Newf(tmerr.KindDimensionMismatch,
				"vector length %d, table dimension %d", len(e.Vector), s.dim).
				WithEntry(e.CanonicalID())
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "prepare insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		args, err := insertArgs(e)
		if err != nil {
			return tmerr.Wrap(tmerr.KindStoreError, "serialize entry", err).WithEntry(e.CanonicalID())
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return tmerr.Wrap(tmerr.KindStoreError, "insert entry", err).WithEntry(e.CanonicalID())
		}
	}

	if err := tx.Commit(); err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "commit batch", err)
	}

	for _, e := range entries {
		s.ann.add(e.CanonicalID(), e.Vector)
	}
	return nil
}

// DeleteWhere removes rows matching the predicate, returning the count.
func (s *SQLiteStore) DeleteWhere(ctx context.Context, pred Predicate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, tmerr.New(tmerr.KindStoreError, "store is closed")
	}
	if s.dim == 0 {
		return 0, nil
	}

	where, args := compile(pred)

	// Collect the doomed IDs first so the graph stays in sync.
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM entries WHERE `+where, args...)
	if err != nil {
		return 0, tmerr.Wrap(tmerr.KindStoreError, "select rows to delete", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, tmerr.Wrap(tmerr.KindStoreError, "scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, tmerr.Wrap(tmerr.KindStoreError, "scan ids to delete", err)
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE `+where, args...)
	if err != nil {
		return 0, tmerr.Wrap(tmerr.KindStoreError, "delete rows", err)
	}
	affected, _ := res.RowsAffected()

	for _, id := range ids {
		s.ann.remove(id)
	}
	return affected, nil
}

// Query returns rows matching the predicate.
func (s *SQLiteStore) Query(ctx context.Context, pred Predicate, limit int) ([]*tm.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, tmerr.New(tmerr.KindStoreError, "store is closed")
	}
	if s.dim == 0 {
		return nil, nil
	}

	where, args := compile(pred)
	query := `SELECT ` + entryColumns + ` FROM entries WHERE ` + where
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, tmerr.Wrap(tmerr.KindStoreError, "query entries", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*tm.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// VectorSearch returns rows ordered by Euclidean distance to the query
// vector, ascending. Limited searches go through the HNSW graph with
// predicate post-filtering; unlimited searches (and underfilled graph
// results) fall back to an exact predicate-pushdown scan.
func (s *SQLiteStore) VectorSearch(ctx context.Context, query []float32, pred Predicate, limit int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, tmerr.New(tmerr.KindStoreError, "store is closed")
	}
	if s.dim == 0 {
		return nil, nil
	}
	if len(query) != s.dim {
		return nil, tmerr.Newf(tmerr.KindDimensionMismatch,
			"query vector length %d, table dimension %d", len(query), s.dim)
	}

	if limit > 0 {
		hits, complete, err := s.annSearch(ctx, query, pred, limit)
		if err != nil {
			return nil, err
		}
		if complete {
			return hits, nil
		}
	}

	hits, err := s.exactSearch(ctx, query, pred)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// annSearch runs the HNSW fast path with oversampling. complete is false
// when post-filtering left fewer than limit hits while unexplored rows
// remain, in which case the caller falls back to the exact scan.
func (s *SQLiteStore) annSearch(ctx context.Context, query []float32, pred Predicate, limit int) ([]Hit, bool, error) {
	k := limit * 4
	if k < 50 {
		k = 50
	}
	total := s.ann.size()
	if k > total {
		k = total
	}
	if k == 0 {
		return nil, true, nil
	}

	ids, distances := s.ann.search(query, k)
	if len(ids) == 0 {
		return nil, true, nil
	}

	entries, err := s.fetchByIDs(ctx, ids)
	if err != nil {
		return nil, false, err
	}

	hits := make([]Hit, 0, limit)
	for i, id := range ids {
		e, ok := entries[id]
		if !ok {
			continue
		}
		if pred != nil && !pred.Matches(e) {
			continue
		}
		hits = append(hits, Hit{Entry: e, Distance: distances[i]})
		if len(hits) == limit {
			return hits, true, nil
		}
	}

	// Fewer than limit after filtering: complete only if the graph was
	// exhausted.
	return hits, k >= total, nil
}

// exactSearch scans every row matching the predicate and sorts by distance.
func (s *SQLiteStore) exactSearch(ctx context.Context, query []float32, pred Predicate) ([]Hit, error) {
	where, args := compile(pred)
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE `+where, args...)
	if err != nil {
		return nil, tmerr.Wrap(tmerr.KindStoreError, "scan entries", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Entry: e, Distance: l2Distance(query, e.Vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, tmerr.Wrap(tmerr.KindStoreError, "scan entries", err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits, nil
}

// fetchByIDs hydrates entries for the given IDs, keyed by ID.
func (s *SQLiteStore) fetchByIDs(ctx context.Context, ids []string) (map[string]*tm.Entry, error) {
	out := make(map[string]*tm.Entry, len(ids))

	// Chunk to stay under SQLite's bind-parameter limit.
	const chunkSize = 500
	for start := 0; start < len(ids); start += chunkSize {
		end := min(start+chunkSize, len(ids))
		where, args := compile(In(ColID, ids[start:end]))

		rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE `+where, args...)
		if err != nil {
			return nil, tmerr.Wrap(tmerr.KindStoreError, "fetch entries by id", err)
		}
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				_ = rows.Close()
				return nil, err
			}
			out[e.ID] = e
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, tmerr.Wrap(tmerr.KindStoreError, "fetch entries by id", err)
		}
		_ = rows.Close()
	}
	return out, nil
}

// Count returns the number of stored rows.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, tmerr.New(tmerr.KindStoreError, "store is closed")
	}
	if s.dim == 0 {
		return 0, nil
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, tmerr.Wrap(tmerr.KindStoreError, "count entries", err)
	}
	return n, nil
}

// CountByLanguage returns the number of stored rows per language tag.
func (s *SQLiteStore) CountByLanguage(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, tmerr.New(tmerr.KindStoreError, "store is closed")
	}
	counts := make(map[string]int64)
	if s.dim == 0 {
		return counts, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT language, COUNT(*) FROM entries GROUP BY language`)
	if err != nil {
		return nil, tmerr.Wrap(tmerr.KindStoreError, "count entries by language", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var lang string
		var n int64
		if err := rows.Scan(&lang, &n); err != nil {
			return nil, tmerr.Wrap(tmerr.KindStoreError, "scan language count", err)
		}
		counts[lang] = n
	}
	return counts, rows.Err()
}

// Close releases the database and the directory lock. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); err == nil {
		err = unlockErr
	}
	if err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "close store", err)
	}
	return nil
}

// compile renders a predicate (nil matches everything) to SQL + args.
func compile(pred Predicate) (string, []any) {
	if pred == nil {
		return "1 = 1", nil
	}
	var args []any
	return pred.SQL(&args), args
}

// insertArgs flattens an entry into the insert parameter list.
func insertArgs(e *tm.Entry) ([]any, error) {
	md := e.Metadata

	var notesJSON, propsJSON, segJSON any
	if md != nil {
		if len(md.Notes) > 0 {
			b, err := json.Marshal(md.Notes)
			if err != nil {
				return nil, err
			}
			notesJSON = string(b)
		}
		if len(md.Properties) > 0 {
			b, err := json.Marshal(md.Properties)
			if err != nil {
				return nil, err
			}
			propsJSON = string(b)
		}
		if md.Segment != nil {
			b, err := json.Marshal(md.Segment)
			if err != nil {
				return nil, err
			}
			segJSON = string(b)
		}
	}

	return []any{
		e.CanonicalID(), e.Language, e.PureText, e.Element, e.FileID,
		nullString(e.Original), e.UnitID, e.SegmentIndex, e.SegmentCount,
		EncodeVector(e.Vector),
		nullString(stateString(md)), nullString(mdSubState(md)), mdQuality(md),
		nullString(mdField(md, func(m *tm.Metadata) string { return m.CreationDate })),
		nullString(mdField(md, func(m *tm.Metadata) string { return m.CreationID })),
		nullString(mdField(md, func(m *tm.Metadata) string { return m.ChangeDate })),
		nullString(mdField(md, func(m *tm.Metadata) string { return m.ChangeID })),
		nullString(mdField(md, func(m *tm.Metadata) string { return m.CreationTool })),
		nullString(mdField(md, func(m *tm.Metadata) string { return m.CreationToolVersion })),
		nullString(mdField(md, func(m *tm.Metadata) string { return m.Context })),
		nullString(mdField(md, func(m *tm.Metadata) string { return m.LastUsageDate })),
		mdUsageCount(md),
		notesJSON, propsJSON, segJSON,
	}, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mdField(md *tm.Metadata, get func(*tm.Metadata) string) string {
	if md == nil {
		return ""
	}
	return get(md)
}

func stateString(md *tm.Metadata) string {
	if md == nil || md.State == nil {
		return ""
	}
	return string(*md.State)
}

func mdSubState(md *tm.Metadata) string {
	if md == nil {
		return ""
	}
	return md.SubState
}

func mdQuality(md *tm.Metadata) any {
	if md == nil || md.Quality == nil {
		return nil
	}
	return *md.Quality
}

func mdUsageCount(md *tm.Metadata) any {
	if md == nil || md.UsageCount == nil {
		return nil
	}
	return *md.UsageCount
}

// scanEntry reads one row into an entry, rebuilding the metadata record
// from the nullable columns. Notes, properties and segment provenance
// round-trip through their JSON encodings.
func scanEntry(rows *sql.Rows) (*tm.Entry, error) {
	var (
		e            tm.Entry
		original     sql.NullString
		blob         []byte
		state        sql.NullString
		subState     sql.NullString
		quality      sql.NullInt64
		creationDate sql.NullString
		creationID   sql.NullString
		changeDate   sql.NullString
		changeID     sql.NullString
		tool         sql.NullString
		toolVersion  sql.NullString
		contextStr   sql.NullString
		lastUsage    sql.NullString
		usageCount   sql.NullInt64
		notesJSON    sql.NullString
		propsJSON    sql.NullString
		segJSON      sql.NullString
	)

	if err := rows.Scan(&e.ID, &e.Language, &e.PureText, &e.Element, &e.FileID,
		&original, &e.UnitID, &e.SegmentIndex, &e.SegmentCount, &blob,
		&state, &subState, &quality, &creationDate, &creationID, &changeDate, &changeID,
		&tool, &toolVersion, &contextStr, &lastUsage, &usageCount,
		&notesJSON, &propsJSON, &segJSON); err != nil {
		return nil, tmerr.Wrap(tmerr.KindStoreError, "scan entry", err)
	}
	e.Original = original.String

	vec, err := DecodeVector(blob)
	if err != nil {
		return nil, tmerr.Wrap(tmerr.KindStoreError, "decode vector", err).WithEntry(e.ID)
	}
	e.Vector = vec

	md := &tm.Metadata{
		SubState:            subState.String,
		CreationDate:        creationDate.String,
		CreationID:          creationID.String,
		ChangeDate:          changeDate.String,
		ChangeID:            changeID.String,
		CreationTool:        tool.String,
		CreationToolVersion: toolVersion.String,
		Context:             contextStr.String,
		LastUsageDate:       lastUsage.String,
	}
	if state.Valid {
		st := tm.State(state.String)
		md.State = &st
	}
	if quality.Valid {
		q := int(quality.Int64)
		md.Quality = &q
	}
	if usageCount.Valid {
		u := int(usageCount.Int64)
		md.UsageCount = &u
	}
	if notesJSON.Valid {
		if err := json.Unmarshal([]byte(notesJSON.String), &md.Notes); err != nil {
			return nil, tmerr.Wrap(tmerr.KindStoreError, "decode notes", err).WithEntry(e.ID)
		}
	}
	if propsJSON.Valid {
		if err := json.Unmarshal([]byte(propsJSON.String), &md.Properties); err != nil {
			return nil, tmerr.Wrap(tmerr.KindStoreError, "decode properties", err).WithEntry(e.ID)
		}
	}
	if segJSON.Valid {
		md.Segment = &tm.SegmentRef{}
		if err := json.Unmarshal([]byte(segJSON.String), md.Segment); err != nil {
			return nil, tmerr.Wrap(tmerr.KindStoreError, "decode segment provenance", err).WithEntry(e.ID)
		}
	}
	if !md.IsEmpty() {
		e.Metadata = md
	}
	return &e, nil
}
