package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tmerr "github.com/rmraya/hybridtm/internal/errors"
	"github.com/rmraya/hybridtm/internal/tm"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenOrCreate(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.CreateTable(context.Background(), 4))
	return s
}

func makeEntry(fileID, unitID string, idx int, lang, text string, vec []float32) *tm.Entry {
	e := &tm.Entry{
		Language:     lang,
		PureText:     text,
		Element:      "<source>" + text + "</source>",
		FileID:       fileID,
		Original:     "demo.xlf",
		UnitID:       unitID,
		SegmentIndex: idx,
		SegmentCount: 1,
		Vector:       vec,
	}
	e.ID = e.CanonicalID()
	return e
}

func TestSQLiteStore_UpsertAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := makeEntry("f", "u1", 1, "en", "Hello", []float32{1, 0, 0, 0})
	require.NoError(t, s.UpsertBatch(ctx, []*tm.Entry{e}))

	rows, err := s.Query(ctx, Eq(ColID, e.ID), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, e.PureText, rows[0].PureText)
	assert.Equal(t, e.Element, rows[0].Element)
	assert.Equal(t, e.Vector, rows[0].Vector)
	assert.Equal(t, "demo.xlf", rows[0].Original)
}

func TestSQLiteStore_MetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state := tm.StateReviewed
	quality := 85
	usage := 7
	idx := 2
	e := makeEntry("f", "u1", 1, "en", "Hello", []float32{1, 0, 0, 0})
	e.Metadata = &tm.Metadata{
		State:        &state,
		SubState:     "hybridtm:checked",
		Quality:      &quality,
		CreationDate: "2023-01-01T00:00:00Z",
		ChangeDate:   "2023-06-01T00:00:00Z",
		CreationID:   "alice",
		Context:      "ui.settings",
		UsageCount:   &usage,
		Notes:        []string{"first note", "second note"},
		Properties:   map[string]string{"domain": "software", "client": "acme"},
		Segment: &tm.SegmentRef{
			Provider:     "xliff",
			FileID:       "f",
			UnitID:       "u1",
			SegmentIndex: &idx,
		},
	}
	require.NoError(t, s.UpsertBatch(ctx, []*tm.Entry{e}))

	rows, err := s.Query(ctx, Eq(ColID, e.ID), 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	md := rows[0].Metadata
	require.NotNil(t, md)
	require.NotNil(t, md.State)
	assert.Equal(t, tm.StateReviewed, *md.State)
	assert.Equal(t, "hybridtm:checked", md.SubState)
	assert.Equal(t, 85, *md.Quality)
	assert.Equal(t, 7, *md.UsageCount)
	assert.Equal(t, []string{"first note", "second note"}, md.Notes)
	assert.Equal(t, map[string]string{"domain": "software", "client": "acme"}, md.Properties)
	require.NotNil(t, md.Segment)
	assert.Equal(t, "xliff", md.Segment.Provider)
	assert.Equal(t, 2, *md.Segment.SegmentIndex)
}

func TestSQLiteStore_NilMetadataStaysAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := makeEntry("f", "u1", 1, "en", "Hello", []float32{1, 0, 0, 0})
	require.NoError(t, s.UpsertBatch(ctx, []*tm.Entry{e}))

	rows, err := s.Query(ctx, Eq(ColID, e.ID), 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Metadata)
}

func TestSQLiteStore_DimensionMismatchRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := makeEntry("f", "u1", 1, "en", "Hello", []float32{1, 0, 0})
	err := s.UpsertBatch(ctx, []*tm.Entry{e})
	require.Error(t, err)
	assert.True(t, tmerr.IsKind(err, tmerr.KindDimensionMismatch))
}

func TestSQLiteStore_CreateTableIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTable(ctx, 4))

	err := s.CreateTable(ctx, 8)
	require.Error(t, err)
	assert.True(t, tmerr.IsKind(err, tmerr.KindDimensionMismatch))
}

func TestSQLiteStore_DeleteWhere(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []*tm.Entry{
		makeEntry("f", "u1", 1, "en", "one", []float32{1, 0, 0, 0}),
		makeEntry("f", "u1", 1, "es", "uno", []float32{0, 1, 0, 0}),
		makeEntry("f", "u2", 1, "en", "two", []float32{0, 0, 1, 0}),
	}
	require.NoError(t, s.UpsertBatch(ctx, entries))

	// Delete the whole unit u1 by prefix.
	n, err := s.DeleteWhere(ctx, HasPrefix(ColID, "f:u1:"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Deleting again matches nothing.
	n, err = s.DeleteWhere(ctx, HasPrefix(ColID, "f:u1:"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteStore_CountByLanguage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertBatch(ctx, []*tm.Entry{
		makeEntry("f", "u1", 1, "en", "one", []float32{1, 0, 0, 0}),
		makeEntry("f", "u2", 1, "en", "two", []float32{0, 1, 0, 0}),
		makeEntry("f", "u1", 1, "es", "uno", []float32{0, 0, 1, 0}),
	}))

	counts, err := s.CountByLanguage(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"en": 2, "es": 1}, counts)
}

func TestSQLiteStore_CountByLanguageEmpty(t *testing.T) {
	s := newTestStore(t)

	counts, err := s.CountByLanguage(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestSQLiteStore_VectorSearchOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []*tm.Entry{
		makeEntry("f", "u1", 1, "en", "exact", []float32{1, 0, 0, 0}),
		makeEntry("f", "u2", 1, "en", "near", []float32{0.9, 0.1, 0, 0}),
		makeEntry("f", "u3", 1, "en", "far", []float32{0, 1, 0, 0}),
		makeEntry("f", "u4", 1, "es", "otro", []float32{1, 0, 0, 0}),
	}
	require.NoError(t, s.UpsertBatch(ctx, entries))

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, Eq(ColLanguage, "en"), 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// Ordered by distance ascending; the es row never appears.
	assert.Equal(t, "f:u1:1:en", hits[0].Entry.ID)
	assert.Equal(t, "f:u2:1:en", hits[1].Entry.ID)
	assert.Less(t, hits[0].Distance, hits[1].Distance)
	assert.InDelta(t, 0, hits[0].Distance, 1e-5)
}

func TestSQLiteStore_VectorSearchUnlimited(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []*tm.Entry{
		makeEntry("f", "u1", 1, "en", "one", []float32{1, 0, 0, 0}),
		makeEntry("f", "u2", 1, "en", "two", []float32{0, 1, 0, 0}),
		makeEntry("f", "u3", 1, "en", "three", []float32{0, 0, 1, 0}),
	}
	require.NoError(t, s.UpsertBatch(ctx, entries))

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, Eq(ColLanguage, "en"), 0)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
}

func TestSQLiteStore_QueryDimensionMismatch(t *testing.T) {
	s := newTestStore(t)

	_, err := s.VectorSearch(context.Background(), []float32{1, 0}, nil, 5)
	require.Error(t, err)
	assert.True(t, tmerr.IsKind(err, tmerr.KindDimensionMismatch))
}

func TestSQLiteStore_ReopenRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenOrCreate(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, s.CreateTable(ctx, 4))
	require.NoError(t, s.UpsertBatch(ctx, []*tm.Entry{
		makeEntry("f", "u1", 1, "en", "persisted", []float32{1, 0, 0, 0}),
	}))
	require.NoError(t, s.Close())

	reopened, err := OpenOrCreate(ctx, dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	assert.Equal(t, 4, reopened.Dimension())

	hits, err := reopened.VectorSearch(ctx, []float32{1, 0, 0, 0}, nil, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "persisted", hits[0].Entry.PureText)
}

func TestSQLiteStore_CloseIdempotent(t *testing.T) {
	s, err := OpenOrCreate(context.Background(), t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestSQLiteStore_LockRejectsSecondOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenOrCreate(context.Background(), dir)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = OpenOrCreate(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, tmerr.IsKind(err, tmerr.KindStoreError))
}
