// Package engine exposes the public operations of a translation-memory
// instance: entry storage, concordance search, monolingual semantic
// search, and bilingual translation search with target pairing and
// hybrid ranking.
//
// The engine owns its embedder and its store connection. Writes are
// serialized per instance; readers run concurrently and tolerate
// concurrent upserts as last-writer-wins.
package engine

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/rmraya/hybridtm/internal/embed"
	tmerr "github.com/rmraya/hybridtm/internal/errors"
	"github.com/rmraya/hybridtm/internal/store"
	"github.com/rmraya/hybridtm/internal/tm"
	"github.com/rmraya/hybridtm/internal/xmltree"
)

// Engine is one translation-memory instance.
type Engine struct {
	name     string
	store    store.VectorStore
	embedder embed.Embedder
	logger   *slog.Logger

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// New opens an engine over the given store and embedder. On a fresh
// store the embedding dimension is probed and the table created.
func New(ctx context.Context, name string, st store.VectorStore, embedder embed.Embedder, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if st.Dimension() == 0 {
		dim, err := embedder.ProbeDimension(ctx)
		if err != nil {
			return nil, err
		}
		if err := st.CreateTable(ctx, dim); err != nil {
			return nil, err
		}
	}
	return &Engine{
		name:     name,
		store:    st,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Name returns the instance name, used as the origin of matches.
func (e *Engine) Name() string {
	return e.name
}

// StoreLangEntry upserts one entry. When the stored row already carries
// identical content (pureText, element, original) the call returns
// without rewriting. The entry is embedded unless it carries a vector.
func (e *Engine) StoreLangEntry(ctx context.Context, entry *tm.Entry) error {
	if err := entry.Validate(); err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "invalid entry", err)
	}
	id := entry.CanonicalID()
	entry.ID = id

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	existing, err := e.store.Query(ctx, store.Eq(store.ColID, id), 1)
	if err != nil {
		return err
	}
	if len(existing) == 1 {
		old := existing[0]
		if old.PureText == entry.PureText && old.Element == entry.Element && old.Original == entry.Original {
			return nil
		}
	}

	if entry.Vector == nil {
		vec, err := e.embedder.Embed(ctx, entry.PureText)
		if err != nil {
			return err
		}
		entry.Vector = vec
	}

	if _, err := e.store.DeleteWhere(ctx, store.Eq(store.ColID, id)); err != nil {
		return err
	}
	return e.store.UpsertBatch(ctx, []*tm.Entry{entry})
}

// StoreBatchEntries embeds the entries in order, computes their IDs, and
// issues one bulk delete followed by one bulk insert.
func (e *Engine) StoreBatchEntries(ctx context.Context, entries []*tm.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var texts []string
	var pending []int
	ids := make([]string, len(entries))
	for i, entry := range entries {
		if err := entry.Validate(); err != nil {
			return tmerr.Wrap(tmerr.KindStoreError, "invalid entry", err).WithEntry(entry.CanonicalID())
		}
		ids[i] = entry.CanonicalID()
		entry.ID = ids[i]
		if entry.Vector == nil {
			pending = append(pending, i)
			texts = append(texts, entry.PureText)
		}
	}

	if len(pending) > 0 {
		vecs, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i, idx := range pending {
			entries[idx].Vector = vecs[i]
		}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, err := e.store.DeleteWhere(ctx, store.In(store.ColID, ids)); err != nil {
		return err
	}
	return e.store.UpsertBatch(ctx, entries)
}

// DeleteLangEntry removes the entry with the given key. Returns false
// when no row matched.
func (e *Engine) DeleteLangEntry(ctx context.Context, fileID, unitID, language string, segmentIndex int) (bool, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	id := tm.EntryID(fileID, unitID, segmentIndex, language)
	n, err := e.store.DeleteWhere(ctx, store.Eq(store.ColID, id))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteUnitEntries removes every entry of a unit on one language side,
// all segment indices included. Returns the number of rows removed.
func (e *Engine) DeleteUnitEntries(ctx context.Context, fileID, unitID, language string) (int64, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	pred := store.And(
		store.HasPrefix(store.ColID, tm.UnitPrefix(fileID, unitID)),
		store.Eq(store.ColLanguage, language),
	)
	return e.store.DeleteWhere(ctx, pred)
}

// EntryExists reports whether the entry with the given key is stored.
func (e *Engine) EntryExists(ctx context.Context, fileID, unitID, language string, segmentIndex int) (bool, error) {
	id := tm.EntryID(fileID, unitID, segmentIndex, language)
	rows, err := e.store.Query(ctx, store.Eq(store.ColID, id), 1)
	if err != nil {
		return false, err
	}
	return len(rows) == 1, nil
}

// GetLangEntry fetches the entry with the given key. Fails with NotFound
// when absent.
func (e *Engine) GetLangEntry(ctx context.Context, fileID, unitID, language string, segmentIndex int) (*tm.Entry, error) {
	id := tm.EntryID(fileID, unitID, segmentIndex, language)
	rows, err := e.store.Query(ctx, store.Eq(store.ColID, id), 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, tmerr.New(tmerr.KindNotFound, "entry not found").WithEntry(id)
	}
	return rows[0], nil
}

// EntryCount returns the number of stored rows.
func (e *Engine) EntryCount(ctx context.Context) (int64, error) {
	return e.store.Count(ctx)
}

// LanguageCounts returns the number of stored rows per language tag.
func (e *Engine) LanguageCounts(ctx context.Context) (map[string]int64, error) {
	return e.store.CountByLanguage(ctx)
}

// Dimension returns the embedding dimension fixed at table creation.
func (e *Engine) Dimension() int {
	return e.store.Dimension()
}

// ModelName returns the embedding model identifier.
func (e *Engine) ModelName() string {
	return e.embedder.ModelName()
}

// Close releases the store and the embedder. Idempotent.
func (e *Engine) Close() error {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	err := e.store.Close()
	if embErr := e.embedder.Close(); err == nil {
		err = embErr
	}
	return err
}

// hydrate reparses a stored element string, verifying it is still valid
// XML. Dropped candidates surface as HydrationError to the caller.
func hydrate(element string) error {
	if strings.TrimSpace(element) == "" {
		return tmerr.New(tmerr.KindHydrationError, "empty element")
	}
	if _, err := xmltree.Parse(element); err != nil {
		return tmerr.Wrap(tmerr.KindHydrationError, "reparse element", err)
	}
	return nil
}

// semanticScore converts a reported vector distance (L2 over unit
// vectors, 0..2) to a 0-100 score.
func semanticScore(distance float64) int {
	score := (2 - distance) / 2
	if score < 0 {
		score = 0
	}
	return int(math.Round(score * 100))
}
