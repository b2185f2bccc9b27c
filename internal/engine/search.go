package engine

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rmraya/hybridtm/internal/match"
	"github.com/rmraya/hybridtm/internal/store"
	"github.com/rmraya/hybridtm/internal/tm"
)

// targetCandidateLimit caps the unit-prefix fallback query during target
// pairing.
const targetCandidateLimit = 50

// Match is one bilingual translation-search result.
type Match struct {
	// Source and Target are the paired entries; their Element fields
	// hold the round-trippable XML fragments.
	Source *tm.Entry
	Target *tm.Entry

	// Origin is the name of the instance that produced the match.
	Origin string

	// Semantic is the vector-distance score, 0-100.
	Semantic int

	// Fuzzy is the lexical MatchQuality score, 0-100.
	Fuzzy int

	// rank orders results; it is not threshold-tested.
	rank float64
}

// HybridScore is the rounded arithmetic mean of the semantic and lexical
// scores.
func (m *Match) HybridScore() int {
	return int(math.Round(float64(m.Semantic+m.Fuzzy) / 2))
}

// SearchFilters carries the per-side metadata filters of a translation
// search.
type SearchFilters struct {
	Source *tm.Filter
	Target *tm.Filter
}

// ConcordanceMatch maps language tags to the element fragment of one
// segment descriptor's variants.
type ConcordanceMatch map[string]string

// ConcordanceSearch finds every entry in the given language whose pure
// text contains fragment (case-insensitive), applies the metadata
// filter, and returns one language→element mapping per unique segment
// descriptor, up to limit.
func (e *Engine) ConcordanceSearch(ctx context.Context, fragment, language string, limit int, filter *tm.Filter) ([]ConcordanceMatch, error) {
	needle := strings.ToLower(fragment)

	// Substring containment is not expressible in the adapter's
	// predicate contract; scan the language slice and filter in memory.
	rows, err := e.store.Query(ctx, store.Eq(store.ColLanguage, language), 0)
	if err != nil {
		return nil, err
	}

	var descriptors []tm.SegmentDescriptor
	seen := make(map[tm.SegmentDescriptor]bool)
	for _, row := range rows {
		if !strings.Contains(strings.ToLower(row.PureText), needle) {
			continue
		}
		if filter != nil && !filter.Matches(row.Metadata) {
			continue
		}
		d := row.Descriptor()
		if !seen[d] {
			seen[d] = true
			descriptors = append(descriptors, d)
		}
		if limit > 0 && len(descriptors) == limit {
			break
		}
	}

	matches := make([]ConcordanceMatch, 0, len(descriptors))
	for _, d := range descriptors {
		variants, err := e.store.Query(ctx, store.HasPrefix(store.ColID, d.Prefix()), 0)
		if err != nil {
			return nil, err
		}
		cm := make(ConcordanceMatch, len(variants))
		for _, v := range variants {
			if err := hydrate(v.Element); err != nil {
				e.logger.Warn("dropping unhydratable variant",
					slog.String("id", v.ID), slog.String("error", err.Error()))
				continue
			}
			cm[v.Language] = v.Element
		}
		if len(cm) > 0 {
			matches = append(matches, cm)
		}
	}
	return matches, nil
}

// SemanticSearch embeds the query text and returns the nearest stored
// entries in the given language, filtered by metadata. No pairing is
// performed.
func (e *Engine) SemanticSearch(ctx context.Context, queryText, language string, limit int, filter *tm.Filter) ([]*tm.Entry, error) {
	vec, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	hits, err := e.store.VectorSearch(ctx, vec, store.Eq(store.ColLanguage, language), limit)
	if err != nil {
		return nil, err
	}

	entries := make([]*tm.Entry, 0, len(hits))
	for _, hit := range hits {
		if filter != nil && !filter.Matches(hit.Entry.Metadata) {
			continue
		}
		entries = append(entries, hit.Entry)
	}
	return entries, nil
}

// SemanticTranslationSearch finds stored source-language segments similar
// to the query text, pairs each with its best target-language
// counterpart, and returns the top matches ranked by hybrid score plus
// pairing, quality, recency and state bonuses. Every returned match has
// HybridScore() >= minScore.
func (e *Engine) SemanticTranslationSearch(ctx context.Context, queryText, srcLang, tgtLang string, minScore, limit int, filters SearchFilters) ([]*Match, error) {
	vec, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	// Candidates are pruned by score, not by count.
	hits, err := e.store.VectorSearch(ctx, vec, store.Eq(store.ColLanguage, srcLang), 0)
	if err != nil {
		return nil, err
	}

	sourceFilter := filters.Source
	if sourceFilter == nil {
		// Compatibility: a lone target filter also constrains the
		// source side of the pair.
		sourceFilter = filters.Target
	}

	var matches []*Match
	for _, hit := range hits {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		source := hit.Entry
		if sourceFilter != nil && !sourceFilter.Matches(source.Metadata) {
			continue
		}

		semantic := semanticScore(hit.Distance)
		fuzzy := match.Similarity(queryText, source.PureText)
		hybrid := int(math.Round(float64(semantic+fuzzy) / 2))
		if hybrid < minScore {
			continue
		}

		target, err := e.findTargetEntry(ctx, source, tgtLang, filters.Target)
		if err != nil {
			return nil, err
		}
		if target == nil {
			continue
		}

		if err := hydrate(source.Element); err != nil {
			e.logger.Warn("dropping unhydratable source candidate",
				slog.String("id", source.ID), slog.String("error", err.Error()))
			continue
		}
		if err := hydrate(target.Element); err != nil {
			e.logger.Warn("dropping unhydratable target candidate",
				slog.String("id", target.ID), slog.String("error", err.Error()))
			continue
		}

		m := &Match{
			Source:   source,
			Target:   target,
			Origin:   e.name,
			Semantic: semantic,
			Fuzzy:    fuzzy,
		}
		m.rank = rankMatch(m, time.Now())
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].rank > matches[j].rank })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// findTargetEntry selects the best target-language counterpart for a
// source hit: the exact segment index first, then any entry of the same
// unit, preferring segment-level entries and matching indices. Returns
// nil when no candidate survives the filter.
func (e *Engine) findTargetEntry(ctx context.Context, source *tm.Entry, tgtLang string, filter *tm.Filter) (*tm.Entry, error) {
	exactID := tm.EntryID(source.FileID, source.UnitID, source.SegmentIndex, tgtLang)
	rows, err := e.store.Query(ctx, store.Eq(store.ColID, exactID), 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 1 && (filter == nil || filter.Matches(rows[0].Metadata)) {
		return rows[0], nil
	}

	pred := store.And(
		store.HasPrefix(store.ColID, tm.UnitPrefix(source.FileID, source.UnitID)),
		store.Eq(store.ColLanguage, tgtLang),
	)
	candidates, err := e.store.Query(ctx, pred, targetCandidateLimit)
	if err != nil {
		return nil, err
	}

	var first, segmentLevel, sameIndex *tm.Entry
	for _, c := range candidates {
		if filter != nil && !filter.Matches(c.Metadata) {
			continue
		}
		if first == nil {
			first = c
		}
		if c.SegmentIndex > 0 && segmentLevel == nil {
			segmentLevel = c
		}
		if c.SegmentIndex == source.SegmentIndex && sameIndex == nil {
			sameIndex = c
		}
	}

	if source.SegmentIndex > 0 && sameIndex != nil {
		return sameIndex, nil
	}
	if segmentLevel != nil {
		return segmentLevel, nil
	}
	return first, nil
}

// stateBonuses rewards more mature workflow states during ranking.
var stateBonuses = map[tm.State]float64{
	tm.StateFinal:      3,
	tm.StateReviewed:   2,
	tm.StateTranslated: 1,
}

// rankMatch computes the ordering score of a match: the hybrid score
// plus segment-pairing, quality, recency and state bonuses.
func rankMatch(m *Match, now time.Time) float64 {
	rank := float64(m.HybridScore())

	if m.Source.SegmentIndex > 0 && m.Target.SegmentIndex > 0 {
		if m.Source.SegmentIndex == m.Target.SegmentIndex {
			rank += 10
		} else {
			rank += 5
		}
	}

	md := m.Target.Metadata
	if md != nil {
		if md.Quality != nil {
			q := *md.Quality
			if q < 0 {
				q = 0
			}
			if q > 100 {
				q = 100
			}
			rank += float64(q) / 20
		}
		if modified, ok := md.LastModified(); ok {
			days := now.Sub(modified).Hours() / 24
			bonus := 5 * (1 - days/365)
			if bonus < 0 {
				bonus = 0
			}
			if bonus > 5 {
				bonus = 5
			}
			rank += bonus
		}
		if md.State != nil {
			rank += stateBonuses[*md.State]
		}
	}
	return rank
}
