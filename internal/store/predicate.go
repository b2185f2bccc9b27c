package store

import (
	"strings"
	"unicode/utf8"

	"github.com/rmraya/hybridtm/internal/tm"
)

// Column names a filterable column. Only the indexed identity columns are
// exposed; metadata constraints are evaluated in memory by the engine.
type Column string

const (
	ColID       Column = "id"
	ColLanguage Column = "language"
)

// value extracts the column's value from an entry, for in-memory matching.
func (c Column) value(e *tm.Entry) string {
	switch c {
	case ColID:
		return e.CanonicalID()
	case ColLanguage:
		return e.Language
	default:
		return ""
	}
}

// Predicate is a filter over stored rows. Predicates compile to SQL for
// pushdown and evaluate in memory against graph search results.
type Predicate interface {
	// SQL renders the predicate as a WHERE fragment, appending bind args.
	SQL(args *[]any) string

	// Matches evaluates the predicate against a hydrated entry.
	Matches(e *tm.Entry) bool
}

type eqPred struct {
	col Column
	val string
}

// Eq matches rows where the column equals val.
func Eq(col Column, val string) Predicate {
	return eqPred{col: col, val: val}
}

func (p eqPred) SQL(args *[]any) string {
	*args = append(*args, p.val)
	return string(p.col) + " = ?"
}

func (p eqPred) Matches(e *tm.Entry) bool {
	return p.col.value(e) == p.val
}

type prefixPred struct {
	col    Column
	prefix string
}

// HasPrefix matches rows where the column starts with prefix. Colons and
// LIKE metacharacters in the prefix are preserved literally.
func HasPrefix(col Column, prefix string) Predicate {
	return prefixPred{col: col, prefix: prefix}
}

func (p prefixPred) SQL(args *[]any) string {
	// substr comparison instead of LIKE: no metacharacter escaping needed.
	*args = append(*args, utf8.RuneCountInString(p.prefix), p.prefix)
	return "substr(" + string(p.col) + ", 1, ?) = ?"
}

func (p prefixPred) Matches(e *tm.Entry) bool {
	return strings.HasPrefix(p.col.value(e), p.prefix)
}

type inPred struct {
	col  Column
	vals []string
}

// In matches rows where the column equals any of vals. An empty value set
// matches nothing.
func In(col Column, vals []string) Predicate {
	return inPred{col: col, vals: vals}
}

func (p inPred) SQL(args *[]any) string {
	if len(p.vals) == 0 {
		return "1 = 0"
	}
	placeholders := make([]string, len(p.vals))
	for i, v := range p.vals {
		placeholders[i] = "?"
		*args = append(*args, v)
	}
	return string(p.col) + " IN (" + strings.Join(placeholders, ", ") + ")"
}

func (p inPred) Matches(e *tm.Entry) bool {
	v := p.col.value(e)
	for _, candidate := range p.vals {
		if v == candidate {
			return true
		}
	}
	return false
}

type andPred struct {
	preds []Predicate
}

// And matches rows satisfying every given predicate.
func And(preds ...Predicate) Predicate {
	return andPred{preds: preds}
}

func (p andPred) SQL(args *[]any) string {
	if len(p.preds) == 0 {
		return "1 = 1"
	}
	parts := make([]string, len(p.preds))
	for i, sub := range p.preds {
		parts[i] = "(" + sub.SQL(args) + ")"
	}
	return strings.Join(parts, " AND ")
}

func (p andPred) Matches(e *tm.Entry) bool {
	for _, sub := range p.preds {
		if !sub.Matches(e) {
			return false
		}
	}
	return true
}
