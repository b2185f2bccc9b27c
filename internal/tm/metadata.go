package tm

import (
	"strings"
	"time"
)

// State is the normalized XLIFF workflow state of a segment.
type State string

const (
	StateInitial    State = "initial"
	StateTranslated State = "translated"
	StateReviewed   State = "reviewed"
	StateFinal      State = "final"
)

// stateRanks orders states for minState comparisons.
var stateRanks = map[State]int{
	StateInitial:    0,
	StateTranslated: 1,
	StateReviewed:   2,
	StateFinal:      3,
}

// Rank returns the workflow rank of the state (initial=0 .. final=3).
// Unknown states rank below initial.
func (s State) Rank() int {
	if r, ok := stateRanks[s]; ok {
		return r
	}
	return -1
}

// NormalizeState maps a raw state attribute to a normalized State.
// Out-of-vocabulary values map to absent (ok=false).
func NormalizeState(raw string) (State, bool) {
	s := State(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := stateRanks[s]
	return s, ok
}

// SegmentRef records where an entry came from in its source document.
type SegmentRef struct {
	Provider     string `json:"provider"`
	FileHash     string `json:"fileHash,omitempty"`
	FileID       string `json:"fileId,omitempty"`
	UnitID       string `json:"unitId,omitempty"`
	SegmentID    string `json:"segmentId,omitempty"`
	SegmentIndex *int   `json:"segmentIndex,omitempty"`
	SegmentCount *int   `json:"segmentCount,omitempty"`
	SegmentKey   string `json:"segmentKey,omitempty"`
}

// Metadata is the optional per-entry metadata record. Absent fields are
// truly missing, not empty values; pointer fields model that at the
// storage layer.
type Metadata struct {
	State              *State            `json:"state,omitempty"`
	SubState           string            `json:"subState,omitempty"`
	Quality            *int              `json:"quality,omitempty"`
	CreationDate       string            `json:"creationDate,omitempty"`
	CreationID         string            `json:"creationId,omitempty"`
	ChangeDate         string            `json:"changeDate,omitempty"`
	ChangeID           string            `json:"changeId,omitempty"`
	CreationTool       string            `json:"creationTool,omitempty"`
	CreationToolVersion string           `json:"creationToolVersion,omitempty"`
	Context            string            `json:"context,omitempty"`
	LastUsageDate      string            `json:"lastUsageDate,omitempty"`
	Notes              []string          `json:"notes,omitempty"`
	UsageCount         *int              `json:"usageCount,omitempty"`
	Properties         map[string]string `json:"properties,omitempty"`
	Segment            *SegmentRef       `json:"segment,omitempty"`
}

// IsEmpty reports whether the record carries no information at all.
func (m *Metadata) IsEmpty() bool {
	if m == nil {
		return true
	}
	return m.State == nil && m.SubState == "" && m.Quality == nil &&
		m.CreationDate == "" && m.CreationID == "" && m.ChangeDate == "" &&
		m.ChangeID == "" && m.CreationTool == "" && m.CreationToolVersion == "" &&
		m.Context == "" && m.LastUsageDate == "" && len(m.Notes) == 0 &&
		m.UsageCount == nil && len(m.Properties) == 0 && m.Segment == nil
}

// dateLayouts covers the timestamp flavors seen in XLIFF (ISO 8601) and
// TMX 1.4b (basic format, e.g. 20230101T120000Z).
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"20060102T150405Z",
	"2006-01-02",
}

// ParseDate parses a lifecycle date attribute. Returns the zero time and
// false when the value matches no known layout.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LastModified returns the best modification timestamp of the entry:
// changeDate when parseable, else creationDate.
func (m *Metadata) LastModified() (time.Time, bool) {
	if m == nil {
		return time.Time{}, false
	}
	if t, ok := ParseDate(m.ChangeDate); ok {
		return t, true
	}
	return ParseDate(m.CreationDate)
}
