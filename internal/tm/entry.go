// Package tm defines the canonical data model of the translation memory:
// bilingual segment entries, their metadata, and the metadata filter
// evaluator. This is the domain model shared by the store, the ingestors,
// and the engine.
package tm

import (
	"fmt"
	"strings"
)

// Entry is one language-side of a segment. It is uniquely identified by
// (FileID, UnitID, SegmentIndex, Language).
type Entry struct {
	// ID is the canonical identity string "fileId:unitId:segmentIndex:language".
	ID string `json:"id,omitempty"`

	// Language is the BCP-47 tag taken from the source file.
	Language string `json:"language"`

	// PureText is the plain-text form with inline placeholders unwrapped.
	// It is the canonical text for both embedding and lexical scoring.
	PureText string `json:"pureText"`

	// Element is the original XML fragment, round-trippable as a string.
	Element string `json:"element"`

	// Provenance within the imported document.
	FileID   string `json:"fileId"`
	Original string `json:"original"`
	UnitID   string `json:"unitId"`

	// SegmentIndex is 0 for a merged unit entry or a TMX entry, 1..N for
	// an individual XLIFF segment within a unit.
	SegmentIndex int `json:"segmentIndex"`

	// SegmentCount is the total number of segments produced for the unit.
	// Identical across all sibling entries.
	SegmentCount int `json:"segmentCount"`

	// Vector is the embedding; fixed length chosen at table creation.
	Vector []float32 `json:"vector,omitempty"`

	Metadata *Metadata `json:"metadata,omitempty"`
}

// EntryID builds the canonical identity string for an entry.
// Colons inside fileID and unitID are preserved literally.
func EntryID(fileID, unitID string, segmentIndex int, language string) string {
	return fmt.Sprintf("%s:%s:%d:%s", fileID, unitID, segmentIndex, language)
}

// UnitPrefix builds the "fileId:unitId:" prefix shared by all entries of a
// unit, used for starts_with filtering during target pairing.
func UnitPrefix(fileID, unitID string) string {
	return fileID + ":" + unitID + ":"
}

// CanonicalID returns the entry's identity string, computing it from the
// key fields when ID is unset.
func (e *Entry) CanonicalID() string {
	if e.ID != "" {
		return e.ID
	}
	return EntryID(e.FileID, e.UnitID, e.SegmentIndex, e.Language)
}

// SegmentDescriptor identifies a segment independent of language.
type SegmentDescriptor struct {
	FileID       string
	UnitID       string
	SegmentIndex int
}

// Descriptor returns the entry's language-independent segment descriptor.
func (e *Entry) Descriptor() SegmentDescriptor {
	return SegmentDescriptor{FileID: e.FileID, UnitID: e.UnitID, SegmentIndex: e.SegmentIndex}
}

// Prefix returns the canonical ID prefix "fileId:unitId:segmentIndex:".
func (d SegmentDescriptor) Prefix() string {
	return fmt.Sprintf("%s:%s:%d:", d.FileID, d.UnitID, d.SegmentIndex)
}

// Validate checks the structural invariants of an entry before storage.
func (e *Entry) Validate() error {
	if e.FileID == "" || e.UnitID == "" {
		return fmt.Errorf("entry requires fileId and unitId")
	}
	if strings.TrimSpace(e.Language) == "" {
		return fmt.Errorf("entry requires a language tag")
	}
	if e.SegmentIndex < 0 {
		return fmt.Errorf("segmentIndex must be >= 0, got %d", e.SegmentIndex)
	}
	if e.SegmentCount < 1 {
		return fmt.Errorf("segmentCount must be >= 1, got %d", e.SegmentCount)
	}
	return nil
}
