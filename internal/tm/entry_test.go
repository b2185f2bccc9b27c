package tm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryID_Deterministic(t *testing.T) {
	// Given: the same key built twice independently
	a := EntryID("demo", "u1", 1, "en")
	b := EntryID("demo", "u1", 1, "en")

	// Then: the canonical IDs are identical
	assert.Equal(t, "demo:u1:1:en", a)
	assert.Equal(t, a, b)
}

func TestEntryID_PreservesColons(t *testing.T) {
	// Colons inside fileId and unitId stay literal.
	id := EntryID("f:1", "u:2", 0, "de")
	assert.Equal(t, "f:1:u:2:0:de", id)
}

func TestUnitPrefix(t *testing.T) {
	assert.Equal(t, "demo:u1:", UnitPrefix("demo", "u1"))
}

func TestCanonicalID(t *testing.T) {
	e := &Entry{FileID: "f", UnitID: "u", SegmentIndex: 2, Language: "fr"}
	assert.Equal(t, "f:u:2:fr", e.CanonicalID())

	// An explicit ID wins.
	e.ID = "preset"
	assert.Equal(t, "preset", e.CanonicalID())
}

func TestDescriptorPrefix(t *testing.T) {
	e := &Entry{FileID: "f", UnitID: "u", SegmentIndex: 3, Language: "en"}
	assert.Equal(t, "f:u:3:", e.Descriptor().Prefix())
}

func TestEntryValidate(t *testing.T) {
	valid := Entry{FileID: "f", UnitID: "u", Language: "en", SegmentIndex: 0, SegmentCount: 1}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Entry)
	}{
		{"missing fileId", func(e *Entry) { e.FileID = "" }},
		{"missing unitId", func(e *Entry) { e.UnitID = "" }},
		{"blank language", func(e *Entry) { e.Language = "  " }},
		{"negative segmentIndex", func(e *Entry) { e.SegmentIndex = -1 }},
		{"zero segmentCount", func(e *Entry) { e.SegmentCount = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := valid
			tc.mutate(&e)
			assert.Error(t, e.Validate())
		})
	}
}
