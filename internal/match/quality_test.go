package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity_Identity(t *testing.T) {
	// Given: any string
	inputs := []string{"Save settings", "a", "Hola mundo", "multi word sentence here"}

	// Then: every string scores 100 against itself
	for _, s := range inputs {
		assert.Equal(t, 100, Similarity(s, s), "identity for %q", s)
	}
}

func TestSimilarity_Symmetry(t *testing.T) {
	pairs := [][2]string{
		{"Save settings", "Save the settings now"},
		{"Hello world", "Hi world"},
		{"abc", "xyz"},
		{"short", "a much longer string entirely"},
	}

	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]),
			"symmetry for %q / %q", p[0], p[1])
	}
}

func TestSimilarity_Empty(t *testing.T) {
	assert.Equal(t, 0, Similarity("", "nonempty"))
	assert.Equal(t, 0, Similarity("nonempty", ""))
	assert.Equal(t, 0, Similarity("", ""))
	// Whitespace-only trims to empty.
	assert.Equal(t, 0, Similarity("   ", "nonempty"))
}

func TestSimilarity_Disjoint(t *testing.T) {
	assert.Equal(t, 0, Similarity("aaaa", "bbbb"))
}

func TestSimilarity_Ordering(t *testing.T) {
	// Given: a query against an exact, a partial, and an unrelated segment
	exact := Similarity("Save settings", "Save settings")
	partial := Similarity("Save settings", "Save the settings now")
	unrelated := Similarity("Save settings", "Completely different text")

	// Then: partial sits strictly between unrelated and exact
	assert.Equal(t, 100, exact)
	assert.Less(t, partial, exact)
	assert.Greater(t, partial, unrelated)
}

func TestSimilarity_TrimsInput(t *testing.T) {
	assert.Equal(t, 100, Similarity("  Save settings  ", "Save settings"))
}

func TestSimilarity_Range(t *testing.T) {
	pairs := [][2]string{
		{"Save settings", "Save the settings now"},
		{"one two three", "three two one"},
		{"aaaa bbbb cccc", "cccc dddd"},
		{"x", "xy"},
	}

	for _, p := range pairs {
		got := Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, got, 100)
	}
}

func TestSimilarity_SingleSharedWord(t *testing.T) {
	// " world" is the dominant shared fragment; the score reflects its
	// share of the longer string minus the chaining penalty.
	got := Similarity("Hi world", "Hello world")
	assert.Greater(t, got, 50)
	assert.Less(t, got, 100)
}

func TestLongestCommonSubstring(t *testing.T) {
	tests := []struct {
		a, b    string
		wantLen int
	}{
		{"Save settings", "Save the settings now", 10}, // "e settings"
		{"abc", "abc", 3},
		{"abc", "xyz", 0},
		{"", "abc", 0},
	}

	for _, tc := range tests {
		_, _, length := longestCommonSubstring([]rune(tc.a), []rune(tc.b))
		assert.Equal(t, tc.wantLen, length, "%q / %q", tc.a, tc.b)
	}
}
