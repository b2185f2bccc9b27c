package tm

import "strings"

// Filter restricts search results by entry metadata. The zero value
// matches every entry. Constraints that reference metadata fail when the
// entry carries no metadata at all.
type Filter struct {
	// States accepts only entries whose state is one of the listed values.
	States []State

	// MinState accepts only entries whose state ranks at or above it.
	MinState State

	// MinQuality accepts only entries whose quality is at or above it.
	MinQuality *int

	// ContextIncludes requires every needle to appear, case-insensitively,
	// in metadata.context.
	ContextIncludes []string

	// RequiredProperties requires every key/value pair to match exactly
	// in metadata.properties.
	RequiredProperties map[string]string

	// Provider must equal metadata.segment.provider.
	Provider string
}

// IsZero reports whether the filter carries no constraints.
func (f *Filter) IsZero() bool {
	if f == nil {
		return true
	}
	return len(f.States) == 0 && f.MinState == "" && f.MinQuality == nil &&
		len(f.ContextIncludes) == 0 && len(f.RequiredProperties) == 0 && f.Provider == ""
}

// Matches evaluates the filter against an entry's metadata, applying the
// constraints in order: states, minState, minQuality, contextIncludes,
// requiredProperties, provider.
func (f *Filter) Matches(md *Metadata) bool {
	if f.IsZero() {
		return true
	}

	if len(f.States) > 0 {
		if md == nil || md.State == nil {
			return false
		}
		found := false
		for _, s := range f.States {
			if *md.State == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.MinState != "" {
		if md == nil || md.State == nil {
			return false
		}
		if md.State.Rank() < f.MinState.Rank() {
			return false
		}
	}

	if f.MinQuality != nil {
		if md == nil || md.Quality == nil {
			return false
		}
		if *md.Quality < *f.MinQuality {
			return false
		}
	}

	if len(f.ContextIncludes) > 0 {
		if md == nil || md.Context == "" {
			return false
		}
		ctx := strings.ToLower(md.Context)
		for _, needle := range f.ContextIncludes {
			if !strings.Contains(ctx, strings.ToLower(needle)) {
				return false
			}
		}
	}

	if len(f.RequiredProperties) > 0 {
		if md == nil || len(md.Properties) == 0 {
			return false
		}
		for k, v := range f.RequiredProperties {
			if md.Properties[k] != v {
				return false
			}
		}
	}

	if f.Provider != "" {
		if md == nil || md.Segment == nil || md.Segment.Provider != f.Provider {
			return false
		}
	}

	return true
}
