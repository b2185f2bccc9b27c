package xliff

import (
	"strings"

	"github.com/rmraya/hybridtm/internal/tm"
	"github.com/rmraya/hybridtm/internal/xmltree"
)

// extractMetadata builds the metadata record for one emitted segment.
// Segment-level values win over unit-level ones. seg is nil for merged
// and virtual entries, which carry unit-level metadata only.
// Returns nil when extraction is disabled; otherwise the record always
// carries the segment reference.
func extractMetadata(unit, seg *xmltree.Node, fileID, unitID string, segmentIndex, segmentCount int, opts Options) *tm.Metadata {
	if !opts.ExtractMetadata {
		return nil
	}

	md := &tm.Metadata{}

	if state, ok := tm.NormalizeState(preferAttr(seg, unit, "state")); ok {
		md.State = &state
	}
	md.SubState = preferAttr(seg, unit, "subState")

	values := make(map[string]string, len(lifecycleAttrs))
	for _, name := range lifecycleAttrs {
		values[name] = preferAttr(seg, unit, name)
	}
	md.CreationDate = values["creationDate"]
	md.CreationID = values["creationId"]
	md.ChangeDate = values["changeDate"]
	md.ChangeID = values["changeId"]
	md.CreationTool = values["creationTool"]
	md.CreationToolVersion = values["creationToolVersion"]
	md.Context = values["context"]

	md.Notes = append(collectNotes(unit), collectNotes(seg)...)

	md.Properties = collectProperties(unit)

	if md.Context == "" {
		for key, value := range md.Properties {
			if strings.Contains(strings.ToLower(key), "context") {
				md.Context = value
				break
			}
		}
	}

	ref := &tm.SegmentRef{
		Provider:     "xliff",
		FileID:       fileID,
		UnitID:       unitID,
		SegmentIndex: &segmentIndex,
		SegmentCount: &segmentCount,
	}
	if seg != nil {
		ref.SegmentID = seg.AttrDefault("id", "")
	}
	md.Segment = ref

	return md
}

// preferAttr reads an attribute from seg first, then unit.
func preferAttr(seg, unit *xmltree.Node, name string) string {
	if seg != nil {
		if v, ok := seg.Attr(name); ok && v != "" {
			return v
		}
	}
	if unit != nil {
		if v, ok := unit.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

// collectNotes aggregates the text of <notes>/<note> children, plus any
// bare <note> children, in document order.
func collectNotes(n *xmltree.Node) []string {
	if n == nil {
		return nil
	}
	var notes []string
	appendNote := func(note *xmltree.Node) {
		if text := strings.TrimSpace(note.Text()); text != "" {
			notes = append(notes, text)
		}
	}
	for _, wrapper := range n.Children("notes") {
		for _, note := range wrapper.Children("note") {
			appendNote(note)
		}
	}
	for _, note := range n.Children("note") {
		appendNote(note)
	}
	return notes
}

// collectProperties walks the <metadata>/<metaGroup>/<meta> tree and keys
// each value as "category:type". Nested metaGroups inherit and extend the
// category path.
func collectProperties(unit *xmltree.Node) map[string]string {
	if unit == nil {
		return nil
	}
	props := make(map[string]string)
	for _, meta := range unit.Children("metadata") {
		for _, group := range meta.Children("metaGroup") {
			walkMetaGroup(group, group.AttrDefault("category", ""), props)
		}
	}
	if len(props) == 0 {
		return nil
	}
	return props
}

func walkMetaGroup(group *xmltree.Node, category string, props map[string]string) {
	for _, child := range group.Children("") {
		switch child.Name {
		case "meta":
			metaType := child.AttrDefault("type", "")
			key := metaType
			if category != "" {
				key = category + ":" + metaType
			}
			props[key] = strings.TrimSpace(child.Text())
		case "metaGroup":
			sub := child.AttrDefault("category", "")
			if category != "" && sub != "" {
				sub = category + ":" + sub
			} else if sub == "" {
				sub = category
			}
			walkMetaGroup(child, sub, props)
		}
	}
}
