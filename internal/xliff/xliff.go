// Package xliff ingests XLIFF 2.x documents into entry candidates. The
// walk is SAX-driven: the file is streamed token by token and only one
// <unit> subtree is materialized at a time.
package xliff

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"strings"

	tmerr "github.com/rmraya/hybridtm/internal/errors"
	"github.com/rmraya/hybridtm/internal/importer"
	"github.com/rmraya/hybridtm/internal/tm"
	"github.com/rmraya/hybridtm/internal/xmltree"
)

// Options controls segment inclusion and metadata extraction.
type Options struct {
	// SkipEmpty drops segments whose target text is whitespace only.
	SkipEmpty bool

	// SkipUnconfirmed drops segments that carry no explicit state.
	SkipUnconfirmed bool

	// MinState drops segments whose explicit state ranks below it.
	// Empty means no minimum.
	MinState tm.State

	// ExtractMetadata copies workflow state, lifecycle attributes, notes
	// and metadata properties onto the emitted entries.
	ExtractMetadata bool
}

// Result describes a completed ingest: the JSONL candidate file and the
// languages declared by the document.
type Result struct {
	Path    string
	Count   int
	SrcLang string
	TrgLang string
}

// lifecycleAttrs are copied verbatim when metadata extraction is enabled,
// preferring the value found on the segment over the unit.
var lifecycleAttrs = []string{
	"creationDate", "creationId", "changeDate", "changeId",
	"creationTool", "creationToolVersion", "context",
}

// Ingest walks the XLIFF document at path and writes entry candidates to
// a JSONL temp file. The temp file is removed on error.
func Ingest(ctx context.Context, path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, tmerr.Wrap(tmerr.KindUnsupportedFormat, "open XLIFF file", err).WithPath(path)
	}
	defer func() { _ = f.Close() }()

	out, err := importer.CreateCandidateFile()
	if err != nil {
		return nil, err
	}

	res, err := ingest(ctx, xml.NewDecoder(f), out, opts)
	if err != nil {
		out.Discard()
		if te, ok := err.(*tmerr.TMError); ok {
			return nil, te.WithPath(path)
		}
		return nil, err
	}
	if err := out.Finish(); err != nil {
		out.Discard()
		return nil, err
	}
	res.Path = out.Path
	res.Count = out.Count
	return res, nil
}

func ingest(ctx context.Context, dec *xml.Decoder, out *importer.CandidateFile, opts Options) (*Result, error) {
	res := &Result{}
	sawRoot := false

	var fileID, fileOriginal string
	inFile := false

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, tmerr.Wrap(tmerr.KindUnsupportedFormat, "parse XLIFF", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "xliff":
				version := attr(t, "version")
				if !strings.HasPrefix(version, "2.") {
					return nil, tmerr.Newf(tmerr.KindUnsupportedFormat, "unsupported XLIFF version %q", version)
				}
				res.SrcLang = attr(t, "srcLang")
				res.TrgLang = attr(t, "trgLang")
				if res.SrcLang == "" || res.TrgLang == "" {
					return nil, tmerr.New(tmerr.KindUnsupportedFormat, "xliff element requires srcLang and trgLang")
				}
				sawRoot = true
			case "file":
				if !sawRoot {
					return nil, tmerr.New(tmerr.KindUnsupportedFormat, "file element outside xliff root")
				}
				fileID = attr(t, "id")
				if fileID == "" {
					return nil, tmerr.New(tmerr.KindMissingAttribute, "file element requires an id attribute")
				}
				fileOriginal = attr(t, "original")
				inFile = true
			case "unit":
				if !inFile {
					return nil, tmerr.New(tmerr.KindUnsupportedFormat, "unit element outside file")
				}
				unit, err := xmltree.ParseElement(dec, t)
				if err != nil {
					return nil, tmerr.Wrap(tmerr.KindUnsupportedFormat, "parse unit", err)
				}
				if err := processUnit(unit, fileID, fileOriginal, res.SrcLang, res.TrgLang, opts, out); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "file" {
				inFile = false
			}
		}
	}

	if !sawRoot {
		return nil, tmerr.New(tmerr.KindUnsupportedFormat, "not an XLIFF 2 document")
	}
	return res, nil
}

// retainedSegment is a segment that passed the inclusion rules.
type retainedSegment struct {
	node   *xmltree.Node // nil for the synthesized virtual segment
	source *xmltree.Node
	target *xmltree.Node
	index  int // 1-based document-order position
}

func processUnit(unit *xmltree.Node, fileID, fileOriginal, srcLang, trgLang string, opts Options, out *importer.CandidateFile) error {
	unitID, ok := unit.Attr("id")
	if !ok || unitID == "" {
		return tmerr.New(tmerr.KindMissingAttribute, "unit element requires an id attribute")
	}

	segments := unit.Children("segment")
	if len(segments) == 0 {
		return processSegmentlessUnit(unit, fileID, fileOriginal, unitID, srcLang, trgLang, opts, out)
	}

	var retained []retainedSegment
	for i, seg := range segments {
		source := seg.FirstChild("source")
		if source == nil {
			continue
		}
		target := seg.FirstChild("target")

		if !includeSegment(source, target, stateOf(seg), opts) {
			continue
		}
		retained = append(retained, retainedSegment{node: seg, source: source, target: target, index: i + 1})
	}

	n := len(retained)
	if n == 0 {
		return nil
	}

	for _, rs := range retained {
		md := extractMetadata(unit, rs.node, fileID, unitID, rs.index, n, opts)
		if err := emitPair(out, fileID, fileOriginal, unitID, srcLang, trgLang, rs.source, rs.target, rs.index, n, md); err != nil {
			return err
		}
	}

	if n > 1 {
		mergedSource := mergeElements("source", retained, func(rs retainedSegment) *xmltree.Node { return rs.source })
		mergedTarget := mergeElements("target", retained, func(rs retainedSegment) *xmltree.Node { return rs.target })

		// The merged entry is filtered with its own pure target, even
		// though every component segment was retained.
		if includeSegment(mergedSource, mergedTarget, "", opts) {
			md := extractMetadata(unit, nil, fileID, unitID, 0, n, opts)
			if err := emitPair(out, fileID, fileOriginal, unitID, srcLang, trgLang, mergedSource, mergedTarget, 0, n, md); err != nil {
				return err
			}
		}
	}
	return nil
}

// processSegmentlessUnit synthesizes a single virtual segment from the
// unit's <segment> and <ignorable> children.
func processSegmentlessUnit(unit *xmltree.Node, fileID, fileOriginal, unitID, srcLang, trgLang string, opts Options, out *importer.CandidateFile) error {
	var parts []retainedSegment
	for _, child := range unit.Children("") {
		if child.Name != "segment" && child.Name != "ignorable" {
			continue
		}
		parts = append(parts, retainedSegment{
			source: child.FirstChild("source"),
			target: child.FirstChild("target"),
		})
	}
	if len(parts) == 0 {
		return nil
	}

	source := mergeElements("source", parts, func(rs retainedSegment) *xmltree.Node { return rs.source })
	target := mergeElements("target", parts, func(rs retainedSegment) *xmltree.Node { return rs.target })

	if !includeSegment(source, target, stateOf(unit), opts) {
		return nil
	}
	md := extractMetadata(unit, nil, fileID, unitID, 1, 1, opts)
	return emitPair(out, fileID, fileOriginal, unitID, srcLang, trgLang, source, target, 1, 1, md)
}

// includeSegment applies the inclusion rules: non-blank source, non-blank
// target when skipEmpty, and the state policy.
func includeSegment(source, target *xmltree.Node, state string, opts Options) bool {
	if source == nil || strings.TrimSpace(source.PureText()) == "" {
		return false
	}
	if opts.SkipEmpty && (target == nil || strings.TrimSpace(target.PureText()) == "") {
		return false
	}

	if normalized, ok := tm.NormalizeState(state); ok {
		if opts.MinState != "" && normalized.Rank() < opts.MinState.Rank() {
			return false
		}
	} else if opts.SkipUnconfirmed {
		return false
	}
	return true
}

func stateOf(n *xmltree.Node) string {
	if n == nil {
		return ""
	}
	return n.AttrDefault("state", "")
}

// mergeElements builds a synthetic wrapper element by concatenating the
// content nodes of each part in order.
func mergeElements(name string, parts []retainedSegment, pick func(retainedSegment) *xmltree.Node) *xmltree.Node {
	merged := &xmltree.Node{Name: name}
	for _, part := range parts {
		if n := pick(part); n != nil {
			merged.Content = append(merged.Content, n.Content...)
		}
	}
	return merged
}

// emitPair writes the source-side and target-side entries of a segment.
func emitPair(out *importer.CandidateFile, fileID, fileOriginal, unitID, srcLang, trgLang string, source, target *xmltree.Node, index, count int, md *tm.Metadata) error {
	src := &tm.Entry{
		Language:     srcLang,
		PureText:     source.PureText(),
		Element:      source.String(),
		FileID:       fileID,
		Original:     fileOriginal,
		UnitID:       unitID,
		SegmentIndex: index,
		SegmentCount: count,
		Metadata:     md,
	}
	src.ID = src.CanonicalID()
	if err := out.Add(src); err != nil {
		return err
	}

	if target == nil {
		return nil
	}
	tgt := &tm.Entry{
		Language:     trgLang,
		PureText:     target.PureText(),
		Element:      target.String(),
		FileID:       fileID,
		Original:     fileOriginal,
		UnitID:       unitID,
		SegmentIndex: index,
		SegmentCount: count,
		Metadata:     md,
	}
	tgt.ID = tgt.CanonicalID()
	return out.Add(tgt)
}

func attr(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
