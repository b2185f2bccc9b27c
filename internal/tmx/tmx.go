// Package tmx ingests TMX 1.4b documents into entry candidates, one entry
// per translation-unit variant. Like the XLIFF ingestor the walk is
// SAX-driven, materializing one <tu> subtree at a time.
package tmx

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	tmerr "github.com/rmraya/hybridtm/internal/errors"
	"github.com/rmraya/hybridtm/internal/importer"
	"github.com/rmraya/hybridtm/internal/tm"
	"github.com/rmraya/hybridtm/internal/xmltree"
)

// Options controls variant inclusion and metadata extraction.
type Options struct {
	// SkipEmpty drops variants whose segment text is whitespace only.
	SkipEmpty bool

	// ExtractMetadata copies lifecycle attributes, notes and properties
	// onto the emitted entries.
	ExtractMetadata bool
}

// Result describes a completed ingest.
type Result struct {
	Path  string
	Count int
}

// Ingest walks the TMX document at path and writes entry candidates to a
// JSONL temp file. The temp file is removed on error.
func Ingest(ctx context.Context, path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, tmerr.Wrap(tmerr.KindUnsupportedFormat, "open TMX file", err).WithPath(path)
	}
	defer func() { _ = f.Close() }()

	out, err := importer.CreateCandidateFile()
	if err != nil {
		return nil, err
	}

	// TMX carries no document identity; the file name anchors provenance.
	fileID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if err := ingest(ctx, xml.NewDecoder(f), out, fileID, path, opts); err != nil {
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
	return &Result{Path: out.Path, Count: out.Count}, nil
}

func ingest(ctx context.Context, dec *xml.Decoder, out *importer.CandidateFile, fileID, original string, opts Options) error {
	sawRoot := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return tmerr.Wrap(tmerr.KindUnsupportedFormat, "parse TMX", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "tmx":
			sawRoot = true
		case "tu":
			if !sawRoot {
				return tmerr.New(tmerr.KindUnsupportedFormat, "tu element outside tmx root")
			}
			tu, err := xmltree.ParseElement(dec, start)
			if err != nil {
				return tmerr.Wrap(tmerr.KindUnsupportedFormat, "parse tu", err)
			}
			if err := processTU(tu, fileID, original, opts, out); err != nil {
				return err
			}
		}
	}

	if !sawRoot {
		return tmerr.New(tmerr.KindUnsupportedFormat, "not a TMX document")
	}
	return nil
}

func processTU(tu *xmltree.Node, fileID, original string, opts Options, out *importer.CandidateFile) error {
	unitID := tu.AttrDefault("tuid", "")
	if unitID == "" {
		// Synthetic time-based identifier for anonymous units.
		id, err := uuid.NewUUID()
		if err != nil {
			id = uuid.New()
		}
		unitID = "tu-" + id.String()
	}

	for _, tuv := range tu.Children("tuv") {
		lang := tuv.AttrDefault("xml:lang", tuv.AttrDefault("lang", ""))
		if lang == "" {
			continue
		}
		seg := tuv.FirstChild("seg")
		if seg == nil {
			continue
		}

		pure := seg.PureText()
		if opts.SkipEmpty && strings.TrimSpace(pure) == "" {
			continue
		}

		entry := &tm.Entry{
			Language:     lang,
			PureText:     pure,
			Element:      tuv.String(),
			FileID:       fileID,
			Original:     original,
			UnitID:       unitID,
			SegmentIndex: 0,
			SegmentCount: 1,
			Metadata:     extractMetadata(tu, tuv, opts),
		}
		entry.ID = entry.CanonicalID()
		if err := out.Add(entry); err != nil {
			return err
		}
	}
	return nil
}

// extractMetadata builds the metadata record for one variant. Lifecycle
// attributes prefer the TUV over the TU; usage statistics live on the TU.
func extractMetadata(tu, tuv *xmltree.Node, opts Options) *tm.Metadata {
	if !opts.ExtractMetadata {
		return nil
	}

	md := &tm.Metadata{
		CreationDate:        preferAttr(tuv, tu, "creationdate"),
		CreationID:          preferAttr(tuv, tu, "creationid"),
		ChangeDate:          preferAttr(tuv, tu, "changedate"),
		ChangeID:            preferAttr(tuv, tu, "changeid"),
		CreationTool:        preferAttr(tuv, tu, "creationtool"),
		CreationToolVersion: preferAttr(tuv, tu, "creationtoolversion"),
		LastUsageDate:       tu.AttrDefault("lastusagedate", ""),
	}

	if raw, ok := tu.Attr("usagecount"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			md.UsageCount = &n
		}
	}

	md.Notes = append(collectNotes(tu), collectNotes(tuv)...)

	props := collectProps(tu)
	for k, v := range collectProps(tuv) {
		props[k] = v
	}
	if len(props) > 0 {
		md.Properties = props
	}

	applyContext(md, props)

	if ref := parseSegmentRef(props["xliff-segment"]); ref != nil {
		md.Segment = ref
	}

	if md.IsEmpty() {
		return nil
	}
	return md
}

func preferAttr(tuv, tu *xmltree.Node, name string) string {
	if tuv != nil {
		if v, ok := tuv.Attr(name); ok && v != "" {
			return v
		}
	}
	if tu != nil {
		if v, ok := tu.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

func collectNotes(n *xmltree.Node) []string {
	if n == nil {
		return nil
	}
	var notes []string
	for _, note := range n.Children("note") {
		if text := strings.TrimSpace(note.Text()); text != "" {
			notes = append(notes, text)
		}
	}
	return notes
}

func collectProps(n *xmltree.Node) map[string]string {
	props := make(map[string]string)
	if n == nil {
		return props
	}
	for _, prop := range n.Children("prop") {
		if key := prop.AttrDefault("type", ""); key != "" {
			props[key] = strings.TrimSpace(prop.Text())
		}
	}
	return props
}

// contextProps are promoted into metadata.context, first hit wins.
var contextProps = []string{"x-context", "context", "domain"}

// applyContext resolves metadata.context from the well-known properties
// and appends a "prev=…; next=…" phrase when neighbor properties exist.
func applyContext(md *tm.Metadata, props map[string]string) {
	for _, key := range contextProps {
		if v, ok := props[key]; ok && v != "" {
			md.Context = v
			break
		}
	}

	var prev, next string
	for key, value := range props {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "prev-") && prev == "" {
			prev = value
		}
		if strings.HasPrefix(lower, "next-") && next == "" {
			next = value
		}
	}
	if prev == "" && next == "" {
		return
	}
	phrase := "prev=" + prev + "; next=" + next
	if md.Context != "" {
		md.Context += "; " + phrase
	} else {
		md.Context = phrase
	}
}

// parseSegmentRef parses an "xliff-segment" property holding an
// identifier with three trailing numeric groups, …-FILE-UNIT-SEGMENT.
func parseSegmentRef(value string) *tm.SegmentRef {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, "-")
	if len(parts) < 4 {
		return nil
	}
	tail := parts[len(parts)-3:]
	for _, group := range tail {
		if _, err := strconv.Atoi(group); err != nil {
			return nil
		}
	}
	return &tm.SegmentRef{
		Provider:   "xliff-segment",
		SegmentKey: value,
		FileHash:   strings.Join(parts[:len(parts)-3], "-"),
		FileID:     tail[0],
		UnitID:     tail[1],
		SegmentID:  tail[2],
	}
}
