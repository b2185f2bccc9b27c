package tmx

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tmerr "github.com/rmraya/hybridtm/internal/errors"
	"github.com/rmraya/hybridtm/internal/tm"
)

func writeDoc(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.tmx")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func readCandidates(t *testing.T, path string) []*tm.Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
		_ = os.Remove(path)
	}()

	var out []*tm.Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e tm.Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		out = append(out, &e)
	}
	require.NoError(t, scanner.Err())
	return out
}

const basicDoc = `<?xml version="1.0"?>
<tmx version="1.4">
 <header/>
 <body>
  <tu tuid="t1">
   <tuv xml:lang="en"><seg>Hello world</seg></tuv>
   <tuv xml:lang="es"><seg>Hola mundo</seg></tuv>
  </tu>
 </body>
</tmx>`

func TestIngest_OneEntryPerVariant(t *testing.T) {
	res, err := Ingest(context.Background(), writeDoc(t, basicDoc), Options{})
	require.NoError(t, err)
	entries := readCandidates(t, res.Path)

	require.Len(t, entries, 2)
	assert.Equal(t, 2, res.Count)

	for _, e := range entries {
		assert.Equal(t, "memory", e.FileID)
		assert.Equal(t, "t1", e.UnitID)
		assert.Zero(t, e.SegmentIndex)
		assert.Equal(t, 1, e.SegmentCount)
	}
	assert.Equal(t, "memory:t1:0:en", entries[0].ID)
	assert.Equal(t, "Hello world", entries[0].PureText)
	assert.Equal(t, "memory:t1:0:es", entries[1].ID)
	assert.Contains(t, entries[1].Element, "<seg>Hola mundo</seg>")
}

func TestIngest_LangAttributeFallback(t *testing.T) {
	doc := `<tmx version="1.4"><body>
  <tu tuid="t1"><tuv lang="fr"><seg>Bonjour</seg></tuv></tu>
 </body></tmx>`

	res, err := Ingest(context.Background(), writeDoc(t, doc), Options{})
	require.NoError(t, err)
	entries := readCandidates(t, res.Path)

	require.Len(t, entries, 1)
	assert.Equal(t, "fr", entries[0].Language)
}

func TestIngest_SyntheticTUID(t *testing.T) {
	doc := `<tmx version="1.4"><body>
  <tu><tuv xml:lang="en"><seg>anonymous</seg></tuv></tu>
 </body></tmx>`

	res, err := Ingest(context.Background(), writeDoc(t, doc), Options{})
	require.NoError(t, err)
	entries := readCandidates(t, res.Path)

	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].UnitID, "tu-"))
}

func TestIngest_SkipEmpty(t *testing.T) {
	doc := `<tmx version="1.4"><body>
  <tu tuid="t1">
   <tuv xml:lang="en"><seg>kept</seg></tuv>
   <tuv xml:lang="es"><seg>   </seg></tuv>
  </tu>
 </body></tmx>`

	res, err := Ingest(context.Background(), writeDoc(t, doc), Options{SkipEmpty: true})
	require.NoError(t, err)
	entries := readCandidates(t, res.Path)
	require.Len(t, entries, 1)
	assert.Equal(t, "en", entries[0].Language)

	// Without skipEmpty the blank variant survives.
	res, err = Ingest(context.Background(), writeDoc(t, doc), Options{})
	require.NoError(t, err)
	assert.Len(t, readCandidates(t, res.Path), 2)
}

func TestIngest_Metadata(t *testing.T) {
	doc := `<tmx version="1.4"><body>
  <tu tuid="t1" creationdate="20230101T120000Z" creationid="alice"
      usagecount="12" lastusagedate="20230601T080000Z">
   <note>tu note</note>
   <prop type="domain">software</prop>
   <prop type="project">acme</prop>
   <tuv xml:lang="en" changeid="bob" changedate="20230301T090000Z">
    <note>variant note</note>
    <seg>Hello</seg>
   </tuv>
  </tu>
 </body></tmx>`

	res, err := Ingest(context.Background(), writeDoc(t, doc), Options{ExtractMetadata: true})
	require.NoError(t, err)
	entries := readCandidates(t, res.Path)
	require.Len(t, entries, 1)

	md := entries[0].Metadata
	require.NotNil(t, md)
	assert.Equal(t, "20230101T120000Z", md.CreationDate)
	assert.Equal(t, "alice", md.CreationID)
	// TUV wins over TU.
	assert.Equal(t, "bob", md.ChangeID)
	assert.Equal(t, "20230301T090000Z", md.ChangeDate)
	require.NotNil(t, md.UsageCount)
	assert.Equal(t, 12, *md.UsageCount)
	assert.Equal(t, "20230601T080000Z", md.LastUsageDate)
	assert.Equal(t, []string{"tu note", "variant note"}, md.Notes)
	assert.Equal(t, "software", md.Properties["domain"])
	// domain is promoted into context when no explicit context exists.
	assert.Equal(t, "software", md.Context)
}

func TestIngest_ContextPromotion(t *testing.T) {
	doc := `<tmx version="1.4"><body>
  <tu tuid="t1">
   <prop type="x-context">dialog.save</prop>
   <prop type="domain">ignored, x-context wins</prop>
   <prop type="Prev-Segment">before text</prop>
   <prop type="Next-Segment">after text</prop>
   <tuv xml:lang="en"><seg>Hello</seg></tuv>
  </tu>
 </body></tmx>`

	res, err := Ingest(context.Background(), writeDoc(t, doc), Options{ExtractMetadata: true})
	require.NoError(t, err)
	entries := readCandidates(t, res.Path)
	require.Len(t, entries, 1)

	md := entries[0].Metadata
	require.NotNil(t, md)
	assert.Equal(t, "dialog.save; prev=before text; next=after text", md.Context)
}

func TestIngest_XLIFFSegmentProvenance(t *testing.T) {
	doc := `<tmx version="1.4"><body>
  <tu tuid="t1">
   <prop type="xliff-segment">a1b2c3-4-17-2</prop>
   <tuv xml:lang="en"><seg>Hello</seg></tuv>
  </tu>
 </body></tmx>`

	res, err := Ingest(context.Background(), writeDoc(t, doc), Options{ExtractMetadata: true})
	require.NoError(t, err)
	entries := readCandidates(t, res.Path)
	require.Len(t, entries, 1)

	ref := entries[0].Metadata.Segment
	require.NotNil(t, ref)
	assert.Equal(t, "xliff-segment", ref.Provider)
	assert.Equal(t, "a1b2c3-4-17-2", ref.SegmentKey)
	assert.Equal(t, "a1b2c3", ref.FileHash)
	assert.Equal(t, "4", ref.FileID)
	assert.Equal(t, "17", ref.UnitID)
	assert.Equal(t, "2", ref.SegmentID)
}

func TestIngest_NonNumericSegmentKeyIgnored(t *testing.T) {
	assert.Nil(t, parseSegmentRef("hash-only"))
	assert.Nil(t, parseSegmentRef("h-1-2-x"))
	assert.Nil(t, parseSegmentRef(""))
}

func TestIngest_InlineCodesUnwrapped(t *testing.T) {
	doc := `<tmx version="1.4"><body>
  <tu tuid="t1">
   <tuv xml:lang="en"><seg>bold <hi>words</hi><ph x="1"/> here</seg></tuv>
  </tu>
 </body></tmx>`

	res, err := Ingest(context.Background(), writeDoc(t, doc), Options{})
	require.NoError(t, err)
	entries := readCandidates(t, res.Path)
	require.Len(t, entries, 1)
	assert.Equal(t, "bold words here", entries[0].PureText)
}

func TestIngest_NotTMX(t *testing.T) {
	_, err := Ingest(context.Background(), writeDoc(t, `<xliff version="2.0"/>`), Options{})
	require.Error(t, err)
	assert.True(t, tmerr.IsKind(err, tmerr.KindUnsupportedFormat))
}
