package xmltree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString_RoundTrip(t *testing.T) {
	src := `<source>Click <pc id="1">here</pc> to continue</source>`

	n, err := Parse(src)
	require.NoError(t, err)

	assert.Equal(t, "source", n.Name)
	assert.Equal(t, src, n.String())
}

func TestParse_Attributes(t *testing.T) {
	n, err := Parse(`<segment id="s1" state="final"><source>x</source></segment>`)
	require.NoError(t, err)

	v, ok := n.Attr("state")
	assert.True(t, ok)
	assert.Equal(t, "final", v)
	assert.Equal(t, "fallback", n.AttrDefault("missing", "fallback"))
}

func TestParse_XMLLang(t *testing.T) {
	n, err := Parse(`<tuv xml:lang="en-US"><seg>hello</seg></tuv>`)
	require.NoError(t, err)

	assert.Equal(t, "en-US", n.AttrDefault("xml:lang", ""))
}

func TestPureText_UnwrapsInlineTags(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			"plain text",
			`<source>Hello world</source>`,
			"Hello world",
		},
		{
			"pc recursed",
			`<source>Click <pc id="1">here</pc> now</source>`,
			"Click here now",
		},
		{
			"nested mrk and hi",
			`<source><mrk id="m1">one <hi>two</hi></mrk> three</source>`,
			"one two three",
		},
		{
			"cp skipped",
			`<source>a<cp hex="0009"/>b</source>`,
			"ab",
		},
		{
			"placeholder skipped",
			`<source>before <ph id="p1"/> after</source>`,
			"before  after",
		},
		{
			"unknown inline content dropped",
			`<seg>kept <bpt i="1">{</bpt>dropped? no: kept too</seg>`,
			"kept dropped? no: kept too",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, err := Parse(tc.doc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, n.PureText())
		})
	}
}

func TestPureText_DropsForeignElementText(t *testing.T) {
	// Text inside non-inline elements does not leak into the pure text.
	n, err := Parse(`<seg>a<bpt i="1">&lt;b&gt;</bpt>b</seg>`)
	require.NoError(t, err)
	assert.Equal(t, "ab", n.PureText())
}

func TestText_KeepsAllCharData(t *testing.T) {
	n, err := Parse(`<note>first <b>second</b> third</note>`)
	require.NoError(t, err)
	assert.Equal(t, "first second third", n.Text())
}

func TestChildren(t *testing.T) {
	n, err := Parse(`<unit><segment id="1"/><ignorable/><segment id="2"/></unit>`)
	require.NoError(t, err)

	assert.Len(t, n.Children("segment"), 2)
	assert.Len(t, n.Children(""), 3)
	require.NotNil(t, n.FirstChild("segment"))
	assert.Equal(t, "1", n.FirstChild("segment").AttrDefault("id", ""))
	assert.Nil(t, n.FirstChild("source"))
}

func TestString_EscapesSpecials(t *testing.T) {
	n := &Node{Name: "source", Content: []any{"a < b & c"}}
	assert.Equal(t, "<source>a &lt; b &amp; c</source>", n.String())
}

func TestString_EmptyElement(t *testing.T) {
	n := &Node{Name: "ph", Attrs: []Attr{{Name: "id", Value: "1"}}}
	assert.Equal(t, `<ph id="1"/>`, n.String())
}

func TestInnerXML(t *testing.T) {
	n, err := Parse(`<source>a<pc id="1">b</pc></source>`)
	require.NoError(t, err)
	assert.Equal(t, `a<pc id="1">b</pc>`, n.InnerXML())
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse(`<source>unterminated`)
	assert.Error(t, err)
	_, err = Parse(``)
	assert.Error(t, err)
}
