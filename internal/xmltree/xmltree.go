// Package xmltree provides a lightweight mixed-content XML node used by the
// XLIFF and TMX ingestors. It preserves element order and attributes so that
// translation fragments round-trip back to their original string form, and
// implements the inline-tag unwrapping that produces the plain text used for
// embedding and lexical scoring.
package xmltree

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Attr is a serialized attribute. Name keeps the "xml:" prefix for
// attributes in the XML namespace (e.g. xml:lang).
type Attr struct {
	Name  string
	Value string
}

// Node is an XML element with ordered mixed content. Content holds
// *Node children and string character data, interleaved in document order.
type Node struct {
	Name    string
	Attrs   []Attr
	Content []any
}

// Parse builds a node tree from a full XML document string, returning its
// root element.
func Parse(doc string) (*Node, error) {
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("no root element: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return ParseElement(dec, start)
		}
	}
}

// ParseElement consumes tokens from dec until the end of the element opened
// by start, building the subtree rooted at it.
func ParseElement(dec *xml.Decoder, start xml.StartElement) (*Node, error) {
	n := &Node{Name: start.Name.Local}
	for _, a := range start.Attr {
		n.Attrs = append(n.Attrs, Attr{Name: attrName(a.Name), Value: a.Value})
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("unterminated <%s>: %w", n.Name, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := ParseElement(dec, t)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		case xml.CharData:
			n.Content = append(n.Content, string(t))
		case xml.EndElement:
			return n, nil
		}
	}
}

// attrName renders an attribute name, preserving the xml: prefix which
// encoding/xml reports as the XML namespace URI.
func attrName(name xml.Name) string {
	if name.Space == "xml" || name.Space == "http://www.w3.org/XML/1998/namespace" {
		return "xml:" + name.Local
	}
	return name.Local
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrDefault returns the named attribute or def when absent.
func (n *Node) AttrDefault(name, def string) string {
	if v, ok := n.Attr(name); ok {
		return v
	}
	return def
}

// SetAttr sets or replaces an attribute.
func (n *Node) SetAttr(name, value string) {
	for i, a := range n.Attrs {
		if a.Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// Children returns the element children with the given local name;
// an empty name matches every element child.
func (n *Node) Children(name string) []*Node {
	var out []*Node
	for _, c := range n.Content {
		if child, ok := c.(*Node); ok && (name == "" || child.Name == name) {
			out = append(out, child)
		}
	}
	return out
}

// FirstChild returns the first element child with the given name.
func (n *Node) FirstChild(name string) *Node {
	for _, c := range n.Content {
		if child, ok := c.(*Node); ok && child.Name == name {
			return child
		}
	}
	return nil
}

// String serializes the node back to its XML string form.
func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(n.Name)
	for _, a := range n.Attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Name)
		sb.WriteString(`="`)
		sb.WriteString(escape(a.Value))
		sb.WriteByte('"')
	}
	if len(n.Content) == 0 {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
	for _, c := range n.Content {
		switch v := c.(type) {
		case *Node:
			v.write(sb)
		case string:
			sb.WriteString(escape(v))
		}
	}
	sb.WriteString("</")
	sb.WriteString(n.Name)
	sb.WriteByte('>')
}

// InnerXML serializes only the node's content, without the wrapper tags.
func (n *Node) InnerXML() string {
	var sb strings.Builder
	for _, c := range n.Content {
		switch v := c.(type) {
		case *Node:
			v.write(&sb)
		case string:
			sb.WriteString(escape(v))
		}
	}
	return sb.String()
}

// Text concatenates all character data in the subtree, in document order.
func (n *Node) Text() string {
	var sb strings.Builder
	n.text(&sb)
	return sb.String()
}

func (n *Node) text(sb *strings.Builder) {
	for _, c := range n.Content {
		switch v := c.(type) {
		case *Node:
			v.text(sb)
		case string:
			sb.WriteString(v)
		}
	}
}

// unwrapInline lists the inline elements whose textual content survives
// unwrapping. Everything else (placeholders, code points, paired codes)
// contributes nothing.
var unwrapInline = map[string]bool{
	"pc":  true,
	"mrk": true,
	"hi":  true,
}

// PureText extracts the plain text of a translation element: character
// data is kept, <pc>, <mrk> and <hi> are entered recursively, <cp> and
// all other inline elements are skipped. No whitespace is collapsed
// beyond what is implicit in the XML.
func (n *Node) PureText() string {
	var sb strings.Builder
	n.pureText(&sb)
	return sb.String()
}

func (n *Node) pureText(sb *strings.Builder) {
	for _, c := range n.Content {
		switch v := c.(type) {
		case *Node:
			if unwrapInline[v.Name] {
				v.pureText(sb)
			}
		case string:
			sb.WriteString(v)
		}
	}
}

// escape renders text safe for element and attribute content.
func escape(s string) string {
	var sb strings.Builder
	if err := xml.EscapeText(&sb, []byte(s)); err != nil {
		return s
	}
	// EscapeText escapes newlines and tabs too aggressively for
	// human-readable fragments; restore them.
	out := sb.String()
	out = strings.ReplaceAll(out, "&#xA;", "\n")
	out = strings.ReplaceAll(out, "&#x9;", "\t")
	return out
}
