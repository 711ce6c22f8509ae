// pkg/query/document.go
package query

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/beevik/etree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Document is an immutable list of nodes taken from one parsed HTML or XML document.
// Every narrowing operation returns a new Document sharing the same tree.
type Document struct {
	opts  Options
	mode  Mode
	nodes []node
}

// Load parses content and returns a Document holding the document's root element.
// Options are applied on top of DefaultOptions.
func Load(content string, opts ...Option) (*Document, error) {
	return loadBytes([]byte(content), opts...)
}

// LoadReader reads r to the end and parses it like Load.
func LoadReader(r io.Reader, opts ...Option) (*Document, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return loadBytes(content, opts...)
}

// LoadHTML parses content as HTML in the given encoding.
func LoadHTML(content, encoding string) (*Document, error) {
	return Load(content, WithEncoding(encoding), WithMode(ModeHTML))
}

// LoadXML parses content as XML in the given encoding with the given parser flags.
func LoadXML(content, encoding string, flags ParseFlags) (*Document, error) {
	return Load(content, WithEncoding(encoding), WithMode(ModeXML), WithParseFlags(flags))
}

func loadBytes(content []byte, opts ...Option) (*Document, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var (
		nodes []node
		err   error
		mode  = o.Mode
	)
	switch mode {
	case ModeAuto:
		mode = sniffMode(content)
		if mode == ModeXML {
			nodes, err = parseXML(content, o)
		} else {
			nodes, err = parseHTML(content, o, true)
		}
	case ModeHTML:
		nodes, err = parseHTML(content, o, false)
	case ModeXML:
		nodes, err = parseXML(content, o)
	default:
		return nil, fmt.Errorf("unknown parse mode %d", o.Mode)
	}
	if err != nil {
		return nil, err
	}
	return &Document{opts: o, mode: mode, nodes: nodes}, nil
}

// sniffMode treats content that opens with an XML declaration as XML.
func sniffMode(content []byte) Mode {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(content, utf8BOM), " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<?xml")) {
		return ModeXML
	}
	return ModeHTML
}

func parseHTML(content []byte, o Options, sniffCharset bool) ([]node, error) {
	var (
		r   io.Reader
		err error
	)
	if sniffCharset {
		enc, _, _ := charset.DetermineEncoding(content, "text/html")
		r = enc.NewDecoder().Reader(bytes.NewReader(content))
	} else {
		r, err = charset.NewReaderLabel(o.Encoding, bytes.NewReader(content))
	}
	if err != nil {
		return nil, &ParseError{Mode: ModeHTML, Err: err}
	}

	root, err := html.Parse(r)
	if err != nil {
		return nil, &ParseError{Mode: ModeHTML, Err: err}
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return []node{htmlNode{c}}, nil
		}
	}
	return nil, nil
}

func parseXML(content []byte, o Options) ([]node, error) {
	content = bytes.TrimLeft(bytes.TrimPrefix(content, utf8BOM), " \t\r\n")

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	doc.ReadSettings.PreserveCData = o.ParseFlags&FlagNoCDATA == 0
	doc.ReadSettings.Permissive = o.ParseFlags&FlagRecover != 0

	var r io.Reader = bytes.NewReader(content)
	// A declaration names its own encoding; only undeclared content is transcoded up front.
	if sniffMode(content) != ModeXML && !isUTF8(o.Encoding) {
		var err error
		if r, err = charset.NewReaderLabel(o.Encoding, r); err != nil {
			return nil, &ParseError{Mode: ModeXML, Err: err}
		}
	}
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, &ParseError{Mode: ModeXML, Err: err}
	}

	root := doc.Root()
	if root == nil {
		return nil, nil
	}
	if o.ParseFlags&FlagNoBlanks != 0 {
		stripBlanks(root)
	}
	return []node{xmlNode{root}}, nil
}

func stripBlanks(el *etree.Element) {
	for i := len(el.Child) - 1; i >= 0; i-- {
		switch c := el.Child[i].(type) {
		case *etree.CharData:
			if !c.IsCData() && c.IsWhitespace() {
				el.RemoveChildAt(i)
			}
		case *etree.Element:
			stripBlanks(c)
		}
	}
}

func (d *Document) derive(nodes []node) *Document {
	return &Document{opts: d.opts, mode: d.mode, nodes: nodes}
}

// Options returns the options the document was loaded with.
func (d *Document) Options() Options { return d.opts }

// Mode returns the mode the content was actually parsed in (never ModeAuto).
func (d *Document) Mode() Mode { return d.mode }

// Count returns the number of nodes in the list.
func (d *Document) Count() int { return len(d.nodes) }

// Eq returns a Document holding only the node at index i, or an empty one when i is out of range.
func (d *Document) Eq(i int) *Document {
	if i < 0 || i >= len(d.nodes) {
		return d.derive(nil)
	}
	return d.derive([]node{d.nodes[i]})
}

// First is Eq(0).
func (d *Document) First() *Document { return d.Eq(0) }

// Last returns a Document holding the last node.
func (d *Document) Last() *Document { return d.Eq(len(d.nodes) - 1) }

// Children returns the element children of the first node.
func (d *Document) Children() *Document {
	if len(d.nodes) == 0 {
		return d.derive(nil)
	}
	var out []node
	for _, c := range d.nodes[0].children() {
		if c.kind() == KindElement {
			out = append(out, c)
		}
	}
	return d.derive(out)
}

// Contents returns every child node of the first node, text and comments included.
func (d *Document) Contents() *Document {
	if len(d.nodes) == 0 {
		return d.derive(nil)
	}
	return d.derive(d.nodes[0].children())
}

// XPath evaluates expr against every node of the list and returns the union of matches in order.
// HTML documents support full XPath 1.0; XML documents support the etree path subset.
func (d *Document) XPath(expr string) (*Document, error) {
	var (
		out  []node
		seen = make(map[node]bool)
	)
	add := func(n node) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}

	switch d.mode {
	case ModeXML:
		path, err := etree.CompilePath(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", expr, err)
		}
		for _, n := range d.nodes {
			el, ok := n.(xmlNode).t.(*etree.Element)
			if !ok {
				continue
			}
			for _, m := range el.FindElementsPath(path) {
				add(xmlNode{m})
			}
		}
	default:
		for _, n := range d.nodes {
			matches, err := htmlquery.QueryAll(n.(htmlNode).n, expr)
			if err != nil {
				return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
			}
			for _, m := range matches {
				add(htmlNode{m})
			}
		}
	}
	return d.derive(out), nil
}

// Find returns the descendants of the listed nodes matching a CSS selector. HTML only.
func (d *Document) Find(css string) (*Document, error) {
	if d.mode == ModeXML {
		return nil, fmt.Errorf("css %q: %w", css, ErrUnsupportedSelector)
	}
	sel, err := cascadia.Compile(css)
	if err != nil {
		return nil, fmt.Errorf("invalid css selector %q: %w", css, err)
	}

	var (
		out  []node
		seen = make(map[node]bool)
	)
	for _, n := range d.nodes {
		for _, m := range goquery.NewDocumentFromNode(n.(htmlNode).n).FindMatcher(sel).Nodes {
			hn := htmlNode{m}
			if !seen[hn] {
				seen[hn] = true
				out = append(out, hn)
			}
		}
	}
	return d.derive(out), nil
}

// Kind returns the kind of the first node, or KindOther for an empty list.
func (d *Document) Kind() NodeKind {
	if len(d.nodes) == 0 {
		return KindOther
	}
	return d.nodes[0].kind()
}

// NodeName returns the tag name of the first node.
func (d *Document) NodeName() (string, error) {
	if len(d.nodes) == 0 {
		return "", ErrEmptyNodeList
	}
	return d.nodes[0].name(), nil
}

// Text returns the concatenated text content of the first node.
func (d *Document) Text() (string, error) {
	if len(d.nodes) == 0 {
		return "", ErrEmptyNodeList
	}
	n := d.nodes[0]
	switch n.kind() {
	case KindText, KindCDATA, KindComment:
		return n.value(), nil
	}
	return n.textContent(), nil
}

// Attr returns the value of an attribute of the first node.
func (d *Document) Attr(name string) (string, bool) {
	if len(d.nodes) == 0 {
		return "", false
	}
	return d.nodes[0].attr(strings.TrimSpace(name))
}
