// pkg/query/node.go
package query

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/beevik/etree"
	"golang.org/x/net/html"
)

// NodeKind classifies a node of the current node list.
type NodeKind int

const (
	KindOther NodeKind = iota
	KindElement
	KindText
	KindCDATA
	KindComment
	KindDocument
	KindDoctype
	KindProcInst
	KindDirective
)

func (k NodeKind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindText:
		return "text"
	case KindCDATA:
		return "cdata"
	case KindComment:
		return "comment"
	case KindDocument:
		return "document"
	case KindDoctype:
		return "doctype"
	case KindProcInst:
		return "procinst"
	case KindDirective:
		return "directive"
	default:
		return "other"
	}
}

// node hides the difference between the HTML tree (x/net/html) and the XML tree (etree).
type node interface {
	kind() NodeKind
	name() string
	children() []node
	value() string
	textContent() string
	attr(key string) (string, bool)
	render(w *strings.Builder, flags SerializeFlags) error
}

// --- HTML ---

type htmlNode struct{ n *html.Node }

// rawTextElements hold text that html.Render writes without escaping.
var rawTextElements = map[string]bool{
	"iframe": true, "noembed": true, "noframes": true, "noscript": true,
	"plaintext": true, "script": true, "style": true, "xmp": true,
}

func (h htmlNode) kind() NodeKind {
	switch h.n.Type {
	case html.ElementNode:
		return KindElement
	case html.TextNode:
		return KindText
	case html.CommentNode:
		return KindComment
	case html.DocumentNode:
		return KindDocument
	case html.DoctypeNode:
		return KindDoctype
	default:
		return KindOther
	}
}

func (h htmlNode) name() string {
	switch h.n.Type {
	case html.ElementNode:
		return h.n.Data
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	case html.DoctypeNode:
		return h.n.Data
	}
	return ""
}

func (h htmlNode) children() []node {
	var out []node
	for c := h.n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, htmlNode{c})
	}
	return out
}

func (h htmlNode) value() string {
	switch h.n.Type {
	case html.TextNode, html.CommentNode:
		return h.n.Data
	}
	return ""
}

func (h htmlNode) textContent() string {
	return htmlquery.InnerText(h.n)
}

func (h htmlNode) attr(key string) (string, bool) {
	for _, a := range h.n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func (h htmlNode) render(w *strings.Builder, _ SerializeFlags) error {
	// A lone text child of a raw text element has no parent context in html.Render.
	if h.n.Type == html.TextNode && h.n.Parent != nil &&
		h.n.Parent.Type == html.ElementNode && rawTextElements[h.n.Parent.Data] {
		w.WriteString(h.n.Data)
		return nil
	}
	return html.Render(w, h.n)
}

// --- XML ---

type xmlNode struct{ t etree.Token }

func (x xmlNode) kind() NodeKind {
	switch t := x.t.(type) {
	case *etree.Element:
		return KindElement
	case *etree.CharData:
		if t.IsCData() {
			return KindCDATA
		}
		return KindText
	case *etree.Comment:
		return KindComment
	case *etree.ProcInst:
		return KindProcInst
	case *etree.Directive:
		return KindDirective
	}
	return KindOther
}

func (x xmlNode) name() string {
	switch t := x.t.(type) {
	case *etree.Element:
		return t.FullTag()
	case *etree.CharData:
		if t.IsCData() {
			return "#cdata-section"
		}
		return "#text"
	case *etree.Comment:
		return "#comment"
	case *etree.ProcInst:
		return t.Target
	}
	return ""
}

func (x xmlNode) children() []node {
	el, ok := x.t.(*etree.Element)
	if !ok {
		return nil
	}
	out := make([]node, 0, len(el.Child))
	for _, c := range el.Child {
		out = append(out, xmlNode{c})
	}
	return out
}

func (x xmlNode) value() string {
	switch t := x.t.(type) {
	case *etree.CharData:
		return t.Data
	case *etree.Comment:
		return t.Data
	case *etree.ProcInst:
		return t.Inst
	case *etree.Directive:
		return t.Data
	}
	return ""
}

func (x xmlNode) textContent() string {
	var b strings.Builder
	var walk func(t etree.Token)
	walk = func(t etree.Token) {
		switch t := t.(type) {
		case *etree.CharData:
			b.WriteString(t.Data)
		case *etree.Element:
			for _, c := range t.Child {
				walk(c)
			}
		}
	}
	walk(x.t)
	return b.String()
}

func (x xmlNode) attr(key string) (string, bool) {
	el, ok := x.t.(*etree.Element)
	if !ok {
		return "", false
	}
	if a := el.SelectAttr(key); a != nil {
		return a.Value, true
	}
	return "", false
}

func (x xmlNode) render(w *strings.Builder, flags SerializeFlags) error {
	ws := etree.WriteSettings{
		CanonicalEndTags: flags&SerializeNoEmptyTag != 0,
	}
	x.t.WriteTo(w, &ws)
	return nil
}
