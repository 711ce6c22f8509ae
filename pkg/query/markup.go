// pkg/query/markup.go
package query

import (
	"regexp"
	"strings"
)

// InnerMarkup serializes every child of the first node, in document order, without
// the node's own tags. It fails with ErrEmptyNodeList when the list is empty.
func (d *Document) InnerMarkup(flags SerializeFlags) (string, error) {
	if len(d.nodes) == 0 {
		return "", ErrEmptyNodeList
	}
	var b strings.Builder
	for _, c := range d.nodes[0].children() {
		if err := c.render(&b, flags); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

// InnerMarkupOr is InnerMarkup that returns def instead of failing on an empty list.
func (d *Document) InnerMarkupOr(def string, flags SerializeFlags) (string, error) {
	if len(d.nodes) == 0 {
		return def, nil
	}
	return d.InnerMarkup(flags)
}

// OuterMarkup serializes the first node together with its own tags and subtree.
func (d *Document) OuterMarkup(flags SerializeFlags) (string, error) {
	if len(d.nodes) == 0 {
		return "", ErrEmptyNodeList
	}
	var b strings.Builder
	if err := d.nodes[0].render(&b, flags); err != nil {
		return "", err
	}
	return b.String(), nil
}

// DirectText returns the text and CDATA children of the first node, ignoring text
// nested in child elements. With normalize set, whitespace runs collapse to a single
// space, segments are trimmed and empty ones are dropped.
//
// Unlike the markup methods, an empty list is not an error: the result is simply empty.
func (d *Document) DirectText(normalize bool) []string {
	if len(d.nodes) == 0 {
		return nil
	}
	var out []string
	for _, c := range d.nodes[0].children() {
		switch c.kind() {
		case KindText, KindCDATA:
		default:
			continue
		}
		text := c.value()
		if normalize {
			text = NormalizeWhitespace(text)
			if text == "" {
				continue
			}
		}
		out = append(out, text)
	}
	return out
}

var whitespaceRun = regexp.MustCompile(`[ \n\r\t\f]{2,}|[\n\r\t\f]`)

// NormalizeWhitespace collapses whitespace runs and lone newlines, carriage returns,
// tabs and form feeds to one space, then trims the result.
func NormalizeWhitespace(s string) string {
	return strings.Trim(whitespaceRun.ReplaceAllString(s, " "), " \n\r\t\f")
}
