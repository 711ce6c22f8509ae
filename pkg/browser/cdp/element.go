// pkg/browser/cdp/element.go
package cdp

import (
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"

	"github.com/xkilldash9x/phquery/pkg/browser"
)

// Element is a DOM node of a tab, as returned by ActiveElement. Frame elements can
// be passed to browser.FrameElement.
type Element struct {
	node     *cdp.Node
	targetID target.ID
}

var _ browser.Element = (*Element)(nil)

// TagName returns the lower-case tag name.
func (e *Element) TagName() string {
	if e.node.LocalName != "" {
		return e.node.LocalName
	}
	return strings.ToLower(e.node.NodeName)
}

// Attribute returns the value of the named attribute as it was when the node was read.
func (e *Element) Attribute(name string) (string, bool) {
	return e.node.Attribute(name)
}

// Node returns the underlying protocol node.
func (e *Element) Node() *cdp.Node { return e.node }

func isFrameNode(n *cdp.Node) bool {
	switch strings.ToLower(n.NodeName) {
	case "iframe", "frame":
		return true
	}
	return false
}
