// pkg/browser/cdp/frames.go
package cdp

import (
	"context"
	"errors"
	"slices"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/phquery/pkg/browser"
)

const frameSelector = "iframe, frame"

// frameElements returns the frame elements of the focused document in document order.
func (d *Driver) frameElements(ctx context.Context) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	opts := d.inFrame(chromedp.ByQueryAll, chromedp.AtLeast(0))
	if err := d.run(ctx, chromedp.Nodes(frameSelector, &nodes, opts...)); err != nil {
		return nil, err
	}
	return nodes, nil
}

// SwitchToFrame focuses a frame of the current document: by position among its
// frame elements, by name or id attribute, or by frame element. The default ref
// focuses the top-level document.
func (d *Driver) SwitchToFrame(ctx context.Context, ref browser.FrameRef) (browser.Driver, error) {
	if ref.IsDefault() {
		return d.SwitchToDefaultContent(ctx)
	}

	var node *cdp.Node
	if el, ok := ref.Element(); ok {
		n, err := d.frameFromElement(el)
		if err != nil {
			return nil, browser.NewNotFoundError(browser.KindFrame, ref.String(), err)
		}
		node = n
	} else {
		nodes, err := d.frameElements(ctx)
		if err != nil {
			return nil, err
		}
		node = matchFrame(nodes, ref)
		if node == nil {
			return nil, browser.NewNotFoundError(browser.KindFrame, ref.String(), nil)
		}
	}

	frames := append(slices.Clone(d.frames), node)
	return d.focus(d.targetID, frames), nil
}

var (
	errForeignElement = errors.New("element belongs to another window")
	errNotFrame       = errors.New("element is not a frame")
)

func (d *Driver) frameFromElement(el browser.Element) (*cdp.Node, error) {
	e, ok := el.(*Element)
	if !ok || e == nil || e.node == nil {
		return nil, errNotFrame
	}
	if e.targetID != d.targetID {
		return nil, errForeignElement
	}
	if !isFrameNode(e.node) {
		return nil, errNotFrame
	}
	return e.node, nil
}

// matchFrame picks the frame element a positional or named ref points at.
func matchFrame(nodes []*cdp.Node, ref browser.FrameRef) *cdp.Node {
	if i, ok := ref.Index(); ok {
		if i < 0 || i >= len(nodes) {
			return nil
		}
		return nodes[i]
	}
	if name, ok := ref.Name(); ok {
		for _, n := range nodes {
			if v, ok := n.Attribute("name"); ok && v == name {
				return n
			}
		}
		for _, n := range nodes {
			if v, ok := n.Attribute("id"); ok && v == name {
				return n
			}
		}
	}
	return nil
}
