// pkg/browser/cdp/driver.go
package cdp

import (
	"context"
	"fmt"
	"slices"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/phquery/pkg/browser"
)

// Driver controls one isolated browsing session of a Browser, focused on one tab
// and, within it, on a chain of nested frames. Drivers are values: switching focus
// returns a new Driver and leaves the receiver unchanged. All drivers derived
// from one NewSession share the session and its tabs.
type Driver struct {
	sess     *session
	targetID target.ID
	// frames is the chain of frame elements from the top document to the focused one.
	frames []*cdp.Node
}

var _ browser.Driver = (*Driver)(nil)

func (d *Driver) focus(id target.ID, frames []*cdp.Node) *Driver {
	return &Driver{sess: d.sess, targetID: id, frames: frames}
}

// run executes actions in the focused tab, bounded by ctx.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	tab, err := d.sess.attach(d.targetID)
	if err != nil {
		return err
	}
	runCtx, cancel := combineContext(tab, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// inFrame scopes a query to the focused frame's document.
func (d *Driver) inFrame(opts ...chromedp.QueryOption) []chromedp.QueryOption {
	if len(d.frames) > 0 {
		opts = append(opts, chromedp.FromNode(d.frames[len(d.frames)-1]))
	}
	return opts
}

// TargetID returns the protocol id of the focused tab.
func (d *Driver) TargetID() string { return string(d.targetID) }

// BrowserContextID returns the id of the session's isolated browser context.
func (d *Driver) BrowserContextID() string { return string(d.sess.contextID) }

// FrameDepth returns how many frames deep the focus is; 0 is the top document.
func (d *Driver) FrameDepth() int { return len(d.frames) }

// NewWindow opens a blank tab or window in the session and focuses it.
func (d *Driver) NewWindow(ctx context.Context, kind browser.WindowType) (browser.Driver, error) {
	if d.sess.isClosed() {
		return nil, ErrSessionClosed
	}
	runCtx, cancel := combineContext(d.sess.browser.ctx, ctx)
	defer cancel()
	id, err := target.CreateTarget("about:blank").
		WithBrowserContextID(d.sess.contextID).
		WithNewWindow(kind == browser.WindowTypeWindow).
		Do(d.sess.browser.executor(runCtx))
	if err != nil {
		return nil, fmt.Errorf("cdp: failed to open %s: %w", kind, err)
	}
	if _, err := d.sess.attach(id); err != nil {
		return nil, err
	}
	d.sess.logger.Debug("Opened window.", zap.String("target_id", string(id)), zap.Stringer("kind", kind))
	return d.focus(id, nil), nil
}

// WindowHandle returns the focused tab's id, or "" once that tab is gone.
func (d *Driver) WindowHandle(ctx context.Context) (string, error) {
	ids, err := d.sess.pageTargets(ctx)
	if err != nil {
		return "", err
	}
	if !slices.Contains(ids, d.targetID) {
		return "", nil
	}
	return string(d.targetID), nil
}

// WindowHandles returns the ids of the session's tabs in browser order.
func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	ids, err := d.sess.pageTargets(ctx)
	if err != nil {
		return nil, err
	}
	handles := make([]string, len(ids))
	for i, id := range ids {
		handles[i] = string(id)
	}
	return handles, nil
}

// SwitchToWindow brings the tab with the given id to the front and focuses its
// top-level document.
func (d *Driver) SwitchToWindow(ctx context.Context, handle string) (browser.Driver, error) {
	ids, err := d.sess.pageTargets(ctx)
	if err != nil {
		return nil, err
	}
	id := target.ID(handle)
	if !slices.Contains(ids, id) {
		return nil, browser.NewNotFoundError(browser.KindWindow, handle, nil)
	}
	runCtx, cancel := combineContext(d.sess.browser.ctx, ctx)
	defer cancel()
	if err := target.ActivateTarget(id).Do(d.sess.browser.executor(runCtx)); err != nil {
		return nil, fmt.Errorf("cdp: failed to activate window %s: %w", handle, err)
	}
	if _, err := d.sess.attach(id); err != nil {
		return nil, err
	}
	return d.focus(id, nil), nil
}

// SwitchToDefaultContent focuses the top-level document of the current tab.
func (d *Driver) SwitchToDefaultContent(context.Context) (browser.Driver, error) {
	return d.focus(d.targetID, nil), nil
}

// SwitchToParentFrame focuses the document containing the current frame. At the
// top-level document it stays there.
func (d *Driver) SwitchToParentFrame(context.Context) (browser.Driver, error) {
	if len(d.frames) == 0 {
		return d.focus(d.targetID, nil), nil
	}
	return d.focus(d.targetID, slices.Clone(d.frames[:len(d.frames)-1])), nil
}

// ActiveElement returns the focused element of the current document, or its body.
func (d *Driver) ActiveElement(ctx context.Context) (browser.Element, error) {
	for _, sel := range []string{":focus", "body"} {
		var nodes []*cdp.Node
		opts := d.inFrame(chromedp.ByQueryAll, chromedp.AtLeast(0))
		if err := d.run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
			return nil, err
		}
		if len(nodes) > 0 {
			return &Element{node: nodes[0], targetID: d.targetID}, nil
		}
	}
	return nil, browser.NewNotFoundError(browser.KindElement, "active", nil)
}

// Alert returns the JavaScript dialog open in the focused tab.
func (d *Driver) Alert(context.Context) (browser.Alert, error) {
	ev, ok := d.sess.dialogs.current(d.targetID)
	if !ok {
		return nil, browser.NewNotFoundError(browser.KindAlert, "", nil)
	}
	tab, err := d.sess.attach(d.targetID)
	if err != nil {
		return nil, err
	}
	return &Alert{ev: ev, targetID: d.targetID, tab: tab, dialogs: d.sess.dialogs}, nil
}

// Navigate loads url in the focused tab and waits for it to load.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("cdp: navigation to %s failed: %w", url, err)
	}
	return nil
}

// Title returns the title of the focused tab.
func (d *Driver) Title(ctx context.Context) (string, error) {
	var title string
	err := d.run(ctx, chromedp.Title(&title))
	return title, err
}

// URL returns the address of the focused tab.
func (d *Driver) URL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, chromedp.Location(&url))
	return url, err
}

// Source returns the serialized markup of the focused document.
func (d *Driver) Source(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, chromedp.OuterHTML("html", &html, d.inFrame(chromedp.ByQuery)...))
	return html, err
}

// Screenshot captures the viewport of the focused tab as PNG.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("cdp: screenshot failed: %w", err)
	}
	return buf, nil
}

// ConsoleMessages returns the console output recorded across the session's tabs.
func (d *Driver) ConsoleMessages() []ConsoleMessage {
	return d.sess.console.snapshot()
}

// Close ends the whole session: every tab of it is closed and its browser context
// disposed of. Drivers of the session are unusable afterwards.
func (d *Driver) Close(ctx context.Context) error {
	return d.sess.close(ctx)
}
