// pkg/browser/handle.go
package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Handle wraps a Driver with named focus operations. A Handle is immutable: every
// operation that moves focus returns a new Handle bound to the driver the switch
// produced. Errors from the driver are returned as is.
type Handle struct {
	driver Driver
}

// NewHandle binds a Handle to d.
func NewHandle(d Driver) *Handle {
	return &Handle{driver: d}
}

// Driver returns the underlying driver.
func (h *Handle) Driver() Driver {
	return h.driver
}

func (h *Handle) wrap(d Driver, err error) (*Handle, error) {
	if err != nil {
		return nil, err
	}
	return NewHandle(d), nil
}

// OpenTab opens a new tab and focuses it.
func (h *Handle) OpenTab(ctx context.Context) (*Handle, error) {
	return h.wrap(h.driver.NewWindow(ctx, WindowTypeTab))
}

// OpenWindow opens a new window and focuses it.
func (h *Handle) OpenWindow(ctx context.Context) (*Handle, error) {
	return h.wrap(h.driver.NewWindow(ctx, WindowTypeWindow))
}

// CurrentHandleID returns the id of the focused window, "" when there is none.
func (h *Handle) CurrentHandleID(ctx context.Context) (string, error) {
	return h.driver.WindowHandle(ctx)
}

// AllHandleIDs returns the ids of every window of the session, in browser order.
func (h *Handle) AllHandleIDs(ctx context.Context) ([]string, error) {
	return h.driver.WindowHandles(ctx)
}

// FocusByHandleID focuses the window with the given id.
func (h *Handle) FocusByHandleID(ctx context.Context, id string) (*Handle, error) {
	return h.wrap(h.driver.SwitchToWindow(ctx, id))
}

// FocusByIndex focuses the window at position index of AllHandleIDs. Negative
// indexes count from the end, so -1 is the last window.
func (h *Handle) FocusByIndex(ctx context.Context, index int) (*Handle, error) {
	ids, err := h.AllHandleIDs(ctx)
	if err != nil {
		return nil, err
	}
	i := index
	if i < 0 {
		i += len(ids)
	}
	if i < 0 || i >= len(ids) {
		return nil, NewNotFoundError(KindWindow, strconv.Itoa(index),
			fmt.Errorf("index out of range for %d windows", len(ids)))
	}
	return h.FocusByHandleID(ctx, ids[i])
}

// FocusByIndexString is FocusByIndex for a decimal index given as text.
func (h *Handle) FocusByIndexString(ctx context.Context, index string) (*Handle, error) {
	i, err := strconv.Atoi(strings.TrimSpace(index))
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrInvalidIndex, index)
	}
	return h.FocusByIndex(ctx, i)
}

// FocusFirst focuses the first window of the session.
func (h *Handle) FocusFirst(ctx context.Context) (*Handle, error) {
	return h.FocusByIndex(ctx, 0)
}

// FocusLast focuses the last window of the session.
func (h *Handle) FocusLast(ctx context.Context) (*Handle, error) {
	return h.FocusByIndex(ctx, -1)
}

// FocusFrame focuses a frame of the current document. DefaultFrame() focuses the
// top-level document.
func (h *Handle) FocusFrame(ctx context.Context, ref FrameRef) (*Handle, error) {
	return h.wrap(h.driver.SwitchToFrame(ctx, ref))
}

// FocusParentFrame focuses the parent of the current frame.
func (h *Handle) FocusParentFrame(ctx context.Context) (*Handle, error) {
	return h.wrap(h.driver.SwitchToParentFrame(ctx))
}

// FocusTopFrame leaves every frame and focuses the top-level document.
func (h *Handle) FocusTopFrame(ctx context.Context) (*Handle, error) {
	return h.wrap(h.driver.SwitchToDefaultContent(ctx))
}

// ActiveElement returns the element holding input focus, or the body.
func (h *Handle) ActiveElement(ctx context.Context) (Element, error) {
	return h.driver.ActiveElement(ctx)
}

// ActiveAlertDialog returns the open JavaScript dialog. It fails with an alert
// NotFoundError when none is open.
func (h *Handle) ActiveAlertDialog(ctx context.Context) (Alert, error) {
	return h.driver.Alert(ctx)
}
