// pkg/browser/driver.go
package browser

import (
	"context"
	"strconv"
)

// WindowType selects what kind of browsing context NewWindow creates.
type WindowType int

const (
	WindowTypeTab WindowType = iota
	WindowTypeWindow
)

func (t WindowType) String() string {
	if t == WindowTypeWindow {
		return "window"
	}
	return "tab"
}

// Driver is a remote browser control client bound to one focused window and frame.
//
// Implementations are values: operations that change focus return the driver to use
// from then on and leave the receiver as it was.
type Driver interface {
	// NewWindow opens a tab or window and returns a driver focused on it.
	NewWindow(ctx context.Context, kind WindowType) (Driver, error)
	// WindowHandle returns the handle of the focused window, or "" when it has none.
	WindowHandle(ctx context.Context) (string, error)
	// WindowHandles returns the handles of every open window in browser order.
	WindowHandles(ctx context.Context) ([]string, error)
	SwitchToWindow(ctx context.Context, handle string) (Driver, error)
	SwitchToFrame(ctx context.Context, ref FrameRef) (Driver, error)
	SwitchToParentFrame(ctx context.Context) (Driver, error)
	SwitchToDefaultContent(ctx context.Context) (Driver, error)
	ActiveElement(ctx context.Context) (Element, error)
	// Alert returns the currently open JavaScript dialog.
	Alert(ctx context.Context) (Alert, error)
}

// Element is a reference to a node in the remote document.
type Element interface {
	TagName() string
	Attribute(name string) (string, bool)
}

// Alert is an open JavaScript dialog (alert, confirm, prompt or beforeunload).
type Alert interface {
	Text() string
	Type() string
	Accept(ctx context.Context) error
	Dismiss(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
}

type frameRefKind int

const (
	frameDefault frameRefKind = iota
	frameIndex
	frameName
	frameElement
)

// FrameRef identifies a frame to focus: by position, by name or id, by element,
// or the top-level document.
type FrameRef struct {
	kind    frameRefKind
	index   int
	name    string
	element Element
}

// FrameIndex refers to the i-th frame element of the focused document.
func FrameIndex(i int) FrameRef { return FrameRef{kind: frameIndex, index: i} }

// FrameName refers to the frame whose name or id is name.
func FrameName(name string) FrameRef { return FrameRef{kind: frameName, name: name} }

// FrameElement refers to the frame backed by the given frame element.
func FrameElement(e Element) FrameRef { return FrameRef{kind: frameElement, element: e} }

// DefaultFrame refers to the top-level document.
func DefaultFrame() FrameRef { return FrameRef{} }

// IsDefault reports whether the ref points at the top-level document.
func (r FrameRef) IsDefault() bool { return r.kind == frameDefault }

// Index returns the frame position and whether the ref is positional.
func (r FrameRef) Index() (int, bool) { return r.index, r.kind == frameIndex }

// Name returns the frame name and whether the ref is by name.
func (r FrameRef) Name() (string, bool) { return r.name, r.kind == frameName }

// Element returns the frame element and whether the ref is by element.
func (r FrameRef) Element() (Element, bool) { return r.element, r.kind == frameElement }

func (r FrameRef) String() string {
	switch r.kind {
	case frameIndex:
		return strconv.Itoa(r.index)
	case frameName:
		return r.name
	case frameElement:
		if r.element != nil {
			return "<" + r.element.TagName() + ">"
		}
		return "<nil>"
	default:
		return "default"
	}
}
