// pkg/browser/errors.go
package browser

import (
	"errors"
	"fmt"
)

// Kinds of browsing-context objects a lookup can fail to find.
const (
	KindWindow  = "window"
	KindFrame   = "frame"
	KindAlert   = "alert"
	KindElement = "element"
)

var (
	// ErrNotFound matches every *NotFoundError through errors.Is.
	ErrNotFound = errors.New("not found")
	// ErrInvalidIndex is returned when a window index string is not a number.
	ErrInvalidIndex = errors.New("invalid window index")
)

// NotFoundError reports that the remote browser has no window, frame, alert or
// element matching a reference. Drivers return it so callers can classify failures
// with errors.As instead of matching messages.
type NotFoundError struct {
	Kind string
	Ref  string
	Err  error // Underlying protocol error, if any
}

// NewNotFoundError creates a NotFoundError for kind and ref.
func NewNotFoundError(kind, ref string, err error) *NotFoundError {
	return &NotFoundError{Kind: kind, Ref: ref, Err: err}
}

func (e *NotFoundError) Error() string {
	msg := "no such " + e.Kind
	if e.Ref != "" {
		msg += fmt.Sprintf(" %q", e.Ref)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrNotFound) true for any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Unwrap provides the underlying error for use with errors.Is/As.
func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a not-found error, optionally of one of the given kinds.
func IsNotFound(err error, kinds ...string) bool {
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return false
	}
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if nf.Kind == k {
			return true
		}
	}
	return false
}
