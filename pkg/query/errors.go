package query

import "errors"

var (
	// ErrEmptyNodeList is returned by operations that need a first node when the list has none.
	ErrEmptyNodeList = errors.New("the current node list is empty")
	// ErrUnsupportedSelector is returned when a selector kind cannot be applied in the document's mode.
	ErrUnsupportedSelector = errors.New("selector is not supported for this document mode")
)

// ParseError wraps a failure reported by the underlying HTML or XML parser.
type ParseError struct {
	Mode Mode
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse " + e.Mode.String() + " content: " + e.Err.Error()
}

// Unwrap returns the parser's error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
