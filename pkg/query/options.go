// pkg/query/options.go
package query

import "strings"

// Mode selects how content handed to Load is parsed.
type Mode int

const (
	// ModeAuto sniffs the content: an XML declaration selects XML, anything else is HTML.
	ModeAuto Mode = iota
	// ModeHTML parses the content as an HTML document.
	ModeHTML
	// ModeXML parses the content as an XML document.
	ModeXML
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeHTML:
		return "html"
	case ModeXML:
		return "xml"
	default:
		return "unknown"
	}
}

// ParseMode maps "auto", "html" or "xml" (case-insensitive) to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, true
	case "html":
		return ModeHTML, true
	case "xml":
		return ModeXML, true
	}
	return ModeAuto, false
}

// ParseFlags tune the XML parser. The names follow the libxml options they mirror.
type ParseFlags uint

const (
	// FlagNoNet forbids network access while parsing. The parser never
	// resolves external entities, so the flag is always satisfied.
	FlagNoNet ParseFlags = 1 << iota
	// FlagNoCDATA merges CDATA sections into plain text nodes.
	FlagNoCDATA
	// FlagNoBlanks drops text nodes that only contain whitespace.
	FlagNoBlanks
	// FlagRecover parses malformed documents permissively.
	FlagRecover
)

// DefaultParseFlags are used unless WithParseFlags overrides them.
const DefaultParseFlags = FlagNoNet

// SerializeFlags tune markup serialization.
type SerializeFlags uint

const (
	// SerializeNoEmptyTag writes <a></a> instead of <a/> for empty XML elements.
	SerializeNoEmptyTag SerializeFlags = 1 << iota
)

// DefaultEncoding is the content encoding assumed when none is given.
const DefaultEncoding = "UTF-8"

// Options describe how a Document was loaded.
type Options struct {
	Encoding   string
	Mode       Mode
	ParseFlags ParseFlags
}

// DefaultOptions returns the options Load starts from before applying overrides.
func DefaultOptions() Options {
	return Options{
		Encoding:   DefaultEncoding,
		Mode:       ModeAuto,
		ParseFlags: DefaultParseFlags,
	}
}

// Option overrides one field of the default Options.
type Option func(*Options)

// WithEncoding sets the content encoding. An empty label keeps the default.
func WithEncoding(encoding string) Option {
	return func(o *Options) {
		if encoding != "" {
			o.Encoding = encoding
		}
	}
}

// WithMode forces HTML or XML parsing, or restores sniffing with ModeAuto.
func WithMode(m Mode) Option {
	return func(o *Options) { o.Mode = m }
}

// WithParseFlags replaces the parser flags. Passing 0 clears every flag.
func WithParseFlags(f ParseFlags) Option {
	return func(o *Options) { o.ParseFlags = f }
}

func isUTF8(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}
