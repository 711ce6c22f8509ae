// File: cmd/query.go
package cmd

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/phquery/internal/observability"
	"github.com/xkilldash9x/phquery/pkg/query"
)

// Output formats of the query command.
const (
	outputOuter   = "outer"
	outputInner   = "inner"
	outputText    = "text"
	outputContent = "content"
	outputJSON    = "json"
	outputCount   = "count"
)

type queryOptions struct {
	xpath      string
	css        string
	index      int
	output     string
	raw        bool
	noEmptyTag bool
	recover    bool
	noBlanks   bool
	noCDATA    bool
}

// nodeInfo is the JSON shape of one matched node.
type nodeInfo struct {
	Index  int      `json:"index"`
	Kind   string   `json:"kind"`
	Name   string   `json:"name,omitempty"`
	Text   []string `json:"text,omitempty"`
	Markup string   `json:"markup"`
}

func newQueryCmd(v *viper.Viper) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query [file]",
		Short: "Load an HTML or XML document and print the selected nodes",
		Long: `Loads a document from a file, or from stdin when the file is "-" or missing,
narrows it with an optional XPath expression and CSS selector, and prints the
first matched node's markup or direct text. The json output lists every match.
Files ending in .gz or .br are decompressed while reading.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			mode, ok := query.ParseMode(cfg.Query().Mode)
			if !ok {
				return fmt.Errorf("unknown mode %q", cfg.Query().Mode)
			}

			in, closeIn, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer closeIn()

			loadOpts := []query.Option{
				query.WithMode(mode),
				query.WithEncoding(cfg.Query().Encoding),
				query.WithParseFlags(opts.parseFlags()),
			}
			doc, err := query.LoadReader(in, loadOpts...)
			if err != nil {
				return err
			}
			observability.GetLogger().Debug("Document loaded.",
				zap.Stringer("mode", doc.Mode()), zap.String("encoding", doc.Options().Encoding))

			doc, err = opts.narrow(doc)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), doc)
		},
	}

	flags := cmd.Flags()
	flags.String("mode", "auto", "parse mode: auto, html or xml")
	flags.String("encoding", "UTF-8", "content encoding")
	flags.StringVar(&opts.xpath, "xpath", "", "narrow to the nodes matching an XPath expression")
	flags.StringVar(&opts.css, "css", "", "narrow to the descendants matching a CSS selector (HTML only)")
	flags.IntVar(&opts.index, "eq", -1, "keep only the match at this index")
	flags.StringVarP(&opts.output, "output", "o", outputOuter, "output: outer, inner, text, content, json or count")
	flags.BoolVar(&opts.raw, "raw", false, "print direct text without whitespace normalization")
	flags.BoolVar(&opts.noEmptyTag, "no-empty-tag", false, "serialize empty XML elements as <a></a>")
	flags.BoolVar(&opts.recover, "recover", false, "parse malformed XML permissively")
	flags.BoolVar(&opts.noBlanks, "no-blanks", false, "drop whitespace-only XML text nodes")
	flags.BoolVar(&opts.noCDATA, "no-cdata", false, "merge XML CDATA sections into text")

	// Flags take precedence over the config file and the environment.
	_ = v.BindPFlag("query.mode", flags.Lookup("mode"))
	_ = v.BindPFlag("query.encoding", flags.Lookup("encoding"))
	return cmd
}

func openInput(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open document: %w", err)
	}
	closeFile := func() { _ = f.Close() }

	switch strings.ToLower(filepath.Ext(args[0])) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			closeFile()
			return nil, nil, fmt.Errorf("failed to read gzip document: %w", err)
		}
		return zr, func() { _ = zr.Close(); closeFile() }, nil
	case ".br":
		return brotli.NewReader(f), closeFile, nil
	}
	return f, closeFile, nil
}

func (o *queryOptions) parseFlags() query.ParseFlags {
	flags := query.DefaultParseFlags
	if o.recover {
		flags |= query.FlagRecover
	}
	if o.noBlanks {
		flags |= query.FlagNoBlanks
	}
	if o.noCDATA {
		flags |= query.FlagNoCDATA
	}
	return flags
}

func (o *queryOptions) serializeFlags() query.SerializeFlags {
	if o.noEmptyTag {
		return query.SerializeNoEmptyTag
	}
	return 0
}

func (o *queryOptions) narrow(doc *query.Document) (*query.Document, error) {
	var err error
	if o.xpath != "" {
		if doc, err = doc.XPath(o.xpath); err != nil {
			return nil, err
		}
	}
	if o.css != "" {
		if doc, err = doc.Find(o.css); err != nil {
			return nil, err
		}
	}
	if o.index >= 0 {
		doc = doc.Eq(o.index)
	}
	return doc, nil
}

func (o *queryOptions) print(w io.Writer, doc *query.Document) error {
	var out string
	var err error
	switch strings.ToLower(o.output) {
	case outputOuter:
		out, err = doc.OuterMarkup(o.serializeFlags())
	case outputInner:
		out, err = doc.InnerMarkup(o.serializeFlags())
	case outputText:
		out = strings.Join(doc.DirectText(!o.raw), "\n")
	case outputContent:
		out, err = doc.Text()
	case outputCount:
		out = fmt.Sprint(doc.Count())
	case outputJSON:
		return o.printJSON(w, doc)
	default:
		return fmt.Errorf("unknown output %q", o.output)
	}
	if errors.Is(err, query.ErrEmptyNodeList) {
		return errors.New("no nodes matched")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func (o *queryOptions) printJSON(w io.Writer, doc *query.Document) error {
	infos := make([]nodeInfo, 0, doc.Count())
	for i := 0; i < doc.Count(); i++ {
		n := doc.Eq(i)
		markup, err := n.OuterMarkup(o.serializeFlags())
		if err != nil {
			return err
		}
		name, _ := n.NodeName()
		infos = append(infos, nodeInfo{
			Index:  i,
			Kind:   n.Kind().String(),
			Name:   name,
			Text:   n.DirectText(!o.raw),
			Markup: markup,
		})
	}
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
