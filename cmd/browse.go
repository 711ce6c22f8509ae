// File: cmd/browse.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/phquery/internal/browser"
	"github.com/xkilldash9x/phquery/internal/config"
	"github.com/xkilldash9x/phquery/internal/observability"
	phbrowser "github.com/xkilldash9x/phquery/pkg/browser"
)

const shutdownGracePeriod = 15 * time.Second

// newManager is swapped in tests to run against a fake browser.
var newManager = func(cfg config.Interface, logger *zap.Logger) *browser.Manager {
	return browser.NewManager(cfg, logger)
}

// page is what the browse command needs from a driver beyond window focus.
type page interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
}

// pageInfo is the JSON shape of one open window.
type pageInfo struct {
	Index  int    `json:"index"`
	Handle string `json:"handle"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

type browseOptions struct {
	windows bool
	name    string
	timeout time.Duration
}

func newBrowseCmd() *cobra.Command {
	opts := &browseOptions{}
	cmd := &cobra.Command{
		Use:   "browse <url> [url...]",
		Short: "Open pages in a browser session and list its windows",
		Long: `Opens the first URL in a fresh browser session and every further URL in a new
tab, then prints the session's windows as JSON. Screenshots and page sources are
stored in the configured artifact directories when a page fails to load.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}
			return runBrowse(ctx, cmd.OutOrStdout(), cfg, opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.windows, "windows", false, "open extra URLs in new windows instead of tabs")
	cmd.Flags().StringVar(&opts.name, "name", "browse", "run name used for artifact file names")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall time limit, 0 for none")
	return cmd
}

func runBrowse(ctx context.Context, w io.Writer, cfg config.Interface, opts *browseOptions, urls []string) error {
	logger := observability.GetLogger()
	mgr := newManager(cfg, logger)
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGracePeriod)
		defer cancel()
		if err := mgr.Shutdown(sctx); err != nil {
			logger.Warn("Browser shutdown incomplete.", zap.Error(err))
		}
	}()

	return mgr.Browse(ctx, opts.name, 1, func(ctx context.Context, sessions ...*browser.Session) error {
		h := sessions[0].Handle()
		if err := navigate(ctx, h, urls[0]); err != nil {
			return err
		}
		for _, u := range urls[1:] {
			next, err := openWindow(ctx, h, opts.windows)
			if err != nil {
				return err
			}
			if err := navigate(ctx, next, u); err != nil {
				return err
			}
		}

		pages, err := describe(ctx, h)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(pages, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	})
}

func openWindow(ctx context.Context, h *phbrowser.Handle, window bool) (*phbrowser.Handle, error) {
	if window {
		return h.OpenWindow(ctx)
	}
	return h.OpenTab(ctx)
}

func pageOf(h *phbrowser.Handle) (page, error) {
	p, ok := h.Driver().(page)
	if !ok {
		return nil, fmt.Errorf("driver %T cannot load pages", h.Driver())
	}
	return p, nil
}

func navigate(ctx context.Context, h *phbrowser.Handle, url string) error {
	p, err := pageOf(h)
	if err != nil {
		return err
	}
	observability.GetLogger().Info("Opening page.", zap.String("url", url))
	return p.Navigate(ctx, url)
}

// describe lists every window of the session in handle order.
func describe(ctx context.Context, h *phbrowser.Handle) ([]pageInfo, error) {
	ids, err := h.AllHandleIDs(ctx)
	if err != nil {
		return nil, err
	}
	pages := make([]pageInfo, 0, len(ids))
	for i := range ids {
		focused, err := h.FocusByIndex(ctx, i)
		if err != nil {
			return nil, err
		}
		p, err := pageOf(focused)
		if err != nil {
			return nil, err
		}
		title, err := p.Title(ctx)
		if err != nil {
			return nil, err
		}
		url, err := p.URL(ctx)
		if err != nil {
			return nil, err
		}
		pages = append(pages, pageInfo{Index: i, Handle: ids[i], Title: title, URL: url})
	}
	return pages, nil
}
