// pkg/browser/cdp/browser.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"sort"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	defaultWindowWidth  = 1920
	defaultWindowHeight = 1080
	disposeTimeout      = 10 * time.Second
)

// ErrBrowserClosed is returned by operations on a closed Browser.
var ErrBrowserClosed = errors.New("cdp: browser is closed")

// LaunchOptions controls how Launch obtains a browser.
type LaunchOptions struct {
	// RemoteURL attaches to a running browser's DevTools endpoint
	// (ws://host:port/devtools/browser/... or http://host:port) instead of
	// starting one.
	RemoteURL      string
	ExecPath       string
	Headless       bool
	StartMaximized bool
	WindowWidth    int
	WindowHeight   int
	// Args are extra command line switches, "--name" or "--name=value".
	Args []string
	// ConsoleBufferSize bounds the console messages kept per session.
	ConsoleBufferSize int
}

// DefaultLaunchOptions returns headless options with a 1920x1080 window.
func DefaultLaunchOptions() LaunchOptions {
	return LaunchOptions{
		Headless:          true,
		WindowWidth:       defaultWindowWidth,
		WindowHeight:      defaultWindowHeight,
		ConsoleBufferSize: defaultConsoleBufferSize,
	}
}

// Browser is a started or attached browser process.
type Browser struct {
	opts   LaunchOptions
	logger *zap.Logger

	allocCancel   context.CancelFunc
	ctx           context.Context // chromedp browser context
	cancel        context.CancelFunc
	contextCreate sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Launch starts a local browser, or attaches to opts.RemoteURL when set. ctx bounds
// the startup only; the browser lives until Close.
func Launch(ctx context.Context, opts LaunchOptions, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cdp")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.RemoteURL != "" {
		logger.Info("Attaching to remote browser.", zap.String("url", opts.RemoteURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		logger.Info("Launching local browser.", zap.Bool("headless", opts.Headless))
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	}

	sugar := logger.Sugar()
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(sugar.Errorf),
		chromedp.WithDebugf(sugar.Debugf),
	)

	// The first Run allocates the browser and is bound to the browser context, not ctx.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			cancel()
			allocCancel()
			return nil, fmt.Errorf("cdp: failed to start browser: %w", err)
		}
	case <-ctx.Done():
		cancel()
		allocCancel()
		<-started
		return nil, fmt.Errorf("cdp: browser startup aborted: %w", ctx.Err())
	}

	b := &Browser{
		opts:        opts,
		logger:      logger,
		allocCancel: allocCancel,
		ctx:         browserCtx,
		cancel:      cancel,
	}
	if version, err := b.version(ctx); err == nil {
		logger.Info("Browser ready.", zap.String("product", version))
	}
	return b, nil
}

// allocatorOptions builds the exec allocator options for a local browser.
func allocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	flags := launchFlags(opts)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, chromedp.Flag(name, flags[name]))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	return out
}

// launchFlags returns the command line switches set on top of chromedp's defaults.
func launchFlags(opts LaunchOptions) map[string]interface{} {
	flags := map[string]interface{}{
		"disable-gpu": opts.Headless,
		"headless":    opts.Headless,
	}
	if opts.StartMaximized {
		flags["start-maximized"] = true
	} else {
		w, h := opts.WindowWidth, opts.WindowHeight
		if w <= 0 || h <= 0 {
			w, h = defaultWindowWidth, defaultWindowHeight
		}
		flags["window-size"] = fmt.Sprintf("%d,%d", w, h)
	}
	if goruntime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
	}
	for _, arg := range opts.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// executor returns ctx bound to the browser-level protocol connection.
func (b *Browser) executor(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(b.ctx).Browser)
}

func (b *Browser) version(ctx context.Context) (string, error) {
	runCtx, cancel := combineContext(b.ctx, ctx)
	defer cancel()
	_, product, _, _, _, err := cdpbrowser.GetVersion().Do(b.executor(runCtx))
	return product, err
}

func (b *Browser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// NewSession creates an isolated browser context holding one blank tab and returns
// a driver focused on it.
func (b *Browser) NewSession(ctx context.Context) (*Driver, error) {
	if b.isClosed() {
		return nil, ErrBrowserClosed
	}
	b.contextCreate.Lock()
	defer b.contextCreate.Unlock()

	runCtx, cancel := combineContext(b.ctx, ctx)
	defer cancel()

	contextID, err := target.CreateBrowserContext().WithDisposeOnDetach(true).Do(b.executor(runCtx))
	if err != nil {
		return nil, fmt.Errorf("cdp: failed to create browser context: %w", err)
	}
	targetID, err := target.CreateTarget("about:blank").
		WithBrowserContextID(contextID).
		Do(b.executor(runCtx))
	if err != nil {
		b.disposeContext(contextID)
		return nil, fmt.Errorf("cdp: failed to create target: %w", err)
	}

	s := newSession(b, contextID)
	if _, err := s.attach(targetID); err != nil {
		s.close(context.WithoutCancel(ctx))
		return nil, err
	}
	s.logger.Debug("Session created.", zap.String("target_id", string(targetID)))
	return &Driver{sess: s, targetID: targetID}, nil
}

func (b *Browser) disposeContext(id cdp.BrowserContextID) {
	if b.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, disposeTimeout)
	defer cancel()
	if err := target.DisposeBrowserContext(id).Do(b.executor(ctx)); err != nil {
		b.logger.Warn("Failed to dispose of browser context. It may be orphaned.",
			zap.String("browser_context_id", string(id)), zap.Error(err))
	}
}

// Close shuts the browser down. A remote browser is only disconnected from.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	var err error
	if cerr := chromedp.Cancel(b.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
		err = fmt.Errorf("cdp: failed to close browser: %w", cerr)
	}
	b.cancel()
	b.allocCancel()
	b.logger.Info("Browser closed.")
	return err
}
