// internal/browser/launcher.go
package browser

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/phquery/internal/config"
	"github.com/xkilldash9x/phquery/pkg/browser"
	"github.com/xkilldash9x/phquery/pkg/browser/cdp"
)

// SessionDriver is the driver a session starts with: a browser.Driver that can
// also produce the artifacts stored for failed runs, and end the session.
type SessionDriver interface {
	browser.Driver
	Screenshot(ctx context.Context) ([]byte, error)
	Source(ctx context.Context) (string, error)
	ConsoleMessages() []cdp.ConsoleMessage
	Close(ctx context.Context) error
}

// Process is a running browser that hands out isolated sessions.
type Process interface {
	NewSession(ctx context.Context) (SessionDriver, error)
	Close() error
}

// Launcher starts or attaches to the browser process.
type Launcher func(ctx context.Context, opts cdp.LaunchOptions, logger *zap.Logger) (Process, error)

// CDPLauncher launches Chrome through the DevTools protocol.
func CDPLauncher(ctx context.Context, opts cdp.LaunchOptions, logger *zap.Logger) (Process, error) {
	b, err := cdp.Launch(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	return &cdpProcess{b: b}, nil
}

type cdpProcess struct {
	b *cdp.Browser
}

func (p *cdpProcess) NewSession(ctx context.Context) (SessionDriver, error) {
	d, err := p.b.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (p *cdpProcess) Close() error { return p.b.Close() }

// launchOptions maps the browser configuration onto launch options.
func launchOptions(c config.BrowserConfig) cdp.LaunchOptions {
	opts := cdp.DefaultLaunchOptions()
	opts.RemoteURL = c.DriverURL
	opts.ExecPath = c.ExecPath
	opts.Headless = c.Headless
	opts.StartMaximized = c.StartMaximized
	if c.WindowWidth > 0 && c.WindowHeight > 0 {
		opts.WindowWidth, opts.WindowHeight = c.WindowWidth, c.WindowHeight
	}
	opts.Args = append([]string(nil), c.Args...)
	if c.ConsoleBufferSize > 0 {
		opts.ConsoleBufferSize = c.ConsoleBufferSize
	}
	return opts
}
