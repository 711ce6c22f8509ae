// pkg/browser/cdp/session.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrSessionClosed is returned by operations on a driver whose session was closed.
var ErrSessionClosed = errors.New("cdp: session is closed")

// session is the state shared by every Driver value of one isolated browser
// context: its attached tabs, open dialogs and console output.
type session struct {
	browser   *Browser
	contextID cdp.BrowserContextID
	logger    *zap.Logger
	dialogs   *dialogRegistry
	console   *consoleBuffer

	mu     sync.Mutex
	tabs   map[target.ID]*tab
	closed bool
}

// tab is a chromedp context attached to one page target.
type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(b *Browser, contextID cdp.BrowserContextID) *session {
	return &session{
		browser:   b,
		contextID: contextID,
		logger:    b.logger.With(zap.String("browser_context_id", string(contextID))),
		dialogs:   newDialogRegistry(),
		console:   newConsoleBuffer(b.opts.ConsoleBufferSize),
		tabs:      make(map[target.ID]*tab),
	}
}

// attach returns the chromedp context of a page target, attaching to it on first use.
// Attached tabs stay cached until the session closes.
func (s *session) attach(id target.ID) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if t, ok := s.tabs[id]; ok && t.ctx.Err() == nil {
		return t.ctx, nil
	}

	ctx, cancel := chromedp.NewContext(s.browser.ctx, chromedp.WithTargetID(id))
	chromedp.ListenTarget(ctx, s.listener(id))
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("cdp: failed to attach to target %s: %w", id, err)
	}
	s.tabs[id] = &tab{ctx: ctx, cancel: cancel}
	s.logger.Debug("Attached to tab.", zap.String("target_id", string(id)))
	return ctx, nil
}

func (s *session) listener(id target.ID) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			s.logger.Debug("Dialog opened.", zap.String("target_id", string(id)), zap.String("type", string(e.Type)))
			s.dialogs.opened(id, e)
		case *page.EventJavascriptDialogClosed:
			s.dialogs.closed(id)
		case *runtime.EventConsoleAPICalled:
			s.console.add(consoleFromAPICall(string(id), e))
		case *runtime.EventExceptionThrown:
			if msg, ok := consoleFromException(string(id), e); ok {
				s.console.add(msg)
			}
		}
	}
}

// pageTargets lists the page targets of the session's browser context in browser order.
func (s *session) pageTargets(ctx context.Context) ([]target.ID, error) {
	runCtx, cancel := combineContext(s.browser.ctx, ctx)
	defer cancel()
	infos, err := target.GetTargets().Do(s.browser.executor(runCtx))
	if err != nil {
		return nil, fmt.Errorf("cdp: failed to list targets: %w", err)
	}
	var ids []target.ID
	for _, info := range infos {
		if info.Type == "page" && info.BrowserContextID == s.contextID {
			ids = append(ids, info.TargetID)
		}
	}
	return ids, nil
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// close detaches every tab and disposes of the browser context.
func (s *session) close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tabs := s.tabs
	s.tabs = nil
	s.mu.Unlock()

	for _, t := range tabs {
		t.cancel()
	}
	if s.browser.ctx.Err() != nil {
		return nil
	}
	runCtx, cancel := combineContext(s.browser.ctx, ctx)
	defer cancel()
	if err := target.DisposeBrowserContext(s.contextID).Do(s.browser.executor(runCtx)); err != nil {
		s.logger.Warn("Failed to dispose of browser context. It may be orphaned.", zap.Error(err))
		return fmt.Errorf("cdp: failed to dispose of browser context: %w", err)
	}
	s.logger.Debug("Session closed.")
	return nil
}
