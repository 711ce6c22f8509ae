// pkg/browser/cdp/alert.go
package cdp

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/phquery/pkg/browser"
)

// dialogRegistry tracks the JavaScript dialog currently open in each tab of a session.
type dialogRegistry struct {
	mu   sync.Mutex
	open map[target.ID]*page.EventJavascriptDialogOpening
}

func newDialogRegistry() *dialogRegistry {
	return &dialogRegistry{open: make(map[target.ID]*page.EventJavascriptDialogOpening)}
}

func (r *dialogRegistry) opened(id target.ID, ev *page.EventJavascriptDialogOpening) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open[id] = ev
}

func (r *dialogRegistry) closed(id target.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, id)
}

func (r *dialogRegistry) current(id target.ID) (*page.EventJavascriptDialogOpening, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.open[id]
	return ev, ok
}

// Alert is an open JavaScript dialog of a tab. Text entered with SendKeys is
// submitted by Accept.
type Alert struct {
	ev       *page.EventJavascriptDialogOpening
	targetID target.ID
	tab      context.Context
	dialogs  *dialogRegistry

	mu         sync.Mutex
	promptText *string
}

var _ browser.Alert = (*Alert)(nil)

// Text returns the dialog message.
func (a *Alert) Text() string { return a.ev.Message }

// Type returns alert, confirm, prompt or beforeunload.
func (a *Alert) Type() string { return string(a.ev.Type) }

// DefaultPrompt returns the prefilled value of a prompt dialog.
func (a *Alert) DefaultPrompt() string { return a.ev.DefaultPrompt }

// Accept presses OK, submitting any text set with SendKeys.
func (a *Alert) Accept(ctx context.Context) error {
	a.mu.Lock()
	action := page.HandleJavaScriptDialog(true)
	if a.promptText != nil {
		action = action.WithPromptText(*a.promptText)
	}
	a.mu.Unlock()
	return a.handle(ctx, action)
}

// Dismiss presses Cancel.
func (a *Alert) Dismiss(ctx context.Context) error {
	return a.handle(ctx, page.HandleJavaScriptDialog(false))
}

// SendKeys sets the text a prompt dialog submits on Accept.
func (a *Alert) SendKeys(_ context.Context, text string) error {
	if a.ev.Type != page.DialogTypePrompt {
		return fmt.Errorf("cdp: %s dialog does not accept text", a.ev.Type)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.promptText = &text
	return nil
}

func (a *Alert) handle(ctx context.Context, action *page.HandleJavaScriptDialogParams) error {
	if _, ok := a.dialogs.current(a.targetID); !ok {
		return browser.NewNotFoundError(browser.KindAlert, string(a.targetID), nil)
	}
	runCtx, cancel := combineContext(a.tab, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, action); err != nil {
		return fmt.Errorf("cdp: failed to handle %s dialog: %w", a.ev.Type, err)
	}
	a.dialogs.closed(a.targetID)
	return nil
}
