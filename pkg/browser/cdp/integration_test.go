// pkg/browser/cdp/integration_test.go
package cdp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/phquery/pkg/browser"
)

const integrationTimeout = 60 * time.Second

var chromeNames = []string{
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
}

// newTestBrowser launches a browser for the test, or attaches to PHQUERY_DRIVER_URL.
// The test is skipped when neither is available.
func newTestBrowser(t *testing.T) *Browser {
	t.Helper()
	if testing.Short() {
		t.Skip("browser integration test skipped in short mode")
	}
	opts := DefaultLaunchOptions()
	if url := os.Getenv("PHQUERY_DRIVER_URL"); url != "" {
		opts.RemoteURL = url
	} else {
		found := false
		for _, name := range chromeNames {
			if _, err := exec.LookPath(name); err == nil {
				found = true
				break
			}
		}
		if !found {
			t.Skip("no Chrome or Chromium binary found")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), integrationTimeout)
	defer cancel()
	b, err := Launch(ctx, opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func newTestSession(t *testing.T) (context.Context, *browser.Handle) {
	t.Helper()
	b := newTestBrowser(t)
	ctx, cancel := context.WithTimeout(context.Background(), integrationTimeout)
	t.Cleanup(cancel)

	d, err := b.NewSession(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return ctx, browser.NewHandle(d)
}

func serve(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func driverOf(h *browser.Handle) *Driver {
	return h.Driver().(*Driver)
}

func TestIntegration_Windows(t *testing.T) {
	ctx, h := newTestSession(t)

	ids, err := h.AllHandleIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	first, err := h.CurrentHandleID(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[0], first)

	tab, err := h.OpenTab(ctx)
	require.NoError(t, err)
	win, err := tab.OpenWindow(ctx)
	require.NoError(t, err)

	ids, err = win.AllHandleIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	tabID, err := tab.CurrentHandleID(ctx)
	require.NoError(t, err)
	winID, err := win.CurrentHandleID(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first, tabID, winID}, ids)

	for n := range ids {
		byIndex, err := h.FocusByIndex(ctx, n)
		require.NoError(t, err)
		got, err := byIndex.CurrentHandleID(ctx)
		require.NoError(t, err)
		assert.Equal(t, ids[n], got)
	}

	last, err := h.FocusLast(ctx)
	require.NoError(t, err)
	lastID, _ := last.CurrentHandleID(ctx)
	assert.Equal(t, ids[len(ids)-1], lastID)

	_, err = h.FocusByIndex(ctx, len(ids))
	assert.True(t, browser.IsNotFound(err, browser.KindWindow))
	_, err = h.FocusByHandleID(ctx, "no-such-target")
	assert.True(t, browser.IsNotFound(err, browser.KindWindow))
}

func TestIntegration_SessionsAreIsolated(t *testing.T) {
	b := newTestBrowser(t)
	ctx, cancel := context.WithTimeout(context.Background(), integrationTimeout)
	defer cancel()

	one, err := b.NewSession(ctx)
	require.NoError(t, err)
	two, err := b.NewSession(ctx)
	require.NoError(t, err)
	defer two.Close(ctx)

	_, err = one.NewWindow(ctx, browser.WindowTypeTab)
	require.NoError(t, err)

	ids, err := two.WindowHandles(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.NotEqual(t, one.BrowserContextID(), two.BrowserContextID())

	require.NoError(t, one.Close(ctx))
	_, err = one.NewWindow(ctx, browser.WindowTypeTab)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestIntegration_Frames(t *testing.T) {
	srv := serve(t, map[string]string{
		"/":      `<html><body><p>outer</p><iframe src="/a"></iframe><iframe name="second" src="/b"></iframe></body></html>`,
		"/a":     `<html><body><p>frame-a</p><iframe id="deep" src="/inner"></iframe></body></html>`,
		"/b":     `<html><body><p>frame-b</p></body></html>`,
		"/inner": `<html><body><p>inner</p></body></html>`,
	})
	ctx, h := newTestSession(t)
	require.NoError(t, driverOf(h).Navigate(ctx, srv.URL))

	source := func(h *browser.Handle) string {
		t.Helper()
		var html string
		require.Eventually(t, func() bool {
			s, err := driverOf(h).Source(ctx)
			html = s
			return err == nil && strings.Contains(s, "<p>")
		}, 10*time.Second, 100*time.Millisecond)
		return html
	}

	second, err := h.FocusFrame(ctx, browser.FrameName("second"))
	require.NoError(t, err)
	assert.Contains(t, source(second), "frame-b")

	first, err := h.FocusFrame(ctx, browser.FrameIndex(0))
	require.NoError(t, err)
	assert.Contains(t, source(first), "frame-a")

	deep, err := first.FocusFrame(ctx, browser.FrameName("deep"))
	require.NoError(t, err)
	assert.Contains(t, source(deep), "inner")

	parent, err := deep.FocusParentFrame(ctx)
	require.NoError(t, err)
	assert.Contains(t, source(parent), "frame-a")

	top, err := deep.FocusTopFrame(ctx)
	require.NoError(t, err)
	assert.Contains(t, source(top), "outer")

	_, err = h.FocusFrame(ctx, browser.FrameIndex(5))
	assert.True(t, browser.IsNotFound(err, browser.KindFrame))
	_, err = h.FocusFrame(ctx, browser.FrameName("missing"))
	assert.True(t, browser.IsNotFound(err, browser.KindFrame))
}

func TestIntegration_ActiveElement(t *testing.T) {
	srv := serve(t, map[string]string{
		"/":      `<html><body><input id="q" type="text"></body></html>`,
		"/focus": `<html><body><input id="q" type="text"><script>document.getElementById("q").focus()</script></body></html>`,
	})
	ctx, h := newTestSession(t)

	require.NoError(t, driverOf(h).Navigate(ctx, srv.URL))
	el, err := h.ActiveElement(ctx)
	require.NoError(t, err)
	assert.Equal(t, "body", el.TagName())

	require.NoError(t, driverOf(h).Navigate(ctx, srv.URL+"/focus"))
	el, err = h.ActiveElement(ctx)
	require.NoError(t, err)
	assert.Equal(t, "input", el.TagName())
	id, ok := el.Attribute("id")
	assert.True(t, ok)
	assert.Equal(t, "q", id)
}

func TestIntegration_AlertDialogs(t *testing.T) {
	ctx, h := newTestSession(t)
	d := driverOf(h)

	_, err := h.ActiveAlertDialog(ctx)
	require.True(t, browser.IsNotFound(err, browser.KindAlert))

	waitForDialog := func() browser.Alert {
		t.Helper()
		var a browser.Alert
		require.Eventually(t, func() bool {
			a, err = h.ActiveAlertDialog(ctx)
			return err == nil
		}, 10*time.Second, 50*time.Millisecond)
		return a
	}

	require.NoError(t, d.run(ctx, chromedp.Evaluate(`setTimeout(() => alert("hi"), 10)`, nil)))
	a := waitForDialog()
	assert.Equal(t, "hi", a.Text())
	assert.Equal(t, "alert", a.Type())
	require.NoError(t, a.Accept(ctx))
	_, err = h.ActiveAlertDialog(ctx)
	assert.True(t, browser.IsNotFound(err, browser.KindAlert))

	require.NoError(t, d.run(ctx, chromedp.Evaluate(`setTimeout(() => { window.answer = prompt("name?", "def") }, 10)`, nil)))
	a = waitForDialog()
	assert.Equal(t, "def", a.(*Alert).DefaultPrompt())
	require.NoError(t, a.SendKeys(ctx, "bob"))
	require.NoError(t, a.Accept(ctx))

	var answer string
	require.Eventually(t, func() bool {
		return d.run(ctx, chromedp.Evaluate(`window.answer || ""`, &answer)) == nil && answer == "bob"
	}, 10*time.Second, 50*time.Millisecond)

	require.NoError(t, d.run(ctx, chromedp.Evaluate(`setTimeout(() => { window.ok = confirm("sure?") }, 10)`, nil)))
	a = waitForDialog()
	require.NoError(t, a.Dismiss(ctx))
	assert.Eventually(t, func() bool {
		var dismissed bool
		return d.run(ctx, chromedp.Evaluate(`window.ok === false`, &dismissed)) == nil && dismissed
	}, 10*time.Second, 50*time.Millisecond)
}

func TestIntegration_PageExtras(t *testing.T) {
	srv := serve(t, map[string]string{
		"/": `<html><head><title>Hello</title></head><body><script>console.log("ready", 1)</script></body></html>`,
	})
	ctx, h := newTestSession(t)
	d := driverOf(h)

	require.NoError(t, d.Navigate(ctx, srv.URL))
	title, err := d.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello", title)

	url, err := d.URL(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, srv.URL))

	png, err := d.Screenshot(ctx)
	require.NoError(t, err)
	assert.True(t, len(png) > 8 && string(png[1:4]) == "PNG")

	assert.Eventually(t, func() bool {
		for _, m := range d.ConsoleMessages() {
			if m.Text == "ready 1" && m.Level == "log" {
				return true
			}
		}
		return false
	}, 10*time.Second, 50*time.Millisecond)
}
