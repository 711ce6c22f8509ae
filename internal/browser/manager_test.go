// internal/browser/manager_test.go
package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/phquery/internal/config"
	"github.com/xkilldash9x/phquery/pkg/browser"
	"github.com/xkilldash9x/phquery/pkg/browser/cdp"
)

// fakeDriver is a session driver that records what the manager asks of it.
// Focus operations are not used by the manager and stay unimplemented.
type fakeDriver struct {
	browser.Driver
	n        int
	console  []cdp.ConsoleMessage
	shotErr  error
	closeErr error
	closed   atomic.Bool
}

func (d *fakeDriver) Screenshot(context.Context) ([]byte, error) {
	if d.shotErr != nil {
		return nil, d.shotErr
	}
	return []byte("\x89PNG-" + string(rune('0'+d.n))), nil
}

func (d *fakeDriver) Source(context.Context) (string, error) {
	return "<html>session " + string(rune('0'+d.n)) + "</html>", nil
}

func (d *fakeDriver) ConsoleMessages() []cdp.ConsoleMessage { return d.console }

func (d *fakeDriver) Close(context.Context) error {
	d.closed.Store(true)
	return d.closeErr
}

type fakeProcess struct {
	mu        sync.Mutex
	drivers   []*fakeDriver
	newErr    error
	closed    atomic.Bool
	customize func(*fakeDriver)
}

func (p *fakeProcess) NewSession(context.Context) (SessionDriver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.newErr != nil {
		return nil, p.newErr
	}
	d := &fakeDriver{n: len(p.drivers)}
	if p.customize != nil {
		p.customize(d)
	}
	p.drivers = append(p.drivers, d)
	return d, nil
}

func (p *fakeProcess) Close() error {
	p.closed.Store(true)
	return nil
}

type fixture struct {
	manager  *Manager
	process  *fakeProcess
	launches *atomic.Int32
	opts     *cdp.LaunchOptions
	dirs     config.ArtifactsConfig
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.NewDefaultConfig()
	root := t.TempDir()
	cfg.ArtifactsCfg = config.ArtifactsConfig{
		ScreenshotsDir: filepath.Join(root, "screenshots"),
		SourceDir:      filepath.Join(root, "source"),
		ConsoleDir:     filepath.Join(root, "console"),
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	f := &fixture{process: &fakeProcess{}, launches: &atomic.Int32{}, opts: &cdp.LaunchOptions{}, dirs: cfg.ArtifactsCfg}
	launcher := func(_ context.Context, opts cdp.LaunchOptions, _ *zap.Logger) (Process, error) {
		f.launches.Add(1)
		*f.opts = opts
		return f.process, nil
	}
	f.manager = NewManager(cfg, zaptest.NewLogger(t), WithLauncher(launcher))
	t.Cleanup(func() { _ = f.manager.Shutdown(context.Background()) })
	return f
}

func (f *fixture) driver(s *Session) *fakeDriver { return s.Driver().(*fakeDriver) }

func TestManager_StartOnce(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.BrowserCfg.DriverURL = "http://localhost:9515"
		c.BrowserCfg.Headless = false
		c.BrowserCfg.Args = []string{"--lang=de-DE"}
	})
	ctx := context.Background()

	require.NoError(t, f.manager.Start(ctx))
	require.NoError(t, f.manager.Start(ctx))
	_, err := f.manager.NewSession(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 1, f.launches.Load())
	assert.Equal(t, "http://localhost:9515", f.opts.RemoteURL)
	assert.False(t, f.opts.Headless)
	assert.Equal(t, []string{"--lang=de-DE"}, f.opts.Args)
	assert.Equal(t, 1920, f.opts.WindowWidth)
}

func TestManager_StartFailure(t *testing.T) {
	boom := errors.New("no chrome")
	m := NewManager(config.NewDefaultConfig(), zaptest.NewLogger(t), WithLauncher(
		func(context.Context, cdp.LaunchOptions, *zap.Logger) (Process, error) { return nil, boom }))

	err := m.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = m.NewSession(context.Background())
	assert.ErrorIs(t, err, boom, "the start error is sticky")
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_SessionRate(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.BrowserCfg.SessionRate = 0.5 })
	ctx := context.Background()

	_, err := f.manager.NewSession(ctx)
	require.NoError(t, err, "the first session uses the burst")

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = f.manager.NewSession(short)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waiting to open a session")
	assert.Len(t, f.manager.Sessions(), 1)
}

func TestManager_PrimaryAndSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	primary, err := f.manager.Primary(ctx)
	require.NoError(t, err)
	again, err := f.manager.Primary(ctx)
	require.NoError(t, err)
	assert.Same(t, primary, again)
	assert.NotEmpty(t, primary.ID())
	assert.NotNil(t, primary.Handle())
	assert.False(t, primary.Created().IsZero())

	extra, err := f.manager.NewSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, primary.ID(), extra.ID())
	assert.Equal(t, []*Session{primary, extra}, f.manager.Sessions())

	require.NoError(t, extra.Close(ctx))
	assert.True(t, extra.Closed())
	assert.True(t, f.driver(extra).closed.Load())
	assert.Equal(t, []*Session{primary}, f.manager.Sessions())
	require.NoError(t, extra.Close(ctx), "closing twice is a no-op")
}

func TestManager_Browse(t *testing.T) {
	t.Run("reuses the primary and closes the rest", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		primary, err := f.manager.Primary(ctx)
		require.NoError(t, err)

		var got []*Session
		err = f.manager.Browse(ctx, "Tests\\Feature\\LoginTest", 3, func(_ context.Context, sessions ...*Session) error {
			got = sessions
			return nil
		})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Same(t, primary, got[0])
		assert.False(t, got[0].Closed())
		assert.True(t, got[1].Closed())
		assert.True(t, got[2].Closed())
		assert.Equal(t, []*Session{primary}, f.manager.Sessions())
		assert.Len(t, f.process.drivers, 3)

		entries, _ := os.ReadDir(f.dirs.ScreenshotsDir)
		assert.Empty(t, entries, "no failure artifacts after success")
	})

	t.Run("failure stores screenshots and sources", func(t *testing.T) {
		f := newFixture(t)
		boom := errors.New("assertion failed")
		err := f.manager.Browse(context.Background(), "Tests\\LoginTest", 2, func(context.Context, ...*Session) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)

		for _, path := range []string{
			filepath.Join(f.dirs.ScreenshotsDir, "failure-Tests_LoginTest-0.png"),
			filepath.Join(f.dirs.ScreenshotsDir, "failure-Tests_LoginTest-1.png"),
		} {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(data), "\x89PNG"))
		}
		src, err := os.ReadFile(filepath.Join(f.dirs.SourceDir, "Tests_LoginTest-1.txt"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(src), "<html>session "))
		assert.Len(t, f.manager.Sessions(), 1)
	})

	t.Run("panics are re-raised after cleanup", func(t *testing.T) {
		f := newFixture(t)
		var extra *Session
		assert.PanicsWithValue(t, "kaboom", func() {
			_ = f.manager.Browse(context.Background(), "panicky", 2, func(_ context.Context, s ...*Session) error {
				extra = s[1]
				panic("kaboom")
			})
		})
		assert.True(t, extra.Closed())
		_, err := os.Stat(filepath.Join(f.dirs.ScreenshotsDir, "failure-panicky-0.png"))
		assert.NoError(t, err)
	})

	t.Run("console logs are stored in all cases", func(t *testing.T) {
		f := newFixture(t)
		f.process.customize = func(d *fakeDriver) {
			if d.n == 0 {
				d.console = []cdp.ConsoleMessage{
					{TargetID: "T1", Level: "log", Text: "ready"},
					{TargetID: "T1", Level: "error", Text: "boom"},
				}
			}
		}
		_, err := f.manager.Primary(context.Background())
		require.NoError(t, err)
		require.NoError(t, f.manager.Browse(context.Background(), "console", 2, func(context.Context, ...*Session) error { return nil }))

		data, err := os.ReadFile(filepath.Join(f.dirs.ConsoleDir, "console-0.log"))
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 2)
		var msg cdp.ConsoleMessage
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &msg))
		assert.Equal(t, "error", msg.Level)
		assert.Equal(t, "boom", msg.Text)

		_, err = os.Stat(filepath.Join(f.dirs.ConsoleDir, "console-1.log"))
		assert.True(t, os.IsNotExist(err), "sessions without output get no log")
	})

	t.Run("artifact errors do not mask the run error", func(t *testing.T) {
		f := newFixture(t)
		f.process.customize = func(d *fakeDriver) { d.shotErr = errors.New("tab crashed") }
		boom := errors.New("boom")
		err := f.manager.Browse(context.Background(), "crash", 1, func(context.Context, ...*Session) error { return boom })
		assert.Equal(t, boom, err)
	})

	t.Run("invalid count", func(t *testing.T) {
		f := newFixture(t)
		err := f.manager.Browse(context.Background(), "none", 0, func(context.Context, ...*Session) error { return nil })
		assert.Error(t, err)
		assert.Zero(t, f.launches.Load())
	})

	t.Run("session creation failure", func(t *testing.T) {
		f := newFixture(t)
		f.process.newErr = errors.New("context limit")
		called := false
		err := f.manager.Browse(context.Background(), "x", 2, func(context.Context, ...*Session) error {
			called = true
			return nil
		})
		assert.ErrorContains(t, err, "context limit")
		assert.False(t, called)
	})
}

func TestManager_CloseAllButPrimary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.CloseAllButPrimary(ctx), "nothing to close")

	var sessions []*Session
	for i := 0; i < 3; i++ {
		s, err := f.manager.NewSession(ctx)
		require.NoError(t, err)
		sessions = append(sessions, s)
	}
	f.driver(sessions[2]).closeErr = errors.New("already gone")

	err := f.manager.CloseAllButPrimary(ctx)
	assert.ErrorContains(t, err, "already gone")
	assert.Equal(t, []*Session{sessions[0]}, f.manager.Sessions())
	assert.True(t, sessions[1].Closed())
	assert.True(t, sessions[2].Closed())
}

func TestManager_Shutdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	one, err := f.manager.NewSession(ctx)
	require.NoError(t, err)
	two, err := f.manager.NewSession(ctx)
	require.NoError(t, err)

	require.NoError(t, f.manager.Shutdown(ctx))
	assert.True(t, one.Closed())
	assert.True(t, two.Closed())
	assert.True(t, f.process.closed.Load())
	assert.Empty(t, f.manager.Sessions())

	_, err = f.manager.NewSession(ctx)
	assert.ErrorIs(t, err, ErrManagerShutdown)
	assert.NoError(t, f.manager.Shutdown(ctx), "shutting down twice is a no-op")
}

func TestShutdown_NeverStarted(t *testing.T) {
	m := NewManager(config.NewDefaultConfig(), nil)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestArtifacts_DisabledDirectories(t *testing.T) {
	a := &artifactStore{logger: zaptest.NewLogger(t)}
	s := newSession("s", &fakeDriver{console: []cdp.ConsoleMessage{{Text: "x"}}}, zaptest.NewLogger(t))
	ctx := context.Background()
	assert.Nil(t, a.captureFailures(ctx, "n", []*Session{s}))
	assert.Nil(t, a.storeSources(ctx, "n", []*Session{s}))
	assert.Nil(t, a.storeConsoleLogs("n", []*Session{s}))
}

func TestArtifactName(t *testing.T) {
	assert.Equal(t, "Tests_Browser_ExampleTest", artifactName(`Tests\Browser\ExampleTest`))
	assert.Equal(t, "a_b_c", artifactName("a/b c"))
	assert.Equal(t, "browse", artifactName("  "))
}

func TestLaunchOptions(t *testing.T) {
	opts := launchOptions(config.BrowserConfig{
		DriverURL:      "ws://remote",
		ExecPath:       "/opt/chrome",
		Headless:       true,
		StartMaximized: true,
		WindowWidth:    0,
		WindowHeight:   600,
	})
	assert.Equal(t, "ws://remote", opts.RemoteURL)
	assert.Equal(t, "/opt/chrome", opts.ExecPath)
	assert.True(t, opts.StartMaximized)
	assert.Equal(t, 1920, opts.WindowWidth, "incomplete sizes keep the default")
	assert.Equal(t, 1080, opts.WindowHeight)
	assert.Positive(t, opts.ConsoleBufferSize)
}
