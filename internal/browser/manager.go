// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/phquery/internal/config"
)

const artifactTimeout = 30 * time.Second

// ErrManagerShutdown is returned once Shutdown has been called.
var ErrManagerShutdown = errors.New("browser manager is shut down")

// Option configures a Manager.
type Option func(*Manager)

// WithLauncher replaces the launcher used to start the browser.
func WithLauncher(l Launcher) Option {
	return func(m *Manager) { m.launch = l }
}

// Manager owns the browser process and the sessions opened in it. The first
// session it hands out is the primary one; Browse runs reuse it and close the
// rest when they finish.
type Manager struct {
	cfg       config.Interface
	logger    *zap.Logger
	launch    Launcher
	artifacts *artifactStore
	limiter   *rate.Limiter

	// createMu serializes topping up the session list.
	createMu sync.Mutex

	mu       sync.Mutex
	process  Process
	sessions []*Session
	shutdown bool

	initOnce sync.Once
	initErr  error
}

// NewManager creates a browser manager. The browser is started by Start, or
// lazily by the first session request.
func NewManager(cfg config.Interface, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
		launch: CDPLauncher,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.artifacts = &artifactStore{cfg: cfg.Artifacts(), logger: m.logger.Named("artifacts")}
	m.limiter = rate.NewLimiter(rate.Inf, 0)
	if r := cfg.Browser().SessionRate; r > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(r), 1)
	}
	return m
}

// Start launches or attaches to the browser. Only the first call does any work;
// later calls return its result.
func (m *Manager) Start(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Starting browser.")
		p, err := m.launch(ctx, launchOptions(m.cfg.Browser()), m.logger)
		if err != nil {
			m.initErr = fmt.Errorf("failed to start browser: %w", err)
			return
		}
		m.mu.Lock()
		m.process = p
		m.mu.Unlock()
	})
	return m.initErr
}

// NewSession opens a new isolated session and appends it to the manager's list.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, ErrManagerShutdown
	}
	p := m.process
	m.mu.Unlock()

	s, err := m.openSession(ctx, p)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		_ = s.driver.Close(context.WithoutCancel(ctx))
		return nil, ErrManagerShutdown
	}
	m.sessions = append(m.sessions, s)
	return s, nil
}

func (m *Manager) openSession(ctx context.Context, p Process) (*Session, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting to open a session: %w", err)
	}
	d, err := p.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser session: %w", err)
	}
	s := newSession(uuid.NewString(), d, m.logger)
	s.onClose = func() { m.forget(s) }
	m.logger.Info("New session created.", zap.String("session_id", s.ID()))
	return s, nil
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = slices.DeleteFunc(m.sessions, func(x *Session) bool { return x == s })
}

// Primary returns the primary session, opening it if there is none.
func (m *Manager) Primary(ctx context.Context) (*Session, error) {
	sessions, err := m.ensure(ctx, 1)
	if err != nil {
		return nil, err
	}
	return sessions[0], nil
}

// Sessions returns the open sessions, primary first.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sessions)
}

// ensure returns the first count sessions, opening the missing ones concurrently.
func (m *Manager) ensure(ctx context.Context, count int) ([]*Session, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	existing := m.Sessions()
	if len(existing) >= count {
		return existing[:count], nil
	}

	missing := count - len(existing)
	created := make([]*Session, missing)
	g, gctx := errgroup.WithContext(ctx)
	for i := range created {
		g.Go(func() error {
			s, err := m.NewSession(gctx)
			if err != nil {
				return err
			}
			created[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range created {
			if s != nil {
				_ = s.Close(context.WithoutCancel(ctx))
			}
		}
		return nil, err
	}

	// Concurrent creation appends in completion order; hand out the list order.
	all := m.Sessions()
	if len(all) < count {
		return nil, fmt.Errorf("sessions closed while opening %d of them", count)
	}
	return all[:count], nil
}

// BrowseFunc is the body of a Browse run. It gets one session per requested
// browser, the primary session first.
type BrowseFunc func(ctx context.Context, sessions ...*Session) error

// Browse runs fn with count sessions, reusing the primary session and opening
// the others. When fn fails or panics, a screenshot and the page source of
// every session are stored. In all cases the console logs are stored and every
// session but the primary is closed afterwards. A panic in fn is re-raised
// once cleanup is done.
func (m *Manager) Browse(ctx context.Context, name string, count int, fn BrowseFunc) (err error) {
	if count < 1 {
		return fmt.Errorf("browse %q needs at least one session, got %d", name, count)
	}
	sessions, err := m.ensure(ctx, count)
	if err != nil {
		return err
	}
	stem := artifactName(name)
	log := m.logger.With(zap.String("run", stem), zap.Int("sessions", count))
	log.Debug("Browse run started.")

	defer func() {
		r := recover()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), artifactTimeout)
		defer cancel()

		if err != nil || r != nil {
			log.Warn("Browse run failed; capturing artifacts.", zap.Error(err), zap.Any("panic", r))
			m.artifacts.captureFailures(actx, stem, sessions)
			m.artifacts.storeSources(actx, stem, sessions)
		}
		m.artifacts.storeConsoleLogs(stem, sessions)

		if cerr := m.CloseAllButPrimary(actx); cerr != nil {
			log.Warn("Failed to close extra sessions.", zap.Error(cerr))
		}
		if r != nil {
			panic(r)
		}
	}()

	return fn(ctx, sessions...)
}

// CloseAllButPrimary closes every session except the primary one.
func (m *Manager) CloseAllButPrimary(ctx context.Context) error {
	m.mu.Lock()
	if len(m.sessions) <= 1 {
		m.mu.Unlock()
		return nil
	}
	extra := slices.Clone(m.sessions[1:])
	m.sessions = m.sessions[:1]
	m.mu.Unlock()

	return m.closeAll(ctx, extra)
}

func (m *Manager) closeAll(ctx context.Context, sessions []*Session) error {
	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error closing session.", zap.String("session_id", s.ID()), zap.Error(err))
				return fmt.Errorf("session %s: %w", s.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Shutdown closes every session and then the browser. Sessions get until ctx
// is done; the browser is closed regardless.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	sessions := m.sessions
	m.sessions = nil
	p := m.process
	m.mu.Unlock()

	m.logger.Info("Shutting down browser manager.", zap.Int("sessions", len(sessions)))
	if p == nil {
		m.logger.Info("Browser was never started, nothing to close.")
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- m.closeAll(ctx, sessions) }()

	var sessionErr error
	select {
	case sessionErr = <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close. Closing the browser anyway.", zap.Error(ctx.Err()))
		sessionErr = ctx.Err()
	}

	if err := p.Close(); err != nil {
		m.logger.Error("Failed to close browser.", zap.Error(err))
		return errors.Join(sessionErr, fmt.Errorf("failed to close browser: %w", err))
	}
	m.logger.Info("Browser manager shutdown complete.")
	return sessionErr
}
