// internal/browser/session.go
package browser

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/phquery/pkg/browser"
)

// Session is one isolated browsing session handed out by the Manager. Its
// Handle is focused on the tab the session was created with.
type Session struct {
	id      string
	created time.Time
	driver  SessionDriver
	handle  *browser.Handle
	logger  *zap.Logger

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

func newSession(id string, driver SessionDriver, logger *zap.Logger) *Session {
	return &Session{
		id:      id,
		created: time.Now(),
		driver:  driver,
		handle:  browser.NewHandle(driver),
		logger:  logger.With(zap.String("session_id", id)),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Created returns when the session was opened.
func (s *Session) Created() time.Time { return s.created }

// Handle returns the session handle focused on the session's first tab.
func (s *Session) Handle() *browser.Handle { return s.handle }

// Driver returns the driver the session was created with.
func (s *Session) Driver() SessionDriver { return s.driver }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosed
}

// Close ends the session, closing all of its tabs. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	err := s.driver.Close(ctx)
	if s.onClose != nil {
		s.onClose()
	}
	return err
}
