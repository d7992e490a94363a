// File: internal/executor/manager.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/quietops/linkhawk/api/schemas"
	"github.com/quietops/linkhawk/internal/config"
)

// sleepFn blocks for d or until ctx is cancelled. Injectable so retry timing
// is testable without real waits.
type sleepFn func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manager owns the connection lifecycle to the automation executor. It
// prefers attaching to the persistent, already authenticated session and
// falls back to a throwaway one, tracking health through the State machine.
//
// A healthy connection is shared by concurrent callers; cold-start
// establishment runs under a single-flight guard so a burst of Acquire calls
// cannot race duplicate fallback sessions into existence.
type Manager struct {
	persistent schemas.SessionProvider
	fallback   schemas.SessionProvider

	maxRetries     int
	acquireTimeout time.Duration
	hint           string
	userDataDir    string

	sleep  sleepFn
	probe  func(schemas.SessionHandle) error
	group  singleflight.Group
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	conn    schemas.SessionHandle
	lastErr error
}

// NewManager wires the manager from configuration and the two session
// providers.
func NewManager(cfg config.ExecutorConfig, persistent, fallback schemas.SessionProvider, logger *zap.Logger) *Manager {
	var probe func(schemas.SessionHandle) error
	if cfg.KeepAlive {
		probe = func(h schemas.SessionHandle) error {
			return keepAliveProbe(h, cfg.AcquireTimeout)
		}
	}
	return &Manager{
		probe:          probe,
		persistent:     persistent,
		fallback:       fallback,
		maxRetries:     cfg.MaxRetries,
		acquireTimeout: cfg.AcquireTimeout,
		hint:           remediationHint(cfg.Endpoint),
		userDataDir:    cfg.UserDataDir,
		sleep:          defaultSleep,
		logger:         logger.Named("connection_manager"),
		state:          StateUnattempted,
	}
}

// remediationHint names the exact command that brings the persistent executor
// back.
func remediationHint(endpoint string) string {
	return fmt.Sprintf(
		"no debuggable browser found at %s; start one with `linkhawk launch-chrome` "+
			"or run Chrome manually with --remote-debugging-port=9222",
		endpoint,
	)
}

// Acquire returns a healthy session handle, establishing one if needed. It
// fails with *schemas.ExecutorUnavailableError only after both the persistent
// and fallback paths are exhausted.
func (m *Manager) Acquire(ctx context.Context) (schemas.SessionHandle, error) {
	if conn := m.reusable(); conn != nil {
		return conn, nil
	}

	v, err, _ := m.group.Do("acquire", func() (any, error) {
		// A concurrent caller may have finished establishing while this one
		// queued on the flight.
		if conn := m.reusable(); conn != nil {
			return conn, nil
		}
		return m.establish(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(schemas.SessionHandle), nil
}

// reusable returns the tracked connection when it is healthy and (if a probe
// is configured) still answering. A dead handle is dropped so the next
// Acquire re-establishes.
func (m *Manager) reusable() schemas.SessionHandle {
	m.mu.Lock()
	conn := m.conn
	healthy := m.state.Healthy()
	m.mu.Unlock()

	if conn == nil || !healthy {
		return nil
	}
	if m.probe != nil {
		if err := m.probe(conn); err != nil {
			m.logger.Warn("Tracked session failed keep-alive probe; discarding",
				zap.String("session_id", conn.ID()), zap.Error(err))
			m.mu.Lock()
			if m.conn == conn {
				m.conn = nil
				m.state = StateUnattempted
			}
			m.mu.Unlock()
			return nil
		}
	}
	return conn
}

// establish runs the full state machine: persistent attach with retries, then
// one fallback attempt.
func (m *Manager) establish(ctx context.Context) (schemas.SessionHandle, error) {
	persistentErr, attempts := m.attemptPersistent(ctx)
	if persistentErr == nil {
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		return conn, nil
	}

	m.setState(StatePersistentFailed, persistentErr)
	m.logger.Warn("Persistent session attach exhausted; trying fallback",
		zap.Int("attempts", attempts),
		zap.Error(persistentErr))

	m.setState(StateAttemptingFallback, nil)
	attemptCtx, cancel := context.WithTimeout(ctx, m.acquireTimeout)
	handle, fallbackErr := m.fallback.Initialize(attemptCtx)
	cancel()
	if fallbackErr == nil {
		m.adopt(handle, StateFallbackHealthy)
		m.logger.Info("Fallback session established",
			zap.String("session_id", handle.ID()))
		return handle, nil
	}

	aggregate := &schemas.ExecutorUnavailableError{
		PersistentErr:      persistentErr,
		FallbackErr:        fallbackErr,
		PersistentAttempts: attempts,
		Hint:               m.hint,
	}
	m.setState(StateFullyFailed, aggregate)
	return nil, aggregate
}

// attemptPersistent tries the persistent attach up to maxRetries times with
// 2^attempt-second backoff between transient failures. A non-transient
// failure ("executor not running") short-circuits the remaining retries.
func (m *Manager) attemptPersistent(ctx context.Context) (lastErr error, attempts int) {
	m.setState(StateAttemptingPersistent, nil)

	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		attempts = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, m.acquireTimeout)
		handle, err := m.persistent.Initialize(attemptCtx)
		cancel()
		if err == nil {
			m.adopt(handle, StatePersistentHealthy)
			m.logger.Info("Persistent session attached",
				zap.String("session_id", handle.ID()),
				zap.Int("attempt", attempt))
			return nil, attempts
		}
		lastErr = err

		var connErr *schemas.ExecutorConnectivityError
		if errors.As(err, &connErr) && !connErr.Transient {
			m.logger.Warn("Executor not running; skipping remaining persistent retries",
				zap.Int("attempt", attempt), zap.Error(err))
			return lastErr, attempts
		}

		if attempt < m.maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			m.logger.Debug("Transient attach failure; backing off",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			if serr := m.sleep(ctx, backoff); serr != nil {
				return lastErr, attempts
			}
		}
	}
	return lastErr, attempts
}

func (m *Manager) adopt(handle schemas.SessionHandle, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = handle
	m.state = state
	m.lastErr = nil
}

func (m *Manager) setState(state State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	if err != nil {
		m.lastErr = err
	}
}

// Release hands a connection back after a harvest call. The handle stays
// tracked and healthy, eligible for reuse by the next Acquire.
func (m *Manager) Release(handle schemas.SessionHandle) {
	if handle == nil {
		return
	}
	m.logger.Debug("Session released", zap.String("session_id", handle.ID()))
}

// Health returns a point-in-time snapshot of connection state.
func (m *Manager) Health() HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := HealthSnapshot{
		State:   m.state,
		Healthy: m.state.Healthy(),
	}
	if m.conn != nil {
		snap.SessionID = m.conn.ID()
		snap.Flavor = string(m.conn.Flavor())
	}
	if m.lastErr != nil {
		snap.LastError = m.lastErr.Error()
	}
	if !snap.Healthy {
		snap.Hint = m.hint
	}
	return snap
}

// Close tears down the tracked handle and resets the state machine. For the
// persistent flavor this detaches without terminating the externally owned
// browser; the fallback flavor's private browser is shut down with it.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.state = StateUnattempted
	m.lastErr = nil
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	m.logger.Info("Closing tracked session", zap.String("session_id", conn.ID()))
	return conn.Close(ctx)
}

// ClearSessionData closes any tracked session and deletes the fallback
// flavor's private profile directory (cookies included). The persistent
// session's data is externally owned and never touched.
func (m *Manager) ClearSessionData(ctx context.Context) error {
	if err := m.Close(ctx); err != nil {
		m.logger.Warn("Error closing session before clearing data", zap.Error(err))
	}
	if m.userDataDir == "" {
		return nil
	}
	m.logger.Info("Clearing fallback session data", zap.String("dir", m.userDataDir))
	if err := os.RemoveAll(m.userDataDir); err != nil {
		return fmt.Errorf("failed to clear session data: %w", err)
	}
	return nil
}
