// Package session owns the per-run session identifier and the end-of-session
// notification.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport delivers the session-end notification.
type Transport interface {
	Send(ctx context.Context, sessionID string) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, sessionID string) error

func (f TransportFunc) Send(ctx context.Context, sessionID string) error { return f(ctx, sessionID) }

// Manager hands out one stable session id and ends the session at most once.
type Manager struct {
	primary  Transport
	fallback Transport
	timeout  time.Duration
	logger   *slog.Logger
	newID    func() string

	mu sync.Mutex
	id string

	endOnce sync.Once
	ended   chan struct{}
}

type Option func(*Manager)

// WithID reuses an existing session id instead of generating one.
func WithID(id string) Option {
	return func(m *Manager) { m.id = id }
}

// WithTransports sets the fire-and-forget transport and its best-effort fallback.
func WithTransports(primary, fallback Transport) Option {
	return func(m *Manager) {
		m.primary = primary
		m.fallback = fallback
	}
}

// WithSendTimeout bounds each delivery attempt (default 3s).
func WithSendTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		timeout: 3 * time.Second,
		logger:  logger,
		newID:   func() string { return uuid.New().String() },
		ended:   make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ID returns the session id, generating it on first use.
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == "" {
		m.id = m.newID()
		m.logger.Debug("session.created", "session_id", m.id)
	}
	return m.id
}

// End notifies the server that the session is over. Only the first call does
// anything and it never blocks: delivery happens in the background, the
// primary transport first, the fallback only if the primary is missing or
// fails. Errors are logged and otherwise dropped.
func (m *Manager) End() {
	m.endOnce.Do(func() {
		id := m.ID()
		go func() {
			defer close(m.ended)
			m.deliver(id)
		}()
	})
}

func (m *Manager) deliver(id string) {
	if m.primary != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		err := m.primary.Send(ctx, id)
		cancel()
		if err == nil {
			m.logger.Debug("session.end.sent", "session_id", id)
			return
		}
		m.logger.Debug("session.end.primary_failed", "session_id", id, "error", err)
	}
	if m.fallback == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.fallback.Send(ctx, id); err != nil {
		m.logger.Debug("session.end.fallback_failed", "session_id", id, "error", err)
		return
	}
	m.logger.Debug("session.end.sent", "session_id", id, "via", "fallback")
}

// Wait gives an in-flight End up to d to finish. It reports whether delivery
// completed; false also when End was never called.
func (m *Manager) Wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-m.ended:
		return true
	case <-timer.C:
		return false
	}
}
