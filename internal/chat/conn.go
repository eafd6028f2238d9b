package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vovakirdan/examchat/internal/creds"
	"github.com/vovakirdan/examchat/internal/transport"
)

// Manager owns the single logical connection to the messaging backend.
// Connect is idempotent and safe to call concurrently from independent
// surfaces: overlapping callers share one in-flight attempt, an attempt
// with no usable credential resolves as a no-op, and a failed attempt
// clears the shared slot so the next call retries.
type Manager struct {
	log     zerolog.Logger
	creds   *creds.Provider
	factory func() transport.Transport
	bind    func(t transport.Transport)

	sf singleflight.Group

	mu      sync.Mutex
	current transport.Transport
}

// NewManager builds a connection manager. factory produces a fresh transport
// per attempt (a transport is never reused after a failure); bind registers
// inbound handlers on it before it is started.
func NewManager(provider *creds.Provider, factory func() transport.Transport, bind func(transport.Transport), logger zerolog.Logger) *Manager {
	return &Manager{
		log:     logger,
		creds:   provider,
		factory: factory,
		bind:    bind,
	}
}

// Connect ensures the shared connection is up. Resolving without error means
// "best effort", not guaranteed delivery: with no credential available the
// call is a silent no-op and the client stays in REST-only mode.
func (m *Manager) Connect(ctx context.Context) error {
	if m.Connected() {
		return nil
	}

	if _, ok := m.creds.Token(); !ok {
		m.log.Debug().Msg("no credential available, skipping connect")
		return nil
	}

	_, err, shared := m.sf.Do("connect", func() (any, error) {
		// A racing caller may have finished the handshake between our
		// fast-path check and this slot being acquired; a healthy
		// connection is never torn down just to redial it.
		if m.Connected() {
			return nil, nil
		}

		// Tear down whatever is left of a prior connection first.
		m.mu.Lock()
		stale := m.current
		m.current = nil
		m.mu.Unlock()
		if stale != nil {
			_ = stale.Stop(ctx)
		}

		t := m.factory()
		if m.bind != nil {
			m.bind(t)
		}
		if err := t.Start(ctx); err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.current = t
		m.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		m.log.Warn().Err(err).Bool("shared", shared).Msg("connect failed")
		return err
	}
	return nil
}

// Disconnect tears the shared connection down, e.g. on logout.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	t := m.current
	m.current = nil
	m.mu.Unlock()

	if t == nil {
		return nil
	}
	return t.Stop(ctx)
}

// Connected reports whether the live connection is currently up.
func (m *Manager) Connected() bool {
	return m.State() == transport.StateConnected
}

// State returns the coarse connection state.
func (m *Manager) State() transport.State {
	m.mu.Lock()
	t := m.current
	m.mu.Unlock()

	if t == nil {
		return transport.StateDisconnected
	}
	return t.State()
}

// Invoke forwards an invocation to the live connection. Callers treat
// failures as best-effort and fall back to REST where it matters.
func (m *Manager) Invoke(ctx context.Context, method string, data any) error {
	m.mu.Lock()
	t := m.current
	m.mu.Unlock()

	if t == nil {
		return transport.ErrNotConnected
	}
	return t.Invoke(ctx, method, data)
}
