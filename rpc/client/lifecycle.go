package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/ValentinKolb/vsign/rpc/transport"
	"github.com/ValentinKolb/vsign/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/singleflight"
)

var Logger = logger.GetLogger("client")

// --------------------------------------------------------------------------
// State
// --------------------------------------------------------------------------

// ConnectionState is the lifecycle state of a session
type ConnectionState uint8

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateReady
	StateDegraded
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Transition describes one state change of a Manager
type Transition struct {
	Session string
	From    ConnectionState
	To      ConnectionState
	RetryAt time.Time // set when To is StateDegraded
	Attempt int       // consecutive failed attempts after this transition
	Err     error     // cause of the transition, if any
}

// Observer receives every state change. It is called with the manager's lock
// held and must not call back into the Manager.
type Observer func(Transition)

// LogTransition is the default observer
func LogTransition(t Transition) {
	switch t.To {
	case StateDegraded:
		Logger.Warningf("Session %s: %s -> %s after %d failed attempts, retry in %s: %v",
			t.Session, t.From, t.To, t.Attempt, time.Until(t.RetryAt).Round(time.Millisecond), t.Err)
	case StateDisconnected:
		if t.Err != nil && !errors.Is(t.Err, ErrClosed) {
			Logger.Warningf("Session %s: %s -> %s: %v", t.Session, t.From, t.To, t.Err)
			return
		}
		Logger.Debugf("Session %s: %s -> %s", t.Session, t.From, t.To)
	default:
		Logger.Debugf("Session %s: %s -> %s", t.Session, t.From, t.To)
	}
}

// DialFunc establishes one connection. It must honor ctx.
type DialFunc func(ctx context.Context) (*transport.Connection, error)

// Dialer returns a DialFunc for the given address and socket options
func Dialer(cfg transport.Config, opts transport.Options) DialFunc {
	return func(ctx context.Context) (*transport.Connection, error) {
		return transport.Dial(ctx, cfg, opts)
	}
}

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// Option configures a Manager
type Option func(*Manager)

// WithName sets the session name used in errors and log lines
func WithName(name string) Option {
	return func(m *Manager) { m.name = name }
}

// WithObserver replaces the default logging observer. nil disables it.
func WithObserver(obs Observer) Option {
	return func(m *Manager) { m.observer = obs }
}

// WithWriteTimeout bounds a single request write when the call context has
// no deadline
func WithWriteTimeout(d time.Duration) Option {
	return func(m *Manager) { m.writeTimeout = d }
}

// Manager owns one logical session: at most one Connection at a time, the
// retry state used to (re)establish it, and the call channel running on top.
// All methods are safe for concurrent use.
type Manager struct {
	name         string
	dial         DialFunc
	policy       common.RetryPolicy
	observer     Observer
	writeTimeout time.Duration

	connectGroup singleflight.Group

	mu       sync.Mutex
	state    ConnectionState
	attempts int
	retryAt  time.Time
	lastErr  error
	terminal bool
	closed   bool
	channel  *base.Channel
}

// NewManager creates a Disconnected session. Nothing is dialed until
// EnsureReady or Connect is called.
func NewManager(dial DialFunc, policy common.RetryPolicy, opts ...Option) (*Manager, error) {
	if dial == nil {
		return nil, errors.New("dial function is nil")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		name:         "session",
		dial:         dial,
		policy:       policy,
		observer:     LogTransition,
		writeTimeout: 10 * time.Second,
		state:        StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// WithSession runs fn with a connected Manager and closes it on every exit
// path, panics included
func WithSession(ctx context.Context, dial DialFunc, policy common.RetryPolicy, fn func(*Manager) error, opts ...Option) error {
	m, err := NewManager(dial, policy, opts...)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Connect(ctx); err != nil {
		return err
	}
	return fn(m)
}

// --------------------------------------------------------------------------
// Public Methods
// --------------------------------------------------------------------------

// Name returns the session name
func (m *Manager) Name() string { return m.name }

// State returns the current lifecycle state
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready reports whether calls can be dispatched right now
func (m *Manager) Ready() bool {
	return m.State() == StateReady
}

// Attempts returns the number of consecutive failed connection attempts
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// EnsureReady makes at most one connection attempt when the session is not
// Ready. Concurrent callers share the same attempt. The returned error is a
// *ConnectionError.
func (m *Manager) EnsureReady(ctx context.Context) error {
	m.mu.Lock()
	if err := m.precheckLocked(time.Now()); err != nil || m.state == StateReady {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	resCh := m.connectGroup.DoChan("connect", func() (interface{}, error) {
		return nil, m.connect(context.WithoutCancel(ctx))
	})

	select {
	case res := <-resCh:
		return res.Err
	case <-ctx.Done():
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.connErrLocked(ErrNotReady, ctx.Err())
	}
}

// Connect calls EnsureReady until the session is Ready, the retry budget is
// exhausted, or ctx is done. Between attempts it sleeps until the retry
// deadline.
func (m *Manager) Connect(ctx context.Context) error {
	for {
		err := m.EnsureReady(ctx)
		if err == nil {
			return nil
		}

		var connErr *ConnectionError
		if !errors.As(err, &connErr) || !errors.Is(err, ErrNotReady) || connErr.RetryAt.IsZero() || ctx.Err() != nil {
			return err
		}

		if wait := time.Until(connErr.RetryAt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
	}
}

// Dispatch sends payload to service over the session. The session must be
// Ready. Call failures are returned as *DispatchError; a transport failure
// also moves the session to Disconnected. Nothing is retried here.
func (m *Manager) Dispatch(ctx context.Context, service uint64, payload []byte) ([]byte, error) {
	m.mu.Lock()
	if m.closed {
		err := m.connErrLocked(ErrClosed, nil)
		m.mu.Unlock()
		return nil, err
	}
	ch := m.channel
	if m.state != StateReady || ch == nil {
		sentinel := ErrNotReady
		if m.state == StateDisconnected {
			sentinel = ErrDisconnected
		}
		err := m.connErrLocked(sentinel, m.lastErr)
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	resp, err := ch.Invoke(ctx, service, payload)
	if err == nil {
		return resp, nil
	}
	if common.IsTransportFailure(err) {
		m.teardown(ch, err)
	}
	return nil, &DispatchError{Session: m.name, Service: service, Err: err}
}

// Reset clears a terminal state and the attempt counter, so the next
// EnsureReady dials again
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.terminal = false
	m.attempts = 0
	m.retryAt = time.Time{}
	m.lastErr = nil
	if m.state == StateDegraded {
		m.transitionLocked(StateDisconnected, nil)
	}
}

// Close releases the connection. It is idempotent; afterwards every call
// fails with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ch := m.channel
	m.channel = nil
	m.transitionLocked(StateDisconnected, ErrClosed)
	m.mu.Unlock()

	if ch != nil {
		return ch.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// precheckLocked returns the error for states that must not dial. It returns
// nil for Ready and for states where an attempt is due.
func (m *Manager) precheckLocked(now time.Time) error {
	switch {
	case m.closed:
		return m.connErrLocked(ErrClosed, nil)
	case m.terminal:
		return m.connErrLocked(ErrDisconnected, m.lastErr)
	case m.state == StateDegraded && now.Before(m.retryAt):
		return m.connErrLocked(ErrNotReady, m.lastErr)
	}
	return nil
}

// connect performs exactly one dial. It runs inside the singleflight group.
func (m *Manager) connect(ctx context.Context) error {
	m.mu.Lock()
	if err := m.precheckLocked(time.Now()); err != nil || m.state == StateReady {
		m.mu.Unlock()
		return err
	}
	m.transitionLocked(StateConnecting, nil)
	m.mu.Unlock()

	if m.policy.PerAttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.policy.PerAttemptTimeout)
		defer cancel()
	}
	conn, err := m.dial(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		if conn != nil {
			_ = conn.Close()
		}
		return m.connErrLocked(ErrClosed, nil)
	}

	if err != nil {
		m.attempts++
		m.lastErr = err
		if m.attempts >= m.policy.MaxAttempts {
			m.terminal = true
			m.retryAt = time.Time{}
			m.transitionLocked(StateDisconnected, err)
			return m.connErrLocked(ErrDisconnected, err)
		}
		m.retryAt = time.Now().Add(m.policy.Delay(m.attempts - 1))
		m.transitionLocked(StateDegraded, err)
		return m.connErrLocked(ErrNotReady, err)
	}

	m.attempts = 0
	m.lastErr = nil
	m.retryAt = time.Time{}
	m.channel = base.NewChannel(conn, m.writeTimeout)
	m.transitionLocked(StateReady, nil)
	go m.watch(m.channel)
	return nil
}

// watch moves the session to Disconnected once ch breaks, unless ch was
// already replaced or torn down
func (m *Manager) watch(ch *base.Channel) {
	<-ch.Done()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.channel != ch || m.closed {
		return
	}
	m.channel = nil
	m.transitionLocked(StateDisconnected, ch.Err())
}

// teardown drops ch after a transport failure seen by a dispatch
func (m *Manager) teardown(ch *base.Channel, cause error) {
	m.mu.Lock()
	owned := m.channel == ch
	if owned {
		m.channel = nil
		if !m.closed {
			m.transitionLocked(StateDisconnected, cause)
		}
	}
	m.mu.Unlock()

	if owned {
		_ = ch.Close()
	}
}

func (m *Manager) transitionLocked(to ConnectionState, cause error) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	if to != StateDegraded {
		m.retryAt = time.Time{}
	}
	if m.observer != nil {
		m.observer(Transition{
			Session: m.name,
			From:    from,
			To:      to,
			RetryAt: m.retryAt,
			Attempt: m.attempts,
			Err:     cause,
		})
	}
}

func (m *Manager) connErrLocked(sentinel, cause error) *ConnectionError {
	return &ConnectionError{
		Session:   m.name,
		State:     m.state,
		Attempts:  m.attempts,
		RetryAt:   m.retryAt,
		Exhausted: m.terminal,
		Err:       sentinel,
		Cause:     cause,
	}
}
