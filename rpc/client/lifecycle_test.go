package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/ValentinKolb/vsign/rpc/transport"
	"github.com/ValentinKolb/vsign/rpc/transport/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRefused = errors.New("connection refused")

func testPolicy(attempts int) common.RetryPolicy {
	return common.RetryPolicy{
		MaxAttempts:       attempts,
		InitialDelay:      20 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          time.Second,
		PerAttemptTimeout: 500 * time.Millisecond,
	}
}

// startServer serves handler on a loopback listener until the returned
// cancel is called
func startServer(t *testing.T, handler base.HandleFunc) (transport.Config, context.CancelFunc) {
	t.Helper()

	l, err := transport.Listen(transport.NewTCPConfig("127.0.0.1", 0))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = base.NewServer(handler, base.DefaultServerOptions()).Serve(ctx, l)
	}()

	stop := func() {
		cancel()
		<-done
	}
	t.Cleanup(stop)
	return l.Config(), cancel
}

func echo(_ uint64, req []byte) []byte { return req }

// recorder collects the transitions seen by an observer
type recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *recorder) observe(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recorder) states() []ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ConnectionState, len(r.transitions))
	for i, t := range r.transitions {
		out[i] = t.To
	}
	return out
}

func newTestManager(t *testing.T, dial DialFunc, policy common.RetryPolicy, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(dial, policy, append([]Option{WithName(t.Name()), WithObserver(nil)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(nil, testPolicy(1))
	assert.Error(t, err)

	bad := testPolicy(0)
	_, err = NewManager(func(context.Context) (*transport.Connection, error) { return nil, errRefused }, bad)
	assert.Error(t, err)
}

func TestConnectExhaustsRetryBudget(t *testing.T) {
	var mu sync.Mutex
	var dials []time.Time
	dial := func(context.Context) (*transport.Connection, error) {
		mu.Lock()
		dials = append(dials, time.Now())
		mu.Unlock()
		return nil, errRefused
	}

	rec := &recorder{}
	m := newTestManager(t, dial, testPolicy(3), WithObserver(rec.observe))

	err := m.Connect(context.Background())
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, connErr.Exhausted)
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.ErrorIs(t, err, errRefused)
	assert.Equal(t, 3, connErr.Attempts)

	mu.Lock()
	require.Len(t, dials, 3)
	first, second := dials[1].Sub(dials[0]), dials[2].Sub(dials[1])
	mu.Unlock()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)
	assert.GreaterOrEqual(t, second, 40*time.Millisecond)

	assert.Equal(t, []ConnectionState{
		StateConnecting, StateDegraded,
		StateConnecting, StateDegraded,
		StateConnecting, StateDisconnected,
	}, rec.states())

	// terminal: no further dials until Reset
	err = m.EnsureReady(context.Background())
	assert.ErrorIs(t, err, ErrDisconnected)
	_, err = m.Dispatch(context.Background(), common.ServiceEcho, []byte("x"))
	assert.ErrorIs(t, err, ErrDisconnected)
	mu.Lock()
	assert.Len(t, dials, 3)
	mu.Unlock()

	m.Reset()
	assert.Zero(t, m.Attempts())
	err = m.EnsureReady(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	mu.Lock()
	assert.Len(t, dials, 4)
	mu.Unlock()
}

func TestDegradedFailsFastUntilRetryDeadline(t *testing.T) {
	var dials atomic.Int32
	dial := func(context.Context) (*transport.Connection, error) {
		dials.Add(1)
		return nil, errRefused
	}
	policy := testPolicy(5)
	policy.InitialDelay = time.Hour
	policy.MaxDelay = time.Hour
	m := newTestManager(t, dial, policy)

	err := m.EnsureReady(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, StateDegraded, m.State())

	start := time.Now()
	err = m.EnsureReady(context.Background())
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, connErr.Exhausted)
	assert.WithinDuration(t, time.Now().Add(time.Hour), connErr.RetryAt, time.Minute)
	assert.EqualValues(t, 1, dials.Load())
	assert.Equal(t, 1, m.Attempts())

	// Connect gives up when its context ends before the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Connect(ctx), ErrNotReady)
	assert.EqualValues(t, 1, dials.Load())
}

func TestConcurrentEnsureReadyShareOneAttempt(t *testing.T) {
	cfg, _ := startServer(t, echo)

	gate := make(chan struct{})
	var dials atomic.Int32
	dial := func(ctx context.Context) (*transport.Connection, error) {
		dials.Add(1)
		<-gate
		return transport.Dial(ctx, cfg, transport.DefaultOptions())
	}
	m := newTestManager(t, dial, testPolicy(3))

	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.EnsureReady(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return m.State() == StateConnecting }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, dials.Load())
	assert.True(t, m.Ready())
}

func TestEnsureReadyHonorsContext(t *testing.T) {
	dial := func(ctx context.Context) (*transport.Connection, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m := newTestManager(t, dial, testPolicy(3))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := m.EnsureReady(ctx)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the attempt itself is bounded by the per attempt timeout
	require.Eventually(t, func() bool { return m.State() == StateDegraded }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.Attempts())
}

func TestDispatchRoundTrip(t *testing.T) {
	cfg, _ := startServer(t, echo)
	rec := &recorder{}
	m := newTestManager(t, Dialer(cfg, transport.DefaultOptions()), testPolicy(3), WithObserver(rec.observe))

	_, err := m.Dispatch(context.Background(), common.ServiceEcho, []byte("early"))
	assert.ErrorIs(t, err, ErrDisconnected)

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, []ConnectionState{StateConnecting, StateReady}, rec.states())

	resp, err := m.Dispatch(context.Background(), common.ServiceEcho, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "ping", string(resp))
	assert.Zero(t, m.Attempts())
}

func TestDispatchTimeoutKeepsSessionReady(t *testing.T) {
	release := make(chan struct{})
	cfg, _ := startServer(t, func(service uint64, req []byte) []byte {
		if service == common.ServiceSigning {
			<-release
		}
		return req
	})
	defer close(release)

	m := newTestManager(t, Dialer(cfg, transport.DefaultOptions()), testPolicy(3))
	require.NoError(t, m.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Dispatch(ctx, common.ServiceSigning, []byte("slow"))

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, common.RpcErrTimeout, dispatchErr.Kind())
	assert.Equal(t, "timeout", ErrorKind(err))
	assert.True(t, m.Ready())

	resp, err := m.Dispatch(context.Background(), common.ServiceEcho, []byte("fast"))
	require.NoError(t, err)
	assert.Equal(t, "fast", string(resp))
}

func TestOversizePayloadKeepsSessionReady(t *testing.T) {
	cfg, _ := startServer(t, echo)
	rec := &recorder{}
	m := newTestManager(t, Dialer(cfg, transport.DefaultOptions()), testPolicy(3), WithObserver(rec.observe))
	require.NoError(t, m.Connect(context.Background()))

	_, err := m.Dispatch(context.Background(), common.ServiceEcho, make([]byte, base.MaxFrameSize+1))
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.ErrorIs(t, err, base.ErrFrameTooLarge)
	assert.False(t, common.IsTransportFailure(err))
	assert.Equal(t, "too_large", ErrorKind(err))

	assert.Equal(t, StateReady, m.State())
	assert.Equal(t, []ConnectionState{StateConnecting, StateReady}, rec.states())

	resp, err := m.Dispatch(context.Background(), common.ServiceEcho, []byte("after"))
	require.NoError(t, err)
	assert.Equal(t, "after", string(resp))
}

func TestConnectionClosedMidDispatch(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	cfg, stopServer := startServer(t, func(_ uint64, req []byte) []byte {
		close(entered)
		<-release
		return req
	})

	rec := &recorder{}
	m := newTestManager(t, Dialer(cfg, transport.DefaultOptions()), testPolicy(3), WithObserver(rec.observe))
	require.NoError(t, m.Connect(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Dispatch(context.Background(), common.ServiceSigning, []byte("x"))
		errCh <- err
	}()

	<-entered
	stopServer() // closes the connection under the in-flight call

	var err error
	select {
	case err = <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not return after the connection was closed")
	}
	close(release)

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, common.RpcErrTransportFailure, dispatchErr.Kind())
	assert.True(t, common.IsTransportFailure(err))

	require.Eventually(t, func() bool { return m.State() == StateDisconnected }, time.Second, time.Millisecond)
	assert.NotContains(t, rec.states(), StateDegraded)

	_, err = m.Dispatch(context.Background(), common.ServiceEcho, []byte("y"))
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestPeerCloseMovesToDisconnected(t *testing.T) {
	cfg, stopServer := startServer(t, echo)
	m := newTestManager(t, Dialer(cfg, transport.DefaultOptions()), testPolicy(1))
	require.NoError(t, m.Connect(context.Background()))

	stopServer()
	require.Eventually(t, func() bool { return m.State() == StateDisconnected }, 2*time.Second, time.Millisecond)

	// not terminal: the next attempt dials again and fails
	err := m.EnsureReady(context.Background())
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, connErr.Exhausted)
	assert.Equal(t, 1, connErr.Attempts)
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg, _ := startServer(t, echo)
	m := newTestManager(t, Dialer(cfg, transport.DefaultOptions()), testPolicy(3))
	require.NoError(t, m.Connect(context.Background()))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, StateDisconnected, m.State())

	assert.ErrorIs(t, m.EnsureReady(context.Background()), ErrClosed)
	_, err := m.Dispatch(context.Background(), common.ServiceEcho, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, "closed", ErrorKind(err))
}

func TestWithSessionClosesOnPanic(t *testing.T) {
	cfg, _ := startServer(t, echo)

	var session *Manager
	func() {
		defer func() {
			assert.Equal(t, "boom", recover())
		}()
		_ = WithSession(context.Background(), Dialer(cfg, transport.DefaultOptions()), testPolicy(3), func(m *Manager) error {
			session = m
			require.True(t, m.Ready())
			panic("boom")
		}, WithObserver(nil))
	}()

	require.NotNil(t, session)
	_, err := session.Dispatch(context.Background(), common.ServiceEcho, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWithSessionReturnsConnectError(t *testing.T) {
	dial := func(context.Context) (*transport.Connection, error) { return nil, errRefused }
	called := false
	err := WithSession(context.Background(), dial, testPolicy(2), func(*Manager) error {
		called = true
		return nil
	}, WithObserver(nil))

	assert.ErrorIs(t, err, ErrDisconnected)
	assert.False(t, called)
}

func TestErrorKind(t *testing.T) {
	testCases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&DispatchError{Err: common.NewTransportFailure(errRefused)}, "transport"},
		{&DispatchError{Err: common.NewTimeout(nil)}, "timeout"},
		{&DispatchError{Err: common.NewRemoteRejected(common.CodeRateLimited, "slow down")}, "rejected:rate_limited"},
		{&ConnectionError{Err: ErrNotReady}, "not_ready"},
		{&ConnectionError{Err: ErrDisconnected, Exhausted: true}, "disconnected"},
		{errRefused, "other"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ErrorKind(tc.err))
	}
}
