package bench

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----------------------------------------------------------------------------
// Stubs
// ----------------------------------------------------------------------------

type stubSession struct {
	latency    time.Duration
	connectErr error
	dropAfter  int64 // fail with a transport error after n calls (0 = never)

	ready  atomic.Bool
	closed atomic.Bool
	calls  atomic.Int64
}

func (s *stubSession) Connect(ctx context.Context) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.ready.Store(true)
	return nil
}

func (s *stubSession) Dispatch(ctx context.Context, service uint64, payload []byte) ([]byte, error) {
	n := s.calls.Add(1)
	if s.dropAfter > 0 && n > s.dropAfter {
		s.ready.Store(false)
		return nil, common.NewTransportFailure(io.EOF)
	}

	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *stubSession) Ready() bool { return s.ready.Load() }

func (s *stubSession) Close() error {
	s.closed.Store(true)
	s.ready.Store(false)
	return nil
}

type stubWorkload struct {
	reject bool
}

func (w *stubWorkload) Name() string { return "stub" }

func (w *stubWorkload) Next(seq uint64) (uint64, []byte, error) {
	return common.ServiceEcho, []byte("ping"), nil
}

func (w *stubWorkload) Check(resp []byte) error {
	if w.reject {
		return errors.New("unexpected response")
	}
	return nil
}

// sessionPool hands out pre-built sessions and remembers which were requested
type sessionPool struct {
	mu       sync.Mutex
	sessions []*stubSession
	created  int
}

func newPool(n int, latency time.Duration) *sessionPool {
	p := &sessionPool{}
	for i := 0; i < n; i++ {
		p.sessions = append(p.sessions, &stubSession{latency: latency})
	}
	return p
}

func (p *sessionPool) factory(i int) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created++
	return p.sessions[i], nil
}

func testConfig(connections, workers int) Config {
	cfg := DefaultConfig()
	cfg.Connections = connections
	cfg.WorkersPerConnection = workers
	cfg.Service = "stub"
	return cfg
}

// ----------------------------------------------------------------------------
// Engine
// ----------------------------------------------------------------------------

func TestEngineTotalRequests(t *testing.T) {
	pool := newPool(2, time.Millisecond)
	cfg := testConfig(2, 2)
	cfg.TotalRequests = 100

	engine, err := NewEngine(cfg, pool.factory, &stubWorkload{})
	require.NoError(t, err)

	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(100), report.Total)
	assert.Equal(t, int64(100), report.Succeeded)
	assert.Equal(t, int64(0), report.Failed)
	assert.Equal(t, 100.0, report.SuccessRate)
	assert.False(t, report.Degraded)
	assert.False(t, report.Inconclusive)
	assert.Equal(t, int64(100), pool.sessions[0].calls.Load()+pool.sessions[1].calls.Load())

	// every call sleeps at least 1ms
	assert.GreaterOrEqual(t, report.P50LatencyUs, 1000.0)
	assert.GreaterOrEqual(t, report.MinLatencyUs, 1000.0)
	assert.Less(t, report.P99LatencyUs, 50_000.0)

	assert.LessOrEqual(t, report.MinLatencyUs, report.P50LatencyUs)
	assert.LessOrEqual(t, report.P50LatencyUs, report.P95LatencyUs)
	assert.LessOrEqual(t, report.P95LatencyUs, report.P99LatencyUs)
	assert.LessOrEqual(t, report.P99LatencyUs, report.MaxLatencyUs)

	for _, s := range pool.sessions {
		assert.True(t, s.closed.Load())
	}
}

func TestEngineTargetRate(t *testing.T) {
	pool := newPool(1, time.Millisecond)
	cfg := testConfig(1, 4)
	cfg.TargetRate = 50
	cfg.Duration = 2 * time.Second
	cfg.TotalRequests = 0

	engine, err := NewEngine(cfg, pool.factory, &stubWorkload{})
	require.NoError(t, err)

	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, report.DurationSec, 2.0)
	assert.InEpsilon(t, 50.0, report.AchievedRate, 0.1)
	assert.InDelta(t, 100, report.Total, 10)
	assert.Equal(t, report.Total, report.Succeeded)
}

func TestEngineRejectsInvalidConfigBeforeConnecting(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"no connections", func(c *Config) { c.Connections = 0 }, "connections"},
		{"no workers", func(c *Config) { c.WorkersPerConnection = 0 }, "workers per connection"},
		{"no termination", func(c *Config) { c.TotalRequests = 0; c.Duration = 0 }, "duration"},
		{"negative rate", func(c *Config) { c.TargetRate = -1 }, "target rate"},
		{"negative timeout", func(c *Config) { c.CallTimeout = -time.Second }, "call timeout"},
		{"no service", func(c *Config) { c.Service = "" }, "service"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pool := newPool(1, 0)
			cfg := testConfig(1, 1)
			tc.mutate(&cfg)

			_, err := NewEngine(cfg, pool.factory, &stubWorkload{})
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
			assert.Equal(t, 0, pool.created)
		})
	}

	_, err := NewEngine(testConfig(1, 1), nil, &stubWorkload{})
	assert.Error(t, err)
	_, err = NewEngine(testConfig(1, 1), newPool(1, 0).factory, nil)
	assert.Error(t, err)
}

func TestEngineConnectFailureAborts(t *testing.T) {
	pool := newPool(3, 0)
	pool.sessions[1].connectErr = errors.New("connection refused")

	engine, err := NewEngine(testConfig(3, 1), pool.factory, &stubWorkload{})
	require.NoError(t, err)

	report, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pool.sessions[1].connectErr)

	require.NotNil(t, report)
	assert.True(t, report.Degraded)
	assert.True(t, report.Inconclusive)
	assert.Equal(t, int64(0), report.Total)
	assert.Equal(t, 1, report.DroppedConnections)

	for _, s := range pool.sessions {
		assert.Equal(t, int64(0), s.calls.Load())
		assert.True(t, s.closed.Load())
	}
}

func TestEngineDroppedSessionIsNotReplaced(t *testing.T) {
	pool := newPool(2, time.Millisecond)
	pool.sessions[0].dropAfter = 5

	cfg := testConfig(2, 1)
	cfg.TotalRequests = 0
	cfg.Duration = 200 * time.Millisecond

	engine, err := NewEngine(cfg, pool.factory, &stubWorkload{})
	require.NoError(t, err)

	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.Equal(t, 1, report.DroppedConnections)
	assert.Equal(t, int64(1), report.Errors["transport"])
	assert.Equal(t, int64(6), pool.sessions[0].calls.Load())
	assert.Greater(t, report.Succeeded, int64(5))
	assert.Equal(t, report.Total, report.Succeeded+report.Failed)
}

func TestEngineCallTimeout(t *testing.T) {
	pool := newPool(1, time.Second)
	cfg := testConfig(1, 2)
	cfg.TotalRequests = 4
	cfg.CallTimeout = 20 * time.Millisecond

	engine, err := NewEngine(cfg, pool.factory, &stubWorkload{})
	require.NoError(t, err)

	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), report.Failed)
	assert.Equal(t, map[string]int64{"timeout": 4}, report.Errors)
	assert.True(t, report.Inconclusive)
	assert.Zero(t, report.P99LatencyUs)
	assert.False(t, report.Degraded)
}

func TestEngineFailedChecksAreInconclusive(t *testing.T) {
	pool := newPool(1, 0)
	cfg := testConfig(1, 1)
	cfg.TotalRequests = 10

	engine, err := NewEngine(cfg, pool.factory, &stubWorkload{reject: true})
	require.NoError(t, err)

	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(10), report.Total)
	assert.Equal(t, int64(10), report.Failed)
	assert.Equal(t, 0.0, report.SuccessRate)
	assert.True(t, report.Inconclusive)
	assert.Equal(t, int64(10), report.Errors["other"])
	assert.Zero(t, report.MeanLatencyUs)
}

func TestEngineStopsOnCancel(t *testing.T) {
	pool := newPool(1, time.Millisecond)
	cfg := testConfig(1, 2)
	cfg.TotalRequests = 0
	cfg.Duration = time.Minute
	cfg.ProgressInterval = 10 * time.Millisecond

	engine, err := NewEngine(cfg, pool.factory, &stubWorkload{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	begin := time.Now()
	report, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), 5*time.Second)
	assert.Greater(t, report.Total, int64(0))
	assert.Equal(t, report.Total, report.Succeeded+report.Failed)
}

func TestWaitUntilNeverReturnsEarly(t *testing.T) {
	for _, d := range []time.Duration{0, 10 * time.Microsecond, 60 * time.Microsecond, 5 * time.Millisecond} {
		slot := time.Now().Add(d)
		require.True(t, waitUntil(context.Background(), slot))
		assert.False(t, time.Now().Before(slot))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, waitUntil(ctx, time.Now().Add(time.Hour)))
}

func TestClassifyError(t *testing.T) {
	testCases := []struct {
		err  error
		kind string
	}{
		{nil, ""},
		{common.NewTransportFailure(io.EOF), "transport"},
		{common.NewTimeout(nil), "timeout"},
		{common.NewRemoteRejected(common.CodeRateLimited, "slow down"), "rejected:rate_limited"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("boom"), "other"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.kind, ClassifyError(tc.err))
	}

	pool := newPool(1, 0)
	cfg := testConfig(1, 1)
	cfg.TotalRequests = 3
	engine, err := NewEngine(cfg, pool.factory, &stubWorkload{reject: true}, WithClassifier(func(error) string { return "custom" }))
	require.NoError(t, err)

	report, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"custom": 3}, report.Errors)
}
