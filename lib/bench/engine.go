package bench

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("bench")

// schedulerResolution is the distance to a send slot below which a worker
// spins instead of sleeping on a timer
const schedulerResolution = 50 * time.Microsecond

// ----------------------------------------------------------------------------
// Collaborators
// ----------------------------------------------------------------------------

// Session is one connection to the system under test. *client.Manager
// satisfies it.
type Session interface {
	// Connect blocks until the session is usable or its retry budget is spent
	Connect(ctx context.Context) error
	// Dispatch performs one call
	Dispatch(ctx context.Context, service uint64, payload []byte) ([]byte, error)
	// Ready reports whether Dispatch can currently succeed
	Ready() bool
	Close() error
}

// SessionFactory creates the session for connection index
type SessionFactory func(index int) (Session, error)

// Workload produces requests and judges responses
type Workload interface {
	Name() string
	// Next returns the service id and payload of the seq-th request
	Next(seq uint64) (uint64, []byte, error)
	// Check validates a response payload; an error counts as a failure
	Check(resp []byte) error
}

// Classifier maps a failed call to an error kind
type Classifier func(err error) string

// ClassifyError is the default Classifier. It uses the kind of the wrapped
// *common.RpcError and treats an expired context as a timeout.
func ClassifyError(err error) string {
	var rpcErr *common.RpcError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rpcErr):
		if rpcErr.Kind == common.RpcErrRemoteRejected {
			return "rejected:" + rpcErr.Code.String()
		}
		return rpcErr.Kind.String()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "other"
	}
}

// ----------------------------------------------------------------------------
// Engine
// ----------------------------------------------------------------------------

// Option configures an Engine
type Option func(*Engine)

// WithClassifier replaces ClassifyError
func WithClassifier(c Classifier) Option {
	return func(e *Engine) {
		if c != nil {
			e.classify = c
		}
	}
}

// Engine drives a workload against a set of sessions
type Engine struct {
	config   Config
	sessions SessionFactory
	workload Workload
	classify Classifier
}

// NewEngine validates the configuration. It returns a *ConfigError and never
// touches the network.
func NewEngine(cfg Config, sessions SessionFactory, workload Workload, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sessions == nil {
		return nil, &ConfigError{Field: "sessions", Reason: "must not be nil"}
	}
	if workload == nil {
		return nil, &ConfigError{Field: "workload", Reason: "must not be nil"}
	}

	e := &Engine{
		config:   cfg,
		sessions: sessions,
		workload: workload,
		classify: ClassifyError,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the validated configuration
func (e *Engine) Config() Config { return e.config }

// Run executes one benchmark run. If a session cannot be connected every
// session is closed and a Degraded, Inconclusive report is returned together
// with the error; its DroppedConnections counts the sessions that never
// became ready.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	acc := NewAccumulator()
	startedAt := time.Now()

	Logger.Infof("run %s: %s with %d connections x %d workers", runID, e.workload.Name(), e.config.Connections, e.config.WorkersPerConnection)

	sessions, connected, err := e.connect(ctx)
	if err != nil {
		Logger.Errorf("run %s: setup failed: %v", runID, err)
		r := NewReport(runID, e.config, acc.Snapshot(), startedAt, time.Since(startedAt), e.config.Connections-connected)
		r.Degraded = true
		return r, err
	}
	defer closeAll(sessions)

	start := time.Now()

	var runCtx context.Context
	var cancel context.CancelFunc
	if e.config.Duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.config.Duration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var prog *progress
	if e.config.ProgressInterval > 0 {
		prog = newProgress(acc)
		defer prog.stop()
		go prog.run(runCtx, e.config.ProgressInterval)
	}

	w := &worker{
		engine:  e,
		acc:     acc,
		prog:    prog,
		parent:  ctx,
		run:     runCtx,
		stop:    cancel,
		dropped: make([]atomic.Bool, len(sessions)),
		start:   start,
		total:   uint64(e.config.TotalWorkers()),
	}

	var wg sync.WaitGroup
	for c, sess := range sessions {
		c, sess := c, sess
		for k := 0; k < e.config.WorkersPerConnection; k++ {
			wg.Add(1)
			go func(index uint64) {
				defer wg.Done()
				w.loop(c, index, sess)
			}(uint64(c*e.config.WorkersPerConnection + k))
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	dropped := 0
	for c, sess := range sessions {
		if w.dropped[c].Load() || !sess.Ready() {
			dropped++
		}
	}

	r := NewReport(runID, e.config, acc.Snapshot(), startedAt, elapsed, dropped)
	Logger.Infof("run %s: %d requests in %s (%.1f req/s), %d failed, %d dropped connections",
		runID, r.Total, elapsed.Round(time.Millisecond), r.AchievedRate, r.Failed, dropped)
	return r, nil
}

// connect builds and connects all sessions concurrently and reports how many
// reached Ready. On failure every session created so far is closed.
func (e *Engine) connect(ctx context.Context) ([]Session, int, error) {
	sessions := make([]Session, e.config.Connections)
	var connected atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i := range sessions {
		i := i
		g.Go(func() error {
			sess, err := e.sessions(i)
			if err != nil {
				return fmt.Errorf("create session %d: %w", i, err)
			}
			sessions[i] = sess
			if err := sess.Connect(gctx); err != nil {
				return fmt.Errorf("connect session %d: %w", i, err)
			}
			connected.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		closeAll(sessions)
		return nil, int(connected.Load()), err
	}
	return sessions, len(sessions), nil
}

func closeAll(sessions []Session) {
	for _, sess := range sessions {
		if sess == nil {
			continue
		}
		if err := sess.Close(); err != nil {
			Logger.Warningf("close session: %v", err)
		}
	}
}

// ----------------------------------------------------------------------------
// Workers
// ----------------------------------------------------------------------------

// worker holds the state shared by all workers of one run
type worker struct {
	engine *Engine
	acc    *Accumulator
	prog   *progress

	parent context.Context // bounds in-flight calls
	run    context.Context // ends the run
	stop   context.CancelFunc

	start time.Time
	total uint64 // workers over all connections

	seq     atomic.Uint64
	tickets atomic.Int64
	dropped []atomic.Bool
}

// loop runs one worker until the run ends or its session drops. With a target
// rate the k-th request of worker index is due at start + (index + k*total) / rate.
func (w *worker) loop(conn int, index uint64, sess Session) {
	rate := w.engine.config.TargetRate

	for k := uint64(0); ; k++ {
		if rate > 0 {
			due := float64(index+k*w.total) / rate
			if !waitUntil(w.run, w.start.Add(time.Duration(due*float64(time.Second)))) {
				return
			}
		} else if w.run.Err() != nil {
			return
		}

		if !sess.Ready() {
			if !w.dropped[conn].Swap(true) {
				Logger.Warningf("session %d dropped, its workers stop", conn)
			}
			return
		}

		if !w.take() {
			w.stop()
			return
		}
		w.do(sess)
	}
}

// take claims one request of the TotalRequests budget
func (w *worker) take() bool {
	limit := w.engine.config.TotalRequests
	if limit == 0 {
		return true
	}
	return w.tickets.Add(1) <= limit
}

// do performs and records one unit of work
func (w *worker) do(sess Session) {
	e := w.engine

	service, payload, err := e.workload.Next(w.seq.Add(1) - 1)
	w.acc.Issue()
	if err != nil {
		w.record(WorkOutcome{ErrorKind: "workload"})
		return
	}

	ctx, cancel := context.WithTimeout(w.parent, e.config.callTimeout())
	start := time.Now()
	resp, err := sess.Dispatch(ctx, service, payload)
	latency := time.Since(start)
	cancel()

	if err == nil {
		err = e.workload.Check(resp)
	}
	if err != nil {
		w.record(WorkOutcome{Latency: latency, ErrorKind: e.classify(err)})
		return
	}
	w.record(WorkOutcome{Success: true, Latency: latency})
}

func (w *worker) record(o WorkOutcome) {
	w.acc.Record(o)
	w.prog.observe(o)
}

// waitUntil blocks until slot. It sleeps while the slot is further away than
// schedulerResolution and spins for the rest, so it never returns early. It
// returns false if ctx ends first.
func waitUntil(ctx context.Context, slot time.Time) bool {
	for {
		d := time.Until(slot)
		if d <= 0 {
			return ctx.Err() == nil
		}

		if d > schedulerResolution {
			timer := time.NewTimer(d - schedulerResolution)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false
			case <-timer.C:
			}
			continue
		}

		if ctx.Err() != nil {
			return false
		}
		runtime.Gosched()
	}
}
