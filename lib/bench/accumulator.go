package bench

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"
)

// WorkOutcome is the result of one unit of work
type WorkOutcome struct {
	Success   bool
	Latency   time.Duration
	ErrorKind string // empty on success
}

const (
	// sampleShards spreads concurrent appends over independent locks
	sampleShards = 32

	// sampleShardSize is the stride of one shard. Two cache lines, so the
	// lock and slice header of neighbouring shards never share a line even
	// when the array does not start on a line boundary.
	sampleShardSize = 128
)

type sampleShard struct {
	mu      sync.Mutex
	samples []time.Duration
	_       [sampleShardSize - unsafe.Sizeof(sync.Mutex{}) - unsafe.Sizeof([]time.Duration(nil))]byte
}

// Accumulator collects the outcomes of one run. It is safe for concurrent
// use; a run always starts with a fresh Accumulator.
type Accumulator struct {
	issued    *xsync.Counter
	succeeded *xsync.Counter
	failed    *xsync.Counter

	next   atomic.Uint32
	shards [sampleShards]sampleShard

	errors *xsync.MapOf[string, *xsync.Counter]
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{
		issued:    xsync.NewCounter(),
		succeeded: xsync.NewCounter(),
		failed:    xsync.NewCounter(),
		errors:    xsync.NewMapOf[string, *xsync.Counter](),
	}
}

// Issue counts a unit of work about to be dispatched
func (a *Accumulator) Issue() { a.issued.Inc() }

// Record stores an outcome. Latencies are kept for successful outcomes only;
// failures are counted per error kind.
func (a *Accumulator) Record(o WorkOutcome) {
	if o.Success {
		a.succeeded.Inc()
		shard := &a.shards[a.next.Add(1)%sampleShards]
		shard.mu.Lock()
		shard.samples = append(shard.samples, o.Latency)
		shard.mu.Unlock()
		return
	}

	a.failed.Inc()
	kind := o.ErrorKind
	if kind == "" {
		kind = "other"
	}
	counter, _ := a.errors.LoadOrCompute(kind, xsync.NewCounter)
	counter.Inc()
}

// Issued returns the number of issued units of work
func (a *Accumulator) Issued() int64 { return a.issued.Value() }

// Succeeded returns the number of successful outcomes
func (a *Accumulator) Succeeded() int64 { return a.succeeded.Value() }

// Failed returns the number of failed outcomes
func (a *Accumulator) Failed() int64 { return a.failed.Value() }

// Completed returns the number of recorded outcomes
func (a *Accumulator) Completed() int64 { return a.Succeeded() + a.Failed() }

// Snapshot is a point in time copy of an Accumulator
type Snapshot struct {
	Issued    int64
	Succeeded int64
	Failed    int64
	Latencies []time.Duration // unordered
	Errors    map[string]int64
}

// Snapshot copies the current state. Taken after all workers have stopped it
// is exact.
func (a *Accumulator) Snapshot() Snapshot {
	snap := Snapshot{
		Issued:    a.Issued(),
		Succeeded: a.Succeeded(),
		Failed:    a.Failed(),
		Errors:    make(map[string]int64),
	}

	for i := range a.shards {
		shard := &a.shards[i]
		shard.mu.Lock()
		snap.Latencies = append(snap.Latencies, shard.samples...)
		shard.mu.Unlock()
	}

	a.errors.Range(func(kind string, c *xsync.Counter) bool {
		snap.Errors[kind] = c.Value()
		return true
	})
	return snap
}
