package bench

import (
	"context"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	metrics "github.com/rcrowley/go-metrics"
)

// progress tracks live throughput and approximate latency percentiles for the
// periodic log line. The final Report never reads from it.
type progress struct {
	acc   *Accumulator
	meter metrics.Meter

	mu   sync.Mutex
	hist *hdrhistogram.Histogram // microseconds
}

func newProgress(acc *Accumulator) *progress {
	return &progress{
		acc:   acc,
		meter: metrics.NewMeter(),
		hist:  hdrhistogram.New(1, time.Minute.Microseconds(), 3),
	}
}

// observe is a no-op on a nil progress
func (p *progress) observe(o WorkOutcome) {
	if p == nil {
		return
	}
	p.meter.Mark(1)
	if !o.Success {
		return
	}

	p.mu.Lock()
	// values above the histogram range are dropped
	_ = p.hist.RecordValue(max(o.Latency.Microseconds(), 1))
	p.mu.Unlock()
}

func (p *progress) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.log()
		}
	}
}

func (p *progress) log() {
	p.mu.Lock()
	p50 := time.Duration(p.hist.ValueAtQuantile(50)) * time.Microsecond
	p99 := time.Duration(p.hist.ValueAtQuantile(99)) * time.Microsecond
	p.mu.Unlock()

	Logger.Infof("progress: %d issued, %d ok, %d failed, %.1f req/s (1m ewma %.1f), p50 %s, p99 %s",
		p.acc.Issued(), p.acc.Succeeded(), p.acc.Failed(),
		p.meter.RateMean(), p.meter.Rate1(), p50, p99)
}

func (p *progress) stop() {
	p.meter.Stop()
}
