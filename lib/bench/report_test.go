package bench

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/ValentinKolb/vsign/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorConcurrentRecord(t *testing.T) {
	acc := NewAccumulator()

	const goroutines = 50
	const perGoroutine = 1000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				acc.Issue()
				if i%4 == 0 {
					kind := "timeout"
					if g%2 == 0 {
						kind = ""
					}
					acc.Record(WorkOutcome{ErrorKind: kind})
					continue
				}
				acc.Record(WorkOutcome{Success: true, Latency: time.Duration(i) * time.Microsecond})
			}
		}(g)
	}
	wg.Wait()

	snap := acc.Snapshot()
	assert.Equal(t, int64(goroutines*perGoroutine), snap.Issued)
	assert.Equal(t, int64(goroutines*perGoroutine*3/4), snap.Succeeded)
	assert.Equal(t, int64(goroutines*perGoroutine/4), snap.Failed)
	assert.Len(t, snap.Latencies, goroutines*perGoroutine*3/4)
	assert.Equal(t, map[string]int64{"timeout": 6250, "other": 6250}, snap.Errors)
	assert.Equal(t, snap.Issued, acc.Completed())
}

func TestSampleShardStride(t *testing.T) {
	assert.Equal(t, uintptr(sampleShardSize), unsafe.Sizeof(sampleShard{}))
}

func TestStats(t *testing.T) {
	s := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 8, s.Count)
	assert.Equal(t, 5.0, s.Mean)
	assert.Equal(t, 2.0, s.StdDeviation)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)

	assert.Equal(t, Stats{}, NewStats(nil))
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestPercentile(t *testing.T) {
	values := make([]float64, 0, 100)
	for i := 100; i >= 1; i-- {
		values = append(values, float64(i))
	}

	s := Summarize(values)
	assert.Equal(t, 50.0, s.P50)
	assert.Equal(t, 95.0, s.P95)
	assert.Equal(t, 99.0, s.P99)
	assert.Equal(t, 100.0, values[0], "input must stay unsorted")

	sorted := []float64{10}
	assert.Equal(t, 10.0, Percentile(sorted, 1))
	assert.Equal(t, 10.0, Percentile(sorted, 100))
	assert.Equal(t, 0.0, Percentile(nil, 50))

	assert.Equal(t, 1.0, Percentile([]float64{1, 2, 3, 4}, 25))
	assert.Equal(t, 2.0, Percentile([]float64{1, 2, 3, 4}, 50))
	assert.Equal(t, 4.0, Percentile([]float64{1, 2, 3, 4}, 99))
}

func sampleReport(t *testing.T) *Report {
	cfg := testConfig(2, 4)
	cfg.Service = "ecc_sign"
	cfg.TargetRate = 100
	cfg.Transport = transport.NewTCPConfig("127.0.0.1", 8080)

	snap := Snapshot{
		Issued:    4,
		Succeeded: 3,
		Failed:    1,
		Latencies: []time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond},
		Errors:    map[string]int64{"timeout": 1},
	}
	started := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewReport("run-1", cfg, snap, started, 2*time.Second, 0)
}

func TestNewReport(t *testing.T) {
	r := sampleReport(t)

	assert.Equal(t, "ecc_sign", r.Service)
	assert.Equal(t, int64(4), r.Total)
	assert.Equal(t, 75.0, r.SuccessRate)
	assert.Equal(t, 2.0, r.AchievedRate)
	assert.Equal(t, 2000.0, r.MeanLatencyUs)
	assert.Equal(t, 1000.0, r.MinLatencyUs)
	assert.Equal(t, 3000.0, r.MaxLatencyUs)
	assert.Equal(t, 2000.0, r.P50LatencyUs)
	assert.Equal(t, 3000.0, r.P99LatencyUs)
	assert.False(t, r.Inconclusive)
	assert.False(t, r.Degraded)
	assert.Equal(t, 2*time.Second, r.Elapsed())

	summary := r.String()
	assert.Contains(t, summary, "ECC_SIGN BENCHMARK RESULTS")
	assert.Contains(t, summary, "75.00%")
	assert.Contains(t, summary, "timeout")

	empty := NewReport("run-2", testConfig(1, 1), Snapshot{}, time.Now(), 0, 1)
	assert.True(t, empty.Inconclusive)
	assert.True(t, empty.Degraded)
	assert.Zero(t, empty.AchievedRate)
	assert.Zero(t, empty.SuccessRate)
	assert.Contains(t, empty.String(), "inconclusive")
}

func TestReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport(t).WriteJSON(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, 75.0, decoded["success_rate"])
	assert.Equal(t, 2000.0, decoded["p50_latency_us"])
	assert.Equal(t, map[string]any{"timeout": 1.0}, decoded["errors"])
}

func TestReportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleReport(t), sampleReport(t)))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Len(t, rows[1], len(csvHeader))
	assert.Equal(t, "run-1", rows[1][0])
	assert.Equal(t, "2025-01-02T03:04:05Z", rows[1][1])
	assert.Equal(t, "timeout=1", rows[1][len(rows[1])-1])

	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, AppendCSV(path, sampleReport(t)))
	require.NoError(t, AppendCSV(path, sampleReport(t)))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, 1, strings.Count(string(content), "run_id"))
}

func TestConfigString(t *testing.T) {
	cfg := testConfig(2, 3)
	cfg.Duration = time.Minute
	s := cfg.String()
	assert.Contains(t, s, "closed loop")
	assert.Contains(t, s, "1m0s")
	assert.Equal(t, 6, cfg.TotalWorkers())
}

func TestProgressTracksLiveOutcomes(t *testing.T) {
	var p *progress
	assert.NotPanics(t, func() { p.observe(WorkOutcome{Success: true}) })

	p = newProgress(NewAccumulator())
	defer p.stop()

	for i := 1; i <= 100; i++ {
		p.observe(WorkOutcome{Success: true, Latency: time.Duration(i) * time.Millisecond})
	}
	for i := 0; i < 10; i++ {
		p.observe(WorkOutcome{ErrorKind: "timeout", Latency: time.Second})
	}

	assert.Equal(t, int64(110), p.meter.Count())
	assert.Equal(t, int64(100), p.hist.TotalCount())
	assert.InEpsilon(t, 50000, p.hist.ValueAtQuantile(50), 0.01)
	assert.InEpsilon(t, 99000, p.hist.ValueAtQuantile(99), 0.01)
	assert.NotPanics(t, p.log)
}
