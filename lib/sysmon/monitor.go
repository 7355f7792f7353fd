package sysmon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/vsign/lib/bench"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/shirou/gopsutil/cpu"
)

var Logger = logger.GetLogger("sysmon")

// Sampler measures the CPU utilisation in percent over interval. It blocks
// for the interval.
type Sampler func(ctx context.Context, interval time.Duration) (float64, error)

// CPUSampler averages the utilisation over all CPUs
func CPUSampler(ctx context.Context, interval time.Duration) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return 0, fmt.Errorf("sample cpu: %w", err)
	}
	if len(percents) == 0 {
		return 0, errors.New("sample cpu: no data")
	}
	return percents[0], nil
}

// Config controls a Monitor
type Config struct {
	// Interval is the length of one sample
	Interval time.Duration
	// Window is the summary period; each summary covers the last Window/Interval samples
	Window time.Duration
	// Samples stops the monitor after this many samples (0 = until the context ends)
	Samples int
}

// DefaultConfig samples every second and summarises the last five seconds
func DefaultConfig() Config {
	return Config{
		Interval: time.Second,
		Window:   5 * time.Second,
	}
}

// windowSize returns the number of samples per summary, at least one
func (c Config) windowSize() int {
	if c.Interval <= 0 {
		return 1
	}
	return max(1, int(c.Window/c.Interval))
}

// String returns a formatted string representation of the configuration
func (c Config) String() string {
	var sb strings.Builder
	sb.WriteString("\nCPU MONITOR\n")
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Sample Interval", c.Interval))
	sb.WriteString(fmt.Sprintf("  %-22s: %s (%d samples)\n", "Summary Period", c.Window, c.windowSize()))
	if c.Samples > 0 {
		sb.WriteString(fmt.Sprintf("  %-22s: %d\n", "Samples", c.Samples))
	}
	return sb.String()
}

// Option configures a Monitor
type Option func(*Monitor)

// WithSampler replaces CPUSampler
func WithSampler(s Sampler) Option {
	return func(m *Monitor) { m.sample = s }
}

// WithSummaryHandler is called with every window summary. The default logs it.
func WithSummaryHandler(fn func(bench.Summary)) Option {
	return func(m *Monitor) { m.onSummary = fn }
}

// Monitor samples CPU utilisation and summarises a sliding window of samples
type Monitor struct {
	config    Config
	sample    Sampler
	onSummary func(bench.Summary)
}

// NewMonitor validates the configuration
func NewMonitor(config Config, opts ...Option) (*Monitor, error) {
	switch {
	case config.Interval <= 0:
		return nil, errors.New("sample interval must be positive")
	case config.Window < config.Interval:
		return nil, errors.New("summary period must not be shorter than the sample interval")
	case config.Samples < 0:
		return nil, errors.New("sample count must not be negative")
	}

	m := &Monitor{
		config:    config,
		sample:    CPUSampler,
		onSummary: LogSummary,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Run samples until ctx ends or Config.Samples is reached. Once the window is
// full a summary is emitted after every sample. It returns the summary over
// all samples taken.
func (m *Monitor) Run(ctx context.Context) (bench.Summary, error) {
	size := m.config.windowSize()
	window := make([]float64, 0, size)
	var all []float64

	for m.config.Samples == 0 || len(all) < m.config.Samples {
		v, err := m.sample(ctx, m.config.Interval)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return bench.Summarize(all), err
		}
		all = append(all, v)

		if len(window) == size {
			window = append(window[:0], window[1:]...)
		}
		window = append(window, v)

		if len(window) == size && m.onSummary != nil {
			m.onSummary(bench.Summarize(window))
		}
	}

	return bench.Summarize(all), nil
}

// LogSummary logs a window summary
func LogSummary(s bench.Summary) {
	Logger.Infof("min=%.2f%% max=%.2f%% avg=%.2f%% p95=%.2f%% p99=%.2f%%", s.Min, s.Max, s.Mean, s.P95, s.P99)
}
