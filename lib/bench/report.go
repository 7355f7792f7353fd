package bench

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Report is the flat result record of one run. Latencies are in microseconds.
type Report struct {
	RunID                string    `json:"run_id"`
	StartedAt            time.Time `json:"started_at"`
	Service              string    `json:"service"`
	Transport            string    `json:"transport"`
	Connections          int       `json:"connections"`
	WorkersPerConnection int       `json:"workers_per_connection"`
	TargetRate           float64   `json:"target_rate"`

	Total        int64   `json:"total"`
	Succeeded    int64   `json:"succeeded"`
	Failed       int64   `json:"failed"`
	SuccessRate  float64 `json:"success_rate"` // percent
	DurationSec  float64 `json:"duration_s"`
	AchievedRate float64 `json:"achieved_rate"`

	MeanLatencyUs   float64 `json:"mean_latency_us"`
	MinLatencyUs    float64 `json:"min_latency_us"`
	MaxLatencyUs    float64 `json:"max_latency_us"`
	StdDevLatencyUs float64 `json:"stddev_latency_us"`
	P50LatencyUs    float64 `json:"p50_latency_us"`
	P95LatencyUs    float64 `json:"p95_latency_us"`
	P99LatencyUs    float64 `json:"p99_latency_us"`

	DroppedConnections int              `json:"dropped_connections"`
	Degraded           bool             `json:"degraded"`
	Inconclusive       bool             `json:"inconclusive"`
	Errors             map[string]int64 `json:"errors,omitempty"`
}

// NewReport derives a report from a snapshot. Percentiles are computed by
// sorting the full latency sample set once.
func NewReport(runID string, cfg Config, snap Snapshot, startedAt time.Time, elapsed time.Duration, dropped int) *Report {
	r := &Report{
		RunID:                runID,
		StartedAt:            startedAt,
		Service:              cfg.Service,
		Transport:            cfg.Transport.String(),
		Connections:          cfg.Connections,
		WorkersPerConnection: cfg.WorkersPerConnection,
		TargetRate:           cfg.TargetRate,
		Total:                snap.Issued,
		Succeeded:            snap.Succeeded,
		Failed:               snap.Failed,
		DurationSec:          elapsed.Seconds(),
		DroppedConnections:   dropped,
		Degraded:             dropped > 0,
	}
	if len(snap.Errors) > 0 {
		r.Errors = snap.Errors
	}

	if r.Total > 0 {
		r.SuccessRate = float64(r.Succeeded) / float64(r.Total) * 100
	}
	if elapsed > 0 {
		r.AchievedRate = float64(r.Total) / elapsed.Seconds()
	}

	if len(snap.Latencies) == 0 {
		r.Inconclusive = true
		return r
	}

	us := make([]float64, len(snap.Latencies))
	for i, l := range snap.Latencies {
		us[i] = float64(l) / float64(time.Microsecond)
	}
	s := Summarize(us)
	r.MeanLatencyUs = s.Mean
	r.MinLatencyUs = s.Min
	r.MaxLatencyUs = s.Max
	r.StdDevLatencyUs = s.StdDeviation
	r.P50LatencyUs = s.P50
	r.P95LatencyUs = s.P95
	r.P99LatencyUs = s.P99
	return r
}

// Elapsed returns the wall clock duration of the run
func (r *Report) Elapsed() time.Duration {
	return time.Duration(r.DurationSec * float64(time.Second))
}

// String renders the human readable summary
func (r *Report) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	latency := func(us float64) string {
		return time.Duration(us * float64(time.Microsecond)).Round(time.Microsecond).String()
	}

	addSection(r.Service + " benchmark results")
	addField("Run", r.RunID)
	addField("Server", r.Transport)
	addField("Connections", fmt.Sprintf("%d x %d workers", r.Connections, r.WorkersPerConnection))
	addField("Total Requests", strconv.FormatInt(r.Total, 10))
	addField("Successful", strconv.FormatInt(r.Succeeded, 10))
	addField("Failed", strconv.FormatInt(r.Failed, 10))
	addField("Success Rate", fmt.Sprintf("%.2f%%", r.SuccessRate))
	addField("Duration", r.Elapsed().Round(time.Millisecond).String())
	addField("Requests Per Second", fmt.Sprintf("%.2f", r.AchievedRate))
	if r.TargetRate > 0 {
		addField("Target Rate", fmt.Sprintf("%.2f", r.TargetRate))
	}

	addSection("Latency")
	if r.Inconclusive {
		addField("Result", "inconclusive (no successful requests)")
	} else {
		addField("Mean", latency(r.MeanLatencyUs))
		addField("Min", latency(r.MinLatencyUs))
		addField("Max", latency(r.MaxLatencyUs))
		addField("Std Deviation", latency(r.StdDevLatencyUs))
		addField("P50", latency(r.P50LatencyUs))
		addField("P95", latency(r.P95LatencyUs))
		addField("P99", latency(r.P99LatencyUs))
	}

	if len(r.Errors) > 0 || r.Degraded {
		addSection("Errors")
		for _, kind := range sortedKeys(r.Errors) {
			addField(kind, strconv.FormatInt(r.Errors[kind], 10))
		}
		if r.Degraded {
			addField("Dropped Connections", strconv.Itoa(r.DroppedConnections))
		}
	}

	return sb.String()
}

// WriteJSON writes the report as an indented JSON object
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// csvHeader lists the CSV columns in record order
var csvHeader = []string{
	"run_id", "started_at", "service", "transport", "connections", "workers_per_connection", "target_rate",
	"total", "succeeded", "failed", "success_rate", "duration_s", "achieved_rate",
	"mean_latency_us", "min_latency_us", "max_latency_us", "stddev_latency_us",
	"p50_latency_us", "p95_latency_us", "p99_latency_us",
	"dropped_connections", "degraded", "inconclusive", "errors",
}

func (r *Report) csvRecord() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

	errs := make([]string, 0, len(r.Errors))
	for _, kind := range sortedKeys(r.Errors) {
		errs = append(errs, fmt.Sprintf("%s=%d", kind, r.Errors[kind]))
	}

	return []string{
		r.RunID, r.StartedAt.UTC().Format(time.RFC3339), r.Service, r.Transport,
		strconv.Itoa(r.Connections), strconv.Itoa(r.WorkersPerConnection), f(r.TargetRate),
		strconv.FormatInt(r.Total, 10), strconv.FormatInt(r.Succeeded, 10), strconv.FormatInt(r.Failed, 10),
		f(r.SuccessRate), f(r.DurationSec), f(r.AchievedRate),
		f(r.MeanLatencyUs), f(r.MinLatencyUs), f(r.MaxLatencyUs), f(r.StdDevLatencyUs),
		f(r.P50LatencyUs), f(r.P95LatencyUs), f(r.P99LatencyUs),
		strconv.Itoa(r.DroppedConnections), strconv.FormatBool(r.Degraded), strconv.FormatBool(r.Inconclusive),
		strings.Join(errs, ";"),
	}
}

// WriteCSV writes a header line followed by one line per report
func WriteCSV(w io.Writer, reports ...*Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range reports {
		if err := cw.Write(r.csvRecord()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// AppendCSV appends the report to the CSV file at path, writing the header
// first when the file is new or empty
func AppendCSV(path string, r *Report) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
	}
	if err := cw.Write(r.csvRecord()); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
