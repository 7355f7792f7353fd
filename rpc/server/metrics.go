package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// serviceMetrics are the per service request metrics
type serviceMetrics struct {
	requests *metrics.Counter
	errors   *metrics.Counter
	duration *metrics.Histogram
}

// serverMetrics is the metric set of one server. Every server owns its own
// set, so several servers in one process (tests) do not collide.
type serverMetrics struct {
	set      *metrics.Set
	services map[uint64]*serviceMetrics
	unknown  *serviceMetrics
	rejected *metrics.Counter
}

func newServerMetrics(openConnections func() int, keyCount func() int) *serverMetrics {
	set := metrics.NewSet()

	newService := func(name string) *serviceMetrics {
		return &serviceMetrics{
			requests: set.NewCounter(fmt.Sprintf(`vsign_requests_total{service=%q}`, name)),
			errors:   set.NewCounter(fmt.Sprintf(`vsign_request_errors_total{service=%q}`, name)),
			duration: set.NewHistogram(fmt.Sprintf(`vsign_request_duration_seconds{service=%q}`, name)),
		}
	}

	m := &serverMetrics{
		set:      set,
		services: make(map[uint64]*serviceMetrics),
		unknown:  newService("unknown"),
		rejected: set.NewCounter("vsign_requests_rejected_total"),
	}
	for _, id := range []uint64{common.ServiceEcho, common.ServiceSigning, common.ServiceHealth} {
		m.services[id] = newService(common.ServiceName(id))
	}

	set.NewGauge("vsign_open_connections", func() float64 { return float64(openConnections()) })
	set.NewGauge("vsign_keys", func() float64 { return float64(keyCount()) })

	return m
}

// observe records one handled request
func (m *serverMetrics) observe(service uint64, resp *common.Message, took time.Duration) {
	sm, ok := m.services[service]
	if !ok {
		sm = m.unknown
	}
	sm.requests.Inc()
	sm.duration.Update(took.Seconds())

	switch {
	case resp.Code == common.CodeRateLimited:
		m.rejected.Inc()
	case resp.Error() != nil:
		sm.errors.Inc()
	}
}

// router serves /metrics in Prometheus text format and /healthz
func (m *serverMetrics) router(serving func() bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m.set.WritePrometheus(w)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !serving() {
			http.Error(w, "not serving", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
