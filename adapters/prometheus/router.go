package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/kvroute-go/core/metrics"
	"github.com/codewandler/kvroute-go/core/router"
)

// routerMetrics implements router.RouterMetrics using Prometheus.
type routerMetrics struct {
	commandDuration *prometheus.HistogramVec
	commandsTotal   *prometheus.CounterVec
	redirectsTotal  prometheus.Counter
	fanoutSize      *prometheus.HistogramVec
	nodeFailures    *prometheus.CounterVec
}

// NewRouterMetrics creates a new Prometheus implementation of
// router.RouterMetrics.
func NewRouterMetrics(reg prometheus.Registerer) router.RouterMetrics {
	m := &routerMetrics{
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kvroute_command_duration_seconds",
			Help:    "Command execution time in seconds",
			Buckets: defaultBuckets,
		}, []string{"op"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvroute_commands_total",
			Help: "Total number of commands executed",
		}, []string{"op", "success"}),

		redirectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvroute_redirects_followed_total",
			Help: "Total number of cluster redirects followed",
		}),

		fanoutSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kvroute_fanout_size",
			Help:    "Number of units dispatched per fan-out call",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}, []string{"op"}),

		nodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvroute_node_failures_total",
			Help: "Total number of per-node command failures",
		}, []string{"node"}),
	}

	reg.MustRegister(
		m.commandDuration,
		m.commandsTotal,
		m.redirectsTotal,
		m.fanoutSize,
		m.nodeFailures,
	)

	return m
}

func (m *routerMetrics) CommandDuration(op string) metrics.Timer {
	return newTimer(m.commandDuration.WithLabelValues(op))
}

func (m *routerMetrics) CommandCompleted(op string, success bool) {
	m.commandsTotal.WithLabelValues(op, boolToStr(success)).Inc()
}

func (m *routerMetrics) RedirectFollowed() {
	m.redirectsTotal.Inc()
}

func (m *routerMetrics) FanoutSize(op string, size int) {
	m.fanoutSize.WithLabelValues(op).Observe(float64(size))
}

func (m *routerMetrics) NodeFailure(node string) {
	m.nodeFailures.WithLabelValues(node).Inc()
}

var _ router.RouterMetrics = (*routerMetrics)(nil)
