package router

import "github.com/codewandler/kvroute-go/core/metrics"

// Operation labels used by [RouterMetrics].
const (
	OpNode       = "node"
	OpArbitrary  = "arbitrary_node"
	OpNodes      = "nodes"
	OpAllMasters = "all_masters"
	OpMultiKey   = "multi_key"
)

// RouterMetrics is the instrumentation surface of the command router.
// All methods are thread-safe.
type RouterMetrics interface {
	// Command execution
	CommandDuration(op string) metrics.Timer
	CommandCompleted(op string, success bool)

	// Routing
	RedirectFollowed()
	FanoutSize(op string, size int)
	NodeFailure(node string)
}

type nopRouterMetrics struct{}

func (nopRouterMetrics) CommandDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopRouterMetrics) CommandCompleted(string, bool)        {}
func (nopRouterMetrics) RedirectFollowed()                    {}
func (nopRouterMetrics) FanoutSize(string, int)               {}
func (nopRouterMetrics) NodeFailure(string)                   {}

// NopRouterMetrics returns a no-op RouterMetrics implementation.
func NopRouterMetrics() RouterMetrics { return nopRouterMetrics{} }
