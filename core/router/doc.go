// Package router is the cluster command execution engine: it decides which
// node(s) a logical command must run on, dispatches execution concurrently
// across them, follows MOVED/ASK-style topology redirects, and merges
// per-node outcomes into a single result.
//
// # Architecture
//
// A [Router] combines four injected collaborators (see the cluster package
// for the contracts):
//
//   - a cluster.TopologyProvider resolving the current cluster shape
//   - a cluster.ResourceProvider handing out node-scoped handles
//   - a cluster.ErrorTranslator mapping driver errors into the taxonomy
//   - a shared, bounded task pool executing dispatched units
//
// Commands are plain functions over the node handle type, so the router
// stays generic over both the handle and the result:
//
//	get := func(ctx context.Context, conn *driver.Conn) ([]byte, error) {
//	    return conn.Do(ctx, []byte("GET k"))
//	}
//	res, err := router.ExecuteOnNode(ctx, r, get, node)
//
// # Fan-out
//
// [ExecuteOnNodes], [ExecuteOnAllMasters] and [ExecuteMultiKey] dispatch one
// unit of work per (node, key) pair onto the pool and wait for every unit to
// reach a terminal state. Dispatch order is deterministic and follows input
// order; completion order is not. Callers correlate results by the node and
// key recorded on each [NodeResult], never by position.
//
// A fan-out never hides partial failure: if any unit fails, the call returns
// an [AggregateError] carrying a cause per failed node, and successful
// sibling results are discarded. Successes are only returned when every unit
// succeeded.
//
// # Redirects
//
// Each unit follows slot-ownership redirects independently, re-resolving the
// target through the topology provider, up to the configured budget
// (default [DefaultMaxRedirects]). An exhausted budget surfaces as
// cluster.ErrTooManyRedirects for that unit only.
package router
