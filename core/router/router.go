package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/codewandler/kvroute-go/core/cluster"
	"github.com/codewandler/kvroute-go/core/workpool"
)

const (
	// DefaultMaxRedirects bounds how many slot-ownership redirects a single
	// unit follows before failing with cluster.ErrTooManyRedirects.
	DefaultMaxRedirects = 5

	// NoRedirects disables redirect following entirely: the first redirect a
	// unit receives is surfaced as cluster.ErrTooManyRedirects.
	NoRedirects = -1
)

type (
	// Command runs one logical command against a node handle of type C.
	Command[C, T any] func(ctx context.Context, conn C) (T, error)

	// KeyCommand runs one logical command for a specific key. Multi-key
	// executions invoke it once per key, each time against the node
	// currently serving that key.
	KeyCommand[C, T any] func(ctx context.Context, conn C, key []byte) (T, error)
)

// TaskPool is the bounded pool dispatched units run on. Satisfied by
// *workpool.Pool.
type TaskPool interface {
	Submit(ctx context.Context, fn func()) error
	Close()
}

// Options configures a Router.
type Options[C any] struct {
	Topology  cluster.TopologyProvider    // required
	Resources cluster.ResourceProvider[C] // required

	// Translator maps driver errors into the cluster taxonomy. Defaults to
	// cluster.NopTranslator (everything propagates verbatim).
	Translator cluster.ErrorTranslator

	// Pool runs dispatched units. Defaults to a new workpool.Pool, which the
	// router then owns and closes.
	Pool TaskPool

	// MaxRedirects is the redirect budget per unit. 0 selects
	// [DefaultMaxRedirects]; [NoRedirects] disables following.
	MaxRedirects int

	Log     *slog.Logger
	Metrics RouterMetrics
}

// Router coordinates command execution across the cluster. It is safe for
// concurrent use; the pool and resource provider are shared across
// concurrent fan-out calls.
//
// Router is generic over the node handle type C only. Result types are per
// call, via the top-level Execute functions.
type Router[C any] struct {
	log          *slog.Logger
	topo         cluster.TopologyProvider
	resources    cluster.ResourceProvider[C]
	translate    cluster.ErrorTranslator
	pool         TaskPool
	maxRedirects int
	metrics      RouterMetrics
}

// New creates a Router from opts, applying defaults for everything optional.
func New[C any](opts Options[C]) (*Router[C], error) {
	if opts.Topology == nil {
		return nil, fmt.Errorf("router: Options.Topology is required")
	}
	if opts.Resources == nil {
		return nil, fmt.Errorf("router: Options.Resources is required")
	}
	if opts.MaxRedirects < NoRedirects {
		return nil, fmt.Errorf("router: Options.MaxRedirects out of range: %d", opts.MaxRedirects)
	}

	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	translate := opts.Translator
	if translate == nil {
		translate = cluster.NopTranslator()
	}
	pool := opts.Pool
	if pool == nil {
		pool = workpool.New()
	}
	m := opts.Metrics
	if m == nil {
		m = NopRouterMetrics()
	}

	maxRedirects := opts.MaxRedirects
	switch {
	case maxRedirects == 0:
		maxRedirects = DefaultMaxRedirects
	case maxRedirects == NoRedirects:
		maxRedirects = 0
	}

	return &Router[C]{
		log:          log.With(slog.String("component", "router")),
		topo:         opts.Topology,
		resources:    opts.Resources,
		translate:    translate,
		pool:         pool,
		maxRedirects: maxRedirects,
		metrics:      m,
	}, nil
}

// Close tears down the worker pool and, when the resource provider supports
// it, the provider as well. In-flight commands are allowed to drain first.
func (r *Router[C]) Close() error {
	r.pool.Close()
	if closer, ok := any(r.resources).(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ExecuteOnNode runs cmd on the given node. The node reference is resolved
// against the current topology first and fails with cluster.ErrUnknownNode
// when no entry matches, before any resource is acquired.
//
// When cmd fails with a translated redirect, the router re-resolves the
// target through the topology provider and retries the same cmd against the
// new node, up to the configured redirect budget. Any other failure
// propagates after translation.
func ExecuteOnNode[C, T any](ctx context.Context, r *Router[C], cmd Command[C, T], node cluster.Node) (NodeResult[T], error) {
	defer r.metrics.CommandDuration(OpNode).ObserveDuration()
	res, err := executeOnNode(ctx, r, cmd, node, nil)
	r.metrics.CommandCompleted(OpNode, err == nil)
	return res, err
}

// ExecuteOnArbitraryNode runs cmd on one node picked uniformly at random
// from the currently active nodes. Used for cluster-wide informational
// commands where any node's answer suffices.
func ExecuteOnArbitraryNode[C, T any](ctx context.Context, r *Router[C], cmd Command[C, T]) (NodeResult[T], error) {
	defer r.metrics.CommandDuration(OpArbitrary).ObserveDuration()

	var zero NodeResult[T]
	topo, err := r.topo.Topology(ctx)
	if err != nil {
		r.metrics.CommandCompleted(OpArbitrary, false)
		return zero, err
	}
	nodes := topo.ActiveNodes()
	if len(nodes) == 0 {
		r.metrics.CommandCompleted(OpArbitrary, false)
		return zero, fmt.Errorf("%w: no active nodes", cluster.ErrClusterState)
	}

	res, err := executeOnNode(ctx, r, cmd, nodes[rand.IntN(len(nodes))], nil)
	r.metrics.CommandCompleted(OpArbitrary, err == nil)
	return res, err
}

// ExecuteOnAllMasters fans cmd out to every currently active master node.
func ExecuteOnAllMasters[C, T any](ctx context.Context, r *Router[C], cmd Command[C, T]) (*AggregateResult[T], error) {
	defer r.metrics.CommandDuration(OpAllMasters).ObserveDuration()

	topo, err := r.topo.Topology(ctx)
	if err != nil {
		r.metrics.CommandCompleted(OpAllMasters, false)
		return nil, err
	}

	agg, err := executeOnNodes(ctx, r, cmd, topo, topo.ActiveMasters(), OpAllMasters)
	r.metrics.CommandCompleted(OpAllMasters, err == nil)
	return agg, err
}

// ExecuteOnNodes fans cmd out to the given nodes concurrently. Every node is
// resolved against the current topology before any work is dispatched, so an
// unknown node fails the whole call fast.
//
// The call blocks until every dispatched unit reached a terminal state. If
// any unit failed, the whole call fails with an [AggregateError] carrying
// every per-node cause. Canceling ctx aborts the wait only: in-flight units
// keep running on the pool and release their node resources themselves, but
// their results are discarded.
func ExecuteOnNodes[C, T any](ctx context.Context, r *Router[C], cmd Command[C, T], nodes []cluster.Node) (*AggregateResult[T], error) {
	defer r.metrics.CommandDuration(OpNodes).ObserveDuration()

	topo, err := r.topo.Topology(ctx)
	if err != nil {
		r.metrics.CommandCompleted(OpNodes, false)
		return nil, err
	}

	agg, err := executeOnNodes(ctx, r, cmd, topo, nodes, OpNodes)
	r.metrics.CommandCompleted(OpNodes, err == nil)
	return agg, err
}

// ExecuteMultiKey routes each key to the master currently serving its slot
// and fans out one unit per key. Replica-only serving sets are dropped:
// multi-key commands only ever run against the authoritative owner.
//
// Each unit keeps its own redirect budget, so a slot moving mid-call only
// redirects the affected key. Results carry the originating key, letting
// callers rebuild per-key associations regardless of completion order.
func ExecuteMultiKey[C, T any](ctx context.Context, r *Router[C], cmd KeyCommand[C, T], keys [][]byte) (*AggregateResult[T], error) {
	defer r.metrics.CommandDuration(OpMultiKey).ObserveDuration()

	topo, err := r.topo.Topology(ctx)
	if err != nil {
		r.metrics.CommandCompleted(OpMultiKey, false)
		return nil, err
	}

	// group keys by serving master, preserving first-seen node order and
	// input key order within each node
	var order []cluster.Node
	groups := make(map[cluster.Node][][]byte)
	for _, key := range keys {
		master, ok := masterServing(topo, key)
		if !ok {
			r.log.Debug("dropping key with no master serving it",
				slog.String("key", string(key)),
				slog.Uint64("slot", uint64(cluster.SlotForKey(key))),
			)
			continue
		}
		if _, seen := groups[master]; !seen {
			order = append(order, master)
		}
		groups[master] = append(groups[master], key)
	}

	units := make([]*unit[T], 0, len(keys))
	for _, node := range order {
		for _, key := range groups[node] {
			key := key
			units = append(units, dispatchUnit(ctx, r, func(ctx context.Context, conn C) (T, error) {
				return cmd(ctx, conn, key)
			}, node, key))
		}
	}
	r.metrics.FanoutSize(OpMultiKey, len(units))

	agg, err := collect(ctx, r.log, units)
	r.metrics.CommandCompleted(OpMultiKey, err == nil)
	return agg, err
}

func masterServing(topo *cluster.Topology, key []byte) (cluster.Node, bool) {
	for _, n := range topo.NodesServing(key) {
		if n.IsMaster() {
			return n, true
		}
	}
	return cluster.Node{}, false
}

// executeOnNodes resolves every node first (fail fast), then dispatches one
// unit per node and waits for all of them.
func executeOnNodes[C, T any](ctx context.Context, r *Router[C], cmd Command[C, T], topo *cluster.Topology, nodes []cluster.Node, op string) (*AggregateResult[T], error) {
	resolved := make([]cluster.Node, len(nodes))
	for i, n := range nodes {
		var err error
		if resolved[i], err = topo.Lookup(n); err != nil {
			return nil, err
		}
	}

	units := make([]*unit[T], len(resolved))
	for i, node := range resolved {
		units[i] = dispatchUnit(ctx, r, cmd, node, nil)
	}
	r.metrics.FanoutSize(op, len(units))

	return collect(ctx, r.log, units)
}

// executeOnNode is the single-unit execution path shared by every Execute
// variant: resolve, acquire, run, translate, follow redirects.
func executeOnNode[C, T any](ctx context.Context, r *Router[C], cmd Command[C, T], node cluster.Node, key []byte) (NodeResult[T], error) {
	var zero NodeResult[T]

	topo, err := r.topo.Topology(ctx)
	if err != nil {
		return zero, err
	}
	resolved, err := topo.Lookup(node)
	if err != nil {
		return zero, err
	}

	for redirects := 0; ; redirects++ {
		value, err := runOnResource(ctx, r, cmd, resolved)
		if err == nil {
			return NodeResult[T]{Node: resolved, Value: value, Key: key}, nil
		}

		redirect, ok := cluster.AsRedirect(err)
		if !ok {
			r.metrics.NodeFailure(resolved.String())
			return zero, err
		}
		if redirects >= r.maxRedirects {
			return zero, fmt.Errorf("%w: followed %d, next target %s:%d",
				cluster.ErrTooManyRedirects, redirects, redirect.Host, redirect.Port)
		}

		r.metrics.RedirectFollowed()
		r.log.Debug("following redirect",
			slog.String("from", resolved.String()),
			slog.String("kind", string(redirect.Kind)),
			slog.String("to", fmt.Sprintf("%s:%d", redirect.Host, redirect.Port)),
			slog.Uint64("slot", uint64(redirect.Slot)),
		)

		// re-resolve the target against a fresh view
		if inv, ok := r.topo.(cluster.TopologyInvalidator); ok {
			inv.Invalidate()
		}
		if topo, err = r.topo.Topology(ctx); err != nil {
			return zero, err
		}
		if resolved, err = topo.LookupAddr(redirect.Host, redirect.Port); err != nil {
			return zero, err
		}
	}
}

// runOnResource acquires a node handle, runs cmd and releases the handle
// whatever the outcome. Redirect retries go through here again, acquiring a
// fresh handle for the new node.
func runOnResource[C, T any](ctx context.Context, r *Router[C], cmd Command[C, T], node cluster.Node) (out T, err error) {
	conn, err := r.resources.Acquire(ctx, node)
	if err != nil {
		return out, err
	}
	defer func() {
		if rerr := r.resources.Release(node, conn); rerr != nil {
			r.log.Warn("failed to release node resource",
				slog.String("node", node.String()),
				slog.Any("error", rerr),
			)
		}
	}()

	out, err = cmd(ctx, conn)
	if err != nil {
		if translated := r.translate.Translate(err); translated != nil {
			err = translated
		}
		return out, err
	}
	return out, nil
}

var _ TaskPool = (*workpool.Pool)(nil)
