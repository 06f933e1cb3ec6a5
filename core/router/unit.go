package router

import (
	"context"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/kvroute-go/core/cluster"
)

// unit is one dispatched execution attempt: a logical command bound to a
// node and, for multi-key commands, a key. The done channel closes exactly
// once when the unit reaches a terminal state; collected guards against
// consuming the outcome twice.
type unit[T any] struct {
	id   string
	node cluster.Node
	key  []byte

	done      chan struct{}
	result    NodeResult[T]
	err       error
	collected bool
}

// dispatchUnit submits the single-node execution of cmd (including its own
// redirect handling) onto the pool. A submission failure, such as a closed
// pool or a canceled context, terminates the unit immediately with that
// error.
func dispatchUnit[C, T any](ctx context.Context, r *Router[C], cmd Command[C, T], node cluster.Node, key []byte) *unit[T] {
	u := &unit[T]{
		id:   gonanoid.Must(8),
		node: node,
		key:  key,
		done: make(chan struct{}),
	}

	if err := r.pool.Submit(ctx, func() {
		defer close(u.done)
		u.result, u.err = executeOnNode(ctx, r, cmd, u.node, u.key)
	}); err != nil {
		u.err = err
		close(u.done)
	}

	return u
}

// collect waits for every unit to reach a terminal state, in dispatch
// order, and merges the outcomes. Successes are collected exactly once each;
// failures are recorded per node and raised together as an [AggregateError]
// once all units are terminal, so one node's failure never hides another's
// result or cause.
//
// A canceled ctx aborts the wait and returns the context error. Outstanding
// units keep running on the pool; whatever they produce afterwards is not
// collected.
func collect[T any](ctx context.Context, log *slog.Logger, units []*unit[T]) (*AggregateResult[T], error) {
	agg := &AggregateResult[T]{}
	var causes []NodeError

	for _, u := range units {
		select {
		case <-u.done:
			if u.collected {
				continue
			}
			u.collected = true
			if u.err != nil {
				log.Debug("unit failed",
					slog.String("unit", u.id),
					slog.String("node", u.node.String()),
					slog.Any("error", u.err),
				)
				causes = append(causes, NodeError{Node: u.node, Key: u.key, Err: u.err})
				continue
			}
			agg.add(u.result)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(causes) > 0 {
		return nil, &AggregateError{Causes: causes}
	}
	return agg, nil
}
