package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codewandler/kvroute-go/core/cluster"
)

// NodeError records the failure of one dispatched unit, keyed to the node
// (and, for multi-key commands, the key) it ran against.
type NodeError struct {
	Node cluster.Node
	Key  []byte
	Err  error
}

func (e NodeError) Error() string {
	if len(e.Key) > 0 {
		return fmt.Sprintf("node %s (key %q): %v", e.Node, e.Key, e.Err)
	}
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e NodeError) Unwrap() error { return e.Err }

// AggregateError is raised when one or more units of a fan-out failed. It
// carries every per-node cause, not just the first, so callers can inspect
// exactly which nodes failed and why.
type AggregateError struct {
	Causes []NodeError
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cluster command failed on %d node(s)", len(e.Causes))
	for _, c := range e.Causes {
		b.WriteString("; ")
		b.WriteString(c.Error())
	}
	return b.String()
}

// Unwrap exposes the per-node causes to errors.Is / errors.As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Causes))
	for _, c := range e.Causes {
		errs = append(errs, c)
	}
	return errs
}

// CauseFor returns the recorded cause for the given node, if any.
func (e *AggregateError) CauseFor(node cluster.Node) (error, bool) {
	for _, c := range e.Causes {
		if c.Node.SameAs(node) {
			return c.Err, true
		}
	}
	return nil, false
}

// AsAggregate extracts an AggregateError from an error chain.
func AsAggregate(err error) (*AggregateError, bool) {
	var ae *AggregateError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
