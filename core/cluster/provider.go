package cluster

import "context"

// TopologyProvider answers "what is the current cluster shape?". A provider
// fails with an error wrapping [ErrClusterState] when no topology can
// currently be determined.
//
// Implementations must be safe for concurrent use; the router calls Topology
// at the start of every command execution and again after each redirect.
type TopologyProvider interface {
	Topology(ctx context.Context) (*Topology, error)
}

// TopologyInvalidator is optionally implemented by caching providers.
// The router invalidates before re-resolving a redirect target so the
// follow-up fetch reflects the slot move.
type TopologyInvalidator interface {
	Invalidate()
}

// ResourceProvider acquires and releases a node-scoped execution handle of
// type C (a live connection or session bound to one node).
//
// Acquire fails with an error wrapping [ErrAcquireResource] when the node is
// unreachable or unknown to the provider. Release must be safe to call even
// after a prior failure, and under concurrent use from units targeting the
// same node.
type ResourceProvider[C any] interface {
	Acquire(ctx context.Context, node Node) (C, error)
	Release(node Node, conn C) error
}

// ErrorTranslator maps driver-specific errors into the package taxonomy.
//
// Translate returns a taxonomy error (possibly a *[RedirectError]) when it
// recognizes err, or nil when err should propagate to the caller verbatim.
type ErrorTranslator interface {
	Translate(err error) error
}

// ErrorTranslatorFunc adapts a function to the [ErrorTranslator] interface.
type ErrorTranslatorFunc func(err error) error

func (f ErrorTranslatorFunc) Translate(err error) error { return f(err) }

// NopTranslator returns a translator that recognizes nothing, so every
// driver error propagates unchanged.
func NopTranslator() ErrorTranslator {
	return ErrorTranslatorFunc(func(error) error { return nil })
}

// StaticProvider serves a fixed topology snapshot. Useful for tests and for
// clusters whose shape is managed out of band.
type StaticProvider struct {
	topology *Topology
}

// NewStaticProvider creates a provider that always returns t.
func NewStaticProvider(t *Topology) *StaticProvider {
	return &StaticProvider{topology: t}
}

func (p *StaticProvider) Topology(ctx context.Context) (*Topology, error) {
	if p.topology == nil {
		return nil, ErrClusterState
	}
	return p.topology, nil
}
