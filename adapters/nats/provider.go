// Package nats binds the router's collaborator contracts to NATS
// request/reply. Each cluster node listens on its own subject
// (<prefix>.node.<id>); the topology document is served on
// <prefix>.topology by any node. The command payloads themselves stay
// opaque bytes — this adapter carries them, it does not define them.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/kvroute-go/core/cluster"
)

const (
	defaultPrefix  = "kvroute"
	defaultTimeout = 5 * time.Second
)

// Config configures a Provider.
type Config struct {
	Connect        Connector     // Connect creates the NATS connection. If nil, ConnectDefault() is used.
	Log            *slog.Logger  // Log for diagnostics (optional)
	SubjectPrefix  string        // SubjectPrefix for node subjects, e.g. "kvroute" -> kvroute.node.<id>
	RequestTimeout time.Duration // RequestTimeout bounds a single node request (default 5s)
}

// Provider implements cluster.TopologyProvider and
// cluster.ResourceProvider[*Conn] over a shared NATS connection. A single
// Provider is safe for concurrent use across fan-out calls.
type Provider struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	prefix  string
	timeout time.Duration

	closed atomic.Bool
}

// NewProvider connects and returns a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}

	return &Provider{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("adapter", "nats")),
		prefix:  prefix,
		timeout: timeout,
	}, nil
}

func (p *Provider) subjectNode(node cluster.Node) string {
	id := node.ID
	if id == "" {
		id = node.Addr()
	}
	return p.prefix + ".node." + id
}

func (p *Provider) subjectTopology() string {
	return p.prefix + ".topology"
}

// topologyDoc is the wire form of the cluster map.
type topologyDoc struct {
	Entries []cluster.TopologyEntry `json:"entries"`
}

// Topology queries the cluster map from whichever node answers on the
// topology subject.
func (p *Provider) Topology(ctx context.Context) (*cluster.Topology, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("%w: provider closed", cluster.ErrClusterState)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg, err := p.nc.RequestWithContext(ctx, p.subjectTopology(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cluster.ErrClusterState, err)
	}

	var doc topologyDoc
	if err := json.Unmarshal(msg.Data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode topology: %v", cluster.ErrClusterState, err)
	}

	return cluster.NewTopology(doc.Entries), nil
}

// Acquire returns a handle bound to the node's subject. Handles share the
// provider's NATS connection, so acquisition is cheap; it fails once the
// provider is closed or the connection is gone.
func (p *Provider) Acquire(ctx context.Context, node cluster.Node) (*Conn, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("%w: provider closed", cluster.ErrAcquireResource)
	}
	if status := p.nc.Status(); status != natsgo.CONNECTED && status != natsgo.RECONNECTING {
		return nil, fmt.Errorf("%w: connection %s", cluster.ErrAcquireResource, status)
	}
	return &Conn{
		nc:      p.nc,
		subject: p.subjectNode(node),
		timeout: p.timeout,
	}, nil
}

// Release is a no-op; handles multiplex the shared connection. Safe to call
// any number of times.
func (p *Provider) Release(node cluster.Node, conn *Conn) error {
	return nil
}

// Close drains the NATS connection. Further Acquire and Topology calls fail.
func (p *Provider) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if p.nc != nil {
		_ = p.nc.Drain()
		p.closeNc()
	}
	p.log.Debug("closed")
	return nil
}

var _ cluster.TopologyProvider = (*Provider)(nil)
var _ cluster.ResourceProvider[*Conn] = (*Provider)(nil)
