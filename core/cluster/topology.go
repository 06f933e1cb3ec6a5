package cluster

import (
	"fmt"
	"net"
	"strconv"
)

// SlotRange is an inclusive range of hash slots.
type SlotRange struct {
	Start uint16 `json:"start"`
	End   uint16 `json:"end"`
}

// Contains reports whether slot falls inside the range.
func (r SlotRange) Contains(slot uint16) bool {
	return slot >= r.Start && slot <= r.End
}

// TopologyEntry associates one node with the slot ranges it serves.
// Replicas list the same ranges as the master they replicate.
type TopologyEntry struct {
	Node  Node        `json:"node"`
	Slots []SlotRange `json:"slots"`
}

// Topology is a point-in-time snapshot of the cluster shape. It is immutable
// once built; holders re-fetch through a [TopologyProvider] when they need a
// newer view. Node order is preserved from construction, so iteration over
// active nodes is deterministic.
type Topology struct {
	entries []TopologyEntry
	byID    map[string]Node
	byAddr  map[string]Node
}

// NewTopology builds a snapshot from per-node slot assignments.
func NewTopology(entries []TopologyEntry) *Topology {
	t := &Topology{
		entries: append([]TopologyEntry(nil), entries...),
		byID:    make(map[string]Node, len(entries)),
		byAddr:  make(map[string]Node, len(entries)),
	}
	for _, e := range entries {
		if e.Node.ID != "" {
			t.byID[e.Node.ID] = e.Node
		}
		t.byAddr[e.Node.Addr()] = e.Node
	}
	return t
}

// ActiveNodes returns all known nodes in construction order.
func (t *Topology) ActiveNodes() []Node {
	nodes := make([]Node, 0, len(t.entries))
	for _, e := range t.entries {
		nodes = append(nodes, e.Node)
	}
	return nodes
}

// ActiveMasters returns all master nodes in construction order.
func (t *Topology) ActiveMasters() []Node {
	masters := make([]Node, 0, len(t.entries))
	for _, e := range t.entries {
		if e.Node.IsMaster() {
			masters = append(masters, e.Node)
		}
	}
	return masters
}

// NodesServing returns every node whose slot ranges cover the key's slot,
// masters before replicas. The slice is empty when the slot is unassigned.
func (t *Topology) NodesServing(key []byte) []Node {
	slot := SlotForKey(key)
	var masters, replicas []Node
	for _, e := range t.entries {
		for _, r := range e.Slots {
			if r.Contains(slot) {
				if e.Node.IsMaster() {
					masters = append(masters, e.Node)
				} else {
					replicas = append(replicas, e.Node)
				}
				break
			}
		}
	}
	return append(masters, replicas...)
}

// Lookup resolves a possibly-stale node reference to its canonical entry.
// Resolution is by id when the reference carries one, by address otherwise.
// Fails with [ErrUnknownNode] when the topology has no matching entry.
func (t *Topology) Lookup(n Node) (Node, error) {
	if n.ID != "" {
		if found, ok := t.byID[n.ID]; ok {
			return found, nil
		}
	}
	if found, ok := t.byAddr[n.Addr()]; ok {
		return found, nil
	}
	return Node{}, fmt.Errorf("%w: %s", ErrUnknownNode, n)
}

// LookupAddr resolves a host:port pair, such as a redirect target, to its
// canonical entry. Fails with [ErrUnknownNode] when no node listens there.
func (t *Topology) LookupAddr(host string, port int) (Node, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if found, ok := t.byAddr[addr]; ok {
		return found, nil
	}
	return Node{}, fmt.Errorf("%w: %s", ErrUnknownNode, addr)
}
