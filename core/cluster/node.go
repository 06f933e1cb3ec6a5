package cluster

import (
	"fmt"
	"net"
	"strconv"
)

// Role is the replication role of a cluster member.
type Role string

const (
	RoleMaster  Role = "master"
	RoleReplica Role = "replica"
)

// Node identifies one cluster member. It is an immutable value; two Node
// values refer to the same member when their identity fields (host, port
// and, if set, id) match. Nodes are produced by a [TopologyProvider] and
// never mutated by the router.
type Node struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	ID   string `json:"id,omitempty"`
	Role Role   `json:"role"`
}

// Addr returns the host:port form of the node address.
func (n Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// IsMaster reports whether the node has the master role.
func (n Node) IsMaster() bool { return n.Role == RoleMaster }

// SameAs reports whether other refers to the same cluster member. When both
// nodes carry an id, the id decides; otherwise the address does.
func (n Node) SameAs(other Node) bool {
	if n.ID != "" && other.ID != "" {
		return n.ID == other.ID
	}
	return n.Host == other.Host && n.Port == other.Port
}

func (n Node) String() string {
	if n.ID != "" {
		return fmt.Sprintf("%s(%s)", n.ID, n.Addr())
	}
	return n.Addr()
}
