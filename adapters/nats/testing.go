package nats

import (
	"context"
	"encoding/json"

	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codewandler/kvroute-go/core/cluster"
)

type Testing interface {
	require.TestingT
	Context() context.Context
	Logf(format string, args ...any)
	Cleanup(func())
}

// NewTestContainer starts a disposable NATS server and returns a Connector
// pointed at it. The container is terminated on test cleanup.
func NewTestContainer(t Testing) Connector {
	ctx := t.Context()
	natsC, err := testcontainers.Run(
		ctx, "nats:latest",
		testcontainers.WithExposedPorts("4222/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("4222/tcp"),
			wait.ForLog("Server is ready"),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(natsC); err != nil {
			t.Errorf("failed to terminate container: %s", err.Error())
		}
	})

	ip, err := natsC.ContainerIP(t.Context())
	require.NoError(t, err)
	t.Logf("nats ip: %s", ip)
	return ConnectURL("nats://" + ip + ":4222")
}

// NodeHandler serves command payloads for one fake node.
type NodeHandler func(payload []byte) ([]byte, error)

// ServeNode subscribes a fake node on its command subject. Handler errors
// travel back as remote error strings, which is also how redirects are
// served (return an error whose text is "MOVED <slot> <host>:<port>").
func ServeNode(t Testing, nc *natsgo.Conn, prefix string, node cluster.Node, h NodeHandler) {
	if prefix == "" {
		prefix = defaultPrefix
	}
	subj := prefix + ".node." + node.ID

	sub, err := nc.Subscribe(subj, func(msg *natsgo.Msg) {
		data, herr := h(msg.Data)
		rf := responseFrame{Data: data}
		if herr != nil {
			rf.Err = herr.Error()
			rf.Data = nil
		}
		b, _ := json.Marshal(rf)
		require.NoError(t, msg.Respond(b))
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
}

// ServeTopology answers topology queries with the given entries.
func ServeTopology(t Testing, nc *natsgo.Conn, prefix string, entries func() []cluster.TopologyEntry) {
	if prefix == "" {
		prefix = defaultPrefix
	}
	subj := prefix + ".topology"

	sub, err := nc.Subscribe(subj, func(msg *natsgo.Msg) {
		b, merr := json.Marshal(topologyDoc{Entries: entries()})
		require.NoError(t, merr)
		require.NoError(t, msg.Respond(b))
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
}
