package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
)

// responseFrame is the minimal response encoding for node replies: payload
// bytes or a remote error string.
type responseFrame struct {
	Data []byte `json:"data,omitempty"`
	Err  string `json:"err,omitempty"`
}

// RemoteError is a failure reported by the node itself, as opposed to a
// transport failure. Redirect replies (MOVED/ASK) arrive this way and are
// recognized by [Translator].
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// Conn is a node-scoped execution handle: requests sent through it reach
// exactly one cluster node. It is what commands receive as their handle
// type when the router runs on this adapter.
type Conn struct {
	nc      *natsgo.Conn
	subject string
	timeout time.Duration
}

// Do sends one opaque command payload to the node and returns the reply
// payload. Failures reported by the node surface as *[RemoteError].
func (c *Conn) Do(ctx context.Context, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, c.subject, payload)
	if err != nil {
		return nil, fmt.Errorf("nats: request %s: %w", c.subject, err)
	}

	var rf responseFrame
	if err := json.Unmarshal(msg.Data, &rf); err != nil {
		return nil, fmt.Errorf("nats: decode response: %w", err)
	}
	if rf.Err != "" {
		return nil, &RemoteError{Message: rf.Err}
	}
	return rf.Data, nil
}

// Subject returns the node subject this handle is bound to.
func (c *Conn) Subject() string { return c.subject }
