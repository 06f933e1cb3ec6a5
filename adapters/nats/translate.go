package nats

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/kvroute-go/core/cluster"
)

// Translator maps adapter and node errors into the cluster taxonomy:
//
//   - remote "MOVED <slot> <host>:<port>" / "ASK <slot> <host>:<port>"
//     replies become cluster redirect errors
//   - a request with no responder becomes a resource acquisition failure
//     (the node subject has no listener)
//
// Everything else is left untranslated and propagates verbatim.
type Translator struct{}

// NewTranslator returns the adapter's cluster.ErrorTranslator.
func NewTranslator() *Translator { return &Translator{} }

func (Translator) Translate(err error) error {
	if errors.Is(err, natsgo.ErrNoResponders) {
		return fmt.Errorf("%w: no responder on node subject", cluster.ErrAcquireResource)
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		if redirect, ok := parseRedirect(remote.Message); ok {
			return redirect
		}
	}

	return nil
}

// parseRedirect recognizes "MOVED <slot> <host>:<port>" and
// "ASK <slot> <host>:<port>".
func parseRedirect(msg string) (*cluster.RedirectError, bool) {
	fields := strings.Fields(msg)
	if len(fields) != 3 {
		return nil, false
	}

	var kind cluster.RedirectKind
	switch fields[0] {
	case string(cluster.RedirectMoved):
		kind = cluster.RedirectMoved
	case string(cluster.RedirectAsk):
		kind = cluster.RedirectAsk
	default:
		return nil, false
	}

	slot, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return nil, false
	}

	host, portStr, err := net.SplitHostPort(fields[2])
	if err != nil {
		return nil, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, false
	}

	return &cluster.RedirectError{
		Kind: kind,
		Slot: uint16(slot),
		Host: host,
		Port: port,
	}, true
}

var _ cluster.ErrorTranslator = (*Translator)(nil)
