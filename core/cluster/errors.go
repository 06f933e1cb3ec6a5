package cluster

import (
	"errors"
	"fmt"
)

var (
	// Topology errors
	ErrUnknownNode  = errors.New("node not present in cluster topology")
	ErrClusterState = errors.New("cluster topology could not be determined")

	// Resource errors
	ErrAcquireResource = errors.New("failed to acquire node resource")

	// Redirect errors
	ErrTooManyRedirects = errors.New("too many cluster redirects")
)

// RedirectKind distinguishes permanent (MOVED) from transient (ASK) slot
// ownership redirects.
type RedirectKind string

const (
	RedirectMoved RedirectKind = "MOVED"
	RedirectAsk   RedirectKind = "ASK"
)

// RedirectError signals that a key's slot is currently served by a different
// node. It is not a terminal failure: the router follows the redirect and
// callers only ever observe it indirectly, as [ErrTooManyRedirects], once the
// redirect budget is exhausted.
type RedirectError struct {
	Kind RedirectKind
	Slot uint16
	Host string
	Port int
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("%s %d %s:%d", e.Kind, e.Slot, e.Host, e.Port)
}

// NewMovedError creates a permanent slot-ownership redirect.
func NewMovedError(slot uint16, host string, port int) *RedirectError {
	return &RedirectError{Kind: RedirectMoved, Slot: slot, Host: host, Port: port}
}

// NewAskError creates a transient slot-migration redirect.
func NewAskError(slot uint16, host string, port int) *RedirectError {
	return &RedirectError{Kind: RedirectAsk, Slot: slot, Host: host, Port: port}
}

// AsRedirect extracts a RedirectError from an error chain.
func AsRedirect(err error) (*RedirectError, bool) {
	var re *RedirectError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
