package router

import (
	"bytes"
	"reflect"

	"github.com/codewandler/kvroute-go/core/cluster"
)

// NodeResult is the outcome of running one command on one node. For
// multi-key commands Key records which key the value was computed for; it is
// empty otherwise.
type NodeResult[T any] struct {
	Node  cluster.Node
	Value T
	Key   []byte
}

// AggregateResult is the merged outcome of a fan-out. It holds exactly one
// [NodeResult] per unit that completed successfully, in dispatch order.
type AggregateResult[T any] struct {
	results []NodeResult[T]
}

func (r *AggregateResult[T]) add(nr NodeResult[T]) {
	r.results = append(r.results, nr)
}

// Results returns the per-node results in dispatch order.
func (r *AggregateResult[T]) Results() []NodeResult[T] {
	return r.results
}

// Values projects the bare values in dispatch order. Zero values of T are
// kept, so entries line up with Results.
func (r *AggregateResult[T]) Values() []T {
	values := make([]T, 0, len(r.results))
	for _, nr := range r.results {
		values = append(values, nr.Value)
	}
	return values
}

// ValuesSortedBy returns the values re-ordered to match the supplied key
// ordering. Each result is consumed at most once, so duplicate keys map to
// distinct results. Keys without a matching result are skipped.
func (r *AggregateResult[T]) ValuesSortedBy(keys ...[]byte) []T {
	values := make([]T, 0, len(keys))
	used := make([]bool, len(r.results))
	for _, key := range keys {
		for i, nr := range r.results {
			if used[i] || !bytes.Equal(nr.Key, key) {
				continue
			}
			used[i] = true
			values = append(values, nr.Value)
			break
		}
	}
	return values
}

// FirstNonEmpty returns the first value, in dispatch order, that is neither
// nil nor an empty slice/map, or def when there is none. Used for commands
// where only one shard actually holds meaningful data.
func (r *AggregateResult[T]) FirstNonEmpty(def T) T {
	for _, nr := range r.results {
		if !isEmptyValue(nr.Value) {
			return nr.Value
		}
	}
	return def
}

func isEmptyValue(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	case reflect.Slice, reflect.Map:
		return rv.IsNil() || rv.Len() == 0
	}
	return false
}
