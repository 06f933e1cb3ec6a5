// Package cluster models the shape of a sharded, replicated key-value
// cluster from the client's point of view and defines the collaborator
// contracts the command router depends on.
//
// # Data Model
//
//   - [Node]: one cluster member (host, port, id, role). Immutable value,
//     compared by its identity fields.
//   - [Topology]: a point-in-time snapshot of slot ownership. Obtained once
//     per command execution and never mutated; callers re-fetch when they
//     need a newer view (e.g. after a redirect).
//
// # Slots
//
// Every key maps to exactly one of [NumSlots] slots via [SlotForKey], and
// slot ranges are assigned to master nodes. Hashing uses BLAKE2b, which
// gives a uniform, deterministic distribution.
//
// # Collaborators
//
// The router consumes three contracts, specified here at their interface
// boundary only:
//
//   - [TopologyProvider]: answers "what is the current cluster shape?"
//   - [ResourceProvider]: acquires and releases a node-scoped handle.
//   - [ErrorTranslator]: maps driver errors into the package taxonomy,
//     including the MOVED/ASK-style [RedirectError].
//
// [CachedProvider] wraps any TopologyProvider with a TTL snapshot cache
// and deduplicated refresh.
package cluster
