package cluster

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// NumSlots is the number of hash slots the keyspace is divided into.
const NumSlots uint16 = 16384

// SlotForKey derives the hash slot (0..NumSlots-1) owning an arbitrary key.
func SlotForKey(key []byte) uint16 {
	h, _ := blake2b.New(8, nil)
	h.Write(key)
	sum := h.Sum(nil)
	v := binary.BigEndian.Uint64(sum)
	return uint16(v % uint64(NumSlots))
}
