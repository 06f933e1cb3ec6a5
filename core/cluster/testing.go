package cluster

import "fmt"

// CreateTestTopology builds a deterministic topology for tests and demos:
// numMasters masters named m0..mN on 127.0.0.1:7000+, the slot space split
// evenly between them, and replicasPerMaster replicas per master serving the
// same ranges from port 7100+.
func CreateTestTopology(numMasters, replicasPerMaster int) *Topology {
	if numMasters <= 0 {
		return NewTopology(nil)
	}

	slotsPer := NumSlots / uint16(numMasters)
	entries := make([]TopologyEntry, 0, numMasters*(1+replicasPerMaster))

	for i := 0; i < numMasters; i++ {
		start := uint16(i) * slotsPer
		end := start + slotsPer - 1
		if i == numMasters-1 {
			end = NumSlots - 1
		}
		slots := []SlotRange{{Start: start, End: end}}

		entries = append(entries, TopologyEntry{
			Node: Node{
				Host: "127.0.0.1",
				Port: 7000 + i,
				ID:   fmt.Sprintf("m%d", i),
				Role: RoleMaster,
			},
			Slots: slots,
		})

		for r := 0; r < replicasPerMaster; r++ {
			entries = append(entries, TopologyEntry{
				Node: Node{
					Host: "127.0.0.1",
					Port: 7100 + i*10 + r,
					ID:   fmt.Sprintf("r%d-%d", i, r),
					Role: RoleReplica,
				},
				Slots: slots,
			})
		}
	}

	return NewTopology(entries)
}
