package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/kvroute-go/core/cluster"
	"github.com/codewandler/kvroute-go/core/workpool"
)

type fakeConn struct {
	node cluster.Node
}

// fakeResources hands out one fakeConn per Acquire and counts acquire and
// release calls per node address.
type fakeResources struct {
	mu       sync.Mutex
	acquired map[string]int
	released map[string]int
	failFor  map[string]error
}

func newFakeResources() *fakeResources {
	return &fakeResources{
		acquired: make(map[string]int),
		released: make(map[string]int),
		failFor:  make(map[string]error),
	}
}

func (f *fakeResources) Acquire(ctx context.Context, node cluster.Node) (*fakeConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[node.Addr()]; err != nil {
		return nil, fmt.Errorf("%w: %s: %w", cluster.ErrAcquireResource, node, err)
	}
	f.acquired[node.Addr()]++
	return &fakeConn{node: node}, nil
}

func (f *fakeResources) Release(node cluster.Node, conn *fakeConn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released[node.Addr()]++
	return nil
}

func (f *fakeResources) counts(node cluster.Node) (acquired, released int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired[node.Addr()], f.released[node.Addr()]
}

func (f *fakeResources) totalAcquired() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.acquired {
		n += c
	}
	return n
}

func createTestRouter(t *testing.T, topo *cluster.Topology, res *fakeResources, opts ...func(*Options[*fakeConn])) *Router[*fakeConn] {
	o := Options[*fakeConn]{
		Topology:  cluster.NewStaticProvider(topo),
		Resources: res,
	}
	for _, opt := range opts {
		opt(&o)
	}
	r, err := New(o)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, r.Close())
	})
	return r
}

func master(t *testing.T, topo *cluster.Topology, id string) cluster.Node {
	n, err := topo.Lookup(cluster.Node{ID: id})
	require.NoError(t, err)
	return n
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options[*fakeConn]{})
	require.Error(t, err)

	_, err = New(Options[*fakeConn]{Topology: cluster.NewStaticProvider(nil)})
	require.Error(t, err)

	_, err = New(Options[*fakeConn]{
		Topology:     cluster.NewStaticProvider(nil),
		Resources:    newFakeResources(),
		MaxRedirects: -2,
	})
	require.Error(t, err)
}

func TestExecuteOnNode(t *testing.T) {
	topo := cluster.CreateTestTopology(3, 0)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	cmd := func(ctx context.Context, conn *fakeConn) (string, error) {
		return "pong from " + conn.node.ID, nil
	}

	// a stale reference resolves to the canonical entry first
	nr, err := ExecuteOnNode(t.Context(), r, cmd, cluster.Node{ID: "m1"})
	require.NoError(t, err)
	require.Equal(t, "m1", nr.Node.ID)
	require.Equal(t, 7001, nr.Node.Port)
	require.Equal(t, "pong from m1", nr.Value)
	require.Empty(t, nr.Key)

	acq, rel := res.counts(nr.Node)
	require.Equal(t, 1, acq)
	require.Equal(t, 1, rel)
}

func TestExecuteOnNodeUnknown(t *testing.T) {
	topo := cluster.CreateTestTopology(2, 0)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	cmd := func(ctx context.Context, conn *fakeConn) (string, error) { return "", nil }

	_, err := ExecuteOnNode(t.Context(), r, cmd, cluster.Node{ID: "gone", Host: "127.0.0.1", Port: 9999})
	require.ErrorIs(t, err, cluster.ErrUnknownNode)

	// failed before any resource acquisition
	require.Zero(t, res.totalAcquired())
}

func TestExecuteOnNodeReleasesOnFailure(t *testing.T) {
	topo := cluster.CreateTestTopology(1, 0)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	boom := errors.New("boom")
	cmd := func(ctx context.Context, conn *fakeConn) (string, error) { return "", boom }

	_, err := ExecuteOnNode(t.Context(), r, cmd, cluster.Node{ID: "m0"})
	require.ErrorIs(t, err, boom)

	acq, rel := res.counts(master(t, topo, "m0"))
	require.Equal(t, 1, acq)
	require.Equal(t, 1, rel)
}

func TestExecuteOnNodeFollowsRedirect(t *testing.T) {
	topo := cluster.CreateTestTopology(2, 0)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	m1 := master(t, topo, "m1")

	cmd := func(ctx context.Context, conn *fakeConn) (string, error) {
		if conn.node.ID == "m0" {
			return "", cluster.NewMovedError(42, m1.Host, m1.Port)
		}
		return "value", nil
	}

	nr, err := ExecuteOnNode(t.Context(), r, cmd, cluster.Node{ID: "m0"})
	require.NoError(t, err)
	require.Equal(t, "m1", nr.Node.ID)
	require.Equal(t, "value", nr.Value)

	// a fresh resource per attempt, all released
	for _, id := range []string{"m0", "m1"} {
		acq, rel := res.counts(master(t, topo, id))
		require.Equal(t, 1, acq, id)
		require.Equal(t, 1, rel, id)
	}
}

func TestExecuteOnNodeRedirectBudget(t *testing.T) {
	topo := cluster.CreateTestTopology(2, 0)
	res := newFakeResources()
	r := createTestRouter(t, topo, res, func(o *Options[*fakeConn]) { o.MaxRedirects = 2 })

	m0 := master(t, topo, "m0")
	m1 := master(t, topo, "m1")

	// redirect ping-pong, never settles
	cmd := func(ctx context.Context, conn *fakeConn) (string, error) {
		target := m1
		if conn.node.ID == "m1" {
			target = m0
		}
		return "", cluster.NewMovedError(7, target.Host, target.Port)
	}

	_, err := ExecuteOnNode(t.Context(), r, cmd, cluster.Node{ID: "m0"})
	require.ErrorIs(t, err, cluster.ErrTooManyRedirects)

	// budget 2 means 3 attempts: original plus two follows
	require.Equal(t, 3, res.totalAcquired())
}

func TestExecuteOnNodeRedirectsDisabled(t *testing.T) {
	topo := cluster.CreateTestTopology(2, 0)
	res := newFakeResources()
	r := createTestRouter(t, topo, res, func(o *Options[*fakeConn]) { o.MaxRedirects = NoRedirects })

	m1 := master(t, topo, "m1")
	cmd := func(ctx context.Context, conn *fakeConn) (string, error) {
		return "", cluster.NewMovedError(7, m1.Host, m1.Port)
	}

	_, err := ExecuteOnNode(t.Context(), r, cmd, cluster.Node{ID: "m0"})
	require.ErrorIs(t, err, cluster.ErrTooManyRedirects)

	// surfaced immediately, no retry
	require.Equal(t, 1, res.totalAcquired())
}

func TestExecuteOnNodeRedirectTargetUnknown(t *testing.T) {
	topo := cluster.CreateTestTopology(1, 0)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	cmd := func(ctx context.Context, conn *fakeConn) (string, error) {
		return "", cluster.NewMovedError(7, "10.9.9.9", 1234)
	}

	_, err := ExecuteOnNode(t.Context(), r, cmd, cluster.Node{ID: "m0"})
	require.ErrorIs(t, err, cluster.ErrUnknownNode)
}

func TestExecuteOnNodeTranslator(t *testing.T) {
	topo := cluster.CreateTestTopology(1, 0)
	res := newFakeResources()

	translated := errors.New("translated failure")
	r := createTestRouter(t, topo, res, func(o *Options[*fakeConn]) {
		o.Translator = cluster.ErrorTranslatorFunc(func(err error) error {
			if err.Error() == "raw driver failure" {
				return translated
			}
			return nil
		})
	})

	cmd := func(ctx context.Context, conn *fakeConn) (string, error) {
		return "", errors.New("raw driver failure")
	}
	_, err := ExecuteOnNode(t.Context(), r, cmd, cluster.Node{ID: "m0"})
	require.ErrorIs(t, err, translated)

	// unrecognized errors propagate verbatim
	raw := errors.New("something else")
	cmd = func(ctx context.Context, conn *fakeConn) (string, error) { return "", raw }
	_, err = ExecuteOnNode(t.Context(), r, cmd, cluster.Node{ID: "m0"})
	require.ErrorIs(t, err, raw)
}

func TestExecuteOnArbitraryNode(t *testing.T) {
	topo := cluster.CreateTestTopology(3, 1)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	cmd := func(ctx context.Context, conn *fakeConn) (string, error) {
		return conn.node.ID, nil
	}

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		nr, err := ExecuteOnArbitraryNode(t.Context(), r, cmd)
		require.NoError(t, err)
		_, lookupErr := topo.Lookup(nr.Node)
		require.NoError(t, lookupErr)
		seen[nr.Value] = true
	}
	// uniform selection over 6 nodes should hit more than one in 50 draws
	require.Greater(t, len(seen), 1)
}

func TestExecuteOnNodesOneResultPerNode(t *testing.T) {
	topo := cluster.CreateTestTopology(3, 0)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	cmd := func(ctx context.Context, conn *fakeConn) (string, error) {
		return conn.node.ID, nil
	}

	nodes := []cluster.Node{{ID: "m2"}, {ID: "m0"}, {ID: "m1"}}
	agg, err := ExecuteOnNodes(t.Context(), r, cmd, nodes)
	require.NoError(t, err)
	require.Len(t, agg.Results(), 3)

	// dispatch order matches input order
	require.Equal(t, []string{"m2", "m0", "m1"}, agg.Values())
}

func TestExecuteOnNodesUnknownFailsFast(t *testing.T) {
	topo := cluster.CreateTestTopology(2, 0)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	cmd := func(ctx context.Context, conn *fakeConn) (string, error) { return "", nil }

	nodes := []cluster.Node{{ID: "m0"}, {ID: "gone", Host: "127.0.0.1", Port: 9999}}
	_, err := ExecuteOnNodes(t.Context(), r, cmd, nodes)
	require.ErrorIs(t, err, cluster.ErrUnknownNode)

	// nothing was dispatched
	require.Zero(t, res.totalAcquired())
}

func TestExecuteOnAllMastersPartialFailure(t *testing.T) {
	topo := cluster.CreateTestTopology(2, 1)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	boom := errors.New("m1 exploded")
	cmd := func(ctx context.Context, conn *fakeConn) (string, error) {
		if conn.node.ID == "m1" {
			return "", boom
		}
		return "ok", nil
	}

	agg, err := ExecuteOnAllMasters(t.Context(), r, cmd)
	require.Nil(t, agg)
	require.Error(t, err)

	ae, ok := AsAggregate(err)
	require.True(t, ok)
	require.Len(t, ae.Causes, 1)

	cause, found := ae.CauseFor(master(t, topo, "m1"))
	require.True(t, found)
	require.ErrorIs(t, cause, boom)

	_, found = ae.CauseFor(master(t, topo, "m0"))
	require.False(t, found)

	// errors.Is reaches through the aggregate
	require.ErrorIs(t, err, boom)
}

func TestExecuteOnAllMastersAllCausesCarried(t *testing.T) {
	topo := cluster.CreateTestTopology(3, 0)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	cmd := func(ctx context.Context, conn *fakeConn) (string, error) {
		return "", fmt.Errorf("failed on %s", conn.node.ID)
	}

	_, err := ExecuteOnAllMasters(t.Context(), r, cmd)
	ae, ok := AsAggregate(err)
	require.True(t, ok)
	require.Len(t, ae.Causes, 3)
}

func TestExecuteOnAllMastersTargetsMastersOnly(t *testing.T) {
	topo := cluster.CreateTestTopology(2, 2)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	cmd := func(ctx context.Context, conn *fakeConn) (string, error) {
		require.True(t, conn.node.IsMaster())
		return conn.node.ID, nil
	}

	agg, err := ExecuteOnAllMasters(t.Context(), r, cmd)
	require.NoError(t, err)
	require.Len(t, agg.Results(), 2)
}

// findKeysOnDistinctMasters searches for three keys, the first two served by
// one master and the third by another.
func findKeysOnDistinctMasters(t *testing.T, topo *cluster.Topology) (k1, k2, k3 []byte) {
	byMaster := make(map[string][][]byte)
	for i := 0; i < 10_000; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		serving := topo.NodesServing(key)
		require.NotEmpty(t, serving)
		id := serving[0].ID
		byMaster[id] = append(byMaster[id], key)

		var first string
		for id, keys := range byMaster {
			if len(keys) >= 2 {
				first = id
				break
			}
		}
		if first == "" {
			continue
		}
		for id, keys := range byMaster {
			if id != first && len(keys) >= 1 {
				return byMaster[first][0], byMaster[first][1], keys[0]
			}
		}
	}
	t.Fatal("no key split across two masters found")
	return nil, nil, nil
}

func TestExecuteMultiKey(t *testing.T) {
	topo := cluster.CreateTestTopology(2, 1)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	k1, k2, k3 := findKeysOnDistinctMasters(t, topo)

	cmd := func(ctx context.Context, conn *fakeConn, key []byte) (string, error) {
		// the unit must run on the master serving the key
		serving := topo.NodesServing(key)
		require.Equal(t, serving[0].ID, conn.node.ID)
		return "v:" + string(key), nil
	}

	agg, err := ExecuteMultiKey(t.Context(), r, cmd, [][]byte{k1, k2, k3})
	require.NoError(t, err)
	require.Len(t, agg.Results(), 3)

	// every result is tagged with its originating key
	tagged := make(map[string]string)
	for _, nr := range agg.Results() {
		tagged[string(nr.Key)] = nr.Value
	}
	require.Equal(t, "v:"+string(k1), tagged[string(k1)])
	require.Equal(t, "v:"+string(k2), tagged[string(k2)])
	require.Equal(t, "v:"+string(k3), tagged[string(k3)])

	// values re-ordered to a caller-supplied key ordering
	require.Equal(t,
		[]string{"v:" + string(k2), "v:" + string(k1), "v:" + string(k3)},
		agg.ValuesSortedBy(k2, k1, k3),
	)
}

func TestExecuteMultiKeyDropsReplicaOnlyKeys(t *testing.T) {
	// m0 serves the lower half; the upper half is served by a replica only
	entries := []cluster.TopologyEntry{
		{
			Node:  cluster.Node{Host: "127.0.0.1", Port: 7000, ID: "m0", Role: cluster.RoleMaster},
			Slots: []cluster.SlotRange{{Start: 0, End: cluster.NumSlots/2 - 1}},
		},
		{
			Node:  cluster.Node{Host: "127.0.0.1", Port: 7100, ID: "r0", Role: cluster.RoleReplica},
			Slots: []cluster.SlotRange{{Start: cluster.NumSlots / 2, End: cluster.NumSlots - 1}},
		},
	}
	topo := cluster.NewTopology(entries)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	var masterKey, replicaKey []byte
	for i := 0; i < 10_000 && (masterKey == nil || replicaKey == nil); i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		if cluster.SlotForKey(key) < cluster.NumSlots/2 {
			if masterKey == nil {
				masterKey = key
			}
		} else if replicaKey == nil {
			replicaKey = key
		}
	}
	require.NotNil(t, masterKey)
	require.NotNil(t, replicaKey)

	cmd := func(ctx context.Context, conn *fakeConn, key []byte) (string, error) {
		return string(key), nil
	}

	agg, err := ExecuteMultiKey(t.Context(), r, cmd, [][]byte{masterKey, replicaKey})
	require.NoError(t, err)

	// only the master-served key produced a unit
	require.Len(t, agg.Results(), 1)
	require.Equal(t, masterKey, agg.Results()[0].Key)
}

func TestExecuteMultiKeyPartialFailure(t *testing.T) {
	topo := cluster.CreateTestTopology(2, 0)
	res := newFakeResources()
	r := createTestRouter(t, topo, res)

	k1, k2, k3 := findKeysOnDistinctMasters(t, topo)

	boom := errors.New("bad key")
	cmd := func(ctx context.Context, conn *fakeConn, key []byte) (string, error) {
		if string(key) == string(k2) {
			return "", boom
		}
		return "ok", nil
	}

	_, err := ExecuteMultiKey(t.Context(), r, cmd, [][]byte{k1, k2, k3})
	ae, ok := AsAggregate(err)
	require.True(t, ok)
	require.Len(t, ae.Causes, 1)
	require.Equal(t, k2, ae.Causes[0].Key)
	require.ErrorIs(t, ae.Causes[0].Err, boom)
}

func TestFanoutCanceledWait(t *testing.T) {
	topo := cluster.CreateTestTopology(2, 0)
	res := newFakeResources()

	pool := workpool.New(workpool.WithSize(2))
	r := createTestRouter(t, topo, res, func(o *Options[*fakeConn]) { o.Pool = pool })

	release := make(chan struct{})
	cmd := func(ctx context.Context, conn *fakeConn) (string, error) {
		<-release
		return "late", nil
	}

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		<-time.After(20 * time.Millisecond)
		cancel()
	}()

	_, err := ExecuteOnAllMasters(ctx, r, cmd)
	require.ErrorIs(t, err, context.Canceled)

	// in-flight units keep running and still release their resources
	close(release)
	require.Eventually(t, func() bool {
		_, rel0 := res.counts(master(t, topo, "m0"))
		_, rel1 := res.counts(master(t, topo, "m1"))
		return rel0 == 1 && rel1 == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRouterCloseClosesResources(t *testing.T) {
	topo := cluster.CreateTestTopology(1, 0)
	res := &closableResources{fakeResources: newFakeResources()}

	r, err := New(Options[*fakeConn]{
		Topology:  cluster.NewStaticProvider(topo),
		Resources: res,
	})
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.True(t, res.closed)
}

type closableResources struct {
	*fakeResources
	closed bool
}

func (c *closableResources) Close() error {
	c.closed = true
	return nil
}
