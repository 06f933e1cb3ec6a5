package cluster

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTopologyTTL is how long a cached snapshot stays fresh.
const DefaultTopologyTTL = 5 * time.Second

// CachedProvider wraps a [TopologyProvider] with a TTL snapshot cache.
// Concurrent refreshes are deduplicated: when the snapshot is stale, exactly
// one fetch hits the inner provider and all callers share its outcome.
//
// CachedProvider implements [TopologyInvalidator], so the router drops the
// snapshot before re-resolving a redirect target.
type CachedProvider struct {
	inner TopologyProvider
	ttl   time.Duration

	sf singleflight.Group

	mu      sync.RWMutex
	snap    *Topology
	fetched time.Time
}

// NewCachedProvider creates a cache over inner. A ttl of 0 selects
// [DefaultTopologyTTL].
func NewCachedProvider(inner TopologyProvider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultTopologyTTL
	}
	return &CachedProvider{inner: inner, ttl: ttl}
}

func (p *CachedProvider) Topology(ctx context.Context) (*Topology, error) {
	p.mu.RLock()
	snap, fetched := p.snap, p.fetched
	p.mu.RUnlock()

	if snap != nil && time.Since(fetched) < p.ttl {
		return snap, nil
	}

	v, err, _ := p.sf.Do("topology", func() (any, error) {
		t, err := p.inner.Topology(ctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.snap = t
		p.fetched = time.Now()
		p.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Topology), nil
}

// Invalidate drops the cached snapshot so the next Topology call fetches a
// fresh view.
func (p *CachedProvider) Invalidate() {
	p.mu.Lock()
	p.snap = nil
	p.mu.Unlock()
}

var _ TopologyProvider = (*CachedProvider)(nil)
var _ TopologyInvalidator = (*CachedProvider)(nil)
