package instancecache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/cschleiden/go-wfnet/internal/metrickeys"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/metrics"
)

// Cache keeps recently saved workflow instance aggregates in memory. An entry is only used while the
// stored instance record is still at the cached version.
type Cache struct {
	c *ttlcache.Cache[string, *state.Instance]
	mc metrics.Client
}

var _ state.Cache = (*Cache)(nil)

func New(mc metrics.Client, size int, expiration time.Duration) *Cache {
	c := ttlcache.New(
		ttlcache.WithCapacity[string, *state.Instance](uint64(size)),
		ttlcache.WithTTL[string, *state.Instance](expiration),
		ttlcache.WithDisableTouchOnHit[string, *state.Instance](),
	)

	c.OnEviction(func(ctx context.Context, er ttlcache.EvictionReason, i *ttlcache.Item[string, *state.Instance]) {
		reason := ""
		switch er {
		case ttlcache.EvictionReasonExpired:
			reason = "expired"
		case ttlcache.EvictionReasonCapacityReached:
			reason = "capacity"
		case ttlcache.EvictionReasonDeleted:
			reason = "deleted"
		}

		mc.Counter(metrickeys.InstanceCacheEviction, metrics.Tags{metrickeys.EvictionReason: reason}, 1)
		mc.Gauge(metrickeys.InstanceCacheSize, metrics.Tags{}, int64(c.Len()))
	})

	return &Cache{
		c:  c,
		mc: mc,
	}
}

// Get returns a copy of the cached aggregate if it is at the given version.
func (ic *Cache) Get(id string, version int64) (*state.Instance, bool) {
	i := ic.c.Get(id)
	if i == nil {
		return nil, false
	}

	cached := i.Value()
	if cached.Version() != version {
		ic.c.Delete(id)
		return nil, false
	}

	inst, err := cached.Clone()
	if err != nil {
		return nil, false
	}

	ic.mc.Counter(metrickeys.InstanceCacheHit, metrics.Tags{}, 1)

	return inst, true
}

// Put caches a copy of the aggregate as of its last save.
func (ic *Cache) Put(inst *state.Instance) error {
	c, err := inst.Clone()
	if err != nil {
		return err
	}

	ic.c.Set(inst.Workflow.ID, c, ttlcache.DefaultTTL)
	ic.mc.Gauge(metrickeys.InstanceCacheSize, metrics.Tags{}, int64(ic.c.Len()))

	return nil
}

func (ic *Cache) Len() int {
	return ic.c.Len()
}

// StartEviction removes expired entries until ctx is canceled.
func (ic *Cache) StartEviction(ctx context.Context) {
	go ic.c.Start()

	<-ctx.Done()

	ic.c.Stop()
}
