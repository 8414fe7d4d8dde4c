package graft

import (
	"hash/maphash"
	"strings"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
)

// planKey identifies a compiled plan within one registry snapshot.
type planKey struct {
	serviceType   uint64
	requiredType  uint64
	factory       uint64
	key           any
	returnDefault bool
	resolveCall   bool
	args          string
}

func newPlanKey(serviceType *Type, opts *resolveOptions, argTypes []*Type) planKey {
	k := planKey{
		serviceType:   serviceType.ID(),
		key:           opts.key,
		returnDefault: opts.returnDefault,
		resolveCall:   opts.resolveCall,
	}
	if opts.requiredType != nil {
		k.requiredType = opts.requiredType.ID()
	}
	if opts.pin != nil {
		k.factory = opts.pin.f.ID()
	}
	if len(argTypes) > 0 {
		names := make([]string, len(argTypes))
		for i, t := range argTypes {
			names[i] = t.String()
		}
		k.args = strings.Join(names, ",")
	}
	return k
}

var planSeed = maphash.MakeSeed()

type planKeyHasher struct{}

func (planKeyHasher) Hash(k planKey) uint32 {
	var h maphash.Hash
	h.SetSeed(planSeed)
	maphash.WriteComparable(&h, k)
	return uint32(h.Sum64())
}

func (planKeyHasher) Equal(a, b planKey) bool {
	return a == b
}

// planCache memoizes compiled plans for one registry snapshot. A new
// snapshot starts with an empty cache, so any registry change invalidates
// every plan.
type planCache struct {
	m atomic.Pointer[immutable.Map[planKey, *compiledPlan]]
}

func newPlanCache() *planCache {
	c := &planCache{}
	c.m.Store(immutable.NewMap[planKey, *compiledPlan](planKeyHasher{}))
	return c
}

func (c *planCache) get(k planKey) (*compiledPlan, bool) {
	return c.m.Load().Get(k)
}

// put stores p unless another goroutine stored a plan for k first, and
// returns the stored plan.
func (c *planCache) put(k planKey, p *compiledPlan) *compiledPlan {
	for {
		cur := c.m.Load()
		if existing, ok := cur.Get(k); ok {
			return existing
		}
		if c.m.CompareAndSwap(cur, cur.Set(k, p)) {
			return p
		}
	}
}

func (c *planCache) len() int {
	return c.m.Load().Len()
}
