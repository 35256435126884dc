package cache

import "sync/atomic"

// Counters tracks four monotone counters: a hit counter per cache tier,
// and one counter for requests that bottomed out all the way to a fresh
// kernel operation. All increments use relaxed atomics.
type Counters struct {
	l1Hit atomic.Uint64
	l2Hit atomic.Uint64
	l3Hit atomic.Uint64
	miss  atomic.Uint64
}

func (c *Counters) bumpL1Hit() { c.l1Hit.Add(1) }
func (c *Counters) bumpL2Hit() { c.l2Hit.Add(1) }
func (c *Counters) bumpL3Hit() { c.l3Hit.Add(1) }
func (c *Counters) bumpMiss()  { c.miss.Add(1) }

// Snapshot is a point-in-time read of the four counters.
type Snapshot struct {
	L1Hit uint64
	L2Hit uint64
	L3Hit uint64
	Miss  uint64
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		L1Hit: c.l1Hit.Load(),
		L2Hit: c.l2Hit.Load(),
		L3Hit: c.l3Hit.Load(),
		Miss:  c.miss.Load(),
	}
}
