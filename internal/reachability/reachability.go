// Package reachability implements the reachability checker: once an NPNet
// job has reached its fixpoint, decide for each (src, dst) edge-device pair
// whether the declared packet space can reach its destination, and fold the
// verdict into the process-wide EXIST/NONEXIST/TRAVERSAL_COUNT counters.
package reachability

import (
	"sync/atomic"

	"github.com/dpverify/dpverify/internal/engine"
	"github.com/dpverify/dpverify/internal/model"
	"github.com/dpverify/dpverify/internal/npnet"
)

// Counters are the three process-wide atomics, accumulated across every
// neighborhood's checker run.
type Counters struct {
	Exist          atomic.Uint64
	NonExist       atomic.Uint64
	TraversalCount atomic.Uint64
}

// Snapshot returns a point-in-time read of all three counters.
func (c *Counters) Snapshot() (exist, nonExist, traversalCount uint64) {
	return c.Exist.Load(), c.NonExist.Load(), c.TraversalCount.Load()
}

// Checker decides reachability for one completed NPNet job against the
// global edge-device set. A single Checker is shared read-only
// across every neighborhood's parallel verify worker; only its Counters
// are mutated, and only via atomics.
type Checker struct {
	Engine      *engine.Engine
	Devices     map[string]*model.Device
	EdgeDevices []string
	Mode        npnet.Mode
	Counters    *Counters
}

// Check tallies every (src, dst) edge-device pair reachable through net's
// marked nodes, then folds net's traversal step count into TRAVERSAL_COUNT.
func (c *Checker) Check(net *npnet.NPNet) {
	switch c.Mode {
	case npnet.Forward:
		c.checkForward(net)
	default:
		c.checkBackward(net)
	}
	c.Counters.TraversalCount.Add(net.TraversalSteps())
}

// checkBackward implements the default mode: for each candidate src_name
// in the edge-device set, test whether dst.dst_prefix_bdd is already
// subsumed by src's verified_space.
func (c *Checker) checkBackward(net *npnet.NPNet) {
	l3 := c.Engine.L3
	for _, src := range c.EdgeDevices {
		srcVerified, ok := net.VerifiedSpace(src)
		if !ok {
			continue
		}
		if srcVerified == 0 {
			srcVerified = c.Engine.MakeFalse() // never reached
		}
		for dstName, marked := range net.Neighborhood.MarkedNodes {
			if dstName == src {
				continue
			}
			uncovered := l3.AndNot(marked.DstPrefixBDD, srcVerified)
			if l3.IsFalse(uncovered) {
				c.Counters.Exist.Add(1)
			} else {
				c.Counters.NonExist.Add(1)
			}
		}
	}
}

// checkForward mirrors checkBackward: for each dst in the edge-device set,
// form encode_src_device(src.device_id) ∧ dst_subnet for every marked node
// (the sources) and test subsumption by dst.verified_space.
func (c *Checker) checkForward(net *npnet.NPNet) {
	l3 := c.Engine.L3
	for _, dst := range c.EdgeDevices {
		dstVerified, ok := net.VerifiedSpace(dst)
		if !ok {
			continue
		}
		if dstVerified == 0 {
			dstVerified = c.Engine.MakeFalse() // never reached
		}
		dstDevice, ok := c.Devices[dst]
		if !ok || dstDevice.SubnetSpace == 0 {
			continue
		}

		for srcName, marked := range net.Neighborhood.MarkedNodes {
			if srcName == dst {
				continue
			}
			srcBDD := c.Engine.EncodeSrcDevice(uint16(marked.DeviceID))
			candidate := l3.And(srcBDD, dstDevice.SubnetSpace)
			uncovered := l3.AndNot(candidate, dstVerified)
			if l3.IsFalse(uncovered) {
				c.Counters.Exist.Add(1)
			} else {
				c.Counters.NonExist.Add(1)
			}
		}
	}
}
