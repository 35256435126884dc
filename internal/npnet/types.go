// Package npnet implements the two-region symbolic traversal engine: per
// neighborhood, an inner/outer partition joined by tunnels, and the
// alternating fixpoint that propagates arriving header sets until neither
// region gains new verified space.
package npnet

import (
	"github.com/dpverify/dpverify/internal/engine"
	"github.com/dpverify/dpverify/internal/model"
)

// Mode selects which direction the traversal seeds and guards from.
type Mode int

const (
	// Backward is the default run mode: marked nodes seed their own
	// destination prefix, and a port's guard is the *peer* device's LEC
	// predicate at the peer port.
	Backward Mode = iota
	// Forward seeds encode_src_device(id) ∧ all_subnet_space at every
	// marked node, and guards by the *current* node's own LEC predicate.
	Forward
)

func (m Mode) String() string {
	if m == Forward {
		return "forward"
	}
	return "backward"
}

// Node is an NPNetNode: the traversal state owned by exactly one
// NPNet for the lifetime of one verification job.
type Node struct {
	Name          string
	Device        *model.Device
	ArriveSpaces  []uint32
	VerifiedSpace uint32
	PortArriveCnt map[string]uint32
}

func newNode(d *model.Device) *Node {
	return &Node{
		Name:          d.Name,
		Device:        d,
		PortArriveCnt: make(map[string]uint32),
	}
}

// arriveSpaceAggregateAndVerify disjoins every pending arrival, folds the
// result into VerifiedSpace, clears the arrival queue, and returns the
// aggregate.
func (n *Node) arriveSpaceAggregateAndVerify(l3 l3Ops) uint32 {
	agg := uint32(0)
	for _, id := range n.ArriveSpaces {
		if agg == 0 {
			agg = id
			continue
		}
		agg = l3.Or(agg, id)
	}
	n.ArriveSpaces = n.ArriveSpaces[:0]
	if agg == 0 {
		return agg
	}
	n.VerifiedSpace = orDefault(l3, n.VerifiedSpace, agg)
	return agg
}

// verifiedSpacePrune returns the part of candidate not already covered by
// VerifiedSpace, and folds that new part into VerifiedSpace.
func (n *Node) verifiedSpacePrune(l3 l3Ops, candidate uint32) uint32 {
	if n.VerifiedSpace == 0 {
		n.VerifiedSpace = candidate
		return candidate
	}
	newPart := l3.AndNot(candidate, n.VerifiedSpace)
	if l3.IsFalse(newPart) {
		return newPart
	}
	n.VerifiedSpace = l3.Or(n.VerifiedSpace, newPart)
	return newPart
}

func orDefault(l3 l3Ops, a, b uint32) uint32 {
	if a == 0 {
		return b
	}
	return l3.Or(a, b)
}

// Tunnel is anchored at one boundary DevicePort: it behaves like a
// Node but tracks a cumulative per-tunnel arrival counter used for
// suspected-loop diagnostics.
type Tunnel struct {
	Anchor        model.PortRef
	ArriveSpaces  []uint32
	VerifiedSpace uint32
	ArriveCnt     uint32
}

func newTunnel(anchor model.PortRef) *Tunnel {
	return &Tunnel{Anchor: anchor}
}

func (t *Tunnel) verifiedSpacePrune(l3 l3Ops, candidate uint32) uint32 {
	if t.VerifiedSpace == 0 {
		t.VerifiedSpace = candidate
		return candidate
	}
	newPart := l3.AndNot(candidate, t.VerifiedSpace)
	if l3.IsFalse(newPart) {
		return newPart
	}
	t.VerifiedSpace = l3.Or(t.VerifiedSpace, newPart)
	return newPart
}

func (t *Tunnel) aggregateAndClear(l3 l3Ops) uint32 {
	agg := uint32(0)
	for _, id := range t.ArriveSpaces {
		if agg == 0 {
			agg = id
			continue
		}
		agg = l3.Or(agg, id)
	}
	t.ArriveSpaces = t.ArriveSpaces[:0]
	return agg
}

// l3Ops is the subset of the engine's L3 tier the traversal needs. Kept as
// a narrow interface so tests can substitute a fake kernel/cache pair.
type l3Ops interface {
	Or(a, b uint32) uint32
	AndNot(a, b uint32) uint32
	IsFalse(a uint32) bool
}

var _ l3Ops = engine.Engine{}.L3
