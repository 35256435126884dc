package model

// PacketSpaceAwareDevice carries the subset of a marked device's identity
// the neighborhood builder and NPNet need: its name, the BDD of its
// declared destination prefix, and its assigned numeric device id.
type PacketSpaceAwareDevice struct {
	Name         string
	DstPrefixBDD uint32
	DeviceID     uint32
}

// Neighborhood is a proximity-bounded subgraph around one or more marked
// nodes: the marked nodes themselves plus any normal (unmarked) bridge
// nodes reached while building it.
type Neighborhood struct {
	MarkedNodes map[string]*PacketSpaceAwareDevice
	NormalNodes map[string]struct{}
}

// NewNeighborhood returns an empty neighborhood.
func NewNeighborhood() *Neighborhood {
	return &Neighborhood{
		MarkedNodes: make(map[string]*PacketSpaceAwareDevice),
		NormalNodes: make(map[string]struct{}),
	}
}

// Contains reports whether name is a member of this neighborhood, marked
// or normal.
func (n *Neighborhood) Contains(name string) bool {
	if _, ok := n.MarkedNodes[name]; ok {
		return true
	}
	_, ok := n.NormalNodes[name]
	return ok
}

// Add registers name as a member. If dev is non-nil, name is added as a
// marked node; otherwise it is added as normal.
func (n *Neighborhood) Add(name string, dev *PacketSpaceAwareDevice) {
	if dev != nil {
		n.MarkedNodes[name] = dev
		return
	}
	if _, marked := n.MarkedNodes[name]; marked {
		return
	}
	n.NormalNodes[name] = struct{}{}
}
