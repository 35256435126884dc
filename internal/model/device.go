package model

import "github.com/dpverify/dpverify/internal/engine"

// SpacePort is a deduplicated LEC predicate: every port whose compiled
// predicate is identical aliases to the same SpaceID.
type SpacePort struct {
	SpaceID     int8
	PredicateID uint32
	Ports       []string
}

// LEC is a single Location Equivalence Class: a forward action and the
// maximal packet predicate forwarded exclusively through it.
type LEC struct {
	Port        string
	ForwardType string
	PredicateID uint32
}

// Device is the per-device forwarding model. It is mutated during build by
// the rule compiler, then treated as frozen and shared by reference for
// the rest of the process.
type Device struct {
	Name string

	DeviceID    uint32
	DeviceIDBDD uint32 // canonical-table id of EncodeSrcDevice(DeviceID)

	Rules []Rule

	// PacketSpace is the local subnet of an edge device, if it declared one.
	PacketSpace *Prefix
	SubnetSpace uint32 // canonical-table id of PacketSpace's BDD, 0 if none.

	// LECs is the compiled, pairwise-disjoint LEC set.
	LECs []LEC

	// PortSpaceID maps a port name to the space_id of the SpacePort it
	// aliases to; SpaceByID indexes SpacePort by that id.
	PortSpaceID map[string]int8
	SpaceByID   map[int8]*SpacePort

	// ForwardableSpace is the disjunction of every LEC predicate.
	ForwardableSpace uint32

	lecByPort map[string]LEC
}

// NewDevice returns an empty device model for name.
func NewDevice(name string) *Device {
	return &Device{
		Name:        name,
		PortSpaceID: make(map[string]int8),
		SpaceByID:   make(map[int8]*SpacePort),
	}
}

// FreezeLECIndex builds the port->LEC lookup index once compilation has
// finished writing d.LECs. Callers must call this before LECForPort.
func (d *Device) FreezeLECIndex() {
	d.lecByPort = make(map[string]LEC, len(d.LECs))
	for _, lec := range d.LECs {
		d.lecByPort[lec.Port] = lec
	}
}

// LECForPort returns the compiled LEC at port, if the port was assigned one
// during compilation.
func (d *Device) LECForPort(port string) (LEC, bool) {
	lec, ok := d.lecByPort[port]
	return lec, ok
}

// PortCovers reports whether port's compiled LEC predicate fully covers
// candidate: every packet in candidate also forwards out port. It tests
// candidate ∧ ¬port_predicate = ⊥, the same arrive-bdd-minus-port-space
// check used to probe a single device/port pair without running a full
// traversal. Returns false if port was never assigned a LEC.
func (d *Device) PortCovers(eng *engine.Engine, candidate uint32, port string) bool {
	lec, ok := d.LECForPort(port)
	if !ok {
		return false
	}
	return eng.L3.IsFalse(eng.L3.AndNot(candidate, lec.PredicateID))
}
