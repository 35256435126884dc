package npnet

import (
	"log/slog"

	"github.com/dpverify/dpverify/internal/engine"
	"github.com/dpverify/dpverify/internal/model"
)

// NPNet is one verification job: a neighborhood's inner area, the rest of
// the network as its outer area, and the tunnels that join them.
type NPNet struct {
	Neighborhood *model.Neighborhood

	InnerArea map[string]*Node
	OuterArea map[string]*Node
	Entrance  map[model.PortRef]*Tunnel

	network *model.Network
	devices map[string]*model.Device

	allSubnetSpace       uint32
	devicePacketSpaceBDD map[string]uint32

	mode         Mode
	maxArriveCnt uint32

	eng *engine.Engine
	log *slog.Logger

	loopSuspects   int
	traversalSteps uint64
}

// Config bundles the shared, build-phase-frozen state every NPNet job
// reads from, plus the per-job parameters.
type Config struct {
	Engine               *engine.Engine
	Log                  *slog.Logger
	Network              *model.Network
	Devices              map[string]*model.Device // all devices, by name
	AllSubnetSpace       uint32
	DevicePacketSpaceBDD map[string]uint32
	Mode                 Mode
	MaxArriveCnt         uint32
}

// New builds an NPNet for the given neighborhood: every device gets a Node,
// assigned to the inner area if it is a member of the neighborhood and to
// the outer area otherwise; every port crossing that boundary gets a
// Tunnel anchored on the side it is walked from.
func New(cfg Config, n *model.Neighborhood) *NPNet {
	net := &NPNet{
		Neighborhood:         n,
		InnerArea:            make(map[string]*Node),
		OuterArea:            make(map[string]*Node),
		Entrance:             make(map[model.PortRef]*Tunnel),
		network:              cfg.Network,
		devices:              cfg.Devices,
		allSubnetSpace:       cfg.AllSubnetSpace,
		devicePacketSpaceBDD: cfg.DevicePacketSpaceBDD,
		mode:                 cfg.Mode,
		maxArriveCnt:         cfg.MaxArriveCnt,
		eng:                  cfg.Engine,
		log:                  cfg.Log,
	}

	for name, d := range cfg.Devices {
		node := newNode(d)
		if n.Contains(name) {
			net.InnerArea[name] = node
		} else {
			net.OuterArea[name] = node
		}
	}

	net.buildTunnels()
	net.seed()

	return net
}

func (net *NPNet) regionOf(name string) (map[string]*Node, bool) {
	if _, ok := net.InnerArea[name]; ok {
		return net.InnerArea, true
	}
	if _, ok := net.OuterArea[name]; ok {
		return net.OuterArea, false
	}
	return nil, false
}

func (net *NPNet) buildTunnels() {
	for name, ports := range net.network.DevicePorts {
		_, nameInner := net.InnerArea[name]
		for portName, port := range ports {
			if port.Peer == nil {
				continue
			}
			_, peerInner := net.InnerArea[port.Peer.DeviceName]
			if nameInner == peerInner {
				continue // same region, not a boundary crossing.
			}
			ref := model.PortRef{DeviceName: name, PortName: portName}
			net.Entrance[ref] = newTunnel(ref)
		}
	}
}

// seed implements the seeding step: Backward seeds each marked node's
// own destination prefix; Forward seeds encode_src_device(id) ∧
// all_subnet_space.
func (net *NPNet) seed() {
	for name, marked := range net.Neighborhood.MarkedNodes {
		region, _ := net.regionOf(name)
		node, ok := region[name]
		if !ok {
			continue
		}

		var seedID uint32
		switch net.mode {
		case Backward:
			seedID = marked.DstPrefixBDD
		case Forward:
			srcID := net.eng.EncodeSrcDevice(uint16(marked.DeviceID))
			seedID = net.eng.L3.And(srcID, net.allSubnetSpace)
		}
		node.ArriveSpaces = append(node.ArriveSpaces, seedID)
	}
}
