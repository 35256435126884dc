package model

import (
	"strconv"
	"strings"
)

// Pod is a fat-tree pod: the S0/S1 devices discovered by BFS over edges
// whose endpoints both mention the "S0"/"S1" naming convention, plus the
// ports that leave the pod entirely.
type Pod struct {
	ID        string
	S0Devices map[string]struct{}
	S1Devices map[string]struct{}
	External  []PortRef
}

// NewPod returns an empty pod with the given id.
func NewPod(id string) *Pod {
	return &Pod{
		ID:        id,
		S0Devices: make(map[string]struct{}),
		S1Devices: make(map[string]struct{}),
	}
}

// Network is the undirected adjacency over device-ports, plus the pods
// discovered within it.
type Network struct {
	// DevicePorts maps a device name to its ports, keyed by port name.
	DevicePorts map[string]map[string]*DevicePort
	Pods        map[string]*Pod
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		DevicePorts: make(map[string]map[string]*DevicePort),
		Pods:        make(map[string]*Pod),
	}
}

// AddLink registers both directions of an undirected link between
// (srcDevice, srcPort) and (dstDevice, dstPort).
func (n *Network) AddLink(srcDevice, srcPort, dstDevice, dstPort string) {
	n.setPort(srcDevice, srcPort, &PortRef{DeviceName: dstDevice, PortName: dstPort})
	n.setPort(dstDevice, dstPort, &PortRef{DeviceName: srcDevice, PortName: srcPort})
}

func (n *Network) setPort(device, port string, peer *PortRef) {
	ports, ok := n.DevicePorts[device]
	if !ok {
		ports = make(map[string]*DevicePort)
		n.DevicePorts[device] = ports
	}
	ports[port] = &DevicePort{DeviceName: device, PortName: port, Peer: peer}
}

// Port looks up a single device-port, if it exists in the topology.
func (n *Network) Port(device, port string) (*DevicePort, bool) {
	ports, ok := n.DevicePorts[device]
	if !ok {
		return nil, false
	}
	p, ok := ports[port]
	return p, ok
}

// Ports returns every port registered on device, in no particular order.
func (n *Network) Ports(device string) []*DevicePort {
	ports := n.DevicePorts[device]
	out := make([]*DevicePort, 0, len(ports))
	for _, p := range ports {
		out = append(out, p)
	}
	return out
}

// Devices returns every device name that owns at least one port.
func (n *Network) Devices() []string {
	out := make([]string, 0, len(n.DevicePorts))
	for d := range n.DevicePorts {
		out = append(out, d)
	}
	return out
}

// isFatTreeName reports whether name carries the fat-tree S0/S1 pod
// convention token.
func isFatTreeName(name string, token string) bool {
	return strings.Contains(name, token)
}

// BuildPods discovers pods by BFS over the subgraph of edges whose
// endpoints both contain "S0" or "S1". Each connected component of
// that subgraph becomes one Pod; ports whose peer leaves the pod are
// recorded as its external interfaces.
func (n *Network) BuildPods() {
	n.Pods = make(map[string]*Pod)
	visited := make(map[string]bool)

	isPodDevice := func(name string) bool {
		return isFatTreeName(name, "S0") || isFatTreeName(name, "S1")
	}

	podIndex := 0
	for device := range n.DevicePorts {
		if !isPodDevice(device) || visited[device] {
			continue
		}

		podIndex++
		pod := NewPod(podID(podIndex))
		queue := []string{device}
		visited[device] = true
		members := map[string]struct{}{}

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			members[cur] = struct{}{}
			if isFatTreeName(cur, "S0") {
				pod.S0Devices[cur] = struct{}{}
			}
			if isFatTreeName(cur, "S1") {
				pod.S1Devices[cur] = struct{}{}
			}

			for _, port := range n.DevicePorts[cur] {
				if port.Peer == nil {
					continue
				}
				peer := port.Peer.DeviceName
				if !isPodDevice(peer) {
					continue
				}
				if !visited[peer] {
					visited[peer] = true
					queue = append(queue, peer)
				}
			}
		}

		for member := range members {
			for _, port := range n.DevicePorts[member] {
				if port.Peer == nil {
					continue
				}
				if _, inPod := members[port.Peer.DeviceName]; !inPod {
					pod.External = append(pod.External, port.Ref())
				}
			}
		}

		n.Pods[pod.ID] = pod
	}
}

func podID(i int) string {
	return "pod-" + strconv.Itoa(i)
}
