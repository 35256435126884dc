package npnet

import "github.com/dpverify/dpverify/internal/model"

// Run drives the two-region alternating fixpoint: traverse the
// inner area, flush tunnels into whichever side they feed, stop if nothing
// moved; otherwise traverse the outer area and flush again, repeating
// until a full inner+outer round moves no new header space through any
// tunnel.
func (net *NPNet) Run() {
	for {
		net.traverse(net.InnerArea)
		if net.entranceCheck() {
			return
		}
		net.traverse(net.OuterArea)
		if net.entranceCheck() {
			return
		}
	}
}

type workItem struct {
	node    *Node
	arrival uint32
}

// traverse runs the single-threaded, wave-based propagation within one
// region ("per-region traverse"). The parallelism dpverify
// exploits is across neighborhoods, not within one region's traversal.
func (net *NPNet) traverse(region map[string]*Node) {
	var wave []workItem
	for _, node := range region {
		if len(node.ArriveSpaces) == 0 {
			continue
		}
		agg := node.arriveSpaceAggregateAndVerify(net.eng.L3)
		if agg == 0 || net.eng.L3.IsFalse(agg) {
			continue
		}
		wave = append(wave, workItem{node: node, arrival: agg})
	}

	for len(wave) > 0 {
		woken := make(map[string]struct{})
		for _, item := range wave {
			net.processNode(region, item.node, item.arrival, woken)
		}

		wave = wave[:0]
		for name := range woken {
			node, ok := region[name]
			if !ok {
				continue
			}
			agg := node.arriveSpaceAggregateAndVerify(net.eng.L3)
			if agg == 0 || net.eng.L3.IsFalse(agg) {
				continue
			}
			wave = append(wave, workItem{node: node, arrival: agg})
		}
	}
}

// processNode walks every port of node, pushing the arriving predicate
// across any port whose LEC guard lets part of it through.
func (net *NPNet) processNode(region map[string]*Node, node *Node, arrival uint32, woken map[string]struct{}) {
	for _, port := range net.network.Ports(node.Name) {
		ref := model.PortRef{DeviceName: node.Name, PortName: port.PortName}

		guard, ok := net.guardFor(node.Name, port)
		if !ok {
			continue
		}
		intersection := net.eng.L3.And(arrival, guard)
		if net.eng.L3.IsFalse(intersection) {
			continue
		}

		if tunnel, isTunnel := net.Entrance[ref]; isTunnel {
			net.noteTunnelArrival(tunnel, node, port.PortName, intersection)
			continue
		}

		if port.Peer == nil {
			continue // dangling port, silently skipped.
		}
		peerNode, ok := region[port.Peer.DeviceName]
		if !ok {
			// Peer is outside this region without being registered as a
			// tunnel; by construction (buildTunnels) this should not
			// happen, so treat it as a no-op rather than propagate.
			continue
		}

		node.PortArriveCnt[port.PortName]++
		net.traversalSteps++
		pruned := peerNode.verifiedSpacePrune(net.eng.L3, intersection)
		if net.eng.L3.IsFalse(pruned) {
			continue
		}
		peerNode.ArriveSpaces = append(peerNode.ArriveSpaces, pruned)
		woken[port.Peer.DeviceName] = struct{}{}
	}
}

// noteTunnelArrival folds an arriving predicate into the tunnel anchored at
// this port, bumping its loop-diagnostic counter.
func (net *NPNet) noteTunnelArrival(tunnel *Tunnel, node *Node, port string, intersection uint32) {
	node.PortArriveCnt[port]++
	net.traversalSteps++
	tunnel.ArriveCnt++
	if tunnel.ArriveCnt > net.maxArriveCnt {
		net.loopSuspects++
		if net.log != nil {
			net.log.Warn("suspected forwarding loop",
				"device", node.Name, "port", port, "arrive_count", tunnel.ArriveCnt)
		}
	}

	pruned := tunnel.verifiedSpacePrune(net.eng.L3, intersection)
	if net.eng.L3.IsFalse(pruned) {
		return
	}
	tunnel.ArriveSpaces = append(tunnel.ArriveSpaces, pruned)
}

// entranceCheck flushes every tunnel with pending arrivals into the node on
// the far side of its anchor port, unioning directly into that node's
// verified space and re-queuing it for the next traverse wave. It returns true iff no tunnel had work,
// i.e. the traversal has converged.
func (net *NPNet) entranceCheck() bool {
	converged := true

	for ref, tunnel := range net.Entrance {
		if len(tunnel.ArriveSpaces) == 0 {
			continue
		}
		converged = false

		agg := tunnel.aggregateAndClear(net.eng.L3)
		if net.eng.L3.IsFalse(agg) {
			continue
		}

		port, ok := net.network.Port(ref.DeviceName, ref.PortName)
		if !ok || port.Peer == nil {
			continue
		}
		peerRegion, _ := net.regionOf(port.Peer.DeviceName)
		if peerRegion == nil {
			continue
		}
		peerNode, ok := peerRegion[port.Peer.DeviceName]
		if !ok {
			continue
		}

		peerNode.VerifiedSpace = orDefault(net.eng.L3, peerNode.VerifiedSpace, agg)
		peerNode.ArriveSpaces = append(peerNode.ArriveSpaces, agg)
	}

	return converged
}

// guardFor returns the LEC predicate that gates traffic leaving nodeName
// over port, per the mode-specific rule: Forward guards by the
// current node's own LEC at this port; Backward guards by the peer
// device's LEC at the peer's port.
func (net *NPNet) guardFor(nodeName string, port *model.DevicePort) (uint32, bool) {
	switch net.mode {
	case Forward:
		dev := net.devices[nodeName]
		if dev == nil {
			return 0, false
		}
		lec, ok := dev.LECForPort(port.PortName)
		if !ok {
			return 0, false
		}
		return lec.PredicateID, true

	default: // Backward
		if port.Peer == nil {
			return 0, false
		}
		peerDev := net.devices[port.Peer.DeviceName]
		if peerDev == nil {
			return 0, false
		}
		lec, ok := peerDev.LECForPort(port.Peer.PortName)
		if !ok {
			return 0, false
		}
		return lec.PredicateID, true
	}
}

// DeviceNames returns every device this job has a Node for, inner and outer
// area alike, for diagnostic enumeration.
func (net *NPNet) DeviceNames() []string {
	names := make([]string, 0, len(net.InnerArea)+len(net.OuterArea))
	for name := range net.InnerArea {
		names = append(names, name)
	}
	for name := range net.OuterArea {
		names = append(names, name)
	}
	return names
}

// LoopSuspects reports how many tunnel arrivals exceeded MaxArriveCnt
// during this job's traversal.
func (net *NPNet) LoopSuspects() int { return net.loopSuspects }

// TraversalSteps reports how many port-level propagations this job
// performed, feeding the process-wide TRAVERSAL_COUNT diagnostic.
func (net *NPNet) TraversalSteps() uint64 { return net.traversalSteps }

// VerifiedSpace looks up the verified space accumulated at name across
// both areas, for the reachability checker.
func (net *NPNet) VerifiedSpace(name string) (uint32, bool) {
	if node, ok := net.InnerArea[name]; ok {
		return node.VerifiedSpace, true
	}
	if node, ok := net.OuterArea[name]; ok {
		return node.VerifiedSpace, true
	}
	return 0, false
}
