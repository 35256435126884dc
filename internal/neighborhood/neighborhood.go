// Package neighborhood builds the proximity-bounded subgraphs that
// each drive one NPNet verification job.
package neighborhood

import (
	"github.com/dpverify/dpverify/internal/engine"
	"github.com/dpverify/dpverify/internal/model"
)

// startingBudget is the depth budget two_hops_merge starts (and refills to
// on every marked-neighbour hop): the "two hops" of the algorithm's name.
const startingBudget = 2

// Devices is the subset of the build-phase device map the builder needs:
// every device's name, its compiled destination-prefix BDD (if marked),
// and the network to walk.
type Devices interface {
	// DstPrefixBDD returns the marked-device BDD id and true if name owns a
	// declared packet space; ok is false for normal (unmarked) devices.
	DstPrefixBDD(name string) (id uint32, deviceID uint32, ok bool)
}

// Build runs two_hops_merge from every unvisited marked node and returns
// the set of neighborhoods that together cover every marked node. A node
// joins at most one neighborhood. maxMarked caps how many marked nodes a
// single neighborhood may absorb before its exploration stops early
// (0: unbounded); a dense fat-tree with thousands of declared destinations
// can otherwise merge into one neighborhood spanning the whole topology.
func Build(eng *engine.Engine, net *model.Network, devices Devices, markedNames []string, maxMarked int) []*model.Neighborhood {
	visited := make(map[string]bool)
	var result []*model.Neighborhood

	for _, name := range markedNames {
		if visited[name] {
			continue
		}
		n := twoHopsMerge(net, devices, name, visited, maxMarked)
		result = append(result, n)
	}

	return result
}

type frontierEntry struct {
	name   string
	budget int
}

// twoHopsMerge explores outward from start, refilling the depth budget to
// startingBudget whenever it steps onto a marked node and decrementing it
// by one whenever it steps onto a normal node; a branch halts once its
// budget reaches zero. All nodes reached (marked or normal) join the
// returned neighborhood and are marked visited so no later call can claim
// them. If maxMarked is positive, exploration also halts once the
// neighborhood has absorbed that many marked nodes, leaving the rest for a
// later call starting from one of the still-unvisited marked nodes.
func twoHopsMerge(net *model.Network, devices Devices, start string, visited map[string]bool, maxMarked int) *model.Neighborhood {
	n := model.NewNeighborhood()
	markedCount := 0

	addNode := func(name string) bool {
		if dstID, deviceID, ok := devices.DstPrefixBDD(name); ok {
			n.Add(name, &model.PacketSpaceAwareDevice{Name: name, DstPrefixBDD: dstID, DeviceID: deviceID})
			markedCount++
			return maxMarked > 0 && markedCount >= maxMarked
		}
		n.Add(name, nil)
		return false
	}

	visited[start] = true
	if addNode(start) {
		return n
	}

	queue := []frontierEntry{{name: start, budget: startingBudget}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.budget == 0 {
			continue
		}

		for _, port := range net.Ports(cur.name) {
			if port.Peer == nil {
				continue
			}
			peer := port.Peer.DeviceName
			if visited[peer] {
				continue
			}

			_, _, peerMarked := devices.DstPrefixBDD(peer)

			var nextBudget int
			if peerMarked {
				nextBudget = startingBudget
			} else {
				nextBudget = cur.budget - 1
				if nextBudget < 0 {
					continue
				}
			}

			visited[peer] = true
			if addNode(peer) {
				return n
			}
			queue = append(queue, frontierEntry{name: peer, budget: nextBudget})
		}
	}

	return n
}
