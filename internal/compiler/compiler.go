// Package compiler implements the per-device rule -> LEC compiler: folding
// a device's longest-prefix-first rule list into a disjoint set of
// Location Equivalence Classes, one maximal predicate per outgoing port.
package compiler

import (
	"strings"

	"github.com/dpverify/dpverify/internal/engine"
	"github.com/dpverify/dpverify/internal/model"
)

// Input bundles what Compile needs for a single device.
type Input struct {
	Device *model.Device

	// Ports is the set of port names this device actually has in the
	// topology; rule ports outside this set are dropped silently.
	Ports map[string]struct{}

	// CommonPrefix is the textual prefix shared by every declared packet
	// space, used by the step-1 heuristic skip.
	CommonPrefix string

	// AllSubnetSpace is the canonical id of the disjunction of every
	// declared destination prefix BDD.
	AllSubnetSpace uint32
}

// Compile mutates d.LECs, d.ForwardableSpace, d.PortSpaceID, and
// d.SpaceByID, then freezes the port->LEC lookup index.
// It is safe to call concurrently for different devices sharing the same
// engine (the only shared mutable state is the engine's tables and
// caches, which are themselves concurrency-safe).
func Compile(eng *engine.Engine, in Input) error {
	d := in.Device
	rules := d.Rules
	if !model.IsSortedDescending(rules) {
		rules = model.SortRulesDescending(rules)
	}

	usedSpaceID := eng.MakeFalse()
	portPredicate := make(map[string]uint32)

	for _, rule := range rules {
		if rule.PrefixLen != 0 && !strings.HasPrefix(rule.IP, in.CommonPrefix) {
			continue
		}

		prefixID, err := eng.L2.EncodeRule(rule.IP, rule.PrefixLen)
		if err != nil {
			return err
		}

		if !eng.L2.Relevance(in.AllSubnetSpace, prefixID) {
			continue
		}

		var hitID uint32
		hitID, usedSpaceID = eng.L2.CalHit(prefixID, usedSpaceID)
		if eng.L3.IsFalse(hitID) {
			continue
		}

		var ports []string
		for _, port := range rule.Ports {
			if _, known := in.Ports[port]; !known {
				continue
			}
			ports = append(ports, port)
		}
		if len(ports) == 0 {
			continue
		}

		currentIDs := make([]uint32, len(ports))
		for i, port := range ports {
			if id, ok := portPredicate[port]; ok {
				currentIDs[i] = id
			} else {
				currentIDs[i] = eng.MakeFalse()
			}
		}

		merged := eng.L2.MergePortSpace(hitID, currentIDs)
		for i, port := range ports {
			portPredicate[port] = merged[i]
		}
	}

	lecs := make([]model.LEC, 0, len(portPredicate))
	for port, predicateID := range portPredicate {
		lecs = append(lecs, model.LEC{
			Port:        port,
			ForwardType: "ALL",
			PredicateID: predicateID,
		})
	}
	d.LECs = lecs

	calForwardableSpace(eng, d)
	mergeLECToSpacePort(d)
	d.FreezeLECIndex()

	return nil
}

// calForwardableSpace sets d.ForwardableSpace to the disjunction of every
// compiled LEC predicate.
func calForwardableSpace(eng *engine.Engine, d *model.Device) {
	space := eng.MakeFalse()
	for _, lec := range d.LECs {
		space = eng.L3.Or(space, lec.PredicateID)
	}
	d.ForwardableSpace = space
}

// mergeLECToSpacePort deduplicates LECs by predicate id, assigning
// sequential int8 space ids; ports whose compiled predicate is identical
// alias to the same space id.
func mergeLECToSpacePort(d *model.Device) {
	d.PortSpaceID = make(map[string]int8, len(d.LECs))
	d.SpaceByID = make(map[int8]*model.SpacePort)

	byPredicate := make(map[uint32]int8)
	var next int8

	for _, lec := range d.LECs {
		id, ok := byPredicate[lec.PredicateID]
		if !ok {
			id = next
			next++
			byPredicate[lec.PredicateID] = id
			d.SpaceByID[id] = &model.SpacePort{SpaceID: id, PredicateID: lec.PredicateID}
		}
		sp := d.SpaceByID[id]
		sp.Ports = append(sp.Ports, lec.Port)
		d.PortSpaceID[lec.Port] = id
	}
}
