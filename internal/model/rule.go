// Package model holds the data types shared across dpverify's build and
// verify phases: rules, devices, the network graph, and the compiled LEC
// output of the rule compiler.
package model

import (
	"sort"
	"strconv"
)

// Prefix is an IP prefix: the text of the IP and the number of high-order
// bits that are significant.
type Prefix struct {
	IPText    string
	PrefixLen int
}

// Rule is a single forwarding-table entry. Rules are immutable after load.
type Rule struct {
	IP          string
	PrefixLen   int
	ForwardType string
	Ports       []string
}

// Descriptor renders a stable per-rule string used as the rule_descriptor
// component of L1 cache keys.
func (r Rule) Descriptor() string {
	return r.ForwardType + ":" + r.IP + "/" + strconv.Itoa(r.PrefixLen)
}

// SortRulesDescending orders rules by prefix length descending (longest
// prefix first), breaking ties stably by leaving equal-length rules in
// their original relative order. The compiler re-sorts whenever input
// order violates this, rather than trusting the loader.
func SortRulesDescending(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PrefixLen > out[j].PrefixLen
	})
	return out
}

// IsSortedDescending reports whether rules are already ordered by prefix
// length descending, so callers that already sorted at load time can skip
// a redundant stable sort.
func IsSortedDescending(rules []Rule) bool {
	for i := 1; i < len(rules); i++ {
		if rules[i].PrefixLen > rules[i-1].PrefixLen {
			return false
		}
	}
	return true
}
