package cache

import (
	"strconv"

	"github.com/dgraph-io/ristretto"
)

// ruleResult is the whole-rule application L1 memoizes: the updated used
// space and the updated per-port predicate ids, in the same order the
// caller supplied them.
type ruleResult struct {
	NewUsedID  uint32
	NewPortIDs []uint32
}

// L1 is the holistic memoization tier over whole-rule results. Nothing
// in the traversal or compiler paths currently calls CacheResult to
// populate it, so L1 is dormant: Lookup will always miss. It is kept wired
// rather than deleted because it is an optional layer: a caller that later
// decides to apply whole rules in one step (rather than per-port via L2)
// can start populating it without changing any other component's behavior.
type L1 struct {
	rules    *ristretto.Cache[string, ruleResult]
	counters *Counters
}

// NewL1 builds an (initially empty) L1 tier.
func NewL1(counters *Counters) (*L1, error) {
	rules, err := ristretto.NewCache(&ristretto.Config[string, ruleResult]{
		NumCounters: 1e6,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &L1{rules: rules, counters: counters}, nil
}

// key renders the L1 lookup key: the rule descriptor, the used-space id,
// and the ordered port ids, never reordered or canonicalized.
func key(ruleDescriptor string, usedID uint32, portIDs []uint32) string {
	return ruleDescriptor + "|" + strconv.FormatUint(uint64(usedID), 10) + "|" + portIDKey(portIDs)
}

// Lookup returns a previously registered whole-rule application result.
func (l *L1) Lookup(ruleDescriptor string, usedID uint32, portIDs []uint32) (newUsedID uint32, newPortIDs []uint32, ok bool) {
	r, found := l.rules.Get(key(ruleDescriptor, usedID, portIDs))
	if !found {
		return 0, nil, false
	}
	l.counters.bumpL1Hit()
	return r.NewUsedID, r.NewPortIDs, true
}

// CacheResult registers the result of applying a whole rule, for callers
// that compute one instead of finding it via Lookup.
func (l *L1) CacheResult(ruleDescriptor string, usedID uint32, portIDs []uint32, newUsedID uint32, newPortIDs []uint32) {
	l.rules.Set(key(ruleDescriptor, usedID, portIDs), ruleResult{NewUsedID: newUsedID, NewPortIDs: newPortIDs}, 1)
}
