package cache

import (
	"strconv"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/dpverify/dpverify/internal/canontable"
)

// hitResult is the memoized pair L2.cal_hit produces: the hit space and the
// updated used-space id.
type hitResult struct {
	HitID  uint32
	UsedID uint32
}

// L2 is the compositional memoization tier, built on top of L3: rule
// encoding (re-keyed through the prefix-intern table), the per-rule hit
// computation, and the per-port predicate merge. 
type L2 struct {
	l3    *L3
	table *canontable.Table

	hits     *ristretto.Cache[string, hitResult]
	counters *Counters
}

// NewL2 builds an L2 tier over l3.
func NewL2(l3 *L3, table *canontable.Table, counters *Counters) (*L2, error) {
	hits, err := ristretto.NewCache(&ristretto.Config[string, hitResult]{
		NumCounters: 1e7,
		MaxCost:     1 << 26,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &L2{l3: l3, table: table, hits: hits, counters: counters}, nil
}

// EncodeRule is L3.Make re-keyed through the prefix-intern table's fast
// path: repeated rules sharing an "ip/len" string across devices skip
// straight to the interned id instead of re-deriving it through the kernel.
func (l *L2) EncodeRule(ip string, prefixLen int) (uint32, error) {
	key := ip + "/" + strconv.Itoa(prefixLen)
	if id, ok := l.table.LookupPrefix(key); ok {
		l.counters.bumpL2Hit()
		return id, nil
	}
	id, err := l.l3.Make(ip, prefixLen)
	if err != nil {
		return 0, err
	}
	return l.table.InternPrefix(key, id), nil
}

// CalHit computes hit = prefix ∧ ¬used, new_used = used ∨ hit, memoizing
// the entire (hit, new_used) pair keyed by (prefixID, usedID).
func (l *L2) CalHit(prefixID, usedID uint32) (hitID, newUsedID uint32) {
	key := idKey(prefixID, usedID)
	if r, ok := l.hits.Get(key); ok {
		l.counters.bumpL2Hit()
		return r.HitID, r.UsedID
	}
	notUsed := l.l3.Not(usedID)
	hit := l.l3.And(prefixID, notUsed)
	newUsed := l.l3.Or(usedID, hit)
	r := hitResult{HitID: hit, UsedID: newUsed}
	l.hits.Set(key, r, 1)
	return r.HitID, r.UsedID
}

// MergePortSpace produces new_ids[i] = L3.Or(old_ids[i], hitID), preserving
// input order exactly: order is part of the semantic key consumers zip
// against port names downstream.
func (l *L2) MergePortSpace(hitID uint32, oldIDs []uint32) []uint32 {
	out := make([]uint32, len(oldIDs))
	for i, old := range oldIDs {
		out[i] = l.l3.Or(old, hitID)
	}
	return out
}

// Relevance implements relevance(all, prefix) = ¬is_false(all ∧ prefix).
// Used by the compiler to skip rules whose match cannot intersect the
// declared destination universe.
func (l *L2) Relevance(allID, prefixID uint32) bool {
	return !l.l3.IsFalse(l.l3.And(allID, prefixID))
}

// portIDKey renders an ordered port-id slice into a cache key component.
// Order is never sorted or canonicalized: port-list order is part of the
// cache key.
func portIDKey(ids []uint32) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}
