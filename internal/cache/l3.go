package cache

import (
	"fmt"
	"strconv"

	"github.com/dgraph-io/ristretto"

	"github.com/dpverify/dpverify/internal/bdd"
	"github.com/dpverify/dpverify/internal/canontable"
)

// L3 is the primitive memoization tier: make/and/or/not, keyed purely by
// canonical-table ids, never by BDD structure. Eviction under memory
// pressure is semantically safe here — a cache miss just recomputes the
// same BDD through the kernel and canonical table, which is exactly the
// trade-off github.com/dgraph-io/ristretto is designed for.
type L3 struct {
	kernel *bdd.Kernel
	table  *canontable.Table

	ops      *ristretto.Cache[string, uint32]
	counters *Counters
}

// NewL3 builds an L3 tier backed by an ristretto cache sized for
// hundreds-of-devices, thousands-of-rules-per-device deployments.
func NewL3(kernel *bdd.Kernel, table *canontable.Table, counters *Counters) (*L3, error) {
	ops, err := ristretto.NewCache(&ristretto.Config[string, uint32]{
		NumCounters: 1e7,
		MaxCost:     1 << 27,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: failed to build L3 ristretto cache: %w", err)
	}
	return &L3{kernel: kernel, table: table, ops: ops, counters: counters}, nil
}

func (l *L3) get(key string) (uint32, bool) {
	v, ok := l.ops.Get(key)
	return v, ok
}

func (l *L3) set(key string, id uint32) {
	l.ops.Set(key, id, 1)
}

// Make interns the BDD for (ip, len) as a destination-prefix clause and
// returns its canonical id.
func (l *L3) Make(ip string, prefixLen int) (uint32, error) {
	key := "make:" + ip + "/" + strconv.Itoa(prefixLen)
	if id, ok := l.get(key); ok {
		l.counters.bumpL3Hit()
		return id, nil
	}
	n, err := l.kernel.EncodePrefix(ip, prefixLen)
	if err != nil {
		return 0, err
	}
	id := l.table.Insert(n)
	l.set(key, id)
	l.counters.bumpMiss()
	return id, nil
}

// And returns the id of bdd(a) ∧ bdd(b).
func (l *L3) And(a, b uint32) uint32 {
	key := "and:" + idKey(a, b)
	if id, ok := l.get(key); ok {
		l.counters.bumpL3Hit()
		return id
	}
	id := l.table.Insert(l.kernel.And(l.table.Get(a), l.table.Get(b)))
	l.set(key, id)
	l.counters.bumpMiss()
	return id
}

// Or returns the id of bdd(a) ∨ bdd(b).
func (l *L3) Or(a, b uint32) uint32 {
	key := "or:" + idKey(a, b)
	if id, ok := l.get(key); ok {
		l.counters.bumpL3Hit()
		return id
	}
	id := l.table.Insert(l.kernel.Or(l.table.Get(a), l.table.Get(b)))
	l.set(key, id)
	l.counters.bumpMiss()
	return id
}

// Not returns the id of ¬bdd(a).
func (l *L3) Not(a uint32) uint32 {
	key := "not:" + strconv.FormatUint(uint64(a), 10)
	if id, ok := l.get(key); ok {
		l.counters.bumpL3Hit()
		return id
	}
	id := l.table.Insert(l.kernel.Not(l.table.Get(a)))
	l.set(key, id)
	l.counters.bumpMiss()
	return id
}

// AndNot returns the id of bdd(a) ∧ ¬bdd(b).
func (l *L3) AndNot(a, b uint32) uint32 {
	return l.And(a, l.Not(b))
}

// IsFalse reports whether id names the bottom BDD.
func (l *L3) IsFalse(id uint32) bool {
	return l.kernel.IsFalse(l.table.Get(id))
}

func idKey(a, b uint32) string {
	return strconv.FormatUint(uint64(a), 10) + "," + strconv.FormatUint(uint64(b), 10)
}
