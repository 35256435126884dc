// Package canontable implements the process-wide canonical BDD table: a
// bidirectional, append-only mapping between BDD nodes and small integer
// ids, plus the "ip/len" prefix-intern table the rule compiler's fast path
// consults.
package canontable

import (
	"sync"

	"github.com/dpverify/dpverify/internal/bdd"
)

// Table is safe for unbounded concurrent reads and serializes writes
// internally. Ids are never reused or invalidated: Insert either returns an
// existing id for a structurally-equal (here: pointer-equal, since the
// kernel hash-conses) BDD, or allocates the next monotone id.
type Table struct {
	mu     sync.RWMutex
	idOf   map[*bdd.Node]uint32
	byID   []*bdd.Node // byID[0] is unused; ids start at 1.
	nextID uint32

	internMu sync.RWMutex
	prefixes map[string]uint32
}

// New returns an empty table. id 0 is never assigned, so callers may use it
// as a sentinel "no id yet" value.
func New() *Table {
	return &Table{
		idOf:     make(map[*bdd.Node]uint32),
		byID:     []*bdd.Node{nil},
		nextID:   1,
		prefixes: make(map[string]uint32),
	}
}

// Insert returns the canonical id for n, allocating one if this is the
// first time n has been seen. Concurrent callers racing to insert the same
// node are resolved first-writer-wins: the loser discards its attempt and
// returns the winner's id.
func (t *Table) Insert(n *bdd.Node) uint32 {
	t.mu.RLock()
	if id, ok := t.idOf[n]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.idOf[n]; ok {
		return id
	}
	id := t.nextID
	t.nextID++
	t.idOf[n] = id
	t.byID = append(t.byID, n)
	return id
}

// Get returns the BDD registered for id. It is total for any id previously
// returned by Insert on this table.
func (t *Table) Get(id uint32) *bdd.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byID[id]
}

// Len reports how many distinct BDDs have been interned, for diagnostics
// and as a termination bound on how large the canonical table can grow.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID) - 1
}

// InternPrefix records id under key if no id is already recorded, and
// returns the id that ends up stored (first-writer-wins, matching Insert's
// concurrency contract).
func (t *Table) InternPrefix(key string, id uint32) uint32 {
	t.internMu.RLock()
	if existing, ok := t.prefixes[key]; ok {
		t.internMu.RUnlock()
		return existing
	}
	t.internMu.RUnlock()

	t.internMu.Lock()
	defer t.internMu.Unlock()
	if existing, ok := t.prefixes[key]; ok {
		return existing
	}
	t.prefixes[key] = id
	return id
}

// LookupPrefix returns the id interned under key, if any.
func (t *Table) LookupPrefix(key string) (uint32, bool) {
	t.internMu.RLock()
	defer t.internMu.RUnlock()
	id, ok := t.prefixes[key]
	return id, ok
}
