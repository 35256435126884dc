// Package engine wires together the process-wide, init-once state dpverify
// shares across every device and every neighborhood: the BDD kernel, the
// canonical BDD table, and the layered cache.
package engine

import (
	"fmt"

	"github.com/dpverify/dpverify/internal/bdd"
	"github.com/dpverify/dpverify/internal/cache"
	"github.com/dpverify/dpverify/internal/canontable"
)

// Engine is safe for concurrent use by every device-build worker and every
// neighborhood-verify worker: the kernel hash-conses internally, the
// canonical table is append-only, and the cache tiers are backed by
// concurrency-safe caches. An Engine is created once per process and
// destroyed at shutdown; there is no per-request variant.
type Engine struct {
	Kernel *bdd.Kernel
	Table  *canontable.Table

	Counters *cache.Counters
	L1       *cache.L1
	L2       *cache.L2
	L3       *cache.L3
}

// New initializes an Engine with a kernel of the given bit width. ipBits
// must be at least bdd.SrcDeviceBits, since the source-device range
// x1..x16 must remain disjoint from the destination-prefix range.
func New(ipBits int) (*Engine, error) {
	if ipBits < bdd.SrcDeviceBits {
		return nil, fmt.Errorf("engine: ipBits (%d) must be >= %d to leave room for the src-device range", ipBits, bdd.SrcDeviceBits)
	}

	kernel := bdd.New(ipBits)
	table := canontable.New()
	counters := &cache.Counters{}

	l3, err := cache.NewL3(kernel, table, counters)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to build L3 cache: %w", err)
	}
	l2, err := cache.NewL2(l3, table, counters)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to build L2 cache: %w", err)
	}
	l1, err := cache.NewL1(counters)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to build L1 cache: %w", err)
	}

	return &Engine{
		Kernel:   kernel,
		Table:    table,
		Counters: counters,
		L1:       l1,
		L2:       l2,
		L3:       l3,
	}, nil
}

// EncodeSrcDevice interns EncodeSrcDevice(id) and returns its canonical id,
// a device's device_id_bdd.
func (e *Engine) EncodeSrcDevice(id uint16) uint32 {
	return e.Table.Insert(e.Kernel.EncodeSrcDevice(id))
}

// MakeFalse returns the canonical id of ⊥.
func (e *Engine) MakeFalse() uint32 {
	return e.Table.Insert(e.Kernel.MakeFalse())
}

// MakeAll returns the canonical id of ⊤.
func (e *Engine) MakeAll() uint32 {
	return e.Table.Insert(e.Kernel.MakeTrue())
}
