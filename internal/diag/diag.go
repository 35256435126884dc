// Package diag writes the optional per-neighborhood verification diagnostic
// dump: tunnel loop counters and verified-space sizes, zstd-compressed JSON
// under --diag-dir.
package diag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/dpverify/dpverify/internal/bdd"
	"github.com/dpverify/dpverify/internal/canontable"
)

// DeviceVerifiedSpace records one device's accumulated verified-space size,
// measured as the number of distinct BDD nodes reachable from its root
// (not the number of headers it represents, which is exponential in that).
type DeviceVerifiedSpace struct {
	Device    string `json:"device"`
	NodeCount int    `json:"node_count"`
}

// Neighborhood is one job's diagnostic record.
type Neighborhood struct {
	ID             int                   `json:"id"`
	LoopSuspects   int                   `json:"loop_suspects"`
	TraversalSteps uint64                `json:"traversal_steps"`
	Devices        []DeviceVerifiedSpace `json:"devices"`
}

// CountNodes returns the number of distinct BDD nodes reachable from the
// canonical id's root, including shared subgraphs exactly once. id == 0
// (no verified space recorded) counts as zero.
func CountNodes(table *canontable.Table, id uint32) int {
	if id == 0 {
		return 0
	}
	root := table.Get(id)
	if root == nil {
		return 0
	}
	seen := make(map[*bdd.Node]struct{})
	var walk func(n *bdd.Node)
	walk = func(n *bdd.Node) {
		if n == nil {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		walk(n.Low)
		walk(n.High)
	}
	walk(root)
	return len(seen)
}

// Write zstd-compresses neighborhoods as a single JSON array and writes it
// to dir/diagnostics.json.zst, creating dir if necessary.
func Write(dir string, neighborhoods []Neighborhood) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("diag: creating %s: %w", dir, err)
	}

	body, err := json.Marshal(neighborhoods)
	if err != nil {
		return fmt.Errorf("diag: marshaling diagnostics: %w", err)
	}

	path := filepath.Join(dir, "diagnostics.json.zst")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("diag: creating %s: %w", path, err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("diag: building zstd writer: %w", err)
	}
	if _, err := enc.Write(body); err != nil {
		enc.Close()
		return fmt.Errorf("diag: writing %s: %w", path, err)
	}
	return enc.Close()
}
