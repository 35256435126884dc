package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/dpverify/dpverify/internal/bdd"
	"github.com/dpverify/dpverify/internal/engine"
	"github.com/dpverify/dpverify/internal/npnet"
)

// writeFixture lays out the input directory for a two-device topology:
// A forwards 10.0.0.0/24 toward B, which is the only declared destination.
func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(dir, "routes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes", "A"),
		[]byte(`[{"action": "forward", "prefix": "10.0.0.0", "prefix_len": 24, "ports": ["p1"]}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes", "B"), []byte(`[]`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "topology.json"),
		[]byte(`[{"src_node": "A", "src_port": "p1", "dst_node": "B", "dst_port": "p1"}]`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "packet_space.json"),
		[]byte(`[{"prefix": "10.0.0.0", "prefix_len": 24, "host_name": "B"}]`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "edge_devices"), []byte("A\nB\n"), 0o644))

	return dir
}

func TestRun_TwoDeviceDirectLink_OnePrefixIsReachable(t *testing.T) {
	t.Parallel()

	dir := writeFixture(t)
	eng, err := engine.New(bdd.DefaultIPBits)
	require.NoError(t, err)

	result, err := Run(context.Background(), Config{
		FileDir: dir,
		Engine:  eng,
		Clock:   clockwork.NewFakeClock(),
		Mode:    npnet.Backward,
	})
	require.NoError(t, err)

	require.Equal(t, uint64(1), result.Reachable)
	require.Equal(t, uint64(0), result.Unreachable)
	require.Equal(t, uint64(1), result.TotalPairs)
	require.Zero(t, result.LoopSuspects)
}

func TestRun_MissingRuleForDeclaredPrefixIsUnreachable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "routes"), 0o755))
	// A's rule misses B's declared subnet entirely.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes", "A"),
		[]byte(`[{"action": "forward", "prefix": "10.0.1.0", "prefix_len": 24, "ports": ["p1"]}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes", "B"), []byte(`[]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "topology.json"),
		[]byte(`[{"src_node": "A", "src_port": "p1", "dst_node": "B", "dst_port": "p1"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "packet_space.json"),
		[]byte(`[{"prefix": "10.0.0.0", "prefix_len": 24, "host_name": "B"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "edge_devices"), []byte("A\nB\n"), 0o644))

	eng, err := engine.New(bdd.DefaultIPBits)
	require.NoError(t, err)

	result, err := Run(context.Background(), Config{
		FileDir: dir,
		Engine:  eng,
		Clock:   clockwork.NewFakeClock(),
		Mode:    npnet.Backward,
	})
	require.NoError(t, err)

	require.Equal(t, uint64(0), result.Reachable)
	require.Equal(t, uint64(1), result.Unreachable)
}

// writeBidirectionalFixture builds a two-device direct link where both ends
// declare their own destination prefix and carry a rule reaching the
// other's: a pair-count invariant this produces is enumerated by
// checkBackward (dst in MarkedNodes, for each src in EdgeDevices) and by
// checkForward (src in MarkedNodes, for each dst in EdgeDevices) over
// exactly the same two (src, dst) pairs, since every edge device here is
// also marked.
func writeBidirectionalFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(dir, "routes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes", "A"),
		[]byte(`[{"action": "forward", "prefix": "10.0.0.0", "prefix_len": 24, "ports": ["p1"]}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes", "B"),
		[]byte(`[{"action": "forward", "prefix": "10.0.2.0", "prefix_len": 24, "ports": ["p1"]}]`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "topology.json"),
		[]byte(`[{"src_node": "A", "src_port": "p1", "dst_node": "B", "dst_port": "p1"}]`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "packet_space.json"),
		[]byte(`[{"prefix": "10.0.2.0", "prefix_len": 24, "host_name": "A"},`+
			`{"prefix": "10.0.0.0", "prefix_len": 24, "host_name": "B"}]`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "edge_devices"), []byte("A\nB\n"), 0o644))

	return dir
}

// TestRun_ForwardAndBackwardModesAgreeOnReachability is the Forward/Backward
// agreement property test: over a fixture where every edge device also
// declares its own packet space, both modes enumerate the same (src, dst)
// pairs and must reach the same reachable/unreachable split.
func TestRun_ForwardAndBackwardModesAgreeOnReachability(t *testing.T) {
	t.Parallel()

	dir := writeBidirectionalFixture(t)

	backwardEngine, err := engine.New(bdd.DefaultIPBits)
	require.NoError(t, err)
	backwardResult, err := Run(context.Background(), Config{
		FileDir: dir,
		Engine:  backwardEngine,
		Clock:   clockwork.NewFakeClock(),
		Mode:    npnet.Backward,
	})
	require.NoError(t, err)

	forwardEngine, err := engine.New(bdd.DefaultIPBits)
	require.NoError(t, err)
	forwardResult, err := Run(context.Background(), Config{
		FileDir: dir,
		Engine:  forwardEngine,
		Clock:   clockwork.NewFakeClock(),
		Mode:    npnet.Forward,
	})
	require.NoError(t, err)

	require.Equal(t, backwardResult.Reachable, forwardResult.Reachable)
	require.Equal(t, backwardResult.Unreachable, forwardResult.Unreachable)
	require.Equal(t, uint64(2), backwardResult.Reachable)
	require.Zero(t, backwardResult.Unreachable)
}

func TestRun_MissingTopologyFileIsError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	eng, err := engine.New(bdd.DefaultIPBits)
	require.NoError(t, err)

	_, err = Run(context.Background(), Config{
		FileDir: dir,
		Engine:  eng,
		Clock:   clockwork.NewFakeClock(),
	})
	require.Error(t, err)
}
