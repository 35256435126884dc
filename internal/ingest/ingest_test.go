package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadRules_AcceptsBothFieldSpellings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "routes"), 0o755))
	body := `[
		{"action": "forward", "prefix": "10.0.0.0", "prefix_len": 24, "ports": ["p1"]},
		{"forward_type": "forward", "ip": "10.0.1.0", "prefix_len": 25, "nexthop_infs": ["p2"]}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes", "leaf1"), []byte(body), 0o644))

	rules, err := ReadRules(dir, "leaf1")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	require.Equal(t, "10.0.0.0", rules[0].IP)
	require.Equal(t, 24, rules[0].PrefixLen)
	require.Equal(t, "forward", rules[0].ForwardType)
	require.Equal(t, []string{"p1"}, rules[0].Ports)

	require.Equal(t, "10.0.1.0", rules[1].IP)
	require.Equal(t, 25, rules[1].PrefixLen)
	require.Equal(t, "forward", rules[1].ForwardType)
	require.Equal(t, []string{"p2"}, rules[1].Ports)
}

func TestReadRules_MissingFileIsError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := ReadRules(dir, "ghost")
	require.Error(t, err)
}

func TestReadRules_RecordMissingPrefixIsError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "routes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes", "leaf1"), []byte(`[{"prefix_len": 24, "ports": ["p1"]}]`), 0o644))

	_, err := ReadRules(dir, "leaf1")
	require.Error(t, err)
}

func TestReadTopology_BuildsUndirectedLinksAndPods(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	body := `[
		{"src_node": "S0-1", "src_port": "p1", "dst_node": "S1-1", "dst_port": "p1"},
		{"src_node": "S1-1", "src_port": "p2", "dst_node": "leaf1", "dst_port": "p1"}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "topology.json"), []byte(body), 0o644))

	net, err := ReadTopology(dir)
	require.NoError(t, err)

	port, ok := net.Port("S1-1", "p1")
	require.True(t, ok)
	require.Equal(t, "S0-1", port.Peer.DeviceName)

	port, ok = net.Port("leaf1", "p1")
	require.True(t, ok)
	require.Equal(t, "S1-1", port.Peer.DeviceName)

	require.Len(t, net.Pods, 1)
}

func TestReadTopology_LinkMissingNodeIsError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "topology.json"), []byte(`[{"src_port": "p1", "dst_node": "B", "dst_port": "p1"}]`), 0o644))

	_, err := ReadTopology(dir)
	require.Error(t, err)
}

func TestReadPacketSpaces_ArrayForm(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	body := `[{"prefix": "10.0.0.0", "prefix_len": 24, "host_name": "leaf1"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "packet_space.json"), []byte(body), 0o644))

	decls, err := ReadPacketSpaces(dir)
	require.NoError(t, err)
	require.Equal(t, []PacketSpaceDecl{{Prefix: "10.0.0.0", PrefixLen: 24, HostName: "leaf1"}}, decls)
}

func TestReadPacketSpaces_ObjectForm(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	body := `{"leaf1": [{"prefix": "10.0.0.0", "prefix_len": 24}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "packet_space.json"), []byte(body), 0o644))

	decls, err := ReadPacketSpaces(dir)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	require.Equal(t, "leaf1", decls[0].HostName)
	require.Equal(t, "10.0.0.0", decls[0].Prefix)
	require.Equal(t, 24, decls[0].PrefixLen)
}

func TestReadPacketSpaces_ArrayRecordMissingHostNameIsError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "packet_space.json"), []byte(`[{"prefix": "10.0.0.0", "prefix_len": 24}]`), 0o644))

	_, err := ReadPacketSpaces(dir)
	require.Error(t, err)
}

func TestReadPacketSpaces_EmptyFileIsError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "packet_space.json"), []byte("  "), 0o644))

	_, err := ReadPacketSpaces(dir)
	require.Error(t, err)
}

func TestReadEdgeDevices_SkipsBlankLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "edge_devices"), []byte("leaf1\n\nleaf2\n"), 0o644))

	names, err := ReadEdgeDevices(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"leaf1", "leaf2"}, names)
}

func TestReadEdgeDevices_MissingFileIsError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := ReadEdgeDevices(dir)
	require.Error(t, err)
}
