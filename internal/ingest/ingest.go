// Package ingest reads the input directory layout off disk: per-device
// rule files, the link topology, packet-space declarations, and the edge
// device list.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dpverify/dpverify/internal/model"
)

// rawRule accepts both field-name spellings in use for routes/<device>.
type rawRule struct {
	Action      string   `json:"action"`
	ForwardType string   `json:"forward_type"`
	Prefix      string   `json:"prefix"`
	IP          string   `json:"ip"`
	Ports       []string `json:"ports"`
	NexthopInfs []string `json:"nexthop_infs"`
	PrefixLen   int      `json:"prefix_len"`
}

func (r rawRule) action() string {
	if r.Action != "" {
		return r.Action
	}
	return r.ForwardType
}

func (r rawRule) prefix() string {
	if r.Prefix != "" {
		return r.Prefix
	}
	return r.IP
}

func (r rawRule) ports() []string {
	if len(r.Ports) > 0 {
		return r.Ports
	}
	return r.NexthopInfs
}

// ReadRules reads routes/<deviceName> and returns its rules in file order
// (the compiler sorts by longest-prefix-first itself).
func ReadRules(fileDir, deviceName string) ([]model.Rule, error) {
	path := filepath.Join(fileDir, "routes", deviceName)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("ingest: routes file not found: %s", path)
		}
		return nil, fmt.Errorf("ingest: reading %s: %w", path, err)
	}

	var raw []rawRule
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("ingest: malformed routes JSON in %s: %w", path, err)
	}

	rules := make([]model.Rule, 0, len(raw))
	for i, r := range raw {
		ip := r.prefix()
		if ip == "" {
			return nil, fmt.Errorf("ingest: %s: record %d missing prefix/ip", path, i)
		}
		rules = append(rules, model.Rule{
			IP:          ip,
			PrefixLen:   r.PrefixLen,
			ForwardType: r.action(),
			Ports:       r.ports(),
		})
	}
	return rules, nil
}

// rawLink is one undirected entry of topology.json.
type rawLink struct {
	SrcNode string `json:"src_node"`
	SrcPort string `json:"src_port"`
	DstNode string `json:"dst_node"`
	DstPort string `json:"dst_port"`
}

// ReadTopology reads topology.json and returns the resulting undirected
// network, pods already discovered.
func ReadTopology(fileDir string) (*model.Network, error) {
	path := filepath.Join(fileDir, "topology.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("ingest: topology file not found: %s", path)
		}
		return nil, fmt.Errorf("ingest: reading %s: %w", path, err)
	}

	var links []rawLink
	if err := json.Unmarshal(b, &links); err != nil {
		return nil, fmt.Errorf("ingest: malformed topology JSON in %s: %w", path, err)
	}

	net := model.NewNetwork()
	for i, l := range links {
		if l.SrcNode == "" || l.DstNode == "" {
			return nil, fmt.Errorf("ingest: %s: link %d missing src_node/dst_node", path, i)
		}
		net.AddLink(l.SrcNode, l.SrcPort, l.DstNode, l.DstPort)
	}
	net.BuildPods()
	return net, nil
}

// PacketSpaceDecl is one normalised packet_space.json record.
type PacketSpaceDecl struct {
	Prefix    string
	PrefixLen int
	HostName  string
}

// rawDecl is the array form's element shape.
type rawDecl struct {
	Prefix    string `json:"prefix"`
	PrefixLen int    `json:"prefix_len"`
	HostName  string `json:"host_name"`
}

// rawObjectEntry is the object form's per-host element shape (no
// host_name: the map key supplies it).
type rawObjectEntry struct {
	Prefix    string `json:"prefix"`
	PrefixLen int    `json:"prefix_len"`
}

// ReadPacketSpaces reads packet_space.json, accepting either the array form
// ({prefix, prefix_len, host_name}[]) or the object form (host_name ->
// [{prefix, prefix_len}]), and normalises both to the array form.
func ReadPacketSpaces(fileDir string) ([]PacketSpaceDecl, error) {
	path := filepath.Join(fileDir, "packet_space.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("ingest: packet_space file not found: %s", path)
		}
		return nil, fmt.Errorf("ingest: reading %s: %w", path, err)
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("ingest: %s is empty", path)
	}

	if trimmed[0] == '[' {
		var raw []rawDecl
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("ingest: malformed packet_space JSON (array form) in %s: %w", path, err)
		}
		out := make([]PacketSpaceDecl, 0, len(raw))
		for i, r := range raw {
			if r.HostName == "" {
				return nil, fmt.Errorf("ingest: %s: record %d missing host_name", path, i)
			}
			out = append(out, PacketSpaceDecl{Prefix: r.Prefix, PrefixLen: r.PrefixLen, HostName: r.HostName})
		}
		return out, nil
	}

	var raw map[string][]rawObjectEntry
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("ingest: malformed packet_space JSON (object form) in %s: %w", path, err)
	}
	var out []PacketSpaceDecl
	for host, entries := range raw {
		for _, e := range entries {
			out = append(out, PacketSpaceDecl{Prefix: e.Prefix, PrefixLen: e.PrefixLen, HostName: host})
		}
	}
	return out, nil
}

// ReadEdgeDevices reads the newline-separated edge_devices file, used both
// as the edge set and the dst set.
func ReadEdgeDevices(fileDir string) ([]string, error) {
	path := filepath.Join(fileDir, "edge_devices")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("ingest: edge_devices file not found: %s", path)
		}
		return nil, fmt.Errorf("ingest: opening %s: %w", path, err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: reading %s: %w", path, err)
	}
	return names, nil
}
