// Package orchestrator drives the build and verify phases: reading
// input files, compiling devices, building neighborhoods, and running the
// traversal + reachability checker across them.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"

	"github.com/dpverify/dpverify/internal/compiler"
	"github.com/dpverify/dpverify/internal/diag"
	"github.com/dpverify/dpverify/internal/engine"
	"github.com/dpverify/dpverify/internal/ingest"
	"github.com/dpverify/dpverify/internal/model"
	"github.com/dpverify/dpverify/internal/neighborhood"
	"github.com/dpverify/dpverify/internal/npnet"
	"github.com/dpverify/dpverify/internal/reachability"
)

// defaultMaxArriveCnt bounds the per-tunnel arrival counter before a
// suspected forwarding loop is logged; diagnostic
// only, the traversal itself always terminates.
const defaultMaxArriveCnt = 10000

// Config bundles everything a call to Run needs.
type Config struct {
	FileDir      string
	Engine       *engine.Engine
	Log          *slog.Logger
	Clock        clockwork.Clock
	Mode         npnet.Mode
	MaxArriveCnt uint32
	PoolSize     int

	// DiagDir, if non-empty, makes the verify phase write a zstd-compressed
	// per-neighborhood diagnostic dump there (tunnel loop counters and
	// verified-space node counts).
	DiagDir string

	// MaxNeighborhoodSize caps how many marked (destination-declaring)
	// devices a single neighborhood may absorb during two_hops_merge
	// (0: unbounded). Splitting an otherwise-huge neighborhood bounds the
	// per-job NPNet traversal cost on fat-trees with many declared
	// destinations, at the price of running more, smaller jobs.
	MaxNeighborhoodSize int
}

// Result is the CLI report: the three duration and three count figures
// the standard-output contract requires (the caller prints the core count).
type Result struct {
	BuildDuration  time.Duration
	VerifyDuration time.Duration
	TotalDuration  time.Duration
	Reachable      uint64
	Unreachable    uint64
	TotalPairs     uint64
	LoopSuspects   int
	TraversalCount uint64
}

// devicesAdapter satisfies neighborhood.Devices over the build-phase device
// map.
type devicesAdapter struct {
	devices map[string]*model.Device
}

func (a devicesAdapter) DstPrefixBDD(name string) (id uint32, deviceID uint32, ok bool) {
	d, found := a.devices[name]
	if !found || d.SubnetSpace == 0 {
		return 0, 0, false
	}
	return d.SubnetSpace, d.DeviceID, true
}

// Run executes the full build+verify pipeline against cfg.FileDir and
// returns the final tally.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 16
	}
	if cfg.MaxArriveCnt == 0 {
		cfg.MaxArriveCnt = defaultMaxArriveCnt
	}

	totalStart := cfg.Clock.Now()

	buildStart := cfg.Clock.Now()
	devices, net, edgeDevices, allSubnetSpace, err := build(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build phase: %w", err)
	}
	buildDuration := cfg.Clock.Now().Sub(buildStart)

	verifyStart := cfg.Clock.Now()
	counters, loopSuspects, err := verify(ctx, cfg, devices, net, edgeDevices, allSubnetSpace)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: verify phase: %w", err)
	}
	verifyDuration := cfg.Clock.Now().Sub(verifyStart)

	exist, nonExist, traversalCount := counters.Snapshot()

	return &Result{
		BuildDuration:  buildDuration,
		VerifyDuration: verifyDuration,
		TotalDuration:  cfg.Clock.Now().Sub(totalStart),
		Reachable:      exist,
		Unreachable:    nonExist,
		TotalPairs:     exist + nonExist,
		LoopSuspects:   loopSuspects,
		TraversalCount: traversalCount,
	}, nil
}

// build implements the build phase: read the edge device list, topology
// and packet-space declarations, enumerate device names, parallel-read
// rules per device, assign device ids and device_id_bdd, then run the LEC
// compiler in parallel across devices.
func build(ctx context.Context, cfg Config) (map[string]*model.Device, *model.Network, []string, uint32, error) {
	edgeDevices, err := ingest.ReadEdgeDevices(cfg.FileDir)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	net, err := ingest.ReadTopology(cfg.FileDir)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	decls, err := ingest.ReadPacketSpaces(cfg.FileDir)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	names := net.Devices()
	sort.Strings(names) // deterministic device_id assignment.

	devices := make(map[string]*model.Device, len(names))
	for _, name := range names {
		devices[name] = model.NewDevice(name)
	}

	declsByHost := make(map[string][]ingest.PacketSpaceDecl)
	for _, d := range decls {
		declsByHost[d.HostName] = append(declsByHost[d.HostName], d)
	}

	allSubnetSpace := cfg.Engine.MakeFalse()
	for host, hostDecls := range declsByHost {
		dev, ok := devices[host]
		if !ok {
			cfg.Log.Warn("missing packet space for a declared destination, no such device in topology", "device", host)
			continue
		}
		for _, decl := range hostDecls {
			id, err := cfg.Engine.L3.Make(decl.Prefix, decl.PrefixLen)
			if err != nil {
				return nil, nil, nil, 0, fmt.Errorf("encoding packet space for %s: %w", host, err)
			}
			if dev.SubnetSpace == 0 {
				dev.SubnetSpace = id
			} else {
				dev.SubnetSpace = cfg.Engine.L3.Or(dev.SubnetSpace, id)
			}
			dev.PacketSpace = &model.Prefix{IPText: decl.Prefix, PrefixLen: decl.PrefixLen}
			allSubnetSpace = cfg.Engine.L3.Or(allSubnetSpace, id)
		}
	}

	pool := pond.NewPool(cfg.PoolSize)
	group := pool.NewGroupContext(ctx)

	for _, name := range names {
		name := name
		group.SubmitErr(func() error {
			rules, err := ingest.ReadRules(cfg.FileDir, name)
			if err != nil {
				return err
			}
			devices[name].Rules = rules
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, nil, 0, err
	}

	for id, name := range names {
		devices[name].DeviceID = uint32(id)
		devices[name].DeviceIDBDD = cfg.Engine.EncodeSrcDevice(uint16(id))
	}

	commonPrefix := commonPrefixOf(decls)

	compileGroup := pool.NewGroupContext(ctx)
	ports := make(map[string]map[string]struct{}, len(names))
	for _, name := range names {
		portSet := make(map[string]struct{})
		for _, p := range net.Ports(name) {
			portSet[p.PortName] = struct{}{}
		}
		ports[name] = portSet
	}

	for _, name := range names {
		name := name
		compileGroup.SubmitErr(func() error {
			return compiler.Compile(cfg.Engine, compiler.Input{
				Device:         devices[name],
				Ports:          ports[name],
				CommonPrefix:   commonPrefix,
				AllSubnetSpace: allSubnetSpace,
			})
		})
	}
	if err := compileGroup.Wait(); err != nil {
		return nil, nil, nil, 0, err
	}

	return devices, net, edgeDevices, allSubnetSpace, nil
}

// commonPrefixOf computes the textual prefix common to every declared
// packet space, feeding the compiler's step-1 heuristic skip.
func commonPrefixOf(decls []ingest.PacketSpaceDecl) string {
	if len(decls) == 0 {
		return ""
	}
	common := decls[0].Prefix
	for _, d := range decls[1:] {
		common = commonStringPrefix(common, d.Prefix)
		if common == "" {
			break
		}
	}
	return common
}

func commonStringPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// verify implements the verify phase: build neighborhoods, then run each
// NPNet + checker in parallel across neighborhoods.
func verify(ctx context.Context, cfg Config, devices map[string]*model.Device, net *model.Network, edgeDevices []string, allSubnetSpace uint32) (*reachability.Counters, int, error) {
	var markedNames []string
	for name, d := range devices {
		if d.SubnetSpace != 0 {
			markedNames = append(markedNames, name)
		}
	}
	sort.Strings(markedNames)

	neighborhoods := neighborhood.Build(cfg.Engine, net, devicesAdapter{devices: devices}, markedNames, cfg.MaxNeighborhoodSize)

	devicePacketSpaceBDD := make(map[string]uint32, len(devices))
	for name, d := range devices {
		if d.SubnetSpace != 0 {
			devicePacketSpaceBDD[name] = d.SubnetSpace
		}
	}

	counters := &reachability.Counters{}
	checker := &reachability.Checker{
		Engine:      cfg.Engine,
		Devices:     devices,
		EdgeDevices: edgeDevices,
		Mode:        cfg.Mode,
		Counters:    counters,
	}

	pool := pond.NewPool(cfg.PoolSize)
	group := pool.NewGroupContext(ctx)

	loopSuspectsCh := make(chan int, len(neighborhoods))
	var diagCh chan diag.Neighborhood
	if cfg.DiagDir != "" {
		diagCh = make(chan diag.Neighborhood, len(neighborhoods))
	}

	for i, n := range neighborhoods {
		i, n := i, n
		group.SubmitErr(func() error {
			job := npnet.New(npnet.Config{
				Engine:               cfg.Engine,
				Log:                  cfg.Log,
				Network:              net,
				Devices:              devices,
				AllSubnetSpace:       allSubnetSpace,
				DevicePacketSpaceBDD: devicePacketSpaceBDD,
				Mode:                 cfg.Mode,
				MaxArriveCnt:         cfg.MaxArriveCnt,
			}, n)
			job.Run()
			checker.Check(job)
			loopSuspectsCh <- job.LoopSuspects()
			if diagCh != nil {
				diagCh <- neighborhoodDiag(cfg.Engine, job, i)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, 0, err
	}
	close(loopSuspectsCh)

	totalLoopSuspects := 0
	for n := range loopSuspectsCh {
		totalLoopSuspects += n
	}

	if diagCh != nil {
		close(diagCh)
		diags := make([]diag.Neighborhood, 0, len(neighborhoods))
		for d := range diagCh {
			diags = append(diags, d)
		}
		if err := diag.Write(cfg.DiagDir, diags); err != nil {
			return nil, 0, err
		}
	}

	return counters, totalLoopSuspects, nil
}

// neighborhoodDiag builds the diagnostic record for one completed job.
func neighborhoodDiag(eng *engine.Engine, job *npnet.NPNet, id int) diag.Neighborhood {
	names := job.DeviceNames()
	sort.Strings(names)

	devices := make([]diag.DeviceVerifiedSpace, 0, len(names))
	for _, name := range names {
		verified, ok := job.VerifiedSpace(name)
		if !ok {
			continue
		}
		devices = append(devices, diag.DeviceVerifiedSpace{
			Device:    name,
			NodeCount: diag.CountNodes(eng.Table, verified),
		})
	}

	return diag.Neighborhood{
		ID:             id,
		LoopSuspects:   job.LoopSuspects(),
		TraversalSteps: job.TraversalSteps(),
		Devices:        devices,
	}
}
