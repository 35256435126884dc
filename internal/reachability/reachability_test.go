package reachability

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dpverify/dpverify/internal/bdd"
	"github.com/dpverify/dpverify/internal/compiler"
	"github.com/dpverify/dpverify/internal/engine"
	"github.com/dpverify/dpverify/internal/model"
	"github.com/dpverify/dpverify/internal/npnet"
)

// twoDeviceFixture mirrors the A<->B topology used to exercise npnet
// directly: A carries one forwarding rule toward B's declared subnet, and
// both ends declare their own destination prefix so either can seed.
type twoDeviceFixture struct {
	net            *model.Network
	devices        map[string]*model.Device
	allSubnetSpace uint32
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(bdd.DefaultIPBits)
	require.NoError(t, err)
	return eng
}

func buildFixture(t *testing.T, eng *engine.Engine) twoDeviceFixture {
	t.Helper()

	net := model.NewNetwork()
	net.AddLink("A", "p1", "B", "p1")

	aDst, err := eng.L3.Make("10.0.2.0", 24)
	require.NoError(t, err)
	bDst, err := eng.L3.Make("10.0.0.0", 24)
	require.NoError(t, err)
	allSubnetSpace := eng.L3.Or(aDst, bDst)

	a := model.NewDevice("A")
	a.Rules = []model.Rule{{IP: "10.0.0.0", PrefixLen: 24, Ports: []string{"p1"}}}
	a.SubnetSpace = aDst
	a.PacketSpace = &model.Prefix{IPText: "10.0.2.0", PrefixLen: 24}

	b := model.NewDevice("B")
	b.SubnetSpace = bDst
	b.PacketSpace = &model.Prefix{IPText: "10.0.0.0", PrefixLen: 24}

	devices := map[string]*model.Device{"A": a, "B": b}
	for name, d := range devices {
		portSet := make(map[string]struct{})
		for _, p := range net.Ports(name) {
			portSet[p.PortName] = struct{}{}
		}
		require.NoError(t, compiler.Compile(eng, compiler.Input{
			Device:         d,
			Ports:          portSet,
			CommonPrefix:   "10.0.0.0",
			AllSubnetSpace: allSubnetSpace,
		}))
	}

	for i, name := range []string{"A", "B"} {
		devices[name].DeviceID = uint32(i)
		devices[name].DeviceIDBDD = eng.EncodeSrcDevice(uint16(i))
	}

	return twoDeviceFixture{net: net, devices: devices, allSubnetSpace: allSubnetSpace}
}

func bothMarkedNeighborhood(fx twoDeviceFixture) *model.Neighborhood {
	n := model.NewNeighborhood()
	n.Add("A", &model.PacketSpaceAwareDevice{Name: "A", DstPrefixBDD: fx.devices["A"].SubnetSpace, DeviceID: fx.devices["A"].DeviceID})
	n.Add("B", &model.PacketSpaceAwareDevice{Name: "B", DstPrefixBDD: fx.devices["B"].SubnetSpace, DeviceID: fx.devices["B"].DeviceID})
	return n
}

func TestChecker_Backward_CountsExistForForwardDirectionOnly(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	fx := buildFixture(t, eng)

	job := npnet.New(npnet.Config{
		Engine:         eng,
		Network:        fx.net,
		Devices:        fx.devices,
		AllSubnetSpace: fx.allSubnetSpace,
		Mode:           npnet.Backward,
		MaxArriveCnt:   1000,
	}, bothMarkedNeighborhood(fx))
	job.Run()

	counters := &Counters{}
	checker := &Checker{
		Engine:      eng,
		Devices:     fx.devices,
		EdgeDevices: []string{"A", "B"},
		Mode:        npnet.Backward,
		Counters:    counters,
	}
	checker.Check(job)

	exist, nonExist, traversal := counters.Snapshot()
	require.Equal(t, uint64(1), exist, "A's rule covers B's subnet, so A->B should be counted reachable")
	require.Equal(t, uint64(1), nonExist, "B has no forwarding rules, so B->A should be counted unreachable")
	require.Equal(t, job.TraversalSteps(), traversal)
}

func TestChecker_Forward_CountsExistForForwardDirectionOnly(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	fx := buildFixture(t, eng)

	job := npnet.New(npnet.Config{
		Engine:         eng,
		Network:        fx.net,
		Devices:        fx.devices,
		AllSubnetSpace: fx.allSubnetSpace,
		Mode:           npnet.Forward,
		MaxArriveCnt:   1000,
	}, bothMarkedNeighborhood(fx))
	job.Run()

	counters := &Counters{}
	checker := &Checker{
		Engine:      eng,
		Devices:     fx.devices,
		EdgeDevices: []string{"A", "B"},
		Mode:        npnet.Forward,
		Counters:    counters,
	}
	checker.Check(job)

	exist, nonExist, _ := counters.Snapshot()
	require.Equal(t, uint64(1), exist, "A should be able to reach B's subnet")
	require.Equal(t, uint64(1), nonExist, "B has no rule forwarding toward A's subnet")
}

func TestChecker_Check_AccumulatesAcrossMultipleRuns(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	fx := buildFixture(t, eng)
	counters := &Counters{}
	checker := &Checker{
		Engine:      eng,
		Devices:     fx.devices,
		EdgeDevices: []string{"A", "B"},
		Mode:        npnet.Backward,
		Counters:    counters,
	}

	for i := 0; i < 2; i++ {
		job := npnet.New(npnet.Config{
			Engine:         eng,
			Network:        fx.net,
			Devices:        fx.devices,
			AllSubnetSpace: fx.allSubnetSpace,
			Mode:           npnet.Backward,
			MaxArriveCnt:   1000,
		}, bothMarkedNeighborhood(fx))
		job.Run()
		checker.Check(job)
	}

	exist, nonExist, _ := counters.Snapshot()
	require.Equal(t, uint64(2), exist)
	require.Equal(t, uint64(2), nonExist)
}
