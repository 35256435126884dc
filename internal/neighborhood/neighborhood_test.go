package neighborhood

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dpverify/dpverify/internal/bdd"
	"github.com/dpverify/dpverify/internal/engine"
	"github.com/dpverify/dpverify/internal/model"
)

type fakeDevices struct {
	marked map[string]uint32
}

func (f fakeDevices) DstPrefixBDD(name string) (id uint32, deviceID uint32, ok bool) {
	id, ok = f.marked[name]
	return id, 0, ok
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(bdd.DefaultIPBits)
	require.NoError(t, err)
	return eng
}

func TestBuild_TwoHopsMerge_StopsAtBudgetWithoutAnotherMarkedNode(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	net := model.NewNetwork()
	// A(marked) - B - C - D - E, budget 2: A, B, C reached (budgets 2, 1,
	// 0); the branch halts before D, since stepping there would need a
	// negative budget.
	net.AddLink("A", "p1", "B", "p1")
	net.AddLink("B", "p2", "C", "p1")
	net.AddLink("C", "p2", "D", "p1")
	net.AddLink("D", "p2", "E", "p1")

	dst, err := eng.L3.Make("10.0.0.0", 24)
	require.NoError(t, err)
	devices := fakeDevices{marked: map[string]uint32{"A": dst}}

	neighborhoods := Build(eng, net, devices, []string{"A"}, 0)
	require.Len(t, neighborhoods, 1)

	n := neighborhoods[0]
	require.True(t, n.Contains("A"))
	require.True(t, n.Contains("B"))
	require.True(t, n.Contains("C"))
	require.False(t, n.Contains("D"))
	require.False(t, n.Contains("E"))
}

func TestBuild_TwoHopsMerge_MarkedNeighbourRefillsBudget(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	net := model.NewNetwork()
	// A(marked) - B - C(marked) - D - E - F, budget refills at C.
	net.AddLink("A", "p1", "B", "p1")
	net.AddLink("B", "p2", "C", "p1")
	net.AddLink("C", "p2", "D", "p1")
	net.AddLink("D", "p2", "E", "p1")
	net.AddLink("E", "p2", "F", "p1")

	dst, err := eng.L3.Make("10.0.0.0", 24)
	require.NoError(t, err)
	devices := fakeDevices{marked: map[string]uint32{"A": dst, "C": dst}}

	neighborhoods := Build(eng, net, devices, []string{"A"}, 0)
	require.Len(t, neighborhoods, 1)

	n := neighborhoods[0]
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		require.True(t, n.Contains(name), "expected %s in neighborhood", name)
	}
	require.False(t, n.Contains("F"))
}

func TestBuild_MaxMarkedCapsAbsorbedMarkedNodesPerNeighborhood(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	net := model.NewNetwork()
	// A(marked) - B(marked) - C(marked) - D(marked), budget refills at every
	// marked hop so an uncapped merge would absorb all four into one
	// neighborhood; capping at 2 must split the run across calls instead.
	net.AddLink("A", "p1", "B", "p1")
	net.AddLink("B", "p2", "C", "p1")
	net.AddLink("C", "p2", "D", "p1")

	dst, err := eng.L3.Make("10.0.0.0", 24)
	require.NoError(t, err)
	devices := fakeDevices{marked: map[string]uint32{"A": dst, "B": dst, "C": dst, "D": dst}}

	neighborhoods := Build(eng, net, devices, []string{"A", "B", "C", "D"}, 2)
	require.Len(t, neighborhoods, 2)

	for _, n := range neighborhoods {
		count := 0
		for range n.MarkedNodes {
			count++
		}
		require.LessOrEqual(t, count, 2)
	}
}

func TestBuild_EachMarkedNodeJoinsAtMostOneNeighborhood(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	net := model.NewNetwork()
	net.AddLink("A", "p1", "B", "p1")
	net.AddLink("C", "p1", "D", "p1")

	dst, err := eng.L3.Make("10.0.0.0", 24)
	require.NoError(t, err)
	devices := fakeDevices{marked: map[string]uint32{"A": dst, "C": dst}}

	neighborhoods := Build(eng, net, devices, []string{"A", "C"}, 0)
	require.Len(t, neighborhoods, 2)

	seen := map[string]bool{}
	for _, n := range neighborhoods {
		for name := range n.MarkedNodes {
			require.False(t, seen[name], "device %s claimed by more than one neighborhood", name)
			seen[name] = true
		}
		for name := range n.NormalNodes {
			require.False(t, seen[name], "device %s claimed by more than one neighborhood", name)
			seen[name] = true
		}
	}
}
