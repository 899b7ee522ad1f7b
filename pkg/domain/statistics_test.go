package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain 1 -> 2 -> 3 плюс обход 1 -> 3
func chainNetwork(t *testing.T) *Network {
	t.Helper()
	n := NewNetwork()
	for _, spec := range []LinkSpec{
		{From: 1, To: 2, Capacity: 10, Length: 2, FreeFlowTime: 1},
		{From: 2, To: 3, Capacity: 20, Length: 3, FreeFlowTime: 1},
		{From: 1, To: 3, Capacity: 5, Length: 4, FreeFlowTime: 3},
	} {
		_, err := n.AddLink(spec)
		require.NoError(t, err)
	}
	return n
}

func TestReachable(t *testing.T) {
	n := chainNetwork(t)
	n.AddNode(9)

	r := Reachable(n, 1)
	assert.Equal(t, map[int64]bool{1: true, 2: true, 3: true}, r)

	r = Reachable(n, 3)
	assert.Equal(t, map[int64]bool{3: true}, r)

	assert.Empty(t, Reachable(n, 42))
}

func TestUnreachablePairs(t *testing.T) {
	n := chainNetwork(t)
	n.AddNode(4)

	demand := NewDemandMatrix()
	require.NoError(t, demand.Set(1, 3, 10))
	require.NoError(t, demand.Set(3, 1, 10))
	require.NoError(t, demand.Set(1, 4, 10))

	zones := IdentityCentroids([]int64{1, 3, 4})
	got := UnreachablePairs(n, zones, demand)
	assert.Equal(t, []ODPair{{Origin: 1, Destination: 4}, {Origin: 3, Destination: 1}}, got)

	// второй центроид зоны 3 делает 3->1 достижимым
	require.NoError(t, zones.Assign(3, 3, 2))
	_, err := n.AddLink(LinkSpec{From: 2, To: 1, Capacity: 1, FreeFlowTime: 1})
	require.NoError(t, err)
	got = UnreachablePairs(n, zones, demand)
	assert.Equal(t, []ODPair{{Origin: 1, Destination: 4}}, got)
}

func TestBuildPath(t *testing.T) {
	n := chainNetwork(t)

	p := BuildPath(n, []LinkID{0, 1})
	assert.Equal(t, []int64{1, 2, 3}, p.Nodes)
	assert.Equal(t, 2.0, p.Cost)

	empty := BuildPath(n, nil)
	assert.Empty(t, empty.Nodes)
	assert.Zero(t, empty.Cost)
}

func TestCalculateNetworkStatistics(t *testing.T) {
	n := chainNetwork(t)
	s := CalculateNetworkStatistics(n)

	assert.Equal(t, 3, s.NodeCount)
	assert.Equal(t, 3, s.LinkCount)
	assert.Equal(t, 35.0, s.TotalCapacity)
	assert.Equal(t, 9.0, s.TotalLength)
	assert.InDelta(t, 5.0/3.0, s.AverageFreeFlow, 1e-12)
	assert.Equal(t, 2, s.MaxOutDegree)
	assert.Equal(t, 0, s.MinOutDegree)
	assert.Equal(t, 0, s.ParallelLinkPairs)

	empty := CalculateNetworkStatistics(NewNetwork())
	assert.Equal(t, 0, empty.LinkCount)
}

func TestCalculateFlowStatistics(t *testing.T) {
	n := chainNetwork(t)
	require.NoError(t, n.SetFlow(0, 10)) // v/c 1.0
	require.NoError(t, n.SetFlow(1, 19)) // v/c 0.95
	require.NoError(t, n.UpdateCost(0, 2))

	s := CalculateFlowStatistics(n, 0)
	assert.Equal(t, 29.0, s.TotalFlow)
	assert.Equal(t, 10.0*2+19.0*1, s.TSTT)
	assert.Equal(t, 10.0*2+19.0*3, s.VehicleDistance)
	assert.Equal(t, 1.0, s.MaxVC)
	assert.Equal(t, 1, s.CongestedLinks)
	assert.Equal(t, 2, s.HighVCLinks)
	assert.Equal(t, 1, s.ZeroFlowLinks)
	assert.Equal(t, []LinkID{0, 1}, s.Bottlenecks, "zero-flow links are never bottlenecks")
	assert.InDelta(t, (1.0+0.95)/3, s.MeanVC, 1e-12)

	top := CalculateFlowStatistics(n, 1)
	assert.Equal(t, []LinkID{0}, top.Bottlenecks)
}
