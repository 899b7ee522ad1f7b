package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficassign/pkg/apperror"
)

func link(from, to int64, capacity, fft float64) LinkSpec {
	return LinkSpec{From: from, To: to, Capacity: capacity, FreeFlowTime: fft, Alpha: 0.15, Beta: 4}
}

func TestNewNetwork(t *testing.T) {
	n := NewNetwork()

	if n == nil {
		t.Fatal("expected non-nil network")
	}
	if n.LinkCount() != 0 || n.NodeCount() != 0 {
		t.Errorf("expected empty network, got %d links %d nodes", n.LinkCount(), n.NodeCount())
	}
	if n.AllowsParallelLinks() {
		t.Error("parallel links must be off by default")
	}
}

func TestNetwork_AddLink_DenseIDs(t *testing.T) {
	n := NewNetwork()

	for i, spec := range []LinkSpec{link(1, 2, 10, 1), link(2, 3, 10, 1), link(1, 3, 10, 5)} {
		id, err := n.AddLink(spec)
		require.NoError(t, err)
		assert.Equal(t, LinkID(i), id)
	}

	assert.Equal(t, 3, n.LinkCount())
	assert.Equal(t, []int64{1, 2, 3}, n.Nodes())

	l, ok := n.Link(2)
	require.True(t, ok)
	assert.Equal(t, LinkKey{From: 1, To: 3}, l.Key())
	assert.Equal(t, "1->3", l.Key().String())

	_, ok = n.Link(3)
	assert.False(t, ok)
	_, ok = n.Link(-1)
	assert.False(t, ok)
}

func TestNetwork_AddLink_Validation(t *testing.T) {
	tests := []struct {
		name string
		spec LinkSpec
		code apperror.ErrorCode
	}{
		{"zero capacity", link(1, 2, 0, 1), apperror.CodeNonPositiveCapacity},
		{"negative capacity", link(1, 2, -5, 1), apperror.CodeNonPositiveCapacity},
		{"nan capacity", link(1, 2, math.NaN(), 1), apperror.CodeInvalidLink},
		{"infinite capacity", link(1, 2, math.Inf(1), 1), apperror.CodeInvalidLink},
		{"negative infinite capacity", link(1, 2, math.Inf(-1), 1), apperror.CodeInvalidLink},
		{"negative fft", link(1, 2, 10, -1), apperror.CodeInvalidLink},
		{"negative alpha", LinkSpec{From: 1, To: 2, Capacity: 1, Alpha: -0.1}, apperror.CodeInvalidLink},
		{"infinite beta", LinkSpec{From: 1, To: 2, Capacity: 1, Beta: math.Inf(1)}, apperror.CodeInvalidLink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNetwork()
			id, err := n.AddLink(tt.spec)
			if !apperror.Is(err, tt.code) {
				t.Fatalf("AddLink() error = %v, want code %s", err, tt.code)
			}
			if id != NoLink {
				t.Errorf("id = %d, want NoLink", id)
			}
			if n.LinkCount() != 0 || n.NodeCount() != 0 {
				t.Error("rejected link must not change the network")
			}
		})
	}
}

func TestNetwork_DuplicateLinks(t *testing.T) {
	t.Run("strict", func(t *testing.T) {
		n := NewNetwork()
		_, err := n.AddLink(link(1, 2, 10, 1))
		require.NoError(t, err)

		_, err = n.AddLink(link(1, 2, 5, 2))
		assert.True(t, apperror.Is(err, apperror.CodeDuplicateLink), "got %v", err)
		assert.Equal(t, 1, n.LinkCount())
	})

	t.Run("parallel allowed", func(t *testing.T) {
		n := NewNetwork(WithParallelLinks())
		first, err := n.AddLink(link(1, 2, 10, 1))
		require.NoError(t, err)
		second, err := n.AddLink(link(1, 2, 5, 2))
		require.NoError(t, err)

		assert.Equal(t, []LinkID{first, second}, n.Outgoing(1))
		id, ok := n.LinkBetween(1, 2)
		assert.True(t, ok)
		assert.Equal(t, first, id, "LinkBetween returns the earliest link")
	})
}

func TestNetwork_OutgoingInsertionOrder(t *testing.T) {
	n := NewNetwork()
	// намеренно не по возрастанию конечных узлов
	for _, to := range []int64{9, 3, 7, 5} {
		_, err := n.AddLink(link(1, to, 10, 1))
		require.NoError(t, err)
	}

	out := n.Outgoing(1)
	require.Len(t, out, 4)
	var heads []int64
	for _, id := range out {
		l, _ := n.Link(id)
		heads = append(heads, l.To)
	}
	assert.Equal(t, []int64{9, 3, 7, 5}, heads)
	assert.Equal(t, []LinkID{0, 1, 2, 3}, out)

	assert.Len(t, n.Incoming(7), 1)
	assert.Nil(t, n.Outgoing(42))
	assert.Nil(t, n.Incoming(42))
}

func TestNetwork_AddNode(t *testing.T) {
	n := NewNetwork()
	idx := n.AddNode(5)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 0, n.AddNode(5), "AddNode is idempotent")
	assert.True(t, n.HasNode(5))
	assert.False(t, n.HasNode(6))
	assert.Empty(t, n.Outgoing(5))

	got, ok := n.NodeIndex(5)
	assert.True(t, ok)
	assert.Equal(t, int64(5), n.NodeAt(got))
}

func TestNetwork_CostAndFlowState(t *testing.T) {
	n := NewNetwork()
	id, err := n.AddLink(link(1, 2, 10, 3))
	require.NoError(t, err)

	assert.Equal(t, 3.0, n.Cost(id), "initial cost equals free-flow time")
	assert.Equal(t, 0.0, n.Flow(id))

	require.NoError(t, n.UpdateCost(id, 3))
	require.NoError(t, n.UpdateCost(id, 4.5))
	assert.Equal(t, 4.5, n.Cost(id))

	err = n.UpdateCost(id, 2.999)
	assert.True(t, apperror.Is(err, apperror.CodeCostBelowFreeFlow), "got %v", err)
	assert.Equal(t, 4.5, n.Cost(id), "rejected cost must not be stored")

	err = n.UpdateCost(id, math.NaN())
	assert.True(t, apperror.Is(err, apperror.CodeCostBelowFreeFlow))

	require.NoError(t, n.SetFlow(id, 7))
	assert.Equal(t, 7.0, n.Flow(id))
	assert.True(t, apperror.Is(n.SetFlow(id, -1), apperror.CodeNegativeFlow))
	assert.True(t, apperror.Is(n.SetFlow(5, 1), apperror.CodeUnknownLink))
	assert.True(t, apperror.Is(n.UpdateCost(5, 1), apperror.CodeUnknownLink))

	flows := n.Flows()
	flows[0] = 100
	assert.Equal(t, 7.0, n.Flow(id), "Flows returns a copy")

	n.ResetState()
	assert.Equal(t, 0.0, n.Flow(id))
	assert.Equal(t, 3.0, n.Cost(id))
}

func TestNetwork_LinksCopy(t *testing.T) {
	n := NewNetwork()
	_, err := n.AddLink(link(1, 2, 10, 1))
	require.NoError(t, err)

	links := n.Links()
	links[0].Capacity = 1
	l, _ := n.Link(0)
	assert.Equal(t, 10.0, l.Capacity)
}
