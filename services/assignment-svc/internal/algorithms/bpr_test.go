package algorithms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficassign/pkg/domain"
)

func TestBPRCost(t *testing.T) {
	tests := []struct {
		name                      string
		fft, alpha, beta, v, c, want float64
	}{
		{"zero flow", 10, 0.15, 4, 0, 100, 10},
		{"at capacity", 10, 0.15, 4, 100, 100, 11.5},
		{"double capacity", 1, 0.15, 4, 20, 10, 1 + 0.15*16},
		{"linear", 2, 1, 1, 5, 10, 3},
		{"alpha zero", 7, 0, 4, 1000, 1, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BPRCost(tt.fft, tt.alpha, tt.beta, tt.v, tt.c)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestBPRCost_NeverBelowFreeFlow(t *testing.T) {
	for _, v := range []float64{0, 1e-12, 0.5, 3, 1e6} {
		assert.GreaterOrEqual(t, BPRCost(3.3, 0.15, 4, v, 7), 3.3)
	}
}

func TestUpdateCostsAndTotalTravelTime(t *testing.T) {
	net := domain.NewNetwork()
	_, err := net.AddLink(domain.LinkSpec{From: 1, To: 2, Capacity: 10, FreeFlowTime: 1, Alpha: 1, Beta: 1})
	require.NoError(t, err)
	_, err = net.AddLink(domain.LinkSpec{From: 2, To: 3, Capacity: 10, FreeFlowTime: 2, Alpha: 0.15, Beta: 4})
	require.NoError(t, err)

	flows := domain.FlowVector{10, 0}
	require.NoError(t, UpdateCosts(net, flows))

	assert.Equal(t, 2.0, net.Cost(0))
	assert.Equal(t, 2.0, net.Cost(1))
	assert.Equal(t, 20.0, TotalTravelTime(net, flows))
}
