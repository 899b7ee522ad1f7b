package assignment

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"trafficassign/pkg/domain"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func bpr(from, to int64, capacity, fft float64) domain.LinkSpec {
	return domain.LinkSpec{From: from, To: to, Capacity: capacity, FreeFlowTime: fft, Alpha: 0.15, Beta: 4}
}

func newNetwork(t *testing.T, parallel bool, specs ...domain.LinkSpec) *domain.Network {
	t.Helper()
	var opts []domain.NetworkOption
	if parallel {
		opts = append(opts, domain.WithParallelLinks())
	}
	net := domain.NewNetwork(opts...)
	for _, s := range specs {
		_, err := net.AddLink(s)
		require.NoError(t, err)
	}
	return net
}

func newDemand(t *testing.T, entries map[domain.ODPair]float64) *domain.DemandMatrix {
	t.Helper()
	m := domain.NewDemandMatrix()
	for p, v := range entries {
		require.NoError(t, m.Set(p.Origin, p.Destination, v))
	}
	return m
}

// gridNetwork двунаправленная решётка size x size, узлы нумеруются с 1 по строкам
func gridNetwork(t *testing.T, size int) *domain.Network {
	t.Helper()
	node := func(r, c int) int64 { return int64(r*size + c + 1) }
	var specs []domain.LinkSpec
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			fft := float64(1 + (r+c)%3)
			if c+1 < size {
				specs = append(specs, bpr(node(r, c), node(r, c+1), 10, fft), bpr(node(r, c+1), node(r, c), 10, fft))
			}
			if r+1 < size {
				specs = append(specs, bpr(node(r, c), node(r+1, c), 15, fft), bpr(node(r+1, c), node(r, c), 15, fft))
			}
		}
	}
	return newNetwork(t, false, specs...)
}

// gridDemand спрос между всеми углами и центром решётки 3x3
func gridDemand(t *testing.T) (*domain.DemandMatrix, *domain.ZoneCentroidMap) {
	t.Helper()
	zones := []int64{1, 3, 5, 7, 9}
	entries := make(map[domain.ODPair]float64)
	for i, o := range zones {
		for j, d := range zones {
			if o != d {
				entries[domain.ODPair{Origin: o, Destination: d}] = float64(5 + 3*i + j)
			}
		}
	}
	return newDemand(t, entries), domain.IdentityCentroids(zones)
}

func twoParallelLinks(t *testing.T) (*domain.Network, *domain.ZoneCentroidMap, *domain.DemandMatrix) {
	t.Helper()
	net := newNetwork(t, true, bpr(1, 2, 10, 1), bpr(1, 2, 5, 2))
	demand := newDemand(t, map[domain.ODPair]float64{{Origin: 1, Destination: 2}: 20})
	return net, domain.IdentityCentroids([]int64{1, 2}), demand
}
