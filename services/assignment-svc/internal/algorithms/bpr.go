package algorithms

import (
	"math"

	"trafficassign/pkg/domain"
)

// =============================================================================
// BPR Volume-Delay Function
// =============================================================================
//
// The Bureau of Public Roads function gives the travel time on a link as a
// function of its flow:
//
//	t(v) = t0 * (1 + alpha * (v / c) ^ beta)
//
// where t0 is the free-flow time and c the practical capacity. With alpha >= 0
// and v >= 0 the result is never below t0.
//
// References:
//   - Bureau of Public Roads (1964). "Traffic Assignment Manual"
// =============================================================================

// BPRCost evaluates the BPR function for one link.
func BPRCost(freeFlowTime, alpha, beta, flow, capacity float64) float64 {
	if flow <= 0 || alpha == 0 {
		return freeFlowTime
	}
	cost := freeFlowTime * (1 + alpha*math.Pow(flow/capacity, beta))
	// округление не должно опускать стоимость ниже свободного времени
	if cost < freeFlowTime {
		return freeFlowTime
	}
	return cost
}

// LinkCost evaluates BPRCost with the parameters of link l.
func LinkCost(l domain.Link, flow float64) float64 {
	return BPRCost(l.FreeFlowTime, l.Alpha, l.Beta, flow, l.Capacity)
}

// UpdateCosts writes BPR costs for flows into net. flows is indexed by LinkID.
func UpdateCosts(net *domain.Network, flows domain.FlowVector) error {
	for i := 0; i < net.LinkCount(); i++ {
		id := domain.LinkID(i)
		l, _ := net.Link(id)
		if err := net.UpdateCost(id, LinkCost(l, flows[i])); err != nil {
			return err
		}
	}
	return nil
}

// TotalTravelTime returns sum(flow * cost) over all links.
func TotalTravelTime(net *domain.Network, flows domain.FlowVector) float64 {
	var total float64
	for i, f := range flows {
		if f == 0 {
			continue
		}
		total += f * net.Cost(domain.LinkID(i))
	}
	return total
}
