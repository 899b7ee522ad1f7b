package domain

import (
	"slices"
)

// NetworkStatistics статистика сети
type NetworkStatistics struct {
	NodeCount         int
	LinkCount         int
	TotalCapacity     float64
	TotalLength       float64
	AverageFreeFlow   float64
	AverageOutDegree  float64
	MaxOutDegree      int
	MinOutDegree      int
	ParallelLinkPairs int
}

// FlowStatistics статистика загрузки сети
type FlowStatistics struct {
	TotalFlow       float64
	TSTT            float64 // сумма flow*cost
	VehicleDistance float64 // сумма flow*length
	MeanVC          float64
	MaxVC           float64
	CongestedLinks  int // v/c >= 1
	HighVCLinks     int // v/c >= 0.9
	ZeroFlowLinks   int
	Bottlenecks     []LinkID // наибольшие v/c, по убыванию
}

// CalculateNetworkStatistics вычисляет статистику сети
func CalculateNetworkStatistics(net *Network) *NetworkStatistics {
	stats := &NetworkStatistics{
		NodeCount: net.NodeCount(),
		LinkCount: net.LinkCount(),
	}
	if stats.NodeCount == 0 {
		return stats
	}

	var totalFFT float64
	pairs := make(map[LinkKey]int)
	for i := 0; i < net.LinkCount(); i++ {
		l, _ := net.Link(LinkID(i))
		stats.TotalCapacity += l.Capacity
		stats.TotalLength += l.Length
		totalFFT += l.FreeFlowTime
		pairs[l.Key()]++
	}
	for _, c := range pairs {
		if c > 1 {
			stats.ParallelLinkPairs++
		}
	}

	stats.MinOutDegree = int(^uint(0) >> 1)
	for idx := 0; idx < stats.NodeCount; idx++ {
		d := len(net.OutgoingAt(idx))
		if d > stats.MaxOutDegree {
			stats.MaxOutDegree = d
		}
		if d < stats.MinOutDegree {
			stats.MinOutDegree = d
		}
	}

	stats.AverageOutDegree = float64(stats.LinkCount) / float64(stats.NodeCount)
	if stats.LinkCount > 0 {
		stats.AverageFreeFlow = totalFFT / float64(stats.LinkCount)
	}

	return stats
}

// VolumeCapacity отношение потока к пропускной способности дуги
func VolumeCapacity(net *Network, id LinkID) float64 {
	l, ok := net.Link(id)
	if !ok {
		return 0
	}
	return net.Flow(id) / l.Capacity
}

// CalculateFlowStatistics вычисляет статистику по текущим потокам и стоимостям
func CalculateFlowStatistics(net *Network, topN int) *FlowStatistics {
	stats := &FlowStatistics{}
	n := net.LinkCount()
	if n == 0 {
		return stats
	}

	ids := make([]LinkID, 0, n)
	var sumVC float64
	for i := 0; i < n; i++ {
		id := LinkID(i)
		l, _ := net.Link(id)
		flow := net.Flow(id)

		stats.TotalFlow += flow
		stats.TSTT += flow * net.Cost(id)
		stats.VehicleDistance += flow * l.Length

		vc := flow / l.Capacity
		sumVC += vc
		if vc > stats.MaxVC {
			stats.MaxVC = vc
		}
		if vc >= CongestedThreshold {
			stats.CongestedLinks++
		}
		if vc >= HighUtilizationThreshold {
			stats.HighVCLinks++
		}
		if IsZero(flow) {
			stats.ZeroFlowLinks++
		}
		ids = append(ids, id)
	}
	stats.MeanVC = sumVC / float64(n)

	if topN <= 0 {
		topN = DefaultBottleneckTopCount
	}
	// при равенстве v/c раньше идёт меньший LinkID
	slices.SortStableFunc(ids, func(a, b LinkID) int {
		va, vb := VolumeCapacity(net, a), VolumeCapacity(net, b)
		switch {
		case va > vb:
			return -1
		case va < vb:
			return 1
		default:
			return 0
		}
	})
	for _, id := range ids {
		if len(stats.Bottlenecks) >= topN || IsZero(net.Flow(id)) {
			break
		}
		stats.Bottlenecks = append(stats.Bottlenecks, id)
	}

	return stats
}
