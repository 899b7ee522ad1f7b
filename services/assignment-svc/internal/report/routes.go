package report

import (
	"cmp"
	"math"
	"slices"

	"trafficassign/pkg/domain"
	"trafficassign/services/assignment-svc/internal/algorithms"
)

// RouteRow кратчайший маршрут пары при итоговых стоимостях
type RouteRow struct {
	Origin      int64
	Destination int64
	Demand      float64
	Cost        float64
	Nodes       []int64
	Links       []domain.LinkID
}

// buildRoutes восстанавливает маршруты для top пар с наибольшим спросом.
// Пары без пути пропускаются. Равный спрос упорядочен по (origin, destination).
func buildRoutes(net *domain.Network, zones *domain.ZoneCentroidMap, demand *domain.DemandMatrix, top int) []RouteRow {
	if top <= 0 || net == nil || zones == nil || demand == nil {
		return nil
	}

	type candidate struct {
		pair   domain.ODPair
		demand float64
	}
	var candidates []candidate
	for _, p := range demand.Pairs() {
		v, _ := demand.Get(p.Origin, p.Destination)
		if p.Origin == p.Destination || domain.IsZero(v) {
			continue
		}
		candidates = append(candidates, candidate{pair: p, demand: v})
	}
	// сортировка стабильная, Pairs уже упорядочены
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(b.demand, a.demand)
	})

	trees := make(map[int64]*algorithms.ShortestPathTree)
	tree := func(centroid int64) *algorithms.ShortestPathTree {
		if t, ok := trees[centroid]; ok {
			return t
		}
		// центроид вне сети даёт nil: пара пропускается
		t, err := algorithms.Dijkstra(net, centroid)
		if err != nil {
			t = nil
		}
		trees[centroid] = t
		return t
	}

	var rows []RouteRow
	for _, c := range candidates {
		if len(rows) == top {
			break
		}
		origins, ok := zones.Centroids(c.pair.Origin)
		if !ok {
			continue
		}
		dests, ok := zones.Centroids(c.pair.Destination)
		if !ok {
			continue
		}

		best := math.Inf(1)
		var bestTree *algorithms.ShortestPathTree
		var bestNode int64
		for _, oc := range origins {
			t := tree(oc)
			if t == nil {
				continue
			}
			for _, dc := range dests {
				if d := t.Distance(dc); d < best {
					best = d
					bestTree = t
					bestNode = dc
				}
			}
		}
		if bestTree == nil {
			continue
		}

		path := domain.BuildPath(net, bestTree.PathTo(bestNode))
		rows = append(rows, RouteRow{
			Origin:      c.pair.Origin,
			Destination: c.pair.Destination,
			Demand:      c.demand,
			Cost:        path.Cost,
			Nodes:       path.Nodes,
			Links:       path.Links,
		})
	}
	return rows
}
