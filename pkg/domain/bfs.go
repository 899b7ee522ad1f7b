package domain

// Reachable возвращает множество узлов, достижимых из source по исходящим
// дугам. Сам source входит в множество, если он есть в сети.
func Reachable(net *Network, source int64) map[int64]bool {
	start, ok := net.NodeIndex(source)
	if !ok {
		return map[int64]bool{}
	}

	visited := make([]bool, net.NodeCount())
	visited[start] = true
	queue := []int{start}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]

		for _, id := range net.OutgoingAt(u) {
			v := net.HeadIndex(id)
			if visited[v] {
				continue
			}
			visited[v] = true
			queue = append(queue, v)
		}
	}

	out := make(map[int64]bool)
	for idx, seen := range visited {
		if seen {
			out[net.NodeAt(idx)] = true
		}
	}
	return out
}

// UnreachablePairs возвращает распределяемые пары, для которых ни один
// центроид назначения не достижим ни из одного центроида отправления.
// Зоны без центроидов пропускаются.
func UnreachablePairs(net *Network, zones *ZoneCentroidMap, demand *DemandMatrix) []ODPair {
	reach := make(map[int64]map[int64]bool)
	var out []ODPair

	for _, p := range demand.Pairs() {
		origins, ok := zones.Centroids(p.Origin)
		if !ok {
			continue
		}
		dests, ok := zones.Centroids(p.Destination)
		if !ok {
			continue
		}

		found := false
		for _, o := range origins {
			r, cached := reach[o]
			if !cached {
				r = Reachable(net, o)
				reach[o] = r
			}
			for _, d := range dests {
				if r[d] {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			out = append(out, p)
		}
	}
	return out
}
