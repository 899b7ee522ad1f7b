package domain

// Path маршрут в сети
type Path struct {
	Links []LinkID
	Nodes []int64
	Cost  float64
}

// BuildPath собирает маршрут по последовательности дуг.
// Стоимость считается по текущим стоимостям сети.
func BuildPath(net *Network, links []LinkID) *Path {
	p := &Path{Links: links}
	if len(links) == 0 {
		return p
	}

	p.Nodes = make([]int64, 0, len(links)+1)
	first, _ := net.Link(links[0])
	p.Nodes = append(p.Nodes, first.From)
	for _, id := range links {
		l, ok := net.Link(id)
		if !ok {
			return &Path{Links: links}
		}
		p.Nodes = append(p.Nodes, l.To)
		p.Cost += net.Cost(id)
	}
	return p
}
