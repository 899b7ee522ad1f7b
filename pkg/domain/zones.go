package domain

import (
	"slices"

	"trafficassign/pkg/apperror"
)

// ZoneCentroidMap соответствие зоны и её центроидов (узлов сети)
type ZoneCentroidMap struct {
	centroids map[int64][]int64
}

// NewZoneCentroidMap создаёт пустое соответствие
func NewZoneCentroidMap() *ZoneCentroidMap {
	return &ZoneCentroidMap{centroids: make(map[int64][]int64)}
}

// IdentityCentroids одна зона - один центроид с тем же номером
func IdentityCentroids(zones []int64) *ZoneCentroidMap {
	m := NewZoneCentroidMap()
	for _, z := range zones {
		m.centroids[z] = []int64{z}
	}
	return m
}

// Assign задаёт центроиды зоны. Повторы внутри списка отбрасываются,
// порядок первого появления сохраняется.
func (m *ZoneCentroidMap) Assign(zone int64, nodes ...int64) error {
	if len(nodes) == 0 {
		return apperror.Newf(apperror.CodeUnknownZone, "zone %d must have at least one centroid", zone).
			WithDetails("zone", zone)
	}
	list := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		if !slices.Contains(list, n) {
			list = append(list, n)
		}
	}
	m.centroids[zone] = list
	return nil
}

// Centroids центроиды зоны в заданном порядке
func (m *ZoneCentroidMap) Centroids(zone int64) ([]int64, bool) {
	c, ok := m.centroids[zone]
	return c, ok
}

// Zones зоны в порядке возрастания
func (m *ZoneCentroidMap) Zones() []int64 {
	out := make([]int64, 0, len(m.centroids))
	for z := range m.centroids {
		out = append(out, z)
	}
	slices.Sort(out)
	return out
}

// Len количество зон
func (m *ZoneCentroidMap) Len() int {
	return len(m.centroids)
}

// Validate проверяет, что все центроиды присутствуют в сети
func (m *ZoneCentroidMap) Validate(net *Network) error {
	ve := apperror.NewValidationErrors()
	for _, z := range m.Zones() {
		for _, c := range m.centroids[z] {
			if !net.HasNode(c) {
				ve.Add(apperror.Newf(apperror.CodeUnknownNode,
					"centroid %d of zone %d is not a network node", c, z).
					WithDetails("zone", z).
					WithDetails("node", c))
			}
		}
	}
	return ve.Err(apperror.CodeUnknownNode, "zone centroids reference unknown nodes")
}
