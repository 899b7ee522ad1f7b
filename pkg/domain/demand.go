package domain

import (
	"fmt"
	"math"
	"slices"

	"trafficassign/pkg/apperror"
)

// ODPair пара зон отправления и назначения
type ODPair struct {
	Origin      int64
	Destination int64
}

// String возвращает строковое представление пары
func (p ODPair) String() string {
	return fmt.Sprintf("%d->%d", p.Origin, p.Destination)
}

// compareODPairs порядок (origin, destination)
func compareODPairs(a, b ODPair) int {
	if a.Origin != b.Origin {
		if a.Origin < b.Origin {
			return -1
		}
		return 1
	}
	if a.Destination < b.Destination {
		return -1
	}
	if a.Destination > b.Destination {
		return 1
	}
	return 0
}

// DemandMatrix разреженная матрица корреспонденций.
//
// Хранит явно заданные значения, включая нулевые. Для распределения
// используются только пары с положительным спросом и origin != destination.
type DemandMatrix struct {
	entries map[ODPair]float64
	maxZone int64
}

// NewDemandMatrix создаёт пустую матрицу
func NewDemandMatrix() *DemandMatrix {
	return &DemandMatrix{
		entries: make(map[ODPair]float64),
	}
}

// Set задаёт спрос для пары. Отрицательные и нечисловые значения отклоняются.
func (m *DemandMatrix) Set(origin, destination int64, value float64) error {
	if !(value >= 0) || math.IsInf(value, 0) {
		return apperror.Newf(apperror.CodeInvalidDemand,
			"demand %d->%d must be a non-negative finite number, got %g", origin, destination, value).
			WithDetails("origin", origin).
			WithDetails("destination", destination)
	}
	m.entries[ODPair{Origin: origin, Destination: destination}] = value
	m.ObserveZone(origin)
	m.ObserveZone(destination)
	return nil
}

// ObserveZone учитывает зону в размере матрицы без записи значения
func (m *DemandMatrix) ObserveZone(zone int64) {
	if zone > m.maxZone {
		m.maxZone = zone
	}
}

// Get возвращает явно заданное значение
func (m *DemandMatrix) Get(origin, destination int64) (float64, bool) {
	v, ok := m.entries[ODPair{Origin: origin, Destination: destination}]
	return v, ok
}

// Demand возвращает спрос, подлежащий распределению: пара задана,
// значение положительно и зоны различны.
func (m *DemandMatrix) Demand(origin, destination int64) (float64, bool) {
	if origin == destination {
		return 0, false
	}
	v, ok := m.entries[ODPair{Origin: origin, Destination: destination}]
	if !ok || !(v > 0) {
		return 0, false
	}
	return v, true
}

// Len количество явно заданных значений
func (m *DemandMatrix) Len() int {
	return len(m.entries)
}

// Size размер квадратной матрицы: наибольший встреченный номер зоны
func (m *DemandMatrix) Size() int64 {
	return m.maxZone
}

// Pairs возвращает распределяемые пары в порядке (origin, destination)
func (m *DemandMatrix) Pairs() []ODPair {
	pairs := make([]ODPair, 0, len(m.entries))
	for p, v := range m.entries {
		if p.Origin != p.Destination && v > 0 {
			pairs = append(pairs, p)
		}
	}
	slices.SortFunc(pairs, compareODPairs)
	return pairs
}

// Origins зоны, из которых есть хотя бы одна распределяемая корреспонденция
func (m *DemandMatrix) Origins() []int64 {
	seen := make(map[int64]struct{})
	for _, p := range m.Pairs() {
		seen[p.Origin] = struct{}{}
	}
	return sortedKeys(seen)
}

// Destinations зоны назначения для origin в порядке возрастания
func (m *DemandMatrix) Destinations(origin int64) []int64 {
	var out []int64
	for p, v := range m.entries {
		if p.Origin == origin && p.Destination != origin && v > 0 {
			out = append(out, p.Destination)
		}
	}
	slices.Sort(out)
	return out
}

// Zones все зоны, участвующие в распределяемых корреспонденциях
func (m *DemandMatrix) Zones() []int64 {
	seen := make(map[int64]struct{})
	for _, p := range m.Pairs() {
		seen[p.Origin] = struct{}{}
		seen[p.Destination] = struct{}{}
	}
	return sortedKeys(seen)
}

// Total суммарный распределяемый спрос (суммирование в порядке пар)
func (m *DemandMatrix) Total() float64 {
	var total float64
	for _, p := range m.Pairs() {
		total += m.entries[p]
	}
	return total
}

func sortedKeys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
