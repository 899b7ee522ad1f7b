package domain

import "slices"

// FlowVector поток по каждой дуге сети, индекс - LinkID
type FlowVector []float64

// NewFlowVector нулевой вектор для сети
func NewFlowVector(net *Network) FlowVector {
	return make(FlowVector, net.LinkCount())
}

// Clone копия вектора
func (f FlowVector) Clone() FlowVector {
	out := make(FlowVector, len(f))
	copy(out, f)
	return out
}

// AddFrom прибавляет other поэлементно
func (f FlowVector) AddFrom(other FlowVector) {
	for i, v := range other {
		f[i] += v
	}
}

// Reset обнуляет вектор
func (f FlowVector) Reset() {
	clear(f)
}

// Total сумма потоков
func (f FlowVector) Total() float64 {
	var total float64
	for _, v := range f {
		total += v
	}
	return total
}

// TravelTimeTable кратчайшее время между зонами для пар с положительным спросом
type TravelTimeTable map[ODPair]float64

// Pairs ключи в порядке (origin, destination)
func (t TravelTimeTable) Pairs() []ODPair {
	out := make([]ODPair, 0, len(t))
	for p := range t {
		out = append(out, p)
	}
	slices.SortFunc(out, compareODPairs)
	return out
}

// Clone копия таблицы
func (t TravelTimeTable) Clone() TravelTimeTable {
	out := make(TravelTimeTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
