package domain

import (
	"fmt"
	"math"

	"trafficassign/pkg/apperror"
)

// LinkID плотный идентификатор дуги, выдаётся по порядку добавления (0, 1, 2, ...)
type LinkID int

// NoLink отсутствие дуги (например, предшественник источника)
const NoLink LinkID = -1

// LinkKey пара концов дуги
type LinkKey struct {
	From int64
	To   int64
}

// String возвращает строковое представление ключа дуги
func (k LinkKey) String() string {
	return fmt.Sprintf("%d->%d", k.From, k.To)
}

// LinkSpec параметры новой дуги
type LinkSpec struct {
	From         int64
	To           int64
	Capacity     float64
	Length       float64
	FreeFlowTime float64
	Alpha        float64 // BPR b
	Beta         float64 // BPR power
	Type         int
}

// Link неизменяемая топология и параметры дуги
type Link struct {
	ID           LinkID
	From         int64
	To           int64
	Capacity     float64
	Length       float64
	FreeFlowTime float64
	Alpha        float64
	Beta         float64
	Type         int
}

// Key возвращает пару концов дуги
func (l Link) Key() LinkKey {
	return LinkKey{From: l.From, To: l.To}
}

// Network ориентированная дорожная сеть.
//
// Топология неизменна после построения. Поток и стоимость дуг - единственное
// изменяемое состояние, его меняет только решатель между итерациями, поэтому
// блокировок нет: одновременное чтение безопасно, запись и чтение одновременно
// не выполняются.
type Network struct {
	links []Link
	flow  []float64
	cost  []float64
	tails []int // индекс узла-начала для каждой дуги
	heads []int // индекс узла-конца для каждой дуги

	nodes     []int64       // в порядке появления
	nodeIndex map[int64]int // id -> индекс в nodes
	outgoing  [][]LinkID    // по индексу узла, в порядке добавления
	incoming  [][]LinkID
	byKey     map[LinkKey]LinkID

	allowParallel bool
}

// NetworkOption настройка сети
type NetworkOption func(*Network)

// WithParallelLinks разрешает несколько дуг между одной парой узлов.
// LinkBetween в этом режиме возвращает самую раннюю.
func WithParallelLinks() NetworkOption {
	return func(n *Network) {
		n.allowParallel = true
	}
}

// NewNetwork создаёт пустую сеть
func NewNetwork(opts ...NetworkOption) *Network {
	n := &Network{
		nodeIndex: make(map[int64]int),
		byKey:     make(map[LinkKey]LinkID),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// AddNode добавляет узел, если его ещё нет, и возвращает его индекс
func (n *Network) AddNode(id int64) int {
	if idx, ok := n.nodeIndex[id]; ok {
		return idx
	}
	idx := len(n.nodes)
	n.nodes = append(n.nodes, id)
	n.nodeIndex[id] = idx
	n.outgoing = append(n.outgoing, nil)
	n.incoming = append(n.incoming, nil)
	return idx
}

// AddLink добавляет дугу. Поток 0, стоимость равна времени свободного движения.
func (n *Network) AddLink(spec LinkSpec) (LinkID, error) {
	if math.IsNaN(spec.Capacity) || math.IsInf(spec.Capacity, 0) {
		return NoLink, apperror.Newf(apperror.CodeInvalidLink,
			"link %d->%d: capacity must be a finite number, got %g", spec.From, spec.To, spec.Capacity).
			WithField("capacity")
	}
	if spec.Capacity <= 0 {
		return NoLink, apperror.NonPositiveCapacity(spec.From, spec.To, spec.Capacity)
	}
	if err := validateLinkParam("free_flow_time", spec.FreeFlowTime, spec); err != nil {
		return NoLink, err
	}
	if err := validateLinkParam("alpha", spec.Alpha, spec); err != nil {
		return NoLink, err
	}
	if err := validateLinkParam("beta", spec.Beta, spec); err != nil {
		return NoLink, err
	}

	key := LinkKey{From: spec.From, To: spec.To}
	_, exists := n.byKey[key]
	if exists && !n.allowParallel {
		return NoLink, apperror.Newf(apperror.CodeDuplicateLink, "duplicate link %s", key).
			WithDetails("from", spec.From).
			WithDetails("to", spec.To)
	}

	id := LinkID(len(n.links))
	tail := n.AddNode(spec.From)
	head := n.AddNode(spec.To)

	n.links = append(n.links, Link{
		ID:           id,
		From:         spec.From,
		To:           spec.To,
		Capacity:     spec.Capacity,
		Length:       spec.Length,
		FreeFlowTime: spec.FreeFlowTime,
		Alpha:        spec.Alpha,
		Beta:         spec.Beta,
		Type:         spec.Type,
	})
	n.flow = append(n.flow, 0)
	n.cost = append(n.cost, spec.FreeFlowTime)
	n.tails = append(n.tails, tail)
	n.heads = append(n.heads, head)
	n.outgoing[tail] = append(n.outgoing[tail], id)
	n.incoming[head] = append(n.incoming[head], id)
	if !exists {
		n.byKey[key] = id
	}

	return id, nil
}

func validateLinkParam(field string, v float64, spec LinkSpec) error {
	if v >= 0 && !math.IsInf(v, 0) {
		return nil
	}
	return apperror.Newf(apperror.CodeInvalidLink,
		"link %d->%d: %s must be a non-negative finite number, got %g", spec.From, spec.To, field, v).
		WithField(field)
}

// LinkCount количество дуг
func (n *Network) LinkCount() int {
	return len(n.links)
}

// NodeCount количество узлов
func (n *Network) NodeCount() int {
	return len(n.nodes)
}

// Link возвращает дугу по идентификатору
func (n *Network) Link(id LinkID) (Link, bool) {
	if !n.validID(id) {
		return Link{}, false
	}
	return n.links[id], true
}

// Links возвращает копию всех дуг в порядке идентификаторов
func (n *Network) Links() []Link {
	out := make([]Link, len(n.links))
	copy(out, n.links)
	return out
}

// LinkBetween ищет дугу по паре концов
func (n *Network) LinkBetween(from, to int64) (LinkID, bool) {
	id, ok := n.byKey[LinkKey{From: from, To: to}]
	return id, ok
}

// Nodes возвращает узлы в порядке появления
func (n *Network) Nodes() []int64 {
	out := make([]int64, len(n.nodes))
	copy(out, n.nodes)
	return out
}

// HasNode проверяет наличие узла
func (n *Network) HasNode(id int64) bool {
	_, ok := n.nodeIndex[id]
	return ok
}

// NodeIndex возвращает плотный индекс узла
func (n *Network) NodeIndex(id int64) (int, bool) {
	idx, ok := n.nodeIndex[id]
	return idx, ok
}

// NodeAt возвращает id узла по индексу
func (n *Network) NodeAt(idx int) int64 {
	return n.nodes[idx]
}

// Outgoing возвращает исходящие дуги узла в порядке добавления.
// Срез принадлежит сети и не должен изменяться.
func (n *Network) Outgoing(node int64) []LinkID {
	idx, ok := n.nodeIndex[node]
	if !ok {
		return nil
	}
	return n.outgoing[idx]
}

// Incoming возвращает входящие дуги узла в порядке добавления
func (n *Network) Incoming(node int64) []LinkID {
	idx, ok := n.nodeIndex[node]
	if !ok {
		return nil
	}
	return n.incoming[idx]
}

// OutgoingAt исходящие дуги по индексу узла
func (n *Network) OutgoingAt(idx int) []LinkID {
	return n.outgoing[idx]
}

// TailIndex индекс узла-начала дуги
func (n *Network) TailIndex(id LinkID) int {
	return n.tails[id]
}

// HeadIndex индекс узла-конца дуги
func (n *Network) HeadIndex(id LinkID) int {
	return n.heads[id]
}

// Cost текущая стоимость (время проезда) дуги
func (n *Network) Cost(id LinkID) float64 {
	return n.cost[id]
}

// Flow текущий поток на дуге
func (n *Network) Flow(id LinkID) float64 {
	return n.flow[id]
}

// Costs копия вектора стоимостей
func (n *Network) Costs() []float64 {
	out := make([]float64, len(n.cost))
	copy(out, n.cost)
	return out
}

// Flows копия вектора потоков
func (n *Network) Flows() FlowVector {
	out := make(FlowVector, len(n.flow))
	copy(out, n.flow)
	return out
}

// UpdateCost устанавливает стоимость дуги. Стоимость не может быть ниже
// времени свободного движения.
func (n *Network) UpdateCost(id LinkID, value float64) error {
	if !n.validID(id) {
		return unknownLink(id)
	}
	if !(value >= n.links[id].FreeFlowTime) {
		l := n.links[id]
		return apperror.Newf(apperror.CodeCostBelowFreeFlow,
			"link %s: cost %g is below free-flow time %g", l.Key(), value, l.FreeFlowTime).
			WithDetails("link_id", int(id))
	}
	n.cost[id] = value
	return nil
}

// SetFlow устанавливает поток на дуге
func (n *Network) SetFlow(id LinkID, value float64) error {
	if !n.validID(id) {
		return unknownLink(id)
	}
	if !(value >= 0) {
		return apperror.Newf(apperror.CodeNegativeFlow,
			"link %s: flow %g is negative", n.links[id].Key(), value).
			WithDetails("link_id", int(id))
	}
	n.flow[id] = value
	return nil
}

// ResetState обнуляет потоки и возвращает стоимости к времени свободного движения
func (n *Network) ResetState() {
	for i := range n.links {
		n.flow[i] = 0
		n.cost[i] = n.links[i].FreeFlowTime
	}
}

// AllowsParallelLinks режим параллельных дуг
func (n *Network) AllowsParallelLinks() bool {
	return n.allowParallel
}

func (n *Network) validID(id LinkID) bool {
	return id >= 0 && int(id) < len(n.links)
}

func unknownLink(id LinkID) error {
	return apperror.Newf(apperror.CodeUnknownLink, "unknown link id %d", id)
}
