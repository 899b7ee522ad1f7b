package algorithms

import (
	"container/heap"
	"context"
	"math"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/domain"
)

// =============================================================================
// Dijkstra's Algorithm
// =============================================================================
//
// Dijkstra's algorithm finds the shortest paths from a set of source nodes to
// all other nodes of a road network with non-negative link costs.
//
// Time Complexity: O((V + E) log V) with binary heap
// Space Complexity: O(V)
//
// Use Cases:
//   - All-or-nothing loading (one tree per origin zone)
//   - Zone-to-zone travel time skims
//
// Determinism:
//   - Links are relaxed in insertion order of the network
//   - A label is replaced only on strict improvement, so among equal-cost
//     alternatives the one discovered first is kept
//   - Heap ties on distance are broken by push order
//
// References:
//   - Dijkstra, E. W. (1959). "A note on two problems in connexion with graphs"
// =============================================================================

const checkInterval = 100

// ShortestPathTree is the result of one Dijkstra run.
//
// Distances and predecessors are stored by dense node index. A tree obtained
// from Workspace.Run is only valid until the next Run on the same workspace.
type ShortestPathTree struct {
	net  *domain.Network
	dist []float64
	pred []domain.LinkID
}

// Distance returns the shortest distance to node, or +Inf when it is not
// reachable or not part of the network.
func (t *ShortestPathTree) Distance(node int64) float64 {
	idx, ok := t.net.NodeIndex(node)
	if !ok {
		return math.Inf(1)
	}
	return t.dist[idx]
}

// Reachable reports whether node has a finite label.
func (t *ShortestPathTree) Reachable(node int64) bool {
	return !math.IsInf(t.Distance(node), 1)
}

// Pred returns the link entering node on its shortest path.
// Sources and unreachable nodes have no predecessor.
func (t *ShortestPathTree) Pred(node int64) domain.LinkID {
	idx, ok := t.net.NodeIndex(node)
	if !ok {
		return domain.NoLink
	}
	return t.pred[idx]
}

// Walk calls fn for every link of the path to target, from target back to
// the source. Nothing is called for an unreachable target.
func (t *ShortestPathTree) Walk(target int64, fn func(domain.LinkID)) {
	idx, ok := t.net.NodeIndex(target)
	if !ok || math.IsInf(t.dist[idx], 1) {
		return
	}
	// длина пути не больше числа узлов, это защищает от цикла в pred
	for steps := 0; steps < len(t.pred); steps++ {
		id := t.pred[idx]
		if id == domain.NoLink {
			return
		}
		fn(id)
		idx = t.net.TailIndex(id)
	}
}

// PathTo returns the links of the shortest path to target in travel order.
func (t *ShortestPathTree) PathTo(target int64) []domain.LinkID {
	var links []domain.LinkID
	t.Walk(target, func(id domain.LinkID) {
		links = append(links, id)
	})
	for i, j := 0, len(links)-1; i < j; i, j = i+1, j-1 {
		links[i], links[j] = links[j], links[i]
	}
	return links
}

// priorityQueueItem represents an element in the priority queue.
type priorityQueueItem struct {
	node     int // dense node index
	distance float64
	seq      uint64 // push order, for deterministic tie-breaking
}

// priorityQueue implements heap.Interface for Dijkstra's algorithm.
// It is a min-heap on distance, ties broken by push order.
type priorityQueue []priorityQueueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].distance != pq[j].distance {
		return pq[i].distance < pq[j].distance
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(priorityQueueItem))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[0 : n-1]
	return item
}

// Workspace holds the buffers of one Dijkstra run so that a worker can build
// many trees without reallocating. A Workspace is not safe for concurrent use.
type Workspace struct {
	dist    []float64
	pred    []domain.LinkID
	settled []bool
	pq      priorityQueue
	tree    ShortestPathTree
}

// NewWorkspace creates an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{}
}

func (w *Workspace) reset(n int) {
	if cap(w.dist) < n {
		w.dist = make([]float64, n)
		w.pred = make([]domain.LinkID, n)
		w.settled = make([]bool, n)
	}
	w.dist = w.dist[:n]
	w.pred = w.pred[:n]
	w.settled = w.settled[:n]
	inf := math.Inf(1)
	for i := range w.dist {
		w.dist[i] = inf
		w.pred[i] = domain.NoLink
		w.settled[i] = false
	}
	w.pq = w.pq[:0]
}

// Run builds the shortest path tree rooted at sources under the current link
// costs of net. Several sources behave as one super-source with zero cost to
// each of them.
func (w *Workspace) Run(ctx context.Context, net *domain.Network, sources ...int64) (*ShortestPathTree, error) {
	if net == nil {
		return nil, apperror.New(apperror.CodeNilInput, "network is nil")
	}
	if len(sources) == 0 {
		return nil, apperror.New(apperror.CodeInvalidArgument, "at least one source is required")
	}

	w.reset(net.NodeCount())

	var seq uint64
	for _, s := range sources {
		idx, ok := net.NodeIndex(s)
		if !ok {
			return nil, apperror.Newf(apperror.CodeUnknownNode, "source node %d is not in the network", s)
		}
		if w.dist[idx] == 0 {
			continue
		}
		w.dist[idx] = 0
		heap.Push(&w.pq, priorityQueueItem{node: idx, distance: 0, seq: seq})
		seq++
	}

	iterations := 0
	for w.pq.Len() > 0 {
		if iterations%checkInterval == 0 {
			select {
			case <-ctx.Done():
				return nil, apperror.Wrap(ctx.Err(), apperror.CodeCanceled, "shortest path search canceled")
			default:
			}
		}
		iterations++

		current := heap.Pop(&w.pq).(priorityQueueItem)
		u := current.node
		if w.settled[u] {
			continue
		}
		w.settled[u] = true

		for _, id := range net.OutgoingAt(u) {
			v := net.HeadIndex(id)
			if w.settled[v] {
				continue
			}
			newDist := current.distance + net.Cost(id)
			if newDist < w.dist[v] {
				w.dist[v] = newDist
				w.pred[v] = id
				heap.Push(&w.pq, priorityQueueItem{node: v, distance: newDist, seq: seq})
				seq++
			}
		}
	}

	w.tree = ShortestPathTree{net: net, dist: w.dist, pred: w.pred}
	return &w.tree, nil
}

// Dijkstra executes Dijkstra's algorithm without context cancellation support.
// The returned tree owns its buffers.
func Dijkstra(net *domain.Network, sources ...int64) (*ShortestPathTree, error) {
	return DijkstraWithContext(context.Background(), net, sources...)
}

// DijkstraWithContext executes Dijkstra's algorithm with context cancellation.
func DijkstraWithContext(ctx context.Context, net *domain.Network, sources ...int64) (*ShortestPathTree, error) {
	return NewWorkspace().Run(ctx, net, sources...)
}
