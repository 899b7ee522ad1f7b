package assignment

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/domain"
	"trafficassign/pkg/logger"
	"trafficassign/services/assignment-svc/internal/algorithms"
)

// =============================================================================
// All-or-Nothing Loading
// =============================================================================
//
// For the current link costs every origin zone gets one shortest path tree
// per centroid. The whole demand of each OD pair is put on the cheapest
// centroid-to-centroid path.
//
// Origins are independent of each other: each one accumulates into its own
// partial flow vector. Partials are merged in ascending origin order after
// every batch, so the floating point sums are identical for any number of
// workers.
// =============================================================================

// batchFactor origins per worker in one batch
const batchFactor = 4

// LoadOptions controls a single AON loading.
type LoadOptions struct {
	// ComputeSPTT accumulates demand * shortest travel time.
	ComputeSPTT bool

	// SkipUnreachable drops OD pairs without a path instead of failing.
	SkipUnreachable bool
}

// AONResult is the outcome of one all-or-nothing loading.
type AONResult struct {
	SPTT        float64
	Flows       domain.FlowVector
	TravelTimes domain.TravelTimeTable
	Dropped     []domain.ODPair
}

// AONLoader performs all-or-nothing loadings, optionally in parallel.
// It never writes to the network.
type AONLoader struct {
	workers int
	pool    *ants.Pool
	buffers *BufferPool
	log     *slog.Logger
}

// AONOption настройка загрузчика
type AONOption func(*AONLoader)

// WithLogger sets the logger used for dropped OD pairs.
func WithLogger(l *slog.Logger) AONOption {
	return func(a *AONLoader) {
		if l != nil {
			a.log = l
		}
	}
}

// NewAONLoader creates a loader. workers <= 0 means runtime.NumCPU().
// One worker runs every origin inline on the calling goroutine; more start a
// goroutine pool that must be released with Close.
func NewAONLoader(workers int, opts ...AONOption) (*AONLoader, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := &AONLoader{
		workers: max(workers, 1),
		buffers: NewBufferPool(),
		log:     logger.Log,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.workers > 1 {
		pool, err := ants.NewPool(l.workers)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to create worker pool")
		}
		l.pool = pool
	}
	return l, nil
}

// Workers returns the configured parallelism.
func (l *AONLoader) Workers() int {
	return l.workers
}

// Close releases the worker pool.
func (l *AONLoader) Close() {
	if l.pool != nil {
		l.pool.Release()
		l.pool = nil
	}
}

// Load plans and runs one loading of demand onto net under its current costs.
func (l *AONLoader) Load(ctx context.Context, net *domain.Network, zones *domain.ZoneCentroidMap, demand *domain.DemandMatrix, opts LoadOptions) (*AONResult, error) {
	plan, err := BuildPlan(net, zones, demand, nil)
	if err != nil {
		return nil, err
	}
	return l.LoadPlan(ctx, net, plan, opts)
}

// originResult частичный результат одной зоны отправления
type originResult struct {
	flows   *domain.FlowVector
	times   []float64
	reached []bool
	sptt    float64
	err     error
}

// LoadPlan runs one loading of a prepared plan.
func (l *AONLoader) LoadPlan(ctx context.Context, net *domain.Network, plan *Plan, opts LoadOptions) (*AONResult, error) {
	if net == nil || plan == nil {
		return nil, apperror.New(apperror.CodeNilInput, "network and plan are required")
	}

	res := &AONResult{
		Flows:       domain.NewFlowVector(net),
		TravelTimes: make(domain.TravelTimeTable, plan.pairs),
	}

	batchSize := l.batchSize()
	results := make([]originResult, min(batchSize, len(plan.origins)))
	for start := 0; start < len(plan.origins); start += batchSize {
		batch := plan.origins[start:min(start+batchSize, len(plan.origins))]
		partials := results[:len(batch)]

		if err := l.runBatch(ctx, net, batch, partials, opts); err != nil {
			return nil, err
		}
		if err := l.merge(res, batch, partials, opts); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// batchSize зон в одной партии. Без пула частичный вектор сливается сразу
// после каждой зоны, чтобы держать в памяти один вектор потоков.
func (l *AONLoader) batchSize() int {
	if l.pool == nil {
		return 1
	}
	return l.workers * batchFactor
}

func (l *AONLoader) runBatch(ctx context.Context, net *domain.Network, batch []originTask, out []originResult, opts LoadOptions) error {
	if l.pool == nil {
		for i := range batch {
			out[i] = l.loadOrigin(ctx, net, &batch[i], opts)
		}
		return nil
	}

	var wg sync.WaitGroup
	var submitErr error
	for i := range batch {
		wg.Add(1)
		err := l.pool.Submit(func() {
			defer wg.Done()
			out[i] = l.loadOrigin(ctx, net, &batch[i], opts)
		})
		if err != nil {
			wg.Done()
			out[i] = originResult{err: err}
			submitErr = apperror.Wrap(err, apperror.CodeInternal, "failed to submit origin task")
			break
		}
	}
	wg.Wait()

	if submitErr != nil {
		l.release(out)
		return submitErr
	}
	return nil
}

// merge складывает частичные результаты по возрастанию зон отправления.
// Ошибка берётся от первой по порядку зоны.
func (l *AONLoader) merge(res *AONResult, batch []originTask, partials []originResult, opts LoadOptions) error {
	defer l.release(partials)

	for i := range partials {
		if partials[i].err != nil {
			return partials[i].err
		}
	}

	for i := range batch {
		task := &batch[i]
		part := &partials[i]

		res.Flows.AddFrom(*part.flows)
		if opts.ComputeSPTT {
			res.SPTT += part.sptt
		}
		for j, d := range task.dests {
			pair := domain.ODPair{Origin: task.zone, Destination: d.zone}
			if !part.reached[j] {
				res.Dropped = append(res.Dropped, pair)
				l.log.Warn("dropping unreachable OD pair",
					slog.Int64("origin", pair.Origin),
					slog.Int64("destination", pair.Destination),
					slog.Float64("demand", d.demand),
				)
				continue
			}
			res.TravelTimes[pair] = part.times[j]
		}
	}
	return nil
}

func (l *AONLoader) release(partials []originResult) {
	for i := range partials {
		l.buffers.ReleaseFlows(partials[i].flows)
		partials[i] = originResult{}
	}
}

// loadOrigin строит деревья от всех центроидов зоны и раскладывает её спрос
func (l *AONLoader) loadOrigin(ctx context.Context, net *domain.Network, task *originTask, opts LoadOptions) originResult {
	out := originResult{
		times:   make([]float64, len(task.dests)),
		reached: make([]bool, len(task.dests)),
	}

	trees := make([]*algorithms.ShortestPathTree, len(task.centroids))
	for i, c := range task.centroids {
		ws := l.buffers.AcquireWorkspace()
		defer l.buffers.ReleaseWorkspace(ws)

		tree, err := ws.Run(ctx, net, c)
		if err != nil {
			out.err = err
			return out
		}
		trees[i] = tree
	}

	out.flows = l.buffers.AcquireFlows(net.LinkCount())
	flows := *out.flows

	for j, d := range task.dests {
		best := math.Inf(1)
		bestTree := -1
		var bestNode int64
		for ti, tree := range trees {
			for _, dc := range d.centroids {
				if dist := tree.Distance(dc); dist < best {
					best = dist
					bestTree = ti
					bestNode = dc
				}
			}
		}

		if bestTree < 0 {
			if !opts.SkipUnreachable {
				out.err = apperror.UnreachableDestination(task.zone, d.zone)
				return out
			}
			continue
		}

		out.reached[j] = true
		out.times[j] = best
		demand := d.demand
		trees[bestTree].Walk(bestNode, func(id domain.LinkID) {
			flows[id] += demand
		})
		if opts.ComputeSPTT {
			out.sptt += demand * best
		}
	}

	return out
}
