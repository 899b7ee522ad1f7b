package assignment

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/domain"
	"trafficassign/pkg/logger"
	"trafficassign/services/assignment-svc/internal/algorithms"
)

// =============================================================================
// Method of Successive Averages
// =============================================================================
//
// Iteration k:
//
//  1. AON loading under the current costs gives x_bar and SPTT
//  2. flow = (1 - 1/k) * flow + 1/k * x_bar
//  3. cost = BPR(flow), after every flow has been averaged
//  4. TSTT = sum(flow * cost)
//  5. gap = |TSTT - SPTT| / SPTT
//
// The run stops when gap <= tolerance (Converged) or k reaches the iteration
// limit (MaxIterReached). A wall-clock limit or a canceled context stops it at
// the top of an iteration with the last committed solution, reported as
// MaxIterReached.
//
// References:
//   - Sheffi, Y. (1985). "Urban Transportation Networks", ch. 5
// =============================================================================

// State solver lifecycle state.
type State int32

const (
	StateInitializing State = iota
	StateIterating
	StateConverged
	StateMaxIterReached
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateIterating:
		return "iterating"
	case StateConverged:
		return "converged"
	case StateMaxIterReached:
		return "max_iter_reached"
	default:
		return "unknown"
	}
}

// StopReason why the iteration loop ended.
type StopReason string

const (
	StopConverged     StopReason = "converged"
	StopMaxIterations StopReason = "max_iterations"
	StopDeadline      StopReason = "deadline"
	StopCanceled      StopReason = "canceled"
)

// IterationStat statistics of one committed iteration.
type IterationStat struct {
	Iteration   int
	Step        float64
	SPTT        float64
	TSTT        float64
	RelativeGap float64
	Elapsed     time.Duration
	AONDuration time.Duration

	// MinCostMargin is min(cost - FFT) over all links, MinFlow min(flow).
	MinCostMargin float64
	MinFlow       float64
}

// Result is the terminal output of a solve.
type Result struct {
	State       State
	StopReason  StopReason
	Iterations  int
	RelativeGap float64
	SPTT        float64
	TSTT        float64
	Flows       domain.FlowVector
	Costs       []float64
	TravelTimes domain.TravelTimeTable
	Dropped     []domain.ODPair
	History     []IterationStat
	Duration    time.Duration
}

// Converged reports whether the run met the tolerance.
func (r *Result) Converged() bool {
	return r.State == StateConverged
}

// RelativeGap returns |TSTT - SPTT| / SPTT, or 0 when SPTT is not positive.
func RelativeGap(tstt, sptt float64) float64 {
	if sptt <= 0 {
		return 0
	}
	return math.Abs(tstt-sptt) / sptt
}

// Solver runs MSA on one network and demand matrix.
//
// The solver is the only writer of the network's flow and cost state. Solve
// resets that state first, so a Solver can be run again.
type Solver struct {
	net    *domain.Network
	zones  *domain.ZoneCentroidMap
	demand *domain.DemandMatrix
	opts   Options
	loader *AONLoader
	log    *slog.Logger
	state  atomic.Int32
}

// NewSolver validates the inputs and options and creates a solver.
func NewSolver(net *domain.Network, zones *domain.ZoneCentroidMap, demand *domain.DemandMatrix, opts Options) (*Solver, error) {
	if net == nil {
		return nil, apperror.New(apperror.CodeNilInput, "network is nil")
	}
	if zones == nil {
		return nil, apperror.New(apperror.CodeNilInput, "zone centroid map is nil")
	}
	if demand == nil {
		return nil, apperror.New(apperror.CodeNilInput, "demand matrix is nil")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if net.LinkCount() == 0 {
		return nil, apperror.New(apperror.CodeEmptyNetwork, "network has no links")
	}

	log := opts.Logger
	if log == nil {
		log = logger.Log
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	loader, err := NewAONLoader(opts.Workers, WithLogger(log))
	if err != nil {
		return nil, err
	}

	return &Solver{
		net:    net,
		zones:  zones,
		demand: demand,
		opts:   opts,
		loader: loader,
		log:    log,
	}, nil
}

// State returns the current lifecycle state. Safe to call while Solve runs.
func (s *Solver) State() State {
	return State(s.state.Load())
}

func (s *Solver) setState(st State) {
	s.state.Store(int32(st))
}

// Close releases the worker pool.
func (s *Solver) Close() {
	s.loader.Close()
}

// prepare строит план до первой итерации: структурные ошибки не должны
// появляться посреди решения
func (s *Solver) prepare() (*Plan, error) {
	if _, err := BuildPlan(s.net, s.zones, s.demand, nil); err != nil {
		return nil, err
	}

	unreachable := domain.UnreachablePairs(s.net, s.zones, s.demand)
	if len(unreachable) > 0 {
		if !s.opts.skipUnreachable() {
			first := unreachable[0]
			return nil, apperror.UnreachableDestination(first.Origin, first.Destination).
				WithDetails("unreachable_pairs", len(unreachable))
		}
		var lost float64
		for _, p := range unreachable {
			v, _ := s.demand.Demand(p.Origin, p.Destination)
			lost += v
		}
		s.log.Warn("skipping unreachable OD pairs",
			slog.Int("pairs", len(unreachable)),
			slog.Float64("demand", lost),
			slog.String("first", unreachable[0].String()),
		)
	}

	return BuildPlan(s.net, s.zones, s.demand, unreachable)
}

// Solve runs MSA until convergence, the iteration limit, the wall-clock limit
// or cancellation of ctx.
func (s *Solver) Solve(ctx context.Context) (*Result, error) {
	start := s.opts.Clock()
	s.setState(StateInitializing)
	s.net.ResetState()

	plan, err := s.prepare()
	if err != nil {
		return nil, err
	}

	var deadline time.Time
	if s.opts.MaxDuration > 0 {
		deadline = start.Add(s.opts.MaxDuration)
	}

	s.log.Info("msa started",
		slog.Int("links", s.net.LinkCount()),
		slog.Int("origins", plan.Origins()),
		slog.Int("od_pairs", plan.Pairs()),
		slog.Float64("total_demand", plan.TotalDemand()),
		slog.Int("max_iterations", s.opts.MaxIterations),
		slog.Float64("tolerance", s.opts.Tolerance),
		slog.Int("workers", s.loader.Workers()),
	)

	s.setState(StateIterating)

	loadOpts := LoadOptions{ComputeSPTT: true, SkipUnreachable: s.opts.skipUnreachable()}
	flows := domain.NewFlowVector(s.net)
	every := s.opts.progressEvery()

	var (
		last     *AONResult
		lastStat IterationStat
		history  []IterationStat
		reported int
		reason   StopReason
	)

	for k := 1; ; k++ {
		if r, stop := s.interrupted(ctx, deadline); stop {
			if last == nil {
				s.setState(StateInitializing)
				return nil, stoppedEarly(ctx, r)
			}
			reason = r
			break
		}

		aonStart := s.opts.Clock()
		aon, err := s.loader.LoadPlan(ctx, s.net, plan, loadOpts)
		if err != nil {
			if apperror.Is(err, apperror.CodeCanceled) && last != nil {
				reason = StopCanceled
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					reason = StopDeadline
				}
				break
			}
			return nil, err
		}
		aonDuration := s.opts.Clock().Sub(aonStart)

		step := 1 / float64(k)
		for i := range flows {
			flows[i] = (1-step)*flows[i] + step*aon.Flows[i]
		}
		if err := s.commit(flows); err != nil {
			return nil, err
		}

		tstt := algorithms.TotalTravelTime(s.net, flows)
		gap := RelativeGap(tstt, aon.SPTT)

		stat := IterationStat{
			Iteration:   k,
			Step:        step,
			SPTT:        aon.SPTT,
			TSTT:        tstt,
			RelativeGap: gap,
			Elapsed:     s.opts.Clock().Sub(start),
			AONDuration: aonDuration,
		}
		stat.MinCostMargin, stat.MinFlow = s.margins(flows)
		if s.opts.KeepHistory {
			history = append(history, stat)
		}
		last, lastStat = aon, stat

		converged := gap <= s.opts.Tolerance
		final := converged || k >= s.opts.MaxIterations
		if k == 1 || k%every == 0 || final {
			s.report(stat)
			reported = k
		}

		if converged {
			reason = StopConverged
			break
		}
		if k >= s.opts.MaxIterations {
			reason = StopMaxIterations
			break
		}
	}

	if reported != lastStat.Iteration {
		s.report(lastStat)
	}

	res := &Result{
		State:       StateMaxIterReached,
		StopReason:  reason,
		Iterations:  lastStat.Iteration,
		RelativeGap: lastStat.RelativeGap,
		SPTT:        lastStat.SPTT,
		TSTT:        lastStat.TSTT,
		Flows:       s.net.Flows(),
		Costs:       s.net.Costs(),
		TravelTimes: last.TravelTimes,
		Dropped:     mergeDropped(plan.Excluded, last.Dropped),
		History:     history,
		Duration:    s.opts.Clock().Sub(start),
	}
	if reason == StopConverged {
		res.State = StateConverged
	}
	s.setState(res.State)

	attrs := []any{
		slog.Int("iterations", res.Iterations),
		slog.Float64("relative_gap", res.RelativeGap),
		slog.Float64("tstt", res.TSTT),
		slog.String("stop_reason", string(res.StopReason)),
		slog.Duration("duration", res.Duration),
	}
	if res.Converged() {
		s.log.Info("msa converged", attrs...)
	} else {
		s.log.Warn("msa stopped without convergence", attrs...)
	}

	return res, nil
}

// interrupted проверка в начале итерации
func (s *Solver) interrupted(ctx context.Context, deadline time.Time) (StopReason, bool) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return StopDeadline, true
		}
		return StopCanceled, true
	}
	if !deadline.IsZero() && !s.opts.Clock().Before(deadline) {
		return StopDeadline, true
	}
	return "", false
}

// stoppedEarly ошибка остановки до завершения первой итерации.
// Лимит MaxDuration не отменяет ctx, поэтому причина подставляется явно.
func stoppedEarly(ctx context.Context, reason StopReason) error {
	cause := ctx.Err()
	if reason == StopDeadline {
		if cause == nil {
			cause = context.DeadlineExceeded
		}
		return apperror.Wrap(cause, apperror.CodeCanceled, "solve deadline reached before the first iteration").
			WithDetails("stop_reason", string(reason))
	}
	return apperror.Wrap(cause, apperror.CodeCanceled, "solve canceled before the first iteration").
		WithDetails("stop_reason", string(reason))
}

// commit записывает усреднённые потоки в сеть, затем пересчитывает стоимости
func (s *Solver) commit(flows domain.FlowVector) error {
	for i, f := range flows {
		if err := s.net.SetFlow(domain.LinkID(i), f); err != nil {
			return err
		}
	}
	return algorithms.UpdateCosts(s.net, flows)
}

func (s *Solver) margins(flows domain.FlowVector) (minMargin, minFlow float64) {
	minMargin, minFlow = math.Inf(1), math.Inf(1)
	for i, f := range flows {
		l, _ := s.net.Link(domain.LinkID(i))
		minMargin = min(minMargin, s.net.Cost(domain.LinkID(i))-l.FreeFlowTime)
		minFlow = min(minFlow, f)
	}
	return minMargin, minFlow
}

func (s *Solver) report(stat IterationStat) {
	s.log.Info("msa iteration",
		slog.Int("iteration", stat.Iteration),
		slog.Float64("relative_gap", stat.RelativeGap),
		slog.Float64("sptt", stat.SPTT),
		slog.Float64("tstt", stat.TSTT),
	)
	if s.opts.Progress != nil {
		s.opts.Progress(stat)
	}
}

func mergeDropped(excluded, dropped []domain.ODPair) []domain.ODPair {
	if len(excluded) == 0 && len(dropped) == 0 {
		return nil
	}
	out := make([]domain.ODPair, 0, len(excluded)+len(dropped))
	out = append(out, excluded...)
	return append(out, dropped...)
}
