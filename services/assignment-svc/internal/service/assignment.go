package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/cache"
	"trafficassign/pkg/domain"
	"trafficassign/pkg/logger"
	"trafficassign/pkg/metrics"
	"trafficassign/pkg/telemetry"
	"trafficassign/services/assignment-svc/internal/assignment"
	"trafficassign/services/assignment-svc/internal/repository"
)

// ErrHistoryDisabled история прогонов не подключена
var ErrHistoryDisabled = errors.New("run history is disabled")

// Inputs входные данные одного прогона
type Inputs struct {
	Name    string
	Network *domain.Network
	Zones   *domain.ZoneCentroidMap
	Demand  *domain.DemandMatrix
	Tags    []string
}

// Outcome итог прогона
type Outcome struct {
	RunID     uuid.UUID
	InputHash string
	CacheHit  bool
	Result    *assignment.Result
}

// AssignmentService решает распределение с кэшем результатов, метриками,
// трассировкой и сохранением истории.
type AssignmentService struct {
	version  string
	opts     assignment.Options
	metrics  *metrics.Metrics
	tracker  *metrics.RunTracker
	cache    *cache.AssignmentCache
	cacheTTL time.Duration
	runs     repository.RunRepository
}

// Option настройка сервиса
type Option func(*AssignmentService)

// WithCache подключает кэш результатов
func WithCache(c *cache.AssignmentCache, ttl time.Duration) Option {
	return func(s *AssignmentService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithRepository подключает историю прогонов
func WithRepository(r repository.RunRepository) Option {
	return func(s *AssignmentService) {
		s.runs = r
	}
}

// NewAssignmentService создаёт сервис; опции решателя проверяются сразу
func NewAssignmentService(version string, opts assignment.Options, options ...Option) (*AssignmentService, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	m := metrics.Get()
	s := &AssignmentService{
		version: version,
		opts:    opts,
		metrics: m,
		tracker: metrics.NewRunTracker(m.ActiveRuns),
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// Options опции решателя
func (s *AssignmentService) Options() assignment.Options {
	return s.opts
}

// cacheParams каноническая строка параметров, влияющих на результат.
// Число воркеров не влияет: загрузка детерминирована.
func (s *AssignmentService) cacheParams() string {
	policy := s.opts.UnreachablePolicy
	if policy == "" {
		policy = assignment.PolicyFail
	}
	return fmt.Sprintf("msa:max_iter=%d:tol=%g:policy=%s", s.opts.MaxIterations, s.opts.Tolerance, policy)
}

// Run решает одну задачу. После возврата сеть несёт потоки и стоимости
// результата, в том числе при попадании в кэш.
func (s *AssignmentService) Run(ctx context.Context, in Inputs) (*Outcome, error) {
	if in.Network == nil || in.Zones == nil || in.Demand == nil {
		return nil, apperror.New(apperror.CodeNilInput, "network, zones and demand are required")
	}

	runID := uuid.New()
	ctx = logger.ContextWithRunID(ctx, runID.String())
	log := logger.WithContext(ctx, slog.String("name", in.Name))

	ctx, span := telemetry.StartSpan(ctx, "AssignmentService.Run",
		trace.WithAttributes(attribute.String(telemetry.AttrRunID, runID.String())),
		trace.WithAttributes(telemetry.NetworkAttributes(in.Name, in.Network.NodeCount(), in.Network.LinkCount())...),
		trace.WithAttributes(telemetry.DemandAttributes(in.Zones.Len(), len(in.Demand.Pairs()), in.Demand.Total())...),
	)
	defer span.End()

	s.metrics.RecordNetworkSize("solve", in.Network.NodeCount(), in.Network.LinkCount())
	s.metrics.RecordODPairs(len(in.Demand.Pairs()))

	out := &Outcome{
		RunID:     runID,
		InputHash: cache.InputHash(in.Network, in.Zones, in.Demand),
	}
	key := cache.BuildKey(out.InputHash, s.cacheParams())

	if res, ok := s.lookup(ctx, log, key, in.Network); ok {
		out.Result = res
		out.CacheHit = true
	} else {
		res, err := s.solve(ctx, log, runID.String(), in)
		if err != nil {
			telemetry.SetError(ctx, err)
			return nil, err
		}
		out.Result = res
		s.store(ctx, log, key, res)
	}

	span.SetAttributes(attribute.Bool(telemetry.AttrCacheHit, out.CacheHit))
	span.SetAttributes(telemetry.SolverAttributes(out.Result.State.String(), string(out.Result.StopReason),
		out.Result.Iterations, out.Result.RelativeGap, out.Result.TSTT)...)

	stats := domain.CalculateFlowStatistics(in.Network, 0)
	s.metrics.RecordCongestion(stats.CongestedLinks)

	s.saveHistory(ctx, log, in, out)
	return out, nil
}

func (s *AssignmentService) solve(ctx context.Context, log *slog.Logger, runID string, in Inputs) (*assignment.Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "AssignmentService.solve",
		trace.WithAttributes(attribute.Int(telemetry.AttrWorkers, s.opts.Workers)),
	)
	defer span.End()

	opts := s.opts
	opts.Logger = log
	userProgress := opts.Progress
	opts.Progress = func(stat assignment.IterationStat) {
		s.metrics.RecordIteration(stat.AONDuration)
		telemetry.AddEvent(ctx, "msa.iteration",
			telemetry.IterationAttributes(stat.Iteration, stat.RelativeGap, stat.TSTT, stat.SPTT)...)
		if userProgress != nil {
			userProgress(stat)
		}
	}

	solver, err := assignment.NewSolver(in.Network, in.Zones, in.Demand, opts)
	if err != nil {
		return nil, err
	}
	defer solver.Close()

	s.tracker.Start(runID)
	res, err := solver.Solve(ctx)
	elapsed := s.tracker.End(runID)

	if err != nil {
		s.metrics.RecordSolve(solver.State().String(), false, elapsed, 0, 0, 0)
		return nil, err
	}

	s.metrics.RecordSolve(res.State.String(), true, res.Duration, res.Iterations, res.RelativeGap, res.TSTT)
	if len(res.Dropped) > 0 {
		s.metrics.RecordDropped(len(res.Dropped))
		span.SetAttributes(attribute.Int(telemetry.AttrDroppedPairs, len(res.Dropped)))
	}
	return res, nil
}

// lookup ищет результат в кэше и переносит его потоки и стоимости в сеть.
// Ошибки кэша не прерывают прогон.
func (s *AssignmentService) lookup(ctx context.Context, log *slog.Logger, key string, net *domain.Network) (*assignment.Result, bool) {
	if s.cache == nil {
		return nil, false
	}

	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn("cache lookup failed", slog.String("error", err.Error()))
		telemetry.RecordError(ctx, err)
		return nil, false
	}
	if found {
		res, err := restore(cached, net)
		if err != nil {
			log.Warn("cached result does not fit the network", slog.String("error", err.Error()))
			found = false
		} else {
			s.metrics.RecordCacheLookup(true)
			telemetry.AddEvent(ctx, "cache_hit", attribute.Float64(telemetry.AttrTSTT, res.TSTT))
			log.Info("assignment served from cache",
				slog.Int("iterations", res.Iterations),
				slog.Float64("relative_gap", res.RelativeGap),
			)
			return res, true
		}
	}

	s.metrics.RecordCacheLookup(false)
	return nil, false
}

// store кэширует только результаты, не зависящие от времени запуска
func (s *AssignmentService) store(ctx context.Context, log *slog.Logger, key string, res *assignment.Result) {
	if s.cache == nil {
		return
	}
	if res.StopReason != assignment.StopConverged && res.StopReason != assignment.StopMaxIterations {
		return
	}

	entry := &cache.CachedResult{
		State:       res.State.String(),
		StopReason:  string(res.StopReason),
		Iterations:  res.Iterations,
		RelativeGap: res.RelativeGap,
		SPTT:        res.SPTT,
		TSTT:        res.TSTT,
		Flows:       res.Flows,
		Costs:       res.Costs,
		TravelTimes: cache.EncodeTravelTimes(res.TravelTimes),
		Dropped:     res.Dropped,
	}
	if err := s.cache.Set(ctx, key, entry, s.cacheTTL); err != nil {
		log.Warn("failed to cache assignment result", slog.String("error", err.Error()))
	}
}

// restore собирает Result из записи кэша и записывает потоки и стоимости в сеть
func restore(cached *cache.CachedResult, net *domain.Network) (*assignment.Result, error) {
	n := net.LinkCount()
	if len(cached.Flows) != n || len(cached.Costs) != n {
		return nil, fmt.Errorf("cached result has %d flows and %d costs for %d links", len(cached.Flows), len(cached.Costs), n)
	}

	net.ResetState()
	for i := 0; i < n; i++ {
		id := domain.LinkID(i)
		if err := net.SetFlow(id, cached.Flows[i]); err != nil {
			net.ResetState()
			return nil, err
		}
		if err := net.UpdateCost(id, cached.Costs[i]); err != nil {
			net.ResetState()
			return nil, err
		}
	}

	state := assignment.StateMaxIterReached
	if cached.State == assignment.StateConverged.String() {
		state = assignment.StateConverged
	}
	return &assignment.Result{
		State:       state,
		StopReason:  assignment.StopReason(cached.StopReason),
		Iterations:  cached.Iterations,
		RelativeGap: cached.RelativeGap,
		SPTT:        cached.SPTT,
		TSTT:        cached.TSTT,
		Flows:       net.Flows(),
		Costs:       net.Costs(),
		TravelTimes: cached.TravelTimeTable(),
		Dropped:     cached.Dropped,
	}, nil
}

type linkFlowJSON struct {
	ID   int     `json:"id"`
	From int64   `json:"from"`
	To   int64   `json:"to"`
	Flow float64 `json:"flow"`
	Cost float64 `json:"cost"`
}

// saveHistory сохраняет прогон; сбой истории только логируется
func (s *AssignmentService) saveHistory(ctx context.Context, log *slog.Logger, in Inputs, out *Outcome) {
	if s.runs == nil {
		return
	}
	res := out.Result

	links := make([]linkFlowJSON, 0, in.Network.LinkCount())
	for _, l := range in.Network.Links() {
		links = append(links, linkFlowJSON{ID: int(l.ID), From: l.From, To: l.To, Flow: res.Flows[l.ID], Cost: res.Costs[l.ID]})
	}
	linkFlows, err := json.Marshal(links)
	if err != nil {
		log.Warn("failed to encode link flows", slog.String("error", err.Error()))
		return
	}
	travelTimes, err := json.Marshal(cache.EncodeTravelTimes(res.TravelTimes))
	if err != nil {
		log.Warn("failed to encode travel times", slog.String("error", err.Error()))
		return
	}

	run := &repository.Run{
		ID:            out.RunID,
		Name:          in.Name,
		InputHash:     out.InputHash,
		State:         res.State.String(),
		StopReason:    string(res.StopReason),
		Iterations:    res.Iterations,
		RelativeGap:   res.RelativeGap,
		TSTT:          res.TSTT,
		SPTT:          res.SPTT,
		TotalDemand:   in.Demand.Total(),
		NodeCount:     in.Network.NodeCount(),
		LinkCount:     in.Network.LinkCount(),
		ZoneCount:     in.Zones.Len(),
		DroppedPairs:  len(res.Dropped),
		MaxIterations: s.opts.MaxIterations,
		Tolerance:     s.opts.Tolerance,
		Workers:       s.opts.Workers,
		DurationMs:    float64(res.Duration.Microseconds()) / 1000,
		CacheHit:      out.CacheHit,
		Tags:          in.Tags,
		LinkFlows:     linkFlows,
		TravelTimes:   travelTimes,
	}
	for _, h := range res.History {
		run.History = append(run.History, repository.IterationRecord{
			Iteration:   h.Iteration,
			Step:        h.Step,
			SPTT:        h.SPTT,
			TSTT:        h.TSTT,
			RelativeGap: h.RelativeGap,
			ElapsedMs:   float64(h.Elapsed.Microseconds()) / 1000,
		})
	}

	err = s.runs.Create(ctx, run)
	s.metrics.RecordHistoryWrite(err == nil)
	if err != nil {
		log.Error("failed to save run history", slog.String("error", err.Error()))
		telemetry.RecordError(ctx, err)
		return
	}
	log.Debug("run history saved", slog.String("run_id", run.ID.String()))
}

// InvalidateCache удаляет все закэшированные результаты
func (s *AssignmentService) InvalidateCache(ctx context.Context) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	n, err := s.cache.InvalidateAll(ctx)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.CodeCache, "failed to invalidate cache")
	}
	return n, nil
}
