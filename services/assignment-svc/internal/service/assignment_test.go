package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/cache"
	"trafficassign/pkg/domain"
	"trafficassign/pkg/logger"
	"trafficassign/services/assignment-svc/internal/assignment"
	"trafficassign/services/assignment-svc/internal/repository"
)

func init() {
	logger.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================================
// FAKES
// ============================================================

type memoryRuns struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*repository.Run
	createErr error
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: make(map[uuid.UUID]*repository.Run)}
}

func (m *memoryRuns) Create(_ context.Context, run *repository.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	run.CreatedAt = time.Now()
	m.runs[run.ID] = run
	return nil
}

func (m *memoryRuns) GetByID(_ context.Context, id uuid.UUID) (*repository.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, repository.ErrRunNotFound
	}
	return run, nil
}

func (m *memoryRuns) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[id]; !ok {
		return repository.ErrRunNotFound
	}
	delete(m.runs, id)
	return nil
}

func (m *memoryRuns) List(_ context.Context, _ *repository.ListOptions) ([]*repository.RunSummary, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.RunSummary
	for _, r := range m.runs {
		out = append(out, &repository.RunSummary{ID: r.ID, Name: r.Name, State: r.State})
	}
	return out, int64(len(out)), nil
}

func (m *memoryRuns) Statistics(_ context.Context, _ *time.Time) (*repository.Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &repository.Statistics{RunsByState: map[string]int{}}
	for _, r := range m.runs {
		stats.TotalRuns++
		if r.CacheHit {
			stats.CacheHits++
		}
		stats.RunsByState[r.State]++
	}
	return stats, nil
}

// ============================================================
// HELPERS
// ============================================================

// twoRoutes 1->2 напрямую и через узел 3, спрос 30 из 1 в 2
func twoRoutes(t *testing.T) Inputs {
	t.Helper()
	net := domain.NewNetwork()
	for _, s := range []domain.LinkSpec{
		{From: 1, To: 2, Capacity: 10, FreeFlowTime: 10, Alpha: 0.15, Beta: 4},
		{From: 1, To: 3, Capacity: 20, FreeFlowTime: 5, Alpha: 0.15, Beta: 4},
		{From: 3, To: 2, Capacity: 20, FreeFlowTime: 6, Alpha: 0.15, Beta: 4},
	} {
		_, err := net.AddLink(s)
		require.NoError(t, err)
	}
	demand := domain.NewDemandMatrix()
	require.NoError(t, demand.Set(1, 2, 30))
	return Inputs{
		Name:    "two-routes",
		Network: net,
		Zones:   domain.IdentityCentroids(demand.Zones()),
		Demand:  demand,
		Tags:    []string{"test"},
	}
}

func solverOptions() assignment.Options {
	opts := assignment.DefaultOptions()
	opts.Workers = 2
	opts.KeepHistory = true
	return opts
}

func newService(t *testing.T, options ...Option) *AssignmentService {
	t.Helper()
	svc, err := NewAssignmentService("test", solverOptions(), options...)
	require.NoError(t, err)
	return svc
}

func memoryCache(t *testing.T) *cache.AssignmentCache {
	t.Helper()
	ac := cache.NewAssignmentCache(cache.NewMemoryCache(cache.DefaultOptions()), time.Minute)
	t.Cleanup(func() { _ = ac.Close() })
	return ac
}

// ============================================================
// RUN TESTS
// ============================================================

func TestNewAssignmentService_InvalidOptions(t *testing.T) {
	opts := solverOptions()
	opts.Tolerance = 0

	_, err := NewAssignmentService("test", opts)

	assert.True(t, apperror.Is(err, apperror.CodeInvalidOptions))
}

func TestRun_Solves(t *testing.T) {
	svc := newService(t)
	in := twoRoutes(t)

	var progress int
	svc.opts.Progress = func(assignment.IterationStat) { progress++ }

	out, err := svc.Run(context.Background(), in)

	require.NoError(t, err)
	assert.False(t, out.CacheHit)
	assert.NotEqual(t, uuid.Nil, out.RunID)
	assert.NotEmpty(t, out.InputHash)
	assert.True(t, out.Result.Converged())
	assert.Positive(t, progress)
	assert.Equal(t, []float64(out.Result.Flows), []float64(in.Network.Flows()))
}

func TestRun_NilInputs(t *testing.T) {
	svc := newService(t)

	_, err := svc.Run(context.Background(), Inputs{})

	assert.True(t, apperror.Is(err, apperror.CodeNilInput))
}

func TestRun_CacheHitRestoresNetwork(t *testing.T) {
	svc := newService(t, WithCache(memoryCache(t), time.Minute))
	in := twoRoutes(t)

	first, err := svc.Run(context.Background(), in)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	in.Network.ResetState()
	second, err := svc.Run(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, second.CacheHit)
	assert.Equal(t, first.InputHash, second.InputHash)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Result.Iterations, second.Result.Iterations)
	assert.Equal(t, first.Result.State, second.Result.State)
	assert.Equal(t, first.Result.TravelTimes, second.Result.TravelTimes)
	for i, f := range first.Result.Flows {
		id := domain.LinkID(i)
		assert.InDelta(t, f, in.Network.Flow(id), 1e-12)
		assert.InDelta(t, first.Result.Costs[i], in.Network.Cost(id), 1e-12)
	}
}

func TestRun_DifferentOptionsMissCache(t *testing.T) {
	ac := memoryCache(t)
	in := twoRoutes(t)

	svc := newService(t, WithCache(ac, 0))
	_, err := svc.Run(context.Background(), in)
	require.NoError(t, err)

	opts := solverOptions()
	opts.Tolerance = 1e-3
	other, err := NewAssignmentService("test", opts, WithCache(ac, 0))
	require.NoError(t, err)

	out, err := other.Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.CacheHit)
}

func TestRun_SavesHistory(t *testing.T) {
	runs := newMemoryRuns()
	svc := newService(t, WithRepository(runs))
	in := twoRoutes(t)

	out, err := svc.Run(context.Background(), in)
	require.NoError(t, err)

	run, err := svc.GetRun(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, "two-routes", run.Name)
	assert.Equal(t, out.InputHash, run.InputHash)
	assert.Equal(t, "converged", run.State)
	assert.Equal(t, 3, run.LinkCount)
	assert.Equal(t, 2, run.ZoneCount)
	assert.Equal(t, []string{"test"}, run.Tags)
	assert.Len(t, run.History, out.Result.Iterations)

	var tts []cache.CachedTravelTime
	require.NoError(t, json.Unmarshal(run.TravelTimes, &tts))
	require.Len(t, tts, 1)
	assert.Equal(t, out.Result.TravelTimes[domain.ODPair{Origin: 1, Destination: 2}], tts[0].Time)
}

func TestRun_HistoryFailureDoesNotFailRun(t *testing.T) {
	runs := newMemoryRuns()
	runs.createErr = errors.New("db down")
	svc := newService(t, WithRepository(runs))

	out, err := svc.Run(context.Background(), twoRoutes(t))

	require.NoError(t, err)
	assert.True(t, out.Result.Converged())
}

func TestRun_UnreachableFails(t *testing.T) {
	runs := newMemoryRuns()
	ac := memoryCache(t)
	svc := newService(t, WithRepository(runs), WithCache(ac, 0))

	in := twoRoutes(t)
	_, err := in.Network.AddLink(domain.LinkSpec{From: 4, To: 5, Capacity: 1, FreeFlowTime: 1})
	require.NoError(t, err)
	require.NoError(t, in.Demand.Set(1, 5, 2))
	in.Zones = domain.IdentityCentroids(in.Demand.Zones())

	_, err = svc.Run(context.Background(), in)

	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeUnreachableDestination))
	assert.Empty(t, runs.runs)
	stats, err := ac.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalKeys)
}

func TestRun_CanceledIsNotCached(t *testing.T) {
	ac := memoryCache(t)
	svc := newService(t, WithCache(ac, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, twoRoutes(t))

	assert.True(t, apperror.Is(err, apperror.CodeCanceled))
	n, err := svc.InvalidateCache(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRestore_LengthMismatch(t *testing.T) {
	in := twoRoutes(t)

	_, err := restore(&cache.CachedResult{Flows: []float64{1}, Costs: []float64{10}}, in.Network)

	assert.Error(t, err)
}

func TestRestore_CostBelowFreeFlowResetsNetwork(t *testing.T) {
	in := twoRoutes(t)

	_, err := restore(&cache.CachedResult{
		Flows: []float64{1, 2, 3},
		Costs: []float64{10, 1, 6},
	}, in.Network)

	assert.True(t, apperror.Is(err, apperror.CodeCostBelowFreeFlow))
	assert.Zero(t, in.Network.Flow(0))
}

// ============================================================
// HISTORY TESTS
// ============================================================

func TestHistory_Disabled(t *testing.T) {
	svc := newService(t)

	_, err := svc.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrHistoryDisabled)

	_, _, err = svc.ListRuns(context.Background(), nil)
	assert.ErrorIs(t, err, ErrHistoryDisabled)
}

func TestHistory_Operations(t *testing.T) {
	runs := newMemoryRuns()
	svc := newService(t, WithRepository(runs))
	ctx := context.Background()

	out, err := svc.Run(ctx, twoRoutes(t))
	require.NoError(t, err)

	list, total, err := svc.ListRuns(ctx, &repository.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, out.RunID, list[0].ID)

	stats, err := svc.RunStatistics(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.RunsByState["converged"])

	require.NoError(t, svc.DeleteRun(ctx, out.RunID))

	_, err = svc.GetRun(ctx, out.RunID)
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
	assert.ErrorIs(t, err, repository.ErrRunNotFound)
}
