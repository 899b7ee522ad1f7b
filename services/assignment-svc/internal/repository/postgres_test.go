package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// HELPER FUNCTIONS
// ============================================================

func setupMockDB(t *testing.T) (pgxmock.PgxPoolIface, *PostgresRunRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresRunRepository(mock)
}

func tagsArray(tags []string) pgtype.Array[string] {
	if tags == nil {
		return pgtype.Array[string]{Valid: false}
	}
	return pgtype.Array[string]{
		Elements: tags,
		Valid:    true,
		Dims:     []pgtype.ArrayDimension{{Length: int32(len(tags)), LowerBound: 1}},
	}
}

func sampleRun() *Run {
	return &Run{
		Name:          "braess",
		InputHash:     "abc123",
		State:         "converged",
		StopReason:    "converged",
		Iterations:    2,
		RelativeGap:   5e-5,
		TSTT:          552,
		SPTT:          551.97,
		TotalDemand:   6,
		NodeCount:     4,
		LinkCount:     5,
		ZoneCount:     2,
		MaxIterations: 1000,
		Tolerance:     1e-4,
		Workers:       2,
		DurationMs:    1.5,
		Tags:          []string{"braess"},
		LinkFlows:     []byte(`[{"from":1,"to":2,"flow":3}]`),
		History: []IterationRecord{
			{Iteration: 1, Step: 1, SPTT: 500, TSTT: 600, RelativeGap: 0.2, ElapsedMs: 0.5},
			{Iteration: 2, Step: 0.5, SPTT: 551.97, TSTT: 552, RelativeGap: 5e-5, ElapsedMs: 1.0},
		},
	}
}

func insertArgs(run *Run) []any {
	return []any{
		pgxmock.AnyArg(), run.Name, run.InputHash, run.State, run.StopReason, run.Iterations,
		run.RelativeGap, run.TSTT, run.SPTT, run.TotalDemand,
		run.NodeCount, run.LinkCount, run.ZoneCount, run.DroppedPairs,
		run.MaxIterations, run.Tolerance, run.Workers, run.DurationMs, run.CacheHit,
		pgxmock.AnyArg(), run.LinkFlows, run.TravelTimes,
	}
}

var runColumns = []string{
	"id", "name", "input_hash", "state", "stop_reason", "iterations",
	"relative_gap", "tstt", "sptt", "total_demand",
	"node_count", "link_count", "zone_count", "dropped_pairs",
	"max_iterations", "tolerance", "workers", "duration_ms", "cache_hit",
	"tags", "link_flows", "travel_times", "created_at",
}

// ============================================================
// CREATE TESTS
// ============================================================

func TestPostgresRunRepository_Create_Success(t *testing.T) {
	mock, repo := setupMockDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	run := sampleRun()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO assignment_runs`).
		WithArgs(insertArgs(run)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCopyFrom(pgx.Identifier{"run_iterations"}, iterationColumns).
		WillReturnResult(2)
	mock.ExpectCommit()

	err := repo.Create(ctx, run)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, now, run.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRunRepository_Create_WithoutHistory(t *testing.T) {
	mock, repo := setupMockDB(t)
	run := sampleRun()
	run.History = nil
	run.ID = uuid.New()
	id := run.ID

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO assignment_runs`).
		WithArgs(insertArgs(run)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), run))
	assert.Equal(t, id, run.ID, "preset id must be kept")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRunRepository_Create_RollsBackOnHistoryError(t *testing.T) {
	mock, repo := setupMockDB(t)
	run := sampleRun()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO assignment_runs`).
		WithArgs(insertArgs(run)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCopyFrom(pgx.Identifier{"run_iterations"}, iterationColumns).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), run)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================
// GET BY ID TESTS
// ============================================================

func TestPostgresRunRepository_GetByID_Success(t *testing.T) {
	mock, repo := setupMockDB(t)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM assignment_runs`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(runColumns).AddRow(
			id, "braess", "abc123", "converged", "converged", 2,
			5e-5, 552.0, 551.97, 6.0,
			4, 5, 2, 0,
			1000, 1e-4, 2, 1.5, false,
			tagsArray([]string{"braess", "test"}), []byte(`[]`), []byte(nil), now,
		))
	mock.ExpectQuery(`FROM run_iterations`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"iteration", "step", "sptt", "tstt", "relative_gap", "elapsed_ms"}).
			AddRow(1, 1.0, 500.0, 600.0, 0.2, 0.5).
			AddRow(2, 0.5, 551.97, 552.0, 5e-5, 1.0))

	run, err := repo.GetByID(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, "converged", run.State)
	assert.Equal(t, []string{"braess", "test"}, run.Tags)
	require.Len(t, run.History, 2)
	assert.Equal(t, 0.5, run.History[1].Step)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRunRepository_GetByID_NotFound(t *testing.T) {
	mock, repo := setupMockDB(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM assignment_runs`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)

	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================
// DELETE TESTS
// ============================================================

func TestPostgresRunRepository_Delete(t *testing.T) {
	mock, repo := setupMockDB(t)
	id := uuid.New()

	mock.ExpectExec(`DELETE FROM assignment_runs`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM assignment_runs`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), id))
	assert.ErrorIs(t, repo.Delete(context.Background(), id), ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================
// LIST TESTS
// ============================================================

func TestPostgresRunRepository_List_WithFilter(t *testing.T) {
	mock, repo := setupMockDB(t)
	id := uuid.New()
	now := time.Now().UTC()

	opts := &ListOptions{
		Limit:  500,
		Offset: 10,
		Sort:   SortByGapAsc,
		Filter: &ListFilter{State: "converged", Tags: []string{"braess"}},
	}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM assignment_runs WHERE TRUE AND state = \$1 AND tags && \$2`).
		WithArgs("converged", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(11)))
	mock.ExpectQuery(`ORDER BY relative_gap ASC, created_at DESC\s+LIMIT \$3 OFFSET \$4`).
		WithArgs("converged", pgxmock.AnyArg(), 100, 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "state", "iterations", "relative_gap", "tstt",
			"link_count", "duration_ms", "tags", "created_at",
		}).AddRow(id, "braess", "converged", 2, 5e-5, 552.0, 5, 1.5, tagsArray([]string{"braess"}), now))

	runs, total, err := repo.List(context.Background(), opts)

	require.NoError(t, err)
	assert.Equal(t, int64(11), total)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, []string{"braess"}, runs[0].Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRunRepository_List_CountError(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectQuery(`SELECT COUNT`).WillReturnError(errors.New("db down"))

	_, _, err := repo.List(context.Background(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count runs")
}

func TestBuildWhereClause(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args := buildWhereClause(&ListFilter{InputHash: "h", StartTime: &start})

	assert.Equal(t, "TRUE AND input_hash = $1 AND created_at >= $2", where)
	assert.Equal(t, []any{"h", start}, args)

	where, args = buildWhereClause(nil)
	assert.Equal(t, "TRUE", where)
	assert.Empty(t, args)
}

func TestBuildOrderBy(t *testing.T) {
	assert.Equal(t, "created_at DESC", buildOrderBy(""))
	assert.Equal(t, "created_at ASC", buildOrderBy(SortByCreatedAsc))
	assert.Equal(t, "duration_ms DESC", buildOrderBy(SortByDurationDesc))
}

// ============================================================
// STATISTICS TESTS
// ============================================================

func TestPostgresRunRepository_Statistics(t *testing.T) {
	mock, repo := setupMockDB(t)
	since := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery(`FROM assignment_runs\s+WHERE created_at >= \$1`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"count", "hits", "iters", "gap", "dur"}).
			AddRow(10, 3, 42.5, 1e-4, 12.0))
	mock.ExpectQuery(`GROUP BY state`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"state", "count"}).
			AddRow("converged", 8).
			AddRow("max_iter_reached", 2))

	stats, err := repo.Statistics(context.Background(), &since)

	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalRuns)
	assert.Equal(t, 3, stats.CacheHits)
	assert.Equal(t, 42.5, stats.AverageIterations)
	assert.Equal(t, map[string]int{"converged": 8, "max_iter_reached": 2}, stats.RunsByState)
	assert.NoError(t, mock.ExpectationsWereMet())
}
