package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lib/pq"

	"trafficassign/pkg/database"
	"trafficassign/pkg/telemetry"
)

var iterationColumns = []string{"run_id", "iteration", "step", "sptt", "tstt", "relative_gap", "elapsed_ms"}

// PostgresRunRepository PostgreSQL реализация
type PostgresRunRepository struct {
	db database.DB
}

// NewPostgresRunRepository создаёт новый репозиторий
func NewPostgresRunRepository(db database.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

// Create сохраняет прогон и его историю сходимости одной транзакцией
func (r *PostgresRunRepository) Create(ctx context.Context, run *Run) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRunRepository.Create")
	defer span.End()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	tags := run.Tags
	if tags == nil {
		tags = []string{}
	}

	query := `
		INSERT INTO assignment_runs (
			id, name, input_hash, state, stop_reason, iterations,
			relative_gap, tstt, sptt, total_demand,
			node_count, link_count, zone_count, dropped_pairs,
			max_iterations, tolerance, workers, duration_ms, cache_hit,
			tags, link_flows, travel_times
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING created_at
	`

	err := database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query,
			run.ID, run.Name, run.InputHash, run.State, run.StopReason, run.Iterations,
			run.RelativeGap, run.TSTT, run.SPTT, run.TotalDemand,
			run.NodeCount, run.LinkCount, run.ZoneCount, run.DroppedPairs,
			run.MaxIterations, run.Tolerance, run.Workers, run.DurationMs, run.CacheHit,
			pq.Array(tags), run.LinkFlows, run.TravelTimes,
		).Scan(&run.CreatedAt)
		if err != nil {
			return err
		}

		if len(run.History) == 0 {
			return nil
		}
		rows := make([][]any, len(run.History))
		for i, h := range run.History {
			rows[i] = []any{run.ID, h.Iteration, h.Step, h.SPTT, h.TSTT, h.RelativeGap, h.ElapsedMs}
		}
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"run_iterations"}, iterationColumns, pgx.CopyFromRows(rows))
		return err
	})
	if err != nil {
		telemetry.SetError(ctx, err)
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetByID возвращает прогон вместе с историей
func (r *PostgresRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRunRepository.GetByID")
	defer span.End()

	query := `
		SELECT
			id, name, input_hash, state, stop_reason, iterations,
			relative_gap, tstt, sptt, total_demand,
			node_count, link_count, zone_count, dropped_pairs,
			max_iterations, tolerance, workers, duration_ms, cache_hit,
			tags, link_flows, travel_times, created_at
		FROM assignment_runs
		WHERE id = $1
	`

	run := &Run{}
	var tags pgtype.Array[string]

	err := r.db.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Name, &run.InputHash, &run.State, &run.StopReason, &run.Iterations,
		&run.RelativeGap, &run.TSTT, &run.SPTT, &run.TotalDemand,
		&run.NodeCount, &run.LinkCount, &run.ZoneCount, &run.DroppedPairs,
		&run.MaxIterations, &run.Tolerance, &run.Workers, &run.DurationMs, &run.CacheHit,
		&tags, &run.LinkFlows, &run.TravelTimes, &run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Tags = tags.Elements

	history, err := r.history(ctx, id)
	if err != nil {
		return nil, err
	}
	run.History = history

	return run, nil
}

func (r *PostgresRunRepository) history(ctx context.Context, id uuid.UUID) ([]IterationRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT iteration, step, sptt, tstt, relative_gap, elapsed_ms
		FROM run_iterations
		WHERE run_id = $1
		ORDER BY iteration
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var out []IterationRecord
	for rows.Next() {
		var h IterationRecord
		if err := rows.Scan(&h.Iteration, &h.Step, &h.SPTT, &h.TSTT, &h.RelativeGap, &h.ElapsedMs); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// Delete удаляет прогон; история удаляется каскадно
func (r *PostgresRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRunRepository.Delete")
	defer span.End()

	result, err := r.db.Exec(ctx, `DELETE FROM assignment_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// List возвращает страницу прогонов и общее число подходящих
func (r *PostgresRunRepository) List(ctx context.Context, opts *ListOptions) ([]*RunSummary, int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRunRepository.List")
	defer span.End()

	if opts == nil {
		opts = &ListOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	where, args := buildWhereClause(opts.Filter)

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM assignment_runs WHERE %s`, where)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT
			id, name, state, iterations, relative_gap, tstt,
			link_count, duration_ms, tags, created_at
		FROM assignment_runs
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, where, buildOrderBy(opts.Sort), len(args)+1, len(args)+2)
	args = append(args, limit, opts.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []*RunSummary
	for rows.Next() {
		s := &RunSummary{}
		var tags pgtype.Array[string]
		if err := rows.Scan(
			&s.ID, &s.Name, &s.State, &s.Iterations, &s.RelativeGap, &s.TSTT,
			&s.LinkCount, &s.DurationMs, &tags, &s.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		s.Tags = tags.Elements
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return results, total, nil
}

func buildWhereClause(filter *ListFilter) (string, []any) {
	conditions := []string{"TRUE"}
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter != nil {
		if filter.State != "" {
			add("state = $%d", filter.State)
		}
		if filter.InputHash != "" {
			add("input_hash = $%d", filter.InputHash)
		}
		if len(filter.Tags) > 0 {
			add("tags && $%d", pq.Array(filter.Tags))
		}
		if filter.StartTime != nil {
			add("created_at >= $%d", *filter.StartTime)
		}
		if filter.EndTime != nil {
			add("created_at <= $%d", *filter.EndTime)
		}
	}

	return strings.Join(conditions, " AND "), args
}

func buildOrderBy(sort SortOrder) string {
	switch sort {
	case SortByCreatedAsc:
		return "created_at ASC"
	case SortByGapAsc:
		return "relative_gap ASC, created_at DESC"
	case SortByDurationDesc:
		return "duration_ms DESC"
	default:
		return "created_at DESC"
	}
}

// Statistics агрегаты по прогонам, начиная с since (nil = за всё время)
func (r *PostgresRunRepository) Statistics(ctx context.Context, since *time.Time) (*Statistics, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRunRepository.Statistics")
	defer span.End()

	stats := &Statistics{RunsByState: make(map[string]int)}

	where := "TRUE"
	var args []any
	if since != nil {
		where = "created_at >= $1"
		args = append(args, *since)
	}

	statsQuery := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE cache_hit),
			COALESCE(AVG(iterations), 0),
			COALESCE(AVG(relative_gap), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM assignment_runs
		WHERE %s
	`, where)

	err := r.db.QueryRow(ctx, statsQuery, args...).Scan(
		&stats.TotalRuns,
		&stats.CacheHits,
		&stats.AverageIterations,
		&stats.AverageGap,
		&stats.AverageDurationMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	stateQuery := fmt.Sprintf(`
		SELECT state, COUNT(*)
		FROM assignment_runs
		WHERE %s
		GROUP BY state
	`, where)

	rows, err := r.db.Query(ctx, stateQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get state stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan state stats: %w", err)
		}
		stats.RunsByState[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return stats, nil
}
