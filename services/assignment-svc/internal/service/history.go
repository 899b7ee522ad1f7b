package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/telemetry"
	"trafficassign/services/assignment-svc/internal/repository"
)

func (s *AssignmentService) history() (repository.RunRepository, error) {
	if s.runs == nil {
		return nil, apperror.Wrap(ErrHistoryDisabled, apperror.CodeInvalidArgument, "database.enabled is false")
	}
	return s.runs, nil
}

func historyError(err error, message string) error {
	if errors.Is(err, repository.ErrRunNotFound) {
		return apperror.Wrap(err, apperror.CodeNotFound, message)
	}
	return apperror.Wrap(err, apperror.CodeDatabase, message)
}

// GetRun возвращает сохранённый прогон
func (s *AssignmentService) GetRun(ctx context.Context, id uuid.UUID) (*repository.Run, error) {
	ctx, span := telemetry.StartSpan(ctx, "AssignmentService.GetRun")
	defer span.End()

	runs, err := s.history()
	if err != nil {
		return nil, err
	}
	run, err := runs.GetByID(ctx, id)
	if err != nil {
		return nil, historyError(err, "failed to get run")
	}
	return run, nil
}

// DeleteRun удаляет сохранённый прогон
func (s *AssignmentService) DeleteRun(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "AssignmentService.DeleteRun")
	defer span.End()

	runs, err := s.history()
	if err != nil {
		return err
	}
	if err := runs.Delete(ctx, id); err != nil {
		return historyError(err, "failed to delete run")
	}
	return nil
}

// ListRuns возвращает страницу истории и общее число прогонов
func (s *AssignmentService) ListRuns(ctx context.Context, opts *repository.ListOptions) ([]*repository.RunSummary, int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "AssignmentService.ListRuns")
	defer span.End()

	runs, err := s.history()
	if err != nil {
		return nil, 0, err
	}
	list, total, err := runs.List(ctx, opts)
	if err != nil {
		return nil, 0, historyError(err, "failed to list runs")
	}
	return list, total, nil
}

// RunStatistics агрегаты истории за последние window (0 - за всё время)
func (s *AssignmentService) RunStatistics(ctx context.Context, window time.Duration) (*repository.Statistics, error) {
	ctx, span := telemetry.StartSpan(ctx, "AssignmentService.RunStatistics")
	defer span.End()

	runs, err := s.history()
	if err != nil {
		return nil, err
	}
	var since *time.Time
	if window > 0 {
		t := time.Now().Add(-window)
		since = &t
	}
	stats, err := runs.Statistics(ctx, since)
	if err != nil {
		return nil, historyError(err, "failed to get run statistics")
	}
	return stats, nil
}
