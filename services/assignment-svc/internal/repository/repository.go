package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Стандартные ошибки
var (
	ErrRunNotFound = errors.New("assignment run not found")
)

// Run сохранённый прогон распределения
type Run struct {
	ID            uuid.UUID
	Name          string
	InputHash     string
	State         string
	StopReason    string
	Iterations    int
	RelativeGap   float64
	TSTT          float64
	SPTT          float64
	TotalDemand   float64
	NodeCount     int
	LinkCount     int
	ZoneCount     int
	DroppedPairs  int
	MaxIterations int
	Tolerance     float64
	Workers       int
	DurationMs    float64
	CacheHit      bool
	Tags          []string
	LinkFlows     []byte // JSON
	TravelTimes   []byte // JSON
	History       []IterationRecord
	CreatedAt     time.Time
}

// IterationRecord строка истории сходимости
type IterationRecord struct {
	Iteration   int
	Step        float64
	SPTT        float64
	TSTT        float64
	RelativeGap float64
	ElapsedMs   float64
}

// RunSummary краткая информация о прогоне
type RunSummary struct {
	ID          uuid.UUID
	Name        string
	State       string
	Iterations  int
	RelativeGap float64
	TSTT        float64
	LinkCount   int
	DurationMs  float64
	Tags        []string
	CreatedAt   time.Time
}

// ListFilter фильтры для списка
type ListFilter struct {
	State     string
	InputHash string
	Tags      []string
	StartTime *time.Time
	EndTime   *time.Time
}

// SortOrder порядок сортировки
type SortOrder string

const (
	SortByCreatedDesc  SortOrder = "created_desc"
	SortByCreatedAsc   SortOrder = "created_asc"
	SortByGapAsc       SortOrder = "gap_asc"
	SortByDurationDesc SortOrder = "duration_desc"
)

// ListOptions опции для списка
type ListOptions struct {
	Limit  int
	Offset int
	Filter *ListFilter
	Sort   SortOrder
}

// Statistics агрегаты по истории прогонов
type Statistics struct {
	TotalRuns         int
	CacheHits         int
	AverageIterations float64
	AverageGap        float64
	AverageDurationMs float64
	RunsByState       map[string]int
}

// RunRepository хранилище истории прогонов
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts *ListOptions) ([]*RunSummary, int64, error)
	Statistics(ctx context.Context, since *time.Time) (*Statistics, error)
}
