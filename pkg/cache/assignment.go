package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trafficassign/pkg/domain"
)

// AssignmentCache кэш итоговых результатов распределения
type AssignmentCache struct {
	cache      Cache
	defaultTTL time.Duration
}

// CachedResult сериализуемый итог решения
type CachedResult struct {
	State       string             `json:"state"`
	StopReason  string             `json:"stop_reason"`
	Iterations  int                `json:"iterations"`
	RelativeGap float64            `json:"relative_gap"`
	SPTT        float64            `json:"sptt"`
	TSTT        float64            `json:"tstt"`
	Flows       []float64          `json:"flows"`
	Costs       []float64          `json:"costs"`
	TravelTimes []CachedTravelTime `json:"travel_times,omitempty"`
	Dropped     []domain.ODPair    `json:"dropped,omitempty"`
	ComputedAt  time.Time          `json:"computed_at"`
}

// CachedTravelTime время проезда для пары зон
type CachedTravelTime struct {
	Origin      int64   `json:"o"`
	Destination int64   `json:"d"`
	Time        float64 `json:"t"`
}

// TravelTimeTable восстанавливает таблицу времён
func (r *CachedResult) TravelTimeTable() domain.TravelTimeTable {
	out := make(domain.TravelTimeTable, len(r.TravelTimes))
	for _, tt := range r.TravelTimes {
		out[domain.ODPair{Origin: tt.Origin, Destination: tt.Destination}] = tt.Time
	}
	return out
}

// EncodeTravelTimes упорядоченное представление таблицы
func EncodeTravelTimes(t domain.TravelTimeTable) []CachedTravelTime {
	out := make([]CachedTravelTime, 0, len(t))
	for _, p := range t.Pairs() {
		out = append(out, CachedTravelTime{Origin: p.Origin, Destination: p.Destination, Time: t[p]})
	}
	return out
}

// NewAssignmentCache создаёт кэш результатов поверх произвольного бэкенда
func NewAssignmentCache(c Cache, defaultTTL time.Duration) *AssignmentCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &AssignmentCache{cache: c, defaultTTL: defaultTTL}
}

// Get возвращает результат по ключу; false без ошибки означает промах
func (ac *AssignmentCache) Get(ctx context.Context, key string) (*CachedResult, bool, error) {
	data, err := ac.cache.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var result CachedResult
	if err := json.Unmarshal(data, &result); err != nil {
		// Повреждённая запись считается промахом
		_ = ac.cache.Delete(ctx, key) //nolint:errcheck // best effort cleanup
		return nil, false, nil
	}
	return &result, true, nil
}

// Set сохраняет результат
func (ac *AssignmentCache) Set(ctx context.Context, key string, result *CachedResult, ttl time.Duration) error {
	if result == nil {
		return errors.New("cache: nil result")
	}
	if ttl <= 0 {
		ttl = ac.defaultTTL
	}
	if result.ComputedAt.IsZero() {
		result.ComputedAt = time.Now().UTC()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache: marshal result: %w", err)
	}
	return ac.cache.Set(ctx, key, data, ttl)
}

// Invalidate удаляет все результаты для входных данных inputHash
func (ac *AssignmentCache) Invalidate(ctx context.Context, inputHash string) (int64, error) {
	return ac.cache.DeleteByPrefix(ctx, KeyPrefix+inputHash+":")
}

// InvalidateAll удаляет все результаты распределения
func (ac *AssignmentCache) InvalidateAll(ctx context.Context) (int64, error) {
	return ac.cache.DeleteByPrefix(ctx, KeyPrefix)
}

// Stats статистика нижележащего кэша
func (ac *AssignmentCache) Stats(ctx context.Context) (*Stats, error) {
	return ac.cache.Stats(ctx)
}

// Close закрывает нижележащий кэш
func (ac *AssignmentCache) Close() error {
	return ac.cache.Close()
}
