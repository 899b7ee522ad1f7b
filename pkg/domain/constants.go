package domain

import "math"

// flowEpsilon поток меньше этого считается нулевым
const flowEpsilon = 1e-9

// Пороги загрузки (volume/capacity)
const (
	CongestedThreshold        = 1.0
	HighUtilizationThreshold  = 0.9
	DefaultBottleneckTopCount = 5
)

// IsZero проверяет, равен ли поток нулю
func IsZero(v float64) bool {
	return math.Abs(v) < flowEpsilon
}
