package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Стандартные ключи атрибутов
const (
	// Сеть
	AttrNetworkNodes = "network.nodes"
	AttrNetworkLinks = "network.links"
	AttrNetworkName  = "network.name"

	// Спрос
	AttrDemandZones = "demand.zones"
	AttrDemandPairs = "demand.pairs"
	AttrDemandTotal = "demand.total"

	// Решатель
	AttrSolverState      = "solver.state"
	AttrSolverStopReason = "solver.stop_reason"
	AttrIteration        = "solver.iteration"
	AttrIterations       = "solver.iterations"
	AttrRelativeGap      = "solver.relative_gap"
	AttrTSTT             = "solver.tstt"
	AttrSPTT             = "solver.sptt"
	AttrWorkers          = "solver.workers"
	AttrDroppedPairs     = "solver.dropped_pairs"

	// Инфраструктура
	AttrRunID     = "run.id"
	AttrCacheHit  = "cache.hit"
	AttrReportFmt = "report.format"
)

// NetworkAttributes возвращает атрибуты сети
func NetworkAttributes(name string, nodes, links int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrNetworkName, name),
		attribute.Int(AttrNetworkNodes, nodes),
		attribute.Int(AttrNetworkLinks, links),
	}
}

// DemandAttributes возвращает атрибуты матрицы спроса
func DemandAttributes(zones, pairs int, total float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrDemandZones, zones),
		attribute.Int(AttrDemandPairs, pairs),
		attribute.Float64(AttrDemandTotal, total),
	}
}

// SolverAttributes возвращает атрибуты итога решения
func SolverAttributes(state, stopReason string, iterations int, gap, tstt float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSolverState, state),
		attribute.String(AttrSolverStopReason, stopReason),
		attribute.Int(AttrIterations, iterations),
		attribute.Float64(AttrRelativeGap, gap),
		attribute.Float64(AttrTSTT, tstt),
	}
}

// IterationAttributes атрибуты события одной итерации
func IterationAttributes(iteration int, gap, tstt, sptt float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrIteration, iteration),
		attribute.Float64(AttrRelativeGap, gap),
		attribute.Float64(AttrTSTT, tstt),
		attribute.Float64(AttrSPTT, sptt),
	}
}
