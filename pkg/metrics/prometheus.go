package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics глобальный контейнер метрик
type Metrics struct {
	// Решатель
	SolveRunsTotal    *prometheus.CounterVec
	SolveDuration     *prometheus.HistogramVec
	SolveIterations   *prometheus.HistogramVec
	IterationDuration prometheus.Histogram
	RelativeGap       prometheus.Gauge
	TotalTravelTime   prometheus.Gauge
	DroppedODPairs    prometheus.Counter
	ActiveRuns        prometheus.Gauge

	// Входные данные
	NetworkNodes *prometheus.HistogramVec
	NetworkLinks *prometheus.HistogramVec
	ODPairs      prometheus.Histogram

	// Инфраструктура
	CacheLookupsTotal   *prometheus.CounterVec
	HistoryWritesTotal  *prometheus.CounterVec
	ReportsTotal        *prometheus.CounterVec
	ReportDuration      *prometheus.HistogramVec
	CongestedLinksFound prometheus.Histogram

	// Информация о сервисе
	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics инициализирует метрики
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		SolveRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_runs_total",
				Help:      "Total number of assignment runs",
			},
			[]string{"state", "status"},
		),

		SolveDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_duration_seconds",
				Help:      "Duration of assignment runs",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"state"},
		),

		SolveIterations: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_iterations",
				Help:      "Number of MSA iterations per run",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
			},
			[]string{"state"},
		),

		IterationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "aon_duration_seconds",
				Help:      "Duration of one all-or-nothing loading",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),

		RelativeGap: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "relative_gap",
				Help:      "Relative gap of the last finished run",
			},
		),

		TotalTravelTime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "total_system_travel_time",
				Help:      "TSTT of the last finished run",
			},
		),

		DroppedODPairs: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "dropped_od_pairs_total",
				Help:      "OD pairs dropped as unreachable",
			},
		),

		ActiveRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_runs",
				Help:      "Current number of runs being solved",
			},
		),

		NetworkNodes: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "network_nodes",
				Help:      "Number of nodes in loaded networks",
				Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
			},
			[]string{"operation"},
		),

		NetworkLinks: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "network_links",
				Help:      "Number of links in loaded networks",
				Buckets:   []float64{20, 100, 500, 1000, 5000, 10000, 50000, 100000},
			},
			[]string{"operation"},
		),

		ODPairs: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "od_pairs",
				Help:      "Number of assignable OD pairs per run",
				Buckets:   []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
			},
		),

		CacheLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_lookups_total",
				Help:      "Result cache lookups",
			},
			[]string{"result"},
		),

		HistoryWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "history_writes_total",
				Help:      "Run history writes",
			},
			[]string{"status"},
		),

		ReportsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reports_total",
				Help:      "Generated reports",
			},
			[]string{"format", "status"},
		),

		ReportDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "report_duration_seconds",
				Help:      "Report generation and write duration",
				Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"format"},
		),

		CongestedLinksFound: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "congested_links",
				Help:      "Links with volume over capacity >= 1 at the end of a run",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 500},
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get возвращает глобальные метрики
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("trafficassign", "")
	}
	return defaultMetrics
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordSolve записывает итог прогона решателя
func (m *Metrics) RecordSolve(state string, success bool, duration time.Duration, iterations int, gap, tstt float64) {
	m.SolveRunsTotal.WithLabelValues(state, status(success)).Inc()
	m.SolveDuration.WithLabelValues(state).Observe(duration.Seconds())
	if !success {
		return
	}
	m.SolveIterations.WithLabelValues(state).Observe(float64(iterations))
	m.RelativeGap.Set(gap)
	m.TotalTravelTime.Set(tstt)
}

// RecordIteration записывает длительность AON одной итерации
func (m *Metrics) RecordIteration(aon time.Duration) {
	m.IterationDuration.Observe(aon.Seconds())
}

// RecordNetworkSize записывает размер сети
func (m *Metrics) RecordNetworkSize(operation string, nodes, links int) {
	m.NetworkNodes.WithLabelValues(operation).Observe(float64(nodes))
	m.NetworkLinks.WithLabelValues(operation).Observe(float64(links))
}

// RecordODPairs записывает число распределяемых пар
func (m *Metrics) RecordODPairs(n int) {
	m.ODPairs.Observe(float64(n))
}

// RecordDropped учитывает отброшенные недостижимые пары
func (m *Metrics) RecordDropped(n int) {
	m.DroppedODPairs.Add(float64(n))
}

// RecordCacheLookup записывает попадание или промах кэша
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordHistoryWrite записывает результат сохранения истории
func (m *Metrics) RecordHistoryWrite(success bool) {
	m.HistoryWritesTotal.WithLabelValues(status(success)).Inc()
}

// RecordReport записывает генерацию отчёта
func (m *Metrics) RecordReport(format string, success bool) {
	m.ReportsTotal.WithLabelValues(format, status(success)).Inc()
}

// ReportTimer запускает таймер генерации отчёта
func (m *Metrics) ReportTimer(format string) *Timer {
	return NewTimer(m.ReportDuration, format)
}

// RecordCongestion записывает число перегруженных дуг
func (m *Metrics) RecordCongestion(count int) {
	m.CongestedLinksFound.Observe(float64(count))
}

// SetServiceInfo устанавливает информацию о сервисе
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler возвращает HTTP handler для /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer создаёт HTTP сервер метрик и проверки живости
func NewServer(port int, path string) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, ошибка записи не критична
	})

	return &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// StartMetricsServer запускает HTTP сервер для метрик
func StartMetricsServer(port int, path string) error {
	return NewServer(port, path).ListenAndServe()
}
