// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config - главная структура конфигурации
type Config struct {
	App      AppConfig      `koanf:"app"`
	Log      LogConfig      `koanf:"log"`
	Solver   SolverConfig   `koanf:"solver"`
	Network  NetworkConfig  `koanf:"network"`
	Input    InputConfig    `koanf:"input"`
	Report   ReportConfig   `koanf:"report"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Tracing  TracingConfig  `koanf:"tracing"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
}

// AppConfig - общие настройки приложения
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
}

// LogConfig - настройки логирования
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file, discard
	FilePath   string `koanf:"file_path"`   // путь к файлу логов
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // количество бэкапов
	MaxAge     int    `koanf:"max_age"`     // дней
	Compress   bool   `koanf:"compress"`
}

// SolverConfig - параметры равновесного распределения (MSA)
type SolverConfig struct {
	MaxIterations     int           `koanf:"max_iterations"`
	Tolerance         float64       `koanf:"tolerance"`
	Workers           int           `koanf:"workers"`        // 0 = runtime.NumCPU()
	ProgressEvery     int           `koanf:"progress_every"` // 0 = каждые 10 итераций
	MaxDuration       time.Duration `koanf:"max_duration"`   // 0 = без ограничения
	UnreachablePolicy string        `koanf:"unreachable_policy"`
	KeepHistory       bool          `koanf:"keep_history"`
}

// NetworkConfig - построение графа
type NetworkConfig struct {
	AllowParallelLinks bool `koanf:"allow_parallel_links"`
}

// InputConfig - входные файлы
type InputConfig struct {
	Name         string `koanf:"name"`
	NetworkFile  string `koanf:"network_file"`
	DemandFile   string `koanf:"demand_file"`
	CentroidFile string `koanf:"centroid_file"`
}

// ReportConfig - выходные отчёты
type ReportConfig struct {
	Formats            []string `koanf:"formats"` // text, csv, json, markdown, excel, pdf
	OutputDir          string   `koanf:"output_dir"`
	Title              string   `koanf:"title"`
	Author             string   `koanf:"author"`
	MaxTableRows       int      `koanf:"max_table_rows"`
	IncludeTravelTimes bool     `koanf:"include_travel_times"`
	RouteCount         int      `koanf:"route_count"` // маршруты крупнейших OD пар, 0 - не выводить
}

// MetricsConfig - настройки Prometheus
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig - настройки OpenTelemetry
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// DatabaseConfig - история прогонов в PostgreSQL
type DatabaseConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DSN возвращает строку подключения
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
	)
}

// CacheConfig - кэш результатов
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // для in-memory
}

// Address возвращает адрес кэша
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var (
	validLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validPolicies = map[string]bool{"fail": true, "skip": true}
	validFormats  = map[string]bool{"text": true, "csv": true, "json": true, "markdown": true, "excel": true, "pdf": true}
)

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	// Solver
	if c.Solver.MaxIterations <= 0 {
		errs = append(errs, fmt.Sprintf("solver.max_iterations must be positive, got %d", c.Solver.MaxIterations))
	}
	if !(c.Solver.Tolerance > 0) {
		errs = append(errs, fmt.Sprintf("solver.tolerance must be positive, got %g", c.Solver.Tolerance))
	}
	if c.Solver.Workers < 0 {
		errs = append(errs, "solver.workers must be non-negative")
	}
	if c.Solver.ProgressEvery < 0 {
		errs = append(errs, "solver.progress_every must be non-negative")
	}
	if c.Solver.MaxDuration < 0 {
		errs = append(errs, "solver.max_duration must be non-negative")
	}
	if !validPolicies[c.Solver.UnreachablePolicy] {
		errs = append(errs, fmt.Sprintf("solver.unreachable_policy must be one of: fail, skip, got %s", c.Solver.UnreachablePolicy))
	}

	// Report
	for _, f := range c.Report.Formats {
		if !validFormats[strings.ToLower(f)] {
			errs = append(errs, fmt.Sprintf("report.formats: unknown format %s", f))
		}
	}
	if c.Report.MaxTableRows < 0 {
		errs = append(errs, "report.max_table_rows must be non-negative")
	}
	if c.Report.RouteCount < 0 {
		errs = append(errs, "report.route_count must be non-negative")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Sprintf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port))
	}

	if c.Cache.Enabled && c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		errs = append(errs, fmt.Sprintf("cache.driver must be one of: memory, redis, got %s", c.Cache.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment проверяет режим разработки
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}
