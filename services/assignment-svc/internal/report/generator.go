package report

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"trafficassign/pkg/apperror"
	"trafficassign/pkg/domain"
)

// Format формат отчёта
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatExcel    Format = "excel"
	FormatPDF      Format = "pdf"
)

// Extension расширение файла для формата
func (f Format) Extension() string {
	switch f {
	case FormatText:
		return ".txt"
	case FormatMarkdown:
		return ".md"
	case FormatExcel:
		return ".xlsx"
	default:
		return "." + string(f)
	}
}

// Formats все поддерживаемые форматы
func Formats() []Format {
	return []Format{FormatText, FormatCSV, FormatJSON, FormatMarkdown, FormatExcel, FormatPDF}
}

// ParseFormat разбирает имя формата (регистр не важен, допускаются md и xlsx)
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "md":
		return FormatMarkdown, nil
	case "xlsx":
		return FormatExcel, nil
	case "txt":
		return FormatText, nil
	}
	f := Format(name)
	if !slices.Contains(Formats(), f) {
		return "", apperror.NewWithField(apperror.CodeInvalidArgument,
			fmt.Sprintf("unknown report format %q", s), "report.formats")
	}
	return f, nil
}

// Options параметры оформления отчёта
type Options struct {
	Title              string
	Author             string
	MaxTableRows       int // 0 - без ограничения
	IncludeTravelTimes bool
	RouteCount         int // маршруты крупнейших по спросу пар, 0 - без маршрутов
}

// Summary итог прогона
type Summary struct {
	State         string
	StopReason    string
	Iterations    int
	RelativeGap   float64
	SPTT          float64
	TSTT          float64
	DurationMs    float64
	MaxIterations int
	Tolerance     float64
	Workers       int
	Nodes         int
	Links         int
	Zones         int
	ODPairs       int
	TotalDemand   float64
	CacheHit      bool
}

// LinkRow строка таблицы дуг
type LinkRow struct {
	ID             domain.LinkID
	From           int64
	To             int64
	Capacity       float64
	FreeFlowTime   float64
	Flow           float64
	Cost           float64
	VolumeCapacity float64
}

// TravelTimeRow время в пути между зонами
type TravelTimeRow struct {
	Origin      int64
	Destination int64
	Demand      float64
	Time        float64
}

// IterationRow строка истории сходимости
type IterationRow struct {
	Iteration   int
	Step        float64
	SPTT        float64
	TSTT        float64
	RelativeGap float64
	ElapsedMs   float64
}

// ReportData данные для генерации отчёта
type ReportData struct {
	Name        string
	RunID       string
	GeneratedAt time.Time
	Options     *Options

	Summary     Summary
	Network     *domain.NetworkStatistics
	Congestion  *domain.FlowStatistics
	Links       []LinkRow
	Bottlenecks []LinkRow
	TravelTimes []TravelTimeRow
	Routes      []RouteRow
	History     []IterationRow
	Dropped     []domain.ODPair
}

// Generator интерфейс генератора отчётов
type Generator interface {
	Generate(ctx context.Context, data *ReportData) ([]byte, error)
	Format() Format
}

// New возвращает генератор для формата
func New(format Format) (Generator, error) {
	switch format {
	case FormatText:
		return NewTextGenerator(), nil
	case FormatCSV:
		return NewCSVGenerator(), nil
	case FormatJSON:
		return NewJSONGenerator(), nil
	case FormatMarkdown:
		return NewMarkdownGenerator(), nil
	case FormatExcel:
		return NewExcelGenerator(), nil
	case FormatPDF:
		return NewPDFGenerator(), nil
	default:
		return nil, apperror.Newf(apperror.CodeInvalidArgument, "unknown report format %q", format)
	}
}

// BaseGenerator базовые утилиты для генераторов
type BaseGenerator struct{}

// GetTitle возвращает заголовок отчёта
func (b *BaseGenerator) GetTitle(data *ReportData) string {
	if data.Options != nil && data.Options.Title != "" {
		return data.Options.Title
	}
	if data.Name != "" {
		return "Traffic Assignment Report: " + data.Name
	}
	return "Traffic Assignment Report"
}

// GetAuthor возвращает автора отчёта
func (b *BaseGenerator) GetAuthor(data *ReportData) string {
	if data.Options != nil && data.Options.Author != "" {
		return data.Options.Author
	}
	return "trafficassign"
}

// ShouldIncludeTravelTimes нужно ли выводить таблицу OD
func (b *BaseGenerator) ShouldIncludeTravelTimes(data *ReportData) bool {
	if data.Options == nil {
		return true
	}
	return data.Options.IncludeTravelTimes
}

// RowLimit сколько строк таблицы выводить из total
func (b *BaseGenerator) RowLimit(data *ReportData, total int) int {
	if data.Options == nil || data.Options.MaxTableRows <= 0 || data.Options.MaxTableRows > total {
		return total
	}
	return data.Options.MaxTableRows
}

// GeneratedAt время генерации; нулевое заменяется текущим
func (b *BaseGenerator) GeneratedAt(data *ReportData) time.Time {
	if data.GeneratedAt.IsZero() {
		return time.Now()
	}
	return data.GeneratedAt
}

// FormatFloat форматирует число с заданной точностью
func (b *BaseGenerator) FormatFloat(v float64, precision int) string {
	return fmt.Sprintf("%.*f", precision, v)
}

// FormatPercent форматирует долю как процент
func (b *BaseGenerator) FormatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// FormatGap форматирует относительный разрыв
func (b *BaseGenerator) FormatGap(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

// FormatDuration форматирует длительность
func (b *BaseGenerator) FormatDuration(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.2f ms", ms)
	}
	return fmt.Sprintf("%.2f s", ms/1000)
}

// FormatTimestamp форматирует время
func (b *BaseGenerator) FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// Converged сошёлся ли прогон
func (s Summary) Converged() bool {
	return s.State == "converged"
}
