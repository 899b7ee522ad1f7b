package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
)

// CSVGenerator генератор CSV отчётов: таблица дуг, затем таблица OD
type CSVGenerator struct {
	BaseGenerator
}

// NewCSVGenerator создаёт новый генератор
func NewCSVGenerator() *CSVGenerator {
	return &CSVGenerator{}
}

// Format возвращает формат генератора
func (g *CSVGenerator) Format() Format {
	return FormatCSV
}

// csvWriter запоминает первую ошибку записи
type csvWriter struct {
	w   *csv.Writer
	err error
}

func (cw *csvWriter) Write(record ...string) {
	if cw.err != nil {
		return
	}
	cw.err = cw.w.Write(record)
}

func (cw *csvWriter) Flush() error {
	if cw.err != nil {
		return cw.err
	}
	cw.w.Flush()
	return cw.w.Error()
}

// Generate генерирует CSV отчёт
func (g *CSVGenerator) Generate(ctx context.Context, data *ReportData) ([]byte, error) {
	var buf bytes.Buffer
	cw := &csvWriter{w: csv.NewWriter(&buf)}

	cw.Write("link_id", "init_node", "term_node", "capacity", "free_flow_time", "flow", "cost", "volume_capacity")
	for _, l := range data.Links {
		cw.Write(
			strconv.Itoa(int(l.ID)),
			strconv.FormatInt(l.From, 10),
			strconv.FormatInt(l.To, 10),
			ftoa(l.Capacity),
			ftoa(l.FreeFlowTime),
			ftoa(l.Flow),
			ftoa(l.Cost),
			ftoa(l.VolumeCapacity),
		)
	}

	if g.ShouldIncludeTravelTimes(data) && len(data.TravelTimes) > 0 {
		cw.Write()
		cw.Write("origin", "destination", "demand", "travel_time")
		for _, tt := range data.TravelTimes {
			cw.Write(
				strconv.FormatInt(tt.Origin, 10),
				strconv.FormatInt(tt.Destination, 10),
				ftoa(tt.Demand),
				ftoa(tt.Time),
			)
		}
	}

	if err := cw.Flush(); err != nil {
		return nil, fmt.Errorf("csv write error: %w", err)
	}
	return buf.Bytes(), nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
