package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Листы книги
const (
	sheetSummary     = "Summary"
	sheetLinks       = "Link Flows"
	sheetTravelTimes = "Travel Times"
	sheetHistory     = "Convergence"
)

// ExcelGenerator генератор Excel отчётов
type ExcelGenerator struct {
	BaseGenerator
}

// NewExcelGenerator создаёт новый генератор
func NewExcelGenerator() *ExcelGenerator {
	return &ExcelGenerator{}
}

// Format возвращает формат генератора
func (g *ExcelGenerator) Format() Format {
	return FormatExcel
}

// sheetWriter запоминает первую ошибку excelize
type sheetWriter struct {
	f           *excelize.File
	headerStyle int
	err         error
}

func (w *sheetWriter) sheet(name string) {
	if w.err != nil {
		return
	}
	_, w.err = w.f.NewSheet(name)
}

func (w *sheetWriter) row(sheet string, row int, values ...any) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetSheetRow(sheet, Cell("A", row), &values)
}

func (w *sheetWriter) header(sheet string, row int, titles ...string) {
	values := make([]any, len(titles))
	for i, t := range titles {
		values[i] = t
	}
	w.row(sheet, row, values...)
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellStyle(sheet, Cell("A", row), CellByIndex(len(titles)-1, row), w.headerStyle)
	if w.err != nil {
		return
	}
	w.err = w.f.SetColWidth(sheet, "A", ColName(len(titles)-1), 16)
	if w.err != nil {
		return
	}
	w.err = w.f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      row,
		TopLeftCell: Cell("A", row+1),
		ActivePane:  "bottomLeft",
	})
}

// Generate генерирует Excel отчёт
func (g *ExcelGenerator) Generate(ctx context.Context, data *ReportData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("excel style error: %w", err)
	}
	w := &sheetWriter{f: f, headerStyle: headerStyle}

	g.writeSummary(w, data)
	g.writeLinks(w, data)
	if g.ShouldIncludeTravelTimes(data) && len(data.TravelTimes) > 0 {
		g.writeTravelTimes(w, data)
	}
	if len(data.History) > 0 {
		g.writeHistory(w, data)
	}
	if w.err != nil {
		return nil, fmt.Errorf("excel write error: %w", w.err)
	}

	// Удаляем дефолтный лист, активным делаем сводку
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("excel write error: %w", err)
	}
	if idx, err := f.GetSheetIndex(sheetSummary); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *ExcelGenerator) writeSummary(w *sheetWriter, data *ReportData) {
	s := data.Summary
	w.sheet(sheetSummary)
	w.row(sheetSummary, 1, g.GetTitle(data))
	w.row(sheetSummary, 2, "Generated", g.FormatTimestamp(g.GeneratedAt(data)))
	w.header(sheetSummary, 4, "Metric", "Value")

	rows := [][]any{
		{"Run", data.RunID},
		{"State", s.State},
		{"Stop reason", s.StopReason},
		{"Iterations", s.Iterations},
		{"Max iterations", s.MaxIterations},
		{"Relative gap", s.RelativeGap},
		{"Tolerance", s.Tolerance},
		{"TSTT", s.TSTT},
		{"SPTT", s.SPTT},
		{"Nodes", s.Nodes},
		{"Links", s.Links},
		{"Zones", s.Zones},
		{"OD pairs", s.ODPairs},
		{"Total demand", s.TotalDemand},
		{"Dropped OD pairs", len(data.Dropped)},
		{"Duration (ms)", s.DurationMs},
		{"Cache hit", s.CacheHit},
	}
	if c := data.Congestion; c != nil {
		rows = append(rows,
			[]any{"Mean V/C", c.MeanVC},
			[]any{"Max V/C", c.MaxVC},
			[]any{"Congested links", c.CongestedLinks},
			[]any{"Vehicle distance", c.VehicleDistance},
		)
	}
	for i, r := range rows {
		w.row(sheetSummary, 5+i, r...)
	}
}

func (g *ExcelGenerator) writeLinks(w *sheetWriter, data *ReportData) {
	w.sheet(sheetLinks)
	w.header(sheetLinks, 1, "Link", "From", "To", "Capacity", "Free Flow Time", "Flow", "Cost", "V/C")
	for i, l := range data.Links {
		w.row(sheetLinks, i+2, int(l.ID), l.From, l.To, l.Capacity, l.FreeFlowTime, l.Flow, l.Cost, l.VolumeCapacity)
	}
}

func (g *ExcelGenerator) writeTravelTimes(w *sheetWriter, data *ReportData) {
	w.sheet(sheetTravelTimes)
	w.header(sheetTravelTimes, 1, "Origin", "Destination", "Demand", "Travel Time")
	for i, tt := range data.TravelTimes {
		w.row(sheetTravelTimes, i+2, tt.Origin, tt.Destination, tt.Demand, tt.Time)
	}
}

func (g *ExcelGenerator) writeHistory(w *sheetWriter, data *ReportData) {
	w.sheet(sheetHistory)
	w.header(sheetHistory, 1, "Iteration", "Step", "SPTT", "TSTT", "Relative Gap", "Elapsed (ms)")
	for i, h := range data.History {
		w.row(sheetHistory, i+2, h.Iteration, h.Step, h.SPTT, h.TSTT, h.RelativeGap, h.ElapsedMs)
	}
}

// ColName преобразует индекс колонки в буквенное обозначение (0 -> A, 25 -> Z, 26 -> AA)
func ColName(index int) string {
	result := ""
	for {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return result
}

// Cell возвращает адрес ячейки
func Cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

// CellByIndex возвращает адрес ячейки по индексам
func CellByIndex(colIndex, rowIndex int) string {
	return fmt.Sprintf("%s%d", ColName(colIndex), rowIndex)
}
