package report

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// PDFGenerator генератор PDF отчётов
type PDFGenerator struct {
	BaseGenerator
}

// NewPDFGenerator создаёт новый генератор
func NewPDFGenerator() *PDFGenerator {
	return &PDFGenerator{}
}

// Format возвращает формат генератора
func (g *PDFGenerator) Format() Format {
	return FormatPDF
}

// pdfMaxRows лимит строк таблицы в PDF, если в опциях не задан меньший
const pdfMaxRows = 40

// Стили
var (
	primaryColor   = &props.Color{Red: 52, Green: 152, Blue: 219}
	headerBgColor  = &props.Color{Red: 44, Green: 62, Blue: 80}
	successColor   = &props.Color{Red: 39, Green: 174, Blue: 96}
	warningColor   = &props.Color{Red: 243, Green: 156, Blue: 18}
	dangerColor    = &props.Color{Red: 231, Green: 76, Blue: 60}
	lightGrayColor = &props.Color{Red: 236, Green: 240, Blue: 241}
	darkGrayColor  = &props.Color{Red: 127, Green: 140, Blue: 141}

	titleStyle = props.Text{
		Size:  20,
		Style: fontstyle.Bold,
		Align: align.Center,
		Color: headerBgColor,
	}

	h2Style = props.Text{
		Size:  14,
		Style: fontstyle.Bold,
		Color: headerBgColor,
		Top:   4,
	}

	smallStyle = props.Text{
		Size:  8,
		Color: darkGrayColor,
	}

	metricValueStyle = props.Text{
		Size:  14,
		Style: fontstyle.Bold,
		Align: align.Center,
		Color: primaryColor,
	}

	metricLabelStyle = props.Text{
		Size:  8,
		Align: align.Center,
		Color: darkGrayColor,
		Top:   8,
	}

	tableHeaderStyle = &props.Cell{
		BackgroundColor: primaryColor,
	}

	tableHeaderTextStyle = props.Text{
		Size:  9,
		Style: fontstyle.Bold,
		Color: &props.Color{Red: 255, Green: 255, Blue: 255},
		Align: align.Center,
	}

	tableCellStyle = &props.Cell{
		BorderType:  border.Bottom,
		BorderColor: lightGrayColor,
	}

	tableCellTextStyle = props.Text{
		Size:  9,
		Align: align.Center,
	}
)

// Generate генерирует PDF отчёт
func (g *PDFGenerator) Generate(ctx context.Context, data *ReportData) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build()

	m := maroto.New(cfg)

	g.addHeader(m, data)
	g.addSummary(m, data)
	g.addLinks(m, data)
	if g.ShouldIncludeTravelTimes(data) && len(data.TravelTimes) > 0 {
		g.addTravelTimes(m, data)
	}
	if len(data.History) > 0 {
		g.addHistory(m, data)
	}
	g.addFooter(m, data)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return doc.GetBytes(), nil
}

func (g *PDFGenerator) addHeader(m core.Maroto, data *ReportData) {
	m.AddRow(14, text.NewCol(12, g.GetTitle(data), titleStyle))
	m.AddRow(4, line.NewCol(12))
	m.AddRow(6,
		text.NewCol(6, fmt.Sprintf("Author: %s", g.GetAuthor(data)), smallStyle),
		text.NewCol(6, fmt.Sprintf("Generated: %s", g.FormatTimestamp(g.GeneratedAt(data))),
			props.Text{Size: 8, Color: darkGrayColor, Align: align.Right}),
	)
	if data.RunID != "" {
		m.AddRow(5, text.NewCol(12, fmt.Sprintf("Run: %s", data.RunID), smallStyle))
	}
	m.AddRow(6)
}

func (g *PDFGenerator) addSummary(m core.Maroto, data *ReportData) {
	s := data.Summary
	g.addSection(m, "Summary")

	state := metricValueStyle
	state.Color = successColor
	if !s.Converged() {
		state.Color = warningColor
	}
	m.AddRow(18,
		col.New(3).Add(text.New(s.State, state), text.New("State", metricLabelStyle)),
		g.metric(3, fmt.Sprintf("%d", s.Iterations), "Iterations"),
		g.metric(3, g.FormatGap(s.RelativeGap), "Relative Gap"),
		g.metric(3, g.FormatFloat(s.TSTT, 2), "TSTT"),
	)
	m.AddRow(18,
		g.metric(3, fmt.Sprintf("%d", s.Links), "Links"),
		g.metric(3, fmt.Sprintf("%d", s.Zones), "Zones"),
		g.metric(3, g.FormatFloat(s.TotalDemand, 2), "Total Demand"),
		g.metric(3, g.FormatDuration(s.DurationMs), "Duration"),
	)

	if c := data.Congestion; c != nil {
		congested := metricValueStyle
		if c.CongestedLinks > 0 {
			congested.Color = dangerColor
		}
		m.AddRow(18,
			g.metric(4, g.FormatFloat(c.MeanVC, 3), "Mean V/C"),
			g.metric(4, g.FormatFloat(c.MaxVC, 3), "Max V/C"),
			col.New(4).Add(text.New(fmt.Sprintf("%d", c.CongestedLinks), congested), text.New("Congested Links", metricLabelStyle)),
		)
	}
	if len(data.Dropped) > 0 {
		warn := smallStyle
		warn.Color = dangerColor
		m.AddRow(6, text.NewCol(12, fmt.Sprintf("%d OD pairs dropped as unreachable", len(data.Dropped)), warn))
	}
}

func (g *PDFGenerator) metric(size int, value, label string) core.Col {
	return col.New(size).Add(
		text.New(value, metricValueStyle),
		text.New(label, metricLabelStyle),
	)
}

func (g *PDFGenerator) addLinks(m core.Maroto, data *ReportData) {
	g.addSection(m, "Link Flows")
	g.tableHeader(m, "Link", "From", "To", "Flow", "Cost", "V/C")

	limit := g.pdfLimit(data, len(data.Links))
	for _, l := range data.Links[:limit] {
		vcStyle := tableCellTextStyle
		if l.VolumeCapacity >= 1 {
			vcStyle.Color = dangerColor
		}
		m.AddRow(6,
			g.cell(fmt.Sprintf("%d", l.ID)),
			g.cell(fmt.Sprintf("%d", l.From)),
			g.cell(fmt.Sprintf("%d", l.To)),
			g.cell(g.FormatFloat(l.Flow, 2)),
			g.cell(g.FormatFloat(l.Cost, 4)),
			text.NewCol(2, g.FormatFloat(l.VolumeCapacity, 3), vcStyle).WithStyle(tableCellStyle),
		)
	}
	g.addTruncated(m, len(data.Links)-limit, "links")
}

func (g *PDFGenerator) addTravelTimes(m core.Maroto, data *ReportData) {
	g.addSection(m, "Travel Times")
	g.tableHeader(m, "Origin", "Destination", "Demand", "Time")

	limit := g.pdfLimit(data, len(data.TravelTimes))
	for _, tt := range data.TravelTimes[:limit] {
		m.AddRow(6,
			text.NewCol(3, fmt.Sprintf("%d", tt.Origin), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, fmt.Sprintf("%d", tt.Destination), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, g.FormatFloat(tt.Demand, 2), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, g.FormatFloat(tt.Time, 2), tableCellTextStyle).WithStyle(tableCellStyle),
		)
	}
	g.addTruncated(m, len(data.TravelTimes)-limit, "pairs")
}

func (g *PDFGenerator) addHistory(m core.Maroto, data *ReportData) {
	g.addSection(m, "Convergence")
	g.tableHeader(m, "Iteration", "Step", "SPTT", "TSTT")

	limit := g.pdfLimit(data, len(data.History))
	for _, h := range data.History[:limit] {
		m.AddRow(6,
			text.NewCol(3, fmt.Sprintf("%d", h.Iteration), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, g.FormatFloat(h.Step, 4), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, g.FormatFloat(h.SPTT, 2), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, g.FormatFloat(h.TSTT, 2), tableCellTextStyle).WithStyle(tableCellStyle),
		)
	}
	g.addTruncated(m, len(data.History)-limit, "iterations")
}

// tableHeader делит 12 колонок поровну между заголовками
func (g *PDFGenerator) tableHeader(m core.Maroto, titles ...string) {
	size := 12 / len(titles)
	cols := make([]core.Col, 0, len(titles))
	for _, t := range titles {
		cols = append(cols, text.NewCol(size, t, tableHeaderTextStyle).WithStyle(tableHeaderStyle))
	}
	m.AddRow(8, cols...)
}

func (g *PDFGenerator) cell(value string) core.Col {
	return text.NewCol(2, value, tableCellTextStyle).WithStyle(tableCellStyle)
}

func (g *PDFGenerator) pdfLimit(data *ReportData, total int) int {
	return min(g.RowLimit(data, total), pdfMaxRows)
}

func (g *PDFGenerator) addTruncated(m core.Maroto, rest int, what string) {
	if rest <= 0 {
		return
	}
	m.AddRow(6, text.NewCol(12, fmt.Sprintf("... and %d more %s", rest, what), smallStyle))
}

func (g *PDFGenerator) addSection(m core.Maroto, title string) {
	m.AddRow(10, text.NewCol(12, title, h2Style))
	m.AddRow(2, line.NewCol(12, props.Line{Color: primaryColor}))
	m.AddRow(4)
}

func (g *PDFGenerator) addFooter(m core.Maroto, data *ReportData) {
	m.AddRow(10)
	m.AddRow(2, line.NewCol(12, props.Line{Color: lightGrayColor}))
	m.AddRow(6,
		text.NewCol(12,
			fmt.Sprintf("Generated by %s | %s", g.GetAuthor(data), g.FormatTimestamp(g.GeneratedAt(data))),
			props.Text{Size: 8, Color: darkGrayColor, Align: align.Center},
		),
	)
}
