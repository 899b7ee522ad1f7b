package report

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// MarkdownGenerator генератор Markdown отчётов
type MarkdownGenerator struct {
	BaseGenerator
}

// NewMarkdownGenerator создаёт новый генератор
func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

// Format возвращает формат генератора
func (g *MarkdownGenerator) Format() Format {
	return FormatMarkdown
}

// Generate генерирует Markdown отчёт
func (g *MarkdownGenerator) Generate(ctx context.Context, data *ReportData) ([]byte, error) {
	var buf bytes.Buffer

	g.writeHeader(&buf, data)
	g.writeSummary(&buf, data)
	g.writeCongestion(&buf, data)
	g.writeLinks(&buf, data)
	if g.ShouldIncludeTravelTimes(data) {
		g.writeTravelTimes(&buf, data)
	}
	g.writeRoutes(&buf, data)
	g.writeHistory(&buf, data)
	g.writeDropped(&buf, data)

	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "*Generated by %s*\n", g.GetAuthor(data))

	return buf.Bytes(), nil
}

func (g *MarkdownGenerator) writeHeader(buf *bytes.Buffer, data *ReportData) {
	fmt.Fprintf(buf, "# %s\n\n", g.GetTitle(data))
	fmt.Fprintf(buf, "**Generated:** %s\n\n", g.FormatTimestamp(g.GeneratedAt(data)))
	if data.RunID != "" {
		fmt.Fprintf(buf, "**Run:** `%s`\n\n", data.RunID)
	}
}

func (g *MarkdownGenerator) writeSummary(buf *bytes.Buffer, data *ReportData) {
	s := data.Summary
	buf.WriteString("## Summary\n\n")

	status := "✅ Converged"
	if !s.Converged() {
		status = "⚠️ Iteration limit reached"
	}

	buf.WriteString("| Metric | Value |\n")
	buf.WriteString("|--------|-------|\n")
	fmt.Fprintf(buf, "| Status | %s |\n", status)
	fmt.Fprintf(buf, "| Stop reason | %s |\n", s.StopReason)
	fmt.Fprintf(buf, "| Iterations | %d / %d |\n", s.Iterations, s.MaxIterations)
	fmt.Fprintf(buf, "| Relative gap | %s (tolerance %g) |\n", g.FormatGap(s.RelativeGap), s.Tolerance)
	fmt.Fprintf(buf, "| TSTT | %s |\n", g.FormatFloat(s.TSTT, 4))
	fmt.Fprintf(buf, "| SPTT | %s |\n", g.FormatFloat(s.SPTT, 4))
	fmt.Fprintf(buf, "| Nodes / Links | %d / %d |\n", s.Nodes, s.Links)
	fmt.Fprintf(buf, "| Zones / OD pairs | %d / %d |\n", s.Zones, s.ODPairs)
	fmt.Fprintf(buf, "| Total demand | %s |\n", g.FormatFloat(s.TotalDemand, 2))
	fmt.Fprintf(buf, "| Duration | %s |\n", g.FormatDuration(s.DurationMs))
	if s.CacheHit {
		buf.WriteString("| Cache | hit |\n")
	}
	buf.WriteString("\n")
}

func (g *MarkdownGenerator) writeCongestion(buf *bytes.Buffer, data *ReportData) {
	c := data.Congestion
	if c == nil {
		return
	}
	buf.WriteString("## Congestion\n\n")
	fmt.Fprintf(buf, "- Mean V/C: %s\n", g.FormatFloat(c.MeanVC, 3))
	fmt.Fprintf(buf, "- Max V/C: %s\n", g.FormatFloat(c.MaxVC, 3))
	fmt.Fprintf(buf, "- Congested links (V/C ≥ 1): %d\n", c.CongestedLinks)
	fmt.Fprintf(buf, "- Links without flow: %d\n\n", c.ZeroFlowLinks)

	if len(data.Bottlenecks) > 0 {
		buf.WriteString("### Bottlenecks\n\n")
		buf.WriteString("| Link | From | To | Flow | Capacity | V/C |\n")
		buf.WriteString("|------|------|----|------|----------|-----|\n")
		for _, l := range data.Bottlenecks {
			fmt.Fprintf(buf, "| %d | %d | %d | %.2f | %.2f | %s |\n",
				l.ID, l.From, l.To, l.Flow, l.Capacity, g.FormatPercent(l.VolumeCapacity))
		}
		buf.WriteString("\n")
	}
}

func (g *MarkdownGenerator) writeLinks(buf *bytes.Buffer, data *ReportData) {
	buf.WriteString("## Link Flows\n\n")
	buf.WriteString("| Link | From | To | Flow | Cost | FFT | V/C |\n")
	buf.WriteString("|------|------|----|------|------|-----|-----|\n")

	limit := g.RowLimit(data, len(data.Links))
	for _, l := range data.Links[:limit] {
		fmt.Fprintf(buf, "| %d | %d | %d | %.2f | %.4f | %.4f | %.3f |\n",
			l.ID, l.From, l.To, l.Flow, l.Cost, l.FreeFlowTime, l.VolumeCapacity)
	}
	if limit < len(data.Links) {
		fmt.Fprintf(buf, "\n*... and %d more links*\n", len(data.Links)-limit)
	}
	buf.WriteString("\n")
}

func (g *MarkdownGenerator) writeTravelTimes(buf *bytes.Buffer, data *ReportData) {
	if len(data.TravelTimes) == 0 {
		return
	}
	buf.WriteString("## Travel Times\n\n")
	buf.WriteString("| Origin | Destination | Demand | Time |\n")
	buf.WriteString("|--------|-------------|--------|------|\n")

	limit := g.RowLimit(data, len(data.TravelTimes))
	for _, tt := range data.TravelTimes[:limit] {
		fmt.Fprintf(buf, "| %d | %d | %.2f | %.2f |\n", tt.Origin, tt.Destination, tt.Demand, tt.Time)
	}
	if limit < len(data.TravelTimes) {
		fmt.Fprintf(buf, "\n*... and %d more pairs*\n", len(data.TravelTimes)-limit)
	}
	buf.WriteString("\n")
}

func (g *MarkdownGenerator) writeHistory(buf *bytes.Buffer, data *ReportData) {
	if len(data.History) == 0 {
		return
	}
	buf.WriteString("## Convergence\n\n")
	buf.WriteString("| Iteration | Step | SPTT | TSTT | Relative gap |\n")
	buf.WriteString("|-----------|------|------|------|--------------|\n")
	for _, h := range data.History {
		fmt.Fprintf(buf, "| %d | %.4f | %.4f | %.4f | %s |\n",
			h.Iteration, h.Step, h.SPTT, h.TSTT, g.FormatGap(h.RelativeGap))
	}
	buf.WriteString("\n")
}

func (g *MarkdownGenerator) writeRoutes(buf *bytes.Buffer, data *ReportData) {
	if len(data.Routes) == 0 {
		return
	}
	buf.WriteString("## Routes of the Largest OD Pairs\n\n")
	buf.WriteString("| Origin | Destination | Demand | Cost | Nodes |\n")
	buf.WriteString("|--------|-------------|--------|------|-------|\n")
	for _, r := range data.Routes {
		nodes := make([]string, len(r.Nodes))
		for i, n := range r.Nodes {
			nodes[i] = strconv.FormatInt(n, 10)
		}
		fmt.Fprintf(buf, "| %d | %d | %.2f | %.4f | %s |\n",
			r.Origin, r.Destination, r.Demand, r.Cost, strings.Join(nodes, " → "))
	}
	buf.WriteString("\n")
}

func (g *MarkdownGenerator) writeDropped(buf *bytes.Buffer, data *ReportData) {
	if len(data.Dropped) == 0 {
		return
	}
	fmt.Fprintf(buf, "## Dropped OD Pairs (%d)\n\n", len(data.Dropped))
	for _, p := range data.Dropped {
		fmt.Fprintf(buf, "- %s\n", p)
	}
	buf.WriteString("\n")
}
