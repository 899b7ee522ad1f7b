package report

import (
	"bytes"
	"context"
	"fmt"
	"text/tabwriter"
)

// TextGenerator консольная сводка: итог, потоки по дугам, времена OD
type TextGenerator struct {
	BaseGenerator
}

// NewTextGenerator создаёт новый генератор
func NewTextGenerator() *TextGenerator {
	return &TextGenerator{}
}

// Format возвращает формат генератора
func (g *TextGenerator) Format() Format {
	return FormatText
}

// Generate генерирует текстовый отчёт
func (g *TextGenerator) Generate(ctx context.Context, data *ReportData) ([]byte, error) {
	var buf bytes.Buffer
	s := data.Summary

	fmt.Fprintf(&buf, "%s\n\n", g.GetTitle(data))
	fmt.Fprintf(&buf, "MSA completed in %d iterations with a final relative gap of %s\n",
		s.Iterations, g.FormatGap(s.RelativeGap))
	fmt.Fprintf(&buf, "State: %s (%s)\n", s.State, s.StopReason)
	fmt.Fprintf(&buf, "TSTT: %s  SPTT: %s\n", g.FormatFloat(s.TSTT, 4), g.FormatFloat(s.SPTT, 4))
	if s.CacheHit {
		buf.WriteString("Result served from cache\n")
	}
	if len(data.Dropped) > 0 {
		fmt.Fprintf(&buf, "Dropped OD pairs: %d\n", len(data.Dropped))
	}

	buf.WriteString("\nFinal Link Flows:\n")
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Link\tFrom\tTo\tFlow\tCost\tV/C\t")
	limit := g.RowLimit(data, len(data.Links))
	for _, l := range data.Links[:limit] {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.2f\t%.4f\t%.3f\t\n", l.ID, l.From, l.To, l.Flow, l.Cost, l.VolumeCapacity)
	}
	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("text write error: %w", err)
	}
	if limit < len(data.Links) {
		fmt.Fprintf(&buf, "... and %d more links\n", len(data.Links)-limit)
	}

	if g.ShouldIncludeTravelTimes(data) && len(data.TravelTimes) > 0 {
		buf.WriteString("\nMinimum Travel Times (OD Pairs):\n")
		limit = g.RowLimit(data, len(data.TravelTimes))
		for _, tt := range data.TravelTimes[:limit] {
			fmt.Fprintf(&buf, "OD Pair (%d, %d): Travel Time = %.2f\n", tt.Origin, tt.Destination, tt.Time)
		}
		if limit < len(data.TravelTimes) {
			fmt.Fprintf(&buf, "... and %d more pairs\n", len(data.TravelTimes)-limit)
		}
	}

	return buf.Bytes(), nil
}
