package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// JSONGenerator генератор JSON отчётов
type JSONGenerator struct {
	BaseGenerator
}

// NewJSONGenerator создаёт новый генератор
func NewJSONGenerator() *JSONGenerator {
	return &JSONGenerator{}
}

// Format возвращает формат генератора
func (g *JSONGenerator) Format() Format {
	return FormatJSON
}

// JSONReport структура JSON отчёта
type JSONReport struct {
	Metadata    JSONMetadata      `json:"metadata"`
	Summary     JSONSummary       `json:"summary"`
	Congestion  *JSONCongestion   `json:"congestion,omitempty"`
	Links       []JSONLink        `json:"links"`
	TravelTimes []JSONTravelTime  `json:"travelTimes,omitempty"`
	Routes      []JSONRoute       `json:"routes,omitempty"`
	History     []JSONIteration   `json:"history,omitempty"`
	Dropped     []JSONDroppedPair `json:"droppedPairs,omitempty"`
}

type JSONMetadata struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Name        string `json:"name,omitempty"`
	RunID       string `json:"runId,omitempty"`
	GeneratedAt string `json:"generatedAt"`
}

type JSONSummary struct {
	State         string  `json:"state"`
	StopReason    string  `json:"stopReason"`
	Iterations    int     `json:"iterations"`
	RelativeGap   float64 `json:"relativeGap"`
	SPTT          float64 `json:"sptt"`
	TSTT          float64 `json:"tstt"`
	DurationMs    float64 `json:"durationMs"`
	MaxIterations int     `json:"maxIterations"`
	Tolerance     float64 `json:"tolerance"`
	Nodes         int     `json:"nodes"`
	Links         int     `json:"links"`
	Zones         int     `json:"zones"`
	ODPairs       int     `json:"odPairs"`
	TotalDemand   float64 `json:"totalDemand"`
	CacheHit      bool    `json:"cacheHit"`
}

type JSONCongestion struct {
	TotalFlow       float64 `json:"totalFlow"`
	VehicleDistance float64 `json:"vehicleDistance"`
	MeanVC          float64 `json:"meanVC"`
	MaxVC           float64 `json:"maxVC"`
	CongestedLinks  int     `json:"congestedLinks"`
	HighVCLinks     int     `json:"highVCLinks"`
	ZeroFlowLinks   int     `json:"zeroFlowLinks"`
	Bottlenecks     []int   `json:"bottlenecks,omitempty"`
}

type JSONLink struct {
	ID             int     `json:"id"`
	From           int64   `json:"from"`
	To             int64   `json:"to"`
	Capacity       float64 `json:"capacity"`
	FreeFlowTime   float64 `json:"freeFlowTime"`
	Flow           float64 `json:"flow"`
	Cost           float64 `json:"cost"`
	VolumeCapacity float64 `json:"volumeCapacity"`
}

type JSONTravelTime struct {
	Origin      int64   `json:"origin"`
	Destination int64   `json:"destination"`
	Demand      float64 `json:"demand"`
	Time        float64 `json:"time"`
}

type JSONRoute struct {
	Origin      int64   `json:"origin"`
	Destination int64   `json:"destination"`
	Demand      float64 `json:"demand"`
	Cost        float64 `json:"cost"`
	Nodes       []int64 `json:"nodes"`
	Links       []int   `json:"links"`
}

type JSONIteration struct {
	Iteration   int     `json:"iteration"`
	Step        float64 `json:"step"`
	SPTT        float64 `json:"sptt"`
	TSTT        float64 `json:"tstt"`
	RelativeGap float64 `json:"relativeGap"`
	ElapsedMs   float64 `json:"elapsedMs"`
}

type JSONDroppedPair struct {
	Origin      int64 `json:"origin"`
	Destination int64 `json:"destination"`
}

// Generate генерирует JSON отчёт
func (g *JSONGenerator) Generate(ctx context.Context, data *ReportData) ([]byte, error) {
	s := data.Summary
	report := JSONReport{
		Metadata: JSONMetadata{
			Title:       g.GetTitle(data),
			Author:      g.GetAuthor(data),
			Name:        data.Name,
			RunID:       data.RunID,
			GeneratedAt: g.GeneratedAt(data).UTC().Format(time.RFC3339),
		},
		Summary: JSONSummary{
			State:         s.State,
			StopReason:    s.StopReason,
			Iterations:    s.Iterations,
			RelativeGap:   s.RelativeGap,
			SPTT:          s.SPTT,
			TSTT:          s.TSTT,
			DurationMs:    s.DurationMs,
			MaxIterations: s.MaxIterations,
			Tolerance:     s.Tolerance,
			Nodes:         s.Nodes,
			Links:         s.Links,
			Zones:         s.Zones,
			ODPairs:       s.ODPairs,
			TotalDemand:   s.TotalDemand,
			CacheHit:      s.CacheHit,
		},
		Links: make([]JSONLink, 0, len(data.Links)),
	}

	if c := data.Congestion; c != nil {
		report.Congestion = &JSONCongestion{
			TotalFlow:       c.TotalFlow,
			VehicleDistance: c.VehicleDistance,
			MeanVC:          c.MeanVC,
			MaxVC:           c.MaxVC,
			CongestedLinks:  c.CongestedLinks,
			HighVCLinks:     c.HighVCLinks,
			ZeroFlowLinks:   c.ZeroFlowLinks,
		}
		for _, id := range c.Bottlenecks {
			report.Congestion.Bottlenecks = append(report.Congestion.Bottlenecks, int(id))
		}
	}

	for _, l := range data.Links {
		report.Links = append(report.Links, JSONLink{
			ID:             int(l.ID),
			From:           l.From,
			To:             l.To,
			Capacity:       l.Capacity,
			FreeFlowTime:   l.FreeFlowTime,
			Flow:           l.Flow,
			Cost:           l.Cost,
			VolumeCapacity: l.VolumeCapacity,
		})
	}

	if g.ShouldIncludeTravelTimes(data) {
		for _, tt := range data.TravelTimes {
			report.TravelTimes = append(report.TravelTimes, JSONTravelTime(tt))
		}
	}
	for _, r := range data.Routes {
		route := JSONRoute{
			Origin:      r.Origin,
			Destination: r.Destination,
			Demand:      r.Demand,
			Cost:        r.Cost,
			Nodes:       r.Nodes,
			Links:       make([]int, 0, len(r.Links)),
		}
		for _, id := range r.Links {
			route.Links = append(route.Links, int(id))
		}
		report.Routes = append(report.Routes, route)
	}
	for _, h := range data.History {
		report.History = append(report.History, JSONIteration(h))
	}
	for _, p := range data.Dropped {
		report.Dropped = append(report.Dropped, JSONDroppedPair{Origin: p.Origin, Destination: p.Destination})
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json marshal error: %w", err)
	}
	return out, nil
}
