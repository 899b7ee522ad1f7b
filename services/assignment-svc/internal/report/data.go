package report

import (
	"time"

	"trafficassign/pkg/domain"
	"trafficassign/services/assignment-svc/internal/assignment"
)

// Input исходные данные для сборки ReportData
type Input struct {
	Name     string
	RunID    string
	Network  *domain.Network
	Zones    *domain.ZoneCentroidMap
	Demand   *domain.DemandMatrix
	Result   *assignment.Result
	Solver   assignment.Options
	CacheHit bool
	Options  *Options
}

// Build собирает ReportData из результата решения.
// Сеть должна нести потоки и стоимости результата: по ним считается загрузка.
func Build(in Input) *ReportData {
	res := in.Result
	net := in.Network

	data := &ReportData{
		Name:        in.Name,
		RunID:       in.RunID,
		GeneratedAt: time.Now(),
		Options:     in.Options,
		Summary: Summary{
			State:         res.State.String(),
			StopReason:    string(res.StopReason),
			Iterations:    res.Iterations,
			RelativeGap:   res.RelativeGap,
			SPTT:          res.SPTT,
			TSTT:          res.TSTT,
			DurationMs:    float64(res.Duration.Microseconds()) / 1000,
			MaxIterations: in.Solver.MaxIterations,
			Tolerance:     in.Solver.Tolerance,
			Workers:       in.Solver.Workers,
			Nodes:         net.NodeCount(),
			Links:         net.LinkCount(),
			CacheHit:      in.CacheHit,
		},
		Network:    domain.CalculateNetworkStatistics(net),
		Congestion: domain.CalculateFlowStatistics(net, domain.DefaultBottleneckTopCount),
		Dropped:    res.Dropped,
	}
	if in.Zones != nil {
		data.Summary.Zones = in.Zones.Len()
	}
	if in.Demand != nil {
		data.Summary.ODPairs = len(in.Demand.Pairs())
		data.Summary.TotalDemand = in.Demand.Total()
	}

	data.Links = make([]LinkRow, 0, net.LinkCount())
	for _, l := range net.Links() {
		data.Links = append(data.Links, linkRow(l, res))
	}
	for _, id := range data.Congestion.Bottlenecks {
		data.Bottlenecks = append(data.Bottlenecks, data.Links[id])
	}

	for _, p := range res.TravelTimes.Pairs() {
		row := TravelTimeRow{Origin: p.Origin, Destination: p.Destination, Time: res.TravelTimes[p]}
		if in.Demand != nil {
			row.Demand, _ = in.Demand.Get(p.Origin, p.Destination)
		}
		data.TravelTimes = append(data.TravelTimes, row)
	}

	if in.Options != nil {
		data.Routes = buildRoutes(net, in.Zones, in.Demand, in.Options.RouteCount)
	}

	for _, h := range res.History {
		data.History = append(data.History, IterationRow{
			Iteration:   h.Iteration,
			Step:        h.Step,
			SPTT:        h.SPTT,
			TSTT:        h.TSTT,
			RelativeGap: h.RelativeGap,
			ElapsedMs:   float64(h.Elapsed.Microseconds()) / 1000,
		})
	}

	return data
}

func linkRow(l domain.Link, res *assignment.Result) LinkRow {
	row := LinkRow{
		ID:           l.ID,
		From:         l.From,
		To:           l.To,
		Capacity:     l.Capacity,
		FreeFlowTime: l.FreeFlowTime,
		Cost:         l.FreeFlowTime,
	}
	if int(l.ID) < len(res.Flows) {
		row.Flow = res.Flows[l.ID]
	}
	if int(l.ID) < len(res.Costs) {
		row.Cost = res.Costs[l.ID]
	}
	row.VolumeCapacity = row.Flow / l.Capacity
	return row
}
