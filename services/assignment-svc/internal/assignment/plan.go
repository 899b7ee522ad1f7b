package assignment

import (
	"trafficassign/pkg/apperror"
	"trafficassign/pkg/domain"
)

// destDemand одна распределяемая пара внутри задачи по зоне отправления
type destDemand struct {
	zone      int64
	centroids []int64
	demand    float64
}

// originTask работа по одной зоне отправления
type originTask struct {
	zone      int64
	centroids []int64
	dests     []destDemand
}

// Plan is the fixed list of assignable OD pairs grouped by origin zone.
//
// Origins and destinations are in ascending zone order. Pairs listed in
// Excluded were removed before planning and carry no flow.
type Plan struct {
	origins  []originTask
	pairs    int
	total    float64
	Excluded []domain.ODPair
}

// Origins number of origin zones with positive demand
func (p *Plan) Origins() int { return len(p.origins) }

// Pairs number of assignable OD pairs
func (p *Plan) Pairs() int { return p.pairs }

// TotalDemand sum of assignable demand
func (p *Plan) TotalDemand() float64 { return p.total }

// BuildPlan groups the assignable demand by origin and resolves zone
// centroids. Every zone taking part in a positive OD pair must have
// centroids (UNKNOWN_ZONE) and each centroid must be a node of net
// (UNKNOWN_NODE). Pairs in exclude are left out of the plan.
func BuildPlan(net *domain.Network, zones *domain.ZoneCentroidMap, demand *domain.DemandMatrix, exclude []domain.ODPair) (*Plan, error) {
	if net == nil || zones == nil || demand == nil {
		return nil, apperror.New(apperror.CodeNilInput, "network, zones and demand are required")
	}

	skip := make(map[domain.ODPair]bool, len(exclude))
	for _, p := range exclude {
		skip[p] = true
	}

	ve := apperror.NewValidationErrors()
	checked := make(map[int64]bool)
	resolve := func(zone int64) []int64 {
		c, ok := zones.Centroids(zone)
		if checked[zone] {
			return c
		}
		checked[zone] = true
		if !ok {
			ve.Add(apperror.Newf(apperror.CodeUnknownZone, "zone %d has demand but no centroid", zone).
				WithDetails("zone", zone))
			return nil
		}
		for _, node := range c {
			if !net.HasNode(node) {
				ve.Add(apperror.Newf(apperror.CodeUnknownNode,
					"centroid %d of zone %d is not a network node", node, zone).
					WithDetails("zone", zone).
					WithDetails("node", node))
			}
		}
		return c
	}

	plan := &Plan{Excluded: append([]domain.ODPair(nil), exclude...)}
	for _, o := range demand.Origins() {
		task := originTask{zone: o, centroids: resolve(o)}
		for _, d := range demand.Destinations(o) {
			p := domain.ODPair{Origin: o, Destination: d}
			dc := resolve(d)
			if skip[p] {
				continue
			}
			v, _ := demand.Demand(o, d)
			task.dests = append(task.dests, destDemand{zone: d, centroids: dc, demand: v})
			plan.pairs++
			plan.total += v
		}
		if len(task.dests) > 0 {
			plan.origins = append(plan.origins, task)
		}
	}

	if ve.HasErrors() {
		return nil, ve.Err(ve.Errors[0].Code, "demand references zones that cannot be placed on the network")
	}
	return plan, nil
}
