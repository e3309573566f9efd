package pricing

import (
	"vrppricing/internal/graph"
	"vrppricing/internal/model"
)

// refine post-processes a found route when time-window violation is allowed:
// a 2-opt pass reorders the customer sequence by pure distance, then the
// schedule is re-walked and waiting/lateness converted into soft penalty
// cost. Cost and reduced cost are recomputed for the final ordering.
func (s *Solver) refine(r *model.Route, duals map[string]float64) {
	if len(r.Path) <= 3 {
		s.penalize(r, duals)
		return
	}
	ids := make([]int32, len(r.Path))
	for i, id := range r.Path {
		ids[i] = s.g.NodeIndex(id)
	}

	best := append([]int32(nil), ids...)
	bestDist := s.pathDistKm(best)
	improved := true
	for improved {
		improved = false
		// Endpoints are the depot; only interior customers move.
		for i := 1; i < len(best)-2; i++ {
			for j := i + 1; j < len(best)-1; j++ {
				cand := append([]int32(nil), best...)
				for a, b := i, j; a < b; a, b = a+1, b-1 {
					cand[a], cand[b] = cand[b], cand[a]
				}
				if d := s.pathDistKm(cand); d+1e-9 < bestDist {
					best = cand
					bestDist = d
					improved = true
				}
			}
		}
	}

	for i, idx := range best {
		r.Path[i] = s.g.Nodes[idx].ID
	}
	s.penalize(r, duals)
}

// penalize rewalks the schedule of r.Path, recomputes plain and reduced cost
// from the final arc sequence, and accumulates per-minute soft penalties for
// waiting, late arrival, and service running past the window.
func (s *Solver) penalize(r *model.Route, duals map[string]float64) {
	pen := s.inst.Penalties
	cost := 0.0
	dualSum := 0.0
	penalty := 0.0
	elapsed := 0.0

	prev := s.g.NodeIndex(r.Path[0])
	for _, id := range r.Path[1:] {
		cur := s.g.NodeIndex(id)
		arc, ok := s.g.ArcBetween(prev, cur)
		if !ok {
			return // sparse graph dropped this arc; keep labeling accounting
		}
		cost += arc.Cost
		elapsed += arc.TravelS

		node := &s.g.Nodes[cur]
		if node.Kind == graph.KindCustomer {
			dualSum += duals[node.RawID]
			if wait := node.WindowStart - elapsed; wait > 0 {
				penalty += pen.WaitingPerMinute * wait / 60
				elapsed = node.WindowStart
			}
			if late := elapsed - node.WindowEnd; late > 0 {
				penalty += pen.LateArrivalPerMinute * late / 60
			}
			elapsed += node.ServiceSec
			if over := elapsed - node.WindowEnd; over > 0 {
				penalty += pen.LateServicePerMinute * over / 60
			}
		}
		prev = cur
	}

	r.Cost = cost
	r.ReducedCost = cost - dualSum
	r.PenaltyCost = penalty
}

func (s *Solver) pathDistKm(ids []int32) float64 {
	total := 0.0
	for i := 0; i+1 < len(ids); i++ {
		if arc, ok := s.g.ArcBetween(ids[i], ids[i+1]); ok {
			total += arc.DistKm
		} else {
			a, b := s.g.Nodes[ids[i]], s.g.Nodes[ids[i+1]]
			total += graph.HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
		}
	}
	return total
}
