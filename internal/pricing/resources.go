package pricing

import "vrppricing/internal/graph"

// dominates reports whether a dominates b at the same node: no worse on every
// resource component. In elementary mode a must additionally have visited a
// subset of b's customers, otherwise pruning b could discard the only label
// able to reach a customer a has already used. Equality on all components
// counts as dominance so duplicate states collapse onto the incumbent.
//
// Every component is monotone under extension (cost and time only grow by the
// same arc amounts, load and stops by the same node amounts, visited sets stay
// ordered by inclusion), which is what makes discarding b safe.
func dominates(a, b *label, elementary bool) bool {
	if a.rcost > b.rcost || a.elapsed > b.elapsed || a.load > b.load || a.stops > b.stops {
		return false
	}
	if elementary && !a.visited.subsetOf(b.visited) {
		return false
	}
	return true
}

// extend produces the successor of l along arc, or ok=false when capacity,
// time window, max-stops, or elementarity is violated. Pure: it reads l and
// shared immutable data only, so extensions may run in parallel.
func (s *search) extend(l *label, arc graph.Arc) (label, bool) {
	head := &s.g.Nodes[arc.To]
	custOff := int(arc.To) - s.g.Warehouses

	if int(l.stops) >= s.cfg.MaxStops {
		return label{}, false
	}
	if s.cfg.Elementary && l.visited.get(custOff) {
		return label{}, false
	}

	arrival := l.elapsed + arc.TravelS
	if arrival < head.WindowStart {
		arrival = head.WindowStart // wait for the window to open
	}
	if arrival > head.WindowEnd {
		return label{}, false
	}
	serviceEnd := arrival + head.ServiceSec
	if serviceEnd > head.WindowEnd {
		return label{}, false
	}
	load := l.load + head.Demand
	if load > s.cfg.MaxCapacity {
		return label{}, false
	}

	next := label{
		node:    arc.To,
		pred:    -1, // caller fills in the predecessor handle
		rcost:   l.rcost + arc.Reduced,
		cost:    l.cost + arc.Cost,
		elapsed: serviceEnd,
		load:    load,
		stops:   l.stops + 1,
	}
	if l.visited != nil {
		next.visited = l.visited.clone()
		next.visited.set(custOff)
	}
	return next, true
}
