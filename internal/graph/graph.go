// Package graph builds the pricing network: warehouses and customers as
// nodes, feasible arcs with travel cost and time. Topology is built once per
// instance; arc reduced costs are recomputed per pricing call via Reprice.
package graph

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"vrppricing/internal/model"
)

func parseRFC3339(s string) (time.Time, error) { return time.Parse(time.RFC3339, s) }

// ErrInvalidInstance flags a malformed instance. Fatal for the whole call.
var ErrInvalidInstance = errors.New("invalid instance")

// NodeKind distinguishes depot sentinels from customer stops.
type NodeKind int8

const (
	KindWarehouse NodeKind = iota
	KindCustomer
)

// Node is an immutable network node. Time windows are seconds relative to the
// instance departure instant; warehouses carry an open window.
type Node struct {
	ID          string // "W_<id>" or "C_<id>"
	RawID       string // numeric id as it appears in dual_values keys
	Kind        NodeKind
	Lat, Lng    float64
	Demand      float64
	WindowStart float64
	WindowEnd   float64
	ServiceSec  float64
}

// Arc is a directed arc. Reduced is rewritten on every Reprice call; all other
// fields are fixed at build time.
type Arc struct {
	From    int32
	To      int32
	Cost    float64
	TravelS float64 // travel time in seconds
	DistKm  float64
	Reduced float64
}

// Graph holds nodes and arcs in CSR layout: arcs are grouped by tail node,
// first[i]..first[i+1] index the outgoing arcs of node i.
type Graph struct {
	Nodes      []Node
	Arcs       []Arc
	first      []int32
	Warehouses int // nodes[0:Warehouses] are depots
}

// Build validates the instance and constructs the network. Customer-customer
// arcs can be limited to the MaxNeighbors nearest via an R-tree index;
// warehouse arcs are always complete so every route can close.
func Build(in *model.Instance, maxNeighbors int) (*Graph, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	dep, err := in.Departure()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInstance, err)
	}

	nodes := make([]Node, 0, len(in.Warehouses)+len(in.Customers))
	for _, wh := range in.Warehouses {
		nodes = append(nodes, Node{
			ID:          "W_" + strconv.FormatInt(wh.ID, 10),
			RawID:       strconv.FormatInt(wh.ID, 10),
			Kind:        KindWarehouse,
			Lat:         wh.Lat,
			Lng:         wh.Lng,
			WindowStart: 0,
			WindowEnd:   1 << 40, // effectively open
		})
	}
	for _, c := range in.Customers {
		ws, errS := parseRFC3339(c.WindowStart)
		we, errE := parseRFC3339(c.WindowEnd)
		if errS != nil || errE != nil {
			return nil, fmt.Errorf("%w: customer %d: bad time window", ErrInvalidInstance, c.ID)
		}
		if we.Before(ws) {
			return nil, fmt.Errorf("%w: customer %d: window_end before window_start", ErrInvalidInstance, c.ID)
		}
		nodes = append(nodes, Node{
			ID:          "C_" + strconv.FormatInt(c.ID, 10),
			RawID:       strconv.FormatInt(c.ID, 10),
			Kind:        KindCustomer,
			Lat:         c.Lat,
			Lng:         c.Lng,
			Demand:      c.Demand,
			WindowStart: ws.Sub(dep).Seconds(),
			WindowEnd:   we.Sub(dep).Seconds(),
			ServiceSec:  float64(in.ServiceTimeMin) * 60,
		})
	}

	g := &Graph{Nodes: nodes, Warehouses: len(in.Warehouses)}
	g.buildArcs(in, maxNeighbors)
	return g, nil
}

func (g *Graph) buildArcs(in *model.Instance, maxNeighbors int) {
	w := g.Warehouses
	n := len(g.Nodes)
	nCust := n - w

	// Candidate heads per customer tail; nil means all customers.
	var near [][]int32
	if maxNeighbors > 0 && maxNeighbors < nCust-1 {
		near = nearestCustomers(g.Nodes[w:], maxNeighbors)
	}

	type pair struct{ from, to int32 }
	var pairs []pair
	for i := 0; i < w; i++ {
		for j := w; j < n; j++ {
			pairs = append(pairs, pair{int32(i), int32(j)}, pair{int32(j), int32(i)})
		}
	}
	for i := w; i < n; i++ {
		if near != nil {
			for _, off := range near[i-w] {
				pairs = append(pairs, pair{int32(i), int32(w) + off})
			}
			continue
		}
		for j := w; j < n; j++ {
			if i != j {
				pairs = append(pairs, pair{int32(i), int32(j)})
			}
		}
	}

	// Count per tail, then fill in CSR order.
	counts := make([]int32, n+1)
	for _, p := range pairs {
		counts[p.from+1]++
	}
	g.first = make([]int32, n+1)
	for i := 0; i < n; i++ {
		g.first[i+1] = g.first[i] + counts[i+1]
	}
	g.Arcs = make([]Arc, len(pairs))
	cursor := make([]int32, n)
	copy(cursor, g.first[:n])
	for _, p := range pairs {
		a := g.Nodes[p.from]
		b := g.Nodes[p.to]
		km := HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
		cost := in.CostPerKm * km
		g.Arcs[cursor[p.from]] = Arc{
			From:    p.from,
			To:      p.to,
			Cost:    cost,
			TravelS: 3600 * km / in.SpeedKmh,
			DistKm:  km,
			Reduced: cost, // until the first Reprice
		}
		cursor[p.from]++
	}
}

// Out returns the outgoing arcs of node i.
func (g *Graph) Out(i int32) []Arc { return g.Arcs[g.first[i]:g.first[i+1]] }

// NodeIndex returns the index of a node by its full id ("C_20"), or -1.
func (g *Graph) NodeIndex(id string) int32 {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return int32(i)
		}
	}
	return -1
}

// Reprice rewrites arc reduced costs for a new dual vector:
// reduced = cost - dual(head) on arcs into customers, plain cost otherwise.
// Duals are keyed by the customer's numeric id. Missing entries count as zero.
func (g *Graph) Reprice(duals map[string]float64) {
	for i := range g.Arcs {
		head := &g.Nodes[g.Arcs[i].To]
		if head.Kind == KindCustomer {
			g.Arcs[i].Reduced = g.Arcs[i].Cost - duals[head.RawID]
		} else {
			g.Arcs[i].Reduced = g.Arcs[i].Cost
		}
	}
}

// ArcBetween returns the arc from tail to head, if present.
func (g *Graph) ArcBetween(from, to int32) (Arc, bool) {
	for _, a := range g.Out(from) {
		if a.To == to {
			return a, true
		}
	}
	return Arc{}, false
}

func validate(in *model.Instance) error {
	switch {
	case len(in.Warehouses) == 0:
		return fmt.Errorf("%w: no warehouses", ErrInvalidInstance)
	case len(in.Customers) == 0:
		return fmt.Errorf("%w: no customers", ErrInvalidInstance)
	case in.MaxCapacity < 0:
		return fmt.Errorf("%w: negative max_capacity", ErrInvalidInstance)
	case in.MaxStops < 1:
		return fmt.Errorf("%w: max_stops must be >= 1", ErrInvalidInstance)
	case in.SpeedKmh <= 0:
		return fmt.Errorf("%w: speed_kmh must be > 0", ErrInvalidInstance)
	case in.CostPerKm < 0:
		return fmt.Errorf("%w: negative cost_per_km", ErrInvalidInstance)
	case in.ServiceTimeMin < 0:
		return fmt.Errorf("%w: negative service_time", ErrInvalidInstance)
	case in.DepartureHour < 0 || in.DepartureHour > 23:
		return fmt.Errorf("%w: departure_hour out of range", ErrInvalidInstance)
	}
	seen := map[int64]bool{}
	for _, c := range in.Customers {
		if seen[c.ID] {
			return fmt.Errorf("%w: duplicate customer id %d", ErrInvalidInstance, c.ID)
		}
		seen[c.ID] = true
		if c.Demand < 0 {
			return fmt.Errorf("%w: customer %d: negative demand", ErrInvalidInstance, c.ID)
		}
	}
	seenW := map[int64]bool{}
	for _, wh := range in.Warehouses {
		if seenW[wh.ID] {
			return fmt.Errorf("%w: duplicate warehouse id %d", ErrInvalidInstance, wh.ID)
		}
		seenW[wh.ID] = true
	}
	return nil
}
