package pricing

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"vrppricing/internal/graph"
	"vrppricing/internal/model"
)

// completion records a label that closed its route back at the start depot.
// No arena entry is created for the terminal depot visit.
type completion struct {
	last  int32 // arena handle of the final customer label
	depot int32
	rcost float64
	cost  float64
	load  float64
	stops int32
}

// search runs one labeling pass. The frontier moves through four phases:
// initialized (depot label only), expanding (heap non-empty), draining
// (budget hit, no more pops), terminated.
type search struct {
	g     *graph.Graph
	cfg   Config
	arena *arena

	frontier  labelHeap
	buckets   []bucket
	startWh   int32
	deadline  time.Time
	truncated bool

	mu        sync.Mutex // guards completed and frontier additions from workers
	completed []completion
	stats     model.SolveStats
}

func newSearch(g *graph.Graph, cfg Config) *search {
	return &search{
		g:     g,
		cfg:   cfg,
		arena: newArena(cfg.LabelBudget),
	}
}

// run explores from one start warehouse until the frontier empties or a
// budget trips. Completions accumulate across calls for multi-depot instances.
func (s *search) run(ctx context.Context, startWh int32) error {
	s.startWh = startWh
	s.frontier = s.frontier[:0]
	s.buckets = make([]bucket, len(s.g.Nodes))

	origin := label{node: startWh, pred: -1}
	if s.cfg.Elementary {
		origin.visited = newBitset(len(s.g.Nodes) - s.g.Warehouses)
	}
	idx := s.arena.add(origin)
	s.buckets[startWh].items = append(s.buckets[startWh].items, idx)
	heap.Init(&s.frontier)
	heap.Push(&s.frontier, heapItem{idx: idx})

	for s.frontier.Len() > 0 {
		if err := ctx.Err(); err != nil {
			s.truncated = true
			return err
		}
		if !s.deadline.IsZero() && time.Now().After(s.deadline) {
			s.truncated = true
			return nil
		}
		if s.arena.len() >= s.cfg.LabelBudget {
			s.truncated = true
			return nil
		}

		batch := s.popBatch()
		if len(batch) == 0 {
			continue
		}
		s.stats.LabelsSettled += len(batch)

		if s.cfg.Parallelism <= 1 || len(batch) == 1 {
			var grown []heapItem
			for _, it := range batch {
				grown = append(grown, s.settle(it)...)
			}
			for _, it := range grown {
				heap.Push(&s.frontier, it)
			}
			continue
		}

		// Parallel wave: pure extension fans out across workers, which then
		// synchronize per destination bucket for the dominance insert. Heap
		// pushes happen back on this goroutine once the wave has joined.
		var wg sync.WaitGroup
		grown := make([][]heapItem, len(batch))
		sem := make(chan struct{}, s.cfg.Parallelism)
		for i, it := range batch {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, it heapItem) {
				defer wg.Done()
				grown[i] = s.settle(it)
				<-sem
			}(i, it)
		}
		wg.Wait()
		for _, items := range grown {
			for _, it := range items {
				heap.Push(&s.frontier, it)
			}
		}
	}
	return nil
}

// popBatch pops up to one wave of live labels, skipping entries whose label
// was evicted by dominance after being pushed (lazy deletion).
func (s *search) popBatch() []heapItem {
	limit := s.cfg.Parallelism
	if limit < 1 {
		limit = 1
	}
	var out []heapItem
	for len(out) < limit && s.frontier.Len() > 0 {
		it := heap.Pop(&s.frontier).(heapItem)
		if s.arena.at(it.idx).dead {
			continue
		}
		out = append(out, it)
	}
	return out
}

// settle extends one popped label along all outgoing arcs: depot arcs may
// complete a route, customer arcs grow the frontier.
func (s *search) settle(it heapItem) []heapItem {
	l := s.arena.at(it.idx)
	var grown []heapItem
	for _, arc := range s.g.Out(l.node) {
		head := &s.g.Nodes[arc.To]
		if head.Kind == graph.KindWarehouse {
			// Routes must close at their own start depot.
			if arc.To != s.startWh || l.stops < 1 {
				continue
			}
			rc := l.rcost + arc.Reduced
			if rc < -s.cfg.Epsilon {
				s.mu.Lock()
				s.completed = append(s.completed, completion{
					last:  it.idx,
					depot: s.startWh,
					rcost: rc,
					cost:  l.cost + arc.Cost,
					load:  l.load,
					stops: l.stops,
				})
				s.mu.Unlock()
			}
			continue
		}

		next, ok := s.extend(l, arc)
		if !ok {
			continue
		}
		next.pred = it.idx
		idx, kept, evicted := s.insert(next)
		s.mu.Lock()
		s.stats.LabelsDominated += evicted
		if !kept {
			s.stats.LabelsDominated++
		} else {
			s.stats.LabelsCreated++
			grown = append(grown, heapItem{
				idx:     idx,
				rcost:   next.rcost,
				elapsed: next.elapsed,
				load:    next.load,
			})
		}
		s.mu.Unlock()
	}
	return grown
}

// path reconstructs the node-id sequence of a completion by walking the
// predecessor chain backward from the final customer label.
func (s *search) path(c completion) []string {
	var rev []string
	for i := c.last; i >= 0; {
		l := s.arena.at(i)
		rev = append(rev, s.g.Nodes[l.node].ID)
		i = l.pred
	}
	out := make([]string, 0, len(rev)+1)
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return append(out, s.g.Nodes[c.depot].ID)
}
