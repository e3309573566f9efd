package pricing

import "sync"

// heapItem orders frontier labels best-first by reduced cost, breaking ties
// lexicographically on (elapsed, load) so equal-cost labels pop in a stable,
// resource-favoring order.
type heapItem struct {
	idx     int32
	rcost   float64
	elapsed float64
	load    float64
}

// labelHeap is a min-heap of frontier handles with the lazy-deletion pattern:
// labels evicted by dominance keep their stale heap entry and are skipped on
// pop via the arena's dead flag.
type labelHeap []heapItem

func (h labelHeap) Len() int { return len(h) }
func (h labelHeap) Less(i, j int) bool {
	if h[i].rcost != h[j].rcost {
		return h[i].rcost < h[j].rcost
	}
	if h[i].elapsed != h[j].elapsed {
		return h[i].elapsed < h[j].elapsed
	}
	return h[i].load < h[j].load
}
func (h labelHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *labelHeap) Push(x any)   { *h = append(*h, x.(heapItem)) }
func (h *labelHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// bucket holds the non-dominated labels resident at one node. Each bucket has
// its own lock; parallel extension synchronizes only here.
type bucket struct {
	mu    sync.Mutex
	items []int32
}

// insert runs the dominance check for cand against its node bucket. It either
// discards cand (dominated by a resident) or admits it, evicting residents it
// dominates. Returns the arena handle and whether cand survived, plus the
// number of residents evicted.
func (s *search) insert(cand label) (int32, bool, int) {
	b := &s.buckets[cand.node]
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ri := range b.items {
		if dominates(s.arena.at(ri), &cand, s.cfg.Elementary) {
			return -1, false, 0
		}
	}
	evicted := 0
	kept := b.items[:0]
	for _, ri := range b.items {
		r := s.arena.at(ri)
		if dominates(&cand, r, s.cfg.Elementary) {
			r.dead = true
			evicted++
			continue
		}
		kept = append(kept, ri)
	}
	b.items = kept

	idx := s.arena.add(cand)
	b.items = append(b.items, idx)
	return idx, true, evicted
}
