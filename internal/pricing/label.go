package pricing

import "sync"

// bitset tracks visited customers by customer offset (node index minus the
// warehouse count). nil means elementarity is not being tracked.
type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) set(i int)      { b[i>>6] |= 1 << (uint(i) & 63) }
func (b bitset) get(i int) bool { return b[i>>6]&(1<<(uint(i)&63)) != 0 }

func (b bitset) clone() bitset {
	out := make(bitset, len(b))
	copy(out, b)
	return out
}

// subsetOf reports whether every bit of b is also set in o.
func (b bitset) subsetOf(o bitset) bool {
	for i := range b {
		if b[i]&^o[i] != 0 {
			return false
		}
	}
	return true
}

// label is a partial-path state. The predecessor chain is append-only and
// never mutated after publication; it is walked only for path reconstruction.
type label struct {
	node    int32
	pred    int32 // arena handle of the predecessor, -1 at the start depot
	rcost   float64
	cost    float64
	elapsed float64 // seconds since departure, after service at node
	load    float64
	stops   int32
	dead    bool // evicted from its bucket by dominance; skipped when popped
	visited bitset
}

const arenaChunk = 4096

// arena stores labels in fixed-size chunks addressed by integer handle.
// Chunks never move, so a handle obtained from add stays valid for reads
// without holding the lock; the outer chunk slice is pre-sized so growth
// never reallocates it under concurrent readers. Dropping the whole arena
// frees every label of a pricing call at once.
type arena struct {
	mu     sync.Mutex
	chunks [][]label
	n      int32
}

func newArena(maxLabels int) *arena {
	return &arena{chunks: make([][]label, 0, maxLabels/arenaChunk+2)}
}

func (a *arena) add(l label) int32 {
	a.mu.Lock()
	idx := a.n
	ci := int(idx) / arenaChunk
	if ci == len(a.chunks) {
		a.chunks = append(a.chunks, make([]label, 0, arenaChunk))
	}
	a.chunks[ci] = append(a.chunks[ci], l)
	a.n++
	a.mu.Unlock()
	return idx
}

func (a *arena) at(i int32) *label {
	return &a.chunks[int(i)/arenaChunk][int(i)%arenaChunk]
}

func (a *arena) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.n)
}
