package graph

import (
	"github.com/tidwall/rtree"
)

// nearestCustomers returns, for each customer (offset into cust), the offsets
// of its k nearest other customers. Uses an R-tree kNN walk so sparsification
// stays cheap on large instances; distance ranking is by bounding-box metric,
// which for point data matches straight-line order closely enough for pruning.
func nearestCustomers(cust []Node, k int) [][]int32 {
	var tr rtree.RTreeG[int32]
	for i := range cust {
		p := [2]float64{cust[i].Lng, cust[i].Lat}
		tr.Insert(p, p, int32(i))
	}
	out := make([][]int32, len(cust))
	for i := range cust {
		p := [2]float64{cust[i].Lng, cust[i].Lat}
		picked := make([]int32, 0, k)
		var itemDist func(min, max [2]float64, data int32) float64
		tr.Nearby(
			rtree.BoxDist(p, p, itemDist),
			func(_, _ [2]float64, data int32, _ float64) bool {
				if data != int32(i) {
					picked = append(picked, data)
				}
				return len(picked) < k
			},
		)
		out[i] = picked
	}
	return out
}
