package hnsw

import (
	"container/heap"
	"encoding/binary"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"

	"github.com/dshills/gocontext-vecstore/pkg/types"
)

// Vector is an id and its values, the unit fed into a build
type Vector struct {
	ID     string
	Values []float32
}

// Neighbor is a single query hit
type Neighbor struct {
	ID       string
	Distance float32
}

// node is a single slot in the graph. Slots are never reused: an update
// tombstones the old slot and appends a new one.
type node struct {
	id      string
	vector  []float32 // unit length, or all zeros
	level   int
	friends [][]uint32 // friends[layer] = neighbor slots at that layer
}

// graph is the in-memory HNSW structure. It is not safe for concurrent
// mutation; the manager serializes writers and readers get their own copy.
type graph struct {
	dim      int
	p        params
	nodes    []*node
	live     map[string]uint32 // id -> current slot
	tombs    *roaring.Bitmap
	entry    int32 // -1 when empty
	maxLevel int
	capacity int
}

func newGraph(dim int, p params, capacity int) *graph {
	return &graph{
		dim:      dim,
		p:        p,
		live:     make(map[string]uint32),
		tombs:    roaring.New(),
		entry:    -1,
		capacity: max(capacity, 1),
	}
}

func (g *graph) storedCount() int { return len(g.nodes) }
func (g *graph) liveCount() int   { return len(g.live) }

func (g *graph) tombstonedCount() int {
	return int(g.tombs.GetCardinality())
}

// insert adds or replaces id. It reports whether capacity had to grow.
func (g *graph) insert(id string, values []float32) (grew bool, err error) {
	if len(values) != g.dim {
		return false, &types.DimensionMismatchError{Expected: g.dim, Actual: len(values), PointID: id}
	}

	if old, ok := g.live[id]; ok {
		g.tombs.Add(old)
	}

	for len(g.nodes) >= g.capacity {
		g.capacity *= 2
		grew = true
	}

	slot := uint32(len(g.nodes))
	level := levelFor(id, slot, g.p.levelMul())
	vec := normalize(values)
	nd := &node{
		id:      id,
		vector:  vec,
		level:   level,
		friends: make([][]uint32, level+1),
	}
	g.nodes = append(g.nodes, nd)
	g.live[id] = slot

	if g.entry < 0 {
		g.entry = int32(slot)
		g.maxLevel = level
		return grew, nil
	}

	cur := g.greedyDescent(vec, uint32(g.entry), g.maxLevel, level)

	ep := []uint32{cur}
	for lev := min(level, g.maxLevel); lev >= 0; lev-- {
		candidates := g.searchLayer(vec, ep, g.p.EfConstruction, lev)

		maxC := g.p.maxConns(lev)
		neighbors := make([]uint32, 0, min(len(candidates), maxC))
		for _, c := range candidates {
			if c.slot == slot {
				continue
			}
			neighbors = append(neighbors, c.slot)
			if len(neighbors) == maxC {
				break
			}
		}
		nd.friends[lev] = neighbors

		for _, nID := range neighbors {
			nn := g.nodes[nID]
			if lev >= len(nn.friends) {
				continue
			}
			nn.friends[lev] = append(nn.friends[lev], slot)
			if len(nn.friends[lev]) > maxC {
				nn.friends[lev] = g.selectClosest(nn.vector, nn.friends[lev], maxC)
			}
		}

		ep = ep[:0]
		for _, c := range candidates {
			ep = append(ep, c.slot)
		}
	}

	if level > g.maxLevel {
		g.entry = int32(slot)
		g.maxLevel = level
	}

	return grew, nil
}

// remove tombstones the live slot of id. Unknown ids are ignored.
func (g *graph) remove(id string) bool {
	slot, ok := g.live[id]
	if !ok {
		return false
	}
	g.tombs.Add(slot)
	delete(g.live, id)
	return true
}

// search returns up to k live neighbors ordered by (distance, slot).
func (g *graph) search(query []float32, k, ef int) ([]Neighbor, error) {
	if len(query) != g.dim {
		return nil, &types.DimensionMismatchError{Expected: g.dim, Actual: len(query)}
	}
	if k <= 0 || g.liveCount() == 0 {
		return []Neighbor{}, nil
	}

	q := normalize(query)
	ef = max(ef, k)

	cur := g.greedyDescent(q, uint32(g.entry), g.maxLevel, 0)
	candidates := g.searchLayer(q, []uint32{cur}, ef, 0)

	out := make([]Neighbor, 0, k)
	for _, c := range candidates {
		if g.tombs.Contains(c.slot) {
			continue
		}
		out = append(out, Neighbor{ID: g.nodes[c.slot].id, Distance: c.dist})
		if len(out) == k {
			break
		}
	}

	// Tombstones can wall off live regions of the graph. Fall back to an
	// exact scan whenever the beam comes up short.
	if len(out) < min(k, g.liveCount()) {
		return g.exactSearch(q, k), nil
	}
	return out, nil
}

// exactSearch scores every live slot
func (g *graph) exactSearch(q []float32, k int) []Neighbor {
	items := make([]distItem, 0, g.liveCount())
	for _, slot := range g.live {
		items = append(items, distItem{slot: slot, dist: distance(q, g.nodes[slot].vector)})
	}
	sort.Slice(items, func(i, j int) bool { return closer(items[i], items[j]) })
	if len(items) > k {
		items = items[:k]
	}

	out := make([]Neighbor, len(items))
	for i, it := range items {
		out[i] = Neighbor{ID: g.nodes[it.slot].id, Distance: it.dist}
	}
	return out
}

// greedyDescent walks from the top layer down to stopAbove+1, keeping only
// the single closest node per layer.
func (g *graph) greedyDescent(q []float32, cur uint32, top, stopAbove int) uint32 {
	curDist := distance(q, g.nodes[cur].vector)
	for lev := top; lev > stopAbove; lev-- {
		changed := true
		for changed {
			changed = false
			nd := g.nodes[cur]
			if lev >= len(nd.friends) {
				break
			}
			for _, fID := range nd.friends[lev] {
				d := distance(q, g.nodes[fID].vector)
				if closer(distItem{fID, d}, distItem{cur, curDist}) {
					cur = fID
					curDist = d
					changed = true
				}
			}
		}
	}
	return cur
}

// searchLayer performs a beam search on one layer and returns up to ef
// candidates sorted closest first. Tombstoned slots are traversed like any
// other; callers filter them.
func (g *graph) searchLayer(q []float32, entryPoints []uint32, ef, layer int) []distItem {
	visited := make(map[uint32]struct{}, ef*2)

	var candidates minDistHeap
	var results maxDistHeap

	for _, ep := range entryPoints {
		if _, seen := visited[ep]; seen {
			continue
		}
		visited[ep] = struct{}{}
		it := distItem{slot: ep, dist: distance(q, g.nodes[ep].vector)}
		heap.Push(&candidates, it)
		heap.Push(&results, it)
		if results.Len() > ef {
			heap.Pop(&results)
		}
	}

	for candidates.Len() > 0 {
		closest := heap.Pop(&candidates).(distItem)
		if results.Len() >= ef && closer(results[0], closest) {
			break
		}

		nd := g.nodes[closest.slot]
		if layer >= len(nd.friends) {
			continue
		}

		for _, fID := range nd.friends[layer] {
			if _, seen := visited[fID]; seen {
				continue
			}
			visited[fID] = struct{}{}

			it := distItem{slot: fID, dist: distance(q, g.nodes[fID].vector)}
			if results.Len() < ef || closer(it, results[0]) {
				heap.Push(&candidates, it)
				heap.Push(&results, it)
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]distItem, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&results).(distItem)
	}
	return out
}

// selectClosest keeps the maxN slots closest to vec
func (g *graph) selectClosest(vec []float32, slots []uint32, maxN int) []uint32 {
	items := make([]distItem, len(slots))
	for i, s := range slots {
		items[i] = distItem{slot: s, dist: distance(vec, g.nodes[s].vector)}
	}
	sort.Slice(items, func(i, j int) bool { return closer(items[i], items[j]) })
	if len(items) > maxN {
		items = items[:maxN]
	}

	out := make([]uint32, len(items))
	for i := range items {
		out[i] = items[i].slot
	}
	return out
}

// levelFor derives a node level from its id and slot, so the same
// insertion sequence always produces the same graph.
// P(level >= l) = exp(-l * ln(M)).
func levelFor(id string, slot uint32, levelMul float64) int {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], slot)

	d := xxhash.New()
	_, _ = d.WriteString(id)
	_, _ = d.Write(buf[:])

	// 53 high bits mapped into (0, 1]
	r := (float64(d.Sum64()>>11) + 1) / (1 << 53)
	return min(int(-math.Log(r)*levelMul), maxLevelCap)
}

// distance is the cosine distance between two unit vectors
func distance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}

// normalize returns a unit-length copy of v. A zero vector stays zero.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
