package collision

import (
	"sort"

	"ctf-arena-server/internal/geom"
)

// MaxTriPerLeaf bounds the number of triangles a BVH leaf may hold, unless
// the recursion has reached MaxDepth first (spec.md §3 BVHNode invariant).
const MaxTriPerLeaf = 4

// MaxDepth is the hard recursion cutoff; beyond it a node becomes a leaf
// regardless of triangle count.
const MaxDepth = 32

// node is one element of the BVH, stored in a flat preallocated slice
// (indices, not pointers) in the spirit of the teacher's spatial grid cells.
type node struct {
	bounds      geom.AABB
	left, right int32 // child node indices; -1 if this is a leaf
	start, n    int32 // leaf triangle range into BVH.indices
}

func (nd *node) isLeaf() bool { return nd.left < 0 }

// BVH is a Surface Area Heuristic bounding volume hierarchy over a Mesh's
// triangles, built once per map load and safe for concurrent read-only
// queries thereafter.
type BVH struct {
	mesh    *Mesh
	nodes   []node
	indices []int32 // triangle indices, partitioned in place during build
	root    int32
}

// Build constructs a BVH over mesh. An empty mesh yields a BVH whose queries
// always report no hit (spec.md §4.1 failure policy).
func Build(mesh *Mesh) *BVH {
	b := &BVH{mesh: mesh}
	n := mesh.Len()
	if n == 0 {
		return b
	}

	b.indices = make([]int32, n)
	centroids := make([]geom.Vec3, n)
	bounds := make([]geom.AABB, n)
	for i, t := range mesh.Triangles() {
		b.indices[i] = int32(i)
		bounds[i] = geom.TriangleBounds(t)
		centroids[i] = bounds[i].Centroid()
	}

	// Upper bound on node count for a binary tree over n leaves.
	b.nodes = make([]node, 0, 2*n)
	b.root = b.build(0, int32(n), 0, bounds, centroids)
	return b
}

// build recursively partitions indices[start:start+count] and returns the
// index of the node covering that range.
func (b *BVH) build(start, count int32, depth int, bounds []geom.AABB, centroids []geom.Vec3) int32 {
	nodeBounds := geom.EmptyAABB()
	for i := start; i < start+count; i++ {
		nodeBounds = nodeBounds.Union(bounds[b.indices[i]])
	}

	if count <= MaxTriPerLeaf || depth >= MaxDepth {
		return b.makeLeaf(nodeBounds, start, count)
	}

	axis, splitPos, ok := bestSAHSplit(b.indices[start:start+count], bounds, centroids, nodeBounds, count)
	var mid int32
	if ok {
		mid = partition(b.indices[start:start+count], centroids, axis, splitPos)
	} else {
		axis = widestAxis(nodeBounds)
	}
	if mid == 0 || mid == count {
		// No beneficial or separating SAH split (e.g. all centroids coincide
		// on the chosen axis); fall back to a plain median split so leaves
		// stay within MaxTriPerLeaf and recursion still terminates.
		mid = count / 2
		sort.Slice(b.indices[start:start+count], func(i, j int) bool {
			return axisValue(centroids[b.indices[start+int32(i)]], axis) <
				axisValue(centroids[b.indices[start+int32(j)]], axis)
		})
	}

	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, node{bounds: nodeBounds})

	left := b.build(start, mid, depth+1, bounds, centroids)
	right := b.build(start+mid, count-mid, depth+1, bounds, centroids)

	b.nodes[idx].left = left
	b.nodes[idx].right = right
	b.nodes[idx].start = -1 // not a leaf
	return idx
}

func (b *BVH) makeLeaf(bounds geom.AABB, start, count int32) int32 {
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, node{bounds: bounds, left: -1, right: -1, start: start, n: count})
	return idx
}

// widestAxis returns the axis along which bounds has its largest extent,
// used when no SAH candidate beat the leaf cost but the node is still too
// big to become a leaf.
func widestAxis(bounds geom.AABB) int {
	d := bounds.Max.Sub(bounds.Min)
	switch {
	case d.X >= d.Y && d.X >= d.Z:
		return 0
	case d.Y >= d.Z:
		return 1
	default:
		return 2
	}
}

func axisValue(v geom.Vec3, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// bestSAHSplit evaluates, for each of the 3 axes, three candidate split
// planes at the 25/50/75 percentiles of centroids (spec.md §4.1), and
// returns the axis/position minimizing the SAH cost, if better than the
// leaf cost of `count` (a plain linear-scan leaf).
func bestSAHSplit(idx []int32, bounds []geom.AABB, centroids []geom.Vec3, nodeBounds geom.AABB, count int32) (axis int, pos float64, ok bool) {
	nodeSA := nodeBounds.SurfaceArea()
	if nodeSA <= 0 {
		return 0, 0, false
	}

	bestCost := float64(count) // leaf cost baseline
	found := false

	for a := 0; a < 3; a++ {
		lo, hi := axisRange(idx, centroids, a)
		if hi-lo < 1e-9 {
			continue // all centroids coincide on this axis
		}
		for _, frac := range [3]float64{0.25, 0.5, 0.75} {
			split := lo + (hi-lo)*frac
			cost := sahCost(idx, bounds, centroids, a, split, nodeSA)
			if cost < bestCost {
				bestCost = cost
				axis, pos, ok, found = a, split, true, true
			}
		}
	}
	_ = found
	return axis, pos, ok
}

func axisRange(idx []int32, centroids []geom.Vec3, axis int) (lo, hi float64) {
	lo, hi = axisValue(centroids[idx[0]], axis), axisValue(centroids[idx[0]], axis)
	for _, i := range idx[1:] {
		v := axisValue(centroids[i], axis)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return
}

// sahCost implements: 1 + (SA_L/SA_node)*n_L + (SA_R/SA_node)*n_R.
func sahCost(idx []int32, bounds []geom.AABB, centroids []geom.Vec3, axis int, split, nodeSA float64) float64 {
	left := geom.EmptyAABB()
	right := geom.EmptyAABB()
	var nLeft, nRight int

	for _, i := range idx {
		if axisValue(centroids[i], axis) < split {
			left = left.Union(bounds[i])
			nLeft++
		} else {
			right = right.Union(bounds[i])
			nRight++
		}
	}

	if nLeft == 0 || nRight == 0 {
		return float64(len(idx)) // no real split; reject via leaf-cost tie
	}

	return 1 + (left.SurfaceArea()/nodeSA)*float64(nLeft) + (right.SurfaceArea()/nodeSA)*float64(nRight)
}

// partition reorders idx in place (Hoare-style 2-way split, scanning from both ends) so that
// all entries with centroid[axis] < splitPos come first, returning the
// count of entries moved to the left side. If the result is degenerate
// (all-left or all-right), the caller falls back to a median split
// (spec.md §4.1: "if one side empty, fall back to median").
func partition(idx []int32, centroids []geom.Vec3, axis int, splitPos float64) int32 {
	i, j := 0, len(idx)-1
	for i <= j {
		for i <= j && axisValue(centroids[idx[i]], axis) < splitPos {
			i++
		}
		for i <= j && axisValue(centroids[idx[j]], axis) >= splitPos {
			j--
		}
		if i < j {
			idx[i], idx[j] = idx[j], idx[i]
			i++
			j--
		}
	}
	return int32(i)
}

// RayHit is the result of a successful ray query.
type RayHit struct {
	Distance    float64
	TriangleIdx int
	Point       geom.Vec3
	Normal      geom.Vec3
}

// traversalStack is a small reusable stack for iterative BVH descent,
// avoiding recursion overhead on the hot raycast path.
type traversalStack struct {
	items [64]int32
	n     int
}

func (s *traversalStack) push(v int32) { s.items[s.n] = v; s.n++ }
func (s *traversalStack) pop() int32   { s.n--; return s.items[s.n] }
func (s *traversalStack) empty() bool  { return s.n == 0 }

// Raycast finds the closest triangle hit along ray within (epsilon, maxDist].
// Returns ok=false if the mesh is empty or nothing is hit (spec.md §4.1).
func (b *BVH) Raycast(ray geom.Ray, maxDist float64) (RayHit, bool) {
	if len(b.nodes) == 0 {
		return RayHit{}, false
	}

	const epsilon = 1e-6
	best := RayHit{Distance: maxDist}
	found := false

	var stack traversalStack
	stack.push(b.root)

	tris := b.mesh.Triangles()

	for !stack.empty() {
		ni := stack.pop()
		nd := &b.nodes[ni]

		tmin, hit := geom.RayAABB(ray, nd.bounds, best.Distance)
		if !hit || tmin > best.Distance {
			continue
		}

		if nd.isLeaf() {
			for k := nd.start; k < nd.start+nd.n; k++ {
				triIdx := b.indices[k]
				t := tris[triIdx]
				d, ok := geom.RayTriangle(ray, t)
				if !ok || d <= epsilon || d > best.Distance {
					continue
				}
				best.Distance = d
				best.TriangleIdx = int(triIdx)
				best.Point = ray.Origin.Add(ray.Direction.Scale(d))
				best.Normal = t.Normal
				found = true
			}
			continue
		}

		stack.push(nd.left)
		stack.push(nd.right)
	}

	return best, found
}

// QuerySphereCandidates appends to dst the indices of triangles whose AABB
// overlaps a sphere at center with the given radius (broad phase only —
// callers must still run a precise triangle test, per spec.md §4.1).
func (b *BVH) QuerySphereCandidates(center geom.Vec3, radius float64, dst []int32) []int32 {
	if len(b.nodes) == 0 {
		return dst
	}

	var stack traversalStack
	stack.push(b.root)

	tris := b.mesh.Triangles()

	for !stack.empty() {
		ni := stack.pop()
		nd := &b.nodes[ni]

		if !geom.SphereAABBOverlap(center, radius, nd.bounds) {
			continue
		}

		if nd.isLeaf() {
			for k := nd.start; k < nd.start+nd.n; k++ {
				if geom.SphereAABBOverlap(center, radius, geom.TriangleBounds(tris[b.indices[k]])) {
					dst = append(dst, b.indices[k])
				}
			}
			continue
		}

		stack.push(nd.left)
		stack.push(nd.right)
	}

	return dst
}

// Mesh returns the underlying triangle mesh.
func (b *BVH) Mesh() *Mesh { return b.mesh }
