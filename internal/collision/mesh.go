// Package collision implements the static triangle-mesh collision world: an
// immutable, ordered triangle store (Mesh) plus a SAH-built Bounding Volume
// Hierarchy (BVH) for ray and sphere queries.
//
// Grounded on the teacher's game/spatial package (spatial.SpatialGrid):
// preallocated slices keyed by integer index rather than pointers, a reusable
// scratch buffer for query results, and a Clear()-keeps-capacity reset
// pattern. This package generalizes that shape from a uniform grid over 2D
// circles to a SAH BVH over 3D triangles, since the mesh is static for the
// life of a match (built once per map load, per spec.md §4.1) rather than
// rebuilt every tick.
package collision

import (
	"ctf-arena-server/internal/geom"
	"ctf-arena-server/internal/mathutil"
)

// Mesh is an immutable, ordered collection of collision triangles. Degenerate
// triangles (near-zero area or non-finite normal) are rejected at
// construction, never stored.
type Mesh struct {
	triangles []geom.Triangle
}

// NewMesh builds a Mesh from raw vertex triples, silently dropping
// degenerate triangles per spec.md §3's CollisionMesh invariant.
func NewMesh(raw [][3]mathutil.Vec3) *Mesh {
	m := &Mesh{triangles: make([]geom.Triangle, 0, len(raw))}
	for _, tri := range raw {
		m.AddTriangle(tri[0], tri[1], tri[2])
	}
	return m
}

// AddTriangle appends one triangle if it is non-degenerate, returning
// whether it was accepted.
func (m *Mesh) AddTriangle(v0, v1, v2 mathutil.Vec3) bool {
	t, ok := geom.NewTriangle(v0, v1, v2)
	if !ok {
		return false
	}
	m.triangles = append(m.triangles, t)
	return true
}

// Triangles returns the mesh's triangle slice. Callers must not mutate it;
// the mesh is shared by reference across the room's tick loop, the LOS
// worker pool, and bot think calls (spec.md §5).
func (m *Mesh) Triangles() []geom.Triangle { return m.triangles }

// Len returns the number of accepted triangles.
func (m *Mesh) Len() int { return len(m.triangles) }

// Empty reports whether the mesh has no triangles; callers fall back to a
// world-floor-only behavior per spec.md §4.1's failure policy.
func (m *Mesh) Empty() bool { return len(m.triangles) == 0 }
