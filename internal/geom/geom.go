// Package geom implements the primitive intersection tests the collision
// core is built from: ray-triangle (Möller–Trumbore), ray-AABB (slab test),
// sphere-AABB overlap, and the closest-point-on-triangle query used by
// capsule depenetration.
//
// Grounded on the pack's render-engine raycaster
// (other_examples/...mrigankad-gorenderengine__editor-raycast.go.go), which
// implements the same two tests for its editor gizmo picking.
package geom

import (
	"math"

	"ctf-arena-server/internal/mathutil"
)

type Vec3 = mathutil.Vec3

// Triangle is a single collision face with a precomputed unit normal.
type Triangle struct {
	V0, V1, V2 Vec3
	Normal     Vec3
}

// NewTriangle builds a triangle and its normal, reporting ok=false for
// degenerate geometry (near-zero area or non-finite normal) so the caller
// can drop it at mesh construction time.
func NewTriangle(v0, v1, v2 Vec3) (Triangle, bool) {
	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)
	cross := e1.Cross(e2)
	length := cross.Length()
	if length < 1e-8 || math.IsNaN(length) {
		return Triangle{}, false
	}
	n := cross.Scale(1 / length)
	if !n.IsFinite() || !v0.IsFinite() || !v1.IsFinite() || !v2.IsFinite() {
		return Triangle{}, false
	}
	return Triangle{V0: v0, V1: v1, V2: v2, Normal: n}, true
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max Vec3
}

// EmptyAABB returns an AABB suitable as the identity element for Union.
func EmptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{Min: Vec3{X: inf, Y: inf, Z: inf}, Max: Vec3{X: -inf, Y: -inf, Z: -inf}}
}

func (b AABB) Union(o AABB) AABB {
	return AABB{Min: mathutil.Min(b.Min, o.Min), Max: mathutil.Max(b.Max, o.Max)}
}

func (b AABB) ExpandPoint(p Vec3) AABB {
	return AABB{Min: mathutil.Min(b.Min, p), Max: mathutil.Max(b.Max, p)}
}

func (b AABB) Centroid() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// SurfaceArea returns the AABB's surface area, used by the SAH BVH builder.
func (b AABB) SurfaceArea() float64 {
	d := b.Max.Sub(b.Min)
	if d.X < 0 || d.Y < 0 || d.Z < 0 {
		return 0
	}
	return 2 * (d.X*d.Y + d.Y*d.Z + d.Z*d.X)
}

func TriangleBounds(t Triangle) AABB {
	b := EmptyAABB()
	b = b.ExpandPoint(t.V0)
	b = b.ExpandPoint(t.V1)
	b = b.ExpandPoint(t.V2)
	return b
}

// Ray is a parametric ray: point(t) = Origin + Direction*t, t >= 0.
type Ray struct {
	Origin, Direction Vec3
}

// RayAABB performs the slab test against box, returning the entry distance
// tmin and whether the ray intersects within [0, maxDist].
func RayAABB(r Ray, box AABB, maxDist float64) (tmin float64, hit bool) {
	invX := safeInv(r.Direction.X)
	invY := safeInv(r.Direction.Y)
	invZ := safeInv(r.Direction.Z)

	tx1 := (box.Min.X - r.Origin.X) * invX
	tx2 := (box.Max.X - r.Origin.X) * invX
	ty1 := (box.Min.Y - r.Origin.Y) * invY
	ty2 := (box.Max.Y - r.Origin.Y) * invY
	tz1 := (box.Min.Z - r.Origin.Z) * invZ
	tz2 := (box.Max.Z - r.Origin.Z) * invZ

	tMin := math.Max(math.Max(math.Min(tx1, tx2), math.Min(ty1, ty2)), math.Min(tz1, tz2))
	tMax := math.Min(math.Min(math.Max(tx1, tx2), math.Max(ty1, ty2)), math.Max(tz1, tz2))

	if tMax < 0 || tMin > tMax || tMin > maxDist {
		return 0, false
	}
	return tMin, true
}

func safeInv(x float64) float64 {
	if x == 0 {
		// Produces +/-Inf, which the slab test handles correctly (an
		// axis-aligned ray never crosses a slab it runs parallel to
		// unless it started inside it).
		return math.Inf(1)
	}
	return 1 / x
}

// RayTriangle implements two-sided Möller–Trumbore intersection. It does not
// reject a negative determinant (back-face hits count), matching spec.md
// §4.1's "two-sided tests" requirement. Returns the hit distance t along
// the ray and hit=true on success; barycentric (u, v) are not returned.
func RayTriangle(r Ray, t Triangle) (dist float64, hit bool) {
	const epsilon = 1e-9

	edge1 := t.V1.Sub(t.V0)
	edge2 := t.V2.Sub(t.V0)
	h := r.Direction.Cross(edge2)
	a := edge1.Dot(h)

	if a > -epsilon && a < epsilon {
		return 0, false // ray parallel to triangle plane
	}

	f := 1.0 / a
	s := r.Origin.Sub(t.V0)
	u := f * s.Dot(h)
	if u < 0 || u > 1 {
		return 0, false
	}

	q := s.Cross(edge1)
	v := f * r.Direction.Dot(q)
	if v < 0 || u+v > 1 {
		return 0, false
	}

	d := f * edge2.Dot(q)
	if d <= epsilon {
		return 0, false
	}
	return d, true
}

// SphereAABBOverlap reports whether a sphere at center with the given radius
// overlaps box, by clamping center into the box and checking the distance
// to that closest point.
func SphereAABBOverlap(center Vec3, radius float64, box AABB) bool {
	closest := Vec3{
		X: mathutil.Clamp(center.X, box.Min.X, box.Max.X),
		Y: mathutil.Clamp(center.Y, box.Min.Y, box.Max.Y),
		Z: mathutil.Clamp(center.Z, box.Min.Z, box.Max.Z),
	}
	return closest.DistanceTo(center) <= radius
}

// ClosestPointOnTriangle implements Ericson's "Real-Time Collision Detection"
// 7-region barycentric closest-point test (Christer Ericson, ch. 5.1.5).
func ClosestPointOnTriangle(p Vec3, t Triangle) Vec3 {
	a, b, c := t.V0, t.V1, t.V2

	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)

	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a // vertex region A
	}

	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b // vertex region B
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return a.Add(ab.Scale(v)) // edge region AB
	}

	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c // vertex region C
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return a.Add(ac.Scale(w)) // edge region AC
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).Scale(w)) // edge region BC
	}

	// face region: barycentric (u, v, w)
	denom := 1.0 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return a.Add(ab.Scale(v)).Add(ac.Scale(w))
}
