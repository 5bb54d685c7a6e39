// Package meshphys implements capsule-vs-triangle-mesh collision: sphere and
// capsule depenetration, stair stepping, ground snapping, and the combined
// move-and-slide step the tick loop calls once per physics entity per tick.
//
// Grounded on the teacher's game/player.go ResolveCollisions, which pushes
// two overlapping player circles apart along the shortest separating normal
// by `penetration`. This package generalizes that same push-along-normal
// idea from circle-vs-circle in a 2D arena to sphere-vs-triangle and
// capsule-vs-mesh in a 3D world, using Ericson's closest-point-on-triangle
// test (internal/geom) for the per-triangle penetration depth.
package meshphys

import (
	"math"

	"ctf-arena-server/internal/collision"
	"ctf-arena-server/internal/geom"
	"ctf-arena-server/internal/mathutil"
)

// Tunables, all named exactly as spec.md §4.2 lists them.
const (
	StepHeight           = 0.5
	SlopeLimitCos        = 0.6
	PlayerRadius         = 0.4
	PlayerHeight         = 1.8
	MinPenetration       = 0.02
	MaxSubsteps          = 3
	MaxDepenetrationIter = 6
	MaxFallSpeed         = -20.0
	overshoot            = 1.02
)

type Vec3 = mathutil.Vec3

// Contact is one resolved sphere-triangle overlap.
type Contact struct {
	Penetration float64
	PushOut     Vec3 // unit separating direction * penetration
	Normal      Vec3
}

// SphereTriangle tests a sphere against one triangle, returning the push-out
// vector needed to resolve the overlap (Ericson closest-point regions, seven
// cases collapsed into geom.ClosestPointOnTriangle).
func SphereTriangle(center Vec3, radius float64, tri geom.Triangle) (Contact, bool) {
	closest := geom.ClosestPointOnTriangle(center, tri)
	diff := center.Sub(closest)
	dist := diff.Length()

	if dist >= radius {
		return Contact{}, false
	}

	var dir Vec3
	if dist < 1e-9 {
		// Degenerate distance: center lies on the triangle surface: push
		// along the triangle normal instead of an undefined direction.
		dir = tri.Normal
	} else {
		dir = diff.Scale(1 / dist)
	}

	pen := radius - dist
	return Contact{Penetration: pen, PushOut: dir.Scale(pen), Normal: tri.Normal}, true
}

// CapsuleTriangle samples N=5 points along the capsule segment [bottom, top]
// and keeps the sample with maximum penetration against tri (spec.md §4.2).
func CapsuleTriangle(bottom, top Vec3, radius float64, tri geom.Triangle) (Contact, bool) {
	const samples = 5
	var best Contact
	found := false

	for i := 0; i < samples; i++ {
		t := float64(i) / float64(samples-1)
		p := bottom.Lerp(top, t)
		c, ok := SphereTriangle(p, radius, tri)
		if ok && (!found || c.Penetration > best.Penetration) {
			best = c
			found = true
		}
	}
	return best, found
}

// World is the read-only collision environment a move step resolves against.
type World struct {
	Mesh *collision.Mesh
	BVH  *collision.BVH
}

// ResolveWallCollisions iteratively pushes pos.XZ out of any triangle whose
// slope is wall-like (|normal.y| < SlopeLimitCos) using a capsule spanning
// [feet+StepHeight+0.1, feet+PlayerHeight-0.6], per spec.md §4.2.
func (w World) ResolveWallCollisions(pos Vec3) Vec3 {
	if w.Mesh == nil || w.Mesh.Empty() {
		return pos
	}

	for iter := 0; iter < MaxDepenetrationIter; iter++ {
		bottom := Vec3{X: pos.X, Y: pos.Y + StepHeight + 0.1, Z: pos.Z}
		top := Vec3{X: pos.X, Y: pos.Y + PlayerHeight - 0.6, Z: pos.Z}

		var pushX, pushZ float64
		contacts := 0

		candidates := w.candidateTriangles(pos, PlayerRadius+StepHeight+1)
		tris := w.Mesh.Triangles()
		for _, ci := range candidates {
			tri := tris[ci]
			if math.Abs(tri.Normal.Y) >= SlopeLimitCos {
				continue // floor/ceiling-like, not a wall
			}
			c, ok := CapsuleTriangle(bottom, top, PlayerRadius, tri)
			if !ok || c.Penetration <= MinPenetration {
				continue
			}
			pushX += c.PushOut.X
			pushZ += c.PushOut.Z
			contacts++
		}

		if contacts == 0 {
			break
		}

		pos.X += pushX * overshoot
		pos.Z += pushZ * overshoot
	}

	return pos
}

func (w World) candidateTriangles(pos Vec3, radius float64) []int32 {
	if w.BVH == nil {
		return nil
	}
	return w.BVH.QuerySphereCandidates(pos, radius, nil)
}

// GroundHit describes a downward raycast result used for ground finding.
type GroundHit struct {
	Y      float64
	Normal Vec3
	Found  bool
}

// FindGroundBelow raycasts straight down from origin up to maxDist, keeping
// only hits whose slope is walkable (|normal.y| >= SlopeLimitCos).
func (w World) FindGroundBelow(origin Vec3, maxDist float64) GroundHit {
	if w.BVH == nil || w.Mesh == nil || w.Mesh.Empty() {
		return GroundHit{}
	}
	ray := geom.Ray{Origin: origin, Direction: Vec3{X: 0, Y: -1, Z: 0}}
	hit, ok := w.BVH.Raycast(ray, maxDist)
	if !ok || math.Abs(hit.Normal.Y) < SlopeLimitCos {
		return GroundHit{}
	}
	return GroundHit{Y: hit.Point.Y, Normal: hit.Normal, Found: true}
}

// MoveState is the mutable per-entity physics state a single step advances.
type MoveState struct {
	Pos      Vec3
	Vel      Vec3
	OnGround bool
	// PrevGroundY is the ground height found on the previous tick; used to
	// detect tunneling through a floor thicker than StepHeight.
	PrevGroundY    float64
	HasPrevGroundY bool
}

// MoveWithMesh advances state by dt against world, implementing spec.md
// §4.2's moveWithMeshCollision: depenetrate, sub-stepped horizontal motion
// with step-up, vertical integration with fall-speed clamp, ground snap,
// ceiling test, and the previous-ground tunneling guard.
func MoveWithMesh(state MoveState, world World, dt float64) MoveState {
	pos := world.ResolveWallCollisions(state.Pos)
	vel := state.Vel

	horizontal := Vec3{X: vel.X * dt, Y: 0, Z: vel.Z * dt}
	moveLen := horizontal.Length()

	nSteps := 1
	if moveLen > 0 {
		nSteps = int(math.Ceil(moveLen / (0.4 * PlayerRadius)))
		if nSteps < 1 {
			nSteps = 1
		}
		if nSteps > MaxSubsteps {
			nSteps = MaxSubsteps
		}
	}

	stepMove := horizontal.Scale(1.0 / float64(nSteps))

	for s := 0; s < nSteps; s++ {
		trial := pos.Add(stepMove)

		feetBlocked := world.sphereBlocked(trial, 0.05)
		midClear := !world.sphereBlocked(Vec3{X: trial.X, Y: trial.Y + StepHeight*0.5, Z: trial.Z}, 0)
		headClear := !world.sphereBlocked(Vec3{X: trial.X, Y: trial.Y + PlayerHeight - 0.3, Z: trial.Z}, 0)

		if feetBlocked && midClear && headClear {
			steppedUp := Vec3{X: trial.X, Y: trial.Y + StepHeight, Z: trial.Z}
			if !world.sphereBlocked(steppedUp, 0.05) {
				ground := world.FindGroundBelow(steppedUp.Add(Vec3{Y: 0.1}), StepHeight+2)
				if ground.Found {
					drop := steppedUp.Y - ground.Y
					if drop >= -0.1 && drop <= StepHeight+0.3 {
						pos = Vec3{X: trial.X, Y: ground.Y, Z: trial.Z}
						vel.Y = 0
						state.OnGround = true
						continue
					}
				}
			}
			// Step-up failed: block horizontal motion, zero that component.
			pos = world.ResolveWallCollisions(pos)
			vel.X = 0
			vel.Z = 0
			continue
		}

		if feetBlocked {
			pos = world.ResolveWallCollisions(trial)
			vel.X = 0
			vel.Z = 0
			continue
		}

		pos = trial
	}

	// Vertical integration.
	vel.Y = math.Max(vel.Y, MaxFallSpeed)
	pos.Y += vel.Y * dt

	// Ground snap.
	groundProbeOrigin := pos.Add(Vec3{Y: 2})
	ground := world.FindGroundBelow(groundProbeOrigin, 10)
	if ground.Found {
		drop := pos.Y - ground.Y
		switch {
		case vel.Y <= 2 && drop <= StepHeight && drop >= -1:
			pos.Y = ground.Y
			if vel.Y < 0 {
				vel.Y = 0
			}
			state.OnGround = true
		case drop < 0:
			pos.Y = ground.Y
			state.OnGround = true
		case drop <= 0.1:
			state.OnGround = true
		default:
			state.OnGround = false
		}
	} else if pos.Y <= 0 {
		// World-floor backstop only applies when the mesh has nothing to
		// say about this column (spec.md §9 Open Question: the two must
		// not fight; the mesh always wins when it reports ground).
		pos.Y = 0
		if vel.Y < 0 {
			vel.Y = 0
		}
		state.OnGround = true
	} else {
		state.OnGround = false
	}

	// Tunneling guard: if we fell through a floor we stood on last tick by
	// more than StepHeight, snap back up to it.
	if state.HasPrevGroundY && vel.Y <= 2 {
		if state.PrevGroundY-pos.Y > StepHeight && state.PrevGroundY-pos.Y < 50 {
			pos.Y = state.PrevGroundY
			if vel.Y < 0 {
				vel.Y = 0
			}
			state.OnGround = true
		}
	}
	if ground.Found {
		state.PrevGroundY = ground.Y
		state.HasPrevGroundY = true
	}

	// Ceiling test.
	if vel.Y > 0 {
		ray := geom.Ray{Origin: pos.Add(Vec3{Y: PlayerHeight}), Direction: Vec3{Y: 1}}
		if world.BVH != nil {
			if hit, ok := world.BVH.Raycast(ray, 0.2); ok {
				vel.Y = 0
				pos.Y = hit.Point.Y - PlayerHeight
			}
		}
	}

	state.Pos = pos
	state.Vel = vel
	return state
}

// sphereBlocked reports whether a sphere of PlayerRadius+extra at p overlaps
// any wall-like triangle (used by the step-up probe).
func (w World) sphereBlocked(p Vec3, extra float64) bool {
	if w.BVH == nil || w.Mesh == nil || w.Mesh.Empty() {
		return false
	}
	radius := PlayerRadius + extra
	candidates := w.BVH.QuerySphereCandidates(p, radius, nil)
	tris := w.Mesh.Triangles()
	for _, ci := range candidates {
		tri := tris[ci]
		if math.Abs(tri.Normal.Y) >= SlopeLimitCos {
			continue
		}
		if _, ok := SphereTriangle(p, radius, tri); ok {
			return true
		}
	}
	return false
}
