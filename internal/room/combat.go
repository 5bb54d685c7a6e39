package room

import (
	"ctf-arena-server/internal/entity"
	"ctf-arena-server/internal/geom"
	"ctf-arena-server/internal/mathutil"
	"ctf-arena-server/internal/meshphys"
	"ctf-arena-server/internal/protocol"
	"ctf-arena-server/internal/weapons"
)

// resolveFire hit-scans one shot from origin along aim, blocked by the map
// mesh and tested against every other living entity's capsule. The nearest
// qualifying hit takes the damage; a hit point above the target's chest line
// counts as a headshot (spec.md §4.3).
func (r *Room) resolveFire(shooter *entity.Player, origin, aim mathutil.Vec3, weaponType weapons.Type, nowMs float64) {
	def := weapons.Get(weaponType)
	ray := geom.Ray{Origin: origin, Direction: aim}

	maxDist := def.Range
	if r.Map.BVH != nil {
		if wallHit, ok := r.Map.BVH.Raycast(ray, def.Range); ok {
			maxDist = wallHit.Distance
		}
	}

	var (
		bestTarget *entity.Player
		bestDist   = maxDist
		bestPoint  mathutil.Vec3
		found      bool
	)

	for _, target := range r.allEntities(shooter.ID) {
		if !target.Alive {
			continue
		}
		if target.Team == shooter.Team && !r.Config.FriendlyFire {
			continue
		}
		dist, point, ok := rayCapsuleHit(ray, target.Position, meshphys.PlayerHeight, meshphys.PlayerRadius, bestDist)
		if !ok {
			continue
		}
		bestTarget = target
		bestDist = dist
		bestPoint = point
		found = true
	}

	if !found || bestTarget == nil {
		return
	}

	headshot := bestPoint.Y >= bestTarget.Position.Y+entity.EyeHeight-0.2
	damage := def.Damage
	if headshot {
		damage *= def.HeadshotMultiplier
	}

	fatal := bestTarget.ApplyDamage(damage)

	if r.broadcaster != nil {
		r.broadcaster.BroadcastToRoom(r.ID, protocol.HitEventMsg{
			ShooterID: shooter.ID,
			TargetID:  bestTarget.ID,
			Damage:    damage,
			Headshot:  headshot,
		})
	}

	if !fatal {
		return
	}

	shooter.Kills++
	shooter.Money = r.Config.Economy.ClampMoney(shooter.Money + weapons.KillReward[weaponType])

	if r.broadcaster != nil {
		r.broadcaster.BroadcastToRoom(r.ID, protocol.KillEventMsg{
			KillerID: shooter.ID,
			VictimID: bestTarget.ID,
			Weapon:   weaponType,
			Headshot: headshot,
		})
	}
}

// rayCapsuleHit tests ray against the vertical capsule standing at feet with
// the given total height and radius. It returns the ray distance and world
// point of the closest approach when that approach is within radius and
// closer than maxDist.
func rayCapsuleHit(ray geom.Ray, feet mathutil.Vec3, height, radius, maxDist float64) (float64, mathutil.Vec3, bool) {
	top := feet
	top.Y += height

	tRay, tSeg := closestPointsRaySegment(ray, feet, top)
	if tRay < 0 || tRay > maxDist {
		return 0, mathutil.Vec3{}, false
	}

	rayPoint := ray.Origin.Add(ray.Direction.Scale(tRay))
	segPoint := feet.Add(top.Sub(feet).Scale(tSeg))

	if rayPoint.DistanceTo(segPoint) > radius {
		return 0, mathutil.Vec3{}, false
	}

	return tRay, rayPoint, true
}

// closestPointsRaySegment finds the parameters minimizing the distance
// between the infinite ray (t >= 0) and the segment [a, b] (u in [0, 1]),
// using the standard closest-points-between-two-lines solution.
func closestPointsRaySegment(ray geom.Ray, a, b mathutil.Vec3) (tRay, u float64) {
	d1 := ray.Direction
	d2 := b.Sub(a)
	r := ray.Origin.Sub(a)

	aa := d1.Dot(d1)
	bb := d1.Dot(d2)
	cc := d2.Dot(d2)
	dd := d1.Dot(r)
	ee := d2.Dot(r)

	denom := aa*cc - bb*bb
	if denom < 1e-9 {
		// Ray and segment are parallel; take the segment point nearest the
		// ray origin.
		u = 0
		if cc > 1e-9 {
			u = mathutil.Clamp(ee/cc, 0, 1)
		}
		tRay = (bb*u - dd) / maxf(aa, 1e-9)
		return
	}

	tRay = (bb*ee - cc*dd) / denom
	u = (aa*ee - bb*dd) / denom
	u = mathutil.Clamp(u, 0, 1)

	// Re-solve tRay for the clamped u to keep the pair consistent.
	tRay = (bb*u - dd) / maxf(aa, 1e-9)
	if tRay < 0 {
		tRay = 0
	}
	return
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
