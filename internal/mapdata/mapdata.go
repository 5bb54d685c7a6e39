// Package mapdata loads the pre-built triangle mesh and spawn list a Room
// is constructed with. The core consumes this data; it does not parse any
// on-disk level format itself (spec.md §1 explicitly places BSP/WAD parsing
// out of scope) — map authoring happens upstream and hands the core plain
// JSON.
//
// Grounded on the teacher's config.go pattern of a typed struct loaded from
// JSON with sane defaults, generalized from flat world-bounds numbers to the
// {bounds, spawnPoints, collisionMesh} shape spec.md §6 names.
package mapdata

import (
	"encoding/json"
	"fmt"

	"ctf-arena-server/internal/collision"
	"ctf-arena-server/internal/entity"
	"ctf-arena-server/internal/mathutil"
)

// Bounds is the map's axis-aligned play volume, used for the last-resort
// world-bounds clamp the tick loop applies to every living entity.
type Bounds struct {
	Min mathutil.Vec3 `json:"min"`
	Max mathutil.Vec3 `json:"max"`
}

// Clamp restricts p to within b.
func (b Bounds) Clamp(p mathutil.Vec3) mathutil.Vec3 {
	return mathutil.Vec3{
		X: mathutil.Clamp(p.X, b.Min.X, b.Max.X),
		Y: mathutil.Clamp(p.Y, b.Min.Y, b.Max.Y),
		Z: mathutil.Clamp(p.Z, b.Min.Z, b.Max.Z),
	}
}

// rawTriangle mirrors the wire shape of one collision triangle: three
// vertices, normal omitted (recomputed and validated on load).
type rawTriangle struct {
	V0 mathutil.Vec3 `json:"v0"`
	V1 mathutil.Vec3 `json:"v1"`
	V2 mathutil.Vec3 `json:"v2"`
}

type rawSpawnPoint struct {
	Position mathutil.Vec3 `json:"position"`
	Yaw      float64       `json:"yaw"`
	Team     entity.Team   `json:"team"`
}

type rawMap struct {
	Bounds         Bounds          `json:"bounds"`
	SpawnPoints    []rawSpawnPoint `json:"spawnPoints"`
	CollisionMesh  []rawTriangle   `json:"collisionMesh"`
}

// Map is a loaded, ready-to-play map: bounds, spawn list, and the built BVH
// over its collision mesh. Immutable for the life of the rooms built from
// it; the same *Map (and its BVH) may be shared by reference across rooms
// running the same map.
type Map struct {
	Bounds      Bounds
	SpawnPoints []entity.SpawnPoint
	Mesh        *collision.Mesh
	BVH         *collision.BVH
}

// Load parses raw JSON in the {bounds, spawnPoints, collisionMesh} shape
// spec.md §6 describes, building the mesh and its BVH. Degenerate triangles
// are silently dropped by collision.Mesh, matching the CollisionMesh
// invariant; a map with zero valid spawn points is rejected since no room
// could ever place an entity.
func Load(raw []byte) (*Map, error) {
	var m rawMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("mapdata: parse: %w", err)
	}
	if len(m.SpawnPoints) == 0 {
		return nil, fmt.Errorf("mapdata: map has no spawn points")
	}

	tris := make([][3]mathutil.Vec3, len(m.CollisionMesh))
	for i, t := range m.CollisionMesh {
		tris[i] = [3]mathutil.Vec3{t.V0, t.V1, t.V2}
	}
	mesh := collision.NewMesh(tris)

	spawns := make([]entity.SpawnPoint, len(m.SpawnPoints))
	for i, s := range m.SpawnPoints {
		spawns[i] = entity.SpawnPoint{Position: s.Position, Yaw: s.Yaw, Team: s.Team}
	}

	return &Map{
		Bounds:      m.Bounds,
		SpawnPoints: spawns,
		Mesh:        mesh,
		BVH:         collision.Build(mesh),
	}, nil
}

// FlatTestArena returns a small built-in map for local testing and default
// room creation when no map JSON is supplied: a 40x40 flat floor with four
// corner spawns (two per team) and no walls.
func FlatTestArena() *Map {
	const half = 20.0
	tris := [][3]mathutil.Vec3{
		{{X: -half, Y: 0, Z: -half}, {X: half, Y: 0, Z: -half}, {X: half, Y: 0, Z: half}},
		{{X: -half, Y: 0, Z: -half}, {X: half, Y: 0, Z: half}, {X: -half, Y: 0, Z: half}},
	}
	mesh := collision.NewMesh(tris)

	spawns := []entity.SpawnPoint{
		{Position: mathutil.Vec3{X: -half + 2, Y: 0, Z: -half + 2}, Yaw: 0.78, Team: entity.TeamT},
		{Position: mathutil.Vec3{X: -half + 2, Y: 0, Z: half - 2}, Yaw: -0.78, Team: entity.TeamT},
		{Position: mathutil.Vec3{X: half - 2, Y: 0, Z: -half + 2}, Yaw: 2.36, Team: entity.TeamCT},
		{Position: mathutil.Vec3{X: half - 2, Y: 0, Z: half - 2}, Yaw: -2.36, Team: entity.TeamCT},
	}

	return &Map{
		Bounds:      Bounds{Min: mathutil.Vec3{X: -half, Y: -5, Z: -half}, Max: mathutil.Vec3{X: half, Y: 20, Z: half}},
		SpawnPoints: spawns,
		Mesh:        mesh,
		BVH:         collision.Build(mesh),
	}
}

// SteppedTestArena is FlatTestArena plus a platform raised 0.3 above the
// floor with no side faces; meshphys.MoveWithMesh's ground snap lifts an
// entity onto it, so it exercises climbing onto a raised surface end-to-end
// against a loaded map rather than a synthetic mesh.
func SteppedTestArena() *Map {
	base := FlatTestArena()
	tris := [][3]mathutil.Vec3{
		{{X: 2, Y: 0.3, Z: -20}, {X: 20, Y: 0.3, Z: -20}, {X: 20, Y: 0.3, Z: 20}},
		{{X: 2, Y: 0.3, Z: -20}, {X: 20, Y: 0.3, Z: 20}, {X: 2, Y: 0.3, Z: 20}},
	}
	for _, t := range tris {
		base.Mesh.AddTriangle(t[0], t[1], t[2])
	}
	base.BVH = collision.Build(base.Mesh)
	return base
}
