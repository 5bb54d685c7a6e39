package protocol

import "ctf-arena-server/internal/weapons"

// EntitySnapshot is the minimal per-player/bot projection a broadcast
// snapshot carries (spec.md §4.5): enough for client-side rendering and
// interpolation, nothing server-internal (no AI state, no input queues).
type EntitySnapshot struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Position      [3]float64   `json:"position"`
	Yaw           float64      `json:"yaw"`
	Pitch         float64      `json:"pitch"`
	Health        float64      `json:"health"`
	Armor         float64      `json:"armor"`
	Team          string       `json:"team"`
	Alive         bool         `json:"isAlive"`
	CurrentWeapon weapons.Type `json:"currentWeapon"`
	Money         int          `json:"money"`
	Kills         int          `json:"kills"`
	Deaths        int          `json:"deaths"`
}

// DroppedWeaponSnapshot projects a ground weapon for broadcast.
type DroppedWeaponSnapshot struct {
	ID       string       `json:"id"`
	Type     weapons.Type `json:"type"`
	Position [3]float64   `json:"position"`
}

// Snapshot is the full per-broadcast room state a client renders from.
type Snapshot struct {
	Tick           uint64                  `json:"tick"`
	TimestampMs    float64                 `json:"timestamp"`
	Phase          string                  `json:"phase"`
	RoundNumber    int                     `json:"roundNumber"`
	RoundTimeLeft  float64                 `json:"roundTimeLeft"`
	FreezeTimeLeft float64                 `json:"freezeTimeLeft"`
	Entities       []EntitySnapshot        `json:"entities"`
	DroppedWeapons []DroppedWeaponSnapshot `json:"droppedWeapons"`
	TScore         int                     `json:"tScore"`
	CTScore        int                     `json:"ctScore"`
}
