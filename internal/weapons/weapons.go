// Package weapons defines the static per-weapon-type stat table and the
// mutable per-inventory-slot weapon instance, plus the round/kill economy
// rules layered on top of them.
//
// Grounded on the teacher's game/weapons.go static weapon map and
// GetWeapon/GetAllWeapons lookup helpers, generalized from a melee
// damage-range table to a ranged-combat stat table (fireRate, range, spread,
// magazine/reserve ammo, reload time, headshot multiplier).
package weapons

// Type identifies a weapon definition in the static Table.
type Type string

const (
	Knife   Type = "knife"
	Pistol  Type = "pistol"
	Rifle   Type = "rifle"
	Shotgun Type = "shotgun"
	Sniper  Type = "sniper"
)

// Slot is the inventory category a weapon occupies; buying or picking up a
// weapon of a given slot replaces whatever currently occupies that slot.
type Slot string

const (
	SlotMelee   Slot = "melee"
	SlotSidearm Slot = "sidearm"
	SlotPrimary Slot = "primary"
)

// Def is a weapon's static, server-authoritative stat block.
type Def struct {
	Type              Type    `json:"type"`
	Slot              Slot    `json:"slot"`
	Cost              int     `json:"cost"`
	Damage            float64 `json:"damage"`
	FireRate          float64 `json:"fireRate"` // rounds per minute
	Range             float64 `json:"range"`    // meters
	SpreadDeg         float64 `json:"spreadDeg"`
	HeadshotMultiplier float64 `json:"headshotMultiplier"`
	MagazineSize      int     `json:"magazineSize"`
	ReserveAmmo       int     `json:"reserveAmmo"` // starting reserve on purchase
	ReloadTime        float64 `json:"reloadTime"`  // seconds
}

// Table is the static weapon stat table, keyed by Type. It never changes
// after process start and is safe for concurrent read-only access.
var Table = map[Type]Def{
	Knife: {
		Type: Knife, Slot: SlotMelee, Cost: 0,
		Damage: 40, FireRate: 133, Range: 2.5, SpreadDeg: 0,
		HeadshotMultiplier: 1.0, MagazineSize: 1, ReserveAmmo: 0, ReloadTime: 0,
	},
	Pistol: {
		Type: Pistol, Slot: SlotSidearm, Cost: 0,
		Damage: 26, FireRate: 300, Range: 35, SpreadDeg: 2.0,
		HeadshotMultiplier: 2.0, MagazineSize: 12, ReserveAmmo: 36, ReloadTime: 1.5,
	},
	Rifle: {
		Type: Rifle, Slot: SlotPrimary, Cost: 2700,
		Damage: 33, FireRate: 666, Range: 60, SpreadDeg: 1.5,
		HeadshotMultiplier: 4.0, MagazineSize: 30, ReserveAmmo: 90, ReloadTime: 2.5,
	},
	Shotgun: {
		Type: Shotgun, Slot: SlotPrimary, Cost: 1800,
		Damage: 20, FireRate: 70, Range: 12, SpreadDeg: 8.0,
		HeadshotMultiplier: 2.0, MagazineSize: 8, ReserveAmmo: 32, ReloadTime: 3.0,
	},
	Sniper: {
		Type: Sniper, Slot: SlotPrimary, Cost: 4750,
		Damage: 115, FireRate: 41, Range: 100, SpreadDeg: 0.2,
		HeadshotMultiplier: 2.5, MagazineSize: 5, ReserveAmmo: 20, ReloadTime: 3.7,
	},
}

// KillReward is the money a kill with a given weapon type awards, per
// DEFAULT_ECONOMY_CONFIG.
var KillReward = map[Type]int{
	Knife:   1500,
	Pistol:  300,
	Rifle:   300,
	Shotgun: 900,
	Sniper:  100,
}

// Get returns w's static definition, defaulting to the knife if the type is
// unrecognized (mirroring the teacher's GetWeapon fallback-to-fists policy).
func Get(t Type) Def {
	if d, ok := Table[t]; ok {
		return d
	}
	return Table[Knife]
}

// All returns every weapon definition, in no particular order.
func All() []Def {
	defs := make([]Def, 0, len(Table))
	for _, d := range Table {
		defs = append(defs, d)
	}
	return defs
}

// FireIntervalMillis is the minimum time between shots for a weapon's fire
// rate, in milliseconds (60000 / roundsPerMinute).
func (d Def) FireIntervalMillis() float64 {
	if d.FireRate <= 0 {
		return 0
	}
	return 60000.0 / d.FireRate
}

// Instance is the mutable per-slot weapon state a Player/Bot inventory holds.
type Instance struct {
	Type            Type    `json:"type"`
	CurrentAmmo     int     `json:"currentAmmo"`
	ReserveAmmo     int     `json:"reserveAmmo"`
	IsReloading     bool    `json:"isReloading"`
	ReloadStartTime float64 `json:"reloadStartTime"` // ms, monotonic
	LastFireTime    float64 `json:"lastFireTime"`    // ms, monotonic
}

// NewInstance returns a freshly purchased/spawned instance for t, filled to
// its definition's starting magazine and reserve ammo, and able to fire at
// once (LastFireTime is set one fire interval before time 0).
func NewInstance(t Type) Instance {
	def := Get(t)
	return Instance{
		Type:         t,
		CurrentAmmo:  def.MagazineSize,
		ReserveAmmo:  def.ReserveAmmo,
		LastFireTime: -def.FireIntervalMillis(),
	}
}

// CanFire reports whether the instance may fire at time nowMs, per spec:
// not reloading, ammo remaining, and the fire-rate interval elapsed.
func (w Instance) CanFire(nowMs float64) bool {
	def := Get(w.Type)
	if w.IsReloading || w.CurrentAmmo <= 0 {
		return false
	}
	return nowMs-w.LastFireTime >= def.FireIntervalMillis()
}

// StartReload begins a reload if eligible (not already reloading, magazine
// not full, reserve ammo available).
func (w *Instance) StartReload(nowMs float64) bool {
	def := Get(w.Type)
	if w.IsReloading || w.CurrentAmmo >= def.MagazineSize || w.ReserveAmmo <= 0 {
		return false
	}
	w.IsReloading = true
	w.ReloadStartTime = nowMs
	return true
}

// AdvanceReload moves ammo from reserve to magazine once reloadTime has
// elapsed, preserving total ammo (magazine+reserve) conservation.
func (w *Instance) AdvanceReload(nowMs float64) {
	if !w.IsReloading {
		return
	}
	def := Get(w.Type)
	if w.ReloadStartTime+def.ReloadTime*1000 > nowMs {
		return
	}
	need := def.MagazineSize - w.CurrentAmmo
	if need > w.ReserveAmmo {
		need = w.ReserveAmmo
	}
	w.CurrentAmmo += need
	w.ReserveAmmo -= need
	w.IsReloading = false
}
