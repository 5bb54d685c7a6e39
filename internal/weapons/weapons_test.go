package weapons

import "testing"

func TestGetUnknownFallsBackToKnife(t *testing.T) {
	d := Get(Type("plasma_cannon"))
	if d.Type != Knife {
		t.Fatalf("expected fallback to knife, got %v", d.Type)
	}
}

func TestReloadConservesTotalAmmo(t *testing.T) {
	inst := NewInstance(Pistol)
	inst.CurrentAmmo = 2
	inst.ReserveAmmo = 20
	total := inst.CurrentAmmo + inst.ReserveAmmo

	if !inst.StartReload(0) {
		t.Fatal("expected reload to start")
	}
	inst.AdvanceReload(10_000) // well past the 1.5s reload time

	if inst.IsReloading {
		t.Fatal("expected reload to have completed")
	}
	if inst.CurrentAmmo+inst.ReserveAmmo != total {
		t.Fatalf("ammo not conserved: got %d, want %d", inst.CurrentAmmo+inst.ReserveAmmo, total)
	}
	if inst.CurrentAmmo != Get(Pistol).MagazineSize {
		t.Fatalf("expected magazine topped off, got %d", inst.CurrentAmmo)
	}
}

func TestReloadDoesNotCompleteEarly(t *testing.T) {
	inst := NewInstance(Rifle)
	inst.CurrentAmmo = 0
	inst.StartReload(0)
	inst.AdvanceReload(500) // well short of 2.5s

	if !inst.IsReloading {
		t.Fatal("expected reload still in progress")
	}
	if inst.CurrentAmmo != 0 {
		t.Fatalf("expected no ammo moved yet, got %d", inst.CurrentAmmo)
	}
}

func TestCanFireGatesOnAmmoAndRate(t *testing.T) {
	inst := NewInstance(Pistol)
	if !inst.CanFire(0) {
		t.Fatal("expected full magazine to allow firing")
	}

	inst.LastFireTime = 0
	if inst.CanFire(1) {
		t.Fatal("expected fire-rate gate to block an immediate second shot")
	}

	inst.CurrentAmmo = 0
	if inst.CanFire(10_000) {
		t.Fatal("expected empty magazine to block firing")
	}
}

func TestEconomyClampsToMaxMoney(t *testing.T) {
	cfg := DefaultEconomyConfig
	got := cfg.ClampMoney(cfg.MaxMoney + 5000)
	if got != cfg.MaxMoney {
		t.Fatalf("expected clamp to %d, got %d", cfg.MaxMoney, got)
	}
	if cfg.ClampMoney(-10) != 0 {
		t.Fatal("expected negative money clamped to 0")
	}
}
