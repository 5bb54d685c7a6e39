package mathutil

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func vecAlmostEqual(a, b Vec3) bool {
	return almostEqual(a.X, b.X) && almostEqual(a.Y, b.Y) && almostEqual(a.Z, b.Z)
}

func TestNormalizeReturnsUnitVector(t *testing.T) {
	v := Vec3{X: 3, Y: 4, Z: 0}.Normalize()
	if !almostEqual(v.Length(), 1) {
		t.Fatalf("expected unit length, got %v", v.Length())
	}
	if !vecAlmostEqual(v, Vec3{X: 0.6, Y: 0.8}) {
		t.Fatalf("unexpected direction: %+v", v)
	}
}

func TestNormalizeDegenerateReturnsZero(t *testing.T) {
	if Zero.Normalize() != Zero {
		t.Fatal("expected zero vector to normalize to zero")
	}
}

func TestCrossIsOrthogonal(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: -2, Y: 0.5, Z: 4}
	c := a.Cross(b)
	if !almostEqual(c.Dot(a), 0) || !almostEqual(c.Dot(b), 0) {
		t.Fatalf("cross product not orthogonal: %+v", c)
	}
}

func TestIsFiniteRejectsNaNAndInf(t *testing.T) {
	if (Vec3{X: math.NaN()}).IsFinite() {
		t.Fatal("expected NaN component rejected")
	}
	if (Vec3{Z: math.Inf(-1)}).IsFinite() {
		t.Fatal("expected Inf component rejected")
	}
	if !(Vec3{X: 1, Y: -2, Z: 3}).IsFinite() {
		t.Fatal("expected finite vector accepted")
	}
}

func TestYawPitchToForwardConvention(t *testing.T) {
	// Yaw 0, pitch 0 looks down -Z.
	if !vecAlmostEqual(YawPitchToForward(0, 0), Vec3{Z: -1}) {
		t.Fatalf("unexpected forward at yaw=0: %+v", YawPitchToForward(0, 0))
	}
	// Yaw pi flips to +Z.
	if !vecAlmostEqual(YawPitchToForward(math.Pi, 0), Vec3{Z: 1}) {
		t.Fatalf("unexpected forward at yaw=pi: %+v", YawPitchToForward(math.Pi, 0))
	}
	// Pitch pi/2 looks straight up.
	up := YawPitchToForward(0, math.Pi/2)
	if !almostEqual(up.Y, 1) {
		t.Fatalf("expected straight up at pitch=pi/2, got %+v", up)
	}
}

func TestYawToRightIsPerpendicularToForward(t *testing.T) {
	for _, yaw := range []float64{0, 0.7, -1.3, math.Pi} {
		fwd := YawPitchToForward(yaw, 0)
		right := YawToRight(yaw)
		if !almostEqual(fwd.Dot(right), 0) {
			t.Fatalf("yaw %v: forward and right not perpendicular", yaw)
		}
		if !almostEqual(right.Length(), 1) {
			t.Fatalf("yaw %v: right not unit length", yaw)
		}
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 1) != 1 || Clamp(-5, 0, 1) != 0 || Clamp(0.5, 0, 1) != 0.5 {
		t.Fatal("unexpected clamp results")
	}
}

func TestLerpEndpoints(t *testing.T) {
	a := Vec3{X: 1}
	b := Vec3{X: 3, Y: 2}
	if !vecAlmostEqual(a.Lerp(b, 0), a) || !vecAlmostEqual(a.Lerp(b, 1), b) {
		t.Fatal("lerp endpoints wrong")
	}
	if !vecAlmostEqual(a.Lerp(b, 0.5), Vec3{X: 2, Y: 1}) {
		t.Fatal("lerp midpoint wrong")
	}
}
