package los

import (
	"context"
	"testing"
	"time"

	"ctf-arena-server/internal/geom"
	"ctf-arena-server/internal/mathutil"
)

func wallTriangles() []geom.Triangle {
	t1, _ := geom.NewTriangle(
		mathutil.Vec3{X: -5, Y: -5, Z: 10},
		mathutil.Vec3{X: 5, Y: -5, Z: 10},
		mathutil.Vec3{X: 5, Y: 5, Z: 10},
	)
	t2, _ := geom.NewTriangle(
		mathutil.Vec3{X: -5, Y: -5, Z: 10},
		mathutil.Vec3{X: 5, Y: 5, Z: 10},
		mathutil.Vec3{X: -5, Y: 5, Z: 10},
	)
	return []geom.Triangle{t1, t2}
}

func TestBatchLineOfSightSyncPath(t *testing.T) {
	pool := NewPool(2, wallTriangles())
	defer pool.Stop()

	queries := []Query{
		{From: mathutil.Vec3{Z: 0}, To: mathutil.Vec3{Z: 5}},  // clear, before the wall
		{From: mathutil.Vec3{Z: 0}, To: mathutil.Vec3{Z: 20}}, // blocked by the wall
	}

	results := pool.BatchLineOfSight(context.Background(), queries)
	if !results[0] {
		t.Fatal("expected short segment to be visible")
	}
	if results[1] {
		t.Fatal("expected segment through the wall to be blocked")
	}
}

func TestBatchLineOfSightWorkerPath(t *testing.T) {
	pool := NewPool(4, wallTriangles())
	defer pool.Stop()

	queries := make([]Query, 10)
	for i := range queries {
		queries[i] = Query{From: mathutil.Vec3{Z: 0}, To: mathutil.Vec3{Z: 20}}
	}

	results := pool.BatchLineOfSight(context.Background(), queries)
	for i, v := range results {
		if v {
			t.Fatalf("query %d: expected blocked", i)
		}
	}
}

func TestBatchLineOfSightDegradesOnTimeout(t *testing.T) {
	pool := NewPool(2, wallTriangles())
	defer pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	time.Sleep(time.Millisecond)

	queries := make([]Query, 10)
	for i := range queries {
		queries[i] = Query{From: mathutil.Vec3{Z: 0}, To: mathutil.Vec3{Z: 20}}
	}

	results := pool.BatchLineOfSight(ctx, queries)
	for i, v := range results {
		if !v {
			t.Fatalf("query %d: expected degrade-to-visible on an already-expired context", i)
		}
	}
}

func TestSetMeshReplacesSnapshot(t *testing.T) {
	pool := NewPool(2, nil)
	defer pool.Stop()

	q := []Query{{From: mathutil.Vec3{Z: 0}, To: mathutil.Vec3{Z: 20}}}
	results := pool.BatchLineOfSight(context.Background(), q)
	if !results[0] {
		t.Fatal("expected visible with empty mesh")
	}

	pool.SetMesh(wallTriangles())
	results = pool.BatchLineOfSight(context.Background(), q)
	if results[0] {
		t.Fatal("expected blocked after SetMesh installs the wall")
	}
}
