// Package los implements the line-of-sight worker pool: a fixed-size set of
// goroutines, all reading one shared, read-only collision triangle snapshot
// (the workers do not hold copies of their own), that answer batched visibility queries with a hard timeout and a
// synchronous fallback for small batches.
//
// Grounded on the teacher's streaming/render_pool.go worker-pool shape
// (persistent goroutines draining a job channel, a context-scoped timeout on
// the caller side) generalized from frame-encode jobs to ray-vs-mesh queries,
// and on SoftbearStudios-mk48's update.go fan-out/collect pattern for
// partitioning work across a fixed goroutine count.
package los

import (
	"context"
	"sync"
	"time"

	"ctf-arena-server/internal/geom"
	"ctf-arena-server/internal/mathutil"
	"ctf-arena-server/internal/metrics"
)

// Query is one visibility test: is `To` visible from `From` through the mesh.
type Query struct {
	From, To mathutil.Vec3
}

// SyncThreshold is the batch size below which the caller resolves queries
// synchronously rather than paying worker dispatch overhead (spec.md §4.3).
const SyncThreshold = 4

// DefaultTimeout bounds how long BatchLineOfSight waits for worker replies
// before degrading (spec.md §4.3: 1s watchdog).
const DefaultTimeout = 1 * time.Second

const minWorkers = 2
const maxWorkers = 4

type job struct {
	queries []Query
	results []bool     // private per-job buffer; the dispatcher copies it out only after reply
	reply   chan<- int // partition index, signalled when results is fully written
	index   int
}

// Pool is a fixed-size set of persistent worker goroutines. Each job reads
// the current triangle snapshot from the mesh field (guarded by mu), which
// is swapped wholesale on map change so in-flight jobs never see a torn mesh.
type Pool struct {
	jobs    chan job
	stop    chan struct{}
	wg      sync.WaitGroup
	workers int

	mu   sync.RWMutex
	mesh []geom.Triangle
}

// NewPool starts a pool of n workers (clamped to [2,4]) over triangles.
func NewPool(n int, triangles []geom.Triangle) *Pool {
	if n < minWorkers {
		n = minWorkers
	}
	if n > maxWorkers {
		n = maxWorkers
	}

	p := &Pool{
		jobs:    make(chan job),
		stop:    make(chan struct{}),
		workers: n,
		mesh:    triangles,
	}

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}

	return p
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			mesh := p.currentMesh()
			for i, q := range j.queries {
				j.results[i] = traceVisible(mesh, q)
			}
			if j.reply != nil {
				j.reply <- j.index
			}
		}
	}
}

func (p *Pool) currentMesh() []geom.Triangle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mesh
}

// SetMesh replaces the triangle snapshot every worker reads from. Called once
// per map load/change; safe to call while the pool is in flight, since each
// in-progress job already captured its own mesh reference.
func (p *Pool) SetMesh(triangles []geom.Triangle) {
	p.mu.Lock()
	p.mesh = triangles
	p.mu.Unlock()
}

// Stop terminates all workers. Room teardown calls this to drop pending
// worker messages; late sends to a stopped pool's jobs channel never occur
// because BatchLineOfSight always selects against ctx.Done alongside the send.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
}

// BatchLineOfSight resolves visibility for every query, returning a slice
// result[i] aligned with queries[i]. Below SyncThreshold queries it computes
// synchronously. Otherwise it round-robin partitions queries across workers
// by ceil(n/workers), each partition into its own private buffer, and waits
// up to DefaultTimeout. A buffer is copied into the returned slice only
// after its worker's completion signal arrives on the reply channel, so the
// caller never shares memory with a worker it may later abandon. If the
// watchdog fires, the whole batch degrades to `true` so BotBrain's FOV-only
// fallback takes over for this think; partially finished partitions are
// discarded rather than mixed in, keeping the degradation uniform.
func (p *Pool) BatchLineOfSight(ctx context.Context, queries []Query) []bool {
	n := len(queries)
	if n == 0 {
		return nil
	}

	results := make([]bool, n)

	if n < SyncThreshold {
		mesh := p.currentMesh()
		for i, q := range queries {
			results[i] = traceVisible(mesh, q)
		}
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	chunkSize := (n + p.workers - 1) / p.workers
	var partitions [][2]int // [start, end)
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		partitions = append(partitions, [2]int{start, end})
	}

	buffers := make([][]bool, len(partitions))
	done := make(chan int, len(partitions))
	for idx, part := range partitions {
		buffers[idx] = make([]bool, part[1]-part[0])
		j := job{
			queries: queries[part[0]:part[1]],
			results: buffers[idx],
			reply:   done,
			index:   idx,
		}
		if ctx.Err() != nil {
			return p.degrade(results)
		}
		select {
		case p.jobs <- j:
		case <-ctx.Done():
			return p.degrade(results)
		}
	}

	for completed := 0; completed < len(partitions); completed++ {
		if ctx.Err() != nil {
			return p.degrade(results)
		}
		select {
		case idx := <-done:
			part := partitions[idx]
			copy(results[part[0]:part[1]], buffers[idx])
		case <-ctx.Done():
			return p.degrade(results)
		}
	}

	return results
}

// degrade reports the entire batch visible after a watchdog expiry
// (spec.md §7 WorkerTimeout policy). Outstanding workers keep writing
// their own private buffers, which nothing reads again.
func (p *Pool) degrade(results []bool) []bool {
	metrics.RecordLOSTimeout()
	fillVisible(results)
	return results
}

func fillVisible(dst []bool) {
	for i := range dst {
		dst[i] = true
	}
}

// traceVisible performs an AABB precheck against the query segment's bounding
// box and a ray-vs-AABB slab test, then raycasts each remaining triangle in
// mesh, returning early false on the first hit with t in (epsilon, dist-0.1)
// (spec.md §4.3).
func traceVisible(mesh []geom.Triangle, q Query) bool {
	const epsilon = 1e-6
	const surfaceSlop = 0.1

	dir := q.To.Sub(q.From)
	dist := dir.Length()
	if dist < 1e-9 {
		return true
	}
	ray := geom.Ray{Origin: q.From, Direction: dir.Scale(1 / dist)}
	maxT := dist - surfaceSlop
	if maxT <= epsilon {
		return true
	}

	segMin, segMax := mathutil.Min(q.From, q.To), mathutil.Max(q.From, q.To)

	for _, tri := range mesh {
		triBounds := geom.TriangleBounds(tri)
		if triBounds.Max.X < segMin.X || triBounds.Min.X > segMax.X ||
			triBounds.Max.Y < segMin.Y || triBounds.Min.Y > segMax.Y ||
			triBounds.Max.Z < segMin.Z || triBounds.Min.Z > segMax.Z {
			continue // triangle lies outside the segment's bounding box
		}
		if _, hit := geom.RayAABB(ray, triBounds, maxT); !hit {
			continue // AABB precheck rejects this triangle outright
		}
		d, hit := geom.RayTriangle(ray, tri)
		if hit && d > epsilon && d < maxT {
			return false
		}
	}
	return true
}
