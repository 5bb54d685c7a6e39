// Package metrics holds the process-wide Prometheus collectors shared by
// internal/room, internal/los, and internal/api. It exists as its own small
// package (rather than living inside internal/api, which the dependency
// graph forbids importing from internal/room) purely to avoid an import
// cycle; the collectors themselves, and the promauto registration style, are
// grounded on the teacher's internal/api/observability.go.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent executing one room tick",
		Buckets: []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.033},
	})

	losTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_los_pool_timeouts_total",
		Help: "Number of LOS batches that hit the worker-pool watchdog",
	})

	roomCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_rooms_active",
		Help: "Number of currently live rooms",
	})

	playerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_players_connected",
		Help: "Number of currently connected human players across all rooms",
	})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_ws_connections",
		Help: "Currently open WebSocket connections",
	})

	wsMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_ws_messages_total",
		Help: "Total WebSocket messages sent to clients",
	})
)

// RecordTick observes one room tick's wall-clock duration.
func RecordTick(d time.Duration) { tickDuration.Observe(d.Seconds()) }

// RecordLOSTimeout increments the LOS watchdog counter (spec.md §7
// WorkerTimeout: "log rate-limited" — Prometheus counters already coalesce
// repeated events without per-event log spam).
func RecordLOSTimeout() { losTimeouts.Inc() }

// SetRoomCount updates the live-room gauge.
func SetRoomCount(n int) { roomCount.Set(float64(n)) }

// SetPlayerCount updates the connected-player gauge.
func SetPlayerCount(n int) { playerCount.Set(float64(n)) }

// SetWSConnections updates the open-websocket-connection gauge.
func SetWSConnections(n int) { wsConnections.Set(float64(n)) }

// IncWSMessages increments the outbound WebSocket message counter.
func IncWSMessages() { wsMessages.Inc() }
