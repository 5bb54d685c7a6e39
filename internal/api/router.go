package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"ctf-arena-server/internal/protocol"
	"ctf-arena-server/internal/roommgr"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig is the dependency-injected shape NewRouter needs, mirroring
// the teacher's RouterConfig (kept deliberately small and test-friendly:
// NewRouter has no side effects, so it's safe to point httptest.NewServer at
// it directly).
type RouterConfig struct {
	Manager     *roommgr.Manager
	Hub         *Hub
	CORSOrigins []string
}

// NewRouter builds the HTTP mux: lobby REST endpoints, the /ws upgrade, a
// liveness probe, and the Prometheus /metrics endpoint. Pure — starts no
// goroutines and opens no listeners.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/rooms", handleListRooms(cfg.Manager))
		r.Post("/rooms", handleCreateRoom(cfg.Manager))
	})

	r.Get("/ws", cfg.Hub.ServeWS)
	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleListRooms(mgr *roommgr.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		data, err := roomListJSON(mgr)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func handleCreateRoom(mgr *roommgr.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var cfg protocol.RoomConfigRequest
		if err := json.NewDecoder(req.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid room config: "+err.Error(), http.StatusBadRequest)
			return
		}
		summary, err := mgr.CreateEmptyRoom(cfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(summary)
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
