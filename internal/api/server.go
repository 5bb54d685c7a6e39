package api

import (
	"context"
	"log"
	"net/http"
)

// Server wraps the chi router in an http.Server so startup and graceful
// shutdown are explicit, separate steps (grounded on the teacher's
// api/server.go split between NewServer/Start/Stop: construction never
// starts a goroutine or opens a listener, only Start does).
type Server struct {
	httpServer *http.Server
}

// NewServer builds a Server listening on addr and serving router. Nothing
// happens on the network until Start is called.
func NewServer(addr string, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: router,
		},
	}
}

// Start begins serving and blocks until the listener stops. Call this from
// its own goroutine; use Shutdown to stop it.
func (s *Server) Start() error {
	log.Printf("api: listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and waits for in-flight requests
// to finish, bounded by ctx (spec.md §5: forced exit after the grace period).
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
