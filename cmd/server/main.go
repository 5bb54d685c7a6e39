// Command server runs the arena game server: it exposes the lobby and
// WebSocket endpoints over HTTP and ticks every live room until the process
// receives a shutdown signal.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctf-arena-server/internal/api"
	"ctf-arena-server/internal/config"
	"ctf-arena-server/internal/roommgr"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// shutdownGrace bounds how long srv.Shutdown waits for in-flight HTTP
// requests (spec.md §5); rooms are stopped before it, without a deadline.
// If the grace runs out, run returns the error and the process exits 1.
const shutdownGrace = 5 * time.Second

func main() {
	root := &cobra.Command{
		Use:   "server",
		Short: "arena game server",
		Long:  "Runs the tick-driven multiplayer arena simulation server.",
	}
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP + WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("server: no .env file found, using environment variables only")
	} else {
		log.Println("server: loaded environment from .env")
	}

	cfg := config.ServerFromEnv()
	log.Printf("server: starting (port=%d tickRate=%dHz broadcastRate=%dHz maxRooms=%d maxPlayers=%d)",
		cfg.Port, cfg.TickRate, cfg.BroadcastRate, cfg.MaxRooms, cfg.MaxPlayers)

	manager := roommgr.New(roommgr.Config{
		MaxRooms:          cfg.MaxRooms,
		MaxPlayersPerRoom: cfg.MaxPlayers,
	})

	hub := api.NewHub(manager, nil)
	manager.SetBroadcaster(hub)
	manager.Start()

	router := api.NewRouter(api.RouterConfig{Manager: manager, Hub: hub})
	srv := api.NewServer(fmt.Sprintf(":%d", cfg.Port), router)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("server: received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	manager.StopAll()

	if err := srv.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		log.Printf("server: error during shutdown: %v", err)
		return err
	}

	log.Println("server: shutdown complete")
	return nil
}
