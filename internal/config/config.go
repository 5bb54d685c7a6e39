// Package config is the single source of truth for server-wide, environment-
// overridable settings. Grounded on the teacher's internal/config/config.go
// (a struct-of-structs built by Default* constructors, overridden field by
// field from os.Getenv via small int/float parsing helpers); generalized
// from video/audio/stream settings to the arena server's network and
// simulation knobs (spec.md §6's PORT/TICK_RATE/BROADCAST_RATE/MAX_ROOMS/
// MAX_PLAYERS plus the ambient METRICS_ADDR/LOG_LEVEL this expansion adds).
package config

import (
	"os"
	"strconv"
)

// ServerConfig holds every environment-overridable knob the CLI entrypoint
// and internal/api need at startup.
type ServerConfig struct {
	Port          int
	TickRate      int
	BroadcastRate int
	MaxRooms      int
	MaxPlayers    int
	LogLevel      string
	MetricsAddr   string
}

// DefaultServer returns production-sane defaults, matching spec.md §4.5's
// 60Hz tick / 20Hz broadcast rates.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:          8080,
		TickRate:      60,
		BroadcastRate: 20,
		MaxRooms:      100,
		MaxPlayers:    10,
		LogLevel:      "info",
		MetricsAddr:   "127.0.0.1:9090",
	}
}

// ServerFromEnv overlays DefaultServer with PORT, TICK_RATE, BROADCAST_RATE,
// MAX_ROOMS, MAX_PLAYERS, LOG_LEVEL, METRICS_ADDR when set (spec.md §6).
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if tr := getEnvInt("TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	if br := getEnvInt("BROADCAST_RATE", 0); br > 0 {
		cfg.BroadcastRate = br
	}
	if mr := getEnvInt("MAX_ROOMS", 0); mr > 0 {
		cfg.MaxRooms = mr
	}
	if mp := getEnvInt("MAX_PLAYERS", 0); mp > 0 {
		cfg.MaxPlayers = mp
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}

	return cfg
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
