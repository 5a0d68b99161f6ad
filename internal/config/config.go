package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the server needs. Values come from the
// environment (a .env file is honored when present) with flag
// overrides applied by main.
type Config struct {
	Addr      string
	DBPath    string
	JWTSecret string

	// PingInterval paces keep-alive frames on stream connections.
	PingInterval time.Duration
	// OnlineWindow is how recently a user must have sent a heartbeat
	// to count as online.
	OnlineWindow time.Duration
	// PurgeHorizon is how long soft-deleted records linger before the
	// opportunistic purge removes them.
	PurgeHorizon time.Duration
}

func Default() Config {
	return Config{
		Addr:         "localhost:8080",
		DBPath:       ".boardsync/boardsync.db",
		PingInterval: 30 * time.Second,
		OnlineWindow: 20 * time.Second,
		PurgeHorizon: 24 * time.Hour,
	}
}

// Load reads configuration from the environment. A missing .env file
// is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if v := os.Getenv("BOARDSYNC_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("BOARDSYNC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	cfg.JWTSecret = os.Getenv("BOARDSYNC_JWT_SECRET")

	var err error
	if cfg.PingInterval, err = durationEnv("BOARDSYNC_PING_INTERVAL", cfg.PingInterval); err != nil {
		return Config{}, err
	}
	if cfg.OnlineWindow, err = durationEnv("BOARDSYNC_ONLINE_WINDOW", cfg.OnlineWindow); err != nil {
		return Config{}, err
	}
	if cfg.PurgeHorizon, err = durationEnv("BOARDSYNC_PURGE_HORIZON", cfg.PurgeHorizon); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
