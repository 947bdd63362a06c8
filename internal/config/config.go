package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable through WIKICACHE_STORE.
const (
	StoreBolt   = "bolt"
	StoreSQL    = "sql"
	StoreMemory = "memory"
	StoreRemote = "remote"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	TTL           time.Duration
	Store         string
	BoltPath      string
	DatabaseURL   string
	SocketPath    string
	SweepInterval time.Duration
	// Coalesce shares one fetch between concurrent misses on the same key
	Coalesce bool
	// Fetcher settings
	FetchTimeout time.Duration
	FetchRPS     float64
	// Observability settings
	MetricsAddr  string // listen address for /metrics, empty disables it
	OTELEnabled  bool
	OTELEndpoint string
}

// Load reads the environment. Unset variables take their defaults; malformed
// ones are reported by name.
func Load() (*Config, error) {
	var errs []string
	dur := func(name string, def time.Duration) time.Duration {
		v, err := getEnvAsDuration(name, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	cfg := &Config{
		TTL:           dur("WIKICACHE_TTL", 24*time.Hour),
		Store:         strings.ToLower(defaultString(os.Getenv("WIKICACHE_STORE"), StoreBolt)),
		BoltPath:      defaultString(os.Getenv("WIKICACHE_DB"), defaultPath("cache.bbolt")),
		DatabaseURL:   defaultString(os.Getenv("DATABASE_URL"), defaultPath("cache.sqlite")),
		SocketPath:    defaultString(os.Getenv("WIKICACHE_SOCK"), defaultPath("cache.sock")),
		SweepInterval: dur("WIKICACHE_SWEEP_INTERVAL", time.Hour),
		Coalesce:      getEnvAsBool("WIKICACHE_COALESCE", true),
		FetchTimeout:  dur("WIKICACHE_FETCH_TIMEOUT", 10*time.Second),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		OTELEnabled:   getEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:  defaultString(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "localhost:4318"),
	}
	rps, err := getEnvAsFloat("WIKICACHE_FETCH_RPS", 1)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.FetchRPS = rps

	switch cfg.Store {
	case StoreBolt, StoreSQL, StoreMemory, StoreRemote:
	default:
		errs = append(errs, fmt.Sprintf("WIKICACHE_STORE: unknown backend %q", cfg.Store))
	}
	if cfg.TTL <= 0 {
		errs = append(errs, "WIKICACHE_TTL: must be positive")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func defaultPath(name string) string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "wikicache", name)
}

func defaultString(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func getEnvAsBool(key string, defaultVal bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return defaultVal
	}
}

func getEnvAsDuration(name string, defaultVal time.Duration) (time.Duration, error) {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(valStr)
	if err != nil {
		return defaultVal, fmt.Errorf("%s: %v", name, err)
	}
	return d, nil
}

func getEnvAsFloat(name string, defaultVal float64) (float64, error) {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s: %v", name, err)
	}
	return f, nil
}
