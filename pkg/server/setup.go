package server

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/nicktill/kpiengine/pkg/config"
	"github.com/nicktill/kpiengine/pkg/kb"
	"github.com/nicktill/kpiengine/pkg/kb/cache"
	"github.com/nicktill/kpiengine/pkg/kb/memory"
	"github.com/nicktill/kpiengine/pkg/kb/remote"
)

// Config holds server configuration.
type Config struct {
	Port        string
	KBURL       string
	KBAPIKey    string
	KBFile      string
	CacheDir    string
	CacheTTL    time.Duration
	MaxMemoryMB int64
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:        getPort(),
		KBURL:       os.Getenv("KPIENGINE_KB_URL"),
		KBAPIKey:    os.Getenv("KPIENGINE_KB_API_KEY"),
		KBFile:      os.Getenv("KPIENGINE_KB_FILE"),
		CacheDir:    os.Getenv("KPIENGINE_CACHE_DIR"),
		CacheTTL:    time.Duration(getEnvInt64("KPIENGINE_CACHE_TTL_MINUTES", int64(config.DefaultCacheTTL/time.Minute))) * time.Minute,
		MaxMemoryMB: getEnvInt64("KPIENGINE_MAX_MEMORY_MB", config.DefaultMaxMemoryMB),
	}
}

// InitializeSource builds the knowledge-base source described by cfg.
// A TOML file takes precedence over a remote URL. When CacheDir is set the
// source is wrapped in a badger cache, which is returned so callers can close it.
func InitializeSource(cfg Config) (kb.Source, *cache.Cache, error) {
	var source kb.Source

	switch {
	case cfg.KBFile != "":
		log.Printf("Loading knowledge base from %s...", cfg.KBFile)
		mem, err := memory.LoadFile(cfg.KBFile)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Knowledge base loaded (%d KPIs)", len(mem.Names()))
		source = mem
	case cfg.KBURL != "":
		client, err := remote.New(cfg.KBURL, cfg.KBAPIKey)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Using remote knowledge base at %s", cfg.KBURL)
		source = client
	default:
		return nil, nil, errors.New("no knowledge base configured (set KPIENGINE_KB_FILE or KPIENGINE_KB_URL)")
	}

	if cfg.CacheDir == "" {
		return source, nil, nil
	}

	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	log.Println("Initializing BadgerDB formula cache with Snappy compression...")
	cached, err := cache.New(source, cache.Config{
		Path:        cfg.CacheDir,
		MaxMemoryMB: cfg.MaxMemoryMB,
		TTL:         cfg.CacheTTL,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Formula cache initialized (ttl %v)", cfg.CacheTTL)
	return cached, cached, nil
}

// getEnvInt64 gets an int64 from environment variable or returns default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		log.Printf("Invalid value for %s: %q, using default %d", key, val, defaultValue)
	}
	return defaultValue
}

// getPort gets the server port from PORT environment variable or returns default.
func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return config.DefaultPort
}
