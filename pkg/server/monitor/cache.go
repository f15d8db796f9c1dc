package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nicktill/kpiengine/pkg/kb/cache"
)

// StatsProvider reports formula cache statistics
type StatsProvider interface {
	Stats(ctx context.Context) (*cache.Stats, error)
}

// CacheUsage is the cache section of the health response.
type CacheUsage struct {
	Enabled   bool    `json:"enabled"`
	DiskBytes int64   `json:"disk_bytes,omitempty"`
	Disk      string  `json:"disk,omitempty"`
	Entries   uint64  `json:"entries"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	HitRatio  float64 `json:"hit_ratio"`
}

// CacheMonitor tracks formula cache usage with caching to avoid expensive
// filesystem walks and badger iterations on every health check.
type CacheMonitor struct {
	dataDir       string
	stats         StatsProvider
	cachedUsage   CacheUsage
	lastCheck     time.Time
	cacheDuration time.Duration
	mu            sync.Mutex
}

// NewCacheMonitor creates a cache monitor. stats may be nil when caching is disabled;
// dataDir may be empty for in-memory caches.
func NewCacheMonitor(dataDir string, stats StatsProvider) *CacheMonitor {
	return &CacheMonitor{
		dataDir:       dataDir,
		stats:         stats,
		cacheDuration: 10 * time.Second,
	}
}

// Usage returns current cache usage (refreshed at most every 10 seconds).
func (cm *CacheMonitor) Usage(ctx context.Context) (CacheUsage, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.stats == nil {
		return CacheUsage{Enabled: false}, nil
	}

	if !cm.lastCheck.IsZero() && time.Since(cm.lastCheck) < cm.cacheDuration {
		return cm.cachedUsage, nil
	}

	stats, err := cm.stats.Stats(ctx)
	if err != nil {
		return CacheUsage{}, err
	}

	usage := CacheUsage{
		Enabled: true,
		Entries: stats.Entries,
		Hits:    stats.Hits,
		Misses:  stats.Misses,
	}
	if lookups := stats.Hits + stats.Misses; lookups > 0 {
		usage.HitRatio = float64(stats.Hits) / float64(lookups)
	}

	usage.DiskBytes = stats.LSMBytes + stats.VLogBytes
	if cm.dataDir != "" {
		size, err := calculateDirSize(cm.dataDir)
		if err != nil {
			return CacheUsage{}, err
		}
		usage.DiskBytes = size
	}
	usage.Disk = humanize.Bytes(uint64(usage.DiskBytes))

	cm.cachedUsage = usage
	cm.lastCheck = time.Now()
	return usage, nil
}

// calculateDirSize recursively calculates directory size in bytes.
// Uses actual disk usage (not logical size) to handle sparse files correctly.
func calculateDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			actualSize, err := getActualFileSize(filePath, info)
			if err != nil {
				size += info.Size()
			} else {
				size += actualSize
			}
		}
		return nil
	})
	return size, err
}

// getActualFileSize is implemented in platform-specific files:
// - filesize_unix.go (Linux/Mac): Uses syscall.Stat_t.Blocks
// - filesize_windows.go (Windows): Uses GetCompressedFileSizeW API
