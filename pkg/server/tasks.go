package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/nicktill/kpiengine/pkg/config"
	"github.com/nicktill/kpiengine/pkg/kb"
	"github.com/nicktill/kpiengine/pkg/kb/cache"
	"github.com/nicktill/kpiengine/pkg/server/monitor"
)

// ProbeSource looks up a sentinel KPI once and records the outcome.
// Not found is the expected healthy answer.
func ProbeSource(ctx context.Context, source kb.Source, m *monitor.SourceMonitor) error {
	ctx, cancel := context.WithTimeout(ctx, config.HealthCheckTimeout)
	defer cancel()

	_, err := source.Lookup(ctx, config.HealthProbeKPI)
	if err == nil || errors.Is(err, kb.ErrNotFound) {
		m.RecordSuccess()
		return nil
	}

	m.RecordFailure(err)
	return err
}

// RunHealthProbe probes the knowledge base periodically so health reflects
// outages even when no requests are flowing.
func RunHealthProbe(ctx context.Context, source kb.Source, m *monitor.SourceMonitor, interval time.Duration, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Exponential backoff on logging to prevent spam during outages
	var lastErrorTime time.Time
	const maxBackoff = 5 * time.Minute

	probe := func() {
		if err := ProbeSource(ctx, source, m); err != nil {
			status := m.Status()
			backoff := time.Duration(1<<uint(min(status.ConsecutiveErrors-1, 8))) * time.Second
			if backoff > maxBackoff {
				backoff = maxBackoff
			}

			now := time.Now()
			if lastErrorTime.IsZero() || now.Sub(lastErrorTime) >= backoff {
				log.Printf("Knowledge base probe failed (error #%d): %v", status.ConsecutiveErrors, err)
				lastErrorTime = now
			}
			if !status.Healthy {
				log.Printf("ALERT: Knowledge base has been failing! Consecutive errors: %d", status.ConsecutiveErrors)
			}
			return
		}
		lastErrorTime = time.Time{}
	}

	probe()
	for {
		select {
		case <-ticker.C:
			probe()
		case <-ctx.Done():
			log.Println("Stopping knowledge base health probe")
			return
		}
	}
}

// RunCacheGC runs BadgerDB garbage collection periodically to reclaim disk space.
func RunCacheGC(c *cache.Cache, interval time.Duration, stop chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Formula cache GC scheduler started (runs every %v)", interval)

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			if err := c.RunGC(config.CacheGCDiscard); err != nil {
				log.Printf("Cache GC failed after %v: %v", time.Since(start).Round(time.Millisecond), err)
			} else {
				log.Printf("Cache GC completed in %v", time.Since(start).Round(time.Millisecond))
			}
		case <-stop:
			log.Println("Stopping formula cache GC scheduler")
			return
		}
	}
}
