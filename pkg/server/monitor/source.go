package monitor

import (
	"sync"
	"time"

	"github.com/nicktill/kpiengine/pkg/config"
)

// SourceMonitor tracks knowledge-base health across lookups and probes.
// It satisfies engine.Monitor.
type SourceMonitor struct {
	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	totalErrors       int
	lastError         string
}

// RecordSuccess records a knowledge-base round trip that got an answer.
func (sm *SourceMonitor) RecordSuccess() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	now := time.Now()
	sm.lastSuccess = now
	sm.lastAttempt = now
	sm.consecutiveErrors = 0
	sm.lastError = ""
}

// RecordFailure records a transport or server failure.
func (sm *SourceMonitor) RecordFailure(err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.lastAttempt = time.Now()
	sm.consecutiveErrors++
	sm.totalErrors++
	if err != nil {
		sm.lastError = err.Error()
	}
}

// IsHealthy returns false once more than config.SourceFailureThreshold
// lookups in a row have failed. A source nobody has used yet is healthy.
func (sm *SourceMonitor) IsHealthy() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.healthyLocked()
}

func (sm *SourceMonitor) healthyLocked() bool {
	return sm.consecutiveErrors <= config.SourceFailureThreshold
}

// SourceStatus is the knowledge-base section of the health response.
type SourceStatus struct {
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	TotalErrors       int    `json:"total_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns current knowledge-base status for health checks.
func (sm *SourceMonitor) Status() SourceStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	status := SourceStatus{
		Healthy:     sm.healthyLocked(),
		TotalErrors: sm.totalErrors,
	}

	if !sm.lastSuccess.IsZero() {
		status.LastSuccess = sm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(sm.lastSuccess).Round(time.Second).String()
	}

	if !sm.lastAttempt.IsZero() {
		status.LastAttempt = sm.lastAttempt.Format(time.RFC3339)
	}

	if sm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = sm.consecutiveErrors
		status.LastError = sm.lastError
	}

	return status
}
