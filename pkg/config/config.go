package config

import "time"

// Server defaults
const (
	DefaultPort        = "8080"
	DefaultMaxMemoryMB = 48
)

// Knowledge base client
const (
	KBRequestTimeout  = 10 * time.Second
	MaxKBResponseSize = 1 << 20 // 1 MB
)

// Formula cache
const (
	DefaultCacheTTL   = 30 * time.Minute
	CacheGCInterval   = 10 * time.Minute
	CacheGCDiscard    = 0.5
	CacheStatsTimeout = 5 * time.Second
)

// Compile request handling
const (
	CompileTimeout     = 15 * time.Second
	MaxRequestBodySize = 1 << 20 // 1 MB
	MaxFormulaVariants = 256
)

// Health monitoring
const (
	SourceFailureThreshold = 3
	HealthCheckInterval    = 1 * time.Minute
	HealthCheckTimeout     = 5 * time.Second
	HealthProbeKPI         = "__healthcheck__"
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
	WSMaxMessageSize  = 64 * 1024
)
