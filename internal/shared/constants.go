package shared

import "time"

// HTTP Client Configuration
const (
	DefaultHTTPTimeout       = 180 * time.Second
	DefaultGenerationTimeout = 60 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultDialTimeout       = 2 * time.Second
)

// Cache Configuration
const (
	CallerInfoCacheTTL = 1 * time.Minute
)

// API Configuration
const (
	DefaultPort        = "3000"
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 300
	DefaultTemperature = 0.4
	APIKeyLength       = 32
	MaxBodyBytes       = 1 << 20 // 1 MB
)

// Rate Limit Configuration
const (
	DefaultRateLimit       = 8
	DefaultRateWindow      = 60 * time.Second
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// Bucket Configuration
const (
	BucketFlushInterval = 1 * time.Minute
	BucketRetryDelay    = 5 * time.Second
	MaxFlushRetries     = 3
)
