package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	ServerShutdownTimeout  = 30 * time.Second
	BackgroundTaskTimeout  = 10 * time.Second
	ExternalRequestTimeout = 30 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Token lifetimes
	DefaultAccessTokenTTL  = 24 * time.Hour
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// Rate limiting window for external systems
	RateLimitWindow = time.Minute
)

// Server defaults
const (
	DefaultPort          = "3001"
	DefaultMaxUploadSize = 10 << 20 // 10 MiB
)

// Request caps
const (
	DefaultPageSize       = 10
	MaxPageSize           = 100
	MaxBatchStatusItems   = 100
	MaxAttachments        = 20
	ExternalStatusLogSize = 10
	TrackingCodeLength    = 6
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; img-src 'self' data: https:; media-src 'self' blob: data: https:;"
)
