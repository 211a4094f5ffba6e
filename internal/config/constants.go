package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 30 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Grant lifetime bounds
const MaxGrantTTLSeconds = 1800

// Sweep runs are bounded so a slow store cannot pile up runs
const SweepRunTimeout = 30 * time.Second

// Rate limiting window for begin/approve endpoints
const RateLimitWindow = time.Minute
