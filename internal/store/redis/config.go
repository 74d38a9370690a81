package redis

import "time"

// Config holds Redis connection settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// PresenceTTL bounds how long a presence entry survives without a
	// refresh, so a process that dies without tearing down its sessions
	// cannot lock its players out forever. Zero disables expiry.
	PresenceTTL time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		PresenceTTL:  2 * time.Minute,
	}
}
