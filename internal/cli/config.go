package cli

import (
	"os"
	"strings"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	JSON      bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("PLAYLINK_SERVER", "ws://localhost:8080/ws"),
		JSON:      false,
	}
}

// HTTPBaseURL derives the HTTP base URL from the websocket URL, for
// endpoints like /healthz that live on the same server.
func (c *Config) HTTPBaseURL() string {
	url := c.ServerURL
	switch {
	case strings.HasPrefix(url, "wss://"):
		url = "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		url = "http://" + strings.TrimPrefix(url, "ws://")
	}
	// Strip the websocket path, keeping scheme://host:port
	if i := strings.Index(url, "//"); i >= 0 {
		scheme, rest := url[:i+2], url[i+2:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			rest = rest[:slash]
		}
		url = scheme + rest
	}
	return url
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
