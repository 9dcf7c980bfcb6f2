package ratelimit

import (
	"net/http"
	"time"

	"github.com/lzrong0203/memo-run/internal/config"
)

// StartPath is the run submission endpoint.
const StartPath = "/api/monitor/start"

// EndpointConfig is the limit applied to one method and path. A Path ending
// in "/" matches every path under it.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int
	Window time.Duration
	Burst  int
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	IdleTTL         time.Duration
	Whitelist       map[string]bool
	Endpoints       []EndpointConfig
}

// FromConfig builds the limiter configuration from the application config.
// Run submissions spawn an agent process each, so they get their own bucket.
func FromConfig(cfg config.RateLimitConfig) *Config {
	whitelist := make(map[string]bool, len(cfg.Whitelist))
	for _, ip := range cfg.Whitelist {
		whitelist[ip] = true
	}
	return &Config{
		Enabled:         cfg.Enabled,
		DefaultLimit:    cfg.DefaultLimit,
		DefaultWindow:   cfg.DefaultWindow,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		Whitelist:       whitelist,
		Endpoints: []EndpointConfig{
			{Path: StartPath, Method: http.MethodPost, Limit: cfg.StartLimit, Window: cfg.StartWindow, Burst: cfg.StartBurst},
		},
	}
}
