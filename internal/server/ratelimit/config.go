package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig limits one endpoint. A Path ending in "/" matches every path
// below it.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int
	Window time.Duration
	Burst  int
}

// DefaultEndpointConfigs returns the built-in per-endpoint limits. Reads fall
// back to the default limit.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Run creation calls every provider five times.
		{Path: "/runs", Method: "POST", Limit: 10, Window: time.Hour, Burst: 2},
		// resubmit and cancel
		{Path: "/runs/", Method: "POST", Limit: 60, Window: time.Hour, Burst: 5},
		{Path: "/mcp", Method: "POST", Limit: 120, Window: time.Minute, Burst: 20},
	}
}

// LoadConfig reads RATE_LIMIT_* variables through getenv. A nil getenv reads
// the process environment.
func LoadConfig(getenv func(string) string) *Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := envReader(getenv)

	if !env.bool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}
	cfg := DefaultConfig()
	cfg.DefaultLimit = env.int("RATE_LIMIT_DEFAULT_LIMIT", cfg.DefaultLimit)
	cfg.DefaultWindow = env.duration("RATE_LIMIT_DEFAULT_WINDOW", cfg.DefaultWindow)
	cfg.CleanupInterval = env.duration("RATE_LIMIT_CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.Whitelist = parseIPList(getenv("RATE_LIMIT_WHITELIST"))
	cfg.Blacklist = parseIPList(getenv("RATE_LIMIT_BLACKLIST"))
	if n := env.int("RATE_LIMIT_RUNS_PER_HOUR", 0); n > 0 {
		cfg.EndpointConfigs[0].Limit = n
	}
	return cfg
}

type envReader func(string) string

func (e envReader) int(key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(e(key))); err == nil {
		return n
	}
	return def
}

func (e envReader) bool(key string, def bool) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(e(key))); err == nil {
		return b
	}
	return def
}

func (e envReader) duration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(e(key))); err == nil {
		return d
	}
	return def
}

// parseIPList parses a comma-separated list of client addresses.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
