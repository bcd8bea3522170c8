package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all process-wide configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Crawl     CrawlConfig
	Redis     RedisConfig
	Proxy     ProxyConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	LLM       LLMConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the stealth browser pool.
type BrowserConfig struct {
	// Headless controls whether browsers run headless.
	Headless bool // default: true

	// ChromiumPoolSize bounds concurrent Chromium contexts.
	ChromiumPoolSize int // default: 8

	// FirefoxPoolSize bounds concurrent Firefox contexts.
	FirefoxPoolSize int // default: 2

	// ChromiumBin overrides the Chromium binary path.
	ChromiumBin string

	// FirefoxBin is the Firefox binary; the Firefox tier is disabled when
	// empty and no system Firefox is found.
	FirefoxBin string

	// NoSandbox disables the Chromium sandbox (needed in Docker).
	NoSandbox bool // default: false

	// StealthEngineURL enables the external stealth browser sidecar.
	StealthEngineURL string
}

// ScraperConfig controls scrape behaviour.
type ScraperConfig struct {
	// MaxTimeout is the overall cap on a scrape request.
	MaxTimeout time.Duration // default: 120s

	// MaxConcurrent bounds simultaneous scrapes.
	MaxConcurrent int // default: 20

	// NavigationTimeout is the hard cap on browser navigation.
	NavigationTimeout time.Duration // default: 15s
}

// CrawlConfig controls the crawl engine.
type CrawlConfig struct {
	// MaxPages is the system cap on pages per crawl.
	MaxPages int // default: 500
}

// RedisConfig locates the shared state store.
type RedisConfig struct {
	Addr     string // default: "localhost:6379"
	Password string
	DB       int
}

// ProxyConfig controls the built-in proxy pool.
type ProxyConfig struct {
	// BuiltinProxies is a comma-separated static proxy list.
	BuiltinProxies []string

	// ListURL is an optional endpoint returning one proxy per line,
	// refreshed every 10 minutes.
	ListURL string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 5
	Burst             int     // default: 10
}

// CacheConfig controls the Redis-backed response caches.
type CacheConfig struct {
	// ContentTTL is how long scrape artifacts stay cached.
	ContentTTL time.Duration // default: 5m

	// JobResponseTTL is how long serialized job responses stay cached.
	JobResponseTTL time.Duration // default: 1h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// LLMConfig points at an OpenAI-compatible extraction endpoint.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string // default: "gpt-4o-mini"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("HARVEST_HOST", "0.0.0.0"),
			Port: envIntOr("HARVEST_PORT", 8080),
			Mode: envOr("HARVEST_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:         envBoolOr("BROWSER_HEADLESS", true),
			ChromiumPoolSize: envIntOr("CHROMIUM_POOL_SIZE", 8),
			FirefoxPoolSize:  envIntOr("FIREFOX_POOL_SIZE", 2),
			ChromiumBin:      os.Getenv("BROWSER_BIN"),
			FirefoxBin:       os.Getenv("FIREFOX_BIN"),
			NoSandbox:        envBoolOr("BROWSER_NO_SANDBOX", false),
			StealthEngineURL: os.Getenv("STEALTH_ENGINE_URL"),
		},
		Scraper: ScraperConfig{
			MaxTimeout:        time.Duration(envIntOr("SCRAPE_API_TIMEOUT", 120)) * time.Second,
			MaxConcurrent:     envIntOr("MAX_CONCURRENT_SCRAPES", 20),
			NavigationTimeout: envDurationOr("NAV_TIMEOUT", 15*time.Second),
		},
		Crawl: CrawlConfig{
			MaxPages: envIntOr("MAX_CRAWL_PAGES", 500),
		},
		Redis: RedisConfig{
			Addr:     envOr("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envIntOr("REDIS_DB", 0),
		},
		Proxy: ProxyConfig{
			BuiltinProxies: envSliceOr("BUILTIN_PROXY_URL", nil),
			ListURL:        os.Getenv("BUILTIN_PROXY_LIST_URL"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("HARVEST_AUTH_ENABLED", false),
			APIKeys: envSliceOr("HARVEST_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("HARVEST_RATE_RPS", 5.0),
			Burst:             envIntOr("HARVEST_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			ContentTTL:     envDurationOr("CACHE_CONTENT_TTL", 5*time.Minute),
			JobResponseTTL: envDurationOr("CACHE_JOB_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
		LLM: LLMConfig{
			BaseURL: envOr("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  os.Getenv("LLM_API_KEY"),
			Model:   envOr("LLM_MODEL", "gpt-4o-mini"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
