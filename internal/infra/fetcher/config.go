package fetcher

import (
	"fmt"
	"time"

	"feed-monitor/internal/pkg/config"
)

// Config controls the outbound HTTP behaviour shared by the feed reader and
// the item scraper.
type Config struct {
	// Timeout bounds a single HTTP request. Default: 15s
	Timeout time.Duration

	// MaxBodySize is enforced while reading, not from Content-Length. Default: 10MB
	MaxBodySize int64

	// MaxRedirects caps redirect chains. Default: 5
	MaxRedirects int

	// DenyPrivateIPs routes requests through an SSRF-safe client that refuses
	// loopback, private and link-local destinations. Default: true
	DenyPrivateIPs bool

	UserAgent string

	// HostInterval is the minimum spacing between scrape requests to one host.
	// Default: 1s
	HostInterval time.Duration
	HostBurst    int
}

func DefaultConfig() Config {
	return Config{
		Timeout:        15 * time.Second,
		MaxBodySize:    10 * 1024 * 1024,
		MaxRedirects:   5,
		DenyPrivateIPs: true,
		UserAgent:      "FeedMonitorBot/1.0",
		HostInterval:   time.Second,
		HostBurst:      2,
	}
}

// Validate checks if the configuration values are valid and safe.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	minBodySize := int64(1024)
	maxBodySize := int64(100 * 1024 * 1024)
	if c.MaxBodySize < minBodySize || c.MaxBodySize > maxBodySize {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBodySize, maxBodySize, c.MaxBodySize)
	}
	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}
	if c.HostInterval < 0 {
		return fmt.Errorf("host interval must not be negative, got %v", c.HostInterval)
	}
	if c.HostBurst < 1 {
		return fmt.Errorf("host burst must be at least 1, got %d", c.HostBurst)
	}
	return nil
}

// LoadConfigFromEnv reads FETCH_* and SCRAPE_HOST_* variables. Invalid values
// fall back to defaults and are reported as warnings.
//
// Environment variables:
//   - FETCH_TIMEOUT (default: 15s)
//   - FETCH_MAX_BODY_SIZE in bytes (default: 10485760)
//   - FETCH_MAX_REDIRECTS (default: 5)
//   - FETCH_DENY_PRIVATE_IPS (default: true)
//   - FETCH_USER_AGENT (default: FeedMonitorBot/1.0)
//   - SCRAPE_HOST_INTERVAL (default: 1s)
//   - SCRAPE_HOST_BURST (default: 2)
func LoadConfigFromEnv() (Config, []string) {
	cfg := DefaultConfig()
	rec := config.NewRecorder(nil, nil)

	cfg.Timeout = config.Apply(rec, "timeout",
		config.Duration("FETCH_TIMEOUT", cfg.Timeout, config.ValidatePositiveDuration))
	cfg.MaxBodySize = int64(config.Apply(rec, "max_body_size",
		config.Int("FETCH_MAX_BODY_SIZE", int(cfg.MaxBodySize), config.IntRange(1024, 100*1024*1024))))
	cfg.MaxRedirects = config.Apply(rec, "max_redirects",
		config.Int("FETCH_MAX_REDIRECTS", cfg.MaxRedirects, config.IntRange(0, 10)))
	cfg.DenyPrivateIPs = config.Apply(rec, "deny_private_ips",
		config.Bool("FETCH_DENY_PRIVATE_IPS", cfg.DenyPrivateIPs))
	cfg.UserAgent = config.Lookup("FETCH_USER_AGENT", cfg.UserAgent)
	cfg.HostInterval = config.Apply(rec, "host_interval",
		config.Duration("SCRAPE_HOST_INTERVAL", cfg.HostInterval, config.DurationRange(0, time.Minute)))
	cfg.HostBurst = config.Apply(rec, "host_burst",
		config.Int("SCRAPE_HOST_BURST", cfg.HostBurst, config.IntRange(1, 100)))

	return cfg, rec.Warnings()
}
