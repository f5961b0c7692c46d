// Package config loads environment variables into a typed Config used across
// the service. Defaults let the binary run locally with only a bot token.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultListingURL is the Panda Live room listing endpoint.
const DefaultListingURL = "https://api.pandalive.co.kr/v1/live"

type Config struct {
	// Database
	DBDsn string

	// HTTP
	HTTPAddr      string
	AdminToken    string
	AdminUsername string
	AdminPassword string

	// Telegram
	TelegramToken    string
	TelegramEndpoint string

	// Listing
	ListingURL     string
	ListingCookie  string
	ListingTimeout time.Duration
	PageSize       int
	ProxyURL       string
	Platform       string

	// Scheduling
	CheckInterval time.Duration
	IdleInterval  time.Duration
	IdleThreshold int
	GroupSize     int

	// Fan-out
	FanoutBatch   int
	FanoutPause   time.Duration
	NotifyOnline  bool
	NotifyOffline bool
	SourceOffset  int
	TargetOffset  int
	PlayerURL     string

	// Storage
	SnapshotCachePath string
	LogFile           string
}

// Load reads environment variables and applies defaults. It fails only on
// values that are present but malformed; use Validate for required ones.
func Load() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		DBDsn:            os.Getenv("DB_DSN"),
		HTTPAddr:         envOr("HTTP_ADDR", ":8080"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		AdminUsername:    os.Getenv("ADMIN_USERNAME"),
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramEndpoint: os.Getenv("TELEGRAM_API_ENDPOINT"),

		ListingURL:     envOr("LISTING_URL", DefaultListingURL),
		ListingCookie:  os.Getenv("LISTING_COOKIE"),
		ListingTimeout: p.durationVar("LISTING_TIMEOUT", 5*time.Second),
		PageSize:       p.intVar("LISTING_PAGE_SIZE", 96),
		ProxyURL:       os.Getenv("PROXY_URL"),
		Platform:       envOr("PLATFORM", "panda"),

		CheckInterval: p.durationVar("CHECK_INTERVAL", 2*time.Second),
		IdleInterval:  p.durationVar("IDLE_INTERVAL", 60*time.Second),
		IdleThreshold: p.intVar("IDLE_THRESHOLD", 30),
		GroupSize:     p.intVar("GROUP_SIZE", 3),

		FanoutBatch:   p.intVar("FANOUT_BATCH", 20),
		FanoutPause:   p.durationVar("FANOUT_PAUSE", time.Second),
		NotifyOnline:  p.boolVar("NOTIFY_ONLINE", true),
		NotifyOffline: p.boolVar("NOTIFY_OFFLINE", true),
		SourceOffset:  p.intVar("SOURCE_UTC_OFFSET", 9),
		TargetOffset:  p.intVar("TARGET_UTC_OFFSET", 8),
		PlayerURL:     os.Getenv("PLAYER_URL"),

		SnapshotCachePath: envOr("SNAPSHOT_CACHE_PATH", "data/snapshot.json"),
		LogFile:           os.Getenv("LOG_FILE"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("invalid LISTING_PAGE_SIZE %d: must be positive", cfg.PageSize)
	}
	if cfg.GroupSize <= 0 {
		return nil, fmt.Errorf("invalid GROUP_SIZE %d: must be positive", cfg.GroupSize)
	}
	return cfg, nil
}

// Validate checks the parameters the service cannot start without.
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("missing telegram env: require TELEGRAM_BOT_TOKEN")
	}
	if c.ListingURL == "" {
		return fmt.Errorf("missing LISTING_URL")
	}
	return nil
}

// AdminEnabled reports whether any admin credential is configured.
func (c *Config) AdminEnabled() bool {
	return c.AdminToken != "" || (c.AdminUsername != "" && c.AdminPassword != "")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parser keeps the first parse error so Load can report it once.
type parser struct{ err error }

func (p *parser) fail(key, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
}

func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) intVar(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) boolVar(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}
