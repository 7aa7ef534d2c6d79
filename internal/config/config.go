package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.convo/config.toml.
type Config struct {
	DefaultProfile string   `toml:"default_profile"`
	Server         Server   `toml:"server"`
	Tunables       Tunables `toml:"tunables"`
}

// Server holds the remote endpoints of the messaging backend.
type Server struct {
	BaseURL string `toml:"base_url"`
	PushURL string `toml:"push_url"`
	Token   string `toml:"token"`
	UserID  string `toml:"user_id"`
}

// Tunables are the adjustable engine parameters. The scroll threshold and
// lazy-load cooldown started life as fixed constants; deployments disagree
// on the right values, so they are configurable with the old defaults.
type Tunables struct {
	PageSize           int      `toml:"page_size"`
	CacheTTL           duration `toml:"cache_ttl"`
	SearchCacheTTL     duration `toml:"search_cache_ttl"`
	SearchDebounce     duration `toml:"search_debounce"`
	NearBottomRows     int      `toml:"near_bottom_rows"`
	LazyLoadCooldown   duration `toml:"lazy_load_cooldown"`
	PresenceHold       duration `toml:"presence_hold"`
	PresenceIndicators bool     `toml:"presence_indicators"`
}

// duration wraps time.Duration for TOML string values like "60s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns a config with all tunables set to their defaults.
func Default() *Config {
	return &Config{
		Tunables: Tunables{
			PageSize:           10,
			CacheTTL:           duration(60 * time.Second),
			SearchCacheTTL:     duration(30 * time.Second),
			SearchDebounce:     duration(300 * time.Millisecond),
			NearBottomRows:     3,
			LazyLoadCooldown:   duration(400 * time.Millisecond),
			PresenceHold:       duration(2 * time.Second),
			PresenceIndicators: true,
		},
	}
}

// Load reads config from the given path, applying defaults for any
// tunable left unset. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) applyDefaults() {
	def := Default().Tunables
	t := &c.Tunables
	if t.PageSize <= 0 {
		t.PageSize = def.PageSize
	}
	if t.CacheTTL <= 0 {
		t.CacheTTL = def.CacheTTL
	}
	if t.SearchCacheTTL <= 0 {
		t.SearchCacheTTL = def.SearchCacheTTL
	}
	if t.SearchDebounce <= 0 {
		t.SearchDebounce = def.SearchDebounce
	}
	if t.NearBottomRows <= 0 {
		t.NearBottomRows = def.NearBottomRows
	}
	if t.LazyLoadCooldown <= 0 {
		t.LazyLoadCooldown = def.LazyLoadCooldown
	}
	if t.PresenceHold <= 0 {
		t.PresenceHold = def.PresenceHold
	}
}

// CacheTTLDuration returns the page cache TTL as a time.Duration.
func (t Tunables) CacheTTLDuration() time.Duration { return time.Duration(t.CacheTTL) }

// SearchCacheTTLDuration returns the search cache TTL as a time.Duration.
func (t Tunables) SearchCacheTTLDuration() time.Duration { return time.Duration(t.SearchCacheTTL) }

// SearchDebounceDuration returns the search debounce as a time.Duration.
func (t Tunables) SearchDebounceDuration() time.Duration { return time.Duration(t.SearchDebounce) }

// LazyLoadCooldownDuration returns the lazy-load cooldown as a time.Duration.
func (t Tunables) LazyLoadCooldownDuration() time.Duration { return time.Duration(t.LazyLoadCooldown) }

// PresenceHoldDuration returns the offline hold window as a time.Duration.
func (t Tunables) PresenceHoldDuration() time.Duration { return time.Duration(t.PresenceHold) }
