package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete plume configuration
type Config struct {
	Identity Identity `yaml:"identity"`
	Relays   Relays   `yaml:"relays"`
	Feeds    Feeds    `yaml:"feeds"`
	Threads  Threads  `yaml:"threads"`
	Profiles Profiles `yaml:"profiles"`
	Caching  Caching  `yaml:"caching"`
	Logging  Logging  `yaml:"logging"`
}

// Identity contains the Nostr identity used for publishing
type Identity struct {
	Npub string `yaml:"npub"` // Public key, bech32
	Nsec string `yaml:"-"`    // Signing key, loaded from PLUME_NSEC only
}

// Relays contains relay configuration
type Relays struct {
	URLs   []string    `yaml:"urls"`
	Policy RelayPolicy `yaml:"policy"`
}

// RelayPolicy contains relay connection policies
type RelayPolicy struct {
	QueryTimeoutMs  int `yaml:"query_timeout_ms"`
	SearchTimeoutMs int `yaml:"search_timeout_ms"`
}

// Feeds contains feed synchronization settings
type Feeds struct {
	InitialWindowHours int `yaml:"initial_window_hours"`
	InitialBatchSize   int `yaml:"initial_batch_size"`
	PageBatchSize      int `yaml:"page_batch_size"`
	MaxItemsInMemory   int `yaml:"max_items_in_memory"`
	TTL                TTL `yaml:"ttl"`
}

// TTL contains cache TTL settings in seconds, per feed kind
type TTL struct {
	Global    int `yaml:"global"`
	Tag       int `yaml:"tag"`
	Author    int `yaml:"author"`
	Following int `yaml:"following"`
	Profile   int `yaml:"profile"`
}

// Threads contains thread reconstruction settings
type Threads struct {
	MaxDisplayDepth  int `yaml:"max_display_depth"`
	MaxAncestorWalk  int `yaml:"max_ancestor_walk"`
	DescendantsLimit int `yaml:"descendants_limit"`
}

// Profiles contains author enrichment settings
type Profiles struct {
	BatchLimit int `yaml:"batch_limit"`
}

// Caching contains cache engine configuration
type Caching struct {
	Engine          string  `yaml:"engine"` // memory|redis
	RedisURL        string  `yaml:"redis_url"`
	StaleGraceRatio float64 `yaml:"stale_grace_ratio"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

var validCacheEngines = map[string]bool{
	"memory": true,
	"redis":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in missing configuration fields with sensible defaults
func applyDefaults(cfg *Config) {
	defaults := Default()

	if len(cfg.Relays.URLs) == 0 {
		cfg.Relays.URLs = defaults.Relays.URLs
	}
	if cfg.Relays.Policy.QueryTimeoutMs == 0 {
		cfg.Relays.Policy.QueryTimeoutMs = defaults.Relays.Policy.QueryTimeoutMs
	}
	if cfg.Relays.Policy.SearchTimeoutMs == 0 {
		cfg.Relays.Policy.SearchTimeoutMs = defaults.Relays.Policy.SearchTimeoutMs
	}

	if cfg.Feeds.InitialWindowHours == 0 {
		cfg.Feeds.InitialWindowHours = defaults.Feeds.InitialWindowHours
	}
	if cfg.Feeds.InitialBatchSize == 0 {
		cfg.Feeds.InitialBatchSize = defaults.Feeds.InitialBatchSize
	}
	if cfg.Feeds.PageBatchSize == 0 {
		cfg.Feeds.PageBatchSize = defaults.Feeds.PageBatchSize
	}
	if cfg.Feeds.MaxItemsInMemory == 0 {
		cfg.Feeds.MaxItemsInMemory = defaults.Feeds.MaxItemsInMemory
	}
	if cfg.Feeds.TTL.Global == 0 {
		cfg.Feeds.TTL.Global = defaults.Feeds.TTL.Global
	}
	if cfg.Feeds.TTL.Tag == 0 {
		cfg.Feeds.TTL.Tag = defaults.Feeds.TTL.Tag
	}
	if cfg.Feeds.TTL.Author == 0 {
		cfg.Feeds.TTL.Author = defaults.Feeds.TTL.Author
	}
	if cfg.Feeds.TTL.Following == 0 {
		cfg.Feeds.TTL.Following = defaults.Feeds.TTL.Following
	}
	if cfg.Feeds.TTL.Profile == 0 {
		cfg.Feeds.TTL.Profile = defaults.Feeds.TTL.Profile
	}

	if cfg.Threads.MaxDisplayDepth == 0 {
		cfg.Threads.MaxDisplayDepth = defaults.Threads.MaxDisplayDepth
	}
	if cfg.Threads.MaxAncestorWalk == 0 {
		cfg.Threads.MaxAncestorWalk = defaults.Threads.MaxAncestorWalk
	}
	if cfg.Threads.DescendantsLimit == 0 {
		cfg.Threads.DescendantsLimit = defaults.Threads.DescendantsLimit
	}

	if cfg.Profiles.BatchLimit == 0 {
		cfg.Profiles.BatchLimit = defaults.Profiles.BatchLimit
	}

	if cfg.Caching.Engine == "" {
		cfg.Caching.Engine = defaults.Caching.Engine
	}
	if cfg.Caching.StaleGraceRatio == 0 {
		cfg.Caching.StaleGraceRatio = defaults.Caching.StaleGraceRatio
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

// applyEnvOverrides applies environment variable overrides to config.
// The signing key is never read from the config file.
func applyEnvOverrides(cfg *Config) {
	if nsec := os.Getenv("PLUME_NSEC"); nsec != "" {
		cfg.Identity.Nsec = nsec
	}
	if redisURL := os.Getenv("PLUME_REDIS_URL"); redisURL != "" {
		cfg.Caching.RedisURL = redisURL
	}
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Identity: Identity{
			Npub: "",
		},
		Relays: Relays{
			URLs: []string{
				"wss://relay.damus.io",
				"wss://relay.nostr.band",
				"wss://nos.lol",
			},
			Policy: RelayPolicy{
				QueryTimeoutMs:  8000,
				SearchTimeoutMs: 5000,
			},
		},
		Feeds: Feeds{
			InitialWindowHours: 24,
			InitialBatchSize:   50,
			PageBatchSize:      30,
			MaxItemsInMemory:   500,
			TTL: TTL{
				Global:    300,
				Tag:       300,
				Author:    600,
				Following: 300,
				Profile:   3600,
			},
		},
		Threads: Threads{
			MaxDisplayDepth:  3,
			MaxAncestorWalk:  50,
			DescendantsLimit: 500,
		},
		Profiles: Profiles{
			BatchLimit: 100,
		},
		Caching: Caching{
			Engine:          "memory",
			RedisURL:        "",
			StaleGraceRatio: 4,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that a configuration is usable
func Validate(cfg *Config) error {
	if cfg.Identity.Npub != "" && !strings.HasPrefix(cfg.Identity.Npub, "npub1") {
		return fmt.Errorf("identity.npub must start with 'npub1'")
	}

	if len(cfg.Relays.URLs) == 0 {
		return fmt.Errorf("at least one relay URL is required")
	}
	for _, u := range cfg.Relays.URLs {
		if !strings.HasPrefix(u, "wss://") && !strings.HasPrefix(u, "ws://") {
			return fmt.Errorf("relay URL must start with ws:// or wss://: %s", u)
		}
	}

	if !validCacheEngines[cfg.Caching.Engine] {
		return fmt.Errorf("invalid cache engine: %s (must be one of: memory, redis)", cfg.Caching.Engine)
	}
	if cfg.Caching.Engine == "redis" && cfg.Caching.RedisURL == "" {
		return fmt.Errorf("caching.redis_url is required when caching.engine is redis")
	}
	if cfg.Caching.StaleGraceRatio < 1 {
		return fmt.Errorf("caching.stale_grace_ratio must be >= 1")
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", cfg.Logging.Level)
	}

	if cfg.Feeds.InitialBatchSize < 1 || cfg.Feeds.InitialBatchSize > 500 {
		return fmt.Errorf("feeds.initial_batch_size must be between 1 and 500")
	}
	if cfg.Feeds.PageBatchSize < 1 || cfg.Feeds.PageBatchSize > 500 {
		return fmt.Errorf("feeds.page_batch_size must be between 1 and 500")
	}
	if cfg.Feeds.MaxItemsInMemory < cfg.Feeds.InitialBatchSize {
		return fmt.Errorf("feeds.max_items_in_memory must be >= feeds.initial_batch_size")
	}

	if cfg.Threads.MaxDisplayDepth < 1 || cfg.Threads.MaxDisplayDepth > 100 {
		return fmt.Errorf("threads.max_display_depth must be between 1 and 100")
	}

	return nil
}
