package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
identity:
  npub: npub1testkey
relays:
  urls:
    - wss://relay1.example.com
    - wss://relay2.example.com
  policy:
    query_timeout_ms: 5000
feeds:
  initial_batch_size: 40
  page_batch_size: 20
  max_items_in_memory: 200
  ttl:
    author: 1200
caching:
  engine: memory
  stale_grace_ratio: 2
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Identity.Npub != "npub1testkey" {
		t.Errorf("Npub = %q", cfg.Identity.Npub)
	}
	if len(cfg.Relays.URLs) != 2 {
		t.Errorf("Expected 2 relays, got %d", len(cfg.Relays.URLs))
	}
	if cfg.Relays.Policy.QueryTimeoutMs != 5000 {
		t.Errorf("QueryTimeoutMs = %d", cfg.Relays.Policy.QueryTimeoutMs)
	}
	if cfg.Feeds.InitialBatchSize != 40 || cfg.Feeds.PageBatchSize != 20 {
		t.Errorf("Batch sizes = %d/%d", cfg.Feeds.InitialBatchSize, cfg.Feeds.PageBatchSize)
	}
	if cfg.Feeds.TTL.Author != 1200 {
		t.Errorf("Author TTL = %d", cfg.Feeds.TTL.Author)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_DefaultsFillMissingFields(t *testing.T) {
	path := writeConfig(t, `
relays:
  urls:
    - wss://relay.example.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feeds.InitialWindowHours != 24 {
		t.Errorf("InitialWindowHours = %d, want default 24", cfg.Feeds.InitialWindowHours)
	}
	if cfg.Feeds.PageBatchSize != 30 {
		t.Errorf("PageBatchSize = %d, want default 30", cfg.Feeds.PageBatchSize)
	}
	if cfg.Feeds.TTL.Profile != 3600 {
		t.Errorf("Profile TTL = %d, want default 3600", cfg.Feeds.TTL.Profile)
	}
	if cfg.Threads.MaxDisplayDepth != 3 {
		t.Errorf("MaxDisplayDepth = %d, want default 3", cfg.Threads.MaxDisplayDepth)
	}
	if cfg.Caching.Engine != "memory" || cfg.Caching.StaleGraceRatio != 4 {
		t.Errorf("Caching = %+v, want memory defaults", cfg.Caching)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q, want default info", cfg.Logging.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "relays: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("Expected parse error")
	}
}

func TestLoad_SigningKeyOnlyFromEnv(t *testing.T) {
	path := writeConfig(t, `
identity:
  npub: npub1testkey
  nsec: nsec1shouldbeignored
`)

	t.Setenv("PLUME_NSEC", "nsec1fromenv")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Identity.Nsec != "nsec1fromenv" {
		t.Errorf("Nsec = %q, want the env value", cfg.Identity.Nsec)
	}
}

func TestLoad_RedisURLFromEnv(t *testing.T) {
	path := writeConfig(t, `
caching:
  engine: redis
`)

	t.Setenv("PLUME_REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Caching.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", cfg.Caching.RedisURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "bad npub prefix",
			mutate:  func(cfg *Config) { cfg.Identity.Npub = "nsec1notapub" },
			wantErr: "npub",
		},
		{
			name:    "no relays",
			mutate:  func(cfg *Config) { cfg.Relays.URLs = nil },
			wantErr: "relay",
		},
		{
			name:    "relay without websocket scheme",
			mutate:  func(cfg *Config) { cfg.Relays.URLs = []string{"https://relay.example.com"} },
			wantErr: "ws://",
		},
		{
			name:    "unknown cache engine",
			mutate:  func(cfg *Config) { cfg.Caching.Engine = "memcached" },
			wantErr: "cache engine",
		},
		{
			name:    "redis engine without url",
			mutate:  func(cfg *Config) { cfg.Caching.Engine = "redis" },
			wantErr: "redis_url",
		},
		{
			name:    "grace ratio below one",
			mutate:  func(cfg *Config) { cfg.Caching.StaleGraceRatio = 0.5 },
			wantErr: "stale_grace_ratio",
		},
		{
			name:    "unknown log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "verbose" },
			wantErr: "log level",
		},
		{
			name:    "oversized initial batch",
			mutate:  func(cfg *Config) { cfg.Feeds.InitialBatchSize = 5000 },
			wantErr: "initial_batch_size",
		},
		{
			name:    "memory ceiling below initial batch",
			mutate:  func(cfg *Config) { cfg.Feeds.MaxItemsInMemory = 10 },
			wantErr: "max_items_in_memory",
		},
		{
			name:    "negative display depth",
			mutate:  func(cfg *Config) { cfg.Threads.MaxDisplayDepth = -1 },
			wantErr: "max_display_depth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
