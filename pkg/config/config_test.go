package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xmhha/fskit/pkg/watch"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Watch.Backend != "auto" {
		t.Errorf("Backend = %s, want auto", cfg.Watch.Backend)
	}
	if cfg.Watch.QueueDepth <= 0 {
		t.Error("QueueDepth not set")
	}
	if cfg.Storage.JournalPath == "" {
		t.Error("JournalPath not set")
	}
	if cfg.Logging.Level == "" {
		t.Error("Log level not set")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"valid default config", func(*Config) {}, nil},
		{"unknown backend", func(c *Config) { c.Watch.Backend = "kqueue" }, ErrInvalidBackend},
		{"zero poll interval", func(c *Config) { c.Watch.PollInterval = 0 }, ErrInvalidPollInterval},
		{"negative debounce", func(c *Config) { c.Watch.DebounceInterval = -time.Second }, ErrInvalidDebounceInterval},
		{"zero debounce disables", func(c *Config) { c.Watch.DebounceInterval = 0 }, nil},
		{"zero queue depth", func(c *Config) { c.Watch.QueueDepth = 0 }, ErrInvalidQueueDepth},
		{"negative max watches", func(c *Config) { c.Watch.MaxWatches = -1 }, ErrInvalidMaxWatches},
		{"zero dedupe cache", func(c *Config) { c.Watch.DedupeCacheSize = 0 }, ErrInvalidDedupeCacheSize},
		{"zero backend buffer", func(c *Config) { c.Watch.BackendBuffer = 0 }, ErrInvalidBackendBuffer},
		{"negative retention", func(c *Config) { c.Storage.JournalRetention = -5 }, ErrInvalidRetention},
		{"negative timeout", func(c *Config) { c.Storage.Timeout = -time.Second }, ErrInvalidTimeout},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Address = ""
		}, ErrInvalidMetricsAddress},
		{"invalid log level", func(c *Config) { c.Logging.Level = "invalid" }, ErrInvalidLogLevel},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Config.Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWatchConfig(t *testing.T) {
	cfg := Default()
	cfg.Watch.Backend = "poll"
	cfg.Watch.QueueDepth = 7
	cfg.Watch.DebounceInterval = 0

	wc := cfg.WatchConfig()
	if wc.Backend != watch.BackendPoll {
		t.Errorf("Backend = %s, want poll", wc.Backend)
	}
	if wc.QueueDepth != 7 {
		t.Errorf("QueueDepth = %d, want 7", wc.QueueDepth)
	}
	if wc.DebounceInterval != 0 {
		t.Errorf("DebounceInterval = %v, want 0", wc.DebounceInterval)
	}
	if wc.PollInterval != cfg.Watch.PollInterval {
		t.Errorf("PollInterval = %v, want %v", wc.PollInterval, cfg.Watch.PollInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		create  bool
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:   "valid config file",
			create: true,
			content: `
watch:
  backend: poll
  poll_interval: 250ms
  debounce_interval: 0s
  queue_depth: 16
  max_watches: 100
storage:
  journal_path: /tmp/test.db
  journal_retention: 50
metrics:
  enabled: true
  address: 127.0.0.1:9999
logging:
  level: debug
  output: stdout
  format: json
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Watch.Backend != "poll" {
					t.Errorf("Backend = %s, want poll", cfg.Watch.Backend)
				}
				if cfg.Watch.PollInterval != 250*time.Millisecond {
					t.Errorf("PollInterval = %v, want 250ms", cfg.Watch.PollInterval)
				}
				if cfg.Watch.DebounceInterval != 0 {
					t.Errorf("DebounceInterval = %v, want 0", cfg.Watch.DebounceInterval)
				}
				if cfg.Watch.QueueDepth != 16 {
					t.Errorf("QueueDepth = %d, want 16", cfg.Watch.QueueDepth)
				}
				if cfg.Watch.DedupeCacheSize != Default().Watch.DedupeCacheSize {
					t.Errorf("DedupeCacheSize = %d, want default", cfg.Watch.DedupeCacheSize)
				}
				if cfg.Storage.JournalRetention != 50 {
					t.Errorf("JournalRetention = %d, want 50", cfg.Storage.JournalRetention)
				}
				if !cfg.Metrics.Enabled {
					t.Error("Metrics.Enabled = false, want true")
				}
				if cfg.Logging.Level != "debug" {
					t.Errorf("LogLevel = %s, want debug", cfg.Logging.Level)
				}
			},
		},
		{
			name:    "invalid yaml",
			create:  true,
			content: `invalid: yaml: content: [`,
			wantErr: true,
		},
		{
			name:    "invalid values",
			create:  true,
			content: "watch:\n  backend: carrier-pigeon\n",
			wantErr: true,
		},
		{
			name:    "non-existent file",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filePath := filepath.Join(tmpDir, tt.name+".yaml")
			if tt.create {
				if err := os.WriteFile(filePath, []byte(tt.content), 0600); err != nil {
					t.Fatalf("Failed to create test file: %v", err)
				}
			}

			cfg, err := NewLoader(filePath).Load()

			if tt.wantErr {
				if err == nil {
					t.Error("Load() error = nil, wantErr = true")
				}
				return
			}

			if err != nil {
				t.Fatalf("Load() error = %v, wantErr = false", err)
			}

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvConfig, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Watch.QueueDepth <= 0 {
		t.Error("Load() returned config without defaults")
	}
}

func TestSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.Watch.Backend = "fsnotify"

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Config file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	loadedCfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if loadedCfg.Logging.Level != "debug" {
		t.Errorf("Loaded config LogLevel = %s, want debug", loadedCfg.Logging.Level)
	}
	if loadedCfg.Watch.Backend != "fsnotify" {
		t.Errorf("Loaded config Backend = %s, want fsnotify", loadedCfg.Watch.Backend)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Watch.QueueDepth = 0

	if err := Save(cfg, filepath.Join(t.TempDir(), "config.yaml")); err == nil {
		t.Error("Save() error = nil, want validation error")
	}
}

func TestEnvVarOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "env.yaml")
	if err := os.WriteFile(configPath, []byte("watch:\n  queue_depth: 3\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvConfig, configPath)
	t.Setenv(EnvJournal, "/env/journal.db")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvWatchBackend, "Poll")

	loader := NewLoader("")
	if got := loader.Path(); got != configPath {
		t.Errorf("Path() = %s, want %s", got, configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Watch.QueueDepth != 3 {
		t.Errorf("QueueDepth = %d, want 3 from FSKIT_CONFIG file", cfg.Watch.QueueDepth)
	}
	if cfg.Storage.JournalPath != "/env/journal.db" {
		t.Errorf("JournalPath = %s, want /env/journal.db", cfg.Storage.JournalPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.Logging.Level)
	}
	if cfg.Watch.Backend != "poll" {
		t.Errorf("Backend = %s, want poll", cfg.Watch.Backend)
	}
}

func TestExplicitMissingFileFails(t *testing.T) {
	t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Load() error = %v, want ErrConfigNotFound", err)
	}
}

func BenchmarkValidate(b *testing.B) {
	cfg := Default()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cfg.Validate(); err != nil {
			b.Fatal(err)
		}
	}
}
