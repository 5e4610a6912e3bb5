package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default IndexURL points at python.org", func(t *testing.T) {
		t.Parallel()
		if cfg.IndexURL != "https://peps.python.org/api/peps.json" {
			t.Errorf("unexpected IndexURL: %s", cfg.IndexURL)
		}
	})

	t.Run("default OutputDir is downloaded_peps", func(t *testing.T) {
		t.Parallel()
		if cfg.OutputDir != "downloaded_peps" {
			t.Errorf("expected OutputDir to be 'downloaded_peps', got '%s'", cfg.OutputDir)
		}
	})

	t.Run("default Timeout is 60 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 60*time.Second {
			t.Errorf("expected Timeout to be 60s, got %v", cfg.Timeout)
		}
	})

	t.Run("default Concurrency is unbounded", func(t *testing.T) {
		t.Parallel()
		if cfg.Concurrency != 0 {
			t.Errorf("expected Concurrency to be 0, got %d", cfg.Concurrency)
		}
	})

	t.Run("default Selector is section#pep-content", func(t *testing.T) {
		t.Parallel()
		if cfg.Selector != "section#pep-content" {
			t.Errorf("unexpected Selector: %s", cfg.Selector)
		}
	})

	t.Run("default network is direct", func(t *testing.T) {
		t.Parallel()
		if cfg.UseTor || cfg.ProxyAddress != "" {
			t.Error("expected direct connections by default")
		}
	})

	t.Run("history is enabled in the XDG data dir", func(t *testing.T) {
		t.Parallel()
		if !cfg.SaveHistory {
			t.Error("expected SaveHistory to be true")
		}
		if cfg.DBDir != XDGDataDir() {
			t.Errorf("expected DBDir %q, got %q", XDGDataDir(), cfg.DBDir)
		}
	})

	t.Run("defaults validate", func(t *testing.T) {
		t.Parallel()
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected defaults to be valid, got %v", err)
		}
	})
}

// TestConfigValidate tests the Validate method with various configurations.
// Each test case is designed to test one specific validation rule.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "defaults are valid",
			mutate: func(_ *Config) {},
		},
		{
			name:   "zero timeout disables the timeout",
			mutate: func(c *Config) { c.Timeout = 0 },
		},
		{
			name:   "bounded concurrency is valid",
			mutate: func(c *Config) { c.Concurrency = 8 },
		},
		{
			name:   "loopback index URL is valid",
			mutate: func(c *Config) { c.IndexURL = "http://127.0.0.1:8080/api/peps.json" },
		},
		{
			name:   "SOCKS5 proxy is valid",
			mutate: func(c *Config) { c.ProxyAddress = "127.0.0.1:9050" },
		},
		{
			name:   "zero max body size means default",
			mutate: func(c *Config) { c.MaxBodySize = 0 },
		},
		{
			name:    "empty index URL",
			mutate:  func(c *Config) { c.IndexURL = "" },
			wantErr: ErrInvalidIndexURL,
		},
		{
			name:    "relative index URL",
			mutate:  func(c *Config) { c.IndexURL = "/api/peps.json" },
			wantErr: ErrInvalidIndexURL,
		},
		{
			name:    "non-http index URL",
			mutate:  func(c *Config) { c.IndexURL = "ftp://peps.python.org/peps.json" },
			wantErr: ErrInvalidIndexURL,
		},
		{
			name:    "blank output dir",
			mutate:  func(c *Config) { c.OutputDir = "   " },
			wantErr: ErrEmptyOutputDir,
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Timeout = -time.Second },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "negative concurrency",
			mutate:  func(c *Config) { c.Concurrency = -1 },
			wantErr: ErrInvalidConcurrency,
		},
		{
			name:    "blank selector",
			mutate:  func(c *Config) { c.Selector = "" },
			wantErr: ErrEmptySelector,
		},
		{
			name: "json and markdown together",
			mutate: func(c *Config) {
				c.JSONReport = true
				c.MarkdownReport = true
			},
			wantErr: ErrConflictingReportFormats,
		},
		{
			name:    "negative max body size",
			mutate:  func(c *Config) { c.MaxBodySize = -1 },
			wantErr: ErrInvalidMaxBodySize,
		},
		{
			name:    "proxy without port",
			mutate:  func(c *Config) { c.ProxyAddress = "127.0.0.1" },
			wantErr: ErrInvalidProxyAddress,
		},
		{
			name: "proxy and tor together",
			mutate: func(c *Config) {
				c.ProxyAddress = "127.0.0.1:9050"
				c.UseTor = true
			},
			wantErr: ErrConflictingNetwork,
		},
		{
			name: "tor with zero startup timeout",
			mutate: func(c *Config) {
				c.UseTor = true
				c.TorStartupTimeout = 0
			},
			wantErr: ErrInvalidTorStartupTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestEffectiveMaxBodySize tests the body size fallback.
func TestEffectiveMaxBodySize(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.MaxBodySize = 0
	if cfg.EffectiveMaxBodySize() != DefaultMaxBodySize {
		t.Errorf("expected default, got %d", cfg.EffectiveMaxBodySize())
	}

	cfg.MaxBodySize = 1024
	if cfg.EffectiveMaxBodySize() != 1024 {
		t.Errorf("expected 1024, got %d", cfg.EffectiveMaxBodySize())
	}
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.pepfetch")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".pepfetch")
		content := `indexURL: "http://mirror.example.com/peps.json"
outputDir: "corpus"
timeout: 30s
concurrency: 4
maxBodySize: 1048576
headers:
  Accept-Language: "en"
proxy: "127.0.0.1:9050"
history: false
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		file, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if file.IndexURL != "http://mirror.example.com/peps.json" {
			t.Errorf("unexpected indexURL %q", file.IndexURL)
		}
		if file.Timeout == nil || *file.Timeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", file.Timeout)
		}
		if file.Concurrency == nil || *file.Concurrency != 4 {
			t.Errorf("expected concurrency 4, got %v", file.Concurrency)
		}
		if file.History == nil || *file.History {
			t.Error("expected history to be explicitly disabled")
		}
		if file.Tor != nil {
			t.Error("expected tor to be unset")
		}
		if file.Headers["Accept-Language"] != "en" {
			t.Error("expected Accept-Language header")
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".pepfetch")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})
}

// TestFileApply tests that only set fields override the config.
func TestFileApply(t *testing.T) {
	t.Parallel()

	t.Run("unset fields keep defaults", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		(&File{}).Apply(cfg)

		if cfg.IndexURL != DefaultIndexURL || cfg.Timeout != DefaultTimeout || !cfg.SaveHistory {
			t.Errorf("empty file changed defaults: %+v", cfg)
		}
	})

	t.Run("explicit zero values override", func(t *testing.T) {
		t.Parallel()

		zero := time.Duration(0)
		off := false
		cfg := NewConfig()
		(&File{Timeout: &zero, History: &off}).Apply(cfg)

		if cfg.Timeout != 0 {
			t.Errorf("expected timeout 0, got %v", cfg.Timeout)
		}
		if cfg.SaveHistory {
			t.Error("expected history disabled")
		}
	})

	t.Run("headers are merged", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.Headers = map[string]string{"X-A": "1", "X-B": "1"}
		(&File{Headers: map[string]string{"X-B": "2", "X-C": "3"}}).Apply(cfg)

		want := map[string]string{"X-A": "1", "X-B": "2", "X-C": "3"}
		for k, v := range want {
			if cfg.Headers[k] != v {
				t.Errorf("header %s: got %q, want %q", k, cfg.Headers[k], v)
			}
		}
	})

	t.Run("nil file is a no-op", func(t *testing.T) {
		t.Parallel()

		var f *File
		cfg := NewConfig()
		f.Apply(cfg)
		if cfg.OutputDir != DefaultOutputDir {
			t.Error("nil file changed config")
		}
	})
}

// TestLoad tests building a Config from defaults and a config file.
func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("explicit file is applied", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "pepfetch.yaml")
		if err := os.WriteFile(configPath, []byte("outputDir: corpus\ntor: true\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := Load(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.OutputDir != "corpus" {
			t.Errorf("expected outputDir from file, got %q", cfg.OutputDir)
		}
		if !cfg.UseTor {
			t.Error("expected tor enabled from file")
		}
		if cfg.ConfigFilePath != configPath {
			t.Errorf("expected ConfigFilePath %q, got %q", configPath, cfg.ConfigFilePath)
		}
		if cfg.Timeout != DefaultTimeout {
			t.Errorf("expected default timeout to survive, got %v", cfg.Timeout)
		}
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		t.Parallel()

		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("outputDir: x\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if filepath.Base(XDGDataDir()) != AppName {
		t.Errorf("expected data dir to end in %q, got %q", AppName, XDGDataDir())
	}
	if filepath.Base(XDGConfigDir()) != AppName {
		t.Errorf("expected config dir to end in %q, got %q", AppName, XDGConfigDir())
	}
}
