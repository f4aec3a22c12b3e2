package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv removes every override Load consults so host settings don't leak
// into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "LOG_LEVEL", "ALPACA_API_KEY", "ALPACA_API_SECRET",
		"ALPACA_DATA_URL", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	yamlContent := []byte(`
storage:
  data_dir: "/tmp/stockpane/data"
  registry_file: "panes.json"
  registry_backend: "sqlite"
  sqlite_path: "/var/lib/stockpane.db"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  data_url: "https://data.alpaca.markets"
  feed: "sip"
refresh:
  poll_interval: 30s
  max_workers: 16
  fetch_retries: 3
  retry_delay: 250ms
  rate_limit_per_min: 120
  validate_on_add: false
display:
  page_size: 50
logging:
  level: "debug"
  format: "text"
  file: "/tmp/stockpane.log"
`)

	path := filepath.Join(t.TempDir(), "stockpane.yaml")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/stockpane/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/stockpane/data")
	}
	if got, want := cfg.Storage.RegistryPath(), filepath.Join("/tmp/stockpane/data", "panes.json"); got != want {
		t.Errorf("Storage.RegistryPath() = %q, want %q", got, want)
	}
	if cfg.Storage.RegistryBackend != "sqlite" {
		t.Errorf("Storage.RegistryBackend = %q, want %q", cfg.Storage.RegistryBackend, "sqlite")
	}
	if got := cfg.Storage.SQLiteFile(); got != "/var/lib/stockpane.db" {
		t.Errorf("Storage.SQLiteFile() = %q, want absolute path unchanged", got)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.Feed != "sip" {
		t.Errorf("Alpaca.Feed = %q, want %q", cfg.Alpaca.Feed, "sip")
	}

	// -- Refresh --
	if cfg.Refresh.PollInterval != 30*time.Second {
		t.Errorf("Refresh.PollInterval = %v, want 30s", cfg.Refresh.PollInterval)
	}
	if cfg.Refresh.MaxWorkers != 16 {
		t.Errorf("Refresh.MaxWorkers = %d, want 16", cfg.Refresh.MaxWorkers)
	}
	if cfg.Refresh.FetchRetries != 3 {
		t.Errorf("Refresh.FetchRetries = %d, want 3", cfg.Refresh.FetchRetries)
	}
	if cfg.Refresh.RetryDelay != 250*time.Millisecond {
		t.Errorf("Refresh.RetryDelay = %v, want 250ms", cfg.Refresh.RetryDelay)
	}
	if cfg.Refresh.ValidateOnAdd {
		t.Error("Refresh.ValidateOnAdd = true, want false")
	}

	// -- Display / Logging --
	if cfg.Display.PageSize != 50 {
		t.Errorf("Display.PageSize = %d, want 50", cfg.Display.PageSize)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Refresh.PollInterval != DefaultPollInterval {
		t.Errorf("Refresh.PollInterval = %v, want %v", cfg.Refresh.PollInterval, DefaultPollInterval)
	}
	if cfg.Refresh.MaxWorkers != DefaultMaxWorkers {
		t.Errorf("Refresh.MaxWorkers = %d, want %d", cfg.Refresh.MaxWorkers, DefaultMaxWorkers)
	}
	if cfg.Display.PageSize != DefaultPageSize {
		t.Errorf("Display.PageSize = %d, want %d", cfg.Display.PageSize, DefaultPageSize)
	}
	if cfg.Storage.RegistryBackend != "json" {
		t.Errorf("Storage.RegistryBackend = %q, want json", cfg.Storage.RegistryBackend)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("refresh: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail on malformed YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", "/srv/stockpane")
	t.Setenv("ALPACA_API_KEY", "yaml-key")
	t.Setenv("APCA_API_KEY_ID", "canonical-key")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.DataDir != "/srv/stockpane" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/srv/stockpane")
	}
	if cfg.Alpaca.APIKey != "canonical-key" {
		t.Errorf("Alpaca.APIKey = %q, want canonical APCA value", cfg.Alpaca.APIKey)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
}

func TestRefreshValidate(t *testing.T) {
	r := RefreshConfig{PollInterval: -1, MaxWorkers: 0, FetchRetries: 0, RetryDelay: -time.Second}
	r.Validate()
	if r.PollInterval != DefaultPollInterval || r.MaxWorkers != DefaultMaxWorkers {
		t.Errorf("Validate() = %+v, want defaults restored", r)
	}
	if r.FetchRetries != 1 {
		t.Errorf("FetchRetries = %d, want 1", r.FetchRetries)
	}
	if r.RetryDelay != DefaultRetryDelay {
		t.Errorf("RetryDelay = %v, want %v", r.RetryDelay, DefaultRetryDelay)
	}
}
