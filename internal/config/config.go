package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for stockpane.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Alpaca  Alpaca        `yaml:"alpaca"`
	Refresh RefreshConfig `yaml:"refresh"`
	Display Display       `yaml:"display"`
	Logging Logging       `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir         string `yaml:"data_dir"`
	RegistryFile    string `yaml:"registry_file"`
	RegistryBackend string `yaml:"registry_backend"` // "json" or "sqlite"
	SQLitePath      string `yaml:"sqlite_path"`
}

// RegistryPath returns the registry file resolved against DataDir.
func (s Storage) RegistryPath() string {
	return s.resolve(s.RegistryFile)
}

// SQLiteFile returns the SQLite database path resolved against DataDir.
func (s Storage) SQLiteFile() string {
	return s.resolve(s.SQLitePath)
}

// PortfolioPath returns the symbol-list file for a portfolio identifier.
func (s Storage) PortfolioPath(id string) string {
	return s.resolve(id)
}

func (s Storage) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.DataDir, p)
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"` // "iex" or "sip"
}

// RefreshConfig controls the quote refresh engine.
type RefreshConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxWorkers      int           `yaml:"max_workers"`
	FetchRetries    int           `yaml:"fetch_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	ValidateOnAdd   bool          `yaml:"validate_on_add"`
}

// Display controls presentation of portfolio views.
type Display struct {
	PageSize int `yaml:"page_size"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

const (
	DefaultPollInterval = 50 * time.Second
	DefaultMaxWorkers   = 12
	DefaultFetchRetries = 2
	DefaultRetryDelay   = 500 * time.Millisecond
	DefaultPageSize     = 100
)

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:         "data",
			RegistryFile:    "portfolio_config.json",
			RegistryBackend: "json",
			SQLitePath:      "stockpane.db",
		},
		Alpaca: Alpaca{
			Feed: "iex",
		},
		Refresh: RefreshConfig{
			PollInterval:    DefaultPollInterval,
			MaxWorkers:      DefaultMaxWorkers,
			FetchRetries:    DefaultFetchRetries,
			RetryDelay:      DefaultRetryDelay,
			RateLimitPerMin: 200,
			ValidateOnAdd:   true,
		},
		Display: Display{
			PageSize: DefaultPageSize,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate clamps out-of-range values back to their defaults.
func (r *RefreshConfig) Validate() {
	if r.PollInterval <= 0 {
		r.PollInterval = DefaultPollInterval
	}
	if r.MaxWorkers <= 0 {
		r.MaxWorkers = DefaultMaxWorkers
	}
	if r.FetchRetries <= 0 {
		r.FetchRetries = 1
	}
	if r.RetryDelay < 0 {
		r.RetryDelay = DefaultRetryDelay
	}
	if r.RateLimitPerMin < 0 {
		r.RateLimitPerMin = 0
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at path over the defaults and then
// applies environment variable overrides. A missing file is not an error:
// the defaults (plus environment) are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	cfg.Refresh.Validate()
	if cfg.Display.PageSize <= 0 {
		cfg.Display.PageSize = DefaultPageSize
	}

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Standard Alpaca env vars take priority over the stockpane names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
