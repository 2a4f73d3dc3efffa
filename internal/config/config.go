package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model. It captures credentials,
// API pacing, sync tuning, and gap-check tuning.
type Config struct {
	Account     AccountConfig     `yaml:"account"`
	Credentials CredentialsConfig `yaml:"credentials"`
	API         APIConfig         `yaml:"api"`
	Sync        SyncConfig        `yaml:"sync"`
	Gaps        GapsConfig        `yaml:"gaps"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type AccountConfig struct {
	// Last.fm username whose history is mirrored.
	Username string `yaml:"username"`
}

type CredentialsConfig struct {
	// Last.fm API key. If empty, read from env LASTFM_API_KEY.
	APIKey string `yaml:"apiKey"`
}

type APIConfig struct {
	BaseURL           string  `yaml:"baseURL"`
	TimeoutSeconds    int     `yaml:"timeoutSeconds"`
	RPS               float64 `yaml:"rps"`
	Burst             int     `yaml:"burst"`
	MaxAttempts       int     `yaml:"maxAttempts"`
	BaseBackoffMillis int     `yaml:"baseBackoffMillis"`
}

type SyncConfig struct {
	// Events per page, capped at 200 by the API.
	PageSize int `yaml:"pageSize"`
	// Page ceilings for the quick and thorough incremental modes.
	IncrementalPages int `yaml:"incrementalPages"`
	ThoroughPages    int `yaml:"thoroughPages"`
	// Consecutive already-stored events at-or-below the pre-run high-water
	// mark before an incremental walk stops.
	ExistingRunThreshold int `yaml:"existingRunThreshold"`
	// Minutes between runs in watch mode.
	IntervalMinutes int `yaml:"intervalMinutes"`
}

type GapsConfig struct {
	ThresholdSeconds int `yaml:"thresholdSeconds"`
	LookbackHours    int `yaml:"lookbackHours"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ConfigurationError reports a required setting that is absent. It is raised
// before any network call is made.
type ConfigurationError struct{ Field string }

func (e *ConfigurationError) Error() string { return "missing configuration: " + e.Field }

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Account:     AccountConfig{Username: ""},
		Credentials: CredentialsConfig{APIKey: ""},
		API: APIConfig{
			BaseURL:           "https://ws.audioscrobbler.com/2.0/",
			TimeoutSeconds:    30,
			RPS:               2.0,
			Burst:             5,
			MaxAttempts:       5,
			BaseBackoffMillis: 500,
		},
		Sync: SyncConfig{
			PageSize:             200,
			IncrementalPages:     5,
			ThoroughPages:        20,
			ExistingRunThreshold: 50,
			IntervalMinutes:      60,
		},
		Gaps:    GapsConfig{ThresholdSeconds: 3600, LookbackHours: 24},
		Storage: StorageConfig{DBPath: "./music.db"},
		Metrics: MetricsConfig{Addr: ""},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.APIKey == "" {
		c.Credentials.APIKey = os.Getenv("LASTFM_API_KEY")
	}
	if c.Account.Username == "" {
		c.Account.Username = os.Getenv("LASTFM_USER")
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = os.Getenv("LYTTER_DB")
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("METRICS_ADDR")
	}
}

// Validate checks that everything needed before the first network call is
// present.
func (c Config) Validate() error {
	if c.Credentials.APIKey == "" {
		return &ConfigurationError{Field: "credentials.apiKey (or LASTFM_API_KEY)"}
	}
	if c.Account.Username == "" {
		return &ConfigurationError{Field: "account.username (or LASTFM_USER)"}
	}
	return nil
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
