// Package config loads the layered rerankd configuration: hardcoded
// defaults, the user config file, an optional project file, then RERANKD_*
// environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/knowbase/rerankd/internal/errors"
)

// Config is the complete rerankd configuration.
type Config struct {
	Version int          `yaml:"version" json:"version"`
	Engine  EngineConfig `yaml:"engine" json:"engine"`
	Cache   CacheConfig  `yaml:"cache" json:"cache"`
	Model   ModelConfig  `yaml:"model" json:"model"`
	Scorer  ScorerConfig `yaml:"scorer" json:"scorer"`
	Log     LogConfig    `yaml:"log" json:"log"`
}

// EngineConfig tunes the re-ranking loop.
type EngineConfig struct {
	// Cutoff is the scoring cutoff: candidates beyond this index pass
	// through unscored. Matches the retrieval stage's pool size.
	Cutoff int `yaml:"cutoff" json:"cutoff"`

	// ScoreCacheSize is the capacity of the (query, text) score LRU.
	// Zero disables caching.
	ScoreCacheSize int `yaml:"score_cache_size" json:"score_cache_size"`
}

// CacheConfig locates the shared asset cache.
type CacheConfig struct {
	// Dir is the cache root directory. Defaults to ~/.rerankd/cache.
	Dir string `yaml:"dir" json:"dir"`

	// Namespace groups entries under the cache root so other consumers
	// of the same directory never collide.
	Namespace string `yaml:"namespace" json:"namespace"`
}

// ModelConfig locates the model assets and controls fetching.
type ModelConfig struct {
	// LocalBase is a directory holding pre-downloaded assets. Checked
	// before the remote repository; empty disables the local step.
	LocalBase string `yaml:"local_base" json:"local_base"`

	// RemoteBase is the base URL assets are fetched from when the local
	// base misses. Empty uses the default model repository.
	RemoteBase string `yaml:"remote_base" json:"remote_base"`

	// FetchTimeout bounds one asset fetch, e.g. "30m". Weights files are
	// large on slow networks.
	FetchTimeout string `yaml:"fetch_timeout" json:"fetch_timeout"`

	// Retry controls per-fetch retry behavior.
	Retry RetryConfig `yaml:"retry" json:"retry"`
}

// RetryConfig mirrors the backoff parameters for asset fetches.
type RetryConfig struct {
	MaxRetries   int     `yaml:"max_retries" json:"max_retries"`
	InitialDelay string  `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64 `yaml:"multiplier" json:"multiplier"`
}

// ScorerConfig configures the similarity backend.
type ScorerConfig struct {
	// Endpoint is the scoring server base URL (default: http://localhost:9659).
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Model is the model identifier sent with each scoring request.
	Model string `yaml:"model" json:"model"`

	// Timeout bounds a single scoring call, e.g. "30s".
	Timeout string `yaml:"timeout" json:"timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// File overrides the default log path (~/.rerankd/logs/engine.log).
	File string `yaml:"file" json:"file"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Engine: EngineConfig{
			Cutoff:         30,
			ScoreCacheSize: 4096,
		},
		Cache: CacheConfig{
			Dir:       defaultCacheDir(),
			Namespace: "assets-v1",
		},
		Model: ModelConfig{
			LocalBase:    "",
			RemoteBase:   "", // Empty uses the loader's default repository
			FetchTimeout: "30m",
			Retry: RetryConfig{
				MaxRetries:   3,
				InitialDelay: "1s",
				MaxDelay:     "16s",
				Multiplier:   2.0,
			},
		},
		Scorer: ScorerConfig{
			Endpoint: "", // Empty uses the scorer's default http://localhost:9659
			Model:    "cross-encoder-small",
			Timeout:  "30s",
		},
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
	}
}

// defaultCacheDir returns the default shared asset cache root.
func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".rerankd", "cache")
	}
	return filepath.Join(home, ".rerankd", "cache")
}

// GetUserConfigPath returns the user configuration file path, following
// the XDG Base Directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rerankd", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "rerankd", "config.yaml")
	}
	return filepath.Join(home, ".config", "rerankd", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the effective configuration for the given directory:
//  1. Hardcoded defaults
//  2. User config (~/.config/rerankd/config.yaml)
//  3. Project config (.rerankd.yaml or .rerankd.yml in dir)
//  4. Environment variables (RERANKD_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if UserConfigExists() {
		if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromDir loads .rerankd.yaml or .rerankd.yml from dir, if present.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{".rerankd.yaml", ".rerankd.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	// No project config is fine.
	return nil
}

// loadYAML merges a YAML file's non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Engine.Cutoff != 0 {
		c.Engine.Cutoff = other.Engine.Cutoff
	}
	if other.Engine.ScoreCacheSize != 0 {
		c.Engine.ScoreCacheSize = other.Engine.ScoreCacheSize
	}

	if other.Cache.Dir != "" {
		c.Cache.Dir = other.Cache.Dir
	}
	if other.Cache.Namespace != "" {
		c.Cache.Namespace = other.Cache.Namespace
	}

	if other.Model.LocalBase != "" {
		c.Model.LocalBase = other.Model.LocalBase
	}
	if other.Model.RemoteBase != "" {
		c.Model.RemoteBase = other.Model.RemoteBase
	}
	if other.Model.FetchTimeout != "" {
		c.Model.FetchTimeout = other.Model.FetchTimeout
	}
	if other.Model.Retry.MaxRetries != 0 {
		c.Model.Retry.MaxRetries = other.Model.Retry.MaxRetries
	}
	if other.Model.Retry.InitialDelay != "" {
		c.Model.Retry.InitialDelay = other.Model.Retry.InitialDelay
	}
	if other.Model.Retry.MaxDelay != "" {
		c.Model.Retry.MaxDelay = other.Model.Retry.MaxDelay
	}
	if other.Model.Retry.Multiplier != 0 {
		c.Model.Retry.Multiplier = other.Model.Retry.Multiplier
	}

	if other.Scorer.Endpoint != "" {
		c.Scorer.Endpoint = other.Scorer.Endpoint
	}
	if other.Scorer.Model != "" {
		c.Scorer.Model = other.Scorer.Model
	}
	if other.Scorer.Timeout != "" {
		c.Scorer.Timeout = other.Scorer.Timeout
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
}

// applyEnvOverrides applies RERANKD_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RERANKD_CUTOFF"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.Cutoff = n
		}
	}
	if v := os.Getenv("RERANKD_SCORE_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Engine.ScoreCacheSize = n
		}
	}
	if v := os.Getenv("RERANKD_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("RERANKD_CACHE_NAMESPACE"); v != "" {
		c.Cache.Namespace = v
	}
	if v := os.Getenv("RERANKD_MODEL_LOCAL_BASE"); v != "" {
		c.Model.LocalBase = v
	}
	if v := os.Getenv("RERANKD_MODEL_REMOTE_BASE"); v != "" {
		c.Model.RemoteBase = v
	}
	if v := os.Getenv("RERANKD_SCORER_ENDPOINT"); v != "" {
		c.Scorer.Endpoint = v
	}
	if v := os.Getenv("RERANKD_SCORER_MODEL"); v != "" {
		c.Scorer.Model = v
	}
	if v := os.Getenv("RERANKD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RERANKD_LOG_FILE"); v != "" {
		c.Log.File = v
	}
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if c.Engine.Cutoff <= 0 {
		return fmt.Errorf("engine.cutoff must be positive, got %d", c.Engine.Cutoff)
	}
	if c.Engine.ScoreCacheSize < 0 {
		return fmt.Errorf("engine.score_cache_size must be non-negative, got %d", c.Engine.ScoreCacheSize)
	}

	if _, err := c.FetchTimeout(); err != nil {
		return fmt.Errorf("model.fetch_timeout: %w", err)
	}
	if _, err := c.ScorerTimeout(); err != nil {
		return fmt.Errorf("scorer.timeout: %w", err)
	}
	if _, err := c.RetryConfig(); err != nil {
		return fmt.Errorf("model.retry: %w", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level)
	}
	return nil
}

// FetchTimeout parses model.fetch_timeout.
func (c *Config) FetchTimeout() (time.Duration, error) {
	return parseDuration(c.Model.FetchTimeout, 30*time.Minute)
}

// ScorerTimeout parses scorer.timeout.
func (c *Config) ScorerTimeout() (time.Duration, error) {
	return parseDuration(c.Scorer.Timeout, 30*time.Second)
}

// RetryConfig converts the YAML retry block into the retry helper's config.
func (c *Config) RetryConfig() (errors.RetryConfig, error) {
	initial, err := parseDuration(c.Model.Retry.InitialDelay, time.Second)
	if err != nil {
		return errors.RetryConfig{}, fmt.Errorf("initial_delay: %w", err)
	}
	max, err := parseDuration(c.Model.Retry.MaxDelay, 16*time.Second)
	if err != nil {
		return errors.RetryConfig{}, fmt.Errorf("max_delay: %w", err)
	}
	return errors.RetryConfig{
		MaxRetries:   c.Model.Retry.MaxRetries,
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   c.Model.Retry.Multiplier,
	}, nil
}

// parseDuration parses a duration string, falling back to def when empty.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
