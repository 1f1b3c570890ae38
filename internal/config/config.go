package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/zring/cfbmodel/internal/cfbd"
	"github.com/zring/cfbmodel/internal/logging"
	"github.com/zring/cfbmodel/internal/ml"
)

// Config represents the application configuration.
type Config struct {
	// Classifier settings
	Model ModelConfig `toml:"model"`

	// Stats API client settings
	API APIConfig `toml:"api"`

	// Data selection settings
	Data DataConfig `toml:"data"`

	// Logging settings
	Log LogConfig `toml:"log"`

	// File locations
	Paths PathsConfig `toml:"paths"`

	// HTTP server settings
	Server ServerConfig `toml:"server"`
}

// ModelConfig contains classifier hyper-parameters.
type ModelConfig struct {
	Type        string  `toml:"type"`         // random_forest or gradient_boosting
	RandomState uint64  `toml:"random_state"` // Seed for splits and sampling
	TestSize    float64 `toml:"test_size"`    // Held-out fraction
	CVFolds     int     `toml:"cv_folds"`     // Cross-validation folds (< 2 disables)
	Workers     int     `toml:"workers"`      // Parallel tree fitting (0 = all CPUs)

	RFEstimators      int `toml:"rf_estimators"`
	RFMaxDepth        int `toml:"rf_max_depth"`
	RFMinSamplesSplit int `toml:"rf_min_samples_split"`
	RFMaxFeatures     int `toml:"rf_max_features"` // 0 = sqrt(features)

	GBEstimators      int     `toml:"gb_estimators"`
	GBMaxDepth        int     `toml:"gb_max_depth"`
	GBMinSamplesSplit int     `toml:"gb_min_samples_split"`
	GBLearningRate    float64 `toml:"gb_learning_rate"`
	GBSubsample       float64 `toml:"gb_subsample"`
}

// APIConfig contains stats API client settings.
type APIConfig struct {
	APIKey        string `toml:"api_key,omitempty"` // Prefer CFB_API_KEY
	BaseURL       string `toml:"base_url"`          // API root
	Timeout       string `toml:"timeout"`           // Request timeout (e.g., "30s")
	MaxRetries    int    `toml:"max_retries"`       // Retries for transient failures
	MaxRetryAfter string `toml:"max_retry_after"`   // Longest Retry-After the client will wait (e.g., "60s")
	RateLimit     string `toml:"rate_limit"`        // Minimum interval between requests (e.g., "200ms")
	UseCache      bool   `toml:"use_cache"`         // Cache responses in the database
	CacheTTL      string `toml:"cache_ttl"`         // Response cache TTL (e.g., "24h")
}

// DataConfig contains data selection settings.
type DataConfig struct {
	SeasonType  string `toml:"season_type"`  // regular, postseason or both
	AliasesFile string `toml:"aliases_file"` // Optional YAML team alias file
	UseLines    bool   `toml:"use_lines"`    // Attach betting spreads to predictions
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warning, error
	Format string `toml:"format"` // text or json
}

// PathsConfig contains file locations.
type PathsConfig struct {
	ModelPath string `toml:"model_path"` // Trained model file
	DBPath    string `toml:"db_path"`    // SQLite database
	OutputDir string `toml:"output_dir"` // Prediction outputs
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port           int      `toml:"port"`
	Schedule       string   `toml:"schedule"`        // Cron spec for weekly predictions ("" = off)
	WatchModel     bool     `toml:"watch_model"`     // Reload the model when its file changes
	AllowedOrigins []string `toml:"allowed_origins"` // CORS origins
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	rf := ml.DefaultModelConfig(ml.ModelTypeRandomForest)
	gb := ml.DefaultModelConfig(ml.ModelTypeGradientBoosting)
	return &Config{
		Model: ModelConfig{
			Type:              string(ml.ModelTypeRandomForest),
			RandomState:       rf.RandomState,
			TestSize:          rf.TestSize,
			CVFolds:           rf.CVFolds,
			RFEstimators:      rf.NEstimators,
			RFMaxDepth:        rf.MaxDepth,
			RFMinSamplesSplit: rf.MinSamplesSplit,
			GBEstimators:      gb.NEstimators,
			GBMaxDepth:        gb.MaxDepth,
			GBMinSamplesSplit: gb.MinSamplesSplit,
			GBLearningRate:    gb.LearningRate,
			GBSubsample:       gb.Subsample,
		},
		API: APIConfig{
			BaseURL:       cfbd.APIBase,
			Timeout:       "30s",
			MaxRetries:    cfbd.DefaultMaxRetries,
			MaxRetryAfter: cfbd.DefaultMaxRetryAfter.String(),
			RateLimit:     "200ms",
			UseCache:      true,
			CacheTTL:      "24h",
		},
		Data: DataConfig{
			SeasonType: cfbd.SeasonTypeRegular,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
		Paths: PathsConfig{
			ModelPath: "cfb_model.json",
			DBPath:    defaultDBPath(),
			OutputDir: "predictions",
		},
		Server: ServerConfig{
			Port:           8080,
			WatchModel:     true,
			AllowedOrigins: []string{"*"},
		},
	}
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cfbmodel"), nil
}

// DefaultPath returns the default configuration file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func defaultDBPath() string {
	dir, err := Dir()
	if err != nil {
		return "cfbmodel.db"
	}
	return filepath.Join(dir, "cfbmodel.db")
}

// Load loads the configuration from path, or from DefaultPath when path is
// empty. Returns the default config if the file doesn't exist. Keys missing
// from the file keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	// If file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// Save saves the configuration to path, or to DefaultPath when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// The file may hold an API key.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if _, err := ml.ParseModelType(c.Model.Type); err != nil {
		return err
	}
	if c.Model.TestSize <= 0 || c.Model.TestSize >= 1 {
		return fmt.Errorf("test size must be in (0, 1): %v", c.Model.TestSize)
	}
	if c.Model.CVFolds < 0 {
		return fmt.Errorf("cv folds cannot be negative: %d", c.Model.CVFolds)
	}
	if c.Model.RFEstimators < 1 || c.Model.GBEstimators < 1 {
		return fmt.Errorf("estimator counts must be positive")
	}
	if c.Model.GBLearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive: %v", c.Model.GBLearningRate)
	}
	if c.Model.GBSubsample <= 0 || c.Model.GBSubsample > 1 {
		return fmt.Errorf("subsample must be in (0, 1]: %v", c.Model.GBSubsample)
	}

	if _, err := time.ParseDuration(c.API.Timeout); err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.API.Timeout, err)
	}
	if d, err := time.ParseDuration(c.API.MaxRetryAfter); err != nil || d <= 0 {
		return fmt.Errorf("invalid max retry after %q", c.API.MaxRetryAfter)
	}
	if _, err := time.ParseDuration(c.API.RateLimit); err != nil {
		return fmt.Errorf("invalid rate limit %q: %w", c.API.RateLimit, err)
	}
	if _, err := time.ParseDuration(c.API.CacheTTL); err != nil {
		return fmt.Errorf("invalid cache TTL %q: %w", c.API.CacheTTL, err)
	}

	switch c.Data.SeasonType {
	case cfbd.SeasonTypeRegular, cfbd.SeasonTypePostseason, cfbd.SeasonTypeBoth:
	default:
		return fmt.Errorf("invalid season type %q", c.Data.SeasonType)
	}

	switch c.Log.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	return nil
}

// GetTimeout returns the request timeout as a duration.
func (c *Config) GetTimeout() (time.Duration, error) {
	return time.ParseDuration(c.API.Timeout)
}

// GetRateInterval returns the minimum interval between requests.
func (c *Config) GetRateInterval() (time.Duration, error) {
	return time.ParseDuration(c.API.RateLimit)
}

// GetMaxRetryAfter returns the Retry-After ceiling as a duration.
func (c *Config) GetMaxRetryAfter() (time.Duration, error) {
	return time.ParseDuration(c.API.MaxRetryAfter)
}

// GetCacheTTL returns the cache TTL as a duration.
func (c *Config) GetCacheTTL() (time.Duration, error) {
	return time.ParseDuration(c.API.CacheTTL)
}

// ModelType returns the configured classifier type.
func (c *Config) ModelType() (ml.ModelType, error) {
	return ml.ParseModelType(c.Model.Type)
}

// ModelConfigFor builds classifier settings for t from the [model] section.
func (c *Config) ModelConfigFor(t ml.ModelType) *ml.ModelConfig {
	cfg := ml.DefaultModelConfig(t)
	cfg.RandomState = c.Model.RandomState
	cfg.TestSize = c.Model.TestSize
	cfg.CVFolds = c.Model.CVFolds
	cfg.Workers = c.Model.Workers
	switch t {
	case ml.ModelTypeGradientBoosting:
		cfg.NEstimators = c.Model.GBEstimators
		cfg.MaxDepth = c.Model.GBMaxDepth
		cfg.MinSamplesSplit = c.Model.GBMinSamplesSplit
		cfg.LearningRate = c.Model.GBLearningRate
		cfg.Subsample = c.Model.GBSubsample
	default:
		cfg.NEstimators = c.Model.RFEstimators
		cfg.MaxDepth = c.Model.RFMaxDepth
		cfg.MinSamplesSplit = c.Model.RFMinSamplesSplit
		cfg.MaxFeatures = c.Model.RFMaxFeatures
	}
	return cfg
}
