package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/zring/cfbmodel/internal/cfbd"
	"github.com/zring/cfbmodel/internal/config"
	"github.com/zring/cfbmodel/internal/features"
	"github.com/zring/cfbmodel/internal/logging"
	"github.com/zring/cfbmodel/internal/metrics"
	"github.com/zring/cfbmodel/internal/ml"
	"github.com/zring/cfbmodel/internal/pipeline"
	"github.com/zring/cfbmodel/internal/season"
	"github.com/zring/cfbmodel/internal/storage"
)

// apiKeyEnv names the environment variable holding the API key.
const apiKeyEnv = "CFB_API_KEY"

var errMissingAPIKey = errors.New("API key required: pass --api-key, set " + apiKeyEnv + " or add api.api_key to the config file")

// app holds state shared by all commands.
type app struct {
	// Persistent flags
	configPath string
	envFile    string
	apiKeyFlag string
	dbPath     string
	logLevel   string
	logFormat  string

	cfg     *config.Config
	logger  *logrus.Logger
	metrics *metrics.PipelineMetrics
	apiKey  string

	db *storage.DB

	// fetcher replaces the API client when set.
	fetcher pipeline.Fetcher
	now     func() time.Time
}

// setup loads .env, the config file and the logger. It runs before every command.
func (a *app) setup(cmd *cobra.Command) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else {
		// A missing .env is normal.
		_ = godotenv.Load()
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.dbPath != "" {
		cfg.Paths.DBPath = a.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.logger = logger

	switch {
	case a.apiKeyFlag != "":
		a.apiKey = a.apiKeyFlag
	case os.Getenv(apiKeyEnv) != "":
		a.apiKey = os.Getenv(apiKeyEnv)
	default:
		a.apiKey = cfg.API.APIKey
	}

	if a.metrics == nil {
		a.metrics = metrics.NewPipelineMetrics()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return nil
}

// close releases the database, if opened.
func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
	a.db = nil
}

// openDB opens the database once per command.
func (a *app) openDB() (*storage.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := storage.Open(storage.DefaultConfig(a.cfg.Paths.DBPath))
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

// runs returns the prediction run repository.
func (a *app) runs() (storage.RunRepository, error) {
	db, err := a.openDB()
	if err != nil {
		return nil, err
	}
	return storage.NewRunRepository(db), nil
}

// client builds the API client from the config, backed by the response
// cache when enabled.
func (a *app) client() (*cfbd.Client, error) {
	if a.apiKey == "" {
		return nil, errMissingAPIKey
	}
	timeout, err := a.cfg.GetTimeout()
	if err != nil {
		return nil, err
	}
	interval, err := a.cfg.GetRateInterval()
	if err != nil {
		return nil, err
	}
	maxRetryAfter, err := a.cfg.GetMaxRetryAfter()
	if err != nil {
		return nil, err
	}

	opts := cfbd.DefaultClientOptions(a.apiKey)
	opts.BaseURL = a.cfg.API.BaseURL
	opts.Timeout = timeout
	opts.RateLimit = rate.Every(interval)
	opts.MaxRetries = a.cfg.API.MaxRetries
	opts.MaxRetryAfter = maxRetryAfter
	opts.Logger = a.logger
	opts.Metrics = a.metrics

	if a.cfg.API.UseCache {
		ttl, err := a.cfg.GetCacheTTL()
		if err != nil {
			return nil, err
		}
		db, err := a.openDB()
		if err != nil {
			return nil, err
		}
		cache := storage.NewResponseCache(db, ttl)
		if n, err := cache.Purge(context.Background()); err != nil {
			a.logger.WithError(err).Warn("Failed to purge expired responses")
		} else if n > 0 {
			a.logger.WithField("entries", n).Debug("Purged expired responses")
		}
		opts.Cache = cache
	}
	return cfbd.NewClient(opts), nil
}

// source returns the data source for the pipeline.
func (a *app) source() (pipeline.Fetcher, error) {
	if a.fetcher != nil {
		return a.fetcher, nil
	}
	return a.client()
}

// aliases loads the optional team alias file.
func (a *app) aliases() (*features.Aliases, error) {
	if a.cfg.Data.AliasesFile == "" {
		return nil, nil
	}
	return features.LoadAliases(a.cfg.Data.AliasesFile)
}

// service builds the pipeline for modelPath. An empty modelType uses the config.
func (a *app) service(modelPath string, modelType ml.ModelType) (*pipeline.Service, error) {
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	aliases, err := a.aliases()
	if err != nil {
		return nil, err
	}
	if modelType == "" {
		if modelType, err = a.cfg.ModelType(); err != nil {
			return nil, err
		}
	}
	if modelPath == "" {
		modelPath = a.cfg.Paths.ModelPath
	}
	return pipeline.NewService(pipeline.Options{
		Fetcher:     src,
		Aliases:     aliases,
		Logger:      a.logger,
		Metrics:     a.metrics,
		ModelPath:   modelPath,
		ModelType:   modelType,
		ModelConfig: a.cfg.ModelConfigFor(modelType),
		SeasonType:  a.cfg.Data.SeasonType,
		UseLines:    a.cfg.Data.UseLines,
	}), nil
}

// resolveWeek fills in the current year and week. Auto-detected weeks are
// never earlier than week 1.
func (a *app) resolveWeek(year, week int) (int, int) {
	now := a.now()
	if year == 0 {
		year = now.Year()
	}
	if week > 0 {
		return year, week
	}
	detected := season.CurrentWeek(year, now)
	if detected < 1 {
		a.logger.WithField("year", year).Info("Season has not started, using week 1")
		detected = 1
	} else {
		a.logger.WithFields(logrus.Fields{"year": year, "week": detected}).Info("Auto-detected week")
	}
	return year, detected
}

// parseModelType accepts an empty string as "use the config".
func parseModelType(s string) (ml.ModelType, error) {
	if s == "" {
		return "", nil
	}
	return ml.ParseModelType(s)
}

// out returns the command's output writer.
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
