// Package pipeline strings the stats client, feature builder and classifier
// together into training and weekly prediction runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zring/cfbmodel/internal/cfbd"
	"github.com/zring/cfbmodel/internal/features"
	"github.com/zring/cfbmodel/internal/logging"
	"github.com/zring/cfbmodel/internal/metrics"
	"github.com/zring/cfbmodel/internal/ml"
	"github.com/zring/cfbmodel/internal/report"
)

var (
	// ErrNoModel is returned when predicting before a model is trained or loaded.
	ErrNoModel = errors.New("no model loaded")

	// ErrNoTrainingData is returned when a season has no completed games.
	ErrNoTrainingData = errors.New("no completed games to train on")
)

// Fetcher is the subset of the stats API the pipeline needs.
type Fetcher interface {
	GetGames(ctx context.Context, q cfbd.GameQuery) ([]cfbd.Game, error)
	GetTeamStats(ctx context.Context, year int, team string) ([]cfbd.TeamStat, error)
	GetTeamTalent(ctx context.Context, year int) ([]cfbd.TeamTalent, error)
	GetBettingLines(ctx context.Context, q cfbd.LinesQuery) ([]cfbd.GameLine, error)
	GetTeams(ctx context.Context) ([]cfbd.Team, error)
}

// Options configures a Service.
type Options struct {
	Fetcher Fetcher
	Aliases *features.Aliases
	Logger  *logrus.Logger
	Metrics *metrics.PipelineMetrics

	// ModelPath is where Train saves and LoadModel reads the model.
	ModelPath string

	// ModelType and ModelConfig select the classifier built by Train.
	ModelType   ml.ModelType
	ModelConfig *ml.ModelConfig

	// SeasonType is used when a request leaves it empty.
	SeasonType string

	// UseLines attaches consensus spreads to predictions.
	UseLines bool
}

// Service runs training and prediction. It is safe for concurrent use; the
// model can be swapped while predictions are running.
type Service struct {
	fetcher     Fetcher
	aliases     *features.Aliases
	logger      *logrus.Logger
	metrics     *metrics.PipelineMetrics
	modelPath   string
	modelType   ml.ModelType
	modelConfig *ml.ModelConfig
	seasonType  string
	useLines    bool

	mu    sync.RWMutex
	model *ml.Model
}

// NewService creates a pipeline service.
func NewService(opts Options) *Service {
	if opts.ModelType == "" {
		opts.ModelType = ml.ModelTypeRandomForest
	}
	if opts.SeasonType == "" {
		opts.SeasonType = cfbd.SeasonTypeRegular
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewPipelineMetrics()
	}
	return &Service{
		fetcher:     opts.Fetcher,
		aliases:     opts.Aliases,
		logger:      logging.OrNop(opts.Logger),
		metrics:     opts.Metrics,
		modelPath:   opts.ModelPath,
		modelType:   opts.ModelType,
		modelConfig: opts.ModelConfig,
		seasonType:  opts.SeasonType,
		useLines:    opts.UseLines,
	}
}

// Model returns the current model, or nil.
func (s *Service) Model() *ml.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// SetModel replaces the current model.
func (s *Service) SetModel(m *ml.Model) {
	s.mu.Lock()
	s.model = m
	s.mu.Unlock()
}

// ModelPath returns the configured model file.
func (s *Service) ModelPath() string {
	return s.modelPath
}

// Metrics returns the service's metrics collector.
func (s *Service) Metrics() *metrics.PipelineMetrics {
	return s.metrics
}

// LoadModel reads the model from ModelPath and makes it current.
func (s *Service) LoadModel() (*ml.Model, error) {
	if s.modelPath == "" {
		return nil, fmt.Errorf("no model path configured")
	}
	m, err := ml.Load(s.modelPath)
	if err != nil {
		return nil, err
	}
	s.SetModel(m)
	s.logger.WithFields(logrus.Fields{
		"path": s.modelPath,
		"type": m.Type(),
	}).Info("Model loaded")
	return m, nil
}

// Dataset is one season slice fetched from the API and turned into features.
type Dataset struct {
	Year       int
	Week       int
	SeasonType string
	Games      []cfbd.Game
	Stats      features.StatLookup
	Talent     features.TalentLookup
	Table      *features.Table

	// Aliases resolved team names for this dataset.
	Aliases *features.Aliases

	// TalentErr is set when talent ratings could not be fetched; the talent
	// columns are then zero.
	TalentErr error
	// LinesAttached counts games with a consensus spread.
	LinesAttached int
}

// Fetch retrieves games for year (and week, when positive), then that
// season's team statistics, talent and team list concurrently, and builds the
// feature table. A talent failure is logged and recorded on the Dataset
// rather than returned; without the team list only the configured aliases
// are used.
func (s *Service) Fetch(ctx context.Context, year, week int, seasonType string) (*Dataset, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("no data source configured")
	}
	if seasonType == "" {
		seasonType = s.seasonType
	}
	log := s.logger.WithFields(logrus.Fields{"year": year, "week": week})

	games, err := s.fetcher.GetGames(ctx, cfbd.GameQuery{Year: year, Week: week, SeasonType: seasonType})
	if err != nil {
		return nil, fmt.Errorf("fetch games: %w", err)
	}
	ds := &Dataset{Year: year, Week: week, SeasonType: seasonType, Games: games}
	s.metrics.GamesFetched.Add(uint64(len(games)))
	log.WithField("games", len(games)).Info("Fetched games")
	if len(games) == 0 {
		ds.Table = &features.Table{}
		return ds, nil
	}

	var (
		wg        sync.WaitGroup
		stats     []cfbd.TeamStat
		talent    []cfbd.TeamTalent
		teams     []cfbd.Team
		statsErr  error
		talentErr error
		teamsErr  error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		stats, statsErr = s.fetcher.GetTeamStats(ctx, year, "")
	}()
	go func() {
		defer wg.Done()
		talent, talentErr = s.fetcher.GetTeamTalent(ctx, year)
	}()
	go func() {
		defer wg.Done()
		teams, teamsErr = s.fetcher.GetTeams(ctx)
	}()
	wg.Wait()

	if statsErr != nil {
		return nil, fmt.Errorf("fetch team stats: %w", statsErr)
	}
	ds.Stats = features.PivotStats(features.StatRowsFromAPI(stats))
	log.WithField("teams", len(ds.Stats)).Info("Fetched team stats")

	if talentErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch talent: %w", talentErr)
		}
		ds.TalentErr = talentErr
		log.WithError(talentErr).Warn("Talent ratings unavailable, continuing without them")
	} else {
		ds.Talent = features.TalentFromAPI(talent)
		log.WithField("teams", len(ds.Talent)).Info("Fetched talent ratings")
	}

	// Alternate names from the team list, overridden by the configured file.
	aliases := s.aliases
	if teamsErr != nil {
		log.WithError(teamsErr).Warn("Team list unavailable, using configured aliases only")
	} else {
		aliases = features.AliasesFromTeams(teams).Merge(s.aliases)
	}
	ds.Aliases = aliases

	start := time.Now()
	builder := &features.Builder{Aliases: aliases}
	ds.Table = builder.Build(games, ds.Stats, ds.Talent)
	s.metrics.FeatureLatency.Record(time.Since(start))

	if s.useLines {
		lines, err := s.fetcher.GetBettingLines(ctx, cfbd.LinesQuery{Year: year, Week: week})
		if err != nil {
			log.WithError(err).Warn("Betting lines unavailable")
		} else {
			ds.LinesAttached = ds.Table.AttachLines(lines)
		}
	}
	return ds, nil
}

// TrainRequest selects the season to train on.
type TrainRequest struct {
	Year       int
	SeasonType string

	// ModelType overrides the service default when set.
	ModelType ml.ModelType

	// NoSave skips writing the model to ModelPath.
	NoSave bool
}

// TrainResult summarizes a training run.
type TrainResult struct {
	Year      int                 `json:"year"`
	ModelType ml.ModelType        `json:"model_type"`
	Games     int                 `json:"games"`
	Samples   int                 `json:"samples"`
	Features  int                 `json:"features"`
	HomeWins  int                 `json:"home_wins"`
	AwayWins  int                 `json:"away_wins"`
	Teams     int                 `json:"teams"`
	Talent    bool                `json:"talent"`
	ModelPath string              `json:"model_path,omitempty"`
	Metrics   *ml.TrainingMetrics `json:"metrics"`
}

// Train fetches a season, fits a new model on its completed games, saves it
// and makes it current.
func (s *Service) Train(ctx context.Context, req TrainRequest) (*TrainResult, error) {
	ds, err := s.Fetch(ctx, req.Year, 0, req.SeasonType)
	if err != nil {
		return nil, err
	}
	return s.TrainOn(ds, req)
}

// TrainOn fits a new model on an already fetched dataset.
func (s *Service) TrainOn(ds *Dataset, req TrainRequest) (*TrainResult, error) {
	X, y := ds.Table.TrainingData()
	if len(y) == 0 {
		return nil, fmt.Errorf("%w for %d", ErrNoTrainingData, ds.Year)
	}

	modelType := req.ModelType
	if modelType == "" {
		modelType = s.modelType
	}
	cfg := s.modelConfig
	if cfg == nil || modelType != s.modelType {
		cfg = ml.DefaultModelConfig(modelType)
		if s.modelConfig != nil {
			cfg.RandomState = s.modelConfig.RandomState
			cfg.TestSize = s.modelConfig.TestSize
			cfg.CVFolds = s.modelConfig.CVFolds
			cfg.Workers = s.modelConfig.Workers
		}
	}

	model, err := ml.NewModel(modelType, cfg)
	if err != nil {
		return nil, err
	}

	counts := ds.Table.LabelCounts()
	log := s.logger.WithFields(logrus.Fields{
		"year":      ds.Year,
		"samples":   len(y),
		"home_wins": counts[1],
		"away_wins": counts[0],
		"model":     modelType,
	})
	log.Info("Training model")

	start := time.Now()
	m, err := model.Train(X, y, ds.Table.Columns(), 0)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	s.metrics.TrainLatency.Record(time.Since(start))
	log.WithFields(logrus.Fields{
		"test_accuracy": m.TestAccuracy,
		"cv_mean":       m.CVMean,
		"duration":      time.Since(start).Round(time.Millisecond),
	}).Info("Model trained")

	res := &TrainResult{
		Year:      ds.Year,
		ModelType: modelType,
		Games:     len(ds.Games),
		Samples:   len(y),
		Features:  features.NumFeatures(),
		HomeWins:  counts[1],
		AwayWins:  counts[0],
		Teams:     len(ds.Stats),
		Talent:    ds.TalentErr == nil && len(ds.Talent) > 0,
		Metrics:   m,
	}

	if !req.NoSave && s.modelPath != "" {
		if err := model.Save(s.modelPath); err != nil {
			return nil, fmt.Errorf("save model: %w", err)
		}
		res.ModelPath = s.modelPath
		log.WithField("path", s.modelPath).Info("Model saved")
	}

	s.SetModel(model)
	return res, nil
}

// PredictRequest selects the week to predict.
type PredictRequest struct {
	Year       int
	Week       int
	SeasonType string
}

// PredictWeek predicts every game of one week with the current model. A
// week without games yields an empty run rather than an error.
func (s *Service) PredictWeek(ctx context.Context, req PredictRequest) (*report.Run, error) {
	model := s.Model()
	if model == nil || !model.IsTrained() {
		return nil, ErrNoModel
	}

	ds, err := s.Fetch(ctx, req.Year, req.Week, req.SeasonType)
	if err != nil {
		return nil, err
	}
	return s.PredictOn(ds, model)
}

// PredictOn scores an already fetched dataset with model.
func (s *Service) PredictOn(ds *Dataset, model *ml.Model) (*report.Run, error) {
	run := report.NewRun(ds.Year, ds.Week)
	run.Metadata.SeasonType = ds.SeasonType
	run.Metadata.ModelPath = s.modelPath
	run.Metadata.ModelType = string(model.Type())

	if ds.Table.Len() == 0 {
		s.logger.WithFields(logrus.Fields{"year": ds.Year, "week": ds.Week}).Info("No games found")
		return run, nil
	}

	X := ds.Table.Matrix()
	if names := model.FeatureNames(); len(names) > 0 {
		var selected []string
		X, selected = ds.Table.Select(names)
		if len(selected) != len(names) {
			return nil, fmt.Errorf("%w: model expects %v", ml.ErrShapeMismatch, names)
		}
	}

	start := time.Now()
	proba, err := model.PredictProba(X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	s.metrics.PredictLatency.Record(time.Since(start))
	s.metrics.GamesScored.Add(uint64(len(proba)))

	run.Add(ds.Table.Rows, proba)
	s.logger.WithFields(logrus.Fields{
		"year":   ds.Year,
		"week":   ds.Week,
		"games":  len(run.Predictions),
		"run_id": run.Metadata.RunID,
	}).Info("Predictions generated")
	return run, nil
}
