package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zring/cfbmodel/internal/cfbd"
	"github.com/zring/cfbmodel/internal/report"
	"github.com/zring/cfbmodel/internal/synthetic"
)

// testEnv isolates config, database and model files per test.
type testEnv struct {
	dir        string
	configPath string
	dbPath     string
	modelPath  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(apiKeyEnv, "")
	dir := t.TempDir()
	return &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.toml"),
		dbPath:     filepath.Join(dir, "cfbmodel.db"),
		modelPath:  filepath.Join(dir, "model.json"),
	}
}

func (e *testEnv) path(name string) string {
	return filepath.Join(e.dir, name)
}

func (e *testEnv) run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(a)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", e.configPath, "--db", e.dbPath, "--log-level", "error"}, args...))
	err := execute(context.Background(), a, root)
	return stdout.String(), err
}

// syntheticApp serves a synthetic 2024 season with five unscored week 14 games.
func syntheticApp() *app {
	opts := synthetic.DefaultOptions()
	opts.Games = 120
	src := synthetic.NewSource(synthetic.Generate(opts), synthetic.Matchups(opts.Season, 14, synthetic.DemoMatchups...)...)
	return &app{
		fetcher: src,
		now:     func() time.Time { return time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC) },
	}
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, &app{}, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "cfbmodel dev"), out)
}

func TestDemo(t *testing.T) {
	env := newTestEnv(t)
	jsonPath := env.path("demo.json")
	csvPath := env.path("demo.csv")

	out, err := env.run(t, &app{}, "demo", "--games", "120",
		"--model-path", env.modelPath, "--output-json", jsonPath, "--output-csv", csvPath)
	require.NoError(t, err)

	assert.Contains(t, out, "Training Results")
	assert.Contains(t, out, "predictions match")
	assert.FileExists(t, env.modelPath)

	run, err := report.LoadRun(jsonPath)
	require.NoError(t, err)
	assert.Len(t, run.Predictions, len(synthetic.DemoMatchups))

	fromCSV, err := report.LoadPredictionsCSV(csvPath)
	require.NoError(t, err)
	assert.Len(t, fromCSV.Predictions, len(synthetic.DemoMatchups))
}

func TestDemo_GradientBoosting(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, &app{}, "demo", "--model-type", "gradient_boosting")
	require.NoError(t, err)
	assert.Contains(t, out, "predictions match")

	_, err = env.run(t, &app{}, "demo", "--model-type", "svm")
	assert.Error(t, err)
}

func TestWeek_TrainPredictAndStore(t *testing.T) {
	env := newTestEnv(t)
	a := syntheticApp()
	jsonPath := env.path("week14.json")
	htmlPath := env.path("week14.html")

	out, err := env.run(t, a, "week", "--year", "2024", "--week", "14", "--train-year", "2024",
		"--model-path", env.modelPath, "--output-json", jsonPath, "--output-html", htmlPath)
	require.NoError(t, err)

	// No saved model existed, so the command trained one.
	assert.Contains(t, out, "Model saved to "+env.modelPath)
	assert.FileExists(t, htmlPath)
	run, err := report.LoadRun(jsonPath)
	require.NoError(t, err)
	require.Len(t, run.Predictions, len(synthetic.DemoMatchups))

	out, err = env.run(t, a, "history")
	require.NoError(t, err)
	assert.Contains(t, out, run.Metadata.RunID)

	out, err = env.run(t, a, "history", "show", "latest")
	require.NoError(t, err)
	assert.Contains(t, out, synthetic.DemoMatchups[0][0])

	out, err = env.run(t, a, "history", "show", run.Metadata.RunID, "--analyze")
	require.NoError(t, err)
	assert.Contains(t, out, "Prediction Statistics")

	// A second run reuses the saved model.
	out, err = env.run(t, a, "predict", "--year", "2024", "--week", "14", "--model-path", env.modelPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "Training Results")
	assert.Contains(t, out, synthetic.DemoMatchups[1][1])
}

func TestWeek_EmptyWeekStillWritesOutputs(t *testing.T) {
	env := newTestEnv(t)
	jsonPath := env.path("week15.json")
	csvPath := env.path("week15.csv")

	_, err := env.run(t, syntheticApp(), "week", "--year", "2024", "--week", "15", "--train", "--train-year", "2024",
		"--model-path", env.modelPath, "--no-store", "--output-json", jsonPath, "--output-csv", csvPath)
	require.NoError(t, err)

	run, err := report.LoadRun(jsonPath)
	require.NoError(t, err)
	assert.True(t, run.Empty())
	assert.Equal(t, 15, run.Metadata.Week)

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(string(data)), "\n")+1, "header only")
	assert.NoFileExists(t, env.dbPath)
}

func TestWeek_SaveWritesToOutputDir(t *testing.T) {
	env := newTestEnv(t)
	outDir := env.path("out")
	csvPath := env.path("explicit.csv")
	require.NoError(t, os.WriteFile(env.configPath, []byte("[paths]\noutput_dir = \""+filepath.ToSlash(outDir)+"\"\n"), 0o600))

	out, err := env.run(t, syntheticApp(), "week", "--year", "2024", "--week", "14", "--train-year", "2024",
		"--model-path", env.modelPath, "--no-store", "--save", "--output-csv", csvPath)
	require.NoError(t, err)
	assert.FileExists(t, csvPath)

	matches, err := filepath.Glob(filepath.Join(outDir, "predictions_2024_week14_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, out, "Predictions saved to "+matches[0])

	run, err := report.LoadRun(matches[0])
	require.NoError(t, err)
	assert.Len(t, run.Predictions, len(synthetic.DemoMatchups))

	// The explicit CSV path wins over the generated one.
	csvs, err := filepath.Glob(filepath.Join(outDir, "*.csv"))
	require.NoError(t, err)
	assert.Empty(t, csvs)
}

func TestExecute_ClosesDatabaseOnError(t *testing.T) {
	env := newTestEnv(t)
	a := &app{}
	_, err := env.run(t, a, "history", "show", "no-such-run")
	require.Error(t, err)
	assert.FileExists(t, env.dbPath)
	assert.Nil(t, a.db)
}

func TestPredict_NoModel(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, syntheticApp(), "predict", "--year", "2024", "--week", "14", "--model-path", env.modelPath)
	assert.ErrorContains(t, err, "cfbmodel train")
}

func TestTrain(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, syntheticApp(), "train", "--year", "2024", "--model-path", env.modelPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Season 2024: 125 games, 120 training samples x 13 features")
	assert.FileExists(t, env.modelPath)

	_, err = env.run(t, syntheticApp(), "train", "--year", "2019", "--no-save")
	assert.Error(t, err)
}

func TestTrain_Describe(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, syntheticApp(), "train", "--year", "2024", "--no-save", "--describe", "--model-path", env.modelPath)
	require.NoError(t, err)
	assert.Contains(t, out, "=== Feature Summary ===")
	assert.Contains(t, out, "home_off_total_yards")
	assert.Less(t, strings.Index(out, "Feature Summary"), strings.Index(out, "Training Results"))
	assert.NoFileExists(t, env.modelPath)
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(t)
	jsonPath := env.path("preds.json")
	picksPath := env.path("top_picks.txt")

	run := report.NewRun(2024, 14)
	run.Predictions = []report.Prediction{
		{GameNumber: 1, HomeTeam: "Alabama", AwayTeam: "Georgia", PredictedWinner: "Alabama",
			Confidence: 88, HomeWinProbability: 88, AwayWinProbability: 12},
		{GameNumber: 2, HomeTeam: "Texas", AwayTeam: "Oklahoma", PredictedWinner: "Oklahoma",
			Confidence: 52, HomeWinProbability: 48, AwayWinProbability: 52},
	}
	require.NoError(t, report.WriteJSON(run, jsonPath))

	out, err := env.run(t, &app{}, "analyze", jsonPath, "--top-picks", picksPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Home Wins Predicted: 1 (50.0%)")
	assert.Contains(t, out, "1 top picks")

	picks, err := os.ReadFile(picksPath)
	require.NoError(t, err)
	assert.Contains(t, string(picks), "1. Alabama - 88.0% confidence")
	assert.NotContains(t, string(picks), "Oklahoma -")

	_, err = env.run(t, &app{}, "analyze", env.path("missing.json"))
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	env := newTestEnv(t)

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/teams/fbs":
			_, _ = w.Write([]byte(`[{"id":333,"school":"Alabama","mascot":"Crimson Tide","abbreviation":"ALA","conference":"SEC"}]`))
		case "/talent":
			_, _ = w.Write([]byte(`[{"year":2024,"school":"Alabama","talent":"985.3"},{"year":2024,"school":"Georgia","talent":990.1}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfgText := "[api]\nbase_url = \"" + srv.URL + "\"\nuse_cache = false\nrate_limit = \"1ms\"\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfgText), 0o600))

	out, err := env.run(t, &app{}, "--api-key", "secret", "fetch", "teams")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	var teams []cfbd.Team
	require.NoError(t, json.Unmarshal([]byte(out), &teams))
	require.Len(t, teams, 1)
	assert.Equal(t, "Crimson Tide", teams[0].Mascot)

	csvPath := env.path("talent.csv")
	t.Setenv(apiKeyEnv, "from-env")
	_, err = env.run(t, &app{}, "fetch", "talent", "--year", "2024", "--format", "csv", "-o", csvPath)
	require.NoError(t, err)
	assert.Equal(t, "Bearer from-env", gotAuth)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Georgia")

	_, err = env.run(t, &app{}, "fetch", "players")
	assert.Error(t, err)
}

func TestFetch_MissingAPIKey(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, &app{}, "fetch", "games", "--year", "2024")
	assert.ErrorIs(t, err, errMissingAPIKey)
}

func TestConfigInitAndShow(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, &app{}, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, env.configPath)
	assert.FileExists(t, env.configPath)

	_, err = env.run(t, &app{}, "config", "init")
	assert.Error(t, err)
	_, err = env.run(t, &app{}, "config", "init", "--force")
	assert.NoError(t, err)

	out, err = env.run(t, &app{}, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[model]")
	assert.Contains(t, out, "random_forest")
}

func TestInvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.configPath, []byte("[model]\ntype = \"svm\"\n"), 0o600))
	_, err := env.run(t, &app{}, "version")
	assert.ErrorContains(t, err, "invalid config")
}

func TestResolveWeek(t *testing.T) {
	env := newTestEnv(t)
	a := &app{now: func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }}
	_, err := env.run(t, a, "version")
	require.NoError(t, err)

	year, week := a.resolveWeek(0, 0)
	assert.Equal(t, 2024, year)
	assert.Equal(t, 1, week, "preseason clamps to week 1")

	year, week = a.resolveWeek(2023, 7)
	assert.Equal(t, 2023, year)
	assert.Equal(t, 7, week)

	a.now = func() time.Time { return time.Date(2024, 9, 18, 0, 0, 0, 0, time.UTC) }
	_, week = a.resolveWeek(2024, 0)
	assert.Greater(t, week, 1)
}

func TestHistoryBackupRestore(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv(backupPassphraseEnv, "")
	a := syntheticApp()

	_, err := env.run(t, a, "week", "--year", "2024", "--week", "14", "--train-year", "2024", "--model-path", env.modelPath)
	require.NoError(t, err)

	plain := env.path("history.db")
	out, err := env.run(t, a, "history", "backup", plain)
	require.NoError(t, err)
	assert.Contains(t, out, "Backup written to "+plain)

	_, err = env.run(t, a, "history", "backup", env.path("history.enc"), "--encrypt")
	assert.ErrorIs(t, err, errMissingPassphrase)

	t.Setenv(backupPassphraseEnv, "correct horse")
	encrypted := env.path("history.enc")
	_, err = env.run(t, a, "history", "backup", encrypted, "--encrypt")
	require.NoError(t, err)

	require.NoError(t, os.Remove(env.dbPath))
	out, err = env.run(t, a, "history", "restore", encrypted)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored "+env.dbPath)

	out, err = env.run(t, a, "history")
	require.NoError(t, err)
	assert.NotContains(t, out, "No stored prediction runs.")

	t.Setenv(backupPassphraseEnv, "")
	_, err = env.run(t, a, "history", "restore", encrypted)
	assert.ErrorIs(t, err, errMissingPassphrase)
}
