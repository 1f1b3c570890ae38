package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zring/cfbmodel/internal/api/response"
	"github.com/zring/cfbmodel/internal/api/websocket"
	"github.com/zring/cfbmodel/internal/ml"
	"github.com/zring/cfbmodel/internal/pipeline"
	"github.com/zring/cfbmodel/internal/report"
	"github.com/zring/cfbmodel/internal/storage"
	"github.com/zring/cfbmodel/internal/synthetic"
)

type fixture struct {
	server *Server
	svc    *pipeline.Service
	runs   storage.RunRepository
}

func newFixture(t *testing.T, train bool) *fixture {
	t.Helper()
	dir := t.TempDir()

	opts := synthetic.DefaultOptions()
	opts.Games = 120
	src := synthetic.NewSource(synthetic.Generate(opts), synthetic.Matchups(opts.Season, 14, synthetic.DemoMatchups...)...)

	cfg := ml.DefaultModelConfig(ml.ModelTypeRandomForest)
	cfg.NEstimators = 15
	cfg.CVFolds = 3
	svc := pipeline.NewService(pipeline.Options{
		Fetcher:     src,
		ModelPath:   filepath.Join(dir, "model.json"),
		ModelConfig: cfg,
	})
	if train {
		_, err := svc.Train(context.Background(), pipeline.TrainRequest{Year: 2024})
		require.NoError(t, err)
	}

	db, err := storage.Open(storage.DefaultConfig(filepath.Join(dir, "runs.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	runs := storage.NewRunRepository(db)

	return &fixture{
		server: NewServer(nil, svc, runs, nil),
		svc:    svc,
		runs:   runs,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	env := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, into))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.True(t, cfg.WatchModel)
	assert.Empty(t, cfg.Schedule)
}

func TestNewServer_NilConfig(t *testing.T) {
	s := NewServer(nil, pipeline.NewService(pipeline.Options{}), nil, nil)
	assert.Equal(t, 8080, s.Port())
	assert.Empty(t, s.Addr())
	assert.NotNil(t, s.Hub())
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["model_ready"])
	assert.Equal(t, "cfbmodel-api", body["service"])
}

func TestGetModel(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/model", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f = newFixture(t, true)
	rec = f.do(t, http.MethodGet, "/api/v1/model", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info ml.ModelInfo
	decodeData(t, rec, &info)
	assert.Equal(t, ml.ModelTypeRandomForest, info.ModelType)
	assert.True(t, info.IsReady)
	assert.Len(t, info.FeatureNames, len(info.Importances))
}

func TestCreatePrediction_NoModel(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodPost, "/api/v1/predictions", map[string]int{"year": 2024, "week": 14})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var errResp response.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, http.StatusServiceUnavailable, errResp.Code)
}

func TestCreatePrediction_BadRequests(t *testing.T) {
	f := newFixture(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions", bytes.NewBufferString(`{"year":2024}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/predictions", bytes.NewBufferString(`{"year":`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/predictions", map[string]int{"year": 2024, "week": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictionLifecycle(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/v1/predictions", map[string]int{"year": 2024, "week": 14})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created report.Run
	decodeData(t, rec, &created)
	require.Len(t, created.Predictions, len(synthetic.DemoMatchups))
	assert.Equal(t, 14, created.Metadata.Week)
	runID := created.Metadata.RunID
	require.NotEmpty(t, runID)

	rec = f.do(t, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data  []report.Metadata `json:"data"`
		Count int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, runID, list.Data[0].RunID)

	rec = f.do(t, http.MethodGet, "/api/v1/runs?year=2024&week=14", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = f.do(t, http.MethodGet, "/api/v1/runs?year=2024&week=3", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Count)

	rec = f.do(t, http.MethodGet, "/api/v1/runs/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var latest report.Run
	decodeData(t, rec, &latest)
	assert.Equal(t, runID, latest.Metadata.RunID)

	rec = f.do(t, http.MethodGet, "/api/v1/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored report.Run
	decodeData(t, rec, &stored)
	require.Len(t, stored.Predictions, len(created.Predictions))
	for i := range stored.Predictions {
		assert.Equal(t, created.Predictions[i].PredictedWinner, stored.Predictions[i].PredictedWinner)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/runs/"+runID+"/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var analysis report.Analysis
	decodeData(t, rec, &analysis)
	assert.Equal(t, len(created.Predictions), analysis.Games)

	rec = f.do(t, http.MethodDelete, "/api/v1/runs/"+runID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/runs/"+runID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/runs/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns_InvalidParams(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/runs?limit=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/runs?year=2024", nil).Code)
}

func TestRunWeek_ResolvesCurrentWeek(t *testing.T) {
	f := newFixture(t, true)

	// Before the season starts the week clamps to 1.
	f.server.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	run, err := f.server.RunWeek(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2024, run.Metadata.Year)
	assert.Equal(t, 1, run.Metadata.Week)

	stored, err := f.runs.Get(context.Background(), run.Metadata.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.Metadata.GamesFound, stored.Metadata.GamesFound)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginAllowed(t *testing.T) {
	s := NewServer(&Config{AllowedOrigins: []string{"http://localhost:3000"}}, pipeline.NewService(pipeline.Options{}), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, s.originAllowed(req))
	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, s.originAllowed(req))
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, s.originAllowed(req))
}

func TestStartShutdown(t *testing.T) {
	f := newFixture(t, true)
	f.server.cfg.Port = 0
	require.NoError(t, f.server.Start())

	_, port, err := net.SplitHostPort(f.server.Addr())
	require.NoError(t, err)

	resp, err := http.Get("http://127.0.0.1:" + port + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, f.server.watcher)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.server.Shutdown(ctx))
	assert.True(t, waitFor(func() bool { return f.server.Hub().IsStopped() }))
}

func TestStart_InvalidSchedule(t *testing.T) {
	f := newFixture(t, false)
	f.server.cfg.Port = 0
	f.server.cfg.Schedule = "not a schedule"
	assert.Error(t, f.server.Start())
}

func TestModelWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")

	var reloads atomic.Int32
	w := NewModelWatcher(path, func() error {
		reloads.Add(1)
		return nil
	}, nil)
	w.delay = 20 * time.Millisecond
	require.NoError(t, w.Start())
	defer func() { _ = w.Close() }()

	model, err := ml.NewModel(ml.ModelTypeRandomForest, nil)
	require.NoError(t, err)
	require.NoError(t, model.Fit([][]float64{{0}, {1}, {2}, {3}}, []int{0, 0, 1, 1}, []string{"x"}))
	require.NoError(t, model.Save(path))

	assert.True(t, waitFor(func() bool { return reloads.Load() >= 1 }))
}

func TestServer_ReloadModelOnFileChange(t *testing.T) {
	f := newFixture(t, true)
	f.server.cfg.Port = 0
	require.NoError(t, f.server.Start())
	defer func() { _ = f.server.Shutdown(context.Background()) }()
	f.server.watcher.delay = 20 * time.Millisecond

	original := f.svc.Model()
	replacement, err := ml.NewModel(ml.ModelTypeGradientBoosting, nil)
	require.NoError(t, err)
	require.NoError(t, replacement.Fit([][]float64{{0}, {1}, {2}, {3}}, []int{0, 0, 1, 1}, []string{"x"}))
	require.NoError(t, replacement.Save(f.svc.ModelPath()))

	assert.True(t, waitFor(func() bool {
		m := f.svc.Model()
		return m != original && m.Type() == ml.ModelTypeGradientBoosting
	}))
}

func TestServer_ReloadPublishesModelEvents(t *testing.T) {
	f := newFixture(t, true)
	f.server.cfg.Port = 0
	require.NoError(t, f.server.Start())
	defer func() { _ = f.server.Shutdown(context.Background()) }()
	f.server.watcher.delay = 20 * time.Millisecond

	_, port, err := net.SplitHostPort(f.server.Addr())
	require.NoError(t, err)
	conn, _, err := gws.DefaultDialer.Dial("ws://127.0.0.1:"+port+"/ws", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.True(t, waitFor(func() bool { return f.server.Hub().ClientCount() == 1 }))

	readType := func() string {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var ev websocket.Event
		require.NoError(t, conn.ReadJSON(&ev))
		return ev.Type
	}

	// A newer model announces both events.
	replacement, err := ml.NewModel(ml.ModelTypeGradientBoosting, nil)
	require.NoError(t, err)
	require.NoError(t, replacement.Fit([][]float64{{0}, {1}, {2}, {3}}, []int{0, 0, 1, 1}, []string{"x"}))
	require.NoError(t, replacement.Save(f.svc.ModelPath()))

	assert.Equal(t, websocket.EventModelReloaded, readType())
	assert.Equal(t, websocket.EventModelTrained, readType())

	// Reloading the same model is only a reload.
	require.NoError(t, f.server.reloadModel())
	assert.Equal(t, websocket.EventModelReloaded, readType())
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestScheduler(t *testing.T) {
	_, err := NewScheduler("61 * * * *", nil, func(context.Context) error { return nil }, nil)
	assert.Error(t, err)

	var runs atomic.Int32
	s, err := NewScheduler("@every 1s", time.UTC, func(context.Context) error {
		runs.Add(1)
		return nil
	}, nil)
	require.NoError(t, err)
	s.Start()
	assert.False(t, s.Next().IsZero())

	assert.True(t, waitForWithin(3*time.Second, func() bool { return runs.Load() >= 1 }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func waitFor(cond func() bool) bool {
	return waitForWithin(2*time.Second, cond)
}

func waitForWithin(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
