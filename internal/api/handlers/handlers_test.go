package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zring/cfbmodel/internal/cfbd"
	"github.com/zring/cfbmodel/internal/metrics"
	"github.com/zring/cfbmodel/internal/ml"
	"github.com/zring/cfbmodel/internal/pipeline"
	"github.com/zring/cfbmodel/internal/report"
)

// mockRunner is a WeekRunner returning fixed results.
type mockRunner struct {
	run       *report.Run
	err       error
	gotYear   int
	gotWeek   int
	callCount int
}

func (m *mockRunner) RunWeek(_ context.Context, year, week int) (*report.Run, error) {
	m.callCount++
	m.gotYear, m.gotWeek = year, week
	return m.run, m.err
}

type mockModels struct {
	model *ml.Model
}

func (m mockModels) Model() *ml.Model { return m.model }

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestCreatePrediction_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, http.StatusCreated},
		{"no model", pipeline.ErrNoModel, http.StatusServiceUnavailable},
		{"invalid params", &cfbd.APIError{Type: cfbd.ErrInvalidParams, Message: "bad week"}, http.StatusBadRequest},
		{"upstream not found", &cfbd.APIError{Type: cfbd.ErrUpstream, StatusCode: 404, Message: "not found"}, http.StatusBadGateway},
		{"upstream down", &cfbd.APIError{Type: cfbd.ErrUnavailable, StatusCode: 503, Message: "down"}, http.StatusBadGateway},
		{"wrapped upstream", fmt.Errorf("fetch games: %w", &cfbd.APIError{Type: cfbd.ErrUnauthorized}), http.StatusBadGateway},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{run: report.NewRun(2024, 14), err: tt.err}
			rec := post(NewPredictionHandler(runner).CreatePrediction, `{"year":2024,"week":14}`)
			if rec.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if runner.gotYear != 2024 || runner.gotWeek != 14 {
				t.Errorf("Runner got %d/%d", runner.gotYear, runner.gotWeek)
			}
		})
	}
}

func TestCreatePrediction_EmptyBody(t *testing.T) {
	runner := &mockRunner{run: report.NewRun(2024, 3)}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions", nil)
	rec := httptest.NewRecorder()
	NewPredictionHandler(runner).CreatePrediction(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	if runner.gotYear != 0 || runner.gotWeek != 0 {
		t.Errorf("Expected zero year and week, got %d/%d", runner.gotYear, runner.gotWeek)
	}
}

func TestGetModel_NoModel(t *testing.T) {
	rec := httptest.NewRecorder()
	NewModelHandler(mockModels{}).GetModel(rec, httptest.NewRequest(http.MethodGet, "/api/v1/model", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestGetMetrics(t *testing.T) {
	m := metrics.NewPipelineMetrics()
	m.GamesScored.Add(7)
	m.GamesFetched.Add(9)

	rec := httptest.NewRecorder()
	NewSystemHandler(mockModels{}, m).GetMetrics(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"games_scored":7`)) {
		t.Errorf("Expected games_scored in body, got %s", rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"games_fetched":9`)) {
		t.Errorf("Expected games_fetched in body, got %s", rec.Body.String())
	}
}

func TestIntParam(t *testing.T) {
	if n, err := intParam("12", "week"); err != nil || n != 12 {
		t.Errorf("intParam(12) = %d, %v", n, err)
	}
	for _, bad := range []string{"", "x", "-1"} {
		if _, err := intParam(bad, "week"); err == nil {
			t.Errorf("intParam(%q) should fail", bad)
		}
	}
}
