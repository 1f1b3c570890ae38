package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/zring/cfbmodel/internal/api/response"
	"github.com/zring/cfbmodel/internal/cfbd"
	"github.com/zring/cfbmodel/internal/pipeline"
	"github.com/zring/cfbmodel/internal/report"
)

// WeekRunner predicts a week and stores the resulting run.
type WeekRunner interface {
	RunWeek(ctx context.Context, year, week int) (*report.Run, error)
}

// PredictionRequest selects the week to predict. Zero values mean the
// current season and week.
type PredictionRequest struct {
	Year int `json:"year"`
	Week int `json:"week"`
}

// PredictionHandler handles prediction API requests.
type PredictionHandler struct {
	runner WeekRunner
}

// NewPredictionHandler creates a new PredictionHandler.
func NewPredictionHandler(runner WeekRunner) *PredictionHandler {
	return &PredictionHandler{runner: runner}
}

// CreatePrediction runs the model on the requested week and returns the
// stored run.
func (h *PredictionHandler) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	var req PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Year < 0 || req.Week < 0 {
		response.BadRequest(w, errors.New("year and week must not be negative"))
		return
	}

	run, err := h.runner.RunWeek(r.Context(), req.Year, req.Week)
	switch {
	case errors.Is(err, pipeline.ErrNoModel):
		response.ServiceUnavailable(w, err)
	case cfbd.IsType(err, cfbd.ErrInvalidParams):
		response.BadRequest(w, err)
	case isUpstream(err):
		response.BadGateway(w, err)
	case err != nil:
		response.InternalError(w, err)
	default:
		response.Created(w, run)
	}
}

func isUpstream(err error) bool {
	var apiErr *cfbd.APIError
	return errors.As(err, &apiErr)
}
