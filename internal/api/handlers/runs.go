package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zring/cfbmodel/internal/api/response"
	"github.com/zring/cfbmodel/internal/report"
	"github.com/zring/cfbmodel/internal/storage"
)

// DefaultRunLimit caps run listings when no limit is given.
const DefaultRunLimit = 20

// RunHandler serves stored prediction runs.
type RunHandler struct {
	runs storage.RunRepository
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(runs storage.RunRepository) *RunHandler {
	return &RunHandler{runs: runs}
}

// ListRuns returns run metadata, newest first. Supports ?limit=, and
// ?year= with ?week= to filter one week.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("year") != "" || q.Get("week") != "" {
		year, err := intParam(q.Get("year"), "year")
		if err != nil {
			response.BadRequest(w, err)
			return
		}
		week, err := intParam(q.Get("week"), "week")
		if err != nil {
			response.BadRequest(w, err)
			return
		}
		runs, err := h.runs.ListForWeek(r.Context(), year, week)
		if err != nil {
			response.InternalError(w, err)
			return
		}
		response.List(w, runs, len(runs))
		return
	}

	limit := DefaultRunLimit
	if v := q.Get("limit"); v != "" {
		n, err := intParam(v, "limit")
		if err != nil {
			response.BadRequest(w, err)
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.List(w, runs, len(runs))
}

// GetRun returns one run with its predictions.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		response.BadRequest(w, errors.New("run id is required"))
		return
	}
	run, err := h.runs.Get(r.Context(), runID)
	h.writeRun(w, run, err)
}

// GetLatestRun returns the most recent run.
func (h *RunHandler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Latest(r.Context())
	h.writeRun(w, run, err)
}

// GetRunAnalysis returns confidence statistics for one run.
func (h *RunHandler) GetRunAnalysis(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeRun(w, nil, err)
		return
	}
	response.Success(w, report.Analyze(run))
}

// DeleteRun removes a run.
func (h *RunHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.runs.Delete(r.Context(), chi.URLParam(r, "runID")); err != nil {
		h.writeRun(w, nil, err)
		return
	}
	response.NoContent(w)
}

func (h *RunHandler) writeRun(w http.ResponseWriter, run *report.Run, err error) {
	switch {
	case errors.Is(err, storage.ErrRunNotFound):
		response.NotFound(w, err)
	case err != nil:
		response.InternalError(w, err)
	default:
		response.Success(w, run)
	}
}

func intParam(v, name string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}
