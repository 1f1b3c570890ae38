package handlers

import (
	"net/http"

	"github.com/zring/cfbmodel/internal/api/response"
	"github.com/zring/cfbmodel/internal/metrics"
	"github.com/zring/cfbmodel/internal/version"
)

// SystemHandler handles health and status requests.
type SystemHandler struct {
	models  ModelProvider
	metrics *metrics.PipelineMetrics
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(models ModelProvider, m *metrics.PipelineMetrics) *SystemHandler {
	return &SystemHandler{models: models, metrics: m}
}

// Health reports liveness and whether a model is ready to predict.
func (h *SystemHandler) Health(w http.ResponseWriter, _ *http.Request) {
	model := h.models.Model()
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"service":     "cfbmodel-api",
		"version":     version.Version,
		"model_ready": model != nil && model.IsTrained(),
	})
}

// GetMetrics returns a snapshot of the pipeline counters and latencies.
func (h *SystemHandler) GetMetrics(w http.ResponseWriter, _ *http.Request) {
	if h.metrics == nil {
		response.Success(w, map[string]string{})
		return
	}
	response.Success(w, h.metrics.Snapshot())
}
