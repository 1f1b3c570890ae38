package handlers

import (
	"net/http"

	"github.com/zring/cfbmodel/internal/api/response"
	"github.com/zring/cfbmodel/internal/ml"
	"github.com/zring/cfbmodel/internal/pipeline"
)

// ModelProvider exposes the model currently used for predictions.
type ModelProvider interface {
	Model() *ml.Model
}

// ModelHandler handles model API requests.
type ModelHandler struct {
	models ModelProvider
}

// NewModelHandler creates a new ModelHandler.
func NewModelHandler(models ModelProvider) *ModelHandler {
	return &ModelHandler{models: models}
}

// GetModel returns the current model's type, features and importances.
func (h *ModelHandler) GetModel(w http.ResponseWriter, _ *http.Request) {
	model := h.models.Model()
	if model == nil {
		response.ServiceUnavailable(w, pipeline.ErrNoModel)
		return
	}
	response.Success(w, model.GetModelInfo())
}
