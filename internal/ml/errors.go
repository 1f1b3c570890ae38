package ml

import "errors"

var (
	// ErrNotTrained is returned when predicting with a model that has not been fit.
	ErrNotTrained = errors.New("model has not been trained")

	// ErrUnknownModelType is returned for a model type other than random_forest or gradient_boosting.
	ErrUnknownModelType = errors.New("unknown model type")

	// ErrShapeMismatch is returned when feature rows and labels disagree in size.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidLabel is returned when a training label is not 0 or 1.
	ErrInvalidLabel = errors.New("labels must be 0 or 1")
)
