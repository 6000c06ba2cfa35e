package ml

import (
	"errors"
	"fmt"

	"github.com/temcen/shopwise/pkg/models"
)

var (
	// ErrEmptyInput is returned when there is nothing to train on or score from.
	ErrEmptyInput = errors.New("empty input")
	// ErrNotTrained is returned by read operations before a model has been published.
	ErrNotTrained = errors.New("model not trained")
	// ErrUnknownEntity is returned when the requested user or product is not in the trained index.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrTrainingFailed marks an unexpected failure during training.
	ErrTrainingFailed = errors.New("training failed")
	// ErrSnapshotNotFound is returned when no persisted model exists.
	ErrSnapshotNotFound = errors.New("model snapshot not found")
)

// TrainingError wraps the cause of a failed training run. The previously
// published model stays in place when one is returned.
type TrainingError struct {
	Algorithm models.Algorithm
	Stage     string
	Err       error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("%s training failed during %s: %v", e.Algorithm, e.Stage, e.Err)
}

func (e *TrainingError) Unwrap() []error {
	return []error{ErrTrainingFailed, e.Err}
}
