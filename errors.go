package detect

import (
	"fmt"
)

// ModelLoadError indicates the model weights could not be resolved or
// loaded.  It is fatal and the batch never starts
type ModelLoadError struct {
	// Model is the weights file that failed to load
	Model string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// InferenceError indicates inference on a single work unit could not be
// completed.  It is recoverable, the failed unit is counted and the batch
// continues with the next unit
type InferenceError struct {
	// Unit is the identifier of the work unit that failed
	Unit string
	Err  error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference on %s: %v", e.Unit, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// InvalidConfigError indicates a batch configuration value is out of
// range.  It is fatal and the batch never starts
type InvalidConfigError struct {
	// Field is the configuration field at fault
	Field string
	// Reason describes the fault
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}
