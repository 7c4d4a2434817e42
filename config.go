package detect

import (
	"fmt"
)

const (
	// DefaultConf is the default minimum confidence score for keeping a
	// detection
	DefaultConf float32 = 0.25
	// DefaultOutDir is the default output directory annotated media is
	// written under
	DefaultOutDir = "runs/detect"
	// PredDir is the subdirectory of the output directory that annotated
	// media is written to
	PredDir = "pred"
)

// Config holds the batch settings used by a Runner
type Config struct {
	// Conf is the minimum confidence score a detection must have to be
	// retained, in the range [0, 1]
	Conf float32
	// OutDir is the directory annotated media is written under.  Artifacts
	// are placed in its "pred" subdirectory
	OutDir string
	// Annotate enables writing annotated copies of the source media
	Annotate bool
}

// Validate checks the configuration values are within range
func (c Config) Validate() error {

	if c.Conf < 0 || c.Conf > 1 {
		return &InvalidConfigError{
			Field:  "Conf",
			Reason: fmt.Sprintf("confidence %v is not in the range 0 to 1", c.Conf),
		}
	}

	if c.Annotate && c.OutDir == "" {
		return &InvalidConfigError{
			Field:  "OutDir",
			Reason: "an output directory is required when annotation is enabled",
		}
	}

	return nil
}
