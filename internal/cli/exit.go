package cli

import (
	"errors"

	"github.com/happyhackingspace/digits/classifier"
	"github.com/happyhackingspace/digits/dataset"
	"github.com/happyhackingspace/digits/internal/storage"
)

// Exit codes returned by the digits binary.
const (
	ExitOK       = 0
	ExitData     = 1
	ExitArtifact = 2
)

// ModelError marks a failure to read or write the model artifact.
type ModelError struct {
	Path string
	Err  error
}

func (e *ModelError) Error() string {
	return "model " + e.Path + ": " + e.Err.Error()
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to the process exit code. Artifact problems
// exit with 2, everything else (bad data, bad flags) with 1.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if isDataError(err) {
		return ExitData
	}
	var (
		modelErr  *ModelError
		schemaErr *storage.SchemaMismatchError
	)
	if errors.As(err, &modelErr) || errors.As(err, &schemaErr) {
		return ExitArtifact
	}
	return ExitData
}

// isDataError reports whether err comes from malformed input data.
func isDataError(err error) bool {
	var (
		formatErr *dataset.DataFormatError
		dimErr    *dataset.DimensionMismatchError
		classErr  *classifier.InsufficientClassesError
		overflow  *classifier.ScoreOverflowError
	)
	return errors.Is(err, dataset.ErrEmptySource) ||
		errors.As(err, &formatErr) ||
		errors.As(err, &dimErr) ||
		errors.As(err, &classErr) ||
		errors.As(err, &overflow)
}
